package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"pixelpanel-server/modules/billing"
	"pixelpanel-server/modules/comics"
	"pixelpanel-server/modules/common/auth"
	"pixelpanel-server/modules/common/config"
	"pixelpanel-server/modules/common/credit"
	"pixelpanel-server/modules/common/database"
	"pixelpanel-server/modules/common/gemini"
	"pixelpanel-server/modules/common/ratelimit"
	commonredis "pixelpanel-server/modules/common/redis"
	"pixelpanel-server/modules/common/storage"
	"pixelpanel-server/modules/panel"
	"pixelpanel-server/modules/voiceover"
)

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "pixelpanel-api",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	ctx := context.Background()

	db, err := database.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	if err != nil {
		log.Fatalf("❌ Failed to create database client: %v", err)
	}
	ledger := credit.NewLedger(db.Supabase())
	objects := storage.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)

	var geminiClient *gemini.Client
	if cfg.UseVertexAI() {
		geminiClient, err = gemini.NewVertexClient(ctx, gemini.VertexOptions{
			Project:         cfg.VertexProject,
			Location:        cfg.VertexLocation,
			CredentialsJSON: cfg.VertexCredentialsJSON,
			CredentialsPath: cfg.VertexCredentialsPath,
		}, cfg.GeminiImageModel, cfg.GeminiTextModel)
	} else {
		geminiClient, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiImageModel, cfg.GeminiTextModel)
	}
	if err != nil {
		log.Fatalf("❌ Failed to create Gemini client: %v", err)
	}

	// Redis: 세션 컨텍스트 + 웹훅 중복 제거 (없으면 둘 다 비활성)
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = commonredis.Connect(ctx, cfg)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, session context and webhook dedup disabled: %v", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var contextStore panel.ContextStore
	if rdb != nil {
		contextStore = panel.NewRedisContextStore(rdb, cfg.ContextSessionTTL)
	}

	generator := panel.NewGenerator(geminiClient, panel.Options{
		Ledger:          ledger,
		Store:           contextStore,
		Timeout:         cfg.GenerationTimeout,
		BorderThreshold: cfg.BorderVarianceThreshold,
		CreditCost:      cfg.PanelCreditCost,
	})

	verifier := auth.NewVerifier(cfg.SupabaseURL, cfg.AuthAPIKey())
	limits := ratelimit.DefaultSet(cfg.TrustProxyHeaders)

	// 라우터 설정
	r := mux.NewRouter()
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/api/auth/me", limits.Read.Wrap(verifier.Require(auth.HandleMe))).Methods("GET")

	panel.NewHandler(generator).RegisterRoutes(r, verifier.Require, limits)

	comicOpts := comics.Options{Ledger: ledger, NarrationCost: cfg.NarrationCreditCost}
	if cfg.VoiceOverEnabled() {
		voiceClient := voiceover.NewClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID)
		comicOpts.Voice = voiceClient
		voiceover.NewHandler(voiceClient, geminiClient, ledger, cfg.NarrationCreditCost).RegisterRoutes(r, verifier.Require, limits)
	} else {
		log.Println("⚠️  ELEVENLABS_API_KEY not set, voice-over routes disabled")
	}

	comics.NewHandler(comics.NewService(db, objects, generator, comicOpts)).RegisterRoutes(r, verifier.Require, limits)

	if cfg.BillingEnabled() {
		billingService := billing.NewService(billing.NewStripeGateway(cfg.StripeSecretKey), db, ledger, billing.NewCatalog(cfg.StripePrices))
		if rdb != nil {
			billingService.WithEventLog(billing.NewRedisEventLog(rdb, billing.DefaultEventTTL))
		}
		billing.NewHandler(billingService, cfg.StripeWebhookSecret).RegisterRoutes(r, verifier.Require, limits)
	} else {
		log.Println("⚠️  STRIPE_SECRET_KEY not set, billing routes disabled")
	}

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🚀 PixelPanel API starting on port %s", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)

	// 서버 시작
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
