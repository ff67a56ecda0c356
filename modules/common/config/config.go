package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port               string
	CORSAllowedOrigins []string
	TrustProxyHeaders  bool // 리버스 프록시 뒤에서만 true (X-Forwarded-For 신뢰)

	// Supabase
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseAnonKey    string
	SupabaseBucket     string

	// Gemini API
	GeminiAPIKey      string
	GeminiImageModel  string
	GeminiTextModel   string
	GenerationTimeout time.Duration

	// Vertex AI (GEMINI_API_KEY 대신 사용 가능)
	VertexProject         string
	VertexLocation        string
	VertexCredentialsJSON string
	VertexCredentialsPath string

	// Panel
	BorderVarianceThreshold float64

	// Credit
	PanelCreditCost     int
	NarrationCreditCost int

	// ElevenLabs
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePrices        map[string]string // plan/package id → Stripe price id

	// Redis (context session store)
	RedisHost         string
	RedisPort         string
	RedisUsername     string
	RedisPassword     string
	RedisUseTLS       bool
	ContextSessionTTL time.Duration
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg := fromEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Supabase: %s (bucket: %s)", cfg.SupabaseURL, cfg.SupabaseBucket)
	log.Printf("   Gemini: image=%s, text=%s, timeout=%s, vertex=%v", cfg.GeminiImageModel, cfg.GeminiTextModel, cfg.GenerationTimeout, cfg.UseVertexAI())
	log.Printf("   Credit: %d per panel, %d per narration", cfg.PanelCreditCost, cfg.NarrationCreditCost)
	log.Printf("   ElevenLabs: %v, Stripe: %v, Redis: %v", cfg.VoiceOverEnabled(), cfg.BillingEnabled(), cfg.RedisEnabled())

	return cfg, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

func fromEnv() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", false),

		SupabaseURL:        strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "PixelPanel"),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiTextModel:   getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GenerationTimeout: time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 90)) * time.Second,

		VertexProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		VertexLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		VertexCredentialsJSON: getEnv("VERTEXAI_CREDENTIALS_JSON", ""),
		VertexCredentialsPath: getEnv("VERTEXAI_CREDENTIALS_PATH", ""),

		BorderVarianceThreshold: getEnvFloat("BORDER_VARIANCE_THRESHOLD", 10),

		PanelCreditCost:     getEnvInt("PANEL_CREDIT_COST", 10),
		NarrationCreditCost: getEnvInt("NARRATION_CREDIT_COST", 1),

		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL: strings.TrimRight(getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"), "/"),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "L1aJrPa7pLJEyYlh3Ilq"),
		ElevenLabsModelID: getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePrices: map[string]string{
			"starter":         getEnv("STRIPE_PRICE_STARTER", ""),
			"pro":             getEnv("STRIPE_PRICE_PRO", ""),
			"creator":         getEnv("STRIPE_PRICE_CREATOR", ""),
			"content_machine": getEnv("STRIPE_PRICE_CONTENT_MACHINE", ""),
			"credits_50":      getEnv("STRIPE_PRICE_CREDITS_50", ""),
			"credits_120":     getEnv("STRIPE_PRICE_CREDITS_120", ""),
			"credits_280":     getEnv("STRIPE_PRICE_CREDITS_280", ""),
			"credits_800":     getEnv("STRIPE_PRICE_CREDITS_800", ""),
		},

		RedisHost:         getEnv("REDIS_HOST", ""),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisUsername:     getEnv("REDIS_USERNAME", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:       getEnvBool("REDIS_USE_TLS", false),
		ContextSessionTTL: time.Duration(getEnvInt("CONTEXT_SESSION_TTL_MINUTES", 120)) * time.Minute,
	}
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.GeminiAPIKey == "" && c.VertexProject == "" {
		return fmt.Errorf("GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT is required")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT_SECONDS must be positive")
	}
	if c.BorderVarianceThreshold < 0 {
		return fmt.Errorf("BORDER_VARIANCE_THRESHOLD must not be negative")
	}
	if c.PanelCreditCost < 0 || c.NarrationCreditCost < 0 {
		return fmt.Errorf("credit costs must not be negative")
	}
	return nil
}

// VoiceOverEnabled - ElevenLabs 키가 있을 때만 음성 기능 활성화
func (c *Config) VoiceOverEnabled() bool {
	return c.ElevenLabsAPIKey != ""
}

// BillingEnabled - Stripe 키가 있을 때만 결제 기능 활성화
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}

// UseVertexAI - API 키가 없고 GCP 프로젝트가 있으면 Vertex AI 백엔드
func (c *Config) UseVertexAI() bool {
	return c.GeminiAPIKey == "" && c.VertexProject != ""
}

// RedisEnabled - REDIS_HOST가 있을 때만 세션 저장소 사용
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// AuthAPIKey - 토큰 검증용 apikey 헤더 값 (anon key 우선)
func (c *Config) AuthAPIKey() string {
	if c.SupabaseAnonKey != "" {
		return c.SupabaseAnonKey
	}
	return c.SupabaseServiceKey
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
