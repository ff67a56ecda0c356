package voiceover

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"pixelpanel-server/modules/common/auth"
	"pixelpanel-server/modules/common/ratelimit"
	"pixelpanel-server/modules/common/respond"
)

// Synthesizer - TTS 엔진
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, settings VoiceSettings) ([]byte, error)
}

// VoiceLister - 음성 목록 조회
type VoiceLister interface {
	ListVoices(ctx context.Context) (json.RawMessage, error)
}

// CreditLedger - 나레이션 크레딧 확인/차감
type CreditLedger interface {
	HasSufficientCredits(ctx context.Context, userID string, amount int) (bool, error)
	DeductCredits(ctx context.Context, userID string, amount int) (int, error)
}

type Handler struct {
	synth      Synthesizer
	voices     VoiceLister
	text       TextGenerator
	ledger     CreditLedger
	creditCost int
}

// NewHandler - text가 nil이면 generate-story는 항상 fallback
func NewHandler(client *Client, text TextGenerator, ledger CreditLedger, creditCost int) *Handler {
	return &Handler{synth: client, voices: client, text: text, ledger: ledger, creditCost: creditCost}
}

// GenerateVoiceoverRequest - POST /api/voice-over/generate-voiceover
type GenerateVoiceoverRequest struct {
	Narration string   `json:"narration"`
	VoiceID   string   `json:"voice_id,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

type GenerateStoryRequest struct {
	Story string `json:"story"`
}

// RegisterRoutes - 음성 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth auth.Middleware, limits *ratelimit.Set) {
	r.HandleFunc("/api/voice-over/generate-voiceover", limits.Generate.Wrap(requireAuth(h.HandleGenerateVoiceover))).Methods("POST")
	r.HandleFunc("/api/voice-over/generate-story", limits.Write.Wrap(requireAuth(h.HandleGenerateStory))).Methods("POST")
	r.HandleFunc("/api/voice-over/voices", limits.Read.Wrap(requireAuth(h.HandleVoices))).Methods("GET")
	log.Println("✅ Voice-over routes registered: /api/voice-over/{generate-voiceover,generate-story,voices}")
}

// ValidateSpeed - 속도 기본값 1.0, 허용 범위 [0.7, 1.2]
func ValidateSpeed(speed *float64) (float64, bool) {
	if speed == nil {
		return 1.0, true
	}
	if *speed < MinSpeed || *speed > MaxSpeed {
		return 0, false
	}
	return *speed, true
}

// HandleGenerateVoiceover - 나레이션 음성 생성 (1 크레딧)
func (h *Handler) HandleGenerateVoiceover(w http.ResponseWriter, r *http.Request) {
	var req GenerateVoiceoverRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Narration) == "" {
		respond.Error(w, http.StatusBadRequest, "Narration text cannot be empty")
		return
	}
	speed, ok := ValidateSpeed(req.Speed)
	if !ok {
		respond.Error(w, http.StatusBadRequest, "Speed must be between 0.7 and 1.2")
		return
	}

	userID := currentUserID(r)
	ok, err := h.ledger.HasSufficientCredits(r.Context(), userID, h.creditCost)
	if err != nil {
		log.Printf("❌ [VoiceOver] Credit check failed for %s: %v", userID, err)
		respond.Error(w, http.StatusInternalServerError, "Failed to check credits")
		return
	}
	if !ok {
		respond.Error(w, http.StatusPaymentRequired, "Insufficient credits. Please purchase more credits to generate voice narrations.")
		return
	}

	audio, err := h.synth.Synthesize(r.Context(), req.Narration, req.VoiceID, SettingsForSpeed(speed))
	if err != nil {
		WriteSynthesisError(w, err)
		return
	}

	if _, err := h.ledger.DeductCredits(context.WithoutCancel(r.Context()), userID, h.creditCost); err != nil {
		log.Printf("❌ [VoiceOver] Failed to deduct credits for %s: %v", userID, err)
	}

	respond.JSON(w, http.StatusOK, map[string]string{
		"audio": base64.StdEncoding.EncodeToString(audio),
	})
}

// HandleGenerateStory - 패널 프롬프트 → 나레이션 JSON
func (h *Handler) HandleGenerateStory(w http.ResponseWriter, r *http.Request) {
	var req GenerateStoryRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Story) == "" {
		respond.Error(w, http.StatusBadRequest, "Story prompts are required")
		return
	}

	if h.text == nil {
		respond.JSON(w, http.StatusOK, FallbackStory(req.Story))
		return
	}
	respond.JSON(w, http.StatusOK, GenerateStory(r.Context(), h.text, req.Story))
}

// HandleVoices - GET /api/voice-over/voices
func (h *Handler) HandleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.voices.ListVoices(r.Context())
	if err != nil {
		log.Printf("❌ [VoiceOver] Failed to list voices: %v", err)
		respond.Error(w, http.StatusBadGateway, "Failed to fetch voices")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(voices)
}

// WriteSynthesisError - TTS 에러 → 상태 코드
func WriteSynthesisError(w http.ResponseWriter, err error) {
	log.Printf("❌ [VoiceOver] Synthesis failed: %v", err)

	var apiErr *APIError
	switch {
	case errors.Is(err, ErrEmptyText):
		respond.Error(w, http.StatusBadRequest, "Narration text cannot be empty")
	case errors.Is(err, ErrTimeout):
		respond.Error(w, http.StatusGatewayTimeout, ErrTimeout.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode < 500:
		respond.Error(w, http.StatusBadRequest, "Voice generation was rejected by the provider")
	default:
		respond.Error(w, http.StatusInternalServerError, "Failed to generate voiceover")
	}
}

func currentUserID(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return ""
}
