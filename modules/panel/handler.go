package panel

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"pixelpanel-server/modules/common/auth"
	"pixelpanel-server/modules/common/ratelimit"
	"pixelpanel-server/modules/common/respond"
)

// PanelGenerator - 핸들러가 사용하는 생성기
type PanelGenerator interface {
	Generate(ctx context.Context, userID string, req GenerationRequest) (*GeneratedImage, error)
}

type Handler struct {
	generator PanelGenerator
}

func NewHandler(generator PanelGenerator) *Handler {
	return &Handler{generator: generator}
}

// RegisterRoutes - 패널 생성 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth auth.Middleware, limits *ratelimit.Set) {
	r.HandleFunc("/api/comics/generate", limits.Generate.Wrap(requireAuth(h.HandleGenerate))).Methods("POST")
	r.HandleFunc("/api/comics/generate-thumbnail", limits.Generate.Wrap(requireAuth(h.HandleGenerateThumbnail))).Methods("POST")
	log.Println("✅ Panel routes registered: /api/comics/generate, /api/comics/generate-thumbnail")
}

// HandleGenerate - POST /api/comics/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerationRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}

	userID := currentUserID(r)
	panelLabel := "-"
	if req.PanelID != nil {
		panelLabel = strconv.Itoa(*req.PanelID)
	}
	log.Printf("🎨 [Panel] Generate request: user=%s, panel=%s, thumbnail=%v, context=%v, reference=%v",
		userID, panelLabel, req.IsThumbnail, req.PreviousPanelContext != nil, req.ReferenceImage != "")

	result, err := h.generator.Generate(r.Context(), userID, req)
	if err != nil {
		WriteError(w, err, "Error generating comic art")
		return
	}

	respond.JSON(w, http.StatusOK, GenerateResponse{
		Success:   true,
		ImageData: result.Base64(),
		Message:   "Comic art generated successfully",
	})
}

// HandleGenerateThumbnail - POST /api/comics/generate-thumbnail
// 패널 프롬프트 앞 3개로 600x800 표지 생성
func (h *Handler) HandleGenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	var req ThumbnailRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}

	prompts := make([]string, 0, len(req.Prompts))
	for _, p := range req.Prompts {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	if len(prompts) == 0 {
		respond.Error(w, http.StatusBadRequest, "At least one prompt is required")
		return
	}

	result, err := h.generator.Generate(r.Context(), currentUserID(r), GenerationRequest{
		TextPrompt:  CoverPrompt(prompts),
		IsThumbnail: true,
	})
	if err != nil {
		WriteError(w, err, "Error generating thumbnail")
		return
	}

	respond.JSON(w, http.StatusOK, ThumbnailResponse{
		Success:       true,
		ThumbnailData: result.Base64(),
		Message:       "Thumbnail generated successfully",
	})
}

// WriteError - 생성 에러 종류별 상태 코드 (외부 API 응답 원문은 노출하지 않음)
func WriteError(w http.ResponseWriter, err error, fallback string) {
	log.Printf("❌ [Panel] %s: %v", fallback, err)

	switch {
	case IsClientError(err):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientCredits):
		respond.Error(w, http.StatusPaymentRequired, "Insufficient credits. Please purchase more credits to generate comic panels.")
	case errors.Is(err, ErrGenerationTimeout):
		respond.Error(w, http.StatusGatewayTimeout, "Image generation timed out. Please try again.")
	case errors.Is(err, ErrNoImageProduced):
		respond.Error(w, http.StatusInternalServerError, fallback+": the model did not return an image. Try rephrasing the prompt.")
	default:
		respond.Error(w, http.StatusInternalServerError, fallback)
	}
}

func currentUserID(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return ""
}
