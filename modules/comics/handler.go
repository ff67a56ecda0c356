package comics

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"pixelpanel-server/modules/common/auth"
	"pixelpanel-server/modules/common/model"
	"pixelpanel-server/modules/common/ratelimit"
	"pixelpanel-server/modules/common/respond"
	"pixelpanel-server/modules/panel"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - 만화 CRUD 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth auth.Middleware, limits *ratelimit.Set) {
	r.HandleFunc("/api/comics/save-comic", limits.Write.Wrap(requireAuth(h.HandleSaveComic))).Methods("POST")
	r.HandleFunc("/api/comics/user-comics", limits.Read.Wrap(requireAuth(h.HandleUserComics))).Methods("GET")
	r.HandleFunc("/api/comics/public-comics", limits.Read.Wrap(h.HandlePublicComics)).Methods("GET")
	r.HandleFunc("/api/comics/user-comics/{comicId}", limits.Write.Wrap(requireAuth(h.HandleDeleteComic))).Methods("DELETE")
	r.HandleFunc("/api/comics/panels/{panelId}", limits.Write.Wrap(requireAuth(h.HandleUpdatePanel))).Methods("PATCH")
	r.HandleFunc("/api/comics/panels/{panelId}/regenerate", limits.Generate.Wrap(requireAuth(h.HandleRegeneratePanel))).Methods("POST")
	r.HandleFunc("/api/comics/{comicId}/visibility", limits.Write.Wrap(requireAuth(h.HandleVisibility))).Methods("PATCH")
	log.Println("✅ Comics routes registered: save-comic, user-comics, public-comics, panels, visibility")
}

// HandleSaveComic - POST /api/comics/save-comic
func (h *Handler) HandleSaveComic(w http.ResponseWriter, r *http.Request) {
	var req SaveComicRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.SaveComic(r.Context(), currentUserID(r), req)
	if err != nil {
		writeError(w, err, "Failed to save comic")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// HandleUserComics - GET /api/comics/user-comics
func (h *Handler) HandleUserComics(w http.ResponseWriter, r *http.Request) {
	comics, err := h.service.ListUserComics(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, err, "Failed to fetch comics")
		return
	}
	respond.JSON(w, http.StatusOK, ComicsResponse{Comics: nonNil(comics)})
}

// HandlePublicComics - GET /api/comics/public-comics (인증 없음)
func (h *Handler) HandlePublicComics(w http.ResponseWriter, r *http.Request) {
	comics, err := h.service.ListPublicComics(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch public comics")
		return
	}
	respond.JSON(w, http.StatusOK, ComicsResponse{Comics: nonNil(comics)})
}

// HandleUpdatePanel - PATCH /api/comics/panels/{panelId}
func (h *Handler) HandleUpdatePanel(w http.ResponseWriter, r *http.Request) {
	var req UpdatePanelRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.UpdatePanel(r.Context(), currentUserID(r), mux.Vars(r)["panelId"], req)
	if err != nil {
		writeError(w, err, "Failed to update panel")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// HandleRegeneratePanel - POST /api/comics/panels/{panelId}/regenerate
func (h *Handler) HandleRegeneratePanel(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.RegeneratePanel(r.Context(), currentUserID(r), mux.Vars(r)["panelId"], req)
	if err != nil {
		writeError(w, err, "Failed to regenerate panel")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// HandleVisibility - PATCH /api/comics/{comicId}/visibility
func (h *Handler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdateVisibility(r.Context(), currentUserID(r), mux.Vars(r)["comicId"], req.IsPublic); err != nil {
		writeError(w, err, "Failed to update visibility")
		return
	}
	respond.JSON(w, http.StatusOK, VisibilityResponse{Success: true, IsPublic: req.IsPublic})
}

// HandleDeleteComic - DELETE /api/comics/user-comics/{comicId}
func (h *Handler) HandleDeleteComic(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteComic(r.Context(), currentUserID(r), mux.Vars(r)["comicId"]); err != nil {
		if errors.Is(err, ErrComicNotFound) {
			respond.Error(w, http.StatusNotFound, "Comic not found or you don't have permission to delete it")
			return
		}
		writeError(w, err, "Failed to delete comic")
		return
	}
	respond.JSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "Comic deleted successfully"})
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	var publishErr *PublishError
	switch {
	case errors.Is(err, ErrMissingField):
		log.Printf("⚠️  [Comics] %s: %v", fallback, err)
		respond.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidPanelData), errors.Is(err, ErrInvalidSpeed):
		log.Printf("⚠️  [Comics] %s: %v", fallback, err)
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &publishErr):
		respond.Error(w, http.StatusBadRequest, "Cannot publish: "+publishErr.Reason)
	case errors.Is(err, ErrPanelNotFound):
		respond.Error(w, http.StatusNotFound, "Panel not found")
	case errors.Is(err, ErrComicNotFound):
		respond.Error(w, http.StatusNotFound, "Comic not found or unauthorized")
	case errors.Is(err, ErrForbidden):
		respond.Error(w, http.StatusForbidden, "You don't have permission to edit this panel")
	case errors.Is(err, ErrVoiceUnavailable):
		respond.Error(w, http.StatusServiceUnavailable, "Voice generation is not available")
	case errors.Is(err, panel.ErrInsufficientCredits):
		log.Printf("⚠️  [Comics] %s: %v", fallback, err)
		respond.Error(w, http.StatusPaymentRequired, "Insufficient credits. Please purchase more credits to continue.")
	default:
		panel.WriteError(w, err, fallback)
	}
}

func nonNil(comics []model.Comic) []model.Comic {
	if comics == nil {
		return []model.Comic{}
	}
	return comics
}

func currentUserID(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return ""
}
