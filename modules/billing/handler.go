package billing

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v76/webhook"

	"pixelpanel-server/modules/common/auth"
	"pixelpanel-server/modules/common/ratelimit"
	"pixelpanel-server/modules/common/respond"
)

const maxWebhookBody = 65536

type Handler struct {
	service       *Service
	webhookSecret string
}

func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

// RegisterRoutes - /api/stripe/* 등록
func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth auth.Middleware, limits *ratelimit.Set) {
	r.HandleFunc("/api/stripe/create-checkout-session", limits.Write.Wrap(requireAuth(h.HandleCheckout))).Methods("POST")
	r.HandleFunc("/api/stripe/create-customer-portal-session", limits.Write.Wrap(requireAuth(h.HandlePortal))).Methods("POST")
	r.HandleFunc("/api/stripe/webhook", limits.Webhook.Wrap(h.HandleWebhook)).Methods("POST")
	r.HandleFunc("/api/stripe/user-credits", limits.Read.Wrap(requireAuth(h.HandleUserCredits))).Methods("GET")
	r.HandleFunc("/api/stripe/subscription-status", limits.Read.Wrap(requireAuth(h.HandleSubscriptionStatus))).Methods("GET")
	r.HandleFunc("/api/stripe/plans", limits.Read.Wrap(h.HandlePlans)).Methods("GET")
	log.Println("✅ Billing routes registered: checkout, portal, webhook, user-credits, plans")
}

// HandleCheckout - POST /api/stripe/create-checkout-session
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	resp, err := h.service.CreateCheckout(r.Context(), user.ID, user.Email, req)
	if err != nil {
		writeError(w, err, "Failed to create checkout session")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// HandlePortal - POST /api/stripe/create-customer-portal-session
func (h *Handler) HandlePortal(w http.ResponseWriter, r *http.Request) {
	var req PortalRequest
	if !respond.DecodeJSON(w, r, &req) {
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	url, err := h.service.CreatePortal(r.Context(), user.ID, req.ReturnURL)
	if err != nil {
		writeError(w, err, "Failed to create portal session")
		return
	}
	respond.JSON(w, http.StatusOK, PortalResponse{URL: url})
}

// HandleWebhook - POST /api/stripe/webhook
// 서명 검증 이후의 처리 오류는 로그만 남기고 200 응답
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			log.Printf("❌ [Billing] Webhook signature rejected: %v", err)
			respond.Error(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		respond.Error(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	log.Printf("📨 [Billing] Webhook %s (%s)", event.Type, event.ID)
	if err := h.service.HandleEvent(r.Context(), event); err != nil {
		log.Printf("❌ [Billing] Failed to handle %s (%s): %v", event.Type, event.ID, err)
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// HandleUserCredits - GET /api/stripe/user-credits
func (h *Handler) HandleUserCredits(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	resp, err := h.service.UserCredits(r.Context(), user.ID)
	if err != nil {
		writeError(w, err, "Failed to fetch credits")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// HandleSubscriptionStatus - GET /api/stripe/subscription-status
func (h *Handler) HandleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	resp, err := h.service.SubscriptionStatus(r.Context(), user.ID)
	if err != nil {
		writeError(w, err, "Failed to fetch subscription status")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// HandlePlans - GET /api/stripe/plans (인증 없음)
func (h *Handler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Catalog()
	respond.JSON(w, http.StatusOK, PlansResponse{Plans: catalog.Plans(), Packages: catalog.Packages()})
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrTooOld)
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUnknownPrice):
		respond.Error(w, http.StatusBadRequest, "Invalid price or package")
	case errors.Is(err, ErrMissingURL):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoCustomer):
		respond.Error(w, http.StatusBadRequest, "No billing account found")
	default:
		log.Printf("❌ [Billing] %s: %v", fallback, err)
		respond.Error(w, http.StatusInternalServerError, fallback)
	}
}
