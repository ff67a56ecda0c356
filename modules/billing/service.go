package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v76"

	"pixelpanel-server/modules/common/database"
	"pixelpanel-server/modules/common/model"
)

var (
	ErrUnknownPrice = errors.New("unknown price or package")
	ErrNoCustomer   = errors.New("no billing account")
	ErrMissingURL   = errors.New("redirect url is required")
)

// ProfileStore - user_profiles 접근
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	CreateProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	FindProfileByCustomer(ctx context.Context, customerID string) (*model.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) error
}

// CreditLedger - 크레딧 잔액 조회/충전
type CreditLedger interface {
	GetCredits(ctx context.Context, userID string) (int, error)
	AddCredits(ctx context.Context, userID string, amount int) (int, error)
}

type Service struct {
	gateway  Gateway
	profiles ProfileStore
	ledger   CreditLedger
	catalog  *Catalog
	events   EventLog
}

func NewService(gateway Gateway, profiles ProfileStore, ledger CreditLedger, catalog *Catalog) *Service {
	return &Service{gateway: gateway, profiles: profiles, ledger: ledger, catalog: catalog}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// WithEventLog - 웹훅 이벤트 중복 제거 활성화 (nil이면 비활성)
func (s *Service) WithEventLog(events EventLog) *Service {
	s.events = events
	return s
}

// ensureProfile - 프로필이 없으면 무료 플랜으로 생성
func (s *Service) ensureProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return s.profiles.CreateProfile(ctx, userID)
	}
	return profile, err
}

// ensureCustomer - Stripe customer id 확보 (없으면 생성 후 저장)
func (s *Service) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	profile, err := s.ensureProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.StripeCustomerID != nil && *profile.StripeCustomerID != "" {
		return *profile.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, email, userID)
	if err != nil {
		return "", err
	}
	if err := s.profiles.UpdateProfile(ctx, userID, map[string]interface{}{"stripe_customer_id": customerID}); err != nil {
		return "", err
	}
	log.Printf("💳 [Billing] Stripe customer %s created for user %s", customerID, userID)
	return customerID, nil
}

// CreateCheckout - 구독(price_id) 또는 패키지(package_id) 결제 세션 생성
func (s *Service) CreateCheckout(ctx context.Context, userID, email string, req CheckoutRequest) (*CheckoutResponse, error) {
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, ErrMissingURL
	}

	params := CheckoutParams{
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   map[string]string{"user_id": userID},
	}
	switch {
	case req.PackageID != "":
		pkg, ok := s.catalog.Package(req.PackageID)
		if !ok || pkg.PriceID == nil {
			return nil, ErrUnknownPrice
		}
		params.PriceID = *pkg.PriceID
		params.Mode = stripe.CheckoutSessionModePayment
		params.Metadata["package_id"] = pkg.ID
	case req.PriceID != "":
		if _, ok := s.catalog.PlanByPrice(req.PriceID); !ok {
			return nil, ErrUnknownPrice
		}
		params.PriceID = req.PriceID
		params.Mode = stripe.CheckoutSessionModeSubscription
	default:
		return nil, ErrUnknownPrice
	}

	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	params.CustomerID = customerID

	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}
	log.Printf("💳 [Billing] Checkout session %s (%s) for user %s", session.ID, params.Mode, userID)
	return &CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePortal - 고객 포털 세션 URL
func (s *Service) CreatePortal(ctx context.Context, userID, returnURL string) (string, error) {
	if returnURL == "" {
		return "", ErrMissingURL
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrNoCustomer
	}
	if err != nil {
		return "", err
	}
	if profile.StripeCustomerID == nil || *profile.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.gateway.CreatePortalSession(ctx, *profile.StripeCustomerID, returnURL)
}

// UserCredits - 잔액과 플랜 상태
func (s *Service) UserCredits(ctx context.Context, userID string) (*CreditsResponse, error) {
	profile, err := s.ensureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	credits, err := s.ledger.GetCredits(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CreditsResponse{Credits: credits, PlanType: profile.PlanType, Status: profile.Status}, nil
}

// SubscriptionStatus - 구독 상태 요약
func (s *Service) SubscriptionStatus(ctx context.Context, userID string) (*SubscriptionStatusResponse, error) {
	profile, err := s.ensureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := &SubscriptionStatusResponse{
		PlanType:       profile.PlanType,
		Status:         profile.Status,
		SubscriptionID: profile.StripeSubscriptionID,
		Credits:        profile.Credits,
	}
	resp.HasSubscription = profile.StripeSubscriptionID != nil && *profile.StripeSubscriptionID != "" &&
		profile.PlanType != model.PlanFree && profile.Status != model.SubscriptionCancelled
	return resp, nil
}

// HandleEvent - 검증된 웹훅 이벤트 처리
// 같은 event.ID는 한 번만 반영, 처리 실패 시 기록을 지워 재전송 허용
// 이벤트 기록 저장소 장애 시에는 중복 제거 없이 처리
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	if s.events == nil || event.ID == "" {
		return s.dispatch(ctx, event)
	}

	claimed, err := s.events.Claim(ctx, event.ID)
	if err != nil {
		log.Printf("⚠️ [Billing] Event log unavailable, processing %s without dedup: %v", event.ID, err)
		return s.dispatch(ctx, event)
	}
	if !claimed {
		log.Printf("ℹ️ [Billing] Duplicate event %s (%s), skipping", event.ID, event.Type)
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		if relErr := s.events.Release(ctx, event.ID); relErr != nil {
			log.Printf("⚠️ [Billing] Failed to release event %s: %v", event.ID, relErr)
		}
		return err
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return fmt.Errorf("event %s has no data", event.ID)
	}
	raw := event.Data.Raw

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return fmt.Errorf("failed to parse checkout session: %w", err)
		}
		return s.onCheckoutCompleted(ctx, &session)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("failed to parse subscription: %w", err)
		}
		return s.onSubscriptionChanged(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("failed to parse subscription: %w", err)
		}
		return s.onSubscriptionDeleted(ctx, &sub)

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return fmt.Errorf("failed to parse invoice: %w", err)
		}
		return s.onInvoicePaid(ctx, &invoice)

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return fmt.Errorf("failed to parse invoice: %w", err)
		}
		return s.onInvoiceFailed(ctx, &invoice)
	}

	log.Printf("ℹ️ [Billing] Ignoring event type %s", event.Type)
	return nil
}

func (s *Service) onCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	userID := session.Metadata["user_id"]
	if userID == "" {
		profile, err := s.profileForCustomer(ctx, session.Customer)
		if err != nil {
			return err
		}
		userID = profile.UserID
	}

	if session.Mode == stripe.CheckoutSessionModePayment {
		pkg, ok := s.catalog.Package(session.Metadata["package_id"])
		if !ok {
			log.Printf("⚠️ [Billing] Checkout %s has unknown package %q, no credits granted", session.ID, session.Metadata["package_id"])
			return nil
		}
		balance, err := s.ledger.AddCredits(ctx, userID, pkg.Credits)
		if err != nil {
			return err
		}
		log.Printf("✅ [Billing] Package %s: +%d credits for user %s (balance %d)", pkg.ID, pkg.Credits, userID, balance)
		return nil
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		return fmt.Errorf("subscription checkout %s has no subscription", session.ID)
	}
	subID := session.Subscription.ID
	priceID, err := s.gateway.SubscriptionPriceID(ctx, subID)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"stripe_subscription_id": subID,
		"status":                 model.SubscriptionActive,
	}
	if session.Customer != nil && session.Customer.ID != "" {
		fields["stripe_customer_id"] = session.Customer.ID
	}
	plan, known := s.catalog.PlanByPrice(priceID)
	if known {
		fields["plan_type"] = plan.ID
	}
	if err := s.profiles.UpdateProfile(ctx, userID, fields); err != nil {
		return err
	}

	if !known {
		log.Printf("⚠️ [Billing] Subscription %s has unknown price %s, no credits granted", subID, priceID)
		return nil
	}
	balance, err := s.ledger.AddCredits(ctx, userID, plan.Credits)
	if err != nil {
		return err
	}
	log.Printf("✅ [Billing] Plan %s: +%d credits for user %s (balance %d)", plan.ID, plan.Credits, userID, balance)
	return nil
}

func (s *Service) onSubscriptionChanged(ctx context.Context, sub *stripe.Subscription) error {
	profile, err := s.profileForCustomer(ctx, sub.Customer)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"stripe_subscription_id": sub.ID,
		"status":                 subscriptionStatus(sub.Status),
	}
	if priceID, err := firstPriceID(sub); err == nil {
		if plan, ok := s.catalog.PlanByPrice(priceID); ok {
			fields["plan_type"] = plan.ID
		}
	}
	log.Printf("🔄 [Billing] Subscription %s for user %s is %s", sub.ID, profile.UserID, sub.Status)
	return s.profiles.UpdateProfile(ctx, profile.UserID, fields)
}

func (s *Service) onSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	profile, err := s.profileForCustomer(ctx, sub.Customer)
	if err != nil {
		return err
	}
	log.Printf("🛑 [Billing] Subscription %s cancelled for user %s", sub.ID, profile.UserID)
	return s.profiles.UpdateProfile(ctx, profile.UserID, map[string]interface{}{
		"plan_type":              model.PlanFree,
		"status":                 model.SubscriptionCancelled,
		"stripe_subscription_id": nil,
	})
}

// onInvoicePaid - 갱신 결제만 크레딧 충전 (최초 결제는 checkout에서 처리)
func (s *Service) onInvoicePaid(ctx context.Context, invoice *stripe.Invoice) error {
	if invoice.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		return nil
	}
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		return fmt.Errorf("invoice %s has no subscription", invoice.ID)
	}
	profile, err := s.profileForCustomer(ctx, invoice.Customer)
	if err != nil {
		return err
	}

	priceID, err := s.gateway.SubscriptionPriceID(ctx, invoice.Subscription.ID)
	if err != nil {
		return err
	}
	plan, ok := s.catalog.PlanByPrice(priceID)
	if !ok {
		log.Printf("⚠️ [Billing] Renewal %s has unknown price %s, no credits granted", invoice.ID, priceID)
		return nil
	}

	balance, err := s.ledger.AddCredits(ctx, profile.UserID, plan.Credits)
	if err != nil {
		return err
	}
	if err := s.profiles.UpdateProfile(ctx, profile.UserID, map[string]interface{}{"status": model.SubscriptionActive}); err != nil {
		return err
	}
	log.Printf("✅ [Billing] Renewal %s: +%d credits for user %s (balance %d)", plan.ID, plan.Credits, profile.UserID, balance)
	return nil
}

func (s *Service) onInvoiceFailed(ctx context.Context, invoice *stripe.Invoice) error {
	profile, err := s.profileForCustomer(ctx, invoice.Customer)
	if err != nil {
		return err
	}
	log.Printf("⚠️ [Billing] Payment failed for user %s (invoice %s)", profile.UserID, invoice.ID)
	return s.profiles.UpdateProfile(ctx, profile.UserID, map[string]interface{}{"status": model.SubscriptionPastDue})
}

func (s *Service) profileForCustomer(ctx context.Context, customer *stripe.Customer) (*model.UserProfile, error) {
	if customer == nil || customer.ID == "" {
		return nil, errors.New("event has no customer")
	}
	profile, err := s.profiles.FindProfileByCustomer(ctx, customer.ID)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", customer.ID, err)
	}
	return profile, nil
}

// subscriptionStatus - Stripe 상태를 프로필 상태로 축약
func subscriptionStatus(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.SubscriptionActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return model.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return model.SubscriptionCancelled
	}
	return string(status)
}
