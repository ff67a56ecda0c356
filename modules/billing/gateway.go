package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// CheckoutParams - Checkout 세션 생성 파라미터
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	Mode       stripe.CheckoutSessionMode
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession - 생성된 세션
type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway - 결제 게이트웨이 호출
type Gateway interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	SubscriptionPriceID(ctx context.Context, subscriptionID string) (string, error)
}

// StripeGateway - stripe-go 클라이언트 래퍼
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID)
	params.Context = ctx

	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe customer: %w", err)
	}
	return customer.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(p.CustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		Mode:       stripe.String(string(p.Mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return session.URL, nil
}

// SubscriptionPriceID - 구독 첫 항목의 price id
func (g *StripeGateway) SubscriptionPriceID(ctx context.Context, subscriptionID string) (string, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve subscription %s: %w", subscriptionID, err)
	}
	return firstPriceID(sub)
}

func firstPriceID(sub *stripe.Subscription) (string, error) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return "", fmt.Errorf("subscription %s has no price", sub.ID)
	}
	return sub.Items.Data[0].Price.ID, nil
}
