package billing

// CheckoutRequest - price_id(구독) 또는 package_id(크레딧 패키지) 중 하나
type CheckoutRequest struct {
	PriceID    string `json:"price_id"`
	PackageID  string `json:"package_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type PortalRequest struct {
	ReturnURL string `json:"return_url"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

type CreditsResponse struct {
	Credits  int    `json:"credits"`
	PlanType string `json:"plan_type"`
	Status   string `json:"status"`
}

type SubscriptionStatusResponse struct {
	HasSubscription bool    `json:"has_subscription"`
	PlanType        string  `json:"plan_type"`
	Status          string  `json:"status"`
	SubscriptionID  *string `json:"subscription_id"`
	Credits         int     `json:"credits"`
}

type PlansResponse struct {
	Plans    []Plan    `json:"plans"`
	Packages []Package `json:"packages"`
}
