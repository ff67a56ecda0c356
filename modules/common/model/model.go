package model

import "time"

// Comic - comics 테이블 구조
type Comic struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	UserID       string       `json:"user_id"`
	IsPublic     bool         `json:"is_public"`
	CompositeURL *string      `json:"composite_url"` // 전체 패널 한 장짜리 이미지
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    *time.Time   `json:"updated_at"`
	Panels       []ComicPanel `json:"comic_panels,omitempty"`
}

// ComicPanel - comic_panels 테이블 구조
// panel_number 0은 표지(썸네일)
type ComicPanel struct {
	ID          string  `json:"id"`
	ComicID     string  `json:"comic_id"`
	PanelNumber int     `json:"panel_number"`
	Prompt      *string `json:"prompt"`
	Narration   *string `json:"narration"`
	StoragePath string  `json:"storage_path"`
	PublicURL   string  `json:"public_url"`
	FileSize    int64   `json:"file_size"`
	AudioURL    *string `json:"audio_url"`
	IsZoomed    bool    `json:"is_zoomed"`
}

// UserProfile - user_profiles 테이블 구조
type UserProfile struct {
	UserID               string  `json:"user_id"`
	Name                 *string `json:"name"`
	Credits              int     `json:"credits"`
	PlanType             string  `json:"plan_type"`
	Status               string  `json:"status"`
	StripeCustomerID     *string `json:"stripe_customer_id"`
	StripeSubscriptionID *string `json:"stripe_subscription_id"`
}

const CoverPanelNumber = 0

const (
	PlanFree        = "free"
	FreePlanCredits = 100

	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

// NarrationText - narration 문자열 (nil이면 빈 문자열)
func (p ComicPanel) NarrationText() string {
	if p.Narration == nil {
		return ""
	}
	return *p.Narration
}

// PromptText - prompt 문자열 (nil이면 빈 문자열)
func (p ComicPanel) PromptText() string {
	if p.Prompt == nil {
		return ""
	}
	return *p.Prompt
}
