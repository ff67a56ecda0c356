package billing

import "pixelpanel-server/modules/common/model"

// Plan - 구독 플랜
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"` // cents / month
	Credits  int      `json:"credits"`
	PriceID  *string  `json:"price_id"`
	Features []string `json:"features"`
}

// Package - 1회성 크레딧 패키지
type Package struct {
	ID      string  `json:"id"`
	Credits int     `json:"credits"`
	PriceID *string `json:"price_id"`
}

// Catalog - 플랜/패키지 목록과 Stripe price 매핑
type Catalog struct {
	plans    []Plan
	packages []Package
}

// NewCatalog - prices는 plan/package id → Stripe price id
func NewCatalog(prices map[string]string) *Catalog {
	priceFor := func(id string) *string {
		if p, ok := prices[id]; ok && p != "" {
			return &p
		}
		return nil
	}

	return &Catalog{
		plans: []Plan{
			{ID: model.PlanFree, Name: "Free", Price: 0, Credits: model.FreePlanCredits,
				Features: []string{"Basic comic generation", "Standard quality"}},
			{ID: "starter", Name: "Starter", Price: 499, Credits: 500, PriceID: priceFor("starter"),
				Features: []string{"High-quality generation", "Priority support"}},
			{ID: "pro", Name: "Pro", Price: 999, Credits: 1200, PriceID: priceFor("pro"),
				Features: []string{"Premium features", "Advanced voice", "Custom training"}},
			{ID: "creator", Name: "Creator", Price: 1999, Credits: 2800, PriceID: priceFor("creator"),
				Features: []string{"All Pro features", "Enhanced capabilities"}},
			{ID: "content_machine", Name: "Content Machine", Price: 4999, Credits: 8000, PriceID: priceFor("content_machine"),
				Features: []string{"Maximum credits", "All premium features"}},
		},
		packages: []Package{
			{ID: "credits_50", Credits: 50, PriceID: priceFor("credits_50")},
			{ID: "credits_120", Credits: 120, PriceID: priceFor("credits_120")},
			{ID: "credits_280", Credits: 280, PriceID: priceFor("credits_280")},
			{ID: "credits_800", Credits: 800, PriceID: priceFor("credits_800")},
		},
	}
}

func (c *Catalog) Plans() []Plan       { return c.plans }
func (c *Catalog) Packages() []Package { return c.packages }

// PlanByPrice - Stripe price id로 유료 플랜 조회
func (c *Catalog) PlanByPrice(priceID string) (Plan, bool) {
	for _, p := range c.plans {
		if p.PriceID != nil && *p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// Package - 패키지 id로 조회
func (c *Catalog) Package(id string) (Package, bool) {
	for _, p := range c.packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}
