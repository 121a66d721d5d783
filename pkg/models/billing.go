package models

import "time"

// Tier is a named subscription plan.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// TierAllowance is the monthly credit allowance per tier. Every transition
// that sets a balance reads from this table.
var TierAllowance = map[Tier]int{
	TierFree:       5,
	TierStarter:    100,
	TierPro:        250,
	TierEnterprise: 800,
}

// Tiers lists the plans in display order.
var Tiers = []Tier{TierFree, TierStarter, TierPro, TierEnterprise}

// ParseTier returns the tier for s and whether s named a known tier.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	_, ok := TierAllowance[t]
	return t, ok
}

// Allowance returns the monthly credits for the tier, falling back to
// the free allowance for unknown tiers.
func (t Tier) Allowance() int {
	if n, ok := TierAllowance[t]; ok {
		return n
	}
	return TierAllowance[TierFree]
}

// OrFree returns t if it is a known tier, otherwise free.
func (t Tier) OrFree() Tier {
	if _, ok := TierAllowance[t]; ok {
		return t
	}
	return TierFree
}

// SubscriptionStatus is the local subscription state.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is the per-user billing record.
type Subscription struct {
	UserID               string             `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Tier                 Tier               `gorm:"type:varchar(20);not null" json:"tier"`
	Status               SubscriptionStatus `gorm:"type:varchar(20);not null" json:"status"`
	StripeCustomerID     *string            `gorm:"type:varchar(191);index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string            `gorm:"type:varchar(191);index" json:"stripe_subscription_id,omitempty"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `gorm:"not null" json:"cancel_at_period_end"`
	UpdatedAt            time.Time          `gorm:"autoUpdateTime:false;not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Credits is the per-user consumable balance.
type Credits struct {
	UserID           string     `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Balance          int        `gorm:"not null" json:"balance"`
	MonthlyAllowance int        `gorm:"not null" json:"monthly_allowance"`
	Tier             Tier       `gorm:"type:varchar(20);not null" json:"tier"`
	LastResetAt      *time.Time `json:"last_reset_at,omitempty"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime:false;not null" json:"updated_at"`
}

func (Credits) TableName() string { return "credits" }

// AckResponse acknowledges a webhook delivery
type AckResponse struct {
	Received bool `json:"received"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BillingStatusResponse is the signed-in user's current plan and balance
type BillingStatusResponse struct {
	UserID       string        `json:"user_id"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Credits      *Credits      `json:"credits,omitempty"`
}

// PricingTier represents a pricing tier with details
type PricingTier struct {
	Name           string   `json:"name"`
	MonthlyCredits int      `json:"monthly_credits"`
	Description    string   `json:"description"`
	Features       []string `json:"features"`
}

// PricingResponse represents pricing information
type PricingResponse struct {
	Tiers []PricingTier `json:"tiers"`
}
