package domain

import "time"

// SubscriptionTier represents a paid plan level.
type SubscriptionTier string

// Subscription tiers.
const (
	TierFree    SubscriptionTier = "free"
	TierPremium SubscriptionTier = "premium"
)

// SubscriptionStatus represents the billing state of a subscription.
type SubscriptionStatus string

// Subscription statuses.
const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription represents a user's paid plan, driven entirely by payment
// provider webhooks. It is keyed by the provider's subscription id and
// linked to a user via the checkout passthrough payload.
type Subscription struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	CustomerID         string             `json:"customer_id"`
	Tier               SubscriptionTier   `json:"tier"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
