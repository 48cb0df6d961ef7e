package teams

import (
	"errors"
	"time"

	"github.com/platinummonkey/mediahub/pkg/auth"
)

// GiB is the unit every plan limit is expressed in
const GiB int64 = 1 << 30

// Plan represents a subscription tier
type Plan string

const (
	PlanFree Plan = "free"
	PlanPlus Plan = "plus"
	PlanPro  Plan = "pro"
)

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPlus, PlanPro:
		return true
	}
	return false
}

// SubscriptionStatus mirrors the billing provider's subscription status
type SubscriptionStatus string

const (
	StatusNone              SubscriptionStatus = ""
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
)

// Terminal reports whether the status forfeits any paid plan
func (s SubscriptionStatus) Terminal() bool {
	switch s {
	case StatusCanceled, StatusIncompleteExpired, StatusUnpaid:
		return true
	}
	return false
}

// Team is the entitlement record of a team
type Team struct {
	ID                   string             `json:"team_id"`
	Name                 string             `json:"team_name"`
	Code                 string             `json:"team_code,omitempty"`
	Plan                 Plan               `json:"plan"`
	StorageLimitBytes    *int64             `json:"storage_limit_bytes,omitempty"`
	StorageLimitGB       *int64             `json:"storage_limit_gb,omitempty"`
	UsedBytes            int64              `json:"used_bytes"`
	SubscriptionStatus   SubscriptionStatus `json:"subscription_status,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAt             *time.Time         `json:"cancel_at,omitempty"`
	PastDueSince         *time.Time         `json:"past_due_since,omitempty"`
	StripeCustomerID     string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string             `json:"stripe_price_id,omitempty"`
	LastEventAt          *time.Time         `json:"last_event_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	DeletedAt            *time.Time         `json:"deleted_at,omitempty"`
}

// Deleted reports whether the team was soft-deleted
func (t *Team) Deleted() bool {
	return t.DeletedAt != nil
}

// EffectiveLimitBytes prefers the byte limit, falls back to the legacy GB figure,
// and finally to the free plan limit
func (t *Team) EffectiveLimitBytes() int64 {
	if t.StorageLimitBytes != nil {
		return *t.StorageLimitBytes
	}
	if t.StorageLimitGB != nil {
		return *t.StorageLimitGB * GiB
	}
	return LimitForPlan(PlanFree)
}

// Member links a user account to a team with a role
type Member struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	Role     auth.Role `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

var (
	ErrTeamNotFound           = errors.New("team not found")
	ErrNotMember              = errors.New("user is not a member of the team")
	ErrInvalidSize            = errors.New("size must be positive")
	ErrTooLarge               = errors.New("file too large")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrInvalidTeamName        = errors.New("team name is required")
	ErrInvalidTeamCode        = errors.New("invalid team code format")
	ErrTeamCodeTaken          = errors.New("team code already in use")
)
