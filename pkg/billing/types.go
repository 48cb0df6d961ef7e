package billing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/platinummonkey/mediahub/pkg/teams"
)

// Outcome is the result of processing one webhook event
type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Event types the reconciler acts on
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoicePaid          = "invoice.paid"
)

// Event is a verified webhook event
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
}

// Result describes what ApplyWebhook did
type Result struct {
	Outcome   Outcome `json:"outcome"`
	EventID   string  `json:"event_id,omitempty"`
	EventType string  `json:"event_type,omitempty"`
	TeamID    string  `json:"team_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Handled reports whether the event changed an entitlement
func (r Result) Handled() bool {
	return r.Outcome == OutcomeHandled
}

// SubscriptionSnapshot is the subset of a provider subscription the reconciler reads
type SubscriptionSnapshot struct {
	ID                string
	Status            teams.SubscriptionStatus
	CustomerID        string
	PriceID           string
	ItemID            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
	Metadata          map[string]string
}

// TeamID returns the team id embedded in the subscription metadata
func (s *SubscriptionSnapshot) TeamID() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata["team_id"]
}

// LedgerEntry marks a webhook event as processed
type LedgerEntry struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook payload")
	ErrUnknownPlan      = errors.New("plan is not purchasable")
	ErrNoSubscription   = errors.New("team has no active subscription")
	ErrNoCustomer       = errors.New("team has no billing customer")
	ErrNotConfigured    = errors.New("billing is not configured")
)
