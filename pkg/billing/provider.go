package billing

import (
	"context"

	"github.com/platinummonkey/mediahub/pkg/teams"
)

// EventVerifier authenticates a raw webhook body against its signature header
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (*Event, error)
}

// SubscriptionFetcher reads live subscription state from the provider
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
}

// CheckoutRequest describes a hosted checkout for a paid plan
type CheckoutRequest struct {
	TeamID        string
	Plan          teams.Plan
	PriceID       string
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Provider is the billing provider used by the reconciler and the billing service
type Provider interface {
	EventVerifier
	SubscriptionFetcher
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	// UpdateSubscriptionPrice swaps the price of the subscription's first item with prorations
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*SubscriptionSnapshot, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
