package billing

import (
	"context"
	"fmt"

	"github.com/platinummonkey/mediahub/pkg/teams"
)

// ServiceConfig holds the URLs Stripe redirects back to
type ServiceConfig struct {
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// Service starts checkouts, changes plans and opens the customer portal
type Service struct {
	provider Provider
	prices   *teams.PriceTable
	config   ServiceConfig
}

// NewService creates a billing service. provider may be nil when billing is disabled.
func NewService(provider Provider, prices *teams.PriceTable, config ServiceConfig) *Service {
	return &Service{provider: provider, prices: prices, config: config}
}

func (s *Service) priceFor(plan teams.Plan) (string, error) {
	if s.provider == nil {
		return "", ErrNotConfigured
	}
	price, ok := s.prices.PriceForPlan(plan)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	return price, nil
}

// Checkout creates a hosted checkout for a paid plan and returns its URL
func (s *Service) Checkout(ctx context.Context, team *teams.Team, plan teams.Plan, email string) (string, error) {
	price, err := s.priceFor(plan)
	if err != nil {
		return "", err
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		TeamID:        team.ID,
		Plan:          plan,
		PriceID:       price,
		CustomerID:    team.StripeCustomerID,
		CustomerEmail: email,
		SuccessURL:    s.config.SuccessURL,
		CancelURL:     s.config.CancelURL,
	})
}

// Upgrade moves an existing subscription to another paid plan with prorations.
// The entitlement itself changes when the resulting webhook arrives.
func (s *Service) Upgrade(ctx context.Context, team *teams.Team, plan teams.Plan) (*SubscriptionSnapshot, error) {
	price, err := s.priceFor(plan)
	if err != nil {
		return nil, err
	}
	if team.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	return s.provider.UpdateSubscriptionPrice(ctx, team.StripeSubscriptionID, price)
}

// Portal returns a customer portal URL for the team's billing customer
func (s *Service) Portal(ctx context.Context, team *teams.Team) (string, error) {
	if s.provider == nil {
		return "", ErrNotConfigured
	}
	if team.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.provider.CreatePortalSession(ctx, team.StripeCustomerID, s.config.PortalReturnURL)
}
