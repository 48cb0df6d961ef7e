// Package billing reconciles Stripe subscriptions into team entitlements.
//
// # Overview
//
// Stripe is the source of truth for what a team pays for. Webhooks arrive at least once
// and in any order; the Reconciler verifies each one, deduplicates it through a Ledger,
// and rewrites the team's plan, limits and grace state from the subscription snapshot.
//
// # Subscription Plans
//
// Free: 10 GiB, no subscription
//
// Plus: 50 GiB (price STRIPE_PRICE_50GB)
//
// Pro: 200 GiB (price STRIPE_PRICE_200GB)
//
// Canceled, incomplete_expired and unpaid subscriptions always fall back to free.
//
// # Usage Example
//
// Handle a webhook:
//
//	result, err := reconciler.ApplyWebhook(ctx, payload, r.Header.Get("Stripe-Signature"))
//	switch {
//	case errors.Is(err, billing.ErrInvalidSignature):
//		// 400, Stripe will not retry
//	case err != nil:
//		// 500, Stripe retries
//	}
//
// Start a checkout:
//
//	url, err := service.Checkout(ctx, team, teams.PlanPlus, user.Email)
//
// # Related Packages
//
//   - pkg/teams: entitlement records and quota enforcement
package billing
