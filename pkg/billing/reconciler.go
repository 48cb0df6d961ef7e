package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stripe/stripe-go/v82"

	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// DefaultSubscriptionCacheSize bounds the subscription to team cache
const DefaultSubscriptionCacheSize = 4096

// Reconciler applies verified billing events to team entitlements
type Reconciler struct {
	verifier EventVerifier
	fetcher  SubscriptionFetcher
	store    teams.Store
	ledger   Ledger
	prices   *teams.PriceTable
	index    *lru.Cache[string, string]
	now      func() time.Time
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithReconcilerClock overrides the clock used for past_due_since
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a reconciler. cacheSize bounds the subscription lookup cache.
func NewReconciler(verifier EventVerifier, fetcher SubscriptionFetcher, store teams.Store, ledger Ledger,
	prices *teams.PriceTable, cacheSize int, opts ...ReconcilerOption) (*Reconciler, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSubscriptionCacheSize
	}
	index, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription cache: %w", err)
	}

	r := &Reconciler{
		verifier: verifier,
		fetcher:  fetcher,
		store:    store,
		ledger:   ledger,
		prices:   prices,
		index:    index,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ApplyWebhook verifies, deduplicates and applies one webhook delivery.
// Signature and payload problems return ErrInvalidSignature or ErrMalformedEvent.
// Any other error means the entitlement was not written and the delivery should be retried.
func (r *Reconciler) ApplyWebhook(ctx context.Context, payload []byte, signature string) (Result, error) {
	event, err := r.verifier.ConstructEvent(payload, signature)
	if err != nil {
		return Result{}, err
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})
	result := Result{EventID: event.ID, EventType: event.Type}

	seen, err := r.ledger.Seen(ctx, event.ID)
	if err != nil {
		logger.WithError(err).Warn("Failed to read billing ledger, processing event anyway")
	} else if seen {
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	entry := &LedgerEntry{EventID: event.ID, EventType: event.Type, ProcessedAt: r.now().UTC()}
	if err := r.ledger.Record(ctx, entry); err != nil {
		logger.WithError(err).Warn("Failed to write billing ledger, processing event anyway")
	}

	applied, err := r.dispatch(ctx, event)
	if err != nil {
		if !errors.Is(err, ErrMalformedEvent) {
			if relErr := r.ledger.Release(ctx, event.ID); relErr != nil {
				logger.WithError(relErr).Warn("Failed to release billing ledger entry")
			}
		}
		return result, err
	}

	result.Outcome = applied.Outcome
	result.TeamID = applied.TeamID
	result.Reason = applied.Reason
	if applied.Outcome == OutcomeIgnored && applied.Reason != "" {
		logger.WithField("reason", applied.Reason).Info("Billing event ignored")
	}
	return result, nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *Event) (Result, error) {
	switch event.Type {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Object, &cs); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if cs.Mode != stripe.CheckoutSessionModeSubscription || cs.Subscription == nil || cs.Subscription.ID == "" {
			return Result{Outcome: OutcomeIgnored, Reason: "not a subscription checkout"}, nil
		}
		snap, err := r.fetcher.GetSubscription(ctx, cs.Subscription.ID)
		if err != nil {
			return Result{}, err
		}
		if snap.TeamID() == "" {
			teamID := cs.Metadata["team_id"]
			if teamID == "" {
				teamID = cs.ClientReferenceID
			}
			if teamID != "" {
				if snap.Metadata == nil {
					snap.Metadata = map[string]string{}
				}
				snap.Metadata["team_id"] = teamID
			}
		}
		return r.ApplySubscriptionUpdate(ctx, snap, "", event.Created)

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Object, &sub); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return r.ApplySubscriptionUpdate(ctx, SnapshotFromStripe(&sub), "", event.Created)

	case EventInvoicePaymentFailed, EventInvoicePaid:
		var inv invoicePayload
		if err := json.Unmarshal(event.Object, &inv); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		subID := inv.subscriptionID()
		if subID == "" {
			return Result{Outcome: OutcomeIgnored, Reason: "invoice has no subscription"}, nil
		}
		snap, err := r.fetcher.GetSubscription(ctx, subID)
		if err != nil {
			return Result{}, err
		}
		override := teams.StatusActive
		if event.Type == EventInvoicePaymentFailed {
			override = teams.StatusPastDue
		}
		return r.ApplySubscriptionUpdate(ctx, snap, override, event.Created)
	}

	return Result{Outcome: OutcomeIgnored, Reason: "unhandled event type"}, nil
}

// ApplySubscriptionUpdate rewrites a team's entitlement from a subscription snapshot.
// override replaces the snapshot status when non-empty. eventAt is the provider's event time;
// an event older than the last one applied to the team is ignored. A zero eventAt skips that check.
func (r *Reconciler) ApplySubscriptionUpdate(ctx context.Context, snap *SubscriptionSnapshot, override teams.SubscriptionStatus, eventAt time.Time) (Result, error) {
	teamID, err := r.resolveTeamID(ctx, snap)
	if err != nil {
		return Result{}, err
	}
	if teamID == "" {
		return Result{Outcome: OutcomeIgnored, Reason: "no team for subscription"}, nil
	}

	status := override
	if status == "" {
		status = snap.Status
	}

	plan, limit := r.prices.PlanForPrice(snap.PriceID)
	if status.Terminal() {
		plan, limit = teams.PlanFree, teams.LimitForPlan(teams.PlanFree)
	}

	team, err := r.store.GetTeam(ctx, teamID)
	if errors.Is(err, teams.ErrTeamNotFound) {
		r.index.Remove(snap.ID)
		return Result{Outcome: OutcomeIgnored, TeamID: teamID, Reason: "team not found"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to get team: %w", err)
	}

	if !eventAt.IsZero() && team.LastEventAt != nil && eventAt.Before(*team.LastEventAt) {
		return Result{Outcome: OutcomeIgnored, TeamID: teamID, Reason: "stale event"}, nil
	}

	update := teams.TeamUpdate{
		Plan:               teams.Set(plan),
		StorageLimitBytes:  teams.Set(limit),
		StorageLimitGB:     teams.Set(limit / teams.GiB),
		SubscriptionStatus: teams.Set(status),
		CancelAtPeriodEnd:  teams.Set(snap.CancelAtPeriodEnd),
		CurrentPeriodEnd:   teams.SetOrRemove(snap.CurrentPeriodEnd),
		CancelAt:           teams.SetOrRemove(snap.CancelAt),
	}
	if snap.CustomerID != "" {
		update.StripeCustomerID = teams.Set(snap.CustomerID)
	}
	if snap.ID != "" {
		update.StripeSubscriptionID = teams.Set(snap.ID)
	}
	if snap.PriceID != "" {
		update.StripePriceID = teams.Set(snap.PriceID)
	} else {
		update.StripePriceID = teams.Remove[string]()
	}
	if !eventAt.IsZero() {
		update.LastEventAt = teams.Set(eventAt.UTC())
	}

	if status == teams.StatusPastDue {
		if team.PastDueSince == nil {
			// A concurrent writer that already set it wins; the clock keeps its first value.
			if _, err := r.store.SetPastDueSinceIfUnset(ctx, teamID, r.now().UTC()); err != nil {
				return Result{}, fmt.Errorf("failed to set past_due_since: %w", err)
			}
		}
	} else {
		update.PastDueSince = teams.Remove[time.Time]()
	}

	if err := r.store.UpdateTeam(ctx, teamID, update); err != nil {
		return Result{}, fmt.Errorf("failed to update team entitlements: %w", err)
	}

	return Result{Outcome: OutcomeHandled, TeamID: teamID}, nil
}

func (r *Reconciler) resolveTeamID(ctx context.Context, snap *SubscriptionSnapshot) (string, error) {
	if teamID := snap.TeamID(); teamID != "" {
		if snap.ID != "" {
			r.index.Add(snap.ID, teamID)
		}
		return teamID, nil
	}
	if snap.ID == "" {
		return "", nil
	}
	if teamID, ok := r.index.Get(snap.ID); ok {
		return teamID, nil
	}

	team, err := r.store.FindBySubscription(ctx, snap.ID)
	if errors.Is(err, teams.ErrTeamNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find team by subscription: %w", err)
	}
	r.index.Add(snap.ID, team.ID)
	return team.ID, nil
}
