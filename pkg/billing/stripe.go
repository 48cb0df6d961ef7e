package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// DefaultSignatureTolerance is how old a signed webhook timestamp may be
const DefaultSignatureTolerance = 300 * time.Second

// StripeVerifier checks Stripe-Signature headers
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewStripeVerifier creates a verifier for one webhook endpoint secret
func NewStripeVerifier(secret string, tolerance time.Duration) *StripeVerifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &StripeVerifier{secret: secret, tolerance: tolerance}
}

// ConstructEvent verifies the signature and parses the event envelope.
// Any failure, including a missing header, is ErrInvalidSignature.
func (v *StripeVerifier) ConstructEvent(payload []byte, signature string) (*Event, error) {
	if v.secret == "" {
		return nil, ErrNotConfigured
	}
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: evt.ID, Type: string(evt.Type), Created: time.Unix(evt.Created, 0).UTC()}
	if evt.Data != nil {
		event.Object = evt.Data.Raw
	}
	return event, nil
}

// StripeProvider talks to the Stripe API
type StripeProvider struct {
	*StripeVerifier
	api *client.API
}

// NewStripeProvider creates a provider with its own API client. A zero tolerance
// uses DefaultSignatureTolerance.
func NewStripeProvider(secretKey, webhookSecret string, tolerance time.Duration) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{StripeVerifier: NewStripeVerifier(webhookSecret, tolerance), api: api}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetSubscription fetches a subscription with its prices expanded
func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (snap *SubscriptionSnapshot, err error) {
	ctx, span := startSpan(ctx, "stripe.GetSubscription", attribute.String("stripe.subscription_id", subscriptionID))
	defer func() { endSpan(span, err) }()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return SnapshotFromStripe(sub), nil
}

// CreateCheckoutSession creates a subscription checkout and returns its URL.
// The team id is written to both session and subscription metadata.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (url string, err error) {
	ctx, span := startSpan(ctx, "stripe.CreateCheckoutSession", attribute.String("team_id", req.TeamID))
	defer func() { endSpan(span, err) }()

	metadata := map[string]string{"team_id": req.TeamID, "tier": string(req.Plan)}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.TeamID),
		Metadata:          metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"team_id": req.TeamID, "tier": string(req.Plan)},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

// UpdateSubscriptionPrice moves the subscription's first item to priceID
func (p *StripeProvider) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (snap *SubscriptionSnapshot, err error) {
	current, err := p.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if current.ItemID == "" {
		return nil, fmt.Errorf("subscription %s has no items", subscriptionID)
	}

	ctx, span := startSpan(ctx, "stripe.UpdateSubscription", attribute.String("stripe.subscription_id", subscriptionID))
	defer func() { endSpan(span, err) }()

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(current.ItemID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return SnapshotFromStripe(sub), nil
}

// CreatePortalSession returns a customer portal URL
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error) {
	ctx, span := startSpan(ctx, "stripe.CreatePortalSession")
	defer func() { endSpan(span, err) }()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess.URL, nil
}

// SnapshotFromStripe copies the fields the reconciler reads. Period end comes from the first item.
func SnapshotFromStripe(sub *stripe.Subscription) *SubscriptionSnapshot {
	snap := &SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            teams.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		snap.ItemID = item.ID
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
		snap.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
	}
	snap.CancelAt = unixPtr(sub.CancelAt)
	return snap
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
