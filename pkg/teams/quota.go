package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RejectReason identifies why an upload was not admitted
type RejectReason string

const (
	ReasonNone                 RejectReason = ""
	ReasonStorageLimitExceeded RejectReason = "STORAGE_LIMIT_EXCEEDED"
	ReasonPaymentPastDue       RejectReason = "PAYMENT_PAST_DUE"
)

// Decision is the outcome of a quota check. A rejection is a value, not an error.
type Decision struct {
	Admitted   bool
	Reason     RejectReason
	UsedBytes  int64
	LimitBytes int64
	Message    string
}

// Err converts a rejected decision into a *QuotaError, and returns nil when admitted
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return &QuotaError{Reason: d.Reason, Current: d.UsedBytes, Limit: d.LimitBytes, Message: d.Message}
}

// QuotaError represents a rejected upload
type QuotaError struct {
	Reason  RejectReason
	Current int64
	Limit   int64
	Message string
}

func (e *QuotaError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "quota exceeded: " + string(e.Reason)
}

// IsQuotaExceeded checks if an error is a quota rejection
func IsQuotaExceeded(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// QuotaConfig holds the upload admission policy
type QuotaConfig struct {
	AllowedContentTypes []string
	MaxUploadBytes      int64
	GracePeriod         time.Duration
}

// DefaultQuotaConfig returns the policy used in production
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		AllowedContentTypes: []string{"image/jpeg", "image/png", "image/heic", "video/mp4", "video/quicktime"},
		MaxUploadBytes:      300 * 1024 * 1024,
		GracePeriod:         7 * 24 * time.Hour,
	}
}

// QuotaGate decides whether a team may start an upload
type QuotaGate struct {
	store   Store
	config  QuotaConfig
	allowed map[string]struct{}
	now     func() time.Time
}

// NewQuotaGate creates a gate reading team records from store
func NewQuotaGate(store Store, config QuotaConfig) *QuotaGate {
	allowed := make(map[string]struct{}, len(config.AllowedContentTypes))
	for _, ct := range config.AllowedContentTypes {
		allowed[strings.ToLower(strings.TrimSpace(ct))] = struct{}{}
	}
	return &QuotaGate{store: store, config: config, allowed: allowed, now: time.Now}
}

// WithClock returns a copy of the gate using now as its clock
func (g *QuotaGate) WithClock(now func() time.Time) *QuotaGate {
	clone := *g
	clone.now = now
	return &clone
}

// ContentTypeAllowed reports whether uploads of contentType are accepted
func (g *QuotaGate) ContentTypeAllowed(contentType string) bool {
	_, ok := g.allowed[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

// CheckObject applies the per-object policy: positive size, allowed content type,
// and the single upload cap. It does not look at the team.
func (g *QuotaGate) CheckObject(size int64, contentType string) error {
	if size <= 0 {
		return ErrInvalidSize
	}
	if !g.ContentTypeAllowed(contentType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	if g.config.MaxUploadBytes > 0 && size > g.config.MaxUploadBytes {
		return ErrTooLarge
	}
	return nil
}

// AdmitUpload validates the request and evaluates it against the team's current record.
// Only malformed input and store failures are returned as errors.
func (g *QuotaGate) AdmitUpload(ctx context.Context, teamID string, size int64, contentType string) (Decision, error) {
	if err := g.CheckObject(size, contentType); err != nil {
		return Decision{}, err
	}

	team, err := g.store.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, ErrTeamNotFound) {
			return Decision{}, err
		}
		return Decision{}, fmt.Errorf("failed to get team: %w", err)
	}

	return Evaluate(team, size, g.now(), g.config.GracePeriod), nil
}

// Evaluate applies the grace rule then the byte rule. used + size == limit admits.
func Evaluate(team *Team, size int64, now time.Time, grace time.Duration) Decision {
	limit := team.EffectiveLimitBytes()
	used := team.UsedBytes
	decision := Decision{UsedBytes: used, LimitBytes: limit}

	if team.SubscriptionStatus == StatusPastDue && team.PastDueSince != nil &&
		now.Sub(*team.PastDueSince) > grace {
		decision.Reason = ReasonPaymentPastDue
		decision.Message = "Payment is past due. Update your billing details to keep uploading."
		return decision
	}

	if used+size > limit {
		decision.Reason = ReasonStorageLimitExceeded
		decision.Message = fmt.Sprintf("Storage limit exceeded (%.2fGB / %dGB)",
			float64(used)/float64(GiB), limit/GiB)
		return decision
	}

	decision.Admitted = true
	return decision
}
