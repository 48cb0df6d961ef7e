package billing

import "context"

// Ledger remembers which webhook events were already processed
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, entry *LedgerEntry) error
	// Release forgets an event whose effects failed to apply, so a redelivery is processed
	Release(ctx context.Context, eventID string) error
}
