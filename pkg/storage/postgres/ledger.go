package postgres

import (
	"context"
	"fmt"

	"github.com/platinummonkey/mediahub/pkg/billing"
)

func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM billing_events WHERE event_id = $1)`, eventID)
}

func (s *Store) Record(ctx context.Context, e *billing.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_events (event_id, event_type, processed_at) VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`, e.EventID, e.EventType, e.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to record billing event: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, eventID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM billing_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to release billing event: %w", err)
	}
	return nil
}
