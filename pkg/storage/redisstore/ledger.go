package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/mediahub/pkg/billing"
)

// DefaultLedgerTTL outlives Stripe's three day retry window by a wide margin
const DefaultLedgerTTL = 30 * 24 * time.Hour

var _ billing.Ledger = (*Ledger)(nil)

// Ledger keeps processed webhook event ids as expiring keys
type Ledger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLedger creates a ledger. Zero ttl means DefaultLedgerTTL.
func NewLedger(client *redis.Client, prefix string, ttl time.Duration) *Ledger {
	if prefix == "" {
		prefix = "billing:event"
	}
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &Ledger{client: client, prefix: prefix, ttl: ttl}
}

func (l *Ledger) key(eventID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, eventID)
}

func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

// Record stores the entry unless the event id is already present
func (l *Ledger) Record(ctx context.Context, entry *billing.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	if err := l.client.SetNX(ctx, l.key(entry.EventID), data, l.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, l.key(eventID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Entry returns the stored entry, or nil when the event was never recorded
func (l *Ledger) Entry(ctx context.Context, eventID string) (*billing.LedgerEntry, error) {
	data, err := l.client.Get(ctx, l.key(eventID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry billing.LedgerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
	}
	return &entry, nil
}
