package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// Store implements every persistence interface on one database
type Store struct {
	db     *sql.DB
	reader func() *sql.DB
}

var (
	_ auth.TokenStore   = (*Store)(nil)
	_ auth.UserStore    = (*Store)(nil)
	_ auth.CodeStore    = (*Store)(nil)
	_ teams.Store       = (*Store)(nil)
	_ teams.MemberStore = (*Store)(nil)
	_ teams.UsageIndex  = (*Store)(nil)
	_ media.Store       = (*Store)(nil)
	_ billing.Ledger    = (*Store)(nil)
)

// NewStore creates a store that reads and writes through db
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, reader: func() *sql.DB { return db }}
}

// WithReplicas routes listing queries to the manager's read replicas
func (s *Store) WithReplicas(cm *ConnectionManager) *Store {
	clone := *s
	clone.reader = cm.Replica
	return &clone
}

type scanner interface {
	Scan(dest ...any) error
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// exists reports whether a row matching query exists
func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}
