package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBSink writes audit events to PostgreSQL
type DBSink struct {
	db *sql.DB
}

// NewDBSink creates a database-backed sink and ensures its table exists
func NewDBSink(ctx context.Context, db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	sink := &DBSink{db: db}
	if err := sink.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return sink, nil
}

func (s *DBSink) ensureTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		team_id TEXT NOT NULL,
		sk TEXT NOT NULL,
		event_id UUID NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		action VARCHAR(64) NOT NULL,
		subject_hash CHAR(64),
		ip_hash CHAR(64),
		ua_hash CHAR(64),
		request_id VARCHAR(100),
		meta JSONB,
		PRIMARY KEY (team_id, sk)
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Write inserts one event
func (s *DBSink) Write(ctx context.Context, event *Event) error {
	var meta []byte
	if event.Meta != nil {
		var err error
		meta, err = json.Marshal(event.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal meta: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (team_id, sk, event_id, ts, action, subject_hash, ip_hash, ua_hash, request_id, meta)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.TeamID, event.SortKey(), event.EventID, event.Timestamp, string(event.Action),
		event.SubjectHash, event.IPHash, event.UAHash, event.RequestID, meta,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
