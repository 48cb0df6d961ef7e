package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

const (
	uniqueViolation = "23505"
	teamCodeIndex   = "teams_code_idx"
)

const teamColumns = `team_id, team_name, plan, storage_limit_bytes, storage_limit_gb, used_bytes,
	subscription_status, cancel_at_period_end, current_period_end, cancel_at, past_due_since,
	stripe_customer_id, stripe_subscription_id, stripe_price_id, last_event_at, created_at,
	team_code, deleted_at`

func scanTeam(row scanner) (*teams.Team, error) {
	var (
		t                                    teams.Team
		plan, status                         string
		code                                 sql.NullString
		limitBytes, limitGB                  sql.NullInt64
		periodEnd, cancelAt, pastDue, lastEv sql.NullTime
		deletedAt                            sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Name, &plan, &limitBytes, &limitGB, &t.UsedBytes,
		&status, &t.CancelAtPeriodEnd, &periodEnd, &cancelAt, &pastDue,
		&t.StripeCustomerID, &t.StripeSubscriptionID, &t.StripePriceID, &lastEv, &t.CreatedAt,
		&code, &deletedAt)
	if err != nil {
		return nil, err
	}
	t.Plan = teams.Plan(plan)
	t.SubscriptionStatus = teams.SubscriptionStatus(status)
	t.StorageLimitBytes = int64Ptr(limitBytes)
	t.StorageLimitGB = int64Ptr(limitGB)
	t.CurrentPeriodEnd = timePtr(periodEnd)
	t.CancelAt = timePtr(cancelAt)
	t.PastDueSince = timePtr(pastDue)
	t.LastEventAt = timePtr(lastEv)
	t.Code = code.String
	t.DeletedAt = timePtr(deletedAt)
	return &t, nil
}

func (s *Store) CreateTeam(ctx context.Context, t *teams.Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (`+teamColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULLIF($17, ''), $18)`,
		t.ID, t.Name, string(t.Plan), t.StorageLimitBytes, t.StorageLimitGB, t.UsedBytes,
		string(t.SubscriptionStatus), t.CancelAtPeriodEnd, nullTimePtr(t.CurrentPeriodEnd), nullTimePtr(t.CancelAt),
		nullTimePtr(t.PastDueSince), t.StripeCustomerID, t.StripeSubscriptionID, t.StripePriceID,
		nullTimePtr(t.LastEventAt), t.CreatedAt, t.Code, nullTimePtr(t.DeletedAt))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == teamCodeIndex {
		return teams.ErrTeamCodeTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, teamID string) (*teams.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE team_id = $1`, teamID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, teams.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return t, nil
}

// assignments accumulates a SET clause and its arguments
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) add(col string, v any) {
	a.args = append(a.args, v)
	a.cols = append(a.cols, fmt.Sprintf("%s = $%d", col, len(a.args)))
}

// addValue writes a NOT NULL column. Remove stores the zero value.
func addValue[T any](a *assignments, col string, f teams.Field[T], conv func(T) any) {
	switch {
	case f.IsSet():
		a.add(col, conv(f.Value()))
	case f.IsRemove():
		var zero T
		a.add(col, conv(zero))
	}
}

// addNullable writes a nullable column. Remove stores NULL.
func addNullable[T any](a *assignments, col string, f teams.Field[T]) {
	switch {
	case f.IsSet():
		a.add(col, f.Value())
	case f.IsRemove():
		a.add(col, nil)
	}
}

func asString[T ~string](v T) any { return string(v) }
func asAny[T any](v T) any        { return v }

func (s *Store) UpdateTeam(ctx context.Context, teamID string, u teams.TeamUpdate) error {
	a := &assignments{}
	addValue(a, "team_name", u.Name, asString[string])
	addValue(a, "plan", u.Plan, asString[teams.Plan])
	addNullable(a, "storage_limit_bytes", u.StorageLimitBytes)
	addNullable(a, "storage_limit_gb", u.StorageLimitGB)
	addValue(a, "subscription_status", u.SubscriptionStatus, asString[teams.SubscriptionStatus])
	addValue(a, "cancel_at_period_end", u.CancelAtPeriodEnd, asAny[bool])
	addNullable(a, "current_period_end", u.CurrentPeriodEnd)
	addNullable(a, "cancel_at", u.CancelAt)
	addNullable(a, "past_due_since", u.PastDueSince)
	addValue(a, "stripe_customer_id", u.StripeCustomerID, asString[string])
	addValue(a, "stripe_subscription_id", u.StripeSubscriptionID, asString[string])
	addValue(a, "stripe_price_id", u.StripePriceID, asString[string])
	addNullable(a, "last_event_at", u.LastEventAt)
	addNullable(a, "deleted_at", u.DeletedAt)

	if len(a.cols) == 0 {
		return nil
	}

	a.args = append(a.args, teamID)
	query := fmt.Sprintf(`UPDATE teams SET %s WHERE team_id = $%d`, strings.Join(a.cols, ", "), len(a.args))
	res, err := s.db.ExecContext(ctx, query, a.args...)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return teams.ErrTeamNotFound
	}
	return nil
}

func (s *Store) SetPastDueSinceIfUnset(ctx context.Context, teamID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE teams SET past_due_since = $2 WHERE team_id = $1 AND past_due_since IS NULL`, teamID, at)
	if err != nil {
		return false, fmt.Errorf("failed to set past_due_since: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	found, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE team_id = $1)`, teamID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, teams.ErrTeamNotFound
	}
	return false, nil
}

func (s *Store) FindBySubscription(ctx context.Context, subscriptionID string) (*teams.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE stripe_subscription_id = $1 LIMIT 1`, subscriptionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, teams.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team by subscription: %w", err)
	}
	return t, nil
}

func (s *Store) FindByCode(ctx context.Context, code string) (*teams.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE team_code = $1 AND deleted_at IS NULL`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, teams.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team by code: %w", err)
	}
	return t, nil
}

func (s *Store) IncrementUsedBytes(ctx context.Context, teamID string, delta int64) error {
	return s.execTeam(ctx, `UPDATE teams SET used_bytes = GREATEST(used_bytes + $2, 0) WHERE team_id = $1`, teamID, delta)
}

func (s *Store) SetUsedBytes(ctx context.Context, teamID string, usedBytes int64) error {
	return s.execTeam(ctx, `UPDATE teams SET used_bytes = GREATEST($2, 0) WHERE team_id = $1`, teamID, usedBytes)
}

func (s *Store) execTeam(ctx context.Context, query, teamID string, arg any) error {
	res, err := s.db.ExecContext(ctx, query, teamID, arg)
	if err != nil {
		return fmt.Errorf("failed to update used bytes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return teams.ErrTeamNotFound
	}
	return nil
}

func (s *Store) ListTeamIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT team_id FROM teams ORDER BY team_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, m *teams.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		m.TeamID, m.UserID, string(m.Role), m.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func scanMember(row scanner) (*teams.Member, error) {
	var (
		m    teams.Member
		role string
	)
	if err := row.Scan(&m.TeamID, &m.UserID, &role, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = auth.Role(role)
	return &m, nil
}

func (s *Store) GetMember(ctx context.Context, teamID, userID string) (*teams.Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, teams.ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (s *Store) ListUserTeams(ctx context.Context, userID string) ([]*teams.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members WHERE user_id = $1 ORDER BY joined_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*teams.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
