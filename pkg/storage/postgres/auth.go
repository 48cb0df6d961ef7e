package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/mediahub/pkg/auth"
)

const tokenColumns = `token_hash, team_id, role, created_at, expires_at, revoked_at, user_id, created_by`

func scanToken(row scanner) (*auth.TokenRecord, error) {
	var (
		rec       auth.TokenRecord
		role      string
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	if err := row.Scan(&rec.TokenHash, &rec.TeamID, &role, &rec.CreatedAt, &expiresAt, &revokedAt, &rec.UserID, &rec.CreatedBy); err != nil {
		return nil, err
	}
	rec.Role = auth.Role(role)
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	rec.RevokedAt = timePtr(revokedAt)
	return &rec, nil
}

func (s *Store) GetToken(ctx context.Context, tokenHash string) (*auth.TokenRecord, error) {
	rec, err := scanToken(s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM invite_tokens WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return rec, nil
}

func (s *Store) PutToken(ctx context.Context, rec *auth.TokenRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invite_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token_hash) DO UPDATE SET
			team_id = EXCLUDED.team_id, role = EXCLUDED.role, expires_at = EXCLUDED.expires_at,
			revoked_at = EXCLUDED.revoked_at, user_id = EXCLUDED.user_id, created_by = EXCLUDED.created_by`,
		rec.TokenHash, rec.TeamID, string(rec.Role), rec.CreatedAt, nullTime(rec.ExpiresAt),
		nullTimePtr(rec.RevokedAt), rec.UserID, rec.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to put token: %w", err)
	}
	return nil
}

func (s *Store) RevokeToken(ctx context.Context, tokenHash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invite_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash, at)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	found, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM invite_tokens WHERE token_hash = $1)`, tokenHash)
	if err != nil {
		return err
	}
	if !found {
		return auth.ErrTokenNotFound
	}
	return auth.ErrAlreadyRevoked
}

func (s *Store) ListTokens(ctx context.Context, teamID string) ([]*auth.TokenRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM invite_tokens WHERE team_id = $1 ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var out []*auth.TokenRecord
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetUserToken(ctx context.Context, tokenHash string) (*auth.UserTokenRecord, error) {
	var (
		rec       auth.UserTokenRecord
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, email, created_at, expires_at, revoked_at
		FROM user_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&rec.TokenHash, &rec.UserID, &rec.Email, &rec.CreatedAt, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user token: %w", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	rec.RevokedAt = timePtr(revokedAt)
	return &rec, nil
}

func (s *Store) PutUserToken(ctx context.Context, rec *auth.UserTokenRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tokens (token_hash, user_id, email, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at, revoked_at = EXCLUDED.revoked_at`,
		rec.TokenHash, rec.UserID, rec.Email, rec.CreatedAt, nullTime(rec.ExpiresAt), nullTimePtr(rec.RevokedAt))
	if err != nil {
		return fmt.Errorf("failed to put user token: %w", err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, `SELECT user_id, email, created_at FROM users WHERE `+where+` = $1`, arg).
		Scan(&u.ID, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*auth.User, error) {
	return s.getUser(ctx, "user_id", userID)
}

func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, created_at) VALUES ($1, $2, $3)`, user.ID, user.Email, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) PutCode(ctx context.Context, code *auth.SignInCode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signin_codes (email, code_hash, created_at, expires_at, used_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (email) DO UPDATE SET
			code_hash = EXCLUDED.code_hash, created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at, used_at = NULL`,
		code.Email, code.CodeHash, code.CreatedAt, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to put sign-in code: %w", err)
	}
	return nil
}

func (s *Store) GetCode(ctx context.Context, email string) (*auth.SignInCode, error) {
	var (
		code   auth.SignInCode
		usedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, code_hash, created_at, expires_at, used_at FROM signin_codes WHERE email = $1`, email).
		Scan(&code.Email, &code.CodeHash, &code.CreatedAt, &code.ExpiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sign-in code: %w", err)
	}
	code.UsedAt = timePtr(usedAt)
	return &code, nil
}

func (s *Store) MarkCodeUsed(ctx context.Context, email string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE signin_codes SET used_at = $2 WHERE email = $1 AND used_at IS NULL`, email, at)
	if err != nil {
		return fmt.Errorf("failed to mark code used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	found, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM signin_codes WHERE email = $1)`, email)
	if err != nil {
		return err
	}
	if !found {
		return auth.ErrInvalidCode
	}
	return auth.ErrCodeUsed
}
