package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IssuerConfig bounds token lifetimes, in days
type IssuerConfig struct {
	MinTTLDays     int
	MaxTTLDays     int
	DefaultTTLDays int
}

// DefaultIssuerConfig returns the 1..365 day window with a 30 day default
func DefaultIssuerConfig() IssuerConfig {
	return IssuerConfig{MinTTLDays: 1, MaxTTLDays: 365, DefaultTTLDays: 30}
}

// ClampTTLDays applies the default for a zero TTL and clamps to [min, max]
func (c IssuerConfig) ClampTTLDays(days int) int {
	if days == 0 {
		days = c.DefaultTTLDays
	}
	if days < c.MinTTLDays {
		return c.MinTTLDays
	}
	if days > c.MaxTTLDays {
		return c.MaxTTLDays
	}
	return days
}

// IssueRequest describes an invite to mint
type IssueRequest struct {
	TeamID    string
	Role      Role
	TTLDays   int
	UserID    string
	CreatedBy string
}

// IssuedToken carries the raw secret. It is the only place the secret ever appears.
type IssuedToken struct {
	Secret string
	Record *TokenRecord
}

// Issuer mints and revokes invite tokens
type Issuer struct {
	tokens TokenStore
	config IssuerConfig
	now    func() time.Time
}

// NewIssuer creates an issuer
func NewIssuer(tokens TokenStore, config IssuerConfig) *Issuer {
	return &Issuer{tokens: tokens, config: config, now: time.Now}
}

// WithClock returns a copy of the issuer using now as its clock
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	clone := *i
	clone.now = now
	return &clone
}

// Issue generates a secret, stores its hash with the binding, and returns the secret once
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*IssuedToken, error) {
	if req.TeamID == "" {
		return nil, fmt.Errorf("team id is required")
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	secret, hash, err := GenerateSecret(InviteTokenPrefix)
	if err != nil {
		return nil, err
	}

	now := i.now().UTC()
	ttl := i.config.ClampTTLDays(req.TTLDays)
	record := &TokenRecord{
		TokenHash: hash,
		TeamID:    req.TeamID,
		Role:      req.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttl) * 24 * time.Hour),
		UserID:    req.UserID,
		CreatedBy: req.CreatedBy,
	}

	if err := i.tokens.PutToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	return &IssuedToken{Secret: secret, Record: record}, nil
}

// Revoke soft-revokes a token of the actor's own team. Only admins may revoke,
// and revoking twice is an error rather than a no-op.
func (i *Issuer) Revoke(ctx context.Context, actor *Principal, tokenHash string) error {
	if err := Authorize(actor, InviteRevoke); err != nil {
		return err
	}

	record, err := i.tokens.GetToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to load token: %w", err)
	}

	if record.TeamID != actor.TeamID {
		return ErrCrossTeam
	}
	if record.RevokedAt != nil {
		return ErrAlreadyRevoked
	}

	if err := i.tokens.RevokeToken(ctx, tokenHash, i.now().UTC()); err != nil {
		if errors.Is(err, ErrAlreadyRevoked) || errors.Is(err, ErrTokenNotFound) {
			return err
		}
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// List returns the invite records of the actor's team, newest first, without secrets
func (i *Issuer) List(ctx context.Context, actor *Principal) ([]*TokenRecord, error) {
	if err := Authorize(actor, InviteList); err != nil {
		return nil, err
	}
	records, err := i.tokens.ListTokens(ctx, actor.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return records, nil
}

// RevokeTeam revokes every live token of a team and returns how many it revoked.
// Callers authorize the deletion that triggers it.
func (i *Issuer) RevokeTeam(ctx context.Context, teamID string) (int, error) {
	records, err := i.tokens.ListTokens(ctx, teamID)
	if err != nil {
		return 0, fmt.Errorf("failed to list tokens: %w", err)
	}

	now := i.now().UTC()
	revoked := 0
	for _, record := range records {
		if record.RevokedAt != nil {
			continue
		}
		err := i.tokens.RevokeToken(ctx, record.TokenHash, now)
		switch {
		case err == nil:
			revoked++
		case errors.Is(err, ErrAlreadyRevoked), errors.Is(err, ErrTokenNotFound):
		default:
			return revoked, fmt.Errorf("failed to revoke token: %w", err)
		}
	}
	return revoked, nil
}
