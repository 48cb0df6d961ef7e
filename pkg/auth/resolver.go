package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Resolver turns bearer secrets into principals. It only reads.
type Resolver struct {
	tokens TokenStore
	users  UserStore
	now    func() time.Time
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithResolverClock overrides the clock used for expiry checks
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver. users may be nil if user sessions are not served.
func NewResolver(tokens TokenStore, users UserStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{tokens: tokens, users: users, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates an invite token.
// Order of checks: existence, revocation, expiry. A zero ExpiresAt never expires.
func (r *Resolver) Resolve(ctx context.Context, secret string) (*Principal, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrInvalidToken
	}

	hash := HashSecret(secret)
	record, err := r.tokens.GetToken(ctx, hash)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if record.RevokedAt != nil {
		return nil, ErrRevoked
	}
	if !record.ExpiresAt.IsZero() && r.now().After(record.ExpiresAt) {
		return nil, ErrExpired
	}

	subject := record.UserID
	if subject == "" {
		subject = hash
	}

	return &Principal{
		TeamID:    record.TeamID,
		Role:      record.Role,
		ExpiresAt: record.ExpiresAt,
		RevokedAt: record.RevokedAt,
		Subject:   subject,
		TokenHash: hash,
		secret:    secret,
	}, nil
}

// ResolveUser validates a user session token against the user token store
func (r *Resolver) ResolveUser(ctx context.Context, secret string) (*UserPrincipal, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" || r.users == nil {
		return nil, ErrInvalidToken
	}

	hash := HashSecret(secret)
	record, err := r.users.GetUserToken(ctx, hash)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user token: %w", err)
	}

	if record.RevokedAt != nil {
		return nil, ErrRevoked
	}
	if !record.ExpiresAt.IsZero() && r.now().After(record.ExpiresAt) {
		return nil, ErrExpired
	}

	return &UserPrincipal{
		UserID:    record.UserID,
		Email:     record.Email,
		ExpiresAt: record.ExpiresAt,
		TokenHash: hash,
		secret:    secret,
	}, nil
}
