package auth

import (
	"context"
	"time"
)

// TokenStore persists invite tokens keyed by token hash
type TokenStore interface {
	// GetToken returns ErrTokenNotFound when no record exists
	GetToken(ctx context.Context, tokenHash string) (*TokenRecord, error)
	PutToken(ctx context.Context, record *TokenRecord) error
	// RevokeToken sets revoked_at only if it is unset.
	// Returns ErrAlreadyRevoked if it was set, ErrTokenNotFound if the record is missing.
	RevokeToken(ctx context.Context, tokenHash string, at time.Time) error
	ListTokens(ctx context.Context, teamID string) ([]*TokenRecord, error)
}

// UserStore persists accounts and their session tokens
type UserStore interface {
	GetUserToken(ctx context.Context, tokenHash string) (*UserTokenRecord, error)
	PutUserToken(ctx context.Context, record *UserTokenRecord) error
	// GetUserByEmail returns ErrUserNotFound when no account exists
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
}

// CodeStore persists magic-link codes, one live code per email
type CodeStore interface {
	// PutCode replaces any previous code for the same email
	PutCode(ctx context.Context, code *SignInCode) error
	// GetCode returns ErrInvalidCode when no code exists for email
	GetCode(ctx context.Context, email string) (*SignInCode, error)
	// MarkCodeUsed sets used_at only if it is unset, returning ErrCodeUsed otherwise
	MarkCodeUsed(ctx context.Context, email string, at time.Time) error
}
