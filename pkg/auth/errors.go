package auth

import (
	"errors"
	"fmt"
)

// Base classes. Transport layers map on these.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Credential failures
var (
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrRevoked      = fmt.Errorf("%w: token revoked", ErrUnauthorized)
	ErrExpired      = fmt.Errorf("%w: token expired", ErrUnauthorized)
)

// Permission failures
var (
	ErrCrossTeam = fmt.Errorf("%w: token belongs to another team", ErrForbidden)
)

// Issuance and lookup failures
var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrAlreadyRevoked = errors.New("token already revoked")
	ErrInvalidRole    = errors.New("invalid role")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidEmail   = errors.New("invalid email")
)

// Magic-link failures. All of them are credential failures.
var (
	ErrInvalidCode = fmt.Errorf("%w: invalid or expired code", ErrUnauthorized)
	ErrCodeUsed    = fmt.Errorf("%w: code already used", ErrUnauthorized)
)
