package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role represents a team member's permission level
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleUploader Role = "uploader"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleUploader, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalizes and validates a role name
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// RoleSet is the set of roles an operation admits
type RoleSet map[Role]struct{}

// Roles builds a RoleSet
func Roles(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is in the set
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Per-operation allowed roles
var (
	AnyRole       = Roles(RoleViewer, RoleUploader, RoleAdmin)
	InviteCreate  = Roles(RoleAdmin)
	InviteRevoke  = Roles(RoleAdmin)
	InviteList    = Roles(RoleAdmin)
	MediaUpload   = Roles(RoleUploader, RoleAdmin)
	MediaComplete = Roles(RoleUploader, RoleAdmin)
	MediaDelete   = Roles(RoleUploader, RoleAdmin)
	MediaList     = AnyRole
	MediaDownload = AnyRole
)

// TokenRecord is a persisted invite token. The raw secret is never stored.
type TokenRecord struct {
	TokenHash string     `json:"token_hash"`
	TeamID    string     `json:"team_id"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"` // zero means no expiry
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
}

// Revoked reports whether the token has been revoked
func (t *TokenRecord) Revoked() bool {
	return t.RevokedAt != nil
}

// Principal is the resolved identity of a request bearing an invite token. Never persisted.
type Principal struct {
	TeamID    string
	Role      Role
	ExpiresAt time.Time
	RevokedAt *time.Time
	// Subject is the linked user ID, or the token hash when no account is linked
	Subject   string
	TokenHash string

	secret string
}

// Secret returns the raw bearer secret this principal was resolved from.
// It only exists in memory for the lifetime of the request.
func (p *Principal) Secret() string {
	return p.secret
}

// User is an account created by magic-link sign-in
type User struct {
	ID        string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// UserTokenRecord is a persisted user session token
type UserTokenRecord struct {
	TokenHash string     `json:"token_hash"`
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// UserPrincipal is the resolved identity of a request bearing a user session token
type UserPrincipal struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	TokenHash string

	secret string
}

// Secret returns the raw user session secret
func (p *UserPrincipal) Secret() string {
	return p.secret
}

// SignInCode is a pending magic-link code. Only the hash of the code is stored.
type SignInCode struct {
	Email     string     `json:"email"`
	CodeHash  string     `json:"code_hash"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}
