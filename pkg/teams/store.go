package teams

import (
	"context"
	"time"
)

// Store persists team entitlement records
type Store interface {
	// CreateTeam returns ErrTeamCodeTaken when another team already holds team.Code
	CreateTeam(ctx context.Context, team *Team) error
	// GetTeam returns ErrTeamNotFound when the team does not exist
	GetTeam(ctx context.Context, teamID string) (*Team, error)
	UpdateTeam(ctx context.Context, teamID string, update TeamUpdate) error
	// SetPastDueSinceIfUnset writes past_due_since only when it is currently unset.
	// It reports whether this call performed the write.
	SetPastDueSinceIfUnset(ctx context.Context, teamID string, at time.Time) (bool, error)
	// FindBySubscription returns the team linked to a billing subscription, or ErrTeamNotFound.
	// Key-value backends without a secondary index implement this as a full scan, which
	// does not scale; callers cache the result.
	FindBySubscription(ctx context.Context, subscriptionID string) (*Team, error)
	// FindByCode returns the live team holding a join code, or ErrTeamNotFound.
	// Soft-deleted teams are never returned.
	FindByCode(ctx context.Context, code string) (*Team, error)
	// IncrementUsedBytes adds delta atomically. Negative results are clamped to zero.
	IncrementUsedBytes(ctx context.Context, teamID string, delta int64) error
	// SetUsedBytes overwrites used_bytes. Only the repairer calls it.
	SetUsedBytes(ctx context.Context, teamID string, usedBytes int64) error
	ListTeamIDs(ctx context.Context) ([]string, error)
}

// MemberStore persists user memberships
type MemberStore interface {
	AddMember(ctx context.Context, member *Member) error
	// GetMember returns ErrNotMember when the user has no membership
	GetMember(ctx context.Context, teamID, userID string) (*Member, error)
	ListUserTeams(ctx context.Context, userID string) ([]*Member, error)
}

// UsageIndex sums the ground-truth size of a team's stored media
type UsageIndex interface {
	// SumSizeBytes returns the number of media items and their total size
	SumSizeBytes(ctx context.Context, teamID string) (items int, total int64, err error)
}
