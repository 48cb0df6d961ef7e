package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/mediahub/pkg/auth"
)

const (
	// AdminInviteTTLDays is the lifetime of the invite minted with a new team
	AdminInviteTTLDays = 365
	// JoinInviteTTLDays is the lifetime of the invite minted when a user joins by code
	JoinInviteTTLDays  = 365

	codeAttempts = 5
)

// CreatedTeam is returned once from CreateTeam and carries the admin invite secret
type CreatedTeam struct {
	Team        *Team
	AdminInvite *auth.IssuedToken
}

// DeletedTeam reports a soft deletion and how many invites it revoked
type DeletedTeam struct {
	Team           *Team
	RevokedInvites int
}

// JoinedTeam is returned when a user joins by team code. Invite is the user's team token.
type JoinedTeam struct {
	Team   *Team
	Role   auth.Role
	Invite *auth.IssuedToken
}

// Membership pairs a user's membership with its team
type Membership struct {
	Team *Team
	Role auth.Role
}

// Service manages team lifecycle and membership
type Service struct {
	store   Store
	members MemberStore
	issuer  *auth.Issuer
	now     func() time.Time
}

// NewService creates a team service
func NewService(store Store, members MemberStore, issuer *auth.Issuer) *Service {
	return &Service{store: store, members: members, issuer: issuer, now: time.Now}
}

// WithClock returns a copy using now as its clock
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// CreateTeam creates a free-plan team and an admin invite. When creatorUserID is set
// the user also becomes an admin member.
func (s *Service) CreateTeam(ctx context.Context, name, creatorUserID string) (*CreatedTeam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTeamName
	}

	now := s.now().UTC()
	limit := LimitForPlan(PlanFree)
	limitGB := limit / GiB
	team := &Team{
		ID:                uuid.NewString(),
		Name:              name,
		Code:              GenerateTeamCode(name),
		Plan:              PlanFree,
		StorageLimitBytes: &limit,
		StorageLimitGB:    &limitGB,
		CreatedAt:         now,
	}
	if err := s.insertWithCode(ctx, team); err != nil {
		return nil, err
	}

	invite, err := s.issuer.Issue(ctx, auth.IssueRequest{
		TeamID:    team.ID,
		Role:      auth.RoleAdmin,
		TTLDays:   AdminInviteTTLDays,
		UserID:    creatorUserID,
		CreatedBy: creatorUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue admin invite: %w", err)
	}

	if creatorUserID != "" && s.members != nil {
		member := &Member{TeamID: team.ID, UserID: creatorUserID, Role: auth.RoleAdmin, JoinedAt: now}
		if err := s.members.AddMember(ctx, member); err != nil {
			return nil, fmt.Errorf("failed to add team admin: %w", err)
		}
	}

	return &CreatedTeam{Team: team, AdminInvite: invite}, nil
}

// insertWithCode stores a new team, moving to a suffixed code while the readable one is taken
func (s *Service) insertWithCode(ctx context.Context, team *Team) error {
	for attempt := 0; ; attempt++ {
		err := s.store.CreateTeam(ctx, team)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTeamCodeTaken) || attempt == codeAttempts-1 {
			return fmt.Errorf("failed to create team: %w", err)
		}
		team.Code = withRandomSuffix(team.Code)
	}
}

// Get returns the team the principal belongs to
func (s *Service) Get(ctx context.Context, actor *auth.Principal) (*Team, error) {
	if err := auth.Authorize(actor, auth.AnyRole); err != nil {
		return nil, err
	}
	return s.liveTeam(ctx, actor.TeamID)
}

// liveTeam loads a team and hides soft-deleted ones
func (s *Service) liveTeam(ctx context.Context, teamID string) (*Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.Deleted() {
		return nil, ErrTeamNotFound
	}
	return team, nil
}

// Rename changes the team name. Admins only, own team only.
func (s *Service) Rename(ctx context.Context, actor *auth.Principal, teamID, name string) (*Team, error) {
	if err := auth.AuthorizeTeam(actor, teamID, auth.Roles(auth.RoleAdmin)); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTeamName
	}
	if _, err := s.liveTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTeam(ctx, teamID, TeamUpdate{Name: Set(name)}); err != nil {
		return nil, fmt.Errorf("failed to rename team: %w", err)
	}
	return s.store.GetTeam(ctx, teamID)
}

// RequireAdmin checks that the user is an admin member of the team
func (s *Service) RequireAdmin(ctx context.Context, userID, teamID string) (*Member, error) {
	if s.members == nil {
		return nil, ErrNotMember
	}
	member, err := s.members.GetMember(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return nil, fmt.Errorf("%w: not a member of team", auth.ErrForbidden)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if member.Role != auth.RoleAdmin {
		return nil, fmt.Errorf("%w: admin role required", auth.ErrForbidden)
	}
	return member, nil
}

// AdminTeam returns the team after checking that the user is one of its admins
func (s *Service) AdminTeam(ctx context.Context, userID, teamID string) (*Team, error) {
	if _, err := s.RequireAdmin(ctx, userID, teamID); err != nil {
		return nil, err
	}
	return s.liveTeam(ctx, teamID)
}

// Delete soft-deletes the team of an admin invite and revokes all of its invites
func (s *Service) Delete(ctx context.Context, actor *auth.Principal, teamID string) (*DeletedTeam, error) {
	if err := auth.AuthorizeTeam(actor, teamID, auth.Roles(auth.RoleAdmin)); err != nil {
		return nil, err
	}
	return s.delete(ctx, teamID)
}

// DeleteAsUser soft-deletes a team on behalf of one of its admin members
func (s *Service) DeleteAsUser(ctx context.Context, userID, teamID string) (*DeletedTeam, error) {
	if _, err := s.RequireAdmin(ctx, userID, teamID); err != nil {
		return nil, err
	}
	return s.delete(ctx, teamID)
}

// delete marks the team deleted once, then revokes its invites. Repeating it keeps the
// first deleted_at and only retries the revocation.
func (s *Service) delete(ctx context.Context, teamID string) (*DeletedTeam, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.Deleted() {
		now := s.now().UTC()
		if err := s.store.UpdateTeam(ctx, teamID, TeamUpdate{DeletedAt: Set(now)}); err != nil {
			return nil, fmt.Errorf("failed to delete team: %w", err)
		}
		team.DeletedAt = &now
	}

	revoked, err := s.issuer.RevokeTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke invites of deleted team: %w", err)
	}
	return &DeletedTeam{Team: team, RevokedInvites: revoked}, nil
}

// FindByCode resolves a join code typed by a user
func (s *Service) FindByCode(ctx context.Context, code string) (*Team, error) {
	code, err := NormalizeTeamCode(code)
	if err != nil {
		return nil, err
	}
	return s.store.FindByCode(ctx, code)
}

// Join adds the user to the team as an uploader and issues their team token.
// Existing members keep their role.
func (s *Service) Join(ctx context.Context, userID, teamID string) (*JoinedTeam, error) {
	if s.members == nil {
		return nil, ErrNotMember
	}
	team, err := s.liveTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	role := auth.RoleUploader
	member, err := s.members.GetMember(ctx, teamID, userID)
	switch {
	case err == nil:
		role = member.Role
	case errors.Is(err, ErrNotMember):
		member = &Member{TeamID: teamID, UserID: userID, Role: role, JoinedAt: s.now().UTC()}
		if err := s.members.AddMember(ctx, member); err != nil {
			return nil, fmt.Errorf("failed to add member: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	invite, err := s.issuer.Issue(ctx, auth.IssueRequest{
		TeamID:    teamID,
		Role:      role,
		TTLDays:   JoinInviteTTLDays,
		UserID:    userID,
		CreatedBy: userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue member invite: %w", err)
	}
	return &JoinedTeam{Team: team, Role: role, Invite: invite}, nil
}

// ListUserTeams returns every team the user belongs to. Teams deleted since joining are skipped.
func (s *Service) ListUserTeams(ctx context.Context, userID string) ([]*Membership, error) {
	if s.members == nil {
		return nil, nil
	}
	members, err := s.members.ListUserTeams(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	result := make([]*Membership, 0, len(members))
	for _, m := range members {
		team, err := s.liveTeam(ctx, m.TeamID)
		if errors.Is(err, ErrTeamNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get team %s: %w", m.TeamID, err)
		}
		result = append(result, &Membership{Team: team, Role: m.Role})
	}
	return result, nil
}
