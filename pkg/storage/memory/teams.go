package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/mediahub/pkg/teams"
)

func (s *Store) CreateTeam(_ context.Context, team *teams.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.teams[team.ID]; exists {
		return fmt.Errorf("team %s already exists", team.ID)
	}
	if team.Code != "" {
		for _, t := range s.teams {
			if t.Code == team.Code {
				return teams.ErrTeamCodeTaken
			}
		}
	}
	cp := *team
	s.teams[team.ID] = &cp
	return nil
}

func (s *Store) GetTeam(_ context.Context, teamID string) (*teams.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, teams.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTeam(_ context.Context, teamID string, update teams.TeamUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return teams.ErrTeamNotFound
	}
	update.Apply(t)
	return nil
}

func (s *Store) SetPastDueSinceIfUnset(_ context.Context, teamID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return false, teams.ErrTeamNotFound
	}
	if t.PastDueSince != nil {
		return false, nil
	}
	t.PastDueSince = &at
	return true, nil
}

// FindBySubscription scans every team
func (s *Store) FindBySubscription(_ context.Context, subscriptionID string) (*teams.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.teams {
		if t.StripeSubscriptionID == subscriptionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, teams.ErrTeamNotFound
}

// FindByCode scans every team
func (s *Store) FindByCode(_ context.Context, code string) (*teams.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.teams {
		if t.Code == code && !t.Deleted() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, teams.ErrTeamNotFound
}

func (s *Store) IncrementUsedBytes(_ context.Context, teamID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return teams.ErrTeamNotFound
	}
	t.UsedBytes = max(t.UsedBytes+delta, 0)
	return nil
}

func (s *Store) SetUsedBytes(_ context.Context, teamID string, usedBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return teams.ErrTeamNotFound
	}
	t.UsedBytes = max(usedBytes, 0)
	return nil
}

func (s *Store) ListTeamIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.teams))
	for id := range s.teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) AddMember(_ context.Context, member *teams.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.members[member.TeamID]
	if !ok {
		byUser = map[string]*teams.Member{}
		s.members[member.TeamID] = byUser
	}
	cp := *member
	byUser[member.UserID] = &cp
	return nil
}

func (s *Store) GetMember(_ context.Context, teamID, userID string) (*teams.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[teamID][userID]
	if !ok {
		return nil, teams.ErrNotMember
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListUserTeams(_ context.Context, userID string) ([]*teams.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*teams.Member
	for _, byUser := range s.members {
		if m, ok := byUser[userID]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}
