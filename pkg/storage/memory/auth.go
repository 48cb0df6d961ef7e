package memory

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/mediahub/pkg/auth"
)

func (s *Store) GetToken(_ context.Context, tokenHash string) (*auth.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) PutToken(_ context.Context, record *auth.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.tokens[record.TokenHash] = &cp
	return nil
}

func (s *Store) RevokeToken(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[tokenHash]
	if !ok {
		return auth.ErrTokenNotFound
	}
	if rec.RevokedAt != nil {
		return auth.ErrAlreadyRevoked
	}
	rec.RevokedAt = &at
	return nil
}

func (s *Store) ListTokens(_ context.Context, teamID string) ([]*auth.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*auth.TokenRecord
	for _, rec := range s.tokens {
		if rec.TeamID == teamID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetUserToken(_ context.Context, tokenHash string) (*auth.UserTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.userTokens[tokenHash]
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) PutUserToken(_ context.Context, record *auth.UserTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.userTokens[record.TokenHash] = &cp
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CreateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	s.usersEmail[user.Email] = user.ID
	return nil
}

func (s *Store) PutCode(_ context.Context, code *auth.SignInCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.codes[code.Email] = &cp
	return nil
}

func (s *Store) GetCode(_ context.Context, email string) (*auth.SignInCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.codes[email]
	if !ok {
		return nil, auth.ErrInvalidCode
	}
	cp := *code
	return &cp, nil
}

func (s *Store) MarkCodeUsed(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[email]
	if !ok {
		return auth.ErrInvalidCode
	}
	if code.UsedAt != nil {
		return auth.ErrCodeUsed
	}
	code.UsedAt = &at
	return nil
}
