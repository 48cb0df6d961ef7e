package auth

import (
	"context"
	"sync"
	"time"
)

type fakeTokenStore struct {
	mu      sync.Mutex
	records map[string]*TokenRecord
	getErr  error
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{records: make(map[string]*TokenRecord)}
}

func (s *fakeTokenStore) GetToken(ctx context.Context, hash string) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeTokenStore) PutToken(ctx context.Context, rec *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records[rec.TokenHash] = &clone
	return nil
}

func (s *fakeTokenStore) RevokeToken(ctx context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[hash]
	if !ok {
		return ErrTokenNotFound
	}
	if rec.RevokedAt != nil {
		return ErrAlreadyRevoked
	}
	rec.RevokedAt = &at
	return nil
}

func (s *fakeTokenStore) ListTokens(ctx context.Context, teamID string) ([]*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*TokenRecord
	for _, rec := range s.records {
		if rec.TeamID == teamID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

type fakeUserStore struct {
	mu      sync.Mutex
	tokens  map[string]*UserTokenRecord
	byEmail map[string]*User
	byID    map[string]*User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		tokens:  make(map[string]*UserTokenRecord),
		byEmail: make(map[string]*User),
		byID:    make(map[string]*User),
	}
}

func (s *fakeUserStore) GetUserToken(ctx context.Context, hash string) (*UserTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return rec, nil
}

func (s *fakeUserStore) PutUserToken(ctx context.Context, rec *UserTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[rec.TokenHash] = rec
	return nil
}

func (s *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
	return nil
}

type fakeCodeStore struct {
	mu    sync.Mutex
	codes map[string]*SignInCode
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{codes: make(map[string]*SignInCode)}
}

func (s *fakeCodeStore) PutCode(ctx context.Context, c *SignInCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	s.codes[c.Email] = &clone
	return nil
}

func (s *fakeCodeStore) GetCode(ctx context.Context, email string) (*SignInCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[email]
	if !ok {
		return nil, ErrInvalidCode
	}
	clone := *c
	return &clone, nil
}

func (s *fakeCodeStore) MarkCodeUsed(ctx context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[email]
	if !ok {
		return ErrInvalidCode
	}
	if c.UsedAt != nil {
		return ErrCodeUsed
	}
	c.UsedAt = &at
	return nil
}

type capturingMailer struct {
	mu   sync.Mutex
	sent map[string]string
}

func (m *capturingMailer) SendSignInCode(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[string]string)
	}
	m.sent[email] = code
	return nil
}

func (m *capturingMailer) codeFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[email]
}

// inlineDispatcher runs tasks synchronously so tests observe their effects
type inlineDispatcher struct{}

func (inlineDispatcher) Go(ctx context.Context, name string, fn func(context.Context) error) {
	_ = fn(ctx)
}
