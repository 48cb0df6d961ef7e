package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// CodeTTL is how long a sign-in code stays valid
	CodeTTL = 10 * time.Minute
	// SessionTTL is the lifetime of a user session token
	SessionTTL = 30 * 24 * time.Hour
)

// Mailer delivers sign-in codes
type Mailer interface {
	SendSignInCode(ctx context.Context, email, code string) error
}

// Dispatcher runs non-critical work without reporting failures to the caller
type Dispatcher interface {
	Go(ctx context.Context, taskName string, fn func(context.Context) error)
}

// Session is the result of a successful magic-link verification
type Session struct {
	User      *User
	Secret    string
	ExpiresAt time.Time
	Created   bool
}

// MagicLink implements passwordless sign-in with single-use 6-digit codes
type MagicLink struct {
	codes      CodeStore
	users      UserStore
	mailer     Mailer
	dispatcher Dispatcher
	now        func() time.Time
}

// NewMagicLink creates the sign-in service
func NewMagicLink(codes CodeStore, users UserStore, mailer Mailer, dispatcher Dispatcher) *MagicLink {
	return &MagicLink{codes: codes, users: users, mailer: mailer, dispatcher: dispatcher, now: time.Now}
}

// WithClock returns a copy using now as its clock
func (m *MagicLink) WithClock(now func() time.Time) *MagicLink {
	clone := *m
	clone.now = now
	return &clone
}

// NormalizeEmail lowercases and trims an address and checks its basic shape
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func hashCode(email, code string) string {
	sum := sha256.Sum256([]byte(email + ":" + code))
	return hex.EncodeToString(sum[:])
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Start creates a fresh code for email, replacing any previous one, and queues delivery.
// Delivery failures are logged by the dispatcher and never returned.
func (m *MagicLink) Start(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return err
	}

	now := m.now().UTC()
	record := &SignInCode{
		Email:     email,
		CodeHash:  hashCode(email, code),
		CreatedAt: now,
		ExpiresAt: now.Add(CodeTTL),
	}
	if err := m.codes.PutCode(ctx, record); err != nil {
		return fmt.Errorf("failed to store sign-in code: %w", err)
	}

	m.dispatcher.Go(ctx, "send sign-in code", func(ctx context.Context) error {
		return m.mailer.SendSignInCode(ctx, email, code)
	})
	return nil
}

// Verify consumes the code and returns a new user session, creating the account on first sign-in
func (m *MagicLink) Verify(ctx context.Context, email, code string) (*Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return nil, ErrInvalidCode
	}

	record, err := m.codes.GetCode(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to load sign-in code: %w", err)
	}

	now := m.now().UTC()
	if record.UsedAt != nil {
		return nil, ErrCodeUsed
	}
	if now.After(record.ExpiresAt) {
		return nil, ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(record.CodeHash), []byte(hashCode(email, code))) != 1 {
		return nil, ErrInvalidCode
	}

	if err := m.codes.MarkCodeUsed(ctx, email, now); err != nil {
		if errors.Is(err, ErrCodeUsed) {
			return nil, ErrCodeUsed
		}
		return nil, fmt.Errorf("failed to consume sign-in code: %w", err)
	}

	user, created, err := m.getOrCreateUser(ctx, email, now)
	if err != nil {
		return nil, err
	}

	secret, hash, err := GenerateSecret(SessionTokenPrefix)
	if err != nil {
		return nil, err
	}
	token := &UserTokenRecord{
		TokenHash: hash,
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
	if err := m.users.PutUserToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store user token: %w", err)
	}

	return &Session{User: user, Secret: secret, ExpiresAt: token.ExpiresAt, Created: created}, nil
}

func (m *MagicLink) getOrCreateUser(ctx context.Context, email string, now time.Time) (*User, bool, error) {
	user, err := m.users.GetUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to load user: %w", err)
	}

	user = &User{ID: "usr_" + uuid.NewString(), Email: email, CreatedAt: now}
	if err := m.users.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}
