package auth

import (
	"context"

	"github.com/platinummonkey/mediahub/pkg/observability"
)

// LogMailer writes sign-in codes to the log instead of sending email.
// Used when no mail provider is configured.
type LogMailer struct {
	logger *observability.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger *observability.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendSignInCode logs the code
func (m *LogMailer) SendSignInCode(ctx context.Context, email, code string) error {
	m.logger.WithFields(map[string]interface{}{
		"email": email,
		"code":  code,
	}).Info("Sign-in code (no mail provider configured)")
	return nil
}
