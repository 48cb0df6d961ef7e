package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/contextkeys"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/observability"
)

// Credential headers
const (
	InviteTokenHeader = "X-Invite-Token"
	UserTokenHeader   = "X-User-Token"
)

var rejectMessages = map[string]string{
	"invite_invalid": "Invalid invite token.",
	"invite_expired": "Invite token expired.",
	"invite_revoked": "Invite token revoked.",
	"user_invalid":   "Invalid session token.",
	"user_expired":   "Session expired.",
	"user_revoked":   "Session revoked.",
}

// CredentialResolver turns raw secrets into principals
type CredentialResolver interface {
	Resolve(ctx context.Context, secret string) (*auth.Principal, error)
	ResolveUser(ctx context.Context, secret string) (*auth.UserPrincipal, error)
}

// AuthMiddleware resolves whichever credentials a request carries and stores the
// principals in the request context. A credential that is present but invalid ends
// the request with 401; an absent one is left for RequireTeam and RequireUser.
type AuthMiddleware struct {
	resolver CredentialResolver
	metrics  *observability.Metrics
}

// NewAuthMiddleware creates the middleware. metrics may be nil.
func NewAuthMiddleware(resolver CredentialResolver, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver, metrics: metrics}
}

// Handler wraps next with credential resolution
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if secret := TeamToken(r); secret != "" {
			principal, err := m.resolver.Resolve(ctx, secret)
			if err != nil {
				m.fail(w, r, "invite", err)
				return
			}
			ctx = contextkeys.WithPrincipal(ctx, principal)
			ctx = contextkeys.WithTeamID(ctx, principal.TeamID)
		}

		if secret := strings.TrimSpace(r.Header.Get(UserTokenHeader)); secret != "" {
			user, err := m.resolver.ResolveUser(ctx, secret)
			if err != nil {
				m.fail(w, r, "user", err)
				return
			}
			ctx = contextkeys.WithUserPrincipal(ctx, user)
			ctx = contextkeys.WithUserID(ctx, user.UserID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) fail(w http.ResponseWriter, r *http.Request, kind string, err error) {
	logger := observability.FromContext(r.Context()).WithField("credential", kind)

	if !errors.Is(err, auth.ErrUnauthorized) {
		logger.WithError(err).Error("Credential resolution failed")
		httputil.WriteInternalError(w)
		return
	}

	reason := "invalid"
	switch {
	case errors.Is(err, auth.ErrExpired):
		reason = "expired"
	case errors.Is(err, auth.ErrRevoked):
		reason = "revoked"
	}
	message := rejectMessages[kind+"_"+reason]

	if m.metrics != nil {
		m.metrics.AuthFailuresTotal.WithLabelValues(kind + "_" + reason).Inc()
	}
	logger.WithField("reason", reason).Debug("Rejected credential")
	httputil.WriteUnauthorized(w, message)
}

// TeamToken returns the invite secret from X-Invite-Token or an Authorization bearer
func TeamToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(InviteTokenHeader)); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// PrincipalFrom returns the team principal resolved for this request, if any
func PrincipalFrom(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
	return p
}

// UserFrom returns the user principal resolved for this request, if any
func UserFrom(ctx context.Context) *auth.UserPrincipal {
	u, _ := ctx.Value(contextkeys.UserPrincipalKey).(*auth.UserPrincipal)
	return u
}

// RequireTeam rejects requests without a resolved invite token
func RequireTeam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Missing invite token.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a resolved user session
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFrom(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Missing session token.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny accepts either credential
func RequireAny(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil && UserFrom(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Missing credentials.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
