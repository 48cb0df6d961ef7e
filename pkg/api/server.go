package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/middleware"
	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// DefaultMaxBodyBytes bounds JSON request bodies when Deps.MaxBodyBytes is unset
const DefaultMaxBodyBytes = 1 << 20

// Deps are the services behind the HTTP surface. Billing, Reconciler, Recorder,
// Health, Metrics and the limiters are optional.
type Deps struct {
	Teams      *teams.Service
	Media      *media.Service
	Issuer     *auth.Issuer
	Resolver   middleware.CredentialResolver
	MagicLink  *auth.MagicLink
	Repairer   *teams.Repairer
	Billing    *billing.Service
	Reconciler *billing.Reconciler
	Recorder   *audit.Recorder

	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *observability.Logger

	// SignInLimiter and WebhookLimiter default to in-process token buckets
	SignInLimiter  middleware.Limiter
	WebhookLimiter middleware.Limiter

	SetupKey       string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server represents our API server
type Server struct {
	Deps
	router   *mux.Router
	handler  http.Handler
	validate *validator.Validate
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.SignInLimiter == nil {
		deps.SignInLimiter = middleware.NewLocalLimiter(middleware.SignInRateLimitConfig())
	}
	if deps.WebhookLimiter == nil {
		deps.WebhookLimiter = middleware.NewLocalLimiter(middleware.WebhookRateLimitConfig())
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		Deps:     deps,
		router:   mux.NewRouter(),
		validate: httputil.NewValidator(),
	}
	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.Metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Route not found.")
	})

	// Operational routes
	if s.Health != nil {
		s.router.HandleFunc("/healthz", s.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.Health.Readiness).Methods("GET")
	}
	if s.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.Registry)).Methods("GET")
	}

	// Routes that authenticate without invite or session tokens
	signIn := middleware.NewRateLimitMiddleware(s.SignInLimiter, "signin", middleware.SignInRateLimitConfig())
	s.router.Handle("/auth/signin", signIn.Handler(http.HandlerFunc(s.startSignIn))).Methods("POST")
	s.router.Handle("/auth/verify", signIn.Handler(http.HandlerFunc(s.verifySignIn))).Methods("POST")
	s.router.Handle("/auth/join-team", signIn.Handler(http.HandlerFunc(s.startJoinTeam))).Methods("POST")

	webhook := middleware.NewRateLimitMiddleware(s.WebhookLimiter, "webhook", middleware.WebhookRateLimitConfig())
	s.router.Handle("/billing/webhook", webhook.Handler(http.HandlerFunc(s.billingWebhook))).Methods("POST")

	s.router.HandleFunc("/admin/repair-storage", s.repairStorage).Methods("POST")

	// Everything else resolves X-Invite-Token / X-User-Token first
	authed := s.router.NewRoute().Subrouter()
	authed.Use(middleware.NewAuthMiddleware(s.Resolver, s.Metrics).Handler)

	team := func(h http.HandlerFunc) http.Handler { return middleware.RequireTeam(h) }
	user := func(h http.HandlerFunc) http.Handler { return middleware.RequireUser(h) }
	either := func(h http.HandlerFunc) http.Handler { return middleware.RequireAny(h) }

	// Teams
	authed.HandleFunc("/teams", s.createTeam).Methods("POST")
	authed.Handle("/teams/{id}/rename", team(s.renameTeam)).Methods("POST")
	authed.Handle("/teams/{id}", either(s.deleteTeam)).Methods("DELETE")
	authed.Handle("/me", either(s.me)).Methods("GET")
	authed.Handle("/me/teams", user(s.myTeams)).Methods("GET")

	// Invites
	authed.Handle("/invites", team(s.createInvite)).Methods("POST")
	authed.Handle("/invites", team(s.listInvites)).Methods("GET")
	authed.Handle("/invites/revoke", team(s.revokeInvite)).Methods("POST")

	// Media
	authed.Handle("/media/presign-upload", team(s.presignUpload)).Methods("POST")
	authed.Handle("/media/complete", team(s.completeUpload)).Methods("POST")
	authed.Handle("/media", team(s.listMedia)).Methods("GET")
	authed.Handle("/media/{id}/download", team(s.downloadMedia)).Methods("GET")
	authed.Handle("/media/{id}", team(s.deleteMedia)).Methods("DELETE")

	// Billing
	authed.Handle("/billing/checkout", either(s.checkout)).Methods("POST")
	authed.Handle("/billing/upgrade", either(s.upgrade)).Methods("POST")
	authed.Handle("/billing/portal", either(s.portal)).Methods("POST")
}

// Router exposes the route table, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the request-scoped middleware and tracing
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) wrap(next http.Handler) http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(s.Logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(s.AllowedOrigins),
		httputil.MaxBytesMiddleware(s.MaxBodyBytes),
	)
	return otelhttp.NewHandler(chain(next), "mediahub",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// ServeHTTP lets the server be used directly as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
