package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/middleware"
	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/storage/memory"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

const (
	testWebhookSecret = "whsec_api_test"
	testSetupKey      = "setup-secret"
	GiB               = teams.GiB
)

type syncDispatcher struct{}

func (syncDispatcher) Go(ctx context.Context, _ string, fn func(context.Context) error) {
	_ = fn(ctx)
}

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendSignInCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
	return nil
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

// fakeProvider verifies webhooks for real and stubs every outbound Stripe call
type fakeProvider struct {
	*billing.StripeVerifier
	subs         map[string]*billing.SubscriptionSnapshot
	lastCheckout billing.CheckoutRequest
	lastPrice    string
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*billing.SubscriptionSnapshot, error) {
	snap, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	cp := *snap
	return &cp, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	f.lastCheckout = req
	return "https://checkout.test/" + req.TeamID, nil
}

func (f *fakeProvider) UpdateSubscriptionPrice(_ context.Context, subID, priceID string) (*billing.SubscriptionSnapshot, error) {
	f.lastPrice = priceID
	return &billing.SubscriptionSnapshot{ID: subID, Status: teams.StatusActive, PriceID: priceID}, nil
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://portal.test/" + customerID, nil
}

type testEnv struct {
	t        *testing.T
	srv      *Server
	store    *memory.Store
	objects  *memory.ObjectStore
	mailer   *captureMailer
	provider *fakeProvider
	metrics  *observability.Metrics
	now      time.Time
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	e := &testEnv{
		t:       t,
		store:   memory.New(),
		objects: memory.NewObjectStore(),
		mailer:  &captureMailer{codes: map[string]string{}},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }

	registry := prometheus.NewRegistry()
	e.metrics = observability.NewMetrics(registry)

	quota := teams.DefaultQuotaConfig()
	quota.MaxUploadBytes = 20 * GiB
	prices := teams.NewPriceTable(map[teams.Plan]string{teams.PlanPlus: "price_plus", teams.PlanPro: "price_pro"})
	e.provider = &fakeProvider{
		StripeVerifier: billing.NewStripeVerifier(testWebhookSecret, 0),
		subs:           map[string]*billing.SubscriptionSnapshot{},
	}
	reconciler, err := billing.NewReconciler(e.provider, e.provider, e.store, e.store, prices, 16,
		billing.WithReconcilerClock(clock))
	require.NoError(t, err)

	issuer := auth.NewIssuer(e.store, auth.DefaultIssuerConfig()).WithClock(clock)
	gate := teams.NewQuotaGate(e.store, quota).WithClock(clock)

	deps := Deps{
		Teams:      teams.NewService(e.store, e.store, issuer).WithClock(clock),
		Media:      media.NewService(e.store, e.objects, gate, e.store, media.DefaultConfig()).WithClock(clock),
		Issuer:     issuer,
		Resolver:   auth.NewResolver(e.store, e.store, auth.WithResolverClock(clock)),
		MagicLink:  auth.NewMagicLink(e.store, e.store, e.mailer, syncDispatcher{}).WithClock(clock),
		Repairer:   teams.NewRepairer(e.store, e.store, 2),
		Billing:    billing.NewService(e.provider, prices, billing.ServiceConfig{SuccessURL: "https://app.test/ok", CancelURL: "https://app.test/cancel", PortalReturnURL: "https://app.test/team"}),
		Reconciler: reconciler,
		Recorder:   audit.NewRecorder(e.store, syncDispatcher{}).WithClock(clock),
		Health:     observability.NewHealthChecker(nil, nil, "test"),
		Metrics:    e.metrics,
		Registry:   registry,
		Logger:     observability.NewLogger(observability.ErrorLevel, io.Discard),
		SetupKey:   testSetupKey,
	}
	deps.AllowedOrigins = []string{"https://app.example.com"}
	for _, opt := range opts {
		opt(&deps)
	}
	e.srv = NewServer(deps)
	return e
}

func inviteHeader(token string) http.Header {
	h := http.Header{}
	h.Set(middleware.InviteTokenHeader, token)
	return h
}

func sessionHeader(token string) http.Header {
	h := http.Header{}
	h.Set(middleware.UserTokenHeader, token)
	return h
}

func (e *testEnv) do(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorBody {
	t.Helper()
	return decode[httputil.ErrorResponse](t, w).Error
}

// createTeam creates a team over HTTP and returns its id and admin invite
func (e *testEnv) createTeam(name string, header http.Header) (string, string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/teams", map[string]string{"name": name}, header)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[createTeamResponse](e.t, w)
	require.NotEmpty(e.t, resp.AdminInviteToken)
	return resp.TeamID, resp.AdminInviteToken
}

func (e *testEnv) invite(adminToken, role string) createInviteResponse {
	e.t.Helper()
	w := e.do(http.MethodPost, "/invites", map[string]any{"role": role, "ttl_days": 7}, inviteHeader(adminToken))
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[createInviteResponse](e.t, w)
}

func (e *testEnv) presign(token, filename, contentType string, size int64) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/media/presign-upload", map[string]any{
		"filename":     filename,
		"content_type": contentType,
		"size_bytes":   size,
	}, inviteHeader(token))
}

// upload runs presign, the simulated PUT, and complete
func (e *testEnv) upload(token, filename, contentType string, size int64) *media.Record {
	e.t.Helper()
	w := e.presign(token, filename, contentType, size)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	presigned := decode[media.PresignedUpload](e.t, w)

	e.objects.Put(presigned.ObjectKey, contentType, size)

	w = e.do(http.MethodPost, "/media/complete", map[string]any{
		"media_id":     presigned.MediaID,
		"object_key":   presigned.ObjectKey,
		"filename":     filename,
		"content_type": contentType,
		"size_bytes":   size,
	}, inviteHeader(token))
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	return decode[*media.Record](e.t, w)
}

func (e *testEnv) me(header http.Header) meResponse {
	e.t.Helper()
	w := e.do(http.MethodGet, "/me", nil, header)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	return decode[meResponse](e.t, w)
}

// signedWebhook wraps object in a Stripe event envelope signed with the test secret
func signedWebhook(t *testing.T, id, eventType string, created time.Time, object any) ([]byte, http.Header) {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2025-03-31.basil",
		"data":        map[string]json.RawMessage{"object": obj},
	})
	require.NoError(t, err)

	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set(StripeSignatureHeader, sp.Header)
	return payload, h
}

func TestScenarioA_QuotaAcrossUploads(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.createTeam("Riverside U12", nil)

	me := e.me(inviteHeader(admin))
	require.NotNil(t, me.Team)
	assert.Equal(t, teams.PlanFree, me.Team.Plan)
	assert.Equal(t, int64(10), me.Team.StorageLimitGB)
	assert.Equal(t, int64(0), me.Team.UsedBytes)
	assert.Equal(t, auth.RoleAdmin, me.Role)

	e.upload(admin, "final.mp4", "video/mp4", 5*GiB)
	assert.Equal(t, 5*GiB, e.me(inviteHeader(admin)).Team.UsedBytes)

	w := e.presign(admin, "extra.mp4", "video/mp4", 6*GiB)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, httputil.CodeStorageLimit, body.Code)
	assert.Contains(t, body.Message, "5.00GB / 10GB")

	// exactly filling the limit is allowed
	w = e.presign(admin, "fits.mp4", "video/mp4", 5*GiB)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.QuotaDecisionsTotal.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.QuotaDecisionsTotal.WithLabelValues("STORAGE_LIMIT_EXCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.UploadsCompletedTotal))
}

func TestScenarioB_RevokedInvite(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.createTeam("Riverside U12", nil)

	viewer := e.invite(admin, "viewer")
	assert.Equal(t, auth.RoleViewer, viewer.Role)
	assert.True(t, e.now.Add(7*24*time.Hour).Equal(viewer.ExpiresAt))

	w := e.do(http.MethodGet, "/media", nil, inviteHeader(viewer.Token))
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/invites", map[string]any{"role": "admin"}, inviteHeader(viewer.Token))
	assert.Equal(t, http.StatusForbidden, w.Code, "viewers cannot mint invites")

	w = e.do(http.MethodPost, "/invites/revoke", map[string]string{"token_hash": viewer.TokenHash}, inviteHeader(admin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err := e.srv.Resolver.Resolve(context.Background(), viewer.Token)
	assert.ErrorIs(t, err, auth.ErrRevoked)

	w = e.do(http.MethodGet, "/media", nil, inviteHeader(viewer.Token))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invite token revoked.", errorBody(t, w).Message)

	w = e.do(http.MethodPost, "/invites/revoke", map[string]string{"token_hash": viewer.TokenHash}, inviteHeader(admin))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodGet, "/invites", nil, inviteHeader(admin))
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Invites []*auth.TokenRecord `json:"invites"`
	}](t, w)
	require.Len(t, list.Invites, 2)
	for _, rec := range list.Invites {
		if rec.TokenHash == viewer.TokenHash {
			assert.NotNil(t, rec.RevokedAt)
		}
	}
	assert.NotContains(t, w.Body.String(), viewer.Token, "secrets are never listed")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.TokensRevokedTotal))
}

func TestScenarioC_PaymentRecoveryResetsGrace(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	teamID, admin := e.createTeam("Riverside U12", nil)

	t0 := e.now
	require.NoError(t, e.store.UpdateTeam(ctx, teamID, teams.TeamUpdate{
		Plan:                 teams.Set(teams.PlanPlus),
		StorageLimitBytes:    teams.Set(50 * GiB),
		SubscriptionStatus:   teams.Set(teams.StatusPastDue),
		PastDueSince:         teams.Set(t0),
		StripeCustomerID:     teams.Set("cus_1"),
		StripeSubscriptionID: teams.Set("sub_1"),
	}))
	e.provider.subs["sub_1"] = &billing.SubscriptionSnapshot{
		ID:         "sub_1",
		Status:     teams.StatusPastDue,
		CustomerID: "cus_1",
		PriceID:    "price_plus",
		ItemID:     "si_1",
		Metadata:   map[string]string{"team_id": teamID},
	}

	e.now = t0.Add(10 * 24 * time.Hour)
	w := e.presign(admin, "clip.mp4", "video/mp4", 1024)
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, httputil.CodePaymentPastDue, errorBody(t, w).Code)

	payload, header := signedWebhook(t, "evt_paid", billing.EventInvoicePaid, t0.Add(24*time.Hour),
		map[string]any{"id": "in_1", "object": "invoice", "subscription": "sub_1"})
	w = e.do(http.MethodPost, "/billing/webhook", payload, header)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"outcome":"handled"`)

	team, err := e.store.GetTeam(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, teams.StatusActive, team.SubscriptionStatus)
	assert.Nil(t, team.PastDueSince)
	assert.Equal(t, teams.PlanPlus, team.Plan)

	w = e.presign(admin, "clip.mp4", "video/mp4", 1024)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// redelivery is acknowledged without reapplying
	w = e.do(http.MethodPost, "/billing/webhook", payload, header)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"duplicate"`)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.WebhookEventsTotal.WithLabelValues(billing.EventInvoicePaid, "handled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.WebhookEventsTotal.WithLabelValues(billing.EventInvoicePaid, "duplicate")))
}

func TestRoutes(t *testing.T) {
	e := newTestEnv(t)

	t.Run("unknown route uses the envelope", func(t *testing.T) {
		w := e.do(http.MethodGet, "/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, httputil.CodeNotFound, errorBody(t, w).Code)
	})

	t.Run("liveness", func(t *testing.T) {
		w := e.do(http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Request-ID", "req-123")
		w := e.do(http.MethodGet, "/healthz", nil, h)
		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		h := http.Header{}
		h.Set("Origin", "https://app.example.com")
		w := e.do(http.MethodOptions, "/media", nil, h)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("missing credentials", func(t *testing.T) {
		w := e.do(http.MethodGet, "/media", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("metrics exposition", func(t *testing.T) {
		w := e.do(http.MethodGet, "/metrics", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "mediahub_http_requests_total"))
	})
}
