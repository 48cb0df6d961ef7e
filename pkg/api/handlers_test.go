package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/middleware"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

// signIn runs the magic-link flow and returns the session token
func (e *testEnv) signIn(email string) sessionResponse {
	e.t.Helper()
	w := e.do(http.MethodPost, "/auth/signin", map[string]string{"email": email}, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	normalized, err := auth.NormalizeEmail(email)
	require.NoError(e.t, err)
	code := e.mailer.code(normalized)
	require.Len(e.t, code, 6)

	w = e.do(http.MethodPost, "/auth/verify", map[string]string{"email": email, "code": code}, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	return decode[sessionResponse](e.t, w)
}

func TestSignIn(t *testing.T) {
	e := newTestEnv(t)

	session := e.signIn("Coach@Example.com")
	assert.True(t, session.Created)
	assert.Equal(t, "coach@example.com", session.Email)
	assert.True(t, e.now.Add(auth.SessionTTL).Equal(session.ExpiresAt))

	me := e.me(sessionHeader(session.Token))
	require.NotNil(t, me.User)
	assert.Equal(t, session.UserID, me.User.UserID)
	assert.Nil(t, me.Team)

	again := e.signIn("coach@example.com")
	assert.False(t, again.Created, "second sign-in reuses the account")
	assert.Equal(t, session.UserID, again.UserID)

	t.Run("code is single use", func(t *testing.T) {
		w := e.do(http.MethodPost, "/auth/signin", map[string]string{"email": "keeper@example.com"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := map[string]string{"email": "keeper@example.com", "code": e.mailer.code("keeper@example.com")}

		w = e.do(http.MethodPost, "/auth/verify", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
		w = e.do(http.MethodPost, "/auth/verify", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong code", func(t *testing.T) {
		e.do(http.MethodPost, "/auth/signin", map[string]string{"email": "ref@example.com"}, nil)
		code := "000000"
		if e.mailer.code("ref@example.com") == code {
			code = "111111"
		}
		w := e.do(http.MethodPost, "/auth/verify", map[string]string{"email": "ref@example.com", "code": code}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid or expired code.", errorBody(t, w).Message)
	})

	t.Run("expired code", func(t *testing.T) {
		e.do(http.MethodPost, "/auth/signin", map[string]string{"email": "late@example.com"}, nil)
		code := e.mailer.code("late@example.com")
		e.now = e.now.Add(auth.CodeTTL + time.Second)
		w := e.do(http.MethodPost, "/auth/verify", map[string]string{"email": "late@example.com", "code": code}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad email", func(t *testing.T) {
		w := e.do(http.MethodPost, "/auth/signin", map[string]string{"email": "not-an-email"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "email must be a valid email.", errorBody(t, w).Message)
	})
}

func TestSignIn_RateLimited(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.SignInLimiter = denyLimiter{} })

	w := e.do(http.MethodPost, "/auth/signin", map[string]string{"email": "coach@example.com"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, httputil.CodeRateLimited, errorBody(t, w).Code)
	assert.Empty(t, e.mailer.code("coach@example.com"))
}

func TestTeams_SessionCreatorBecomesAdmin(t *testing.T) {
	e := newTestEnv(t)
	session := e.signIn("coach@example.com")
	teamID, admin := e.createTeam("Riverside U12", sessionHeader(session.Token))

	w := e.do(http.MethodGet, "/me/teams", nil, sessionHeader(session.Token))
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Teams []membershipView `json:"teams"`
	}](t, w)
	require.Len(t, list.Teams, 1)
	assert.Equal(t, teamID, list.Teams[0].TeamID)
	assert.Equal(t, auth.RoleAdmin, list.Teams[0].Role)

	both := sessionHeader(session.Token)
	both.Set(middleware.InviteTokenHeader, admin)
	me := e.me(both)
	require.NotNil(t, me.User)
	require.NotNil(t, me.Team)
	assert.Equal(t, teamID, me.Team.TeamID)

	events := e.store.AuditEvents(teamID)
	require.NotEmpty(t, events)
	assert.Equal(t, audit.ActionTeamCreate, events[0].Action)
	assert.Equal(t, audit.Hash(session.UserID), events[0].SubjectHash)
}

func TestTeams_Rename(t *testing.T) {
	e := newTestEnv(t)
	teamID, admin := e.createTeam("Old", nil)
	otherID, _ := e.createTeam("Other", nil)
	uploader := e.invite(admin, "uploader")

	tests := []struct {
		name   string
		teamID string
		token  string
		body   map[string]string
		status int
	}{
		{"admin renames own team", teamID, admin, map[string]string{"name": "New"}, http.StatusOK},
		{"blank name", teamID, admin, map[string]string{"name": "   "}, http.StatusBadRequest},
		{"missing name", teamID, admin, map[string]string{}, http.StatusBadRequest},
		{"uploader", teamID, uploader.Token, map[string]string{"name": "Mine"}, http.StatusForbidden},
		{"other team", otherID, admin, map[string]string{"name": "Stolen"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/teams/"+tt.teamID+"/rename", tt.body, inviteHeader(tt.token))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, "New", e.me(inviteHeader(admin)).Team.TeamName)
}

func TestTeams_CreateValidation(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/teams", []byte(`{"name":`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON body.", errorBody(t, w).Message)

	w = e.do(http.MethodPost, "/teams", map[string]string{}, nil)
	assert.Equal(t, "name is required.", errorBody(t, w).Message)
}

func TestTeams_JoinByCode(t *testing.T) {
	e := newTestEnv(t)
	coach := e.signIn("coach@example.com")
	w := e.do(http.MethodPost, "/teams", map[string]string{"name": "Dallas MLS 11B North"}, sessionHeader(coach.Token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[createTeamResponse](t, w)
	assert.Equal(t, "DALLAS-MLS-11B-NORTH", created.TeamCode)

	w = e.do(http.MethodPost, "/auth/join-team",
		map[string]string{"email": "parent@example.com", "team_code": " dallas-mls-11b-north "}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decode[map[string]any](t, w)
	assert.Equal(t, "Dallas MLS 11B North", started["team_name"])
	code := e.mailer.code("parent@example.com")
	require.Len(t, code, 6)

	t.Run("unknown team code keeps the sign-in code", func(t *testing.T) {
		w := e.do(http.MethodPost, "/auth/verify",
			map[string]string{"email": "parent@example.com", "code": code, "team_code": "NO-SUCH-TEAM"}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	w = e.do(http.MethodPost, "/auth/verify",
		map[string]string{"email": "parent@example.com", "code": code, "team_code": created.TeamCode}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode[sessionResponse](t, w)
	require.NotNil(t, session.Team)
	assert.Equal(t, created.TeamID, session.Team.TeamID)
	assert.Equal(t, auth.RoleUploader, session.Team.Role)

	me := e.me(inviteHeader(session.Team.InviteToken))
	require.NotNil(t, me.Team)
	assert.Equal(t, created.TeamID, me.Team.TeamID)
	assert.Equal(t, auth.RoleUploader, me.Role)
	assert.Empty(t, me.Team.TeamCode, "only admins see the join code")

	w = e.do(http.MethodGet, "/me/teams", nil, sessionHeader(session.Token))
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Teams []membershipView `json:"teams"`
	}](t, w)
	require.Len(t, list.Teams, 1)
	assert.Equal(t, auth.RoleUploader, list.Teams[0].Role)

	actions := map[audit.Action]bool{}
	for _, ev := range e.store.AuditEvents(created.TeamID) {
		actions[ev.Action] = true
	}
	assert.True(t, actions[audit.ActionAuthJoinTeam])
	assert.True(t, actions[audit.ActionTeamJoin])

	t.Run("rejections", func(t *testing.T) {
		w := e.do(http.MethodPost, "/auth/join-team", map[string]string{"email": "x@example.com", "team_code": "no code"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid team code format.", errorBody(t, w).Message)

		w = e.do(http.MethodPost, "/auth/join-team", map[string]string{"email": "x@example.com", "team_code": "NO-SUCH-TEAM"}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, e.mailer.code("x@example.com"), "no code is sent for an unknown team")

		w = e.do(http.MethodPost, "/auth/join-team", map[string]string{"email": "x@example.com"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTeams_Delete(t *testing.T) {
	e := newTestEnv(t)
	teamID, admin := e.createTeam("Riverside", nil)
	otherID, otherAdmin := e.createTeam("Other", nil)
	uploader := e.invite(admin, "uploader")

	w := e.do(http.MethodDelete, "/teams/"+teamID, nil, inviteHeader(uploader.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(http.MethodDelete, "/teams/"+teamID, nil, inviteHeader(otherAdmin))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to do that.", errorBody(t, w).Message)

	w = e.do(http.MethodDelete, "/teams/"+teamID, nil, inviteHeader(admin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[deleteTeamResponse](t, w)
	assert.Equal(t, teamID, resp.TeamID)
	assert.True(t, e.now.Equal(resp.DeletedAt))
	assert.Equal(t, 2, resp.RevokedInvites)

	for _, token := range []string{admin, uploader.Token} {
		w := e.do(http.MethodGet, "/me", nil, inviteHeader(token))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	assert.Equal(t, otherID, e.me(inviteHeader(otherAdmin)).Team.TeamID, "other teams are untouched")

	var deletions int
	for _, ev := range e.store.AuditEvents(teamID) {
		if ev.Action == audit.ActionTeamDelete {
			deletions++
		}
	}
	assert.Equal(t, 1, deletions)

	t.Run("session admin", func(t *testing.T) {
		coach := e.signIn("coach@example.com")
		parent := e.signIn("parent@example.com")
		w := e.do(http.MethodPost, "/teams", map[string]string{"name": "Harbor Hawks"}, sessionHeader(coach.Token))
		require.Equal(t, http.StatusCreated, w.Code)
		created := decode[createTeamResponse](t, w)

		w = e.do(http.MethodDelete, "/teams/"+created.TeamID, nil, sessionHeader(parent.Token))
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = e.do(http.MethodDelete, "/teams/"+created.TeamID, nil, sessionHeader(coach.Token))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = e.do(http.MethodGet, "/me/teams", nil, sessionHeader(coach.Token))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"teams":[]}`, w.Body.String())

		w = e.do(http.MethodPost, "/auth/join-team", map[string]string{"email": "late@example.com", "team_code": created.TeamCode}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "deleted teams cannot be joined")
	})
}

func TestInvites_Validation(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.createTeam("Riverside", nil)

	w := e.do(http.MethodPost, "/invites", map[string]any{"role": "owner"}, inviteHeader(admin))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/invites/revoke", map[string]string{"token_hash": "abc"}, inviteHeader(admin))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/invites/revoke", map[string]string{"token_hash": auth.HashSecret("mhi_unknown")}, inviteHeader(admin))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// a hash from another team is indistinguishable from a cross-team attack
	_, otherAdmin := e.createTeam("Other", nil)
	foreign := e.invite(otherAdmin, "viewer")
	w = e.do(http.MethodPost, "/invites/revoke", map[string]string{"token_hash": foreign.TokenHash}, inviteHeader(admin))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to do that.", errorBody(t, w).Message)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.TokensIssuedTotal.WithLabelValues("admin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.TokensIssuedTotal.WithLabelValues("viewer")))
}

func TestMedia_Lifecycle(t *testing.T) {
	e := newTestEnv(t)
	teamID, admin := e.createTeam("Riverside", nil)
	uploader := e.invite(admin, "uploader")
	viewer := e.invite(admin, "viewer")

	record := e.upload(uploader.Token, "goal.jpg", "image/jpeg", 2048)
	assert.Equal(t, media.DefaultAlbum, record.AlbumName)
	assert.Equal(t, int64(2048), e.me(inviteHeader(admin)).Team.UsedBytes)

	t.Run("complete is idempotent", func(t *testing.T) {
		w := e.do(http.MethodPost, "/media/complete", map[string]any{
			"media_id":     record.MediaID,
			"object_key":   record.ObjectKey,
			"filename":     "goal.jpg",
			"content_type": "image/jpeg",
			"size_bytes":   2048,
		}, inviteHeader(uploader.Token))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(2048), e.me(inviteHeader(admin)).Team.UsedBytes)
	})

	t.Run("viewer can list and download", func(t *testing.T) {
		w := e.do(http.MethodGet, "/media?limit=10", nil, inviteHeader(viewer.Token))
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[media.Page](t, w)
		require.Len(t, page.Items, 1)
		assert.Equal(t, record.MediaID, page.Items[0].MediaID)

		w = e.do(http.MethodGet, "/media/"+record.MediaID+"/download", nil, inviteHeader(viewer.Token))
		require.Equal(t, http.StatusOK, w.Code)
		download := decode[media.Download](t, w)
		assert.Contains(t, download.URL, record.ObjectKey)
	})

	t.Run("viewer cannot upload or delete", func(t *testing.T) {
		w := e.presign(viewer.Token, "x.jpg", "image/jpeg", 10)
		assert.Equal(t, http.StatusForbidden, w.Code)
		w = e.do(http.MethodDelete, "/media/"+record.MediaID, nil, inviteHeader(viewer.Token))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("another uploader cannot delete", func(t *testing.T) {
		other := e.invite(admin, "uploader")
		w := e.do(http.MethodDelete, "/media/"+record.MediaID, nil, inviteHeader(other.Token))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("bad cursor", func(t *testing.T) {
		w := e.do(http.MethodGet, "/media?cursor=!!!", nil, inviteHeader(viewer.Token))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("uploader deletes own upload", func(t *testing.T) {
		w := e.do(http.MethodDelete, "/media/"+record.MediaID, nil, inviteHeader(uploader.Token))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.False(t, e.objects.Exists(record.ObjectKey))
		assert.Equal(t, int64(0), e.me(inviteHeader(admin)).Team.UsedBytes)

		w = e.do(http.MethodGet, "/media/"+record.MediaID+"/download", nil, inviteHeader(viewer.Token))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	actions := map[audit.Action]int{}
	for _, ev := range e.store.AuditEvents(teamID) {
		actions[ev.Action]++
	}
	assert.Equal(t, 1, actions[audit.ActionMediaPresign])
	assert.Equal(t, 2, actions[audit.ActionMediaComplete])
	assert.Equal(t, 1, actions[audit.ActionMediaDelete])
}

func TestMedia_UploadRejections(t *testing.T) {
	e := newTestEnv(t)
	_, admin := e.createTeam("Riverside", nil)
	_, otherAdmin := e.createTeam("Other", nil)

	tests := []struct {
		name        string
		contentType string
		size        int64
		status      int
		code        string
	}{
		{"unsupported type", "application/zip", 10, http.StatusBadRequest, httputil.CodeValidation},
		{"negative size", "image/png", -1, http.StatusBadRequest, httputil.CodeValidation},
		{"too large", "video/mp4", 21 * GiB, http.StatusRequestEntityTooLarge, httputil.CodePayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.presign(admin, "file", tt.contentType, tt.size)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorBody(t, w).Code)
		})
	}

	t.Run("complete before upload", func(t *testing.T) {
		w := e.presign(admin, "late.mp4", "video/mp4", 100)
		require.Equal(t, http.StatusOK, w.Code)
		p := decode[media.PresignedUpload](t, w)

		w = e.do(http.MethodPost, "/media/complete", map[string]any{
			"media_id": p.MediaID, "object_key": p.ObjectKey, "filename": "late.mp4",
			"content_type": "video/mp4", "size_bytes": 100,
		}, inviteHeader(admin))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("stored object larger than admitted", func(t *testing.T) {
		w := e.presign(admin, "big.mp4", "video/mp4", 100)
		require.Equal(t, http.StatusOK, w.Code)
		p := decode[media.PresignedUpload](t, w)
		e.objects.Put(p.ObjectKey, "video/mp4", 100*1024*1024)

		w = e.do(http.MethodPost, "/media/complete", map[string]any{
			"media_id": p.MediaID, "object_key": p.ObjectKey, "filename": "big.mp4",
			"content_type": "video/mp4", "size_bytes": 100 * 1024 * 1024,
		}, inviteHeader(admin))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, httputil.CodeValidation, errorBody(t, w).Code)
		assert.False(t, e.objects.Exists(p.ObjectKey))
		assert.Equal(t, int64(0), e.me(inviteHeader(admin)).Team.UsedBytes)
	})

	t.Run("foreign object key", func(t *testing.T) {
		w := e.presign(admin, "a.mp4", "video/mp4", 100)
		require.Equal(t, http.StatusOK, w.Code)
		p := decode[media.PresignedUpload](t, w)
		e.objects.Put(p.ObjectKey, "video/mp4", 100)

		w = e.do(http.MethodPost, "/media/complete", map[string]any{
			"media_id": p.MediaID, "object_key": p.ObjectKey, "filename": "a.mp4",
			"content_type": "video/mp4", "size_bytes": 100,
		}, inviteHeader(otherAdmin))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, int64(0), e.me(inviteHeader(admin)).Team.UsedBytes)
	})
}

func TestBilling_Checkout(t *testing.T) {
	e := newTestEnv(t)
	session := e.signIn("coach@example.com")
	teamID, admin := e.createTeam("Riverside", sessionHeader(session.Token))
	stranger := e.signIn("stranger@example.com")
	viewer := e.invite(admin, "viewer")

	t.Run("member admin by session", func(t *testing.T) {
		w := e.do(http.MethodPost, "/billing/checkout", map[string]string{"team_id": teamID, "plan": "pro"}, sessionHeader(session.Token))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), "https://checkout.test/"+teamID)
		assert.Equal(t, "price_pro", e.provider.lastCheckout.PriceID)
		assert.Equal(t, "coach@example.com", e.provider.lastCheckout.CustomerEmail)
	})

	t.Run("admin invite for own team", func(t *testing.T) {
		w := e.do(http.MethodPost, "/billing/checkout", map[string]string{"plan": "plus"}, inviteHeader(admin))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "price_plus", e.provider.lastCheckout.PriceID)
	})

	tests := []struct {
		name   string
		header http.Header
		body   map[string]string
		status int
	}{
		{"non member", sessionHeader(stranger.Token), map[string]string{"team_id": teamID, "plan": "pro"}, http.StatusForbidden},
		{"session without team", sessionHeader(session.Token), map[string]string{"plan": "pro"}, http.StatusBadRequest},
		{"viewer invite", inviteHeader(viewer.Token), map[string]string{"plan": "pro"}, http.StatusForbidden},
		{"free plan is not purchasable", inviteHeader(admin), map[string]string{"plan": "free"}, http.StatusBadRequest},
		{"no credentials", nil, map[string]string{"team_id": teamID, "plan": "pro"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/billing/checkout", tt.body, tt.header)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestBilling_UpgradeAndPortal(t *testing.T) {
	e := newTestEnv(t)
	teamID, admin := e.createTeam("Riverside", nil)

	w := e.do(http.MethodPost, "/billing/upgrade", map[string]string{"plan": "pro"}, inviteHeader(admin))
	assert.Equal(t, http.StatusConflict, w.Code, "no subscription yet")
	w = e.do(http.MethodPost, "/billing/portal", map[string]string{}, inviteHeader(admin))
	assert.Equal(t, http.StatusConflict, w.Code, "no customer yet")

	require.NoError(t, e.store.UpdateTeam(context.Background(), teamID, teams.TeamUpdate{
		StripeCustomerID:     teams.Set("cus_9"),
		StripeSubscriptionID: teams.Set("sub_9"),
	}))

	w = e.do(http.MethodPost, "/billing/upgrade", map[string]string{"plan": "pro"}, inviteHeader(admin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "price_pro", e.provider.lastPrice)

	w = e.do(http.MethodPost, "/billing/portal", map[string]string{}, inviteHeader(admin))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://portal.test/cus_9")
}

func TestBilling_NotConfigured(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) {
		d.Billing = nil
		d.Reconciler = nil
	})
	_, admin := e.createTeam("Riverside", nil)

	w := e.do(http.MethodPost, "/billing/checkout", map[string]string{"plan": "pro"}, inviteHeader(admin))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, httputil.CodeNotConfigured, errorBody(t, w).Code)

	w = e.do(http.MethodPost, "/billing/webhook", []byte(`{}`), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBillingWebhook_Rejections(t *testing.T) {
	e := newTestEnv(t)

	payload, header := signedWebhook(t, "evt_1", billing.EventSubscriptionUpdated, e.now, map[string]any{"id": "sub_1"})

	w := e.do(http.MethodPost, "/billing/webhook", payload, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing signature")

	header.Set(StripeSignatureHeader, "t=1,v1=deadbeef")
	w = e.do(http.MethodPost, "/billing/webhook", payload, header)
	assert.Equal(t, http.StatusBadRequest, w.Code, "bad signature")

	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected")))
}

func TestBillingWebhook_ProviderFailureIsRetryable(t *testing.T) {
	e := newTestEnv(t)

	// invoice for a subscription the provider cannot return
	payload, header := signedWebhook(t, "evt_2", billing.EventInvoicePaid, e.now,
		map[string]any{"id": "in_2", "object": "invoice", "subscription": "sub_missing"})
	w := e.do(http.MethodPost, "/billing/webhook", payload, header)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error.", errorBody(t, w).Message)

	seen, err := e.store.Seen(context.Background(), "evt_2")
	require.NoError(t, err)
	assert.False(t, seen, "failed events are released for redelivery")
}

func TestRepairStorage(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	teamID, admin := e.createTeam("Riverside", nil)
	otherID, _ := e.createTeam("Other", nil)
	e.upload(admin, "a.jpg", "image/jpeg", 4096)
	require.NoError(t, e.store.IncrementUsedBytes(ctx, teamID, 1000))
	require.NoError(t, e.store.IncrementUsedBytes(ctx, otherID, 77))

	key := http.Header{}
	key.Set(SetupKeyHeader, testSetupKey)

	t.Run("requires the setup key", func(t *testing.T) {
		w := e.do(http.MethodPost, "/admin/repair-storage", map[string]string{"team_id": teamID}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		wrong := http.Header{}
		wrong.Set(SetupKeyHeader, "nope")
		w = e.do(http.MethodPost, "/admin/repair-storage", map[string]string{"team_id": teamID}, wrong)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("requires a target", func(t *testing.T) {
		w := e.do(http.MethodPost, "/admin/repair-storage", map[string]string{}, key)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown team", func(t *testing.T) {
		w := e.do(http.MethodPost, "/admin/repair-storage", map[string]string{"team_id": "missing"}, key)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("one team", func(t *testing.T) {
		w := e.do(http.MethodPost, "/admin/repair-storage", map[string]string{"team_id": teamID}, key)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		view := decode[repairView](t, w)
		assert.Equal(t, int64(4096), view.TotalBytes)
		assert.Equal(t, int64(5096), view.PreviousBytes)
		assert.Equal(t, int64(-1000), view.DriftBytes)
		assert.Equal(t, 1, view.ItemCount)

		// second run finds nothing to fix
		w = e.do(http.MethodPost, "/admin/repair-storage", map[string]string{"team_id": teamID}, key)
		assert.Equal(t, int64(0), decode[repairView](t, w).DriftBytes)
	})

	t.Run("all teams", func(t *testing.T) {
		w := e.do(http.MethodPost, "/admin/repair-storage", map[string]any{"all": true}, key)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[struct {
			Repaired int          `json:"repaired"`
			Results  []repairView `json:"results"`
		}](t, w)
		assert.Equal(t, 2, resp.Repaired)

		other, err := e.store.GetTeam(ctx, otherID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), other.UsedBytes)
	})

	assert.Equal(t, 4.0, testutil.ToFloat64(e.metrics.RepairsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.RepairsTotal.WithLabelValues("error")))
}

func TestRepairStorage_NotConfigured(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.SetupKey = "" })
	w := e.do(http.MethodPost, "/admin/repair-storage", map[string]any{"all": true}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
