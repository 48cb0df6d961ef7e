package teams_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/mediahub/pkg/storage/memory"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

func ptr[T any](v T) *T { return &v }

func TestEvaluate_Bytes(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limit := 10 * teams.GiB

	tests := []struct {
		name     string
		used     int64
		size     int64
		admitted bool
	}{
		{"well under", 0, 100, true},
		{"exactly at limit", limit - 100, 100, true},
		{"one byte over", limit - 100, 101, false},
		{"already full", limit, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			team := &teams.Team{StorageLimitBytes: &limit, UsedBytes: tt.used}
			d := teams.Evaluate(team, tt.size, now, 7*24*time.Hour)
			assert.Equal(t, tt.admitted, d.Admitted)
			if !tt.admitted {
				assert.Equal(t, teams.ReasonStorageLimitExceeded, d.Reason)
				assert.Equal(t, limit, d.LimitBytes)
				assert.Equal(t, tt.used, d.UsedBytes)
			}
		})
	}
}

func TestEvaluate_Message(t *testing.T) {
	team := &teams.Team{StorageLimitGB: ptr(int64(10)), UsedBytes: 5 * teams.GiB}
	d := teams.Evaluate(team, 6*teams.GiB, time.Now(), time.Hour)
	require.False(t, d.Admitted)
	assert.Equal(t, "Storage limit exceeded (5.00GB / 10GB)", d.Message)

	err := d.Err()
	require.Error(t, err)
	assert.True(t, teams.IsQuotaExceeded(err))

	var qe *teams.QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, int64(5*teams.GiB), qe.Current)
	assert.Equal(t, int64(10*teams.GiB), qe.Limit)
}

func TestEvaluate_LimitFallbacks(t *testing.T) {
	assert.Equal(t, 10*teams.GiB, (&teams.Team{}).EffectiveLimitBytes())
	assert.Equal(t, 50*teams.GiB, (&teams.Team{StorageLimitGB: ptr(int64(50))}).EffectiveLimitBytes())
	assert.Equal(t, int64(1234), (&teams.Team{
		StorageLimitBytes: ptr(int64(1234)),
		StorageLimitGB:    ptr(int64(50)),
	}).EffectiveLimitBytes())
}

func TestEvaluate_GracePeriod(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	grace := 7 * 24 * time.Hour
	team := &teams.Team{
		SubscriptionStatus: teams.StatusPastDue,
		PastDueSince:       &t0,
	}

	t.Run("inside grace admits", func(t *testing.T) {
		d := teams.Evaluate(team, 1, t0.Add(6*24*time.Hour), grace)
		assert.True(t, d.Admitted)
	})

	t.Run("exactly at grace admits", func(t *testing.T) {
		d := teams.Evaluate(team, 1, t0.Add(grace), grace)
		assert.True(t, d.Admitted)
	})

	t.Run("after grace rejects", func(t *testing.T) {
		d := teams.Evaluate(team, 1, t0.Add(8*24*time.Hour), grace)
		assert.False(t, d.Admitted)
		assert.Equal(t, teams.ReasonPaymentPastDue, d.Reason)
	})

	t.Run("past due takes precedence over bytes", func(t *testing.T) {
		full := *team
		full.UsedBytes = 10 * teams.GiB
		d := teams.Evaluate(&full, 1, t0.Add(8*24*time.Hour), grace)
		assert.Equal(t, teams.ReasonPaymentPastDue, d.Reason)
	})

	t.Run("active status ignores stale past due timestamp", func(t *testing.T) {
		active := *team
		active.SubscriptionStatus = teams.StatusActive
		d := teams.Evaluate(&active, 1, t0.Add(30*24*time.Hour), grace)
		assert.True(t, d.Admitted)
	})
}

func TestQuotaGate_AdmitUpload(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	limit := 10 * teams.GiB
	require.NoError(t, store.CreateTeam(ctx, &teams.Team{ID: "t1", StorageLimitBytes: &limit, UsedBytes: limit - 10}))

	gate := teams.NewQuotaGate(store, teams.DefaultQuotaConfig())

	t.Run("admits", func(t *testing.T) {
		d, err := gate.AdmitUpload(ctx, "t1", 10, "image/jpeg")
		require.NoError(t, err)
		assert.True(t, d.Admitted)
	})

	t.Run("content type is case insensitive", func(t *testing.T) {
		d, err := gate.AdmitUpload(ctx, "t1", 10, "Image/PNG")
		require.NoError(t, err)
		assert.True(t, d.Admitted)
	})

	t.Run("rejects over limit as a decision", func(t *testing.T) {
		d, err := gate.AdmitUpload(ctx, "t1", 11, "image/jpeg")
		require.NoError(t, err)
		assert.False(t, d.Admitted)
		assert.Equal(t, teams.ReasonStorageLimitExceeded, d.Reason)
	})

	errs := []struct {
		name        string
		team        string
		size        int64
		contentType string
		want        error
	}{
		{"zero size", "t1", 0, "image/jpeg", teams.ErrInvalidSize},
		{"negative size", "t1", -1, "image/jpeg", teams.ErrInvalidSize},
		{"unsupported type", "t1", 10, "application/pdf", teams.ErrUnsupportedContentType},
		{"too large", "t1", 301 * 1024 * 1024, "video/mp4", teams.ErrTooLarge},
		{"missing team", "nope", 10, "image/jpeg", teams.ErrTeamNotFound},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.AdmitUpload(ctx, tt.team, tt.size, tt.contentType)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("uses injected clock", func(t *testing.T) {
		t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.CreateTeam(ctx, &teams.Team{
			ID:                 "t2",
			SubscriptionStatus: teams.StatusPastDue,
			PastDueSince:       &t0,
		}))
		late := gate.WithClock(func() time.Time { return t0.Add(8 * 24 * time.Hour) })
		d, err := late.AdmitUpload(ctx, "t2", 1, "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, teams.ReasonPaymentPastDue, d.Reason)
	})
}

func TestQuotaGate_CheckObject(t *testing.T) {
	gate := teams.NewQuotaGate(memory.New(), teams.DefaultQuotaConfig())

	tests := []struct {
		name        string
		size        int64
		contentType string
		want        error
	}{
		{"ok", 480, "image/jpeg", nil},
		{"at the cap", 300 * 1024 * 1024, "video/mp4", nil},
		{"empty", 0, "image/jpeg", teams.ErrInvalidSize},
		{"over the cap", 300*1024*1024 + 1, "video/mp4", teams.ErrTooLarge},
		{"wrong type", 480, "text/html", teams.ErrUnsupportedContentType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.CheckObject(tt.size, tt.contentType)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
