package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerConfig_ClampTTLDays(t *testing.T) {
	cfg := DefaultIssuerConfig()
	assert.Equal(t, 30, cfg.ClampTTLDays(0))
	assert.Equal(t, 1, cfg.ClampTTLDays(-5))
	assert.Equal(t, 7, cfg.ClampTTLDays(7))
	assert.Equal(t, 365, cfg.ClampTTLDays(365))
	assert.Equal(t, 365, cfg.ClampTTLDays(10000))
}

func TestIssuer_Issue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeTokenStore()
	issuer := NewIssuer(store, DefaultIssuerConfig()).WithClock(func() time.Time { return now })

	issued, err := issuer.Issue(context.Background(), IssueRequest{TeamID: "t1", Role: RoleViewer, TTLDays: 9999})
	require.NoError(t, err)

	assert.NotEmpty(t, issued.Secret)
	assert.Equal(t, HashSecret(issued.Secret), issued.Record.TokenHash)
	assert.Equal(t, now.Add(365*24*time.Hour), issued.Record.ExpiresAt)

	stored, err := store.GetToken(context.Background(), issued.Record.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, "t1", stored.TeamID)
	assert.Equal(t, RoleViewer, stored.Role)
	for _, rec := range store.records {
		assert.NotEqual(t, issued.Secret, rec.TokenHash)
	}
}

func TestIssuer_IssueRejectsBadInput(t *testing.T) {
	issuer := NewIssuer(newFakeTokenStore(), DefaultIssuerConfig())

	_, err := issuer.Issue(context.Background(), IssueRequest{TeamID: "t1", Role: "owner"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = issuer.Issue(context.Background(), IssueRequest{Role: RoleAdmin})
	assert.Error(t, err)
}

func TestIssuer_Revoke(t *testing.T) {
	ctx := context.Background()
	store := newFakeTokenStore()
	issuer := NewIssuer(store, DefaultIssuerConfig())

	target, err := issuer.Issue(ctx, IssueRequest{TeamID: "t1", Role: RoleViewer})
	require.NoError(t, err)
	hash := target.Record.TokenHash

	admin := &Principal{TeamID: "t1", Role: RoleAdmin}
	otherAdmin := &Principal{TeamID: "t2", Role: RoleAdmin}
	uploader := &Principal{TeamID: "t1", Role: RoleUploader}

	assert.ErrorIs(t, issuer.Revoke(ctx, uploader, hash), ErrForbidden)
	assert.ErrorIs(t, issuer.Revoke(ctx, otherAdmin, hash), ErrCrossTeam)
	assert.ErrorIs(t, issuer.Revoke(ctx, admin, "does-not-exist"), ErrTokenNotFound)

	require.NoError(t, issuer.Revoke(ctx, admin, hash))
	assert.ErrorIs(t, issuer.Revoke(ctx, admin, hash), ErrAlreadyRevoked)

	_, err = NewResolver(store, nil).Resolve(ctx, target.Secret)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestIssuer_AdminInviteThenRevokeViewer(t *testing.T) {
	ctx := context.Background()
	store := newFakeTokenStore()
	issuer := NewIssuer(store, DefaultIssuerConfig())
	resolver := NewResolver(store, nil)

	adminToken, err := issuer.Issue(ctx, IssueRequest{TeamID: "t1", Role: RoleAdmin, TTLDays: 365})
	require.NoError(t, err)
	admin, err := resolver.Resolve(ctx, adminToken.Secret)
	require.NoError(t, err)

	require.NoError(t, Authorize(admin, InviteCreate))
	viewerToken, err := issuer.Issue(ctx, IssueRequest{TeamID: admin.TeamID, Role: RoleViewer, CreatedBy: admin.Subject})
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(ctx, admin, viewerToken.Record.TokenHash))

	_, err = resolver.Resolve(ctx, viewerToken.Secret)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestIssuer_List(t *testing.T) {
	ctx := context.Background()
	issuer := NewIssuer(newFakeTokenStore(), DefaultIssuerConfig())
	_, err := issuer.Issue(ctx, IssueRequest{TeamID: "t1", Role: RoleViewer})
	require.NoError(t, err)
	_, err = issuer.Issue(ctx, IssueRequest{TeamID: "t2", Role: RoleViewer})
	require.NoError(t, err)

	records, err := issuer.List(ctx, &Principal{TeamID: "t1", Role: RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = issuer.List(ctx, &Principal{TeamID: "t1", Role: RoleViewer})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestIssuer_RevokeTeam(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeTokenStore()
	issuer := NewIssuer(store, DefaultIssuerConfig()).WithClock(func() time.Time { return now })

	var hashes []string
	for _, role := range []Role{RoleAdmin, RoleUploader, RoleViewer} {
		issued, err := issuer.Issue(ctx, IssueRequest{TeamID: "t1", Role: role})
		require.NoError(t, err)
		hashes = append(hashes, issued.Record.TokenHash)
	}
	other, err := issuer.Issue(ctx, IssueRequest{TeamID: "t2", Role: RoleAdmin})
	require.NoError(t, err)

	admin := &Principal{TeamID: "t1", Role: RoleAdmin}
	require.NoError(t, issuer.Revoke(ctx, admin, hashes[2]))

	n, err := issuer.RevokeTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "already revoked tokens are not counted")

	for _, hash := range hashes {
		rec, err := store.GetToken(ctx, hash)
		require.NoError(t, err)
		require.NotNil(t, rec.RevokedAt)
	}
	rec, err := store.GetToken(ctx, hashes[0])
	require.NoError(t, err)
	assert.Equal(t, now, *rec.RevokedAt)

	untouched, err := store.GetToken(ctx, other.Record.TokenHash)
	require.NoError(t, err)
	assert.Nil(t, untouched.RevokedAt)

	n, err = issuer.RevokeTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
