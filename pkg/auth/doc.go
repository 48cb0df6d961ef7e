// Package auth provides credential resolution, role gating and token issuance for team media hubs.
//
// # Overview
//
// Two kinds of bearer secret exist. Invite tokens bind a secret to a (team, role, expiry) triple
// and are what team members present for media operations. User session tokens are minted by
// the magic-link sign-in flow and identify an account, which matters for billing and team
// creation. Only the SHA-256 hex digest of either secret is ever stored.
//
// # Key Components
//
// Resolver: bearer secret to principal
//
//	resolver := auth.NewResolver(tokenStore, userStore)
//	principal, err := resolver.Resolve(ctx, secret)
//	switch {
//	case errors.Is(err, auth.ErrRevoked):
//	case errors.Is(err, auth.ErrExpired):
//	}
//
// Role gate: set membership on principal.Role
//
//	if err := auth.Authorize(principal, auth.MediaUpload); err != nil {
//		// auth.ErrForbidden
//	}
//
// Issuer: mint and revoke invite tokens
//
//	issued, err := issuer.Issue(ctx, auth.IssueRequest{TeamID: id, Role: auth.RoleViewer, TTLDays: 30})
//	// issued.Secret is returned exactly once
//	err = issuer.Revoke(ctx, adminPrincipal, issued.Record.TokenHash)
//
// Magic link: passwordless sign-in with 6-digit codes
//
//	err := magic.Start(ctx, "coach@example.com")
//	session, err := magic.Verify(ctx, "coach@example.com", "123456")
//
// # Error Model
//
// Every credential failure wraps ErrUnauthorized and every permission failure wraps ErrForbidden,
// so transports can map with a single errors.Is check while tests still assert the specific cause.
package auth
