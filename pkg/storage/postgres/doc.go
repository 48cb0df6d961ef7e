// Package postgres stores teams, memberships, invite tokens, user sessions, media
// records and the billing event ledger in PostgreSQL.
//
// Writes and read-your-write lookups go to the primary. Media listing is served by a
// read replica when one is configured through ConnectionManager.
//
// Usage:
//
//	cm, err := postgres.NewConnectionManager(ctx, postgres.DefaultConnectionConfig(url), logger)
//	if err := postgres.Migrate(ctx, cm.Primary()); err != nil { ... }
//	store := postgres.NewStore(cm.Primary()).WithReplicas(cm)
package postgres
