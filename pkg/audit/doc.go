// Package audit records security-relevant team actions.
//
// # Overview
//
// Every event is keyed by team and carries an action name, a hashed subject, and hashed
// client metadata. Raw tokens, IP addresses and user agents are never written.
// Recording is fire-and-forget: a failing sink is logged and never fails the request.
//
// # Usage Example
//
//	recorder := audit.NewRecorder(audit.NewMultiSink(dbSink, audit.NewLogSink(logger)), runner)
//	recorder.Record(ctx, teamID, audit.ActionInviteCreate, principal.Subject, r, map[string]any{
//		"role": "viewer",
//	})
//
// # Sinks
//
//   - DBSink: PostgreSQL table audit_events
//   - LogSink: structured log lines
//   - MultiSink: fan-out to several sinks
package audit
