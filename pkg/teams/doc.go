// Package teams owns the per-team entitlement record: plan, storage limit, usage and
// subscription grace state, plus the quota admission check that guards uploads.
//
// # Overview
//
// Every team starts on the free plan. The billing reconciler moves teams between plans
// from Stripe webhooks; uploads move used_bytes; the repairer recomputes used_bytes from
// the media index when the two drift.
//
// # Plans
//
// Free: 10 GiB
//
// Plus: 50 GiB
//
// Pro: 200 GiB
//
// # Usage Example
//
// Admit an upload:
//
//	gate := teams.NewQuotaGate(store, teams.DefaultQuotaConfig())
//	decision, err := gate.AdmitUpload(ctx, teamID, size, "image/jpeg")
//	if err != nil {
//		// validation error or store failure
//	}
//	if !decision.Admitted {
//		return decision.Err() // *teams.QuotaError
//	}
//
// Partial update:
//
//	err := store.UpdateTeam(ctx, teamID, teams.TeamUpdate{
//		Plan:             teams.Set(teams.PlanPlus),
//		CurrentPeriodEnd: teams.Remove[time.Time](),
//	})
//
// # Related Packages
//
//   - pkg/billing: subscription reconciliation
//   - pkg/media: upload completion and the size index
package teams
