package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/middleware"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// StripeSignatureHeader carries the webhook signature
const StripeSignatureHeader = "Stripe-Signature"

type planRequest struct {
	TeamID string `json:"team_id" validate:"omitempty,max=64"`
	Plan   string `json:"plan" validate:"required,oneof=plus pro"`
}

type portalRequest struct {
	TeamID string `json:"team_id" validate:"omitempty,max=64"`
}

// billingTeam loads the team a billing request acts on. An admin invite token acts on
// its own team; a user session must name the team and hold an admin membership.
// It writes the error response itself and returns nil on failure.
func (s *Server) billingTeam(w http.ResponseWriter, r *http.Request, teamID string) *teams.Team {
	if s.Billing == nil {
		writeServiceError(w, r, billing.ErrNotConfigured)
		return nil
	}

	ctx := r.Context()
	if p := middleware.PrincipalFrom(ctx); p != nil && (teamID == "" || teamID == p.TeamID) {
		if err := auth.Authorize(p, auth.Roles(auth.RoleAdmin)); err != nil {
			writeServiceError(w, r, err)
			return nil
		}
		team, err := s.Teams.Get(ctx, p)
		if err != nil {
			writeServiceError(w, r, err)
			return nil
		}
		return team
	}

	u := middleware.UserFrom(ctx)
	if u == nil {
		writeServiceError(w, r, auth.ErrCrossTeam)
		return nil
	}
	if teamID == "" {
		httputil.WriteValidationError(w, "team_id is required.")
		return nil
	}
	team, err := s.Teams.AdminTeam(ctx, u.UserID, teamID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil
	}
	return team
}

// checkout handles POST /billing/checkout and returns a hosted checkout URL
func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}
	team := s.billingTeam(w, r, req.TeamID)
	if team == nil {
		return
	}

	email := ""
	if u := middleware.UserFrom(r.Context()); u != nil {
		email = u.Email
	}
	url, err := s.Billing.Checkout(r.Context(), team, teams.Plan(req.Plan), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, team.ID, audit.ActionBillingCheckout, subjectOf(r), map[string]any{"plan": req.Plan})

	httputil.WriteSuccess(w, map[string]any{"url": url})
}

// upgrade handles POST /billing/upgrade. The entitlement changes when the provider's webhook arrives.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}
	team := s.billingTeam(w, r, req.TeamID)
	if team == nil {
		return
	}

	snap, err := s.Billing.Upgrade(r.Context(), team, teams.Plan(req.Plan))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, team.ID, audit.ActionBillingUpgrade, subjectOf(r), map[string]any{
		"from": team.Plan,
		"to":   req.Plan,
	})

	httputil.WriteSuccess(w, map[string]any{
		"subscription_id": snap.ID,
		"status":          snap.Status,
		"plan":            req.Plan,
	})
}

// portal handles POST /billing/portal
func (s *Server) portal(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}
	team := s.billingTeam(w, r, req.TeamID)
	if team == nil {
		return
	}

	url, err := s.Billing.Portal(r.Context(), team)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"url": url})
}

// billingWebhook handles POST /billing/webhook. Errors other than a bad signature or
// payload answer 5xx so the provider retries the delivery.
func (s *Server) billingWebhook(w http.ResponseWriter, r *http.Request) {
	if s.Reconciler == nil {
		writeServiceError(w, r, billing.ErrNotConfigured)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, httputil.CodePayloadTooLarge, "Payload too large.")
			return
		}
		httputil.WriteValidationError(w, "Could not read request body.")
		return
	}

	result, err := s.Reconciler.ApplyWebhook(r.Context(), payload, r.Header.Get(StripeSignatureHeader))
	if err != nil {
		outcome := "error"
		if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrMalformedEvent) {
			outcome = "rejected"
		}
		s.countWebhook(result.EventType, outcome)
		writeServiceError(w, r, err)
		return
	}
	s.countWebhook(result.EventType, string(result.Outcome))
	if result.Handled() {
		s.audit(r, result.TeamID, audit.ActionBillingWebhook, result.EventID, map[string]any{
			"event_type": result.EventType,
		})
	}

	httputil.WriteSuccess(w, map[string]any{"received": true, "outcome": result.Outcome})
}
