package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/middleware"
)

type createInviteRequest struct {
	Role    string `json:"role" validate:"required,oneof=viewer uploader admin"`
	TTLDays int    `json:"ttl_days" validate:"min=0"`
}

type createInviteResponse struct {
	Token     string    `json:"token"`
	TokenHash string    `json:"token_hash"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type revokeInviteRequest struct {
	TokenHash string `json:"token_hash" validate:"required,len=64,hexadecimal"`
}

// createInvite handles POST /invites. The secret appears in this response only.
func (s *Server) createInvite(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFrom(r.Context())
	if err := auth.Authorize(actor, auth.InviteCreate); err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req createInviteRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	issued, err := s.Issuer.Issue(r.Context(), auth.IssueRequest{
		TeamID:    actor.TeamID,
		Role:      role,
		TTLDays:   req.TTLDays,
		CreatedBy: actor.Subject,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.TokensIssuedTotal.WithLabelValues(string(role)).Inc()
	}
	s.audit(r, actor.TeamID, audit.ActionInviteCreate, actor.Subject, map[string]any{
		"role":       role,
		"token_hash": issued.Record.TokenHash,
	})

	httputil.WriteCreated(w, createInviteResponse{
		Token:     issued.Secret,
		TokenHash: issued.Record.TokenHash,
		Role:      role,
		ExpiresAt: issued.Record.ExpiresAt,
	})
}

// listInvites handles GET /invites
func (s *Server) listInvites(w http.ResponseWriter, r *http.Request) {
	records, err := s.Issuer.List(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []*auth.TokenRecord{}
	}
	httputil.WriteSuccess(w, map[string]any{"invites": records})
}

// revokeInvite handles POST /invites/revoke
func (s *Server) revokeInvite(w http.ResponseWriter, r *http.Request) {
	var req revokeInviteRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}

	actor := middleware.PrincipalFrom(r.Context())
	if err := s.Issuer.Revoke(r.Context(), actor, req.TokenHash); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.TokensRevokedTotal.Inc()
	}
	s.audit(r, actor.TeamID, audit.ActionInviteRevoke, actor.Subject, map[string]any{"token_hash": req.TokenHash})

	httputil.WriteSuccess(w, map[string]any{"revoked": true, "token_hash": req.TokenHash})
}
