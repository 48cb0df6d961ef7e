package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

type signInRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type joinTeamRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	TeamCode string `json:"team_code" validate:"required,max=64"`
}

type verifyRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	TeamCode string `json:"team_code" validate:"omitempty,max=64"`
}

type sessionResponse struct {
	Token     string          `json:"token"`
	UserID    string          `json:"user_id"`
	Email     string          `json:"email"`
	ExpiresAt time.Time       `json:"expires_at"`
	Created   bool            `json:"created"`
	Team      *joinedTeamView `json:"team,omitempty"`
}

// joinedTeamView carries the team token minted when verification also joins a team
type joinedTeamView struct {
	TeamID          string    `json:"team_id"`
	TeamName        string    `json:"team_name"`
	Role            auth.Role `json:"role"`
	InviteToken     string    `json:"invite_token"`
	InviteExpiresAt time.Time `json:"invite_expires_at"`
}

// startSignIn handles POST /auth/signin. The response never reveals whether the address has an account.
func (s *Server) startSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}

	if err := s.MagicLink.Start(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, "", audit.ActionAuthSignIn, req.Email, nil)

	httputil.WriteSuccess(w, map[string]any{"ok": true})
}

// startJoinTeam handles POST /auth/join-team. It resolves the team code, then sends a
// sign-in code; verifying it with the same team_code adds the user to the team.
func (s *Server) startJoinTeam(w http.ResponseWriter, r *http.Request) {
	var req joinTeamRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}

	team, err := s.Teams.FindByCode(r.Context(), req.TeamCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.MagicLink.Start(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, team.ID, audit.ActionAuthJoinTeam, req.Email, nil)

	httputil.WriteSuccess(w, map[string]any{"ok": true, "email": req.Email, "team_name": team.Name})
}

// verifySignIn handles POST /auth/verify and returns a user session token. With a
// team_code the user also joins that team and receives a team token.
func (s *Server) verifySignIn(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}
	ctx := r.Context()

	// resolve the code before consuming the sign-in code
	var team *teams.Team
	if req.TeamCode != "" {
		var err error
		if team, err = s.Teams.FindByCode(ctx, req.TeamCode); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	session, err := s.MagicLink.Verify(ctx, req.Email, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, "", audit.ActionAuthVerify, session.User.ID, map[string]any{"created": session.Created})

	resp := sessionResponse{
		Token:     session.Secret,
		UserID:    session.User.ID,
		Email:     session.User.Email,
		ExpiresAt: session.ExpiresAt,
		Created:   session.Created,
	}
	if team != nil {
		joined, err := s.Teams.Join(ctx, session.User.ID, team.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if s.Metrics != nil {
			s.Metrics.TokensIssuedTotal.WithLabelValues(string(joined.Role)).Inc()
		}
		s.audit(r, team.ID, audit.ActionTeamJoin, session.User.ID, map[string]any{"role": string(joined.Role)})
		resp.Team = &joinedTeamView{
			TeamID:          joined.Team.ID,
			TeamName:        joined.Team.Name,
			Role:            joined.Role,
			InviteToken:     joined.Invite.Secret,
			InviteExpiresAt: joined.Invite.Record.ExpiresAt,
		}
	}
	httputil.WriteSuccess(w, resp)
}
