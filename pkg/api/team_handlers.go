package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/middleware"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

type teamNameRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// teamView is the public shape of a team. Billing identifiers stay server-side.
type teamView struct {
	TeamID             string                   `json:"team_id"`
	TeamName           string                   `json:"team_name"`
	TeamCode           string                   `json:"team_code,omitempty"`
	Plan               teams.Plan               `json:"plan"`
	UsedBytes          int64                    `json:"used_bytes"`
	StorageLimitBytes  int64                    `json:"storage_limit_bytes"`
	StorageLimitGB     int64                    `json:"storage_limit_gb"`
	SubscriptionStatus teams.SubscriptionStatus `json:"subscription_status,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CurrentPeriodEnd   *time.Time               `json:"current_period_end,omitempty"`
	PastDueSince       *time.Time               `json:"past_due_since,omitempty"`
}

func newTeamView(t *teams.Team) *teamView {
	limit := t.EffectiveLimitBytes()
	return &teamView{
		TeamID:             t.ID,
		TeamName:           t.Name,
		Plan:               t.Plan,
		UsedBytes:          t.UsedBytes,
		StorageLimitBytes:  limit,
		StorageLimitGB:     limit / teams.GiB,
		SubscriptionStatus: t.SubscriptionStatus,
		CancelAtPeriodEnd:  t.CancelAtPeriodEnd,
		CurrentPeriodEnd:   t.CurrentPeriodEnd,
		PastDueSince:       t.PastDueSince,
	}
}

// newTeamViewFor adds the join code for admins. Anyone holding the code can join as an uploader.
func newTeamViewFor(t *teams.Team, role auth.Role) *teamView {
	v := newTeamView(t)
	if role == auth.RoleAdmin {
		v.TeamCode = t.Code
	}
	return v
}

type createTeamResponse struct {
	teamView
	AdminInviteToken     string    `json:"admin_invite_token"`
	AdminInviteExpiresAt time.Time `json:"admin_invite_expires_at"`
}

// createTeam handles POST /teams. A signed-in caller becomes the team's first admin member.
func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamNameRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}

	creator := ""
	if u := middleware.UserFrom(r.Context()); u != nil {
		creator = u.UserID
	}

	created, err := s.Teams.CreateTeam(r.Context(), req.Name, creator)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.TokensIssuedTotal.WithLabelValues(string(auth.RoleAdmin)).Inc()
	}
	s.audit(r, created.Team.ID, audit.ActionTeamCreate, creator, nil)

	httputil.WriteCreated(w, createTeamResponse{
		teamView:             *newTeamViewFor(created.Team, auth.RoleAdmin),
		AdminInviteToken:     created.AdminInvite.Secret,
		AdminInviteExpiresAt: created.AdminInvite.Record.ExpiresAt,
	})
}

// renameTeam handles POST /teams/{id}/rename
func (s *Server) renameTeam(w http.ResponseWriter, r *http.Request) {
	var req teamNameRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}

	teamID := mux.Vars(r)["id"]
	team, err := s.Teams.Rename(r.Context(), middleware.PrincipalFrom(r.Context()), teamID, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, teamID, audit.ActionTeamRename, subjectOf(r), nil)
	httputil.WriteSuccess(w, newTeamViewFor(team, auth.RoleAdmin))
}

type deleteTeamResponse struct {
	TeamID         string    `json:"team_id"`
	DeletedAt      time.Time `json:"deleted_at"`
	RevokedInvites int       `json:"revoked_invites"`
}

// deleteTeam handles DELETE /teams/{id}. An admin invite deletes its own team; a user
// session deletes a team it administers.
func (s *Server) deleteTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID := mux.Vars(r)["id"]

	var (
		deleted *teams.DeletedTeam
		err     error
	)
	p := middleware.PrincipalFrom(ctx)
	u := middleware.UserFrom(ctx)
	if u != nil && (p == nil || p.TeamID != teamID) {
		deleted, err = s.Teams.DeleteAsUser(ctx, u.UserID, teamID)
	} else {
		deleted, err = s.Teams.Delete(ctx, p, teamID)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, teamID, audit.ActionTeamDelete, subjectOf(r), map[string]any{"revoked_invites": deleted.RevokedInvites})

	httputil.WriteSuccess(w, deleteTeamResponse{
		TeamID:         teamID,
		DeletedAt:      *deleted.Team.DeletedAt,
		RevokedInvites: deleted.RevokedInvites,
	})
}

type userView struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type meResponse struct {
	User *userView `json:"user,omitempty"`
	Role auth.Role `json:"role,omitempty"`
	Team *teamView `json:"team,omitempty"`
}

// me handles GET /me for a session, an invite token, or both
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	var resp meResponse
	if u := middleware.UserFrom(r.Context()); u != nil {
		resp.User = &userView{UserID: u.UserID, Email: u.Email}
	}
	if p := middleware.PrincipalFrom(r.Context()); p != nil {
		team, err := s.Teams.Get(r.Context(), p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.Role = p.Role
		resp.Team = newTeamViewFor(team, p.Role)
	}
	httputil.WriteSuccess(w, resp)
}

type membershipView struct {
	teamView
	Role auth.Role `json:"role"`
}

// myTeams handles GET /me/teams
func (s *Server) myTeams(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFrom(r.Context())
	memberships, err := s.Teams.ListUserTeams(r.Context(), u.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]membershipView, 0, len(memberships))
	for _, m := range memberships {
		views = append(views, membershipView{teamView: *newTeamViewFor(m.Team, m.Role), Role: m.Role})
	}
	httputil.WriteSuccess(w, map[string]any{"teams": views})
}
