package api

import (
	"net/http"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/middleware"
)

// audit records an event for the team. Recording never fails the request.
func (s *Server) audit(r *http.Request, teamID string, action audit.Action, subject string, meta map[string]any) {
	s.Recorder.Record(r.Context(), teamID, action, subject, r, meta)
}

// subjectOf names the caller for audit: the linked user, otherwise the token hash
func subjectOf(r *http.Request) string {
	if p := middleware.PrincipalFrom(r.Context()); p != nil {
		return p.Subject
	}
	if u := middleware.UserFrom(r.Context()); u != nil {
		return u.UserID
	}
	return ""
}

func (s *Server) countQuotaDecision(result string) {
	if s.Metrics != nil {
		s.Metrics.QuotaDecisionsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Server) countWebhook(eventType, outcome string) {
	if s.Metrics == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	s.Metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (s *Server) countRepair(result string, drift int64) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.RepairsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		if drift < 0 {
			drift = -drift
		}
		s.Metrics.RepairDriftBytes.Observe(float64(drift))
	}
}
