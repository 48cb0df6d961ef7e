package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// SetupKeyHeader authorizes operator endpoints
const SetupKeyHeader = "X-Setup-Key"

type repairRequest struct {
	TeamID string `json:"team_id" validate:"max=64"`
	All    bool   `json:"all"`
}

type repairView struct {
	TeamID        string  `json:"team_id"`
	ItemCount     int     `json:"item_count"`
	TotalBytes    int64   `json:"total_bytes"`
	TotalGB       float64 `json:"total_gb"`
	PreviousBytes int64   `json:"previous_bytes"`
	DriftBytes    int64   `json:"drift_bytes"`
}

func newRepairView(r *teams.RepairResult) repairView {
	return repairView{
		TeamID:        r.TeamID,
		ItemCount:     r.ItemCount,
		TotalBytes:    r.TotalBytes,
		TotalGB:       r.TotalGB(),
		PreviousBytes: r.Previous,
		DriftBytes:    r.Drift(),
	}
}

// repairStorage handles POST /admin/repair-storage. It recomputes used_bytes from the
// media index for one team, or for every team when all is set.
func (s *Server) repairStorage(w http.ResponseWriter, r *http.Request) {
	if s.SetupKey == "" || s.Repairer == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, httputil.CodeNotConfigured, "Storage repair is not configured.")
		return
	}
	key := strings.TrimSpace(r.Header.Get(SetupKeyHeader))
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.SetupKey)) != 1 {
		httputil.WriteUnauthorized(w, "Invalid setup key.")
		return
	}

	var req repairRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}
	req.TeamID = strings.TrimSpace(req.TeamID)
	if !req.All && req.TeamID == "" {
		httputil.WriteValidationError(w, "team_id or all is required.")
		return
	}

	var results []*teams.RepairResult
	if req.All {
		all, err := s.Repairer.RepairAll(r.Context())
		if err != nil {
			s.countRepair("error", 0)
			writeServiceError(w, r, err)
			return
		}
		results = all
	} else {
		one, err := s.Repairer.Repair(r.Context(), req.TeamID)
		if err != nil {
			s.countRepair("error", 0)
			writeServiceError(w, r, err)
			return
		}
		results = []*teams.RepairResult{one}
	}

	logger := observability.FromContext(r.Context())
	views := make([]repairView, 0, len(results))
	for _, res := range results {
		s.countRepair("ok", res.Drift())
		if res.Drift() != 0 {
			logger.WithFields(map[string]interface{}{
				"team_id":     res.TeamID,
				"drift_bytes": res.Drift(),
			}).Info("Corrected storage usage drift")
		}
		s.audit(r, res.TeamID, audit.ActionStorageRepair, "setup-key", map[string]any{
			"total_bytes":    res.TotalBytes,
			"previous_bytes": res.Previous,
		})
		views = append(views, newRepairView(res))
	}

	if !req.All {
		httputil.WriteSuccess(w, views[0])
		return
	}
	httputil.WriteSuccess(w, map[string]any{"repaired": len(views), "results": views})
}
