package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/middleware"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

type presignRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"required"`
}

type completeRequest struct {
	MediaID     string `json:"media_id" validate:"required"`
	ObjectKey   string `json:"object_key" validate:"required"`
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,gt=0"`
	AlbumName   string `json:"album_name" validate:"max=120"`
}

// presignUpload handles POST /media/presign-upload. This is where the quota gate runs.
func (s *Server) presignUpload(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}

	actor := middleware.PrincipalFrom(r.Context())
	upload, err := s.Media.PresignUpload(r.Context(), actor, media.PresignRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		var quotaErr *teams.QuotaError
		if errors.As(err, &quotaErr) {
			s.countQuotaDecision(string(quotaErr.Reason))
		}
		writeServiceError(w, r, err)
		return
	}
	s.countQuotaDecision("admitted")
	s.audit(r, actor.TeamID, audit.ActionMediaPresign, actor.Subject, map[string]any{
		"media_id":     upload.MediaID,
		"content_type": req.ContentType,
		"size_bytes":   req.SizeBytes,
	})

	httputil.WriteSuccess(w, upload)
}

// completeUpload handles POST /media/complete
func (s *Server) completeUpload(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !httputil.DecodeAndValidate(w, r, s.validate, &req) {
		return
	}

	actor := middleware.PrincipalFrom(r.Context())
	record, err := s.Media.Complete(r.Context(), actor, media.CompleteRequest{
		MediaID:     req.MediaID,
		ObjectKey:   req.ObjectKey,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		AlbumName:   req.AlbumName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.UploadsCompletedTotal.Inc()
		s.Metrics.UploadedBytesTotal.Add(float64(record.SizeBytes))
	}
	s.audit(r, actor.TeamID, audit.ActionMediaComplete, actor.Subject, map[string]any{
		"media_id":   record.MediaID,
		"size_bytes": record.SizeBytes,
	})

	httputil.WriteSuccess(w, record)
}

// listMedia handles GET /media?limit=&cursor=
func (s *Server) listMedia(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", media.DefaultListLimit)
	if err != nil {
		httputil.WriteValidationError(w, "limit must be an integer.")
		return
	}

	page, err := s.Media.List(r.Context(), middleware.PrincipalFrom(r.Context()), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// downloadMedia handles GET /media/{id}/download
func (s *Server) downloadMedia(w http.ResponseWriter, r *http.Request) {
	download, err := s.Media.Download(r.Context(), middleware.PrincipalFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, download)
}

// deleteMedia handles DELETE /media/{id}
func (s *Server) deleteMedia(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFrom(r.Context())
	record, err := s.Media.Delete(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.audit(r, actor.TeamID, audit.ActionMediaDelete, actor.Subject, map[string]any{
		"media_id":   record.MediaID,
		"size_bytes": record.SizeBytes,
	})

	httputil.WriteSuccess(w, map[string]any{
		"deleted":    true,
		"media_id":   record.MediaID,
		"size_bytes": record.SizeBytes,
	})
}
