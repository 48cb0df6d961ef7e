package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

// writeServiceError maps a service error onto the error envelope. Unclassified
// errors are logged and answered with the generic 500 message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *teams.QuotaError
	if errors.As(err, &quotaErr) {
		status, code := http.StatusForbidden, httputil.CodeStorageLimit
		if quotaErr.Reason == teams.ReasonPaymentPastDue {
			status, code = http.StatusPaymentRequired, httputil.CodePaymentPastDue
		}
		httputil.WriteError(w, status, code, quotaErr.Error())
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCode), errors.Is(err, auth.ErrCodeUsed):
		httputil.WriteUnauthorized(w, "Invalid or expired code.")
	case errors.Is(err, auth.ErrUnauthorized):
		httputil.WriteUnauthorized(w, "Unauthorized.")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, teams.ErrNotMember):
		httputil.WriteForbidden(w, "You do not have permission to do that.")

	case errors.Is(err, teams.ErrTooLarge):
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, httputil.CodePayloadTooLarge, "File too large.")
	case errors.Is(err, teams.ErrInvalidSize):
		httputil.WriteValidationError(w, "size_bytes must be positive.")
	case errors.Is(err, teams.ErrUnsupportedContentType):
		httputil.WriteValidationError(w, "Unsupported content type.")
	case errors.Is(err, teams.ErrInvalidTeamName):
		httputil.WriteValidationError(w, "Team name is required.")
	case errors.Is(err, teams.ErrInvalidTeamCode):
		httputil.WriteValidationError(w, "Invalid team code format.")
	case errors.Is(err, auth.ErrInvalidRole):
		httputil.WriteValidationError(w, "role must be one of viewer, uploader, admin.")
	case errors.Is(err, auth.ErrInvalidEmail):
		httputil.WriteValidationError(w, "A valid email is required.")
	case errors.Is(err, media.ErrInvalidRequest):
		httputil.WriteValidationError(w, "media_id, object_key, filename, content_type and size_bytes are required.")
	case errors.Is(err, media.ErrForeignObjectKey):
		httputil.WriteValidationError(w, "object_key does not belong to this upload.")
	case errors.Is(err, media.ErrObjectMismatch):
		httputil.WriteValidationError(w, "Uploaded file does not match the requested upload.")
	case errors.Is(err, media.ErrInvalidCursor):
		httputil.WriteValidationError(w, "Invalid cursor.")
	case errors.Is(err, billing.ErrUnknownPlan):
		httputil.WriteValidationError(w, "plan must be one of plus, pro.")
	case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, billing.ErrMalformedEvent):
		httputil.WriteValidationError(w, "Invalid webhook payload.")

	case errors.Is(err, media.ErrObjectNotFound):
		httputil.WriteConflict(w, "Uploaded object not found yet. Retry after the upload finishes.")
	case errors.Is(err, auth.ErrAlreadyRevoked):
		httputil.WriteConflict(w, "Token already revoked.")
	case errors.Is(err, billing.ErrNoSubscription):
		httputil.WriteConflict(w, "Team has no active subscription.")
	case errors.Is(err, billing.ErrNoCustomer):
		httputil.WriteConflict(w, "Team has no billing account yet.")

	case errors.Is(err, auth.ErrTokenNotFound):
		httputil.WriteNotFound(w, "Token not found.")
	case errors.Is(err, media.ErrMediaNotFound):
		httputil.WriteNotFound(w, "Media not found.")
	case errors.Is(err, teams.ErrTeamNotFound):
		httputil.WriteNotFound(w, "Team not found.")

	case errors.Is(err, billing.ErrNotConfigured):
		httputil.WriteError(w, http.StatusServiceUnavailable, httputil.CodeNotConfigured, "Billing is not configured.")

	default:
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
