package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/httputil"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"storage limit", &teams.QuotaError{Reason: teams.ReasonStorageLimitExceeded, Message: "Storage limit exceeded"}, http.StatusForbidden, httputil.CodeStorageLimit},
		{"past due", &teams.QuotaError{Reason: teams.ReasonPaymentPastDue, Message: "Payment is past due"}, http.StatusPaymentRequired, httputil.CodePaymentPastDue},
		{"wrapped quota", fmt.Errorf("presign: %w", &teams.QuotaError{Reason: teams.ReasonStorageLimitExceeded}), http.StatusForbidden, httputil.CodeStorageLimit},
		{"bad code", auth.ErrInvalidCode, http.StatusUnauthorized, httputil.CodeUnauthorized},
		{"used code", auth.ErrCodeUsed, http.StatusUnauthorized, httputil.CodeUnauthorized},
		{"cross team", auth.ErrCrossTeam, http.StatusForbidden, httputil.CodeForbidden},
		{"forbidden", fmt.Errorf("%w: nope", auth.ErrForbidden), http.StatusForbidden, httputil.CodeForbidden},
		{"not member", teams.ErrNotMember, http.StatusForbidden, httputil.CodeForbidden},
		{"too large", teams.ErrTooLarge, http.StatusRequestEntityTooLarge, httputil.CodePayloadTooLarge},
		{"content type", teams.ErrUnsupportedContentType, http.StatusBadRequest, httputil.CodeValidation},
		{"foreign key", media.ErrForeignObjectKey, http.StatusBadRequest, httputil.CodeValidation},
		{"object mismatch", fmt.Errorf("%w: stored 5 bytes", media.ErrObjectMismatch), http.StatusBadRequest, httputil.CodeValidation},
		{"team code", teams.ErrInvalidTeamCode, http.StatusBadRequest, httputil.CodeValidation},
		{"bad signature", billing.ErrInvalidSignature, http.StatusBadRequest, httputil.CodeValidation},
		{"object missing", media.ErrObjectNotFound, http.StatusConflict, httputil.CodeConflict},
		{"already revoked", auth.ErrAlreadyRevoked, http.StatusConflict, httputil.CodeConflict},
		{"no subscription", billing.ErrNoSubscription, http.StatusConflict, httputil.CodeConflict},
		{"media missing", media.ErrMediaNotFound, http.StatusNotFound, httputil.CodeNotFound},
		{"team missing", teams.ErrTeamNotFound, http.StatusNotFound, httputil.CodeNotFound},
		{"billing off", billing.ErrNotConfigured, http.StatusServiceUnavailable, httputil.CodeNotConfigured},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, httputil.CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeServiceError(w, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorBody(t, w).Code)
		})
	}
}

func TestWriteServiceError_CrossTeamIsGenericForbidden(t *testing.T) {
	cross := httptest.NewRecorder()
	writeServiceError(cross, httptest.NewRequest(http.MethodGet, "/x", nil), auth.ErrCrossTeam)
	plain := httptest.NewRecorder()
	writeServiceError(plain, httptest.NewRequest(http.MethodGet, "/x", nil), auth.ErrForbidden)

	assert.Equal(t, plain.Code, cross.Code)
	assert.Equal(t, plain.Body.String(), cross.Body.String())
	assert.NotContains(t, cross.Body.String(), "another team")
}

func TestWriteServiceError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	writeServiceError(w, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: password authentication failed"))
	assert.NotContains(t, w.Body.String(), "pq:")
	assert.Equal(t, "Internal server error.", errorBody(t, w).Message)
}
