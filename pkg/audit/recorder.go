package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/mediahub/pkg/contextkeys"
	"github.com/platinummonkey/mediahub/pkg/httputil"
)

// Dispatcher runs work in the background and swallows its errors
type Dispatcher interface {
	Go(ctx context.Context, taskName string, fn func(context.Context) error)
}

// Recorder builds privacy-preserving events and hands them to a sink in the background
type Recorder struct {
	sink       Sink
	dispatcher Dispatcher
	now        func() time.Time
}

// NewRecorder creates a recorder
func NewRecorder(sink Sink, dispatcher Dispatcher) *Recorder {
	return &Recorder{sink: sink, dispatcher: dispatcher, now: time.Now}
}

// WithClock returns a copy using now as its clock
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	clone := *r
	clone.now = now
	return &clone
}

// Record never blocks on the sink and never reports failure. req may be nil.
func (r *Recorder) Record(ctx context.Context, teamID string, action Action, subject string, req *http.Request, meta map[string]any) {
	if r == nil || r.sink == nil {
		return
	}

	event := r.Build(ctx, teamID, action, subject, req, meta)
	r.dispatcher.Go(ctx, "audit "+string(action), func(ctx context.Context) error {
		return r.sink.Write(ctx, event)
	})
}

// Build creates the event Record would write
func (r *Recorder) Build(ctx context.Context, teamID string, action Action, subject string, req *http.Request, meta map[string]any) *Event {
	event := &Event{
		EventID:     uuid.NewString(),
		TeamID:      teamID,
		Timestamp:   r.now().UTC(),
		Action:      action,
		SubjectHash: Hash(subject),
		RequestID:   contextkeys.GetRequestID(ctx),
		Meta:        meta,
	}
	if req != nil {
		event.IPHash = Hash(httputil.ClientIP(req))
		event.UAHash = Hash(req.UserAgent())
	}
	return event
}

// Hash returns the SHA-256 hex digest of s, or "" for an empty string
func Hash(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
