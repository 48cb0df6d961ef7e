package audit

import (
	"context"
	"errors"

	"github.com/platinummonkey/mediahub/pkg/observability"
)

// Sink persists audit events
type Sink interface {
	Write(ctx context.Context, event *Event) error
}

// MultiSink writes to several sinks in order
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink. Nil sinks are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Write continues past failing sinks and joins their errors
func (m *MultiSink) Write(ctx context.Context, event *Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events as structured log lines
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_event_id": event.EventID,
		"team_id":        event.TeamID,
		"action":         string(event.Action),
	}
	if event.SubjectHash != "" {
		fields["subject_hash"] = observability.ShortHash(event.SubjectHash)
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	s.logger.WithFields(fields).Info("audit")
	return nil
}
