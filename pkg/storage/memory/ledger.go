package memory

import (
	"context"

	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/billing"
)

func (s *Store) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ledger[eventID]
	return ok, nil
}

func (s *Store) Record(_ context.Context, entry *billing.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.ledger[entry.EventID] = &cp
	return nil
}

func (s *Store) Release(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ledger, eventID)
	return nil
}

// Write appends an audit event
func (s *Store) Write(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// AuditEvents returns the recorded audit events of a team in write order
func (s *Store) AuditEvents(teamID string) []*audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Event
	for _, e := range s.events {
		if e.TeamID == teamID {
			out = append(out, e)
		}
	}
	return out
}
