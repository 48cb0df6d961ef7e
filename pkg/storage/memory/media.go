package memory

import (
	"context"
	"sort"

	"github.com/platinummonkey/mediahub/pkg/media"
)

func (s *Store) PutMedia(_ context.Context, record *media.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.media[record.TeamID]
	if !ok {
		byID = map[string]*media.Record{}
		s.media[record.TeamID] = byID
	}
	cp := *record
	byID[record.MediaID] = &cp
	return nil
}

func (s *Store) GetMedia(_ context.Context, teamID, mediaID string) (*media.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.media[teamID][mediaID]
	if !ok {
		return nil, media.ErrMediaNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) DeleteMedia(_ context.Context, teamID, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[teamID][mediaID]; !ok {
		return media.ErrMediaNotFound
	}
	delete(s.media[teamID], mediaID)
	return nil
}

func (s *Store) ListMedia(_ context.Context, teamID string, limit int, cursor string) ([]*media.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*media.Record
	for _, rec := range s.media[teamID] {
		if cursor == "" || rec.SortKey < cursor {
			cp := *rec
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SortKey > all[j].SortKey })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) SumSizeBytes(_ context.Context, teamID string) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, rec := range s.media[teamID] {
		total += rec.SizeBytes
	}
	return len(s.media[teamID]), total, nil
}
