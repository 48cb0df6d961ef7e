package teams

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RepairResult reports one recomputation of used_bytes
type RepairResult struct {
	TeamID     string `json:"team_id"`
	ItemCount  int    `json:"item_count"`
	TotalBytes int64  `json:"total_bytes"`
	Previous   int64  `json:"previous_bytes"`
}

// Drift is the difference between stored and recomputed usage
func (r RepairResult) Drift() int64 {
	return r.TotalBytes - r.Previous
}

// TotalGB is the recomputed usage in GiB
func (r RepairResult) TotalGB() float64 {
	return float64(r.TotalBytes) / float64(GiB)
}

// Repairer recomputes used_bytes from the media index
type Repairer struct {
	store       Store
	index       UsageIndex
	concurrency int
}

// NewRepairer creates a repairer. concurrency bounds RepairAll; values below 1 mean 4.
func NewRepairer(store Store, index UsageIndex, concurrency int) *Repairer {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Repairer{store: store, index: index, concurrency: concurrency}
}

// Repair overwrites used_bytes with the sum of the team's media sizes. Running it twice is a no-op.
func (r *Repairer) Repair(ctx context.Context, teamID string) (*RepairResult, error) {
	team, err := r.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	items, total, err := r.index.SumSizeBytes(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum media sizes: %w", err)
	}

	if err := r.store.SetUsedBytes(ctx, teamID, total); err != nil {
		return nil, fmt.Errorf("failed to set used bytes: %w", err)
	}

	return &RepairResult{TeamID: teamID, ItemCount: items, TotalBytes: total, Previous: team.UsedBytes}, nil
}

// RepairAll repairs every team. The first failure cancels the remaining work.
func (r *Repairer) RepairAll(ctx context.Context) ([]*RepairResult, error) {
	ids, err := r.store.ListTeamIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	results := make([]*RepairResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := r.Repair(gctx, id)
			if err != nil {
				return fmt.Errorf("team %s: %w", id, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
