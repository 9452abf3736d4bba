package postgres

import (
	"context"
	"fmt"

	"github.com/loambase/loam/pkg/memory"
)

// RunEpisodeCleanup deletes expired episodes, then evicts the oldest
// consolidated episodes until the remaining count fits capacity.
// Unconsolidated episodes are never removed by capacity pressure, only by
// TTL. Safe to re-run; a pass over a clean store returns all-zero counts
// (plus the surviving remainder).
func (s *Store) RunEpisodeCleanup(ctx context.Context, capacity int) (memory.CleanupResult, error) {
	var result memory.CleanupResult

	if capacity <= 0 {
		capacity = memory.DefaultEpisodeCapacity
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM episodes WHERE expires_at < now()`)
	if err != nil {
		return result, fmt.Errorf("deleting expired episodes: %w", err)
	}
	result.ExpiredDeleted = int(tag.RowsAffected())

	var remaining int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM episodes`).Scan(&remaining); err != nil {
		return result, fmt.Errorf("counting episodes: %w", err)
	}

	if remaining > capacity {
		tag, err := s.pool.Exec(ctx, `DELETE FROM episodes WHERE id IN (
			SELECT id FROM episodes
			WHERE consolidated
			ORDER BY created_at ASC
			LIMIT $1)`, remaining-capacity)
		if err != nil {
			return result, fmt.Errorf("evicting consolidated episodes: %w", err)
		}
		result.CapacityDeleted = int(tag.RowsAffected())
		remaining -= result.CapacityDeleted
	}

	result.Remaining = remaining
	return result, nil
}
