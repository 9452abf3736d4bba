package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/loambase/loam/pkg/memory"
)

// CreateLink inserts a provenance edge. Duplicate inserts are no-ops.
func (s *Store) CreateLink(ctx context.Context, in memory.LinkInput) error {
	if err := in.SourceType.Validate(); err != nil {
		return err
	}
	if err := in.TargetType.Validate(); err != nil {
		return err
	}
	if err := in.Relation.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO memory_links
		(source_type, source_id, target_type, target_id, relation)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`,
		in.SourceType, in.SourceID, in.TargetType, in.TargetID, in.Relation)
	if err != nil {
		return fmt.Errorf("inserting link: %w", err)
	}
	return nil
}

// GetLinks returns edges touching an item, filtered by direction and
// optionally by relation.
func (s *Store) GetLinks(ctx context.Context, q memory.LinkQuery) ([]*memory.MemoryLink, error) {
	direction := q.Direction
	if direction == "" {
		direction = memory.DirectionBoth
	}

	var where string
	switch direction {
	case memory.DirectionOut:
		where = `source_type = $1 AND source_id = $2`
	case memory.DirectionIn:
		where = `target_type = $1 AND target_id = $2`
	case memory.DirectionBoth:
		where = `((source_type = $1 AND source_id = $2) OR (target_type = $1 AND target_id = $2))`
	default:
		return nil, fmt.Errorf("invalid link direction %q (valid: out, in, both)", direction)
	}

	args := []any{q.Type, q.ID}
	if q.Relation != nil {
		args = append(args, *q.Relation)
		where += fmt.Sprintf(` AND relation = $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, `SELECT source_type, source_id, target_type,
		target_id, relation, created_at
		FROM memory_links WHERE `+where+` ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var links []*memory.MemoryLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func scanLink(row pgx.Row) (*memory.MemoryLink, error) {
	var l memory.MemoryLink
	err := row.Scan(&l.SourceType, &l.SourceID, &l.TargetType, &l.TargetID,
		&l.Relation, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
