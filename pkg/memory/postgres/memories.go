package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
)

// tableFor maps a memory type to its table name. Types are validated
// before use; the map never feeds unvalidated input into SQL.
func tableFor(typ memory.MemoryType) (string, error) {
	switch typ {
	case memory.TypeEpisode:
		return "episodes", nil
	case memory.TypeFact:
		return "facts", nil
	case memory.TypeRule:
		return "rules", nil
	}
	return "", fmt.Errorf("%w: %q (valid: episode, fact, rule)", memory.ErrInvalidMemoryType, typ)
}

// GetMemory fetches an item by type and id, atomically bumping its
// reference_count and last_referenced_at in the same statement.
// Returns (nil, nil) if the item does not exist.
func (s *Store) GetMemory(ctx context.Context, typ memory.MemoryType, id uuid.UUID) (*memory.Item, error) {
	table, err := tableFor(typ)
	if err != nil {
		return nil, err
	}

	update := `UPDATE ` + table + `
		SET reference_count = reference_count + 1, last_referenced_at = now()
		WHERE id = $1 RETURNING `

	item := &memory.Item{Type: typ}
	switch typ {
	case memory.TypeEpisode:
		item.Episode, err = scanEpisode(s.pool.QueryRow(ctx, update+episodeCols, id))
	case memory.TypeFact:
		item.Fact, err = scanFact(s.pool.QueryRow(ctx, update+factCols, id))
	case memory.TypeRule:
		item.Rule, err = scanRule(s.pool.QueryRow(ctx, update+ruleCols, id))
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", typ, err)
	}
	return item, nil
}

// ConfirmMemory resets last_confirmed_at to now, restoring effective
// confidence to the stored confidence. Episodes have no confidence concept
// and are rejected.
func (s *Store) ConfirmMemory(ctx context.Context, typ memory.MemoryType, id uuid.UUID) error {
	if typ == memory.TypeEpisode {
		return memory.ErrNoConfidence
	}
	table, err := tableFor(typ)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET last_confirmed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("confirming %s: %w", typ, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", memory.ErrNotFound, typ, id)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeConfirmed,
		MemoryType: string(typ),
		MemoryID:   id.String(),
	})
	return nil
}

// ForgetMemory removes an item from retrieval with type-dependent
// semantics: episodes expire immediately, facts are retracted, rules are
// marked forgotten.
func (s *Store) ForgetMemory(ctx context.Context, typ memory.MemoryType, id uuid.UUID) error {
	var tag int64
	switch typ {
	case memory.TypeEpisode:
		res, err := s.pool.Exec(ctx,
			`UPDATE episodes SET expires_at = now() WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("forgetting episode: %w", err)
		}
		tag = res.RowsAffected()
	case memory.TypeFact:
		res, err := s.pool.Exec(ctx,
			`UPDATE facts SET validity = 'retracted' WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("forgetting fact: %w", err)
		}
		tag = res.RowsAffected()
	case memory.TypeRule:
		return s.forgetRule(ctx, id)
	default:
		return fmt.Errorf("%w: %q (valid: episode, fact, rule)", memory.ErrInvalidMemoryType, typ)
	}

	if tag == 0 {
		return fmt.Errorf("%w: %s %s", memory.ErrNotFound, typ, id)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeForgotten,
		MemoryType: string(typ),
		MemoryID:   id.String(),
	})
	return nil
}

func (s *Store) forgetRule(ctx context.Context, id uuid.UUID) error {
	if err := s.SetRuleForgotten(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeForgotten,
		MemoryType: string(memory.TypeRule),
		MemoryID:   id.String(),
	})
	return nil
}

// TouchMemories bumps reference counters for every referenced item. Used
// by recall, which is never a pure read.
func (s *Store) TouchMemories(ctx context.Context, refs []memory.Ref) error {
	byType := map[memory.MemoryType][]uuid.UUID{}
	for _, ref := range refs {
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	for typ, ids := range byType {
		table, err := tableFor(typ)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, `UPDATE `+table+`
			SET reference_count = reference_count + 1, last_referenced_at = now()
			WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("touching %ss: %w", typ, err)
		}
	}
	return nil
}

// SetFading sets or clears metadata.status="fading" on a fact or rule.
// Each row update commits independently; the decay sweep is idempotent.
func (s *Store) SetFading(ctx context.Context, typ memory.MemoryType, id uuid.UUID, fading bool) error {
	if typ != memory.TypeFact && typ != memory.TypeRule {
		return fmt.Errorf("%w: %q (valid: fact, rule)", memory.ErrInvalidMemoryType, typ)
	}
	table, _ := tableFor(typ)

	var sql string
	if fading {
		sql = `UPDATE ` + table + ` SET metadata = metadata || '{"status": "fading"}'::jsonb WHERE id = $1`
	} else {
		sql = `UPDATE ` + table + ` SET metadata = metadata - 'status' WHERE id = $1`
	}

	tag, err := s.pool.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("updating fading status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", memory.ErrNotFound, typ, id)
	}
	return nil
}
