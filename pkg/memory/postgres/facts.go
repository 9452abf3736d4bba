package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
)

// factCols is the standard SELECT column list for scanFact.
const factCols = `id, subject, predicate, content, importance, confidence,
	decay_rate, permanence, scope, source_episode_id, supersedes_id, entity_id,
	validity, reference_count, created_at, last_referenced_at, last_confirmed_at,
	tags, metadata`

func scanFact(row pgx.Row) (*memory.Fact, error) {
	var f memory.Fact
	var meta memory.Metadata
	err := row.Scan(&f.ID, &f.Subject, &f.Predicate, &f.Content, &f.Importance,
		&f.Confidence, &f.DecayRate, &f.Permanence, &f.Scope, &f.SourceEpisodeID,
		&f.SupersedesID, &f.EntityID, &f.Validity, &f.ReferenceCount,
		&f.CreatedAt, &f.LastReferencedAt, &f.LastConfirmedAt, &f.Tags, &meta)
	if err != nil {
		return nil, err
	}
	f.Metadata = &meta
	return &f, nil
}

// StoreFact inserts a fact, superseding any active fact that shares its
// uniqueness key. Supersession, link creation, and insert commit in one
// transaction so a crash can never leave two active facts for one key.
func (s *Store) StoreFact(ctx context.Context, in memory.FactInput) (*memory.Fact, error) {
	subject := memory.SanitizeQuery(in.Subject)
	predicate := memory.SanitizeQuery(in.Predicate)
	content := memory.SanitizeContent(in.Content)
	if subject == "" || predicate == "" || content == "" {
		return nil, fmt.Errorf("fact requires non-empty subject, predicate, and content")
	}

	permanence := in.Permanence
	if permanence == "" {
		permanence = memory.PermanenceStandard
	}
	decayRate, err := permanence.DecayRate()
	if err != nil {
		return nil, err
	}

	importance := in.Importance
	if importance == 0 {
		importance = memory.DefaultImportance
	}
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence = memory.DefaultConfidence
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	// Embed outside the transaction so no connection is held during the
	// provider round trip.
	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if in.EntityID != nil {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, *in.EntityID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking entity reference: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", memory.ErrUnknownEntity, *in.EntityID)
		}
	}

	superseded, err := s.supersedeByKey(ctx, tx, subject, predicate, in.Scope, in.EntityID)
	if err != nil {
		return nil, err
	}

	// An explicitly targeted supersession (consolidation's updated_facts)
	// is honored in addition to the key-based one.
	if in.Supersedes != nil && (superseded == nil || *in.Supersedes != *superseded) {
		tag, err := tx.Exec(ctx, `UPDATE facts SET validity = 'superseded'
			WHERE id = $1 AND validity = 'active'`, *in.Supersedes)
		if err != nil {
			return nil, fmt.Errorf("superseding target fact: %w", err)
		}
		if tag.RowsAffected() > 0 {
			superseded = in.Supersedes
		}
	}

	id := uuid.New()
	row := tx.QueryRow(ctx, `INSERT INTO facts
		(id, subject, predicate, content, embedding, importance, confidence,
		 decay_rate, permanence, scope, source_episode_id, supersedes_id,
		 entity_id, last_confirmed_at, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), $14, $15)
		RETURNING `+factCols,
		id, subject, predicate, content, pgvector.NewVector(vec), importance,
		confidence, decayRate, permanence, in.Scope, in.SourceEpisodeID,
		superseded, in.EntityID, tags, in.Metadata.Clone())

	fact, err := scanFact(row)
	if err != nil {
		return nil, fmt.Errorf("inserting fact: %w", err)
	}

	if superseded != nil {
		if _, err := tx.Exec(ctx, `INSERT INTO memory_links
			(source_type, source_id, target_type, target_id, relation)
			VALUES ('fact', $1, 'fact', $2, 'supersedes')
			ON CONFLICT DO NOTHING`, fact.ID, *superseded); err != nil {
			return nil, fmt.Errorf("linking superseded fact: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing fact: %w", err)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeFact),
		MemoryID:   fact.ID.String(),
		Scope:      fact.Scope,
	})

	return fact, nil
}

// supersedeByKey row-locks and supersedes the active fact sharing the new
// fact's uniqueness key, if one exists. Returns the superseded id.
func (s *Store) supersedeByKey(ctx context.Context, tx pgx.Tx, subject, predicate, scope string, entityID *uuid.UUID) (*uuid.UUID, error) {
	var row pgx.Row
	if entityID != nil {
		row = tx.QueryRow(ctx, `SELECT id FROM facts
			WHERE entity_id = $1 AND scope = $2 AND predicate = $3 AND validity = 'active'
			FOR UPDATE`, *entityID, scope, predicate)
	} else {
		row = tx.QueryRow(ctx, `SELECT id FROM facts
			WHERE subject = $1 AND predicate = $2 AND entity_id IS NULL AND validity = 'active'
			FOR UPDATE`, subject, predicate)
	}

	var existing uuid.UUID
	err := row.Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locating active fact for key: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE facts SET validity = 'superseded' WHERE id = $1`, existing); err != nil {
		return nil, fmt.Errorf("superseding fact: %w", err)
	}
	return &existing, nil
}

// GetFact returns a fact without touching reference counters.
func (s *Store) GetFact(ctx context.Context, id uuid.UUID) (*memory.Fact, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+factCols+` FROM facts WHERE id = $1`, id)
	fact, err := scanFact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: fact %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching fact: %w", err)
	}
	return fact, nil
}

// ActiveFacts returns active facts in a scope, most recent first.
func (s *Store) ActiveFacts(ctx context.Context, scope string, limit int) ([]*memory.Fact, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+factCols+` FROM facts
		WHERE scope = $1 AND validity = 'active'
		ORDER BY created_at DESC
		LIMIT $2`, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("querying active facts: %w", err)
	}
	defer rows.Close()
	return collectFacts(rows)
}

// FactsByEntity returns a bounded set of facts attached to an entity.
func (s *Store) FactsByEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]*memory.Fact, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+factCols+` FROM facts
		WHERE entity_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying entity facts: %w", err)
	}
	defer rows.Close()
	return collectFacts(rows)
}

// SetFactValidity updates a single fact's validity.
func (s *Store) SetFactValidity(ctx context.Context, id uuid.UUID, v memory.Validity) error {
	tag, err := s.pool.Exec(ctx, `UPDATE facts SET validity = $2 WHERE id = $1`, id, v)
	if err != nil {
		return fmt.Errorf("updating fact validity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: fact %s", memory.ErrNotFound, id)
	}
	return nil
}

// DecayableFacts returns active facts with decay_rate > 0.
func (s *Store) DecayableFacts(ctx context.Context) ([]*memory.Fact, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+factCols+` FROM facts
		WHERE validity = 'active' AND decay_rate > 0`)
	if err != nil {
		return nil, fmt.Errorf("querying decayable facts: %w", err)
	}
	defer rows.Close()
	return collectFacts(rows)
}

func collectFacts(rows pgx.Rows) ([]*memory.Fact, error) {
	var facts []*memory.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
