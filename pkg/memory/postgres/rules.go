package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
)

// ruleCols is the standard SELECT column list for scanRule.
const ruleCols = `id, content, scope, maturity, confidence, decay_rate, permanence,
	effectiveness_score, applied_count, success_count, harmful_count,
	source_episode_id, created_at, last_applied_at, last_evaluated_at,
	last_confirmed_at, reference_count, last_referenced_at, tags, metadata`

func scanRule(row pgx.Row) (*memory.Rule, error) {
	var r memory.Rule
	var meta memory.Metadata
	err := row.Scan(&r.ID, &r.Content, &r.Scope, &r.Maturity, &r.Confidence,
		&r.DecayRate, &r.Permanence, &r.EffectivenessScore, &r.AppliedCount,
		&r.SuccessCount, &r.HarmfulCount, &r.SourceEpisodeID, &r.CreatedAt,
		&r.LastAppliedAt, &r.LastEvaluatedAt, &r.LastConfirmedAt,
		&r.ReferenceCount, &r.LastReferencedAt, &r.Tags, &meta)
	if err != nil {
		return nil, err
	}
	r.Metadata = &meta
	return &r, nil
}

// StoreRule inserts a new candidate rule.
func (s *Store) StoreRule(ctx context.Context, in memory.RuleInput) (*memory.Rule, error) {
	content := memory.SanitizeContent(in.Content)
	if content == "" {
		return nil, fmt.Errorf("rule requires non-empty content")
	}

	permanence := in.Permanence
	if permanence == "" {
		permanence = memory.PermanenceStandard
	}
	decayRate, err := permanence.DecayRate()
	if err != nil {
		return nil, err
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence = memory.DefaultConfidence
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	row := s.pool.QueryRow(ctx, `INSERT INTO rules
		(id, content, embedding, scope, confidence, decay_rate, permanence,
		 source_episode_id, last_confirmed_at, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), $9, $10)
		RETURNING `+ruleCols,
		id, content, pgvector.NewVector(vec), in.Scope, confidence, decayRate,
		permanence, in.SourceEpisodeID, tags, in.Metadata.Clone())

	rule, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("inserting rule: %w", err)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeRule),
		MemoryID:   rule.ID.String(),
		Scope:      rule.Scope,
	})

	return rule, nil
}

// GetRule returns a rule without touching reference counters.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*memory.Rule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ruleCols+` FROM rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching rule: %w", err)
	}
	return rule, nil
}

// ActiveRules returns non-forgotten rules in a scope, most recent first.
func (s *Store) ActiveRules(ctx context.Context, scope string, limit int) ([]*memory.Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleCols+` FROM rules
		WHERE scope = $1 AND NOT COALESCE((metadata->>'forgotten')::boolean, FALSE)
		ORDER BY created_at DESC
		LIMIT $2`, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("querying active rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// UpdateRule persists feedback-driven changes. When reembed is set the
// embedding is regenerated from the rule's current content (anti-pattern
// inversion rewrites content).
func (s *Store) UpdateRule(ctx context.Context, r *memory.Rule, reembed bool) error {
	content := memory.SanitizeContent(r.Content)

	if reembed {
		vec, err := s.embed(ctx, content)
		if err != nil {
			return err
		}
		r.Embedding = vec
	}

	var tag pgconn.CommandTag
	var err error
	if reembed {
		tag, err = s.pool.Exec(ctx, `UPDATE rules SET
			content = $2, embedding = $3, maturity = $4, effectiveness_score = $5,
			applied_count = $6, success_count = $7, harmful_count = $8,
			last_applied_at = $9, last_evaluated_at = $10, metadata = $11
			WHERE id = $1`,
			r.ID, content, pgvector.NewVector(r.Embedding), r.Maturity,
			r.EffectivenessScore, r.AppliedCount, r.SuccessCount, r.HarmfulCount,
			r.LastAppliedAt, r.LastEvaluatedAt, r.Metadata.Clone())
	} else {
		tag, err = s.pool.Exec(ctx, `UPDATE rules SET
			content = $2, maturity = $3, effectiveness_score = $4,
			applied_count = $5, success_count = $6, harmful_count = $7,
			last_applied_at = $8, last_evaluated_at = $9, metadata = $10
			WHERE id = $1`,
			r.ID, content, r.Maturity, r.EffectivenessScore, r.AppliedCount,
			r.SuccessCount, r.HarmfulCount, r.LastAppliedAt, r.LastEvaluatedAt,
			r.Metadata.Clone())
	}
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rule %s", memory.ErrNotFound, r.ID)
	}
	return nil
}

// SetRuleForgotten flips metadata.forgotten=true.
func (s *Store) SetRuleForgotten(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rules
		SET metadata = metadata || '{"forgotten": true}'::jsonb
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("forgetting rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rule %s", memory.ErrNotFound, id)
	}
	return nil
}

// DecayableRules returns non-forgotten rules with decay_rate > 0.
func (s *Store) DecayableRules(ctx context.Context) ([]*memory.Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleCols+` FROM rules
		WHERE decay_rate > 0 AND NOT COALESCE((metadata->>'forgotten')::boolean, FALSE)`)
	if err != nil {
		return nil, fmt.Errorf("querying decayable rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]*memory.Rule, error) {
	var rules []*memory.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
