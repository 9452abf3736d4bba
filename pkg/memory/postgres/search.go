package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/loambase/loam/pkg/memory"
)

// liveFilter returns the retrieval-visibility predicate for each type:
// facts must be active, rules must not be forgotten, episodes must not
// have expired.
func liveFilter(typ memory.MemoryType) string {
	switch typ {
	case memory.TypeFact:
		return `validity = 'active'`
	case memory.TypeRule:
		return `NOT COALESCE((metadata->>'forgotten')::boolean, FALSE)`
	default:
		return `expires_at > now()`
	}
}

// SemanticSearch ranks items of one type by cosine similarity to the query
// embedding, descending.
func (s *Store) SemanticSearch(ctx context.Context, typ memory.MemoryType, query []float32, limit int) ([]memory.Hit, error) {
	table, err := tableFor(typ)
	if err != nil {
		return nil, err
	}

	cols, err := colsFor(typ)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT `+cols+`,
		1 - (embedding <=> $1) AS similarity
		FROM `+table+`
		WHERE `+liveFilter(typ)+`
		ORDER BY embedding <=> $1
		LIMIT $2`, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	return collectHits(rows, typ)
}

// KeywordSearch ranks items of one type by full-text relevance, descending.
// An empty query yields an empty result, not an error.
func (s *Store) KeywordSearch(ctx context.Context, typ memory.MemoryType, query string, limit int) ([]memory.Hit, error) {
	query = memory.SanitizeQuery(query)
	if query == "" {
		return nil, nil
	}

	table, err := tableFor(typ)
	if err != nil {
		return nil, err
	}

	cols, err := colsFor(typ)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT `+cols+`,
		ts_rank(content_tsv, plainto_tsquery('english', $1)) AS rank
		FROM `+table+`
		WHERE `+liveFilter(typ)+`
		AND content_tsv @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	return collectHits(rows, typ)
}

func colsFor(typ memory.MemoryType) (string, error) {
	switch typ {
	case memory.TypeEpisode:
		return episodeCols, nil
	case memory.TypeFact:
		return factCols, nil
	case memory.TypeRule:
		return ruleCols, nil
	}
	return "", fmt.Errorf("%w: %q (valid: episode, fact, rule)", memory.ErrInvalidMemoryType, typ)
}

// collectHits scans rows whose last column is the relevance score.
func collectHits(rows pgx.Rows, typ memory.MemoryType) ([]memory.Hit, error) {
	var hits []memory.Hit
	for rows.Next() {
		hit, err := scanHit(rows, typ)
		if err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func scanHit(rows pgx.Rows, typ memory.MemoryType) (memory.Hit, error) {
	hit := memory.Hit{Item: memory.Item{Type: typ}}

	switch typ {
	case memory.TypeEpisode:
		var e memory.Episode
		var meta memory.Metadata
		err := rows.Scan(&e.ID, &e.Scope, &e.SessionID, &e.Content, &e.Importance,
			&e.ReferenceCount, &e.Consolidated, &e.ConsolidationStatus,
			&e.RetryCount, &e.LastError, &e.CreatedAt, &e.LastReferencedAt,
			&e.ExpiresAt, &meta, &hit.Score)
		if err != nil {
			return hit, err
		}
		e.Metadata = &meta
		hit.Item.Episode = &e

	case memory.TypeFact:
		var f memory.Fact
		var meta memory.Metadata
		err := rows.Scan(&f.ID, &f.Subject, &f.Predicate, &f.Content, &f.Importance,
			&f.Confidence, &f.DecayRate, &f.Permanence, &f.Scope, &f.SourceEpisodeID,
			&f.SupersedesID, &f.EntityID, &f.Validity, &f.ReferenceCount,
			&f.CreatedAt, &f.LastReferencedAt, &f.LastConfirmedAt, &f.Tags, &meta,
			&hit.Score)
		if err != nil {
			return hit, err
		}
		f.Metadata = &meta
		hit.Item.Fact = &f

	case memory.TypeRule:
		var r memory.Rule
		var meta memory.Metadata
		err := rows.Scan(&r.ID, &r.Content, &r.Scope, &r.Maturity, &r.Confidence,
			&r.DecayRate, &r.Permanence, &r.EffectivenessScore, &r.AppliedCount,
			&r.SuccessCount, &r.HarmfulCount, &r.SourceEpisodeID, &r.CreatedAt,
			&r.LastAppliedAt, &r.LastEvaluatedAt, &r.LastConfirmedAt,
			&r.ReferenceCount, &r.LastReferencedAt, &r.Tags, &meta, &hit.Score)
		if err != nil {
			return hit, err
		}
		r.Metadata = &meta
		hit.Item.Rule = &r
	}

	return hit, nil
}
