package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
)

// entityCols is the standard SELECT column list for scanEntity.
const entityCols = `id, tenant_id, canonical_name, entity_type, aliases,
	metadata, created_at, updated_at`

// notTombstoned filters entities merged away via metadata.merged_into.
const notTombstoned = `COALESCE(metadata->>'merged_into', '') = ''`

func scanEntity(row pgx.Row) (*memory.Entity, error) {
	var e memory.Entity
	var meta memory.Metadata
	err := row.Scan(&e.ID, &e.TenantID, &e.CanonicalName, &e.EntityType,
		&e.Aliases, &meta, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Metadata = &meta
	return &e, nil
}

// CreateEntity inserts an entity. (tenant, canonical name, type) is unique.
func (s *Store) CreateEntity(ctx context.Context, in memory.EntityInput) (*memory.Entity, error) {
	name := memory.SanitizeQuery(in.CanonicalName)
	if name == "" {
		return nil, fmt.Errorf("entity requires a non-empty canonical name")
	}
	if err := in.EntityType.Validate(); err != nil {
		return nil, err
	}

	aliases := in.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	id := uuid.New()
	row := s.pool.QueryRow(ctx, `INSERT INTO entities
		(id, tenant_id, canonical_name, entity_type, aliases, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+entityCols,
		id, in.TenantID, name, in.EntityType, aliases, in.Metadata.Clone())

	entity, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("inserting entity: %w", err)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeEntity),
		MemoryID:   entity.ID.String(),
	})

	return entity, nil
}

// GetEntity returns an entity by id.
func (s *Store) GetEntity(ctx context.Context, id uuid.UUID) (*memory.Entity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entityCols+` FROM entities WHERE id = $1`, id)
	entity, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: entity %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching entity: %w", err)
	}
	return entity, nil
}

func (s *Store) queryEntities(ctx context.Context, sql string, args ...any) ([]*memory.Entity, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []*memory.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// typeFilter appends an optional entity_type predicate. The returned
// fragment embeds the argument position of the appended value.
func typeFilter(typ *memory.EntityType, args []any) (string, []any) {
	if typ == nil {
		return "", args
	}
	args = append(args, *typ)
	return fmt.Sprintf(" AND entity_type = $%d", len(args)), args
}

// EntitiesByExactName returns non-tombstoned entities whose canonical name
// matches case-insensitively.
func (s *Store) EntitiesByExactName(ctx context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	args := []any{tenantID, name}
	filter, args := typeFilter(typ, args)
	return s.queryEntities(ctx, `SELECT `+entityCols+` FROM entities
		WHERE tenant_id = $1 AND lower(canonical_name) = lower($2)
		AND `+notTombstoned+filter+`
		ORDER BY canonical_name ASC`, args...)
}

// EntitiesByAlias returns non-tombstoned entities carrying the name as an
// alias, case-insensitively.
func (s *Store) EntitiesByAlias(ctx context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	args := []any{tenantID, name}
	filter, args := typeFilter(typ, args)
	return s.queryEntities(ctx, `SELECT `+entityCols+` FROM entities
		WHERE tenant_id = $1
		AND EXISTS (SELECT 1 FROM unnest(aliases) AS a WHERE lower(a) = lower($2))
		AND `+notTombstoned+filter+`
		ORDER BY canonical_name ASC`, args...)
}

// EntitiesBySubstring returns non-tombstoned entities whose canonical name
// or aliases contain the name as a substring.
func (s *Store) EntitiesBySubstring(ctx context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	pattern := "%" + escapeLike(strings.ToLower(name)) + "%"
	args := []any{tenantID, pattern}
	filter, args := typeFilter(typ, args)
	return s.queryEntities(ctx, `SELECT `+entityCols+` FROM entities
		WHERE tenant_id = $1
		AND (lower(canonical_name) LIKE $2
			OR EXISTS (SELECT 1 FROM unnest(aliases) AS a WHERE lower(a) LIKE $2))
		AND `+notTombstoned+filter+`
		ORDER BY canonical_name ASC`, args...)
}

// EntitiesByFuzzy returns trigram-similar entities. Degrades to an empty
// result when pg_trgm is not installed.
func (s *Store) EntitiesByFuzzy(ctx context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	if !s.fuzzyEnabled {
		return nil, nil
	}
	args := []any{tenantID, name}
	filter, args := typeFilter(typ, args)
	return s.queryEntities(ctx, `SELECT `+entityCols+` FROM entities
		WHERE tenant_id = $1
		AND similarity(lower(canonical_name), lower($2)) >= 0.3
		AND `+notTombstoned+filter+`
		ORDER BY similarity(lower(canonical_name), lower($2)) DESC, canonical_name ASC`,
		args...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// MergeEntities atomically folds source into target. Both rows are
// row-locked for the duration; source facts are re-pointed or superseded
// by confidence; aliases and metadata merge into the target; the source is
// tombstoned via metadata.merged_into.
func (s *Store) MergeEntities(ctx context.Context, sourceID, targetID uuid.UUID, tenantID string) (*memory.MergeResult, error) {
	if sourceID == targetID {
		return nil, memory.ErrMergeSelf
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning merge transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both rows in a stable order so concurrent merges cannot deadlock.
	first, second := sourceID, targetID
	if strings.Compare(second.String(), first.String()) < 0 {
		first, second = second, first
	}

	locked := make(map[uuid.UUID]*memory.Entity, 2)
	for _, id := range []uuid.UUID{first, second} {
		row := tx.QueryRow(ctx, `SELECT `+entityCols+` FROM entities
			WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, id, tenantID)
		e, err := scanEntity(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: entity %s", memory.ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("locking entity: %w", err)
		}
		locked[id] = e
	}
	source, target := locked[sourceID], locked[targetID]

	if source.Tombstoned() {
		return nil, fmt.Errorf("%w: %s", memory.ErrMergeTombstoned, sourceID)
	}

	result := &memory.MergeResult{SourceID: sourceID, TargetID: targetID}

	if err := s.mergeFacts(ctx, tx, sourceID, targetID, result); err != nil {
		return nil, err
	}

	merged, added := mergeAliases(target, source)
	result.AliasesAdded = added

	meta := mergeMetadata(target.Metadata, source.Metadata)

	if _, err := tx.Exec(ctx, `UPDATE entities
		SET aliases = $2, metadata = $3, updated_at = now()
		WHERE id = $1`, targetID, merged, meta); err != nil {
		return nil, fmt.Errorf("updating merge target: %w", err)
	}

	tomb := source.Metadata.Clone()
	tomb.MergedInto = targetID.String()
	if _, err := tx.Exec(ctx, `UPDATE entities
		SET metadata = $2, updated_at = now()
		WHERE id = $1`, sourceID, tomb); err != nil {
		return nil, fmt.Errorf("tombstoning merge source: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing merge: %w", err)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeEntityMerged,
		MemoryType: string(memory.TypeEntity),
		MemoryID:   sourceID.String(),
		Merge: &eventstream.MergeDetail{
			SourceID:        sourceID.String(),
			TargetID:        targetID.String(),
			TenantID:        tenantID,
			FactsRepointed:  result.FactsRepointed,
			FactsSuperseded: result.FactsSuperseded,
			AliasesAdded:    result.AliasesAdded,
		},
	})

	return result, nil
}

// mergeFacts re-points every source fact to the target entity. When an
// active source fact collides with an active target fact on
// (scope, predicate), the higher-confidence fact stays active and the
// other is superseded; ties favor the target.
func (s *Store) mergeFacts(ctx context.Context, tx pgx.Tx, sourceID, targetID uuid.UUID, result *memory.MergeResult) error {
	rows, err := tx.Query(ctx, `SELECT id, scope, predicate, confidence, validity
		FROM facts WHERE entity_id = $1 FOR UPDATE`, sourceID)
	if err != nil {
		return fmt.Errorf("locking source facts: %w", err)
	}

	type srcFact struct {
		id         uuid.UUID
		scope      string
		predicate  string
		confidence float64
		validity   memory.Validity
	}
	var srcFacts []srcFact
	for rows.Next() {
		var f srcFact
		if err := rows.Scan(&f.id, &f.scope, &f.predicate, &f.confidence, &f.validity); err != nil {
			rows.Close()
			return fmt.Errorf("scanning source fact: %w", err)
		}
		srcFacts = append(srcFacts, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range srcFacts {
		if f.validity != memory.ValidityActive {
			// Historical facts carry provenance only; move them over.
			if _, err := tx.Exec(ctx, `UPDATE facts SET entity_id = $2 WHERE id = $1`,
				f.id, targetID); err != nil {
				return fmt.Errorf("re-pointing fact: %w", err)
			}
			result.FactsRepointed++
			continue
		}

		var conflictID uuid.UUID
		var conflictConfidence float64
		err := tx.QueryRow(ctx, `SELECT id, confidence FROM facts
			WHERE entity_id = $1 AND scope = $2 AND predicate = $3 AND validity = 'active'
			FOR UPDATE`, targetID, f.scope, f.predicate,
		).Scan(&conflictID, &conflictConfidence)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if _, err := tx.Exec(ctx, `UPDATE facts SET entity_id = $2 WHERE id = $1`,
				f.id, targetID); err != nil {
				return fmt.Errorf("re-pointing fact: %w", err)
			}
			result.FactsRepointed++

		case err != nil:
			return fmt.Errorf("checking target fact conflict: %w", err)

		case f.confidence > conflictConfidence:
			// Source wins: target fact superseded, source moves over active.
			if _, err := tx.Exec(ctx, `UPDATE facts SET validity = 'superseded' WHERE id = $1`,
				conflictID); err != nil {
				return fmt.Errorf("superseding target fact: %w", err)
			}
			if _, err := tx.Exec(ctx, `UPDATE facts SET entity_id = $2, supersedes_id = $3 WHERE id = $1`,
				f.id, targetID, conflictID); err != nil {
				return fmt.Errorf("re-pointing winning fact: %w", err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO memory_links
				(source_type, source_id, target_type, target_id, relation)
				VALUES ('fact', $1, 'fact', $2, 'supersedes')
				ON CONFLICT DO NOTHING`, f.id, conflictID); err != nil {
				return fmt.Errorf("linking superseded fact: %w", err)
			}
			result.FactsSuperseded++

		default:
			// Target wins, ties included: source fact superseded and moved.
			if _, err := tx.Exec(ctx, `UPDATE facts SET entity_id = $2, validity = 'superseded' WHERE id = $1`,
				f.id, targetID); err != nil {
				return fmt.Errorf("superseding source fact: %w", err)
			}
			result.FactsSuperseded++
		}
	}

	return nil
}

// mergeAliases folds the source's canonical name and aliases into the
// target's alias set, deduplicating case-insensitively. The target's own
// canonical name never becomes an alias of itself.
func mergeAliases(target, source *memory.Entity) ([]string, int) {
	seen := map[string]bool{strings.ToLower(target.CanonicalName): true}
	merged := make([]string, 0, len(target.Aliases)+len(source.Aliases)+1)
	for _, a := range target.Aliases {
		key := strings.ToLower(a)
		if !seen[key] {
			seen[key] = true
			merged = append(merged, a)
		}
	}

	added := 0
	for _, a := range append([]string{source.CanonicalName}, source.Aliases...) {
		key := strings.ToLower(a)
		if !seen[key] {
			seen[key] = true
			merged = append(merged, a)
			added++
		}
	}
	return merged, added
}

// mergeMetadata combines the two metadata documents; the target wins on
// every conflicting field or label key.
func mergeMetadata(target, source *memory.Metadata) *memory.Metadata {
	out := target.Clone()
	src := source.Clone()

	if out.Status == "" {
		out.Status = src.Status
	}
	if !out.Forgotten {
		out.Forgotten = src.Forgotten
	}
	if !out.NeedsInversion {
		out.NeedsInversion = src.NeedsInversion
	}
	if len(out.HarmfulReasons) == 0 {
		out.HarmfulReasons = src.HarmfulReasons
	}
	if out.OriginalContent == "" {
		out.OriginalContent = src.OriginalContent
	}
	for k, v := range src.Labels {
		if out.Labels == nil {
			out.Labels = map[string]string{}
		}
		if _, ok := out.Labels[k]; !ok {
			out.Labels[k] = v
		}
	}
	return out
}
