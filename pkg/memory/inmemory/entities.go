package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
)

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

	s.mu.Lock()
	for _, e := range s.entities {
		if e.TenantID == in.TenantID && e.EntityType == in.EntityType &&
			strings.EqualFold(e.CanonicalName, name) {
			s.mu.Unlock()
			return nil, fmt.Errorf("entity %q already exists for tenant %q", name, in.TenantID)
		}
	}

	now := s.now()
	entity := &memory.Entity{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		CanonicalName: name,
		EntityType:    in.EntityType,
		Aliases:       append([]string(nil), aliases...),
		Metadata:      in.Metadata.Clone(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.entities[entity.ID] = entity
	out := cloneEntity(entity)
	s.mu.Unlock()

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeEntity),
		MemoryID:   out.ID.String(),
	})
	return out, nil
}

// GetEntity returns an entity by id.
func (s *Store) GetEntity(_ context.Context, id uuid.UUID) (*memory.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", memory.ErrNotFound, id)
	}
	return cloneEntity(e), nil
}

// matchEntities snapshots non-tombstoned entities in a tenant that satisfy
// the predicate, ordered by canonical name. Callers hold s.mu.
func (s *Store) matchEntities(tenantID string, typ *memory.EntityType, match func(*memory.Entity) bool) []*memory.Entity {
	var entities []*memory.Entity
	for _, e := range s.entities {
		if e.TenantID != tenantID || e.Tombstoned() {
			continue
		}
		if typ != nil && e.EntityType != *typ {
			continue
		}
		if match(e) {
			entities = append(entities, cloneEntity(e))
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].CanonicalName < entities[j].CanonicalName
	})
	return entities
}

// EntitiesByExactName returns non-tombstoned entities whose canonical name
// matches case-insensitively.
func (s *Store) EntitiesByExactName(_ context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchEntities(tenantID, typ, func(e *memory.Entity) bool {
		return strings.EqualFold(e.CanonicalName, name)
	}), nil
}

// EntitiesByAlias returns non-tombstoned entities carrying the name as an
// alias, case-insensitively.
func (s *Store) EntitiesByAlias(_ context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchEntities(tenantID, typ, func(e *memory.Entity) bool {
		for _, a := range e.Aliases {
			if strings.EqualFold(a, name) {
				return true
			}
		}
		return false
	}), nil
}

// EntitiesBySubstring returns non-tombstoned entities whose canonical name
// or aliases contain the name as a substring.
func (s *Store) EntitiesBySubstring(_ context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	needle := strings.ToLower(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchEntities(tenantID, typ, func(e *memory.Entity) bool {
		if strings.Contains(strings.ToLower(e.CanonicalName), needle) {
			return true
		}
		for _, a := range e.Aliases {
			if strings.Contains(strings.ToLower(a), needle) {
				return true
			}
		}
		return false
	}), nil
}

// EntitiesByFuzzy returns trigram-similar entities (similarity >= 0.3),
// ordered by similarity descending then name.
func (s *Store) EntitiesByFuzzy(_ context.Context, tenantID, name string, typ *memory.EntityType) ([]*memory.Entity, error) {
	query := trigrams(name)

	s.mu.Lock()
	entities := s.matchEntities(tenantID, typ, func(e *memory.Entity) bool {
		return trigramSimilarity(query, trigrams(e.CanonicalName)) >= 0.3
	})
	s.mu.Unlock()

	sort.Slice(entities, func(i, j int) bool {
		si := trigramSimilarity(query, trigrams(entities[i].CanonicalName))
		sj := trigramSimilarity(query, trigrams(entities[j].CanonicalName))
		if si == sj {
			return entities[i].CanonicalName < entities[j].CanonicalName
		}
		return si > sj
	})
	return entities, nil
}

// trigrams returns the padded lowercase 3-gram set of a string, following
// the pg_trgm convention of two leading and one trailing blank.
func trigrams(s string) map[string]bool {
	padded := "  " + strings.ToLower(strings.TrimSpace(s)) + " "
	grams := make(map[string]bool)
	runes := []rune(padded)
	for i := 0; i+3 <= len(runes); i++ {
		grams[string(runes[i:i+3])] = true
	}
	return grams
}

// trigramSimilarity is the Jaccard similarity of two trigram sets.
func trigramSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for g := range a {
		if b[g] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// MergeEntities folds source into target under the store mutex: source
// facts are re-pointed or superseded by confidence, aliases and metadata
// merge into the target, and the source is tombstoned via
// metadata.merged_into.
func (s *Store) MergeEntities(ctx context.Context, sourceID, targetID uuid.UUID, tenantID string) (*memory.MergeResult, error) {
	if sourceID == targetID {
		return nil, memory.ErrMergeSelf
	}

	s.mu.Lock()
	source, ok := s.entities[sourceID]
	if !ok || source.TenantID != tenantID {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: entity %s", memory.ErrNotFound, sourceID)
	}
	target, ok := s.entities[targetID]
	if !ok || target.TenantID != tenantID {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: entity %s", memory.ErrNotFound, targetID)
	}
	if source.Tombstoned() {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", memory.ErrMergeTombstoned, sourceID)
	}

	result := &memory.MergeResult{SourceID: sourceID, TargetID: targetID}
	s.mergeFacts(sourceID, targetID, result)

	target.Aliases, result.AliasesAdded = mergedAliases(target, source)
	target.Metadata = mergedMetadata(target.Metadata, source.Metadata)

	source.Metadata = source.Metadata.Clone()
	source.Metadata.MergedInto = targetID.String()

	now := s.now()
	source.UpdatedAt = now
	target.UpdatedAt = now
	s.mu.Unlock()

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
// other is superseded; ties favor the target. Callers hold s.mu.
func (s *Store) mergeFacts(sourceID, targetID uuid.UUID, result *memory.MergeResult) {
	tid := targetID
	for _, f := range s.facts {
		if f.EntityID == nil || *f.EntityID != sourceID {
			continue
		}

		if f.Validity != memory.ValidityActive {
			f.EntityID = &tid
			result.FactsRepointed++
			continue
		}

		var conflict *memory.Fact
		for _, t := range s.facts {
			if t.EntityID != nil && *t.EntityID == targetID &&
				t.Scope == f.Scope && t.Predicate == f.Predicate &&
				t.Validity == memory.ValidityActive {
				conflict = t
				break
			}
		}

		switch {
		case conflict == nil:
			f.EntityID = &tid
			result.FactsRepointed++

		case f.Confidence > conflict.Confidence:
			conflict.Validity = memory.ValiditySuperseded
			cid := conflict.ID
			f.EntityID = &tid
			f.SupersedesID = &cid
			key := linkKey{memory.TypeFact, f.ID, memory.TypeFact, conflict.ID}
			if _, ok := s.links[key]; !ok {
				s.links[key] = &memory.MemoryLink{
					SourceType: memory.TypeFact,
					SourceID:   f.ID,
					TargetType: memory.TypeFact,
					TargetID:   conflict.ID,
					Relation:   memory.RelationSupersedes,
					CreatedAt:  s.now(),
				}
			}
			result.FactsSuperseded++

		default:
			f.EntityID = &tid
			f.Validity = memory.ValiditySuperseded
			result.FactsSuperseded++
		}
	}
}

// mergedAliases folds the source's canonical name and aliases into the
// target's alias set, deduplicating case-insensitively.
func mergedAliases(target, source *memory.Entity) ([]string, int) {
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

// mergedMetadata combines the two metadata documents; the target wins on
// every conflicting field or label key.
func mergedMetadata(target, source *memory.Metadata) *memory.Metadata {
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
