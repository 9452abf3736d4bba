package consolidate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/entity"
	"github.com/loambase/loam/pkg/memory"
)

// execute applies a parsed extraction to the store. Actions are isolated:
// one failing action is logged and recorded without aborting the rest, so
// a single bad id from the model cannot discard a whole batch of good
// knowledge.
func (c *Consolidator) execute(ctx context.Context, scope string, episodes []*memory.Episode, ext *extraction, result *Result) {
	sourceID := episodes[0].ID

	for i, nf := range ext.NewFacts {
		fact, err := c.createFact(ctx, scope, sourceID, nf)
		if err != nil {
			c.recordActionError(result, fmt.Sprintf("new_facts[%d]: %v", i, err))
			continue
		}
		c.linkToEpisodes(ctx, memory.TypeFact, fact.ID, episodes)
		result.FactsCreated++
	}

	for i, uf := range ext.UpdatedFacts {
		fact, err := c.updateFact(ctx, scope, sourceID, uf)
		if err != nil {
			c.recordActionError(result, fmt.Sprintf("updated_facts[%d]: %v", i, err))
			continue
		}
		c.linkToEpisodes(ctx, memory.TypeFact, fact.ID, episodes)
		result.FactsUpdated++
	}

	for i, nr := range ext.NewRules {
		rule, err := c.store.StoreRule(ctx, memory.RuleInput{
			Content:         nr.Content,
			Scope:           scope,
			Permanence:      memory.Permanence(nr.Permanence),
			SourceEpisodeID: &sourceID,
		})
		if err != nil {
			c.recordActionError(result, fmt.Sprintf("new_rules[%d]: %v", i, err))
			continue
		}
		c.linkToEpisodes(ctx, memory.TypeRule, rule.ID, episodes)
		result.RulesCreated++
	}

	for i, cf := range ext.Confirmations {
		id, err := uuid.Parse(cf.MemoryID)
		if err != nil {
			c.recordActionError(result, fmt.Sprintf("confirmations[%d]: invalid id %q", i, cf.MemoryID))
			continue
		}
		if err := c.store.ConfirmMemory(ctx, memory.MemoryType(cf.MemoryType), id); err != nil {
			c.recordActionError(result, fmt.Sprintf("confirmations[%d]: %v", i, err))
			continue
		}
		result.Confirmations++
	}
}

func (c *Consolidator) createFact(ctx context.Context, scope string, sourceID uuid.UUID, nf newFact) (*memory.Fact, error) {
	in := memory.FactInput{
		Subject:         nf.Subject,
		Predicate:       nf.Predicate,
		Content:         nf.Content,
		Scope:           scope,
		Importance:      nf.Importance,
		Permanence:      memory.Permanence(nf.Permanence),
		SourceEpisodeID: &sourceID,
	}

	if nf.EntityName != "" && c.resolver != nil {
		candidates, err := c.resolver.Resolve(ctx, c.tenantID, nf.EntityName, entity.Options{})
		if err != nil {
			return nil, fmt.Errorf("resolving entity %q: %w", nf.EntityName, err)
		}
		// Attach only on a confident match; an ambiguous name stays a plain
		// subject rather than polluting the wrong entity.
		if len(candidates) > 0 && candidates[0].Score >= autoAttachScore {
			id := candidates[0].Entity.ID
			in.EntityID = &id
		}
	}

	return c.store.StoreFact(ctx, in)
}

func (c *Consolidator) updateFact(ctx context.Context, scope string, sourceID uuid.UUID, uf updatedFact) (*memory.Fact, error) {
	prev, err := c.store.GetFact(ctx, uf.id)
	if err != nil {
		return nil, err
	}

	id := uf.id
	return c.store.StoreFact(ctx, memory.FactInput{
		Subject:         uf.Subject,
		Predicate:       uf.Predicate,
		Content:         uf.Content,
		Scope:           scope,
		Importance:      uf.Importance,
		Permanence:      memory.Permanence(uf.Permanence),
		SourceEpisodeID: &sourceID,
		EntityID:        prev.EntityID,
		Supersedes:      &id,
		Tags:            prev.Tags,
	})
}

// linkToEpisodes records derived_from provenance from a new item to every
// episode in the batch. Link failures degrade provenance, not the item.
func (c *Consolidator) linkToEpisodes(ctx context.Context, typ memory.MemoryType, id uuid.UUID, episodes []*memory.Episode) {
	for _, e := range episodes {
		err := c.store.CreateLink(ctx, memory.LinkInput{
			SourceType: typ,
			SourceID:   id,
			TargetType: memory.TypeEpisode,
			TargetID:   e.ID,
			Relation:   memory.RelationDerivedFrom,
		})
		if err != nil {
			c.logger.Warn("failed to create provenance link",
				zap.String("source_id", id.String()),
				zap.String("episode_id", e.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (c *Consolidator) recordActionError(result *Result, msg string) {
	c.logger.Warn("consolidation action skipped", zap.String("reason", msg))
	result.ParseErrors = append(result.ParseErrors, msg)
}
