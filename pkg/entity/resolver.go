// Package entity resolves free-form names to stable entity records. Four
// match tiers contribute base scores, conversational context and domain
// hints add boosts, and callers get a ranked candidate list to pick or
// confirm from. Merging duplicate entities delegates to the store's
// transactional merge.
package entity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/memory"
)

// Match tier base scores. A candidate keeps the best tier it matched.
const (
	ScoreExact  = 100.0
	ScoreAlias  = 80.0
	ScorePrefix = 50.0
	ScoreFuzzy  = 20.0
)

// Tier labels carried on candidates for explainability.
const (
	TierExact  = "exact"
	TierAlias  = "alias"
	TierPrefix = "prefix"
	TierFuzzy  = "fuzzy"
)

// MaxContextBoost caps the score added by conversational context overlap.
const MaxContextBoost = 20.0

// contextFactLimit bounds how many of an entity's facts feed the context
// overlap computation.
const contextFactLimit = 500

// minFuzzyNameLen gates the fuzzy tier: trigram similarity on one- and
// two-rune names is all noise.
const minFuzzyNameLen = 3

// Candidate is one scored resolution result.
type Candidate struct {
	Entity *memory.Entity `json:"entity"`
	Score  float64        `json:"score"`
	Tier   string         `json:"tier"`
}

// Options tune a resolve call.
type Options struct {
	// Type restricts candidates to one entity type.
	Type *memory.EntityType

	// Context is surrounding conversation text; token overlap with a
	// candidate's facts boosts its score.
	Context string

	// DomainScores adds a flat per-entity boost, letting callers bias
	// resolution toward identities their domain already trusts.
	DomainScores map[uuid.UUID]float64
}

// Resolver ranks entity candidates for a name.
type Resolver struct {
	store        memory.Store
	logger       *zap.Logger
	fuzzyEnabled bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithFuzzy enables the fuzzy match tier.
func WithFuzzy(enabled bool) Option {
	return func(r *Resolver) { r.fuzzyEnabled = enabled }
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store memory.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns ranked entity candidates for a name within a tenant.
// An unrecognized name yields an empty list, never an error.
func (r *Resolver) Resolve(ctx context.Context, tenantID, name string, opts Options) ([]Candidate, error) {
	name = memory.SanitizeQuery(name)
	if name == "" {
		return nil, nil
	}

	type tier struct {
		label string
		score float64
		query func(context.Context, string, string, *memory.EntityType) ([]*memory.Entity, error)
	}
	tiers := []tier{
		{TierExact, ScoreExact, r.store.EntitiesByExactName},
		{TierAlias, ScoreAlias, r.store.EntitiesByAlias},
		{TierPrefix, ScorePrefix, r.store.EntitiesBySubstring},
	}
	if r.fuzzyEnabled && len([]rune(name)) >= minFuzzyNameLen {
		tiers = append(tiers, tier{TierFuzzy, ScoreFuzzy, r.store.EntitiesByFuzzy})
	}

	seen := make(map[uuid.UUID]*Candidate)
	var candidates []*Candidate
	for _, t := range tiers {
		entities, err := t.query(ctx, tenantID, name, opts.Type)
		if err != nil {
			return nil, fmt.Errorf("%s entity lookup: %w", t.label, err)
		}
		for _, e := range entities {
			if _, ok := seen[e.ID]; ok {
				// Already matched at a better tier.
				continue
			}
			c := &Candidate{Entity: e, Score: t.score, Tier: t.label}
			seen[e.ID] = c
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	contextTokens := tokenSet(opts.Context)
	for _, c := range candidates {
		if len(contextTokens) > 0 {
			boost, err := r.contextBoost(ctx, c.Entity.ID, contextTokens)
			if err != nil {
				return nil, err
			}
			c.Score += boost
		}
		c.Score += opts.DomainScores[c.Entity.ID]
		c.Score = math.Round(c.Score*10000) / 10000
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Entity.CanonicalName < candidates[j].Entity.CanonicalName
	})

	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = *c
	}
	return out, nil
}

// contextBoost scores a candidate by the Jaccard overlap between the
// context tokens and the tokens of the entity's known facts.
func (r *Resolver) contextBoost(ctx context.Context, entityID uuid.UUID, contextTokens map[string]bool) (float64, error) {
	facts, err := r.store.FactsByEntity(ctx, entityID, contextFactLimit)
	if err != nil {
		return 0, fmt.Errorf("fetching facts for context boost: %w", err)
	}
	if len(facts) == 0 {
		return 0, nil
	}

	factTokens := make(map[string]bool)
	for _, f := range facts {
		for tok := range tokenSet(f.Subject + " " + f.Predicate + " " + f.Content) {
			factTokens[tok] = true
		}
	}
	return jaccard(contextTokens, factTokens) * MaxContextBoost, nil
}

func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]{}")
		if tok != "" {
			tokens[tok] = true
		}
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if b[tok] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// Merge folds the source entity into the target within a tenant and
// reports what changed.
func (r *Resolver) Merge(ctx context.Context, tenantID string, sourceID, targetID uuid.UUID) (*memory.MergeResult, error) {
	start := time.Now()
	result, err := r.store.MergeEntities(ctx, sourceID, targetID, tenantID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("entities merged",
		zap.String("source_id", sourceID.String()),
		zap.String("target_id", targetID.String()),
		zap.Int("facts_repointed", result.FactsRepointed),
		zap.Int("facts_superseded", result.FactsSuperseded),
		zap.Int("aliases_added", result.AliasesAdded),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}
