// Package consolidate runs the pipeline that turns raw episodes into
// durable knowledge: pending episodes are grouped by scope, an LLM
// collaborator extracts facts, rules, and confirmations from each group,
// and the extractions are applied to the store with provenance links back
// to the source episodes. Scopes fail independently; a bad batch never
// blocks the rest.
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/loambase/loam/pkg/entity"
	"github.com/loambase/loam/pkg/llm"
	"github.com/loambase/loam/pkg/memory"
)

const (
	// DefaultBatchSize bounds how many pending episodes one run picks up.
	DefaultBatchSize = 50

	// contextFactLimit and contextRuleLimit bound the existing knowledge
	// included in the extraction prompt.
	contextFactLimit = 100
	contextRuleLimit = 50

	// autoAttachScore is the minimum resolution score for attaching an
	// extracted fact to an entity without human review: exact or alias.
	autoAttachScore = entity.ScoreAlias
)

// Result reports what one consolidation run did.
type Result struct {
	ScopesProcessed      int `json:"scopes_processed"`
	EpisodesConsolidated int `json:"episodes_consolidated"`
	FactsCreated         int `json:"facts_created"`
	FactsUpdated         int `json:"facts_updated"`
	RulesCreated         int `json:"rules_created"`
	Confirmations        int `json:"confirmations"`

	// DryRun is set when no collaborator is configured; episodes stay
	// pending and nothing is written.
	DryRun bool `json:"dry_run"`

	// ParseErrors lists extraction payload problems that were skipped over.
	ParseErrors []string `json:"parse_errors,omitempty"`

	// ScopeErrors maps failed scopes to the error that sidelined them.
	ScopeErrors map[string]string `json:"scope_errors,omitempty"`
}

// Consolidator drives consolidation runs.
type Consolidator struct {
	store        memory.Store
	collaborator llm.Collaborator
	resolver     *entity.Resolver
	tenantID     string
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithCollaborator sets the extraction LLM. Without one, runs are dry runs.
func WithCollaborator(c llm.Collaborator) Option {
	return func(con *Consolidator) { con.collaborator = c }
}

// WithResolver enables entity attachment for extracted facts that name an
// entity. TenantID scopes the resolution.
func WithResolver(r *entity.Resolver, tenantID string) Option {
	return func(con *Consolidator) {
		con.resolver = r
		con.tenantID = tenantID
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(con *Consolidator) { con.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(con *Consolidator) { con.now = now }
}

// NewConsolidator creates a Consolidator over the given store.
func NewConsolidator(store memory.Store, opts ...Option) *Consolidator {
	c := &Consolidator{
		store:  store,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run picks up pending episodes, consolidates them scope by scope, and
// reports what changed. A failing scope is recorded and skipped; its
// episodes get error status and stay available for retry.
func (c *Consolidator) Run(ctx context.Context, batchSize int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	episodes, err := c.store.PendingEpisodes(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing pending episodes: %w", err)
	}

	result := &Result{DryRun: c.collaborator == nil}
	if len(episodes) == 0 {
		return result, nil
	}

	byScope := make(map[string][]*memory.Episode)
	for _, e := range episodes {
		byScope[e.Scope] = append(byScope[e.Scope], e)
	}
	scopes := make([]string, 0, len(byScope))
	for scope := range byScope {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	for _, scope := range scopes {
		batch := byScope[scope]
		if err := c.consolidateScope(ctx, scope, batch, result); err != nil {
			c.logger.Error("scope consolidation failed",
				zap.String("scope", scope),
				zap.Int("episodes", len(batch)),
				zap.Error(err),
			)
			if result.ScopeErrors == nil {
				result.ScopeErrors = make(map[string]string)
			}
			result.ScopeErrors[scope] = err.Error()
			for _, e := range batch {
				if markErr := c.store.MarkEpisodeError(ctx, e.ID, err.Error()); markErr != nil {
					c.logger.Warn("failed to mark episode error",
						zap.String("episode_id", e.ID.String()),
						zap.Error(markErr),
					)
				}
			}
			continue
		}
		result.ScopesProcessed++
	}
	return result, nil
}

func (c *Consolidator) consolidateScope(ctx context.Context, scope string, episodes []*memory.Episode, result *Result) error {
	facts, err := c.store.ActiveFacts(ctx, scope, contextFactLimit)
	if err != nil {
		return fmt.Errorf("loading scope facts: %w", err)
	}
	rules, err := c.store.ActiveRules(ctx, scope, contextRuleLimit)
	if err != nil {
		return fmt.Errorf("loading scope rules: %w", err)
	}

	if c.collaborator == nil {
		// Dry run: report the batch without touching the store.
		result.EpisodesConsolidated += len(episodes)
		return nil
	}

	prompt := buildPrompt(scope, episodes, facts, rules)
	raw, err := c.collaborator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generating extraction: %w", err)
	}

	extraction, parseErrs := parseExtraction(raw)
	result.ParseErrors = append(result.ParseErrors, parseErrs...)

	c.execute(ctx, scope, episodes, extraction, result)

	ids := make([]uuid.UUID, len(episodes))
	for i, e := range episodes {
		ids[i] = e.ID
	}
	if err := c.store.MarkEpisodesConsolidated(ctx, ids); err != nil {
		return fmt.Errorf("marking episodes consolidated: %w", err)
	}
	result.EpisodesConsolidated += len(episodes)
	return nil
}
