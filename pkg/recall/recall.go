// Package recall is the retrieval surface agents call before acting. It
// runs a hybrid search, re-scores candidates with a composite of relevance,
// importance, recency, and effective confidence, and bumps reference
// counters on everything it returns so recency feeds back into future
// recalls.
package recall

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/decay"
	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/search"
)

// Composite score weights. They sum to 1 so the final score stays in [0,1].
const (
	WeightRelevance  = 0.4
	WeightImportance = 0.3
	WeightRecency    = 0.2
	WeightConfidence = 0.1
)

// MinConfidence is the effective-confidence floor applied before scoring.
// Items below it are too decayed to surface.
const MinConfidence = 0.2

// recencyHalfLife is the reference-recency half-life in days.
const recencyHalfLife = 7.0

// maxFusedScore is the best score reciprocal rank fusion can produce:
// rank 1 in both backend lists.
const maxFusedScore = 2.0 / 61.0

// Result is one recalled item with its composite score and the components
// that produced it.
type Result struct {
	Item       memory.Item `json:"item"`
	Score      float64     `json:"score"`
	Relevance  float64     `json:"relevance"`
	Importance float64     `json:"importance"`
	Recency    float64     `json:"recency"`
	Confidence float64     `json:"confidence"`
}

// Options tune a recall call. Zero values take defaults: all memory types,
// limit 10.
type Options struct {
	Types []memory.MemoryType
	Limit int
}

// Recaller performs composite-scored retrieval.
type Recaller struct {
	store  memory.Store
	engine *search.Engine
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Recaller.
type Option func(*Recaller)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(r *Recaller) { r.logger = l }
}

// WithClock overrides the time source used for recency and confidence.
func WithClock(now func() time.Time) Option {
	return func(r *Recaller) { r.now = now }
}

// NewRecaller creates a Recaller over the given store and search engine.
func NewRecaller(store memory.Store, engine *search.Engine, opts ...Option) *Recaller {
	r := &Recaller{
		store:  store,
		engine: engine,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recall retrieves the memories most worth injecting into an agent's
// context for the query. Returned items have their reference counters
// bumped.
func (r *Recaller) Recall(ctx context.Context, query string, opts Options) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = search.DefaultLimit
	}

	// Over-fetch so composite re-ranking has candidates beyond the cut.
	hits, err := r.engine.Search(ctx, query, search.Options{
		Mode:          search.ModeHybrid,
		Types:         opts.Types,
		Limit:         limit * 3,
		MinConfidence: MinConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("recall search: %w", err)
	}

	now := r.now()
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, r.score(h, now))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.ID().String() < results[j].Item.ID().String()
	})
	if len(results) > limit {
		results = results[:limit]
	}

	refs := make([]memory.Ref, 0, len(results))
	for _, res := range results {
		refs = append(refs, memory.Ref{Type: res.Item.Type, ID: res.Item.ID()})
	}
	if len(refs) > 0 {
		if err := r.store.TouchMemories(ctx, refs); err != nil {
			// Retrieval still succeeded; recency just lags one recall behind.
			r.logger.Warn("failed to touch recalled memories", zap.Error(err))
		}
	}
	return results, nil
}

func (r *Recaller) score(h search.Result, now time.Time) Result {
	relevance := h.Score / maxFusedScore
	if relevance > 1 {
		relevance = 1
	}

	res := Result{
		Item:       h.Item,
		Relevance:  relevance,
		Importance: float64(itemImportance(h.Item)) / 10.0,
		Recency:    recencyScore(itemLastReferenced(h.Item), now),
		Confidence: decay.ItemConfidence(h.Item, now),
	}
	res.Score = WeightRelevance*res.Relevance +
		WeightImportance*res.Importance +
		WeightRecency*res.Recency +
		WeightConfidence*res.Confidence
	return res
}

// recencyScore decays by half every recencyHalfLife days since the last
// reference. Never-referenced items score zero.
func recencyScore(lastReferencedAt *time.Time, now time.Time) float64 {
	if lastReferencedAt == nil {
		return 0
	}
	days := now.Sub(*lastReferencedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	score := math.Exp(-math.Ln2 / recencyHalfLife * days)
	if score > 1 {
		score = 1
	}
	return score
}

func itemImportance(item memory.Item) int {
	switch item.Type {
	case memory.TypeEpisode:
		return item.Episode.Importance
	case memory.TypeFact:
		return item.Fact.Importance
	}
	// Rules carry no stored importance; treat them as mid-scale.
	return memory.DefaultImportance
}

func itemLastReferenced(item memory.Item) *time.Time {
	switch item.Type {
	case memory.TypeEpisode:
		return item.Episode.LastReferencedAt
	case memory.TypeFact:
		return item.Fact.LastReferencedAt
	case memory.TypeRule:
		return item.Rule.LastReferencedAt
	}
	return nil
}
