// Package search implements hybrid retrieval over the memory store: vector
// similarity, full-text matching, and a reciprocal-rank-fusion combination
// of the two. Searches span memory types and filter on effective confidence
// so decayed items quietly drop out of results.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/decay"
	"github.com/loambase/loam/pkg/embeddings"
	"github.com/loambase/loam/pkg/memory"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
)

// Validate returns an error unless m is a known mode.
func (m Mode) Validate() error {
	switch m {
	case ModeSemantic, ModeKeyword, ModeHybrid:
		return nil
	}
	return fmt.Errorf("invalid search mode %q (valid: semantic, keyword, hybrid)", m)
}

const (
	// rrfK is the reciprocal-rank-fusion smoothing constant.
	rrfK = 60

	// DefaultLimit bounds result sets when the caller does not.
	DefaultLimit = 10
)

// Options tune a single search call. Zero values take defaults: hybrid
// mode, all three memory types, limit 10, no confidence floor.
type Options struct {
	Mode          Mode
	Types         []memory.MemoryType
	Limit         int
	MinConfidence float64
}

// Result is one ranked search hit. SemanticRank and KeywordRank are the
// 1-based positions in each backend list, 0 when the item was absent from
// that list.
type Result struct {
	Item         memory.Item
	Score        float64
	SemanticRank int
	KeywordRank  int
}

// Engine performs searches against a store using a shared embedder for
// query vectors.
type Engine struct {
	store    memory.Store
	embedder embeddings.Embedder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source used for confidence evaluation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a search engine.
func NewEngine(store memory.Store, embedder embeddings.Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs one retrieval pass across the requested memory types and
// returns up to opts.Limit results ordered by relevance.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = memory.SanitizeQuery(query)
	if query == "" {
		return nil, nil
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	types := opts.Types
	if len(types) == 0 {
		types = []memory.MemoryType{memory.TypeEpisode, memory.TypeFact, memory.TypeRule}
	}

	var queryVec []float32
	if mode != ModeKeyword {
		vec, err := e.embedder.Embed(ctx, embeddings.NormalizeInput(query))
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		queryVec = vec
	}

	now := e.now()
	var results []Result
	for _, typ := range types {
		typed, err := e.searchType(ctx, typ, query, queryVec, mode, limit, opts.MinConfidence, now)
		if err != nil {
			return nil, err
		}
		results = append(results, typed...)
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) searchType(ctx context.Context, typ memory.MemoryType, query string, queryVec []float32, mode Mode, limit int, minConfidence float64, now time.Time) ([]Result, error) {
	var semantic, keyword []memory.Hit
	var err error

	if mode != ModeKeyword {
		semantic, err = e.store.SemanticSearch(ctx, typ, queryVec, limit)
		if err != nil {
			return nil, fmt.Errorf("semantic search (%s): %w", typ, err)
		}
		semantic = filterByConfidence(semantic, minConfidence, now)
	}
	if mode != ModeSemantic {
		keyword, err = e.store.KeywordSearch(ctx, typ, query, limit)
		if err != nil {
			return nil, fmt.Errorf("keyword search (%s): %w", typ, err)
		}
		keyword = filterByConfidence(keyword, minConfidence, now)
	}

	switch mode {
	case ModeSemantic:
		return ranked(semantic, func(r *Result, rank int) { r.SemanticRank = rank }), nil
	case ModeKeyword:
		return ranked(keyword, func(r *Result, rank int) { r.KeywordRank = rank }), nil
	default:
		return fuse(semantic, keyword, limit), nil
	}
}

// filterByConfidence drops hits whose effective confidence sits below the
// floor. Ranks are assigned after filtering so surviving items close ranks.
func filterByConfidence(hits []memory.Hit, minConfidence float64, now time.Time) []memory.Hit {
	if minConfidence <= 0 {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if decay.ItemConfidence(h.Item, now) >= minConfidence {
			kept = append(kept, h)
		}
	}
	return kept
}

func ranked(hits []memory.Hit, assign func(*Result, int)) []Result {
	results := make([]Result, 0, len(hits))
	for i, h := range hits {
		r := Result{Item: h.Item, Score: h.Score}
		assign(&r, i+1)
		results = append(results, r)
	}
	return results
}

// fuse combines the two ranked lists with reciprocal rank fusion. An item
// missing from one list takes the penalty rank limit+1 rather than being
// excluded, so presence in a single list still scores.
func fuse(semantic, keyword []memory.Hit, limit int) []Result {
	missing := limit + 1

	merged := make(map[uuid.UUID]*Result)
	var order []uuid.UUID
	for i, h := range semantic {
		id := h.Item.ID()
		merged[id] = &Result{Item: h.Item, SemanticRank: i + 1}
		order = append(order, id)
	}
	for i, h := range keyword {
		id := h.Item.ID()
		if r, ok := merged[id]; ok {
			r.KeywordRank = i + 1
			continue
		}
		merged[id] = &Result{Item: h.Item, KeywordRank: i + 1}
		order = append(order, id)
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		r := merged[id]
		semRank, kwRank := r.SemanticRank, r.KeywordRank
		if semRank == 0 {
			semRank = missing
		}
		if kwRank == 0 {
			kwRank = missing
		}
		r.Score = 1.0/float64(rrfK+semRank) + 1.0/float64(rrfK+kwRank)
		results = append(results, *r)
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
