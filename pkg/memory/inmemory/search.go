package inmemory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/loambase/loam/pkg/memory"
)

// cosine returns the cosine similarity of two vectors, 0 when either is
// zero-length or the dimensions disagree.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// liveItems snapshots the retrievable items of one type. Callers hold s.mu.
func (s *Store) liveItems(typ memory.MemoryType) ([]memory.Item, error) {
	var items []memory.Item
	switch typ {
	case memory.TypeEpisode:
		now := s.now()
		for _, e := range s.episodes {
			if e.ExpiresAt.After(now) {
				items = append(items, memory.Item{Type: typ, Episode: cloneEpisode(e)})
			}
		}
	case memory.TypeFact:
		for _, f := range s.facts {
			if f.Validity == memory.ValidityActive {
				items = append(items, memory.Item{Type: typ, Fact: cloneFact(f)})
			}
		}
	case memory.TypeRule:
		for _, r := range s.rules {
			if !(r.Metadata != nil && r.Metadata.Forgotten) {
				items = append(items, memory.Item{Type: typ, Rule: cloneRule(r)})
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q (valid: episode, fact, rule)", memory.ErrInvalidMemoryType, typ)
	}
	return items, nil
}

func itemEmbedding(item memory.Item) []float32 {
	switch item.Type {
	case memory.TypeEpisode:
		return item.Episode.Embedding
	case memory.TypeFact:
		return item.Fact.Embedding
	case memory.TypeRule:
		return item.Rule.Embedding
	}
	return nil
}

// itemText returns the searchable text of an item, matching the columns the
// database indexes: fact text spans subject, predicate, and content.
func itemText(item memory.Item) string {
	switch item.Type {
	case memory.TypeEpisode:
		return item.Episode.Content
	case memory.TypeFact:
		return item.Fact.Subject + " " + item.Fact.Predicate + " " + item.Fact.Content
	case memory.TypeRule:
		return item.Rule.Content
	}
	return ""
}

// SemanticSearch ranks live items by cosine similarity to the query
// embedding, descending.
func (s *Store) SemanticSearch(_ context.Context, typ memory.MemoryType, query []float32, limit int) ([]memory.Hit, error) {
	s.mu.Lock()
	items, err := s.liveItems(typ)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	hits := make([]memory.Hit, 0, len(items))
	for _, item := range items {
		hits = append(hits, memory.Hit{Item: item, Score: cosine(query, itemEmbedding(item))})
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// KeywordSearch ranks live items by the fraction of query tokens present in
// the item's text. Items matching no token are excluded, and an empty query
// yields an empty result, mirroring the full-text path's contract.
func (s *Store) KeywordSearch(_ context.Context, typ memory.MemoryType, query string, limit int) ([]memory.Hit, error) {
	terms := tokenize(memory.SanitizeQuery(query))
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	items, err := s.liveItems(typ)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var hits []memory.Hit
	for _, item := range items {
		present := make(map[string]bool)
		for _, tok := range tokenize(itemText(item)) {
			present[tok] = true
		}
		matched := 0
		for _, term := range terms {
			if present[term] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, memory.Hit{Item: item, Score: float64(matched) / float64(len(terms))})
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// sortHits orders by score descending, breaking ties by id for determinism.
func sortHits(hits []memory.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].Item.ID().String() < hits[j].Item.ID().String()
		}
		return hits[i].Score > hits[j].Score
	})
}
