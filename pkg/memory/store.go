package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EpisodeInput carries the caller-supplied fields for StoreEpisode.
// Zero values take store defaults: importance 5, TTL 7 days.
type EpisodeInput struct {
	Scope      string
	SessionID  *string
	Content    string
	Importance int
	TTL        time.Duration
	Metadata   *Metadata
}

// FactInput carries the caller-supplied fields for StoreFact.
type FactInput struct {
	Subject         string
	Predicate       string
	Content         string
	Scope           string
	Importance      int
	Confidence      float64
	Permanence      Permanence
	SourceEpisodeID *uuid.UUID
	EntityID        *uuid.UUID

	// Supersedes explicitly marks an existing fact as replaced by this one,
	// in addition to the key-based supersession the store always applies.
	Supersedes *uuid.UUID

	Tags     []string
	Metadata *Metadata
}

// RuleInput carries the caller-supplied fields for StoreRule.
type RuleInput struct {
	Content         string
	Scope           string
	Confidence      float64
	Permanence      Permanence
	SourceEpisodeID *uuid.UUID
	Tags            []string
	Metadata        *Metadata
}

// EntityInput carries the caller-supplied fields for CreateEntity.
type EntityInput struct {
	TenantID      string
	CanonicalName string
	EntityType    EntityType
	Aliases       []string
	Metadata      *Metadata
}

// LinkInput identifies a directed provenance edge to create.
type LinkInput struct {
	SourceType MemoryType
	SourceID   uuid.UUID
	TargetType MemoryType
	TargetID   uuid.UUID
	Relation   Relation
}

// Direction selects which edges GetLinks returns relative to the item.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// LinkQuery selects links touching one memory item.
type LinkQuery struct {
	Type      MemoryType
	ID        uuid.UUID
	Direction Direction
	Relation  *Relation
}

// Ref addresses a memory item by type and id.
type Ref struct {
	Type MemoryType
	ID   uuid.UUID
}

// Hit is a search primitive result: an item plus its backend relevance
// score (cosine similarity for semantic, rank score for keyword).
type Hit struct {
	Item  Item
	Score float64
}

// CleanupResult reports what an episode cleanup pass removed.
type CleanupResult struct {
	ExpiredDeleted  int `json:"expired_deleted"`
	CapacityDeleted int `json:"capacity_deleted"`
	Remaining       int `json:"remaining"`
}

// MergeResult reports what an entity merge changed, for the audit record.
type MergeResult struct {
	SourceID        uuid.UUID `json:"source_id"`
	TargetID        uuid.UUID `json:"target_id"`
	FactsRepointed  int       `json:"facts_repointed"`
	FactsSuperseded int       `json:"facts_superseded"`
	AliasesAdded    int       `json:"aliases_added"`
}

// Stats summarizes store contents.
type Stats struct {
	Episodes int `json:"episodes"`
	Facts    int `json:"facts"`
	Rules    int `json:"rules"`
	Entities int `json:"entities"`
	Links    int `json:"links"`
}

// Store is the single mutation and query surface for persisted memory.
// Implementations derive embeddings and full-text vectors at write time and
// rely on database-level transactional isolation for correctness under
// concurrent callers.
type Store interface {
	// StoreEpisode sanitizes content, derives vectors, and inserts a new
	// pending episode.
	StoreEpisode(ctx context.Context, in EpisodeInput) (*Episode, error)

	// GetEpisode returns an episode without touching reference counters.
	GetEpisode(ctx context.Context, id uuid.UUID) (*Episode, error)

	// PendingEpisodes returns episodes awaiting consolidation, oldest first.
	PendingEpisodes(ctx context.Context, limit int) ([]*Episode, error)

	// MarkEpisodesConsolidated flips consolidated=true and status=done.
	MarkEpisodesConsolidated(ctx context.Context, ids []uuid.UUID) error

	// MarkEpisodeError records a consolidation failure and bumps retry_count.
	MarkEpisodeError(ctx context.Context, id uuid.UUID, msg string) error

	// RunEpisodeCleanup deletes expired episodes, then evicts the oldest
	// consolidated episodes until the remaining count fits capacity.
	// Unconsolidated episodes are never evicted by capacity pressure.
	RunEpisodeCleanup(ctx context.Context, capacity int) (CleanupResult, error)

	// StoreFact inserts a fact, superseding any active fact that shares its
	// uniqueness key within the same transaction. Rejects unknown entity ids.
	StoreFact(ctx context.Context, in FactInput) (*Fact, error)

	// GetFact returns a fact without touching reference counters.
	GetFact(ctx context.Context, id uuid.UUID) (*Fact, error)

	// ActiveFacts returns active facts in a scope, most recent first.
	ActiveFacts(ctx context.Context, scope string, limit int) ([]*Fact, error)

	// FactsByEntity returns a bounded set of facts attached to an entity,
	// regardless of validity.
	FactsByEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]*Fact, error)

	// SetFactValidity updates a single fact's validity.
	SetFactValidity(ctx context.Context, id uuid.UUID, v Validity) error

	// SetFading sets or clears metadata.status="fading" on a fact or rule.
	SetFading(ctx context.Context, typ MemoryType, id uuid.UUID, fading bool) error

	// StoreRule inserts a new candidate rule.
	StoreRule(ctx context.Context, in RuleInput) (*Rule, error)

	// GetRule returns a rule without touching reference counters.
	GetRule(ctx context.Context, id uuid.UUID) (*Rule, error)

	// ActiveRules returns non-forgotten rules in a scope, most recent first.
	ActiveRules(ctx context.Context, scope string, limit int) ([]*Rule, error)

	// UpdateRule persists feedback-driven changes to a rule. When reembed is
	// set the embedding and full-text vector are regenerated from the
	// rule's current content.
	UpdateRule(ctx context.Context, r *Rule, reembed bool) error

	// SetRuleForgotten flips metadata.forgotten=true.
	SetRuleForgotten(ctx context.Context, id uuid.UUID) error

	// GetMemory fetches an item by type and id, atomically bumping its
	// reference_count and last_referenced_at. Returns (nil, nil) if absent.
	GetMemory(ctx context.Context, typ MemoryType, id uuid.UUID) (*Item, error)

	// ConfirmMemory resets last_confirmed_at to now. Fails for episodes.
	ConfirmMemory(ctx context.Context, typ MemoryType, id uuid.UUID) error

	// ForgetMemory removes an item from retrieval: episodes expire now,
	// facts are retracted, rules are marked forgotten.
	ForgetMemory(ctx context.Context, typ MemoryType, id uuid.UUID) error

	// TouchMemories bumps reference counters for every referenced item.
	TouchMemories(ctx context.Context, refs []Ref) error

	// CreateLink inserts a provenance edge. Duplicate inserts are no-ops.
	CreateLink(ctx context.Context, in LinkInput) error

	// GetLinks returns edges touching an item, filtered by direction and
	// optionally by relation.
	GetLinks(ctx context.Context, q LinkQuery) ([]*MemoryLink, error)

	// SemanticSearch ranks items of one type by cosine similarity to the
	// query embedding, descending. Facts exclude non-active validity; rules
	// exclude forgotten.
	SemanticSearch(ctx context.Context, typ MemoryType, query []float32, limit int) ([]Hit, error)

	// KeywordSearch ranks items of one type by full-text relevance against
	// the query, descending. An empty query yields an empty result.
	KeywordSearch(ctx context.Context, typ MemoryType, query string, limit int) ([]Hit, error)

	// DecayableFacts returns active facts with decay_rate > 0.
	DecayableFacts(ctx context.Context) ([]*Fact, error)

	// DecayableRules returns non-forgotten rules with decay_rate > 0.
	DecayableRules(ctx context.Context) ([]*Rule, error)

	// CreateEntity inserts an entity. (tenant, canonical name, type) is unique.
	CreateEntity(ctx context.Context, in EntityInput) (*Entity, error)

	// GetEntity returns an entity by id.
	GetEntity(ctx context.Context, id uuid.UUID) (*Entity, error)

	// Entity candidate discovery tiers. All exclude tombstoned entities and
	// optionally filter by type. Name matching is case-insensitive.
	EntitiesByExactName(ctx context.Context, tenantID, name string, typ *EntityType) ([]*Entity, error)
	EntitiesByAlias(ctx context.Context, tenantID, name string, typ *EntityType) ([]*Entity, error)
	EntitiesBySubstring(ctx context.Context, tenantID, name string, typ *EntityType) ([]*Entity, error)

	// EntitiesByFuzzy returns trigram-similar entities (similarity >= 0.3).
	// Backends without a fuzzy capability return an empty slice, not an error.
	EntitiesByFuzzy(ctx context.Context, tenantID, name string, typ *EntityType) ([]*Entity, error)

	// MergeEntities atomically folds source into target: re-points or
	// supersedes source facts, merges aliases and metadata, and tombstones
	// the source via metadata.merged_into.
	MergeEntities(ctx context.Context, sourceID, targetID uuid.UUID, tenantID string) (*MergeResult, error)

	// Stats summarizes store contents.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the store's resources.
	Close() error
}
