// Package memory defines the data model for the tiered memory store:
// episodes (raw short-lived observations), facts (durable subject-predicate
// knowledge), rules (behavioral guidance with effectiveness feedback),
// entities (identity anchors), and the provenance links between them.
//
// The [Store] interface is the only mutation surface for persisted items.
// Embeddings and full-text vectors are derived artifacts computed by the
// store at write time and never mutated independently.
package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MemoryType discriminates the three item tiers plus entities for links.
type MemoryType string

const (
	TypeEpisode MemoryType = "episode"
	TypeFact    MemoryType = "fact"
	TypeRule    MemoryType = "rule"
	TypeEntity  MemoryType = "entity"
)

// Validate returns an error unless t is a known memory type.
func (t MemoryType) Validate() error {
	switch t {
	case TypeEpisode, TypeFact, TypeRule, TypeEntity:
		return nil
	}
	return fmt.Errorf("%w: %q (valid: episode, fact, rule, entity)", ErrInvalidMemoryType, t)
}

// Permanence classifies how quickly a fact or rule loses trustworthiness.
type Permanence string

const (
	PermanencePermanent Permanence = "permanent"
	PermanenceStable    Permanence = "stable"
	PermanenceStandard  Permanence = "standard"
	PermanenceVolatile  Permanence = "volatile"
	PermanenceEphemeral Permanence = "ephemeral"
)

// decayRates maps permanence classes to per-day decay rates.
var decayRates = map[Permanence]float64{
	PermanencePermanent: 0.0,
	PermanenceStable:    0.002,
	PermanenceStandard:  0.008,
	PermanenceVolatile:  0.03,
	PermanenceEphemeral: 0.1,
}

// DecayRate returns the per-day decay rate for the permanence class.
// Unknown values are a hard validation error enumerating the valid options.
func (p Permanence) DecayRate() (float64, error) {
	rate, ok := decayRates[p]
	if !ok {
		return 0, fmt.Errorf("%w: %q (valid: permanent, stable, standard, volatile, ephemeral)",
			ErrInvalidPermanence, p)
	}
	return rate, nil
}

// Validity is a fact's lifecycle status.
type Validity string

const (
	ValidityActive     Validity = "active"
	ValiditySuperseded Validity = "superseded"
	ValidityExpired    Validity = "expired"
	ValidityRetracted  Validity = "retracted"
)

// Maturity is a rule's lifecycle status.
type Maturity string

const (
	MaturityCandidate   Maturity = "candidate"
	MaturityEstablished Maturity = "established"
	MaturityProven      Maturity = "proven"
	MaturityAntiPattern Maturity = "anti_pattern"
)

// EntityType classifies a recurring subject.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityPlace        EntityType = "place"
	EntityOther        EntityType = "other"
)

// Validate returns an error unless t is a known entity type.
func (t EntityType) Validate() error {
	switch t {
	case EntityPerson, EntityOrganization, EntityPlace, EntityOther:
		return nil
	}
	return fmt.Errorf("%w: %q (valid: person, organization, place, other)", ErrInvalidEntityType, t)
}

// Relation labels a directed provenance edge between two memory items.
type Relation string

const (
	RelationDerivedFrom Relation = "derived_from"
	RelationSupports    Relation = "supports"
	RelationContradicts Relation = "contradicts"
	RelationSupersedes  Relation = "supersedes"
	RelationRelatedTo   Relation = "related_to"
)

// Validate returns an error unless r is a known relation.
func (r Relation) Validate() error {
	switch r {
	case RelationDerivedFrom, RelationSupports, RelationContradicts, RelationSupersedes, RelationRelatedTo:
		return nil
	}
	return fmt.Errorf("%w: %q (valid: derived_from, supports, contradicts, supersedes, related_to)",
		ErrInvalidRelation, r)
}

// ConsolidationStatus tracks an episode through the consolidation pipeline.
type ConsolidationStatus string

const (
	ConsolidationPending ConsolidationStatus = "pending"
	ConsolidationDone    ConsolidationStatus = "done"
	ConsolidationError   ConsolidationStatus = "error"
)

// StatusFading is the soft lifecycle flag set by the decay sweep when an
// item's effective confidence drops below the fading threshold. It layers
// on top of validity=active rather than replacing it.
const StatusFading = "fading"

// Metadata is the typed side-channel carried by every memory item. It is
// persisted as a flexible JSONB document but addressed through named
// optional fields rather than an untyped map.
type Metadata struct {
	// Status holds soft lifecycle flags such as [StatusFading].
	Status string `json:"status,omitempty"`

	// Forgotten marks a rule as removed from retrieval without deleting it.
	Forgotten bool `json:"forgotten,omitempty"`

	// NeedsInversion marks a rule eligible for anti-pattern inversion.
	NeedsInversion bool `json:"needs_inversion,omitempty"`

	// HarmfulReasons collects the reasons given on mark-harmful calls.
	HarmfulReasons []string `json:"harmful_reasons,omitempty"`

	// OriginalContent preserves a rule's content prior to inversion.
	OriginalContent string `json:"original_content,omitempty"`

	// MergedInto tombstones an entity by pointing at the merge target.
	MergedInto string `json:"merged_into,omitempty"`

	// Labels holds caller-supplied annotations.
	Labels map[string]string `json:"labels,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return &Metadata{}
	}
	out := *m
	if m.HarmfulReasons != nil {
		out.HarmfulReasons = append([]string(nil), m.HarmfulReasons...)
	}
	if m.Labels != nil {
		out.Labels = make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			out.Labels[k] = v
		}
	}
	return &out
}

// Defaults applied by the store at write time.
const (
	DefaultImportance = 5
	DefaultConfidence = 1.0
	DefaultEpisodeTTL = 7 * 24 * time.Hour

	// DefaultEpisodeCapacity is the ceiling enforced by episode cleanup.
	DefaultEpisodeCapacity = 10000
)

// Episode is a raw, short-lived observation awaiting consolidation.
type Episode struct {
	ID                  uuid.UUID
	Scope               string
	SessionID           *string
	Content             string
	Embedding           []float32 `json:"-"`
	Importance          int
	ReferenceCount      int
	Consolidated        bool
	ConsolidationStatus ConsolidationStatus
	RetryCount          int
	LastError           *string
	CreatedAt           time.Time
	LastReferencedAt    *time.Time
	ExpiresAt           time.Time
	Metadata            *Metadata
}

// Fact is a durable subject-predicate-content knowledge item. At most one
// active fact exists per uniqueness key: (entity_id, scope, predicate) when
// entity_id is set, otherwise (subject, predicate).
type Fact struct {
	ID               uuid.UUID
	Subject          string
	Predicate        string
	Content          string
	Embedding        []float32 `json:"-"`
	Importance       int
	Confidence       float64
	DecayRate        float64
	Permanence       Permanence
	Scope            string
	SourceEpisodeID  *uuid.UUID
	SupersedesID     *uuid.UUID
	EntityID         *uuid.UUID
	Validity         Validity
	ReferenceCount   int
	CreatedAt        time.Time
	LastReferencedAt *time.Time
	LastConfirmedAt  *time.Time
	Tags             []string
	Metadata         *Metadata
}

// Rule is behavioral guidance learned from repeated outcomes.
type Rule struct {
	ID                 uuid.UUID
	Content            string
	Embedding          []float32 `json:"-"`
	Scope              string
	Maturity           Maturity
	Confidence         float64
	DecayRate          float64
	Permanence         Permanence
	EffectivenessScore float64
	AppliedCount       int
	SuccessCount       int
	HarmfulCount       int
	SourceEpisodeID    *uuid.UUID
	CreatedAt          time.Time
	LastAppliedAt      *time.Time
	LastEvaluatedAt    *time.Time
	LastConfirmedAt    *time.Time
	ReferenceCount     int
	LastReferencedAt   *time.Time
	Tags               []string
	Metadata           *Metadata
}

// Entity is a stable identity anchor disambiguating recurring subjects.
// Tombstoning is done via Metadata.MergedInto, never hard delete.
type Entity struct {
	ID            uuid.UUID
	TenantID      string
	CanonicalName string
	EntityType    EntityType
	Aliases       []string
	Metadata      *Metadata
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tombstoned reports whether the entity has been merged away.
func (e *Entity) Tombstoned() bool {
	return e.Metadata != nil && e.Metadata.MergedInto != ""
}

// MemoryLink is a directed provenance edge between two memory items.
// Creation is idempotent: duplicate inserts are no-ops.
type MemoryLink struct {
	SourceType MemoryType
	SourceID   uuid.UUID
	TargetType MemoryType
	TargetID   uuid.UUID
	Relation   Relation
	CreatedAt  time.Time
}

// Item is a tagged union over the three memory tiers, used by operations
// that address items generically by (type, id).
type Item struct {
	Type    MemoryType
	Episode *Episode
	Fact    *Fact
	Rule    *Rule
}

// ID returns the identifier of the wrapped item.
func (i Item) ID() uuid.UUID {
	switch i.Type {
	case TypeEpisode:
		return i.Episode.ID
	case TypeFact:
		return i.Fact.ID
	case TypeRule:
		return i.Rule.ID
	}
	return uuid.Nil
}
