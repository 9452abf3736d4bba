// Package eventstream defines the transport-neutral audit events emitted at
// memory-store mutation points, and the Publisher interface backends
// implement. Publishing is best-effort: emission failures are logged by the
// caller and never block the mutation that produced the event.
package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStored is emitted after an episode, fact, rule, or entity is
	// written.
	EventTypeStored = "loam.memory.stored"

	// EventTypeConfirmed is emitted after a confirm resets decay.
	EventTypeConfirmed = "loam.memory.confirmed"

	// EventTypeForgotten is emitted after a forget removes an item from
	// retrieval.
	EventTypeForgotten = "loam.memory.forgotten"

	// EventTypeDecayed is emitted for each lifecycle transition applied by
	// the decay sweep (expiry, fading set, fading cleared).
	EventTypeDecayed = "loam.memory.decayed"

	// EventTypeEntityMerged is emitted after an entity merge commits.
	EventTypeEntityMerged = "loam.entity.merged"
)

// MutationEvent is a transport-neutral audit payload for one store mutation.
// Identifiers are strings and timestamps serialize as ISO-8601, matching the
// external response contract.
type MutationEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// MemoryType is the item tier the mutation touched.
	MemoryType string `json:"memory_type,omitempty"`

	// MemoryID is the id of the mutated item.
	MemoryID string `json:"memory_id,omitempty"`

	// Scope is the owning scope of the mutated item, when it has one.
	Scope string `json:"scope,omitempty"`

	// Transition names the lifecycle change for decay events
	// ("expired", "fading", "restored").
	Transition string `json:"transition,omitempty"`

	// Merge carries the audit counters for entity-merge events.
	Merge *MergeDetail `json:"merge,omitempty"`
}

// MergeDetail captures what an entity merge changed.
type MergeDetail struct {
	SourceID        string `json:"source_id"`
	TargetID        string `json:"target_id"`
	TenantID        string `json:"tenant_id"`
	FactsRepointed  int    `json:"facts_repointed"`
	FactsSuperseded int    `json:"facts_superseded"`
	AliasesAdded    int    `json:"aliases_added"`
}
