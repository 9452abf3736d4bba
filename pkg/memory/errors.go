package memory

import "errors"

// Sentinel errors for validation and integrity failures. Callers match with
// errors.Is; messages carry the offending value and the valid options.
var (
	ErrNotFound          = errors.New("memory item not found")
	ErrInvalidMemoryType = errors.New("invalid memory type")
	ErrInvalidPermanence = errors.New("invalid permanence")
	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrInvalidRelation   = errors.New("invalid relation")

	// ErrUnknownEntity is returned when a fact references an entity_id that
	// does not exist. Checked explicitly so the message is actionable
	// rather than a bare foreign-key violation.
	ErrUnknownEntity = errors.New("fact references unknown entity")

	// ErrNoConfidence is returned when confirm is attempted on an episode.
	// Episodes have no confidence concept.
	ErrNoConfidence = errors.New("episodes have no confidence to confirm")

	// Entity merge failures.
	ErrMergeSelf       = errors.New("cannot merge an entity into itself")
	ErrMergeTombstoned = errors.New("source entity is already merged away")
)
