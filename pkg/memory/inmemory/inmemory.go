// Package inmemory implements memory.Store with in-process maps. It mirrors
// the semantics of the postgres store — supersession, reference bumps,
// lifecycle transitions, cleanup — so engines can be exercised without a
// database. The clock is injectable for decay and recency tests.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/embeddings"
	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/eventstream/nop"
	"github.com/loambase/loam/pkg/memory"
)

type linkKey struct {
	sourceType memory.MemoryType
	sourceID   uuid.UUID
	targetType memory.MemoryType
	targetID   uuid.UUID
}

// Store is an in-memory memory.Store. Safe for concurrent use; a single
// mutex serializes all operations, standing in for the database's
// transactional isolation.
type Store struct {
	mu sync.Mutex

	embedder  embeddings.Embedder
	publisher eventstream.Publisher
	logger    *zap.Logger
	now       func() time.Time

	episodes map[uuid.UUID]*memory.Episode
	facts    map[uuid.UUID]*memory.Fact
	rules    map[uuid.UUID]*memory.Rule
	entities map[uuid.UUID]*memory.Entity
	links    map[linkKey]*memory.MemoryLink
}

// Option configures a Store created with NewStore.
type Option func(*Store)

// WithPublisher sets the audit event publisher. Defaults to nop.
func WithPublisher(p eventstream.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source, letting tests move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty in-memory store.
func NewStore(embedder embeddings.Embedder, opts ...Option) *Store {
	s := &Store{
		embedder:  embedder,
		publisher: nop.NewPublisher(),
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
		episodes:  make(map[uuid.UUID]*memory.Episode),
		facts:     make(map[uuid.UUID]*memory.Fact),
		rules:     make(map[uuid.UUID]*memory.Rule),
		entities:  make(map[uuid.UUID]*memory.Entity),
		links:     make(map[linkKey]*memory.MemoryLink),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) emit(ctx context.Context, event *eventstream.MutationEvent) {
	event.SchemaVersion = eventstream.SchemaVersionV1
	event.EventID = uuid.NewString()
	event.EmittedAt = s.now()

	if err := s.publisher.PublishMutation(ctx, event); err != nil {
		s.logger.Warn("failed to publish mutation event",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, embeddings.NormalizeInput(text))
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}
	return vec, nil
}

// StoreEpisode sanitizes content, derives the embedding, and inserts a new
// pending episode.
func (s *Store) StoreEpisode(ctx context.Context, in memory.EpisodeInput) (*memory.Episode, error) {
	content := memory.SanitizeContent(in.Content)

	importance := in.Importance
	if importance == 0 {
		importance = memory.DefaultImportance
	}
	if importance < 1 || importance > 10 {
		return nil, fmt.Errorf("importance must be between 1 and 10, got %d", in.Importance)
	}

	ttl := in.TTL
	if ttl == 0 {
		ttl = memory.DefaultEpisodeTTL
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := s.now()
	episode := &memory.Episode{
		ID:                  uuid.New(),
		Scope:               in.Scope,
		SessionID:           in.SessionID,
		Content:             content,
		Embedding:           vec,
		Importance:          importance,
		ConsolidationStatus: memory.ConsolidationPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
		Metadata:            in.Metadata.Clone(),
	}
	s.episodes[episode.ID] = episode
	out := cloneEpisode(episode)
	s.mu.Unlock()

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeEpisode),
		MemoryID:   out.ID.String(),
		Scope:      out.Scope,
	})
	return out, nil
}

// GetEpisode returns an episode without touching reference counters.
func (s *Store) GetEpisode(_ context.Context, id uuid.UUID) (*memory.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.episodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: episode %s", memory.ErrNotFound, id)
	}
	return cloneEpisode(e), nil
}

// PendingEpisodes returns episodes awaiting consolidation, oldest first.
func (s *Store) PendingEpisodes(_ context.Context, limit int) ([]*memory.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*memory.Episode
	for _, e := range s.episodes {
		if e.ConsolidationStatus == memory.ConsolidationPending {
			pending = append(pending, cloneEpisode(e))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID.String() < pending[j].ID.String()
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkEpisodesConsolidated flips consolidated=true and status=done.
func (s *Store) MarkEpisodesConsolidated(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.episodes[id]; ok {
			e.Consolidated = true
			e.ConsolidationStatus = memory.ConsolidationDone
			e.LastError = nil
		}
	}
	return nil
}

// MarkEpisodeError records a consolidation failure and bumps retry_count.
func (s *Store) MarkEpisodeError(_ context.Context, id uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.episodes[id]
	if !ok {
		return fmt.Errorf("%w: episode %s", memory.ErrNotFound, id)
	}
	e.ConsolidationStatus = memory.ConsolidationError
	e.LastError = &msg
	e.RetryCount++
	return nil
}

// RunEpisodeCleanup deletes expired episodes, then evicts the oldest
// consolidated episodes until the remaining count fits capacity.
func (s *Store) RunEpisodeCleanup(_ context.Context, capacity int) (memory.CleanupResult, error) {
	if capacity <= 0 {
		capacity = memory.DefaultEpisodeCapacity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result memory.CleanupResult
	now := s.now()
	for id, e := range s.episodes {
		if e.ExpiresAt.Before(now) {
			delete(s.episodes, id)
			result.ExpiredDeleted++
		}
	}

	if len(s.episodes) > capacity {
		var consolidated []*memory.Episode
		for _, e := range s.episodes {
			if e.Consolidated {
				consolidated = append(consolidated, e)
			}
		}
		sort.Slice(consolidated, func(i, j int) bool {
			return consolidated[i].CreatedAt.Before(consolidated[j].CreatedAt)
		})
		excess := len(s.episodes) - capacity
		for i := 0; i < excess && i < len(consolidated); i++ {
			delete(s.episodes, consolidated[i].ID)
			result.CapacityDeleted++
		}
	}

	result.Remaining = len(s.episodes)
	return result, nil
}

// StoreFact inserts a fact, superseding any active fact that shares its
// uniqueness key.
func (s *Store) StoreFact(ctx context.Context, in memory.FactInput) (*memory.Fact, error) {
	subject := memory.SanitizeQuery(in.Subject)
	predicate := memory.SanitizeQuery(in.Predicate)
	content := memory.SanitizeContent(in.Content)
	if subject == "" || predicate == "" || content == "" {
		return nil, fmt.Errorf("fact requires non-empty subject, predicate, and content")
	}

	permanence := in.Permanence
	if permanence == "" {
		permanence = memory.PermanenceStandard
	}
	decayRate, err := permanence.DecayRate()
	if err != nil {
		return nil, err
	}

	importance := in.Importance
	if importance == 0 {
		importance = memory.DefaultImportance
	}
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence = memory.DefaultConfidence
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if in.EntityID != nil {
		if _, ok := s.entities[*in.EntityID]; !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", memory.ErrUnknownEntity, *in.EntityID)
		}
	}

	var superseded *uuid.UUID
	for _, f := range s.facts {
		if f.Validity != memory.ValidityActive {
			continue
		}
		if sameKey(f, subject, predicate, in.Scope, in.EntityID) {
			f.Validity = memory.ValiditySuperseded
			id := f.ID
			superseded = &id
			break
		}
	}

	if in.Supersedes != nil && (superseded == nil || *in.Supersedes != *superseded) {
		if target, ok := s.facts[*in.Supersedes]; ok && target.Validity == memory.ValidityActive {
			target.Validity = memory.ValiditySuperseded
			superseded = in.Supersedes
		}
	}

	now := s.now()
	confirmed := now
	fact := &memory.Fact{
		ID:              uuid.New(),
		Subject:         subject,
		Predicate:       predicate,
		Content:         content,
		Embedding:       vec,
		Importance:      importance,
		Confidence:      confidence,
		DecayRate:       decayRate,
		Permanence:      permanence,
		Scope:           in.Scope,
		SourceEpisodeID: in.SourceEpisodeID,
		SupersedesID:    superseded,
		EntityID:        in.EntityID,
		Validity:        memory.ValidityActive,
		CreatedAt:       now,
		LastConfirmedAt: &confirmed,
		Tags:            tags,
		Metadata:        in.Metadata.Clone(),
	}
	s.facts[fact.ID] = fact

	if superseded != nil {
		key := linkKey{memory.TypeFact, fact.ID, memory.TypeFact, *superseded}
		if _, ok := s.links[key]; !ok {
			s.links[key] = &memory.MemoryLink{
				SourceType: memory.TypeFact,
				SourceID:   fact.ID,
				TargetType: memory.TypeFact,
				TargetID:   *superseded,
				Relation:   memory.RelationSupersedes,
				CreatedAt:  now,
			}
		}
	}
	out := cloneFact(fact)
	s.mu.Unlock()

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeFact),
		MemoryID:   out.ID.String(),
		Scope:      out.Scope,
	})
	return out, nil
}

func sameKey(f *memory.Fact, subject, predicate, scope string, entityID *uuid.UUID) bool {
	if entityID != nil {
		return f.EntityID != nil && *f.EntityID == *entityID &&
			f.Scope == scope && f.Predicate == predicate
	}
	return f.EntityID == nil && f.Subject == subject && f.Predicate == predicate
}

// GetFact returns a fact without touching reference counters.
func (s *Store) GetFact(_ context.Context, id uuid.UUID) (*memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, fmt.Errorf("%w: fact %s", memory.ErrNotFound, id)
	}
	return cloneFact(f), nil
}

// ActiveFacts returns active facts in a scope, most recent first.
func (s *Store) ActiveFacts(_ context.Context, scope string, limit int) ([]*memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var facts []*memory.Fact
	for _, f := range s.facts {
		if f.Scope == scope && f.Validity == memory.ValidityActive {
			facts = append(facts, cloneFact(f))
		}
	}
	sortFactsNewestFirst(facts)
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

// FactsByEntity returns a bounded set of facts attached to an entity.
func (s *Store) FactsByEntity(_ context.Context, entityID uuid.UUID, limit int) ([]*memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var facts []*memory.Fact
	for _, f := range s.facts {
		if f.EntityID != nil && *f.EntityID == entityID {
			facts = append(facts, cloneFact(f))
		}
	}
	sortFactsNewestFirst(facts)
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

func sortFactsNewestFirst(facts []*memory.Fact) {
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].CreatedAt.Equal(facts[j].CreatedAt) {
			return facts[i].ID.String() < facts[j].ID.String()
		}
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})
}

// SetFactValidity updates a single fact's validity.
func (s *Store) SetFactValidity(_ context.Context, id uuid.UUID, v memory.Validity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return fmt.Errorf("%w: fact %s", memory.ErrNotFound, id)
	}
	f.Validity = v
	return nil
}

// DecayableFacts returns active facts with decay_rate > 0.
func (s *Store) DecayableFacts(_ context.Context) ([]*memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var facts []*memory.Fact
	for _, f := range s.facts {
		if f.Validity == memory.ValidityActive && f.DecayRate > 0 {
			facts = append(facts, cloneFact(f))
		}
	}
	sortFactsNewestFirst(facts)
	return facts, nil
}

// StoreRule inserts a new candidate rule.
func (s *Store) StoreRule(ctx context.Context, in memory.RuleInput) (*memory.Rule, error) {
	content := memory.SanitizeContent(in.Content)
	if content == "" {
		return nil, fmt.Errorf("rule requires non-empty content")
	}

	permanence := in.Permanence
	if permanence == "" {
		permanence = memory.PermanenceStandard
	}
	decayRate, err := permanence.DecayRate()
	if err != nil {
		return nil, err
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence = memory.DefaultConfidence
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := s.now()
	confirmed := now
	rule := &memory.Rule{
		ID:              uuid.New(),
		Content:         content,
		Embedding:       vec,
		Scope:           in.Scope,
		Maturity:        memory.MaturityCandidate,
		Confidence:      confidence,
		DecayRate:       decayRate,
		Permanence:      permanence,
		SourceEpisodeID: in.SourceEpisodeID,
		CreatedAt:       now,
		LastConfirmedAt: &confirmed,
		Tags:            tags,
		Metadata:        in.Metadata.Clone(),
	}
	s.rules[rule.ID] = rule
	out := cloneRule(rule)
	s.mu.Unlock()

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeStored,
		MemoryType: string(memory.TypeRule),
		MemoryID:   out.ID.String(),
		Scope:      out.Scope,
	})
	return out, nil
}

// GetRule returns a rule without touching reference counters.
func (s *Store) GetRule(_ context.Context, id uuid.UUID) (*memory.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %s", memory.ErrNotFound, id)
	}
	return cloneRule(r), nil
}

// ActiveRules returns non-forgotten rules in a scope, most recent first.
func (s *Store) ActiveRules(_ context.Context, scope string, limit int) ([]*memory.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rules []*memory.Rule
	for _, r := range s.rules {
		if r.Scope == scope && !(r.Metadata != nil && r.Metadata.Forgotten) {
			rules = append(rules, cloneRule(r))
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID.String() < rules[j].ID.String()
		}
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
	if limit > 0 && len(rules) > limit {
		rules = rules[:limit]
	}
	return rules, nil
}

// UpdateRule persists feedback-driven changes, regenerating the embedding
// when requested.
func (s *Store) UpdateRule(ctx context.Context, r *memory.Rule, reembed bool) error {
	content := memory.SanitizeContent(r.Content)

	var vec []float32
	if reembed {
		var err error
		vec, err = s.embed(ctx, content)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rules[r.ID]
	if !ok {
		return fmt.Errorf("%w: rule %s", memory.ErrNotFound, r.ID)
	}

	stored.Content = content
	stored.Maturity = r.Maturity
	stored.EffectivenessScore = r.EffectivenessScore
	stored.AppliedCount = r.AppliedCount
	stored.SuccessCount = r.SuccessCount
	stored.HarmfulCount = r.HarmfulCount
	stored.LastAppliedAt = r.LastAppliedAt
	stored.LastEvaluatedAt = r.LastEvaluatedAt
	stored.Metadata = r.Metadata.Clone()
	if reembed {
		stored.Embedding = vec
	}
	return nil
}

// SetRuleForgotten flips metadata.forgotten=true.
func (s *Store) SetRuleForgotten(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("%w: rule %s", memory.ErrNotFound, id)
	}
	if r.Metadata == nil {
		r.Metadata = &memory.Metadata{}
	}
	r.Metadata.Forgotten = true
	return nil
}

// DecayableRules returns non-forgotten rules with decay_rate > 0.
func (s *Store) DecayableRules(_ context.Context) ([]*memory.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rules []*memory.Rule
	for _, r := range s.rules {
		if r.DecayRate > 0 && !(r.Metadata != nil && r.Metadata.Forgotten) {
			rules = append(rules, cloneRule(r))
		}
	}
	return rules, nil
}

// GetMemory fetches an item by type and id, bumping its reference counters.
// Returns (nil, nil) if the item does not exist.
func (s *Store) GetMemory(_ context.Context, typ memory.MemoryType, id uuid.UUID) (*memory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	item := &memory.Item{Type: typ}
	switch typ {
	case memory.TypeEpisode:
		e, ok := s.episodes[id]
		if !ok {
			return nil, nil
		}
		e.ReferenceCount++
		e.LastReferencedAt = &now
		item.Episode = cloneEpisode(e)
	case memory.TypeFact:
		f, ok := s.facts[id]
		if !ok {
			return nil, nil
		}
		f.ReferenceCount++
		f.LastReferencedAt = &now
		item.Fact = cloneFact(f)
	case memory.TypeRule:
		r, ok := s.rules[id]
		if !ok {
			return nil, nil
		}
		r.ReferenceCount++
		r.LastReferencedAt = &now
		item.Rule = cloneRule(r)
	default:
		return nil, fmt.Errorf("%w: %q (valid: episode, fact, rule)", memory.ErrInvalidMemoryType, typ)
	}
	return item, nil
}

// ConfirmMemory resets last_confirmed_at to now. Fails for episodes.
func (s *Store) ConfirmMemory(ctx context.Context, typ memory.MemoryType, id uuid.UUID) error {
	if typ == memory.TypeEpisode {
		return memory.ErrNoConfidence
	}

	s.mu.Lock()
	now := s.now()
	var found bool
	switch typ {
	case memory.TypeFact:
		if f, ok := s.facts[id]; ok {
			f.LastConfirmedAt = &now
			found = true
		}
	case memory.TypeRule:
		if r, ok := s.rules[id]; ok {
			r.LastConfirmedAt = &now
			found = true
		}
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %q (valid: fact, rule)", memory.ErrInvalidMemoryType, typ)
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s %s", memory.ErrNotFound, typ, id)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeConfirmed,
		MemoryType: string(typ),
		MemoryID:   id.String(),
	})
	return nil
}

// ForgetMemory removes an item from retrieval with type-dependent semantics.
func (s *Store) ForgetMemory(ctx context.Context, typ memory.MemoryType, id uuid.UUID) error {
	s.mu.Lock()
	now := s.now()
	var found bool
	switch typ {
	case memory.TypeEpisode:
		if e, ok := s.episodes[id]; ok {
			e.ExpiresAt = now
			found = true
		}
	case memory.TypeFact:
		if f, ok := s.facts[id]; ok {
			f.Validity = memory.ValidityRetracted
			found = true
		}
	case memory.TypeRule:
		if r, ok := s.rules[id]; ok {
			if r.Metadata == nil {
				r.Metadata = &memory.Metadata{}
			}
			r.Metadata.Forgotten = true
			found = true
		}
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %q (valid: episode, fact, rule)", memory.ErrInvalidMemoryType, typ)
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s %s", memory.ErrNotFound, typ, id)
	}

	s.emit(ctx, &eventstream.MutationEvent{
		EventType:  eventstream.EventTypeForgotten,
		MemoryType: string(typ),
		MemoryID:   id.String(),
	})
	return nil
}

// TouchMemories bumps reference counters for every referenced item.
func (s *Store) TouchMemories(_ context.Context, refs []memory.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, ref := range refs {
		switch ref.Type {
		case memory.TypeEpisode:
			if e, ok := s.episodes[ref.ID]; ok {
				e.ReferenceCount++
				e.LastReferencedAt = &now
			}
		case memory.TypeFact:
			if f, ok := s.facts[ref.ID]; ok {
				f.ReferenceCount++
				f.LastReferencedAt = &now
			}
		case memory.TypeRule:
			if r, ok := s.rules[ref.ID]; ok {
				r.ReferenceCount++
				r.LastReferencedAt = &now
			}
		}
	}
	return nil
}

// SetFading sets or clears metadata.status="fading" on a fact or rule.
func (s *Store) SetFading(_ context.Context, typ memory.MemoryType, id uuid.UUID, fading bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta **memory.Metadata
	switch typ {
	case memory.TypeFact:
		f, ok := s.facts[id]
		if !ok {
			return fmt.Errorf("%w: fact %s", memory.ErrNotFound, id)
		}
		meta = &f.Metadata
	case memory.TypeRule:
		r, ok := s.rules[id]
		if !ok {
			return fmt.Errorf("%w: rule %s", memory.ErrNotFound, id)
		}
		meta = &r.Metadata
	default:
		return fmt.Errorf("%w: %q (valid: fact, rule)", memory.ErrInvalidMemoryType, typ)
	}

	if *meta == nil {
		*meta = &memory.Metadata{}
	}
	if fading {
		(*meta).Status = memory.StatusFading
	} else {
		(*meta).Status = ""
	}
	return nil
}

// CreateLink inserts a provenance edge. Duplicate inserts are no-ops.
func (s *Store) CreateLink(_ context.Context, in memory.LinkInput) error {
	if err := in.SourceType.Validate(); err != nil {
		return err
	}
	if err := in.TargetType.Validate(); err != nil {
		return err
	}
	if err := in.Relation.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := linkKey{in.SourceType, in.SourceID, in.TargetType, in.TargetID}
	if _, ok := s.links[key]; ok {
		return nil
	}
	s.links[key] = &memory.MemoryLink{
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Relation:   in.Relation,
		CreatedAt:  s.now(),
	}
	return nil
}

// GetLinks returns edges touching an item, filtered by direction and
// optionally by relation.
func (s *Store) GetLinks(_ context.Context, q memory.LinkQuery) ([]*memory.MemoryLink, error) {
	direction := q.Direction
	if direction == "" {
		direction = memory.DirectionBoth
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var links []*memory.MemoryLink
	for _, l := range s.links {
		outMatch := l.SourceType == q.Type && l.SourceID == q.ID
		inMatch := l.TargetType == q.Type && l.TargetID == q.ID

		var match bool
		switch direction {
		case memory.DirectionOut:
			match = outMatch
		case memory.DirectionIn:
			match = inMatch
		case memory.DirectionBoth:
			match = outMatch || inMatch
		default:
			return nil, fmt.Errorf("invalid link direction %q (valid: out, in, both)", direction)
		}
		if !match {
			continue
		}
		if q.Relation != nil && l.Relation != *q.Relation {
			continue
		}
		cp := *l
		links = append(links, &cp)
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}

// Stats summarizes store contents.
func (s *Store) Stats(_ context.Context) (*memory.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memory.Stats{
		Episodes: len(s.episodes),
		Facts:    len(s.facts),
		Rules:    len(s.rules),
		Entities: len(s.entities),
		Links:    len(s.links),
	}, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ memory.Store = (*Store)(nil)
