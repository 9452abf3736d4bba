package decay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/eventstream/nop"
	"github.com/loambase/loam/pkg/memory"
)

// Transition names for decay audit events.
const (
	TransitionExpired  = "expired"
	TransitionFading   = "fading"
	TransitionRestored = "restored"
)

// SweepResult reports what one sweep pass changed.
type SweepResult struct {
	FactsExpired   int `json:"facts_expired"`
	FactsFading    int `json:"facts_fading"`
	FactsRestored  int `json:"facts_restored"`
	RulesForgotten int `json:"rules_forgotten"`
	RulesFading    int `json:"rules_fading"`
	RulesRestored  int `json:"rules_restored"`
}

// Sweeper walks decayable items and applies threshold transitions. Sweeps
// are idempotent: re-running against an unchanged store changes nothing.
type Sweeper struct {
	store     memory.Store
	publisher eventstream.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPublisher sets the audit event publisher. Defaults to nop.
func WithPublisher(p eventstream.Publisher) Option {
	return func(s *Sweeper) { s.publisher = p }
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithClock overrides the time source, letting tests move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a Sweeper over the given store.
func NewSweeper(store memory.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		publisher: nop.NewPublisher(),
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep evaluates every decayable fact and rule once and applies the
// threshold transition each one has crossed.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	result := &SweepResult{}

	facts, err := s.store.DecayableFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing decayable facts: %w", err)
	}
	for _, f := range facts {
		if err := s.sweepFact(ctx, f, now, result); err != nil {
			return nil, err
		}
	}

	rules, err := s.store.DecayableRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing decayable rules: %w", err)
	}
	for _, r := range rules {
		if err := s.sweepRule(ctx, r, now, result); err != nil {
			return nil, err
		}
	}

	s.logger.Info("decay sweep complete",
		zap.Int("facts_expired", result.FactsExpired),
		zap.Int("facts_fading", result.FactsFading),
		zap.Int("rules_forgotten", result.RulesForgotten),
		zap.Int("rules_fading", result.RulesFading),
	)
	return result, nil
}

func (s *Sweeper) sweepFact(ctx context.Context, f *memory.Fact, now time.Time, result *SweepResult) error {
	eff := FactConfidence(f, now)
	fading := f.Metadata != nil && f.Metadata.Status == memory.StatusFading

	switch {
	case eff < ExpireThreshold:
		if err := s.store.SetFactValidity(ctx, f.ID, memory.ValidityExpired); err != nil {
			return fmt.Errorf("expiring fact %s: %w", f.ID, err)
		}
		result.FactsExpired++
		s.emit(ctx, memory.TypeFact, f.ID, f.Scope, TransitionExpired)

	case eff < FadingThreshold:
		if fading {
			return nil
		}
		if err := s.store.SetFading(ctx, memory.TypeFact, f.ID, true); err != nil {
			return fmt.Errorf("fading fact %s: %w", f.ID, err)
		}
		result.FactsFading++
		s.emit(ctx, memory.TypeFact, f.ID, f.Scope, TransitionFading)

	default:
		if !fading {
			return nil
		}
		if err := s.store.SetFading(ctx, memory.TypeFact, f.ID, false); err != nil {
			return fmt.Errorf("restoring fact %s: %w", f.ID, err)
		}
		result.FactsRestored++
		s.emit(ctx, memory.TypeFact, f.ID, f.Scope, TransitionRestored)
	}
	return nil
}

func (s *Sweeper) sweepRule(ctx context.Context, r *memory.Rule, now time.Time, result *SweepResult) error {
	eff := RuleConfidence(r, now)
	fading := r.Metadata != nil && r.Metadata.Status == memory.StatusFading

	switch {
	case eff < ExpireThreshold:
		if err := s.store.SetRuleForgotten(ctx, r.ID); err != nil {
			return fmt.Errorf("forgetting rule %s: %w", r.ID, err)
		}
		result.RulesForgotten++
		s.emit(ctx, memory.TypeRule, r.ID, r.Scope, TransitionExpired)

	case eff < FadingThreshold:
		if fading {
			return nil
		}
		if err := s.store.SetFading(ctx, memory.TypeRule, r.ID, true); err != nil {
			return fmt.Errorf("fading rule %s: %w", r.ID, err)
		}
		result.RulesFading++
		s.emit(ctx, memory.TypeRule, r.ID, r.Scope, TransitionFading)

	default:
		if !fading {
			return nil
		}
		if err := s.store.SetFading(ctx, memory.TypeRule, r.ID, false); err != nil {
			return fmt.Errorf("restoring rule %s: %w", r.ID, err)
		}
		result.RulesRestored++
		s.emit(ctx, memory.TypeRule, r.ID, r.Scope, TransitionRestored)
	}
	return nil
}

func (s *Sweeper) emit(ctx context.Context, typ memory.MemoryType, id uuid.UUID, scope, transition string) {
	event := &eventstream.MutationEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeDecayed,
		EventID:       uuid.NewString(),
		EmittedAt:     s.now(),
		MemoryType:    string(typ),
		MemoryID:      id.String(),
		Scope:         scope,
		Transition:    transition,
	}
	if err := s.publisher.PublishMutation(ctx, event); err != nil {
		s.logger.Warn("failed to publish decay event",
			zap.String("memory_id", event.MemoryID),
			zap.Error(err),
		)
	}
}
