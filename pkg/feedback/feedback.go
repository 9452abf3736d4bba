// Package feedback tracks rule outcomes. Helpful reports raise a rule's
// effectiveness and can promote it through the maturity ladder; harmful
// reports demote it and, past a threshold, invert it into an explicit
// anti-pattern so the lesson survives rather than being silently dropped.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/memory"
)

// Maturity promotion thresholds.
const (
	// EstablishedMinSuccesses and EstablishedMinEffectiveness gate the
	// candidate to established promotion.
	EstablishedMinSuccesses     = 5
	EstablishedMinEffectiveness = 0.6

	// ProvenMinSuccesses, ProvenMinEffectiveness, and ProvenMinAge gate the
	// established to proven promotion.
	ProvenMinSuccesses     = 15
	ProvenMinEffectiveness = 0.8
	ProvenMinAge           = 30 * 24 * time.Hour
)

// Anti-pattern inversion thresholds: a rule reported harmful this many
// times with effectiveness below the floor gets inverted.
const (
	InversionMinHarmful         = 3
	InversionMaxEffectiveness   = 0.3
	antiPatternPrefix           = "ANTI-PATTERN: Do NOT "
	antiPatternReasonsSeparator = "; "
)

// harmfulPenalty weights harmful reports heavily in the effectiveness
// denominator; the epsilon keeps the division defined at zero counts.
const (
	harmfulPenalty     = 4.0
	harmfulDenominator = 0.01
)

// Tracker applies outcome reports to rules.
type Tracker struct {
	store  memory.Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides the time source used for promotion age checks.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker over the given store.
func NewTracker(store memory.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MarkHelpful records a successful application of a rule, recomputes its
// effectiveness, applies any earned promotion, and confirms the rule so
// its decay clock resets.
func (t *Tracker) MarkHelpful(ctx context.Context, ruleID uuid.UUID) (*memory.Rule, error) {
	rule, err := t.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	rule.AppliedCount++
	rule.SuccessCount++
	rule.EffectivenessScore = float64(rule.SuccessCount) / float64(rule.AppliedCount)
	rule.LastAppliedAt = &now
	rule.LastEvaluatedAt = &now

	if promoted := promote(rule, now); promoted != "" {
		t.logger.Info("rule promoted",
			zap.String("rule_id", rule.ID.String()),
			zap.String("maturity", string(promoted)),
			zap.Float64("effectiveness", rule.EffectivenessScore),
		)
	}

	if err := t.store.UpdateRule(ctx, rule, false); err != nil {
		return nil, fmt.Errorf("updating rule after helpful report: %w", err)
	}
	if err := t.store.ConfirmMemory(ctx, memory.TypeRule, ruleID); err != nil {
		return nil, fmt.Errorf("confirming rule: %w", err)
	}
	return rule, nil
}

// promote advances maturity one step when the rule qualifies, returning the
// new maturity or "" when nothing changed. Anti-patterns never promote.
func promote(r *memory.Rule, now time.Time) memory.Maturity {
	switch r.Maturity {
	case memory.MaturityCandidate:
		if r.SuccessCount >= EstablishedMinSuccesses &&
			r.EffectivenessScore >= EstablishedMinEffectiveness {
			r.Maturity = memory.MaturityEstablished
			return r.Maturity
		}
	case memory.MaturityEstablished:
		if r.SuccessCount >= ProvenMinSuccesses &&
			r.EffectivenessScore >= ProvenMinEffectiveness &&
			now.Sub(r.CreatedAt) >= ProvenMinAge {
			r.Maturity = memory.MaturityProven
			return r.Maturity
		}
	}
	return ""
}

// MarkHarmful records a harmful application of a rule: effectiveness drops
// under a weighted penalty, maturity demotes one step once it falls below
// the current tier's threshold, and the reason is retained. A rule that
// keeps causing harm is inverted into an anti-pattern.
func (t *Tracker) MarkHarmful(ctx context.Context, ruleID uuid.UUID, reason string) (*memory.Rule, error) {
	rule, err := t.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	rule.AppliedCount++
	rule.HarmfulCount++
	rule.EffectivenessScore = float64(rule.SuccessCount) /
		(float64(rule.SuccessCount) + harmfulPenalty*float64(rule.HarmfulCount) + harmfulDenominator)
	rule.LastAppliedAt = &now
	rule.LastEvaluatedAt = &now

	if demoted := demote(rule); demoted != "" {
		t.logger.Info("rule demoted",
			zap.String("rule_id", rule.ID.String()),
			zap.String("maturity", string(demoted)),
			zap.Float64("effectiveness", rule.EffectivenessScore),
		)
	}

	if rule.Metadata == nil {
		rule.Metadata = &memory.Metadata{}
	}
	reason = memory.SanitizeQuery(reason)
	if reason != "" {
		rule.Metadata.HarmfulReasons = append(rule.Metadata.HarmfulReasons, reason)
	}

	if rule.Maturity != memory.MaturityAntiPattern &&
		rule.HarmfulCount >= InversionMinHarmful &&
		rule.EffectivenessScore < InversionMaxEffectiveness {
		rule.Metadata.NeedsInversion = true
	}

	if err := t.store.UpdateRule(ctx, rule, false); err != nil {
		return nil, fmt.Errorf("updating rule after harmful report: %w", err)
	}

	if rule.Metadata.NeedsInversion {
		if err := t.invert(ctx, rule); err != nil {
			// Counters are already saved; the flag stays set so a later
			// report retries the inversion.
			return nil, fmt.Errorf("inverting rule %s: %w", ruleID, err)
		}
		t.logger.Info("rule inverted to anti-pattern",
			zap.String("rule_id", rule.ID.String()),
			zap.Int("harmful_count", rule.HarmfulCount),
			zap.Float64("effectiveness", rule.EffectivenessScore),
		)
	}
	return rule, nil
}

// demote steps maturity down one level when the recomputed effectiveness no
// longer clears the current tier's threshold, returning the new maturity or
// "" when the rule held its tier. Candidates and anti-patterns have nowhere
// lower to go.
func demote(r *memory.Rule) memory.Maturity {
	switch r.Maturity {
	case memory.MaturityProven:
		if r.EffectivenessScore < ProvenMinEffectiveness {
			r.Maturity = memory.MaturityEstablished
			return r.Maturity
		}
	case memory.MaturityEstablished:
		if r.EffectivenessScore < EstablishedMinEffectiveness {
			r.Maturity = memory.MaturityCandidate
			return r.Maturity
		}
	}
	return ""
}

// invert rewrites the rule as an explicit anti-pattern, preserving the
// original content and regenerating the embedding for the new text.
func (t *Tracker) invert(ctx context.Context, rule *memory.Rule) error {
	if rule.Metadata.OriginalContent == "" {
		rule.Metadata.OriginalContent = rule.Content
	}

	var b strings.Builder
	b.WriteString(antiPatternPrefix)
	b.WriteString(rule.Metadata.OriginalContent)
	b.WriteString(".")
	if len(rule.Metadata.HarmfulReasons) > 0 {
		b.WriteString(" This caused problems because: ")
		b.WriteString(strings.Join(rule.Metadata.HarmfulReasons, antiPatternReasonsSeparator))
	}

	rule.Content = b.String()
	rule.Maturity = memory.MaturityAntiPattern
	rule.Metadata.NeedsInversion = false

	return t.store.UpdateRule(ctx, rule, true)
}
