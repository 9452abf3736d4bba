// Package decay computes effective confidence for facts and rules and runs
// the periodic sweep that applies lifecycle transitions as confidence
// erodes: items fade below one threshold and are expired or forgotten below
// a lower one. Confirming an item resets its decay clock.
package decay

import (
	"math"
	"time"

	"github.com/loambase/loam/pkg/memory"
)

const (
	// ExpireThreshold is the effective confidence below which an item is
	// removed from retrieval: facts expire, rules are forgotten.
	ExpireThreshold = 0.05

	// FadingThreshold is the effective confidence below which an item is
	// soft-flagged as fading but remains retrievable.
	FadingThreshold = 0.2
)

// EffectiveConfidence applies exponential decay to a stored confidence.
// A zero decay rate means the item never decays. An item that has never
// been confirmed has no decay anchor and is treated as fully decayed.
func EffectiveConfidence(confidence, ratePerDay float64, lastConfirmedAt *time.Time, now time.Time) float64 {
	if ratePerDay == 0 {
		return confidence
	}
	if lastConfirmedAt == nil {
		return 0
	}
	days := now.Sub(*lastConfirmedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return confidence * math.Exp(-ratePerDay*days)
}

// FactConfidence returns a fact's effective confidence at the given time.
func FactConfidence(f *memory.Fact, now time.Time) float64 {
	return EffectiveConfidence(f.Confidence, f.DecayRate, f.LastConfirmedAt, now)
}

// RuleConfidence returns a rule's effective confidence at the given time.
func RuleConfidence(r *memory.Rule, now time.Time) float64 {
	return EffectiveConfidence(r.Confidence, r.DecayRate, r.LastConfirmedAt, now)
}

// ItemConfidence returns the effective confidence of a search result item.
// Episodes carry no confidence model and always score 1.
func ItemConfidence(item memory.Item, now time.Time) float64 {
	switch item.Type {
	case memory.TypeFact:
		return FactConfidence(item.Fact, now)
	case memory.TypeRule:
		return RuleConfidence(item.Rule, now)
	}
	return 1
}
