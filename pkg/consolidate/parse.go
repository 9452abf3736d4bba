package consolidate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/loambase/loam/pkg/memory"
)

// extraction is the payload the collaborator is asked to produce.
type extraction struct {
	NewFacts      []newFact      `json:"new_facts"`
	UpdatedFacts  []updatedFact  `json:"updated_facts"`
	NewRules      []newRule      `json:"new_rules"`
	Confirmations []confirmation `json:"confirmations"`
}

type newFact struct {
	Subject    string `json:"subject"`
	Predicate  string `json:"predicate"`
	Content    string `json:"content"`
	Importance int    `json:"importance"`
	Permanence string `json:"permanence"`
	EntityName string `json:"entity_name"`
}

type updatedFact struct {
	FactID     string `json:"fact_id"`
	Subject    string `json:"subject"`
	Predicate  string `json:"predicate"`
	Content    string `json:"content"`
	Importance int    `json:"importance"`
	Permanence string `json:"permanence"`

	// id holds the parsed FactID once validated.
	id uuid.UUID
}

type newRule struct {
	Content    string `json:"content"`
	Permanence string `json:"permanence"`
}

type confirmation struct {
	MemoryType string `json:"memory_type"`
	MemoryID   string `json:"memory_id"`
}

// parseExtraction pulls the JSON object out of a model response and
// normalizes it. Malformed list entries are dropped with a recorded parse
// error rather than failing the batch; a response with no parsable JSON at
// all yields an empty extraction plus one error.
func parseExtraction(raw string) (*extraction, []string) {
	payload := extractJSON(raw)
	if payload == "" {
		return &extraction{}, []string{"no JSON object found in model response"}
	}

	var ext extraction
	if err := json.Unmarshal([]byte(payload), &ext); err != nil {
		return &extraction{}, []string{fmt.Sprintf("unmarshaling extraction: %v", err)}
	}

	var errs []string
	ext.NewFacts, errs = normalizeNewFacts(ext.NewFacts, errs)
	ext.UpdatedFacts, errs = normalizeUpdatedFacts(ext.UpdatedFacts, errs)
	ext.NewRules, errs = normalizeNewRules(ext.NewRules, errs)
	ext.Confirmations, errs = normalizeConfirmations(ext.Confirmations, errs)
	return &ext, errs
}

func normalizeNewFacts(in []newFact, errs []string) ([]newFact, []string) {
	kept := in[:0]
	for i, f := range in {
		f.Subject = memory.SanitizeQuery(f.Subject)
		f.Predicate = memory.SanitizeQuery(f.Predicate)
		f.Content = memory.SanitizeContent(f.Content)
		if f.Subject == "" || f.Predicate == "" || f.Content == "" {
			errs = append(errs, fmt.Sprintf("new_facts[%d]: missing subject, predicate, or content", i))
			continue
		}
		f.Importance = clampImportance(f.Importance)
		f.Permanence = normalizePermanence(f.Permanence)
		kept = append(kept, f)
	}
	return kept, errs
}

func normalizeUpdatedFacts(in []updatedFact, errs []string) ([]updatedFact, []string) {
	kept := in[:0]
	for i, f := range in {
		f.Subject = memory.SanitizeQuery(f.Subject)
		f.Predicate = memory.SanitizeQuery(f.Predicate)
		f.Content = memory.SanitizeContent(f.Content)
		if f.Subject == "" || f.Predicate == "" || f.Content == "" {
			errs = append(errs, fmt.Sprintf("updated_facts[%d]: missing subject, predicate, or content", i))
			continue
		}
		id, err := uuid.Parse(f.FactID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("updated_facts[%d]: invalid fact_id %q", i, f.FactID))
			continue
		}
		f.id = id
		f.Importance = clampImportance(f.Importance)
		f.Permanence = normalizePermanence(f.Permanence)
		kept = append(kept, f)
	}
	return kept, errs
}

func normalizeNewRules(in []newRule, errs []string) ([]newRule, []string) {
	kept := in[:0]
	for i, r := range in {
		r.Content = memory.SanitizeContent(r.Content)
		if r.Content == "" {
			errs = append(errs, fmt.Sprintf("new_rules[%d]: missing content", i))
			continue
		}
		r.Permanence = normalizePermanence(r.Permanence)
		kept = append(kept, r)
	}
	return kept, errs
}

func normalizeConfirmations(in []confirmation, errs []string) ([]confirmation, []string) {
	kept := in[:0]
	for i, c := range in {
		typ := memory.MemoryType(strings.ToLower(strings.TrimSpace(c.MemoryType)))
		if typ != memory.TypeFact && typ != memory.TypeRule {
			errs = append(errs, fmt.Sprintf("confirmations[%d]: memory_type must be fact or rule", i))
			continue
		}
		if c.MemoryID == "" {
			errs = append(errs, fmt.Sprintf("confirmations[%d]: missing memory_id", i))
			continue
		}
		c.MemoryType = string(typ)
		kept = append(kept, c)
	}
	return kept, errs
}

func clampImportance(v int) int {
	if v == 0 {
		return memory.DefaultImportance
	}
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func normalizePermanence(v string) string {
	p := memory.Permanence(strings.ToLower(strings.TrimSpace(v)))
	if _, err := p.DecayRate(); err != nil {
		return string(memory.PermanenceStandard)
	}
	return string(p)
}

// extractJSON returns the JSON object embedded in a model response: the
// contents of a fenced code block when present, otherwise the first
// balanced top-level object. Braces inside JSON strings are skipped.
func extractJSON(raw string) string {
	if fenced := extractFenced(raw); fenced != "" {
		raw = fenced
	}

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func extractFenced(raw string) string {
	open := strings.Index(raw, "```")
	if open < 0 {
		return ""
	}
	rest := raw[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json" or similar).
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
