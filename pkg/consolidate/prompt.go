package consolidate

import (
	"fmt"
	"strings"

	"github.com/loambase/loam/pkg/memory"
)

// buildPrompt assembles the extraction prompt: existing knowledge for
// deduplication, then the episode batch with explicit boundaries so the
// model cannot blur adjacent episodes together, then the response schema.
func buildPrompt(scope string, episodes []*memory.Episode, facts []*memory.Fact, rules []*memory.Rule) string {
	var b strings.Builder

	b.WriteString("You are the consolidation stage of a long-term memory system for AI agents.\n")
	b.WriteString("Extract durable knowledge from the episodes below for scope ")
	fmt.Fprintf(&b, "%q.\n\n", scope)

	b.WriteString("Existing facts (do not re-extract; reference by id to update or confirm):\n")
	if len(facts) == 0 {
		b.WriteString("(none)\n")
	}
	for _, f := range facts {
		fmt.Fprintf(&b, "- [%s] %s %s: %s\n", f.ID, f.Subject, f.Predicate, f.Content)
	}

	b.WriteString("\nExisting rules (reference by id to confirm):\n")
	if len(rules) == 0 {
		b.WriteString("(none)\n")
	}
	for _, r := range rules {
		fmt.Fprintf(&b, "- [%s] (%s) %s\n", r.ID, r.Maturity, r.Content)
	}

	b.WriteString("\nEpisodes to consolidate:\n")
	for i, e := range episodes {
		fmt.Fprintf(&b, "--- EPISODE %d (id: %s) ---\n", i+1, e.ID)
		b.WriteString(e.Content)
		fmt.Fprintf(&b, "\n--- END EPISODE %d ---\n", i+1)
	}

	b.WriteString(`
Respond with a single JSON object, no prose:
{
  "new_facts": [
    {"subject": "...", "predicate": "...", "content": "...",
     "importance": 1-10, "permanence": "permanent|stable|standard|volatile|ephemeral",
     "entity_name": "optional recurring person/org/place"}
  ],
  "updated_facts": [
    {"fact_id": "existing fact id", "subject": "...", "predicate": "...",
     "content": "replacement content", "importance": 1-10, "permanence": "..."}
  ],
  "new_rules": [
    {"content": "...", "permanence": "..."}
  ],
  "confirmations": [
    {"memory_type": "fact|rule", "memory_id": "existing id still true"}
  ]
}

Only extract knowledge worth keeping beyond this session. Prefer updating
or confirming an existing item over creating a near-duplicate.`)

	return b.String()
}
