package consolidate

import (
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseExtraction", func() {
	It("parses a bare JSON object", func() {
		ext, errs := parseExtraction(`{"new_facts":[{"subject":"alice","predicate":"role","content":"engineer"}]}`)
		Expect(errs).To(BeEmpty())
		Expect(ext.NewFacts).To(HaveLen(1))
		Expect(ext.NewFacts[0].Subject).To(Equal("alice"))
		Expect(ext.NewFacts[0].Importance).To(Equal(5))
		Expect(ext.NewFacts[0].Permanence).To(Equal("standard"))
	})

	It("prefers a fenced code block", func() {
		raw := "Here is the extraction:\n```json\n{\"new_rules\":[{\"content\":\"run the linter\"}]}\n```\nanything after"
		ext, errs := parseExtraction(raw)
		Expect(errs).To(BeEmpty())
		Expect(ext.NewRules).To(HaveLen(1))
	})

	It("finds the first balanced object amid prose", func() {
		raw := `Sure! {"confirmations":[{"memory_type":"fact","memory_id":"abc"}]} Hope that helps.`
		ext, errs := parseExtraction(raw)
		Expect(errs).To(BeEmpty())
		Expect(ext.Confirmations).To(HaveLen(1))
	})

	It("is not fooled by braces inside JSON strings", func() {
		raw := `{"new_rules":[{"content":"wrap values in {braces} when templating"}]}`
		ext, errs := parseExtraction(raw)
		Expect(errs).To(BeEmpty())
		Expect(ext.NewRules).To(HaveLen(1))
		Expect(ext.NewRules[0].Content).To(ContainSubstring("{braces}"))
	})

	It("reports a response with no JSON at all", func() {
		ext, errs := parseExtraction("I could not find anything to extract.")
		Expect(errs).To(HaveLen(1))
		Expect(ext.NewFacts).To(BeEmpty())
	})

	It("reports malformed JSON", func() {
		_, errs := parseExtraction(`{"new_facts": [}`)
		Expect(errs).To(HaveLen(1))
	})

	It("drops invalid entries and keeps the rest", func() {
		raw := `{
			"new_facts": [
				{"subject":"alice","predicate":"role","content":"engineer"},
				{"subject":"","predicate":"role","content":"missing subject"}
			],
			"new_rules": [
				{"content":""},
				{"content":"run the linter"}
			],
			"confirmations": [
				{"memory_type":"episode","memory_id":"abc"},
				{"memory_type":"Rule","memory_id":"def"}
			]
		}`
		ext, errs := parseExtraction(raw)
		Expect(errs).To(HaveLen(3))
		Expect(ext.NewFacts).To(HaveLen(1))
		Expect(ext.NewRules).To(HaveLen(1))
		Expect(ext.Confirmations).To(HaveLen(1))
		Expect(ext.Confirmations[0].MemoryType).To(Equal("rule"))
	})

	It("requires subject, predicate, content, and a valid id on updates", func() {
		id := uuid.New()
		raw := fmt.Sprintf(`{
			"updated_facts": [
				{"fact_id":%q,"subject":"alice","predicate":"team","content":"infra"},
				{"fact_id":%q,"content":"missing subject and predicate"},
				{"fact_id":"not-a-uuid","subject":"alice","predicate":"team","content":"infra"}
			]
		}`, id, id)
		ext, errs := parseExtraction(raw)
		Expect(errs).To(HaveLen(2))
		Expect(errs[0]).To(ContainSubstring("updated_facts[1]"))
		Expect(errs[1]).To(ContainSubstring("invalid fact_id"))
		Expect(ext.UpdatedFacts).To(HaveLen(1))
		Expect(ext.UpdatedFacts[0].id).To(Equal(id))
	})

	It("clamps importance and falls back on unknown permanence", func() {
		raw := `{"new_facts":[{"subject":"a","predicate":"b","content":"c","importance":42,"permanence":"eternal"}]}`
		ext, errs := parseExtraction(raw)
		Expect(errs).To(BeEmpty())
		Expect(ext.NewFacts[0].Importance).To(Equal(10))
		Expect(ext.NewFacts[0].Permanence).To(Equal("standard"))
	})
})
