package memory_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/memory"
)

func TestMemory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memory Suite")
}

var _ = Describe("MemoryType", func() {
	It("accepts the known types", func() {
		for _, typ := range []memory.MemoryType{
			memory.TypeEpisode, memory.TypeFact, memory.TypeRule, memory.TypeEntity,
		} {
			Expect(typ.Validate()).To(Succeed())
		}
	})

	It("rejects unknown types", func() {
		err := memory.MemoryType("document").Validate()
		Expect(err).To(MatchError(memory.ErrInvalidMemoryType))
		Expect(err.Error()).To(ContainSubstring("document"))
	})
})

var _ = Describe("Permanence", func() {
	It("maps each class to its decay rate", func() {
		cases := map[memory.Permanence]float64{
			memory.PermanencePermanent: 0.0,
			memory.PermanenceStable:    0.002,
			memory.PermanenceStandard:  0.008,
			memory.PermanenceVolatile:  0.03,
			memory.PermanenceEphemeral: 0.1,
		}
		for p, want := range cases {
			rate, err := p.DecayRate()
			Expect(err).NotTo(HaveOccurred())
			Expect(rate).To(Equal(want))
		}
	})

	It("rejects unknown classes", func() {
		_, err := memory.Permanence("forever").DecayRate()
		Expect(err).To(MatchError(memory.ErrInvalidPermanence))
	})
})

var _ = Describe("Relation", func() {
	It("rejects unknown relations", func() {
		Expect(memory.Relation("caused_by").Validate()).To(MatchError(memory.ErrInvalidRelation))
	})
})

var _ = Describe("Metadata", func() {
	It("clones deeply", func() {
		m := &memory.Metadata{
			Status:         memory.StatusFading,
			HarmfulReasons: []string{"broke prod"},
			Labels:         map[string]string{"source": "transcript"},
		}
		clone := m.Clone()
		clone.HarmfulReasons[0] = "changed"
		clone.Labels["source"] = "changed"

		Expect(m.HarmfulReasons[0]).To(Equal("broke prod"))
		Expect(m.Labels["source"]).To(Equal("transcript"))
	})

	It("clones nil to an empty document", func() {
		var m *memory.Metadata
		Expect(m.Clone()).NotTo(BeNil())
	})
})

var _ = Describe("Entity", func() {
	It("is tombstoned once merged_into is set", func() {
		e := &memory.Entity{}
		Expect(e.Tombstoned()).To(BeFalse())
		e.Metadata = &memory.Metadata{MergedInto: uuid.NewString()}
		Expect(e.Tombstoned()).To(BeTrue())
	})
})

var _ = Describe("Item", func() {
	It("returns the wrapped item's id", func() {
		f := &memory.Fact{ID: uuid.New()}
		item := memory.Item{Type: memory.TypeFact, Fact: f}
		Expect(item.ID()).To(Equal(f.ID))
	})
})

var _ = Describe("SanitizeContent", func() {
	It("collapses whitespace and strips NUL bytes", func() {
		Expect(memory.SanitizeContent("a\x00b   c\n\td")).To(Equal("ab c d"))
	})

	It("truncates on a rune boundary", func() {
		long := strings.Repeat("é", memory.MaxContentBytes)
		out := memory.SanitizeContent(long)
		Expect(len(out)).To(BeNumerically("<=", memory.MaxContentBytes))
		Expect(strings.HasSuffix(out, "é")).To(BeTrue())
	})
})

var _ = Describe("SanitizeQuery", func() {
	It("never truncates", func() {
		long := strings.Repeat("x ", memory.MaxContentBytes)
		Expect(len(memory.SanitizeQuery(long))).To(BeNumerically(">", memory.MaxContentBytes))
	})
})
