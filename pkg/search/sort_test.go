package search

import (
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/memory"
)

var _ = Describe("sortResults", func() {
	fact := func() memory.Item {
		return memory.Item{Type: memory.TypeFact, Fact: &memory.Fact{ID: uuid.New()}}
	}

	It("orders by score descending", func() {
		results := []Result{
			{Item: fact(), Score: 0.1},
			{Item: fact(), Score: 0.9},
			{Item: fact(), Score: 0.5},
		}
		sortResults(results)
		Expect(results[0].Score).To(Equal(0.9))
		Expect(results[1].Score).To(Equal(0.5))
		Expect(results[2].Score).To(Equal(0.1))
	})

	It("breaks score ties by the better semantic rank", func() {
		second := Result{Item: fact(), Score: 0.5, SemanticRank: 3, KeywordRank: 1}
		first := Result{Item: fact(), Score: 0.5, SemanticRank: 1, KeywordRank: 3}
		results := []Result{second, first}
		sortResults(results)
		Expect(results[0].SemanticRank).To(Equal(1))
		Expect(results[1].SemanticRank).To(Equal(3))
	})

	It("treats a missing semantic rank as worse than any real rank", func() {
		keywordOnly := Result{Item: fact(), Score: 0.5, SemanticRank: 0, KeywordRank: 1}
		ranked := Result{Item: fact(), Score: 0.5, SemanticRank: 7, KeywordRank: 2}
		results := []Result{keywordOnly, ranked}
		sortResults(results)
		Expect(results[0].SemanticRank).To(Equal(7))
		Expect(results[1].SemanticRank).To(Equal(0))
	})
})
