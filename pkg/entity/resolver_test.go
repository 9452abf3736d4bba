package entity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/entity"
	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/memory/inmemory"
	testutils "github.com/loambase/loam/pkg/utils/test"
)

func TestEntity(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Entity Suite")
}

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		store    *inmemory.Store
		resolver *entity.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore(testutils.NewMockEmbedder())
		resolver = entity.NewResolver(store, entity.WithFuzzy(true))
	})

	createEntity := func(name string, typ memory.EntityType, aliases ...string) *memory.Entity {
		e, err := store.CreateEntity(ctx, memory.EntityInput{
			TenantID:      "t1",
			CanonicalName: name,
			EntityType:    typ,
			Aliases:       aliases,
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	It("returns an empty list for unknown or empty names", func() {
		candidates, err := resolver.Resolve(ctx, "t1", "nobody", entity.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())

		candidates, err = resolver.Resolve(ctx, "t1", "   ", entity.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})

	It("scores tiers exact > alias > prefix", func() {
		createEntity("Redis", memory.EntityOther)
		createEntity("Valkey", memory.EntityOther, "redis")
		createEntity("Redis Sentinel", memory.EntityOther)

		candidates, err := resolver.Resolve(ctx, "t1", "Redis", entity.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(3))

		Expect(candidates[0].Entity.CanonicalName).To(Equal("Redis"))
		Expect(candidates[0].Score).To(Equal(entity.ScoreExact))
		Expect(candidates[0].Tier).To(Equal(entity.TierExact))

		Expect(candidates[1].Entity.CanonicalName).To(Equal("Valkey"))
		Expect(candidates[1].Score).To(Equal(entity.ScoreAlias))
		Expect(candidates[1].Tier).To(Equal(entity.TierAlias))

		Expect(candidates[2].Entity.CanonicalName).To(Equal("Redis Sentinel"))
		Expect(candidates[2].Score).To(Equal(entity.ScorePrefix))
		Expect(candidates[2].Tier).To(Equal(entity.TierPrefix))
	})

	It("keeps the best tier when an entity matches several", func() {
		// Exact name also matches the prefix tier; only exact must count.
		createEntity("Postgres", memory.EntityOther)

		candidates, err := resolver.Resolve(ctx, "t1", "Postgres", entity.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].Score).To(Equal(entity.ScoreExact))
	})

	It("finds near spellings only when fuzzy is enabled", func() {
		createEntity("Kubernetes", memory.EntityOther)

		candidates, err := resolver.Resolve(ctx, "t1", "Kubernets", entity.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].Tier).To(Equal(entity.TierFuzzy))

		strict := entity.NewResolver(store)
		candidates, err = strict.Resolve(ctx, "t1", "Kubernets", entity.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})

	It("restricts candidates by type", func() {
		createEntity("Mercury", memory.EntityPerson)
		createEntity("Mercury", memory.EntityOrganization)

		org := memory.EntityOrganization
		candidates, err := resolver.Resolve(ctx, "t1", "Mercury", entity.Options{Type: &org})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].Entity.EntityType).To(Equal(memory.EntityOrganization))
	})

	It("boosts candidates whose facts overlap the context", func() {
		plain := createEntity("Alice Smith", memory.EntityPerson)
		known := createEntity("Alice Smithe", memory.EntityPerson)
		_, err := store.StoreFact(ctx, memory.FactInput{
			Subject: "alice", Predicate: "works_on", Content: "kafka ingestion pipeline",
			EntityID: &known.ID,
		})
		Expect(err).NotTo(HaveOccurred())

		candidates, err := resolver.Resolve(ctx, "t1", "Alice Smit", entity.Options{
			Context: "the kafka ingestion pipeline is backed up",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(2))
		// Both match the prefix tier; context overlap breaks the tie.
		Expect(candidates[0].Entity.ID).To(Equal(known.ID))
		Expect(candidates[0].Score).To(BeNumerically(">", entity.ScorePrefix))
		Expect(candidates[1].Entity.ID).To(Equal(plain.ID))
	})

	It("adds domain score boosts per entity", func() {
		createEntity("Mercury", memory.EntityPerson)
		corp := createEntity("Mercury Corp", memory.EntityOrganization)

		candidates, err := resolver.Resolve(ctx, "t1", "Mercury", entity.Options{
			DomainScores: map[uuid.UUID]float64{corp.ID: 30},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(2))
		// Boosted to 80, still below the exact match at 100.
		Expect(candidates[0].Entity.EntityType).To(Equal(memory.EntityPerson))
		Expect(candidates[1].Score).To(Equal(entity.ScorePrefix + 30))
	})

	It("can reorder candidates within a tier by entity boost", func() {
		createEntity("Mercury Corp", memory.EntityOrganization)
		labs := createEntity("Mercury Labs", memory.EntityOrganization)

		// Without the boost the name tiebreak would put Corp first.
		candidates, err := resolver.Resolve(ctx, "t1", "Mercury", entity.Options{
			DomainScores: map[uuid.UUID]float64{labs.ID: 5},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(2))
		Expect(candidates[0].Entity.ID).To(Equal(labs.ID))
		Expect(candidates[1].Entity.CanonicalName).To(Equal("Mercury Corp"))
	})

	It("merges through the store", func() {
		source := createEntity("Bob S", memory.EntityPerson)
		target := createEntity("Bob Smith", memory.EntityPerson)

		result, err := resolver.Merge(ctx, "t1", source.ID, target.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.SourceID).To(Equal(source.ID))
		Expect(result.AliasesAdded).To(Equal(1))

		src, err := store.GetEntity(ctx, source.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(src.Tombstoned()).To(BeTrue())
	})
})
