package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/memory/inmemory"
	testutils "github.com/loambase/loam/pkg/utils/test"
)

var _ = Describe("Entities", func() {
	var (
		ctx       context.Context
		store     *inmemory.Store
		publisher *testutils.MockPublisher
	)

	BeforeEach(func() {
		ctx = context.Background()
		publisher = testutils.NewMockPublisher()
		store = inmemory.NewStore(testutils.NewMockEmbedder(),
			inmemory.WithPublisher(publisher),
			inmemory.WithClock(func() time.Time {
				return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			}),
		)
	})

	createEntity := func(name string, aliases ...string) *memory.Entity {
		e, err := store.CreateEntity(ctx, memory.EntityInput{
			TenantID:      "t1",
			CanonicalName: name,
			EntityType:    memory.EntityPerson,
			Aliases:       aliases,
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	Describe("CreateEntity", func() {
		It("rejects duplicate names case-insensitively within a tenant and type", func() {
			createEntity("Alice Smith")
			_, err := store.CreateEntity(ctx, memory.EntityInput{
				TenantID: "t1", CanonicalName: "alice smith", EntityType: memory.EntityPerson,
			})
			Expect(err).To(HaveOccurred())
		})

		It("allows the same name in a different tenant", func() {
			createEntity("Alice Smith")
			_, err := store.CreateEntity(ctx, memory.EntityInput{
				TenantID: "t2", CanonicalName: "Alice Smith", EntityType: memory.EntityPerson,
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("lookup tiers", func() {
		It("matches exact names case-insensitively", func() {
			e := createEntity("Alice Smith")
			got, err := store.EntitiesByExactName(ctx, "t1", "ALICE SMITH", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal(e.ID))
		})

		It("matches aliases", func() {
			e := createEntity("Alice Smith", "asmith")
			got, err := store.EntitiesByAlias(ctx, "t1", "ASmith", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal(e.ID))
		})

		It("matches substrings of names and aliases", func() {
			createEntity("Alice Smith")
			got, err := store.EntitiesBySubstring(ctx, "t1", "smith", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
		})

		It("matches near spellings via trigram similarity", func() {
			createEntity("Alice Smith")
			got, err := store.EntitiesByFuzzy(ctx, "t1", "Alice Smyth", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
		})

		It("filters by entity type", func() {
			createEntity("Acme")
			org := memory.EntityOrganization
			got, err := store.EntitiesByExactName(ctx, "t1", "Acme", &org)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})

	Describe("MergeEntities", func() {
		It("rejects merging an entity into itself", func() {
			e := createEntity("Alice")
			_, err := store.MergeEntities(ctx, e.ID, e.ID, "t1")
			Expect(err).To(MatchError(memory.ErrMergeSelf))
		})

		It("re-points source facts and tombstones the source", func() {
			source := createEntity("Alice S", "al")
			target := createEntity("Alice Smith")

			f, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "alice", Predicate: "team", Content: "platform",
				Scope: "work", EntityID: &source.ID,
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := store.MergeEntities(ctx, source.ID, target.ID, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.FactsRepointed).To(Equal(1))
			Expect(result.FactsSuperseded).To(Equal(0))

			got, err := store.GetFact(ctx, f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*got.EntityID).To(Equal(target.ID))

			src, err := store.GetEntity(ctx, source.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(src.Tombstoned()).To(BeTrue())
			Expect(src.Metadata.MergedInto).To(Equal(target.ID.String()))

			tgt, err := store.GetEntity(ctx, target.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(tgt.Aliases).To(ContainElements("Alice S", "al"))

			merged := publisher.EventsOfType(eventstream.EventTypeEntityMerged)
			Expect(merged).To(HaveLen(1))
			Expect(merged[0].Merge.FactsRepointed).To(Equal(1))
		})

		It("keeps the higher-confidence fact on key conflicts", func() {
			source := createEntity("Bob S")
			target := createEntity("Bob Smith")

			weak, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "bob", Predicate: "role", Content: "intern",
				Scope: "work", EntityID: &target.ID, Confidence: 0.5,
			})
			Expect(err).NotTo(HaveOccurred())
			strong, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "bob", Predicate: "role", Content: "engineer",
				Scope: "work", EntityID: &source.ID, Confidence: 0.9,
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := store.MergeEntities(ctx, source.ID, target.ID, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.FactsSuperseded).To(Equal(1))

			gotWeak, _ := store.GetFact(ctx, weak.ID)
			Expect(gotWeak.Validity).To(Equal(memory.ValiditySuperseded))
			gotStrong, _ := store.GetFact(ctx, strong.ID)
			Expect(gotStrong.Validity).To(Equal(memory.ValidityActive))
			Expect(*gotStrong.EntityID).To(Equal(target.ID))
			Expect(*gotStrong.SupersedesID).To(Equal(weak.ID))
		})

		It("ties favor the target fact", func() {
			source := createEntity("Carol S")
			target := createEntity("Carol Smith")

			kept, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "carol", Predicate: "role", Content: "designer",
				Scope: "work", EntityID: &target.ID, Confidence: 0.7,
			})
			Expect(err).NotTo(HaveOccurred())
			dropped, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "carol", Predicate: "role", Content: "developer",
				Scope: "work", EntityID: &source.ID, Confidence: 0.7,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = store.MergeEntities(ctx, source.ID, target.ID, "t1")
			Expect(err).NotTo(HaveOccurred())

			gotKept, _ := store.GetFact(ctx, kept.ID)
			Expect(gotKept.Validity).To(Equal(memory.ValidityActive))
			gotDropped, _ := store.GetFact(ctx, dropped.ID)
			Expect(gotDropped.Validity).To(Equal(memory.ValiditySuperseded))
		})

		It("refuses to merge a tombstoned source again", func() {
			source := createEntity("Dora S")
			target := createEntity("Dora Smith")
			_, err := store.MergeEntities(ctx, source.ID, target.ID, "t1")
			Expect(err).NotTo(HaveOccurred())

			other := createEntity("Dora Jones")
			_, err = store.MergeEntities(ctx, source.ID, other.ID, "t1")
			Expect(err).To(MatchError(memory.ErrMergeTombstoned))
		})

		It("excludes tombstoned entities from lookups", func() {
			source := createEntity("Eve S")
			target := createEntity("Eve Smith")
			_, err := store.MergeEntities(ctx, source.ID, target.ID, "t1")
			Expect(err).NotTo(HaveOccurred())

			got, err := store.EntitiesByExactName(ctx, "t1", "Eve S", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})
})
