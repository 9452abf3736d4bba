package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/memory/inmemory"
	testutils "github.com/loambase/loam/pkg/utils/test"
)

func TestInMemory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "InMemory Store Suite")
}

var _ = Describe("Store", func() {
	var (
		ctx       context.Context
		store     *inmemory.Store
		publisher *testutils.MockPublisher
		clock     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		publisher = testutils.NewMockPublisher()
		clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		store = inmemory.NewStore(testutils.NewMockEmbedder(),
			inmemory.WithPublisher(publisher),
			inmemory.WithClock(func() time.Time { return clock }),
		)
	})

	Describe("StoreEpisode", func() {
		It("applies defaults and emits a stored event", func() {
			e, err := store.StoreEpisode(ctx, memory.EpisodeInput{
				Scope:   "myrepo",
				Content: "  deployed   the  service  ",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Content).To(Equal("deployed the service"))
			Expect(e.Importance).To(Equal(memory.DefaultImportance))
			Expect(e.ConsolidationStatus).To(Equal(memory.ConsolidationPending))
			Expect(e.ExpiresAt).To(Equal(clock.Add(memory.DefaultEpisodeTTL)))
			Expect(e.Embedding).NotTo(BeEmpty())

			events := publisher.EventsOfType(eventstream.EventTypeStored)
			Expect(events).To(HaveLen(1))
			Expect(events[0].MemoryType).To(Equal("episode"))
			Expect(events[0].Scope).To(Equal("myrepo"))
		})

		It("rejects out-of-range importance", func() {
			_, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "x", Importance: 11})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("PendingEpisodes", func() {
		It("returns oldest first, bounded by limit", func() {
			first, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "one"})
			Expect(err).NotTo(HaveOccurred())
			clock = clock.Add(time.Minute)
			_, err = store.StoreEpisode(ctx, memory.EpisodeInput{Content: "two"})
			Expect(err).NotTo(HaveOccurred())

			pending, err := store.PendingEpisodes(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].ID).To(Equal(first.ID))
		})

		It("excludes consolidated episodes", func() {
			e, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "one"})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.MarkEpisodesConsolidated(ctx, []uuid.UUID{e.ID})).To(Succeed())

			pending, err := store.PendingEpisodes(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})
	})

	Describe("MarkEpisodeError", func() {
		It("records the error and bumps the retry count", func() {
			e, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "one"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.MarkEpisodeError(ctx, e.ID, "llm timeout")).To(Succeed())
			Expect(store.MarkEpisodeError(ctx, e.ID, "llm timeout")).To(Succeed())

			got, err := store.GetEpisode(ctx, e.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ConsolidationStatus).To(Equal(memory.ConsolidationError))
			Expect(got.RetryCount).To(Equal(2))
			Expect(*got.LastError).To(Equal("llm timeout"))
		})
	})

	Describe("RunEpisodeCleanup", func() {
		It("deletes expired episodes", func() {
			_, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "short lived", TTL: time.Hour})
			Expect(err).NotTo(HaveOccurred())
			clock = clock.Add(2 * time.Hour)

			result, err := store.RunEpisodeCleanup(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ExpiredDeleted).To(Equal(1))
			Expect(result.Remaining).To(Equal(0))
		})

		It("evicts oldest consolidated episodes over capacity but never pending ones", func() {
			oldest, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "oldest"})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.MarkEpisodesConsolidated(ctx, []uuid.UUID{oldest.ID})).To(Succeed())

			clock = clock.Add(time.Minute)
			pending, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "still pending"})
			Expect(err).NotTo(HaveOccurred())
			clock = clock.Add(time.Minute)
			newest, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "newest"})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.MarkEpisodesConsolidated(ctx, []uuid.UUID{newest.ID})).To(Succeed())

			result, err := store.RunEpisodeCleanup(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.CapacityDeleted).To(Equal(1))

			_, err = store.GetEpisode(ctx, oldest.ID)
			Expect(err).To(MatchError(memory.ErrNotFound))
			_, err = store.GetEpisode(ctx, pending.ID)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("StoreFact", func() {
		It("supersedes the active fact sharing the (subject, predicate) key", func() {
			old, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "alice", Predicate: "role", Content: "alice is an engineer",
			})
			Expect(err).NotTo(HaveOccurred())

			updated, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "alice", Predicate: "role", Content: "alice is a manager",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.SupersedesID).NotTo(BeNil())
			Expect(*updated.SupersedesID).To(Equal(old.ID))

			prev, err := store.GetFact(ctx, old.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(prev.Validity).To(Equal(memory.ValiditySuperseded))

			links, err := store.GetLinks(ctx, memory.LinkQuery{
				Type: memory.TypeFact, ID: updated.ID, Direction: memory.DirectionOut,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(HaveLen(1))
			Expect(links[0].Relation).To(Equal(memory.RelationSupersedes))
		})

		It("keys entity facts on (entity, scope, predicate) regardless of subject", func() {
			entity, err := store.CreateEntity(ctx, memory.EntityInput{
				TenantID: "t1", CanonicalName: "Alice", EntityType: memory.EntityPerson,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = store.StoreFact(ctx, memory.FactInput{
				Subject: "alice", Predicate: "role", Content: "engineer",
				Scope: "work", EntityID: &entity.ID,
			})
			Expect(err).NotTo(HaveOccurred())

			second, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "al", Predicate: "role", Content: "manager",
				Scope: "work", EntityID: &entity.ID,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.SupersedesID).NotTo(BeNil())
		})

		It("honors an explicit supersedes target", func() {
			target, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "project", Predicate: "deadline", Content: "ships in june",
			})
			Expect(err).NotTo(HaveOccurred())

			repl, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "project", Predicate: "timeline", Content: "ships in july",
				Supersedes: &target.ID,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(*repl.SupersedesID).To(Equal(target.ID))

			prev, err := store.GetFact(ctx, target.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(prev.Validity).To(Equal(memory.ValiditySuperseded))
		})

		It("rejects unknown entity ids", func() {
			bogus := uuid.New()
			_, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "x", Predicate: "y", Content: "z", EntityID: &bogus,
			})
			Expect(err).To(MatchError(memory.ErrUnknownEntity))
		})

		It("derives the decay rate from permanence", func() {
			f, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "x", Predicate: "y", Content: "z",
				Permanence: memory.PermanenceVolatile,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.DecayRate).To(Equal(0.03))
			Expect(f.LastConfirmedAt).NotTo(BeNil())
		})
	})

	Describe("GetMemory", func() {
		It("bumps reference counters", func() {
			f, err := store.StoreFact(ctx, memory.FactInput{Subject: "a", Predicate: "b", Content: "c"})
			Expect(err).NotTo(HaveOccurred())

			item, err := store.GetMemory(ctx, memory.TypeFact, f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Fact.ReferenceCount).To(Equal(1))
			Expect(item.Fact.LastReferencedAt).NotTo(BeNil())
		})

		It("returns nil, nil when the item does not exist", func() {
			item, err := store.GetMemory(ctx, memory.TypeFact, uuid.New())
			Expect(err).NotTo(HaveOccurred())
			Expect(item).To(BeNil())
		})
	})

	Describe("ConfirmMemory", func() {
		It("refuses to confirm episodes", func() {
			e, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.ConfirmMemory(ctx, memory.TypeEpisode, e.ID)).To(MatchError(memory.ErrNoConfidence))
		})

		It("resets the decay anchor on facts", func() {
			f, err := store.StoreFact(ctx, memory.FactInput{Subject: "a", Predicate: "b", Content: "c"})
			Expect(err).NotTo(HaveOccurred())

			clock = clock.Add(48 * time.Hour)
			Expect(store.ConfirmMemory(ctx, memory.TypeFact, f.ID)).To(Succeed())

			got, err := store.GetFact(ctx, f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*got.LastConfirmedAt).To(Equal(clock))
		})
	})

	Describe("ForgetMemory", func() {
		It("retracts facts, forgets rules, and expires episodes", func() {
			f, err := store.StoreFact(ctx, memory.FactInput{Subject: "a", Predicate: "b", Content: "c"})
			Expect(err).NotTo(HaveOccurred())
			r, err := store.StoreRule(ctx, memory.RuleInput{Content: "always run the linter"})
			Expect(err).NotTo(HaveOccurred())
			e, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "x"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.ForgetMemory(ctx, memory.TypeFact, f.ID)).To(Succeed())
			Expect(store.ForgetMemory(ctx, memory.TypeRule, r.ID)).To(Succeed())
			Expect(store.ForgetMemory(ctx, memory.TypeEpisode, e.ID)).To(Succeed())

			gotF, _ := store.GetFact(ctx, f.ID)
			Expect(gotF.Validity).To(Equal(memory.ValidityRetracted))
			gotR, _ := store.GetRule(ctx, r.ID)
			Expect(gotR.Metadata.Forgotten).To(BeTrue())
			gotE, _ := store.GetEpisode(ctx, e.ID)
			Expect(gotE.ExpiresAt).To(Equal(clock))

			forgotten := publisher.EventsOfType(eventstream.EventTypeForgotten)
			Expect(forgotten).To(HaveLen(3))
		})
	})

	Describe("SetFading", func() {
		It("sets and clears the fading status", func() {
			f, err := store.StoreFact(ctx, memory.FactInput{Subject: "a", Predicate: "b", Content: "c"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.SetFading(ctx, memory.TypeFact, f.ID, true)).To(Succeed())
			got, _ := store.GetFact(ctx, f.ID)
			Expect(got.Metadata.Status).To(Equal(memory.StatusFading))

			Expect(store.SetFading(ctx, memory.TypeFact, f.ID, false)).To(Succeed())
			got, _ = store.GetFact(ctx, f.ID)
			Expect(got.Metadata.Status).To(BeEmpty())
		})
	})

	Describe("CreateLink", func() {
		It("is idempotent", func() {
			f, err := store.StoreFact(ctx, memory.FactInput{Subject: "a", Predicate: "b", Content: "c"})
			Expect(err).NotTo(HaveOccurred())
			e, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "x"})
			Expect(err).NotTo(HaveOccurred())

			in := memory.LinkInput{
				SourceType: memory.TypeFact, SourceID: f.ID,
				TargetType: memory.TypeEpisode, TargetID: e.ID,
				Relation: memory.RelationDerivedFrom,
			}
			Expect(store.CreateLink(ctx, in)).To(Succeed())
			Expect(store.CreateLink(ctx, in)).To(Succeed())

			links, err := store.GetLinks(ctx, memory.LinkQuery{Type: memory.TypeFact, ID: f.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(HaveLen(1))
		})
	})

	Describe("KeywordSearch", func() {
		It("scores by matched token fraction and excludes non-matches", func() {
			_, err := store.StoreEpisode(ctx, memory.EpisodeInput{Content: "deployed the payment service"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.StoreEpisode(ctx, memory.EpisodeInput{Content: "wrote documentation"})
			Expect(err).NotTo(HaveOccurred())

			hits, err := store.KeywordSearch(ctx, memory.TypeEpisode, "payment service", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].Score).To(Equal(1.0))
		})

		It("returns nothing for an empty query", func() {
			hits, err := store.KeywordSearch(ctx, memory.TypeEpisode, "   ", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})

		It("searches fact subject and predicate text", func() {
			_, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "alice", Predicate: "timezone", Content: "UTC+2",
			})
			Expect(err).NotTo(HaveOccurred())

			hits, err := store.KeywordSearch(ctx, memory.TypeFact, "alice timezone", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
		})
	})

	Describe("SemanticSearch", func() {
		It("ranks by cosine similarity and excludes superseded facts", func() {
			old, err := store.StoreFact(ctx, memory.FactInput{
				Subject: "alice", Predicate: "role", Content: "engineer",
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.StoreFact(ctx, memory.FactInput{
				Subject: "alice", Predicate: "role", Content: "manager",
			})
			Expect(err).NotTo(HaveOccurred())

			embedder := testutils.NewMockEmbedder()
			vec, err := embedder.Embed(ctx, "manager")
			Expect(err).NotTo(HaveOccurred())

			hits, err := store.SemanticSearch(ctx, memory.TypeFact, vec, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].Item.Fact.ID).NotTo(Equal(old.ID))
		})
	})
})
