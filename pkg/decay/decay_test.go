package decay_test

import (
	"context"
	"math"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/decay"
	"github.com/loambase/loam/pkg/eventstream"
	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/memory/inmemory"
	testutils "github.com/loambase/loam/pkg/utils/test"
)

func TestDecay(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Decay Suite")
}

var _ = Describe("EffectiveConfidence", func() {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	It("returns the stored confidence when the rate is zero", func() {
		old := now.Add(-365 * 24 * time.Hour)
		Expect(decay.EffectiveConfidence(0.9, 0, &old, now)).To(Equal(0.9))
	})

	It("treats a missing anchor as fully decayed", func() {
		Expect(decay.EffectiveConfidence(1.0, 0.008, nil, now)).To(BeZero())
	})

	It("decays exponentially with days since confirmation", func() {
		anchor := now.Add(-10 * 24 * time.Hour)
		want := 1.0 * math.Exp(-0.008*10)
		Expect(decay.EffectiveConfidence(1.0, 0.008, &anchor, now)).To(BeNumerically("~", want, 1e-12))
	})

	It("clamps future anchors to zero elapsed days", func() {
		future := now.Add(24 * time.Hour)
		Expect(decay.EffectiveConfidence(0.8, 0.1, &future, now)).To(Equal(0.8))
	})
})

var _ = Describe("Sweeper", func() {
	var (
		ctx       context.Context
		store     *inmemory.Store
		publisher *testutils.MockPublisher
		clock     time.Time
		sweeper   *decay.Sweeper
	)

	BeforeEach(func() {
		ctx = context.Background()
		publisher = testutils.NewMockPublisher()
		clock = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		now := func() time.Time { return clock }
		store = inmemory.NewStore(testutils.NewMockEmbedder(), inmemory.WithClock(now))
		sweeper = decay.NewSweeper(store,
			decay.WithPublisher(publisher),
			decay.WithClock(now),
		)
	})

	storeFact := func(permanence memory.Permanence) *memory.Fact {
		f, err := store.StoreFact(ctx, memory.FactInput{
			Subject: "svc", Predicate: "port", Content: "listens on 8080",
			Permanence: permanence,
		})
		Expect(err).NotTo(HaveOccurred())
		return f
	}

	It("leaves fresh items untouched", func() {
		storeFact(memory.PermanenceStandard)
		result, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(*result).To(Equal(decay.SweepResult{}))
	})

	It("flags items below the fading threshold", func() {
		f := storeFact(memory.PermanenceVolatile)
		// exp(-0.03*60) ~ 0.165: below fading, above expiry.
		clock = clock.Add(60 * 24 * time.Hour)

		result, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.FactsFading).To(Equal(1))

		got, _ := store.GetFact(ctx, f.ID)
		Expect(got.Metadata.Status).To(Equal(memory.StatusFading))

		events := publisher.EventsOfType(eventstream.EventTypeDecayed)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Transition).To(Equal(decay.TransitionFading))
	})

	It("expires facts below the expiry threshold", func() {
		f := storeFact(memory.PermanenceVolatile)
		// exp(-0.03*120) ~ 0.027: below expiry.
		clock = clock.Add(120 * 24 * time.Hour)

		result, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.FactsExpired).To(Equal(1))

		got, _ := store.GetFact(ctx, f.ID)
		Expect(got.Validity).To(Equal(memory.ValidityExpired))
	})

	It("forgets rules below the expiry threshold", func() {
		r, err := store.StoreRule(ctx, memory.RuleInput{
			Content: "restart the cache after deploys", Permanence: memory.PermanenceVolatile,
		})
		Expect(err).NotTo(HaveOccurred())
		clock = clock.Add(120 * 24 * time.Hour)

		result, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RulesForgotten).To(Equal(1))

		got, _ := store.GetRule(ctx, r.ID)
		Expect(got.Metadata.Forgotten).To(BeTrue())
	})

	It("restores a fading item after confirmation", func() {
		f := storeFact(memory.PermanenceVolatile)
		clock = clock.Add(60 * 24 * time.Hour)
		_, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(store.ConfirmMemory(ctx, memory.TypeFact, f.ID)).To(Succeed())

		result, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.FactsRestored).To(Equal(1))

		got, _ := store.GetFact(ctx, f.ID)
		Expect(got.Metadata.Status).To(BeEmpty())
	})

	It("is idempotent across repeated sweeps", func() {
		storeFact(memory.PermanenceVolatile)
		clock = clock.Add(60 * 24 * time.Hour)

		first, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.FactsFading).To(Equal(1))

		second, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(*second).To(Equal(decay.SweepResult{}))
	})

	It("never touches permanent items", func() {
		storeFact(memory.PermanencePermanent)
		clock = clock.Add(10 * 365 * 24 * time.Hour)

		result, err := sweeper.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(*result).To(Equal(decay.SweepResult{}))
	})
})
