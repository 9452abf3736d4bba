package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/ingest"
	"github.com/loambase/loam/pkg/memory/inmemory"
	testutils "github.com/loambase/loam/pkg/utils/test"
)

func TestIngest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ingest Suite")
}

const sampleTranscript = `{"type":"user","uuid":"u1","timestamp":"2026-03-01T10:00:00Z","sessionId":"s1","message":{"role":"user","content":"how do I roll back the deploy?"}}
{"type":"assistant","uuid":"a1","timestamp":"2026-03-01T10:00:05Z","sessionId":"s1","message":{"id":"m1","role":"assistant","content":[{"type":"text","text":"Run the rollback"}]}}
{"type":"assistant","uuid":"a2","timestamp":"2026-03-01T10:00:06Z","sessionId":"s1","message":{"id":"m1","role":"assistant","content":[{"type":"text","text":"Run the rollback script with the previous tag"}]}}
{"type":"system","uuid":"x1","timestamp":"2026-03-01T10:00:07Z","sessionId":"s1"}
not valid json
{"type":"user","uuid":"u2","timestamp":"2026-03-01T10:01:00Z","sessionId":"s1","message":{"role":"user","content":"   "}}
`

var _ = Describe("ParseTranscript", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		err := os.WriteFile(filepath.Join(dir, "session.jsonl"), []byte(sampleTranscript), 0o644)
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps conversational turns, deduplicating streamed assistant chunks", func() {
		entries, err := ingest.ParseTranscript(filepath.Join(dir, "session.jsonl"))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(3))

		Expect(entries[0].Type).To(Equal("user"))
		Expect(entries[0].TextContent()).To(Equal("how do I roll back the deploy?"))

		// The later chunk for message m1 wins.
		Expect(entries[1].Type).To(Equal("assistant"))
		Expect(entries[1].TextContent()).To(Equal("Run the rollback script with the previous tag"))
	})
})

var _ = Describe("ScanTranscriptDir", func() {
	It("finds JSONL files recursively and ignores the rest", func() {
		dir := GinkgoT().TempDir()
		sub := filepath.Join(dir, "nested")
		Expect(os.MkdirAll(sub, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte("{}"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(sub, "b.jsonl"), []byte("{}"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)).To(Succeed())

		files, err := ingest.ScanTranscriptDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(2))
	})
})

var _ = Describe("Importer", func() {
	var (
		ctx   context.Context
		store *inmemory.Store
		dir   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore(testutils.NewMockEmbedder())
		dir = GinkgoT().TempDir()
		err := os.WriteFile(filepath.Join(dir, "session.jsonl"), []byte(sampleTranscript), 0o644)
		Expect(err).NotTo(HaveOccurred())
	})

	It("stores each non-empty turn as a pending episode", func() {
		importer := ingest.NewImporter(store)
		result, err := importer.Run(ctx, dir, ingest.RunOptions{Scope: "myrepo"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.TranscriptFiles).To(Equal(1))
		Expect(result.EpisodesStored).To(Equal(2))
		Expect(result.Skipped).To(Equal(1))

		pending, err := store.PendingEpisodes(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(2))
		for _, e := range pending {
			Expect(e.Scope).To(Equal("myrepo"))
			Expect(*e.SessionID).To(Equal("s1"))
			Expect(e.Metadata.Labels["source"]).To(Equal("transcript"))
		}
	})

	It("prefixes content with the speaking role", func() {
		importer := ingest.NewImporter(store)
		_, err := importer.Run(ctx, dir, ingest.RunOptions{Scope: "myrepo"})
		Expect(err).NotTo(HaveOccurred())

		pending, err := store.PendingEpisodes(ctx, 10)
		Expect(err).NotTo(HaveOccurred())

		var contents []string
		for _, e := range pending {
			contents = append(contents, e.Content)
		}
		Expect(contents).To(ContainElement("user: how do I roll back the deploy?"))
		Expect(contents).To(ContainElement("assistant: Run the rollback script with the previous tag"))
	})

	It("counts without storing on dry runs", func() {
		importer := ingest.NewImporter(store)
		result, err := importer.Run(ctx, dir, ingest.RunOptions{Scope: "myrepo", DryRun: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.DryRun).To(BeTrue())
		Expect(result.EpisodesStored).To(Equal(2))

		pending, err := store.PendingEpisodes(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("reports progress per file", func() {
		var files []string
		importer := ingest.NewImporter(store, ingest.WithProgress(func(file string, entries int) {
			files = append(files, filepath.Base(file))
		}))
		_, err := importer.Run(ctx, dir, ingest.RunOptions{Scope: "myrepo"})
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(ConsistOf("session.jsonl"))
	})
})
