package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/memory"
)

// Importer stores transcript turns as pending episodes. Consolidation later
// distills them into facts and rules like any live observation.
type Importer struct {
	store    memory.Store
	logger   *zap.Logger
	progress func(file string, entries int)
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(im *Importer) {
		im.logger = logger
	}
}

// WithProgress registers a callback invoked after each parsed file.
func WithProgress(fn func(file string, entries int)) Option {
	return func(im *Importer) {
		im.progress = fn
	}
}

// NewImporter creates an Importer backed by the given store.
func NewImporter(store memory.Store, opts ...Option) *Importer {
	im := &Importer{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// RunOptions configures a single import run.
type RunOptions struct {
	// Scope assigns every imported episode to a consolidation scope,
	// typically the repository or project name.
	Scope string

	// Importance applies to every imported episode. Zero takes the
	// store default.
	Importance int

	// TTL overrides the episode retention window. Zero takes the
	// store default.
	TTL time.Duration

	// DryRun parses and counts without storing anything.
	DryRun bool
}

// Result contains statistics from an import run.
type Result struct {
	TranscriptFiles   int
	TranscriptEntries int
	EpisodesStored    int
	Skipped           int
	DryRun            bool
}

// Summary returns a human-readable summary of the import result.
func (r *Result) Summary() string {
	verb := "stored"
	if r.DryRun {
		verb = "would store"
	}
	return fmt.Sprintf(
		"Import complete: %s %d episodes, skipped %d empty entries\n"+
			"Scanned %d transcript files (%d entries)",
		verb, r.EpisodesStored, r.Skipped,
		r.TranscriptFiles, r.TranscriptEntries,
	)
}

// Run scans transcriptDir for JSONL transcripts and stores each
// conversational turn as a pending episode.
func (im *Importer) Run(ctx context.Context, transcriptDir string, opts RunOptions) (*Result, error) {
	files, err := ScanTranscriptDir(transcriptDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcript directory: %w", err)
	}

	result := &Result{DryRun: opts.DryRun}
	for _, f := range files {
		entries, err := ParseTranscript(f)
		if err != nil {
			im.logger.Warn("skipping unreadable transcript",
				zap.String("file", f),
				zap.Error(err))
			continue
		}

		result.TranscriptFiles++
		result.TranscriptEntries += len(entries)

		for _, entry := range entries {
			if err := im.storeEntry(ctx, entry, opts, result); err != nil {
				return result, err
			}
		}

		if im.progress != nil {
			im.progress(f, len(entries))
		}
	}

	im.logger.Info("transcript import finished",
		zap.Int("files", result.TranscriptFiles),
		zap.Int("entries", result.TranscriptEntries),
		zap.Int("stored", result.EpisodesStored),
		zap.Int("skipped", result.Skipped),
		zap.Bool("dry_run", result.DryRun))

	return result, nil
}

func (im *Importer) storeEntry(ctx context.Context, entry TranscriptEntry, opts RunOptions, result *Result) error {
	text := strings.TrimSpace(entry.TextContent())
	if text == "" {
		result.Skipped++
		return nil
	}

	if opts.DryRun {
		result.EpisodesStored++
		return nil
	}

	in := memory.EpisodeInput{
		Scope:      opts.Scope,
		Content:    fmt.Sprintf("%s: %s", entry.Type, text),
		Importance: opts.Importance,
		TTL:        opts.TTL,
		Metadata: &memory.Metadata{
			Labels: map[string]string{
				"source":        "transcript",
				"transcript_id": entry.UUID,
			},
		},
	}
	if entry.SessionID != "" {
		sid := entry.SessionID
		in.SessionID = &sid
	}

	if _, err := im.store.StoreEpisode(ctx, in); err != nil {
		return fmt.Errorf("failed to store episode from %s: %w", entry.UUID, err)
	}
	result.EpisodesStored++
	return nil
}
