// Package importcmder provides the import command that ingests JSONL
// session transcripts as episodes.
package importcmder

import (
	"fmt"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/loambase/loam/pkg/git"
	"github.com/loambase/loam/pkg/ingest"
	"github.com/loambase/loam/pkg/start"
)

const importLongDesc string = `Import JSONL session transcripts as episodes.

Each user and assistant turn becomes a pending episode in the given scope,
ready for the next consolidation pass. The scope defaults to the current
git repository name so imports land next to memories recorded live.

Example:
  loam import ~/.claude/projects/myproject
  loam import ./transcripts --scope myproject --dry-run`

const importShortDesc string = "Import session transcripts as episodes"

type importCommander struct {
	scope      string
	importance int
	dryRun     bool
}

func NewImportCmd() *cobra.Command {
	cmder := &importCommander{}

	cmd := &cobra.Command{
		Use:   "import <transcript-dir>",
		Short: importShortDesc,
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, args[0], configDir, debug)
		},
	}

	cmd.Flags().StringVar(&cmder.scope, "scope", "", "Scope for imported episodes (defaults to the git repository name)")
	cmd.Flags().IntVar(&cmder.importance, "importance", 0, "Importance for imported episodes (0 uses the store default)")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Parse and count without storing anything")

	return cmd
}

func (c *importCommander) run(cmd *cobra.Command, transcriptDir, configDir string, debug bool) error {
	ctx := cmd.Context()

	scope := c.scope
	if scope == "" {
		scope = git.RepoName()
	}

	sys, err := start.Up(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer sys.Close()

	ui := charmlog.New(os.Stderr)
	if debug {
		ui.SetLevel(charmlog.DebugLevel)
	}

	importer := ingest.NewImporter(sys.Store,
		ingest.WithLogger(sys.Logger),
		ingest.WithProgress(func(file string, entries int) {
			ui.Info("parsed transcript", "file", filepath.Base(file), "entries", entries)
		}),
	)

	result, err := importer.Run(ctx, transcriptDir, ingest.RunOptions{
		Scope:      scope,
		Importance: c.importance,
		DryRun:     c.dryRun,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s\n  scope: %s\n", result.Summary(), scope)
	return nil
}
