// Package consolidatecmder provides the consolidate command that turns
// pending episodes into facts and rules.
package consolidatecmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loambase/loam/pkg/cliui"
	"github.com/loambase/loam/pkg/consolidate"
	"github.com/loambase/loam/pkg/entity"
	"github.com/loambase/loam/pkg/start"
)

const consolidateLongDesc string = `Run one consolidation pass over pending episodes.

Episodes are grouped by scope and handed to the configured LLM, which
extracts new facts and rules, updates to existing facts, and confirmations
of knowledge that is still true. Each scope fails independently; episodes
from a failed scope keep their pending status and are retried next run.

Without a configured llm.provider this is a dry run: pending episodes are
counted but nothing is written.

Example:
  loam consolidate
  loam consolidate --batch 100 --tenant acme`

const consolidateShortDesc string = "Turn pending episodes into facts and rules"

type consolidateCommander struct {
	batch  int
	tenant string
}

func NewConsolidateCmd() *cobra.Command {
	cmder := &consolidateCommander{}

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: consolidateShortDesc,
		Long:  consolidateLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, debug)
		},
	}

	cmd.Flags().IntVar(&cmder.batch, "batch", 0,
		"Max episodes per run (defaults to configured memory.consolidation_batch)")
	cmd.Flags().StringVar(&cmder.tenant, "tenant", "",
		"Tenant for entity resolution of extracted facts")

	return cmd
}

func (c *consolidateCommander) run(cmd *cobra.Command, configDir string, debug bool) error {
	ctx := cmd.Context()

	sys, err := start.Up(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer sys.Close()

	batch := c.batch
	if batch <= 0 {
		batch = sys.Config.Memory.ConsolidationBatch
	}

	opts := []consolidate.Option{
		consolidate.WithLogger(sys.Logger),
	}
	if sys.Collaborator != nil {
		opts = append(opts, consolidate.WithCollaborator(sys.Collaborator))
	}
	if c.tenant != "" {
		resolver := entity.NewResolver(sys.Store,
			entity.WithLogger(sys.Logger),
			entity.WithFuzzy(sys.Config.Entity.FuzzyEnabled),
		)
		opts = append(opts, consolidate.WithResolver(resolver, c.tenant))
	}

	consolidator := consolidate.NewConsolidator(sys.Store, opts...)

	var result *consolidate.Result
	err = cliui.Step(os.Stdout, "Consolidating episodes", func() error {
		var runErr error
		result, runErr = consolidator.Run(ctx, batch)
		return runErr
	})
	if err != nil {
		return err
	}

	if result.DryRun {
		fmt.Printf("  dry run: %d pending episodes across %d scopes\n",
			result.EpisodesConsolidated, result.ScopesProcessed)
		return nil
	}

	fmt.Printf("  %d episodes consolidated across %d scopes\n",
		result.EpisodesConsolidated, result.ScopesProcessed)
	fmt.Printf("  %d facts created, %d facts updated, %d rules created, %d confirmations\n",
		result.FactsCreated, result.FactsUpdated, result.RulesCreated, result.Confirmations)
	for _, msg := range result.ParseErrors {
		fmt.Printf("  %s parse: %s\n", cliui.FailMark, msg)
	}
	for scope, msg := range result.ScopeErrors {
		fmt.Printf("  %s scope %s: %s\n", cliui.FailMark, scope, msg)
	}
	return nil
}
