// Package loamcmder
package loamcmder

import (
	"github.com/spf13/cobra"

	cleanupcmder "github.com/loambase/loam/cmd/loam/cleanup"
	consolidatecmder "github.com/loambase/loam/cmd/loam/consolidate"
	importcmder "github.com/loambase/loam/cmd/loam/importer"
	searchcmder "github.com/loambase/loam/cmd/loam/search"
	statscmder "github.com/loambase/loam/cmd/loam/stats"
	sweepcmder "github.com/loambase/loam/cmd/loam/sweep"
	versioncmder "github.com/loambase/loam/cmd/loam/version"
)

const loamLongDesc string = `Loam is tiered long-term memory for AI agents.

Run maintenance using:
  loam consolidate     Turn pending episodes into facts and rules
  loam sweep           Apply confidence decay transitions
  loam cleanup         Expire and evict old episodes
  loam import <dir>    Ingest session transcripts as episodes

Inspect memory using:
  loam search <query>  Hybrid search across memory
  loam stats           Show store contents`

const loamShortDesc string = "Loam - Agent Memory"

func NewLoamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loam",
		Short: loamShortDesc,
		Long:  loamLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .loam/ config directory")

	// Add subcommands
	cmd.AddCommand(consolidatecmder.NewConsolidateCmd())
	cmd.AddCommand(sweepcmder.NewSweepCmd())
	cmd.AddCommand(cleanupcmder.NewCleanupCmd())
	cmd.AddCommand(importcmder.NewImportCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
