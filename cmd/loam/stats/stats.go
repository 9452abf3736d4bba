// Package statscmder provides the stats command summarizing store contents.
package statscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loambase/loam/pkg/start"
)

const statsShortDesc string = "Show store contents"

type statsCommander struct{}

func NewStatsCmd() *cobra.Command {
	cmder := &statsCommander{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  "Show counts of episodes, facts, rules, entities, and links in the store.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, debug)
		},
	}

	return cmd
}

func (c *statsCommander) run(cmd *cobra.Command, configDir string, debug bool) error {
	ctx := cmd.Context()

	sys, err := start.Up(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer sys.Close()

	stats, err := sys.Store.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("episodes: %d\n", stats.Episodes)
	fmt.Printf("facts:    %d\n", stats.Facts)
	fmt.Printf("rules:    %d\n", stats.Rules)
	fmt.Printf("entities: %d\n", stats.Entities)
	fmt.Printf("links:    %d\n", stats.Links)
	return nil
}
