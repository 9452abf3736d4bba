// Package sweepcmder provides the sweep command that applies confidence
// decay transitions across the store.
package sweepcmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loambase/loam/pkg/cliui"
	"github.com/loambase/loam/pkg/decay"
	"github.com/loambase/loam/pkg/start"
)

const sweepLongDesc string = `Run one decay sweep over all facts and rules.

Items whose effective confidence has eroded below the fading threshold are
soft-flagged; items below the expiry threshold are removed from retrieval
(facts expire, rules are forgotten). Confirming a memory resets its decay
clock, so actively used knowledge survives sweeps indefinitely.

Example:
  loam sweep
  loam sweep --debug`

const sweepShortDesc string = "Apply confidence decay transitions"

type sweepCommander struct{}

func NewSweepCmd() *cobra.Command {
	cmder := &sweepCommander{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: sweepShortDesc,
		Long:  sweepLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, debug)
		},
	}

	return cmd
}

func (c *sweepCommander) run(cmd *cobra.Command, configDir string, debug bool) error {
	ctx := cmd.Context()

	sys, err := start.Up(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer sys.Close()

	sweeper := decay.NewSweeper(sys.Store,
		decay.WithPublisher(sys.Publisher),
		decay.WithLogger(sys.Logger),
	)

	var result *decay.SweepResult
	err = cliui.Step(os.Stdout, "Sweeping decayed memories", func() error {
		var sweepErr error
		result, sweepErr = sweeper.Sweep(ctx)
		return sweepErr
	})
	if err != nil {
		return err
	}

	fmt.Printf("  facts: %d expired, %d fading, %d restored\n",
		result.FactsExpired, result.FactsFading, result.FactsRestored)
	fmt.Printf("  rules: %d forgotten, %d fading, %d restored\n",
		result.RulesForgotten, result.RulesFading, result.RulesRestored)
	return nil
}
