// Package cleanupcmder provides the cleanup command that expires and
// evicts old episodes.
package cleanupcmder

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loambase/loam/pkg/cliui"
	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/start"
)

const cleanupLongDesc string = `Run one episode cleanup pass.

Episodes past their TTL are deleted outright. If the remaining count still
exceeds the configured capacity, the oldest consolidated episodes are
evicted until it fits; episodes that have not been consolidated yet are
never evicted by capacity pressure.

Example:
  loam cleanup
  loam cleanup --capacity 5000`

const cleanupShortDesc string = "Expire and evict old episodes"

type cleanupCommander struct {
	capacity int
}

func NewCleanupCmd() *cobra.Command {
	cmder := &cleanupCommander{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: cleanupShortDesc,
		Long:  cleanupLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, debug)
		},
	}

	cmd.Flags().IntVar(&cmder.capacity, "capacity", 0,
		"Episode capacity ceiling (defaults to configured memory.episode_capacity)")

	return cmd
}

func (c *cleanupCommander) run(cmd *cobra.Command, configDir string, debug bool) error {
	ctx := cmd.Context()

	sys, err := start.Up(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer sys.Close()

	capacity := c.capacity
	if capacity <= 0 {
		capacity = sys.Config.Memory.EpisodeCapacity
	}

	var result memory.CleanupResult
	err = cliui.Step(os.Stdout, "Cleaning up episodes", func() error {
		var cleanupErr error
		result, cleanupErr = sys.Store.RunEpisodeCleanup(ctx, capacity)
		return cleanupErr
	})
	if err != nil {
		return err
	}

	fmt.Printf("  %d expired, %d evicted, %d remaining\n",
		result.ExpiredDeleted, result.CapacityDeleted, result.Remaining)
	return nil
}
