// Package searchcmder provides the search command for hybrid retrieval
// over stored memories.
package searchcmder

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/search"
	"github.com/loambase/loam/pkg/start"
	"github.com/loambase/loam/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	typeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

const searchLongDesc string = `Search stored memories.

Runs a hybrid search by default: vector similarity and full-text matching
are fused with reciprocal rank fusion. Use --mode to force one side only.

Example:
  loam search "how do we configure staging deploys"
  loam search "queue timeout" --mode keyword --limit 20
  loam search "user preferences" --types fact,rule`

const searchShortDesc string = "Search stored memories"

type searchCommander struct {
	mode  string
	types string
	limit int
}

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, debug, args[0])
		},
	}

	cmd.Flags().StringVar(&cmder.mode, "mode", "hybrid", "Search mode: semantic, keyword, or hybrid")
	cmd.Flags().StringVar(&cmder.types, "types", "", "Comma-separated memory types (episode,fact,rule)")
	cmd.Flags().IntVar(&cmder.limit, "limit", 0, "Max results (defaults to configured memory.search_limit)")

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command, configDir string, debug bool, query string) error {
	ctx := cmd.Context()

	sys, err := start.Up(ctx, configDir, debug)
	if err != nil {
		return err
	}
	defer sys.Close()

	limit := c.limit
	if limit <= 0 {
		limit = sys.Config.Memory.SearchLimit
	}

	types, err := parseTypes(c.types)
	if err != nil {
		return err
	}

	engine := search.NewEngine(sys.Store, sys.Embedder, search.WithLogger(sys.Logger))
	results, err := engine.Search(ctx, query, search.Options{
		Mode:  search.Mode(c.mode),
		Types: types,
		Limit: limit,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%s %s %s %s\n",
			rankStyle.Render(fmt.Sprintf("%d.", i+1)),
			typeStyle.Render(string(r.Item.Type)),
			idStyle.Render(r.Item.ID().String()),
			scoreStyle.Render(fmt.Sprintf("score=%.4f", r.Score)),
		)
		fmt.Printf("   %s\n", previewStyle.Render(utils.Truncate(itemPreview(r.Item), 120)))
	}
	return nil
}

func parseTypes(s string) ([]memory.MemoryType, error) {
	if s == "" {
		return nil, nil
	}
	var types []memory.MemoryType
	for _, part := range strings.Split(s, ",") {
		typ := memory.MemoryType(strings.TrimSpace(part))
		if typ != memory.TypeEpisode && typ != memory.TypeFact && typ != memory.TypeRule {
			return nil, fmt.Errorf("invalid memory type %q (valid: episode, fact, rule)", part)
		}
		types = append(types, typ)
	}
	return types, nil
}

func itemPreview(item memory.Item) string {
	switch item.Type {
	case memory.TypeEpisode:
		return item.Episode.Content
	case memory.TypeFact:
		return fmt.Sprintf("%s %s: %s", item.Fact.Subject, item.Fact.Predicate, item.Fact.Content)
	case memory.TypeRule:
		return item.Rule.Content
	}
	return ""
}
