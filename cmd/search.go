package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/app"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/retrieval"
)

var (
	flagMode     string
	flagLimit    int
	flagCategory string
	flagMinLevel int
	flagMaxLevel int
	flagExpand   bool
	flagJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a one-shot search against the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().StringVar(&flagMode, "mode", "hybrid", "search mode: hybrid, vector, or keyword")
	searchCmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum results (default 10)")
	searchCmd.Flags().StringVar(&flagCategory, "category", "", "restrict to a category")
	searchCmd.Flags().IntVar(&flagMinLevel, "min-level", 0, "minimum technical level (1-10)")
	searchCmd.Flags().IntVar(&flagMaxLevel, "max-level", 0, "maximum technical level (1-10)")
	searchCmd.Flags().BoolVar(&flagExpand, "expand", false, "expand the query with related terms")
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, queryText string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, cliLogger())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	// One-shot invocations search embeddings in Postgres directly; the
	// in-memory vector index only pays off in a long-running server.
	resp, err := a.StorePipeline.Search(ctx, retrieval.Request{
		Query: queryText,
		Mode:  retrieval.Mode(flagMode),
		Limit: flagLimit,
		Filters: knowledge.Filters{
			Category:     flagCategory,
			MinTechLevel: flagMinLevel,
			MaxTechLevel: flagMaxLevel,
			ApprovedOnly: true,
		},
		Expand: flagExpand,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrNoResults) {
			fmt.Println("No results.")
			return nil
		}
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printResults(resp)
	return nil
}

func printResults(resp *retrieval.Response) {
	fmt.Printf("Intent: %s", resp.Analysis.Intent)
	if len(resp.Degraded) > 0 {
		fmt.Printf("  (degraded: %s)", strings.Join(resp.Degraded, ", "))
	}
	fmt.Printf("  [%dms]\n\n", resp.Timings.TotalMs)

	for i, r := range resp.Results {
		fmt.Printf("%2d. %.3f  %s (%s)\n", i+1, r.Score, r.Chunk.Title, r.Chunk.Source)
		if r.Explanation != "" {
			fmt.Printf("    %s\n", r.Explanation)
		}
		fmt.Printf("    %s\n", snippet(r.Chunk.Text, 160))
	}
}

// snippet returns the first n bytes of s on a single line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		s = s[:n] + "..."
	}
	return s
}
