package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/answer"
	"github.com/lorekeep/lorekeep/internal/app"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/retrieval"
)

var askCategory string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question with citations from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askCategory, "category", "", "restrict to a category")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, cliLogger())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	resp, err := a.StorePipeline.Search(ctx, retrieval.Request{
		Query:   question,
		Filters: knowledge.Filters{Category: askCategory, ApprovedOnly: true},
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrNoResults) {
			fmt.Println("Nothing in the knowledge base answers that.")
			return nil
		}
		return err
	}

	ans, err := a.Answerer.Generate(ctx, question, resp.Results)
	if err != nil {
		if errors.Is(err, answer.ErrNoContext) {
			fmt.Println("Nothing in the knowledge base answers that.")
			return nil
		}
		return fmt.Errorf("generating answer: %w", err)
	}

	fmt.Println(ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range ans.Citations {
			fmt.Printf("  [%d] %s (%s)\n", c.Index, c.Title, c.Source)
		}
	}
	return nil
}
