package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/app"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/knowledge"
)

var (
	indexTitle    string
	indexSource   string
	indexCategory string
	indexLevel    int
	indexApprove  bool
)

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Ingest a document into the knowledge base",
	Long: `Index chunks a document, embeds the chunks, and stores them in
PostgreSQL. New documents start unapproved and invisible to search;
pass --approve to approve immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args[0])
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <document-id>",
	Short: "Approve a document and rebuild the search indexes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if err := a.Indexer.Approve(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Approved %s\n", args[0])
			return nil
		})
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild corpus statistics and search indexes from scratch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if err := a.Indexer.Rebuild(ctx); err != nil {
				return err
			}
			stats := a.Snapshot.Load()
			fmt.Printf("Rebuilt: version %d, %d chunks\n", stats.Version, stats.ChunkCount)
			return nil
		})
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexTitle, "title", "", "document title (default: file name)")
	indexCmd.Flags().StringVar(&indexSource, "source", "", "source identifier (default: file name)")
	indexCmd.Flags().StringVar(&indexCategory, "category", "", "document category")
	indexCmd.Flags().IntVar(&indexLevel, "tech-level", 0, "technical level 1-10")
	indexCmd.Flags().BoolVar(&indexApprove, "approve", false, "approve immediately after indexing")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rebuildCmd)
}

// withApp loads config, sets up the application, runs fn, and tears down.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := app.Setup(ctx, cfg, cliLogger())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}

func runIndex(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if indexCategory != "" && !knowledge.ValidCategory(indexCategory) {
		return fmt.Errorf("unknown category %q (valid: %s)",
			indexCategory, strings.Join(knowledge.Categories, ", "))
	}

	name := filepath.Base(path)
	doc := &knowledge.Document{
		Title:     indexTitle,
		Source:    indexSource,
		Category:  indexCategory,
		TechLevel: indexLevel,
	}
	if doc.Title == "" {
		doc.Title = name
	}
	if doc.Source == "" {
		doc.Source = name
	}

	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		if err := a.Indexer.Index(ctx, doc, string(content)); err != nil {
			return err
		}
		fmt.Printf("Indexed %s as document %s\n", path, doc.ID)

		if indexApprove {
			if err := a.Indexer.Approve(ctx, doc.ID); err != nil {
				return err
			}
			fmt.Println("Approved.")
		} else {
			fmt.Printf("Pending approval. Run: lorekeep approve %s\n", doc.ID)
		}
		return nil
	})
}
