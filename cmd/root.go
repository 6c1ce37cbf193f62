// Package cmd implements the lorekeep command line interface.
//
// Following the pattern of kubectl, hugo, and similar tools, all command
// logic lives here and main.go is a minimal entry point.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/log"
)

var (
	flagDebug   bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "lorekeep",
	Short: "Hybrid search over an approved knowledge base",
	Long: `Lorekeep ingests documents into PostgreSQL, indexes them for both
BM25 keyword search and pgvector semantic search, and serves hybrid
queries with LLM-assisted ranking and cited answers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log in JSON format")
}

// cliLogger builds the process logger from the persistent flags.
// DEBUG in the environment also enables debug logging, matching what the
// server honors in containers where flags are awkward to pass.
func cliLogger() log.Logger {
	level := slog.LevelInfo
	if flagDebug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagLogJSON})
}
