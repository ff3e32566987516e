package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quizgen/quizgen-api/internal/chunker"
	"github.com/quizgen/quizgen-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// migrationTimeout bounds a migrate command run.
const migrationTimeout = 5 * time.Minute

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quizgen-api",
		Short:         "Quiz question import and explanation API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newChunkCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Run database schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "reset", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadAppConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), migrationTimeout)
			defer cancel()

			db, err := setupAppDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Error("failed to close database", "error", err)
				}
			}()

			return postgres.Migrate(ctx, db, args[0], logger)
		},
	}
}

func newChunkCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "chunk [file]",
		Short: "Preview how a document is split into import chunks",
		Long: "Reads a document (or stdin when the file is omitted or \"-\") and prints the chunks " +
			"the import pipeline would send to the language model.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if size <= 0 {
				return fmt.Errorf("--size must be positive, got %d", size)
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			return printChunks(cmd.OutOrStdout(), chunker.Split(string(text), size))
		},
	}
	cmd.Flags().IntVar(&size, "size", 1000, "target chunk size in characters")
	return cmd
}

func printChunks(w io.Writer, chunks []string) error {
	for i, c := range chunks {
		if _, err := fmt.Fprintf(w, "--- chunk %d (%d chars) ---\n%s\n", i+1, len([]rune(c)), c); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d chunks\n", len(chunks))
	return err
}
