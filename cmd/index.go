package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/geoffsee/open-gsio/internal/config"
	"github.com/geoffsee/open-gsio/internal/database"
	"github.com/geoffsee/open-gsio/internal/log"
	"github.com/geoffsee/open-gsio/internal/retrieval"
)

var (
	indexCollection string
	indexID         string
)

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Add documents to the retrieval knowledge base",
	Long: `Index reads each file, embeds its content, and upserts it into the
pgvector document store so the retrieval tool can find it. Without an
explicit --id the file path is reused as a stable document id, so
re-indexing a file replaces its previous version.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd, args)
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "target collection (default from config)")
	indexCmd.Flags().StringVar(&indexID, "id", "", "document id (single file only)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexID != "" && len(args) > 1 {
		return errors.New("--id can only be used with a single file")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.HasPostgres() {
		return errors.New("postgres is not configured")
	}
	if cfg.GeminiAPIKey == "" {
		return errors.New("gemini api key is required for embedding")
	}

	ctx := cmd.Context()
	logger := log.New(log.Config{})

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	embedder, err := retrieval.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedderModel)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	store, err := retrieval.NewStore(pool, embedder, logger)
	if err != nil {
		return fmt.Errorf("creating retrieval store: %w", err)
	}

	collection := indexCollection
	if collection == "" {
		collection = cfg.DefaultCollection
	}

	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		text := strings.TrimSpace(string(content))
		if text == "" {
			fmt.Printf("skipping empty file %s\n", path)
			continue
		}

		id := indexID
		if id == "" {
			id = filepath.ToSlash(path)
		}

		doc := retrieval.Document{
			ID:         id,
			Collection: collection,
			Content:    text,
			Metadata: map[string]any{
				"source":    path,
				"import_id": uuid.NewString(),
			},
		}
		if err := store.Add(ctx, doc); err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		fmt.Printf("indexed %s into %q\n", path, collection)
	}
	return nil
}
