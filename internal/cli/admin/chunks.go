package admin

import (
	"context"
	"fmt"
	"os"

	"github.com/cloo-solutions/researchq/internal/openai"
	"github.com/cloo-solutions/researchq/internal/repository"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/spf13/cobra"
)

func ChunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Manage indexed document chunks",
	}

	cmd.AddCommand(ChunksImportCmd())

	return cmd
}

func ChunksImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <manifest.yaml>",
		Short: "Import document chunks from a YAML manifest",
		Long: `Split the pages of each document in the manifest into chunks and store
them, replacing any chunks previously stored for the same document.

Manifest format:

  team_id: <team id>
  documents:
    - id: doc-1
      title: Annual Report
      version: v1
      pages:
        - page: "1"
          text: ...`,
		Args: cobra.ExactArgs(1),
		RunE: runChunksImport,
	}

	cmd.Flags().Bool("embed", false, "Generate embeddings with the fallback OpenAI key")

	return cmd
}

func runChunksImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	embed, _ := cmd.Flags().GetBool("embed")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	manifest, err := service.ParseChunkManifest(f)
	if err != nil {
		return err
	}

	pool, cfg, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	var embedder service.EmbeddingClient
	if embed {
		if !cfg.HasOpenAI() {
			return fmt.Errorf("--embed requires RESEARCH_OPENAI_API_KEY")
		}
		embedder = openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	}

	importer := service.NewChunkImporter(repository.NewDocumentChunkRepository(pool), embedder)
	result, err := importer.Import(ctx, manifest)
	if err != nil {
		return fmt.Errorf("import stopped after %d documents: %w", result.Documents, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chunks across %d documents\n", result.Chunks, result.Documents)
	return nil
}
