package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"gopkg.in/yaml.v3"
)

// EmbeddingClient generates vectors for imported chunks.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkWriter replaces the stored chunks of one document.
type ChunkWriter interface {
	ReplaceChunks(ctx context.Context, teamID, documentID string, chunks []domain.DocumentChunk) error
}

// ChunkManifest seeds the chunk store for a team. It stands in for the
// external ingestion pipeline.
type ChunkManifest struct {
	TeamID    string             `yaml:"team_id"`
	Documents []ManifestDocument `yaml:"documents"`
}

type ManifestDocument struct {
	ID      string         `yaml:"id"`
	Title   string         `yaml:"title"`
	Version string         `yaml:"version"`
	Pages   []ManifestPage `yaml:"pages"`
}

type ManifestPage struct {
	Page string `yaml:"page"`
	Text string `yaml:"text"`
}

// ParseChunkManifest decodes and validates a YAML manifest.
func ParseChunkManifest(r io.Reader) (*ChunkManifest, error) {
	var m ChunkManifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk manifest", err)
	}
	if err := m.validate(); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chunk manifest", err)
	}
	return &m, nil
}

func (m *ChunkManifest) validate() error {
	if strings.TrimSpace(m.TeamID) == "" {
		return errors.New("team_id is required")
	}
	if len(m.Documents) == 0 {
		return errors.New("at least one document is required")
	}
	seen := make(map[string]struct{}, len(m.Documents))
	for i, doc := range m.Documents {
		if strings.TrimSpace(doc.ID) == "" {
			return fmt.Errorf("documents[%d]: id is required", i)
		}
		if _, dup := seen[doc.ID]; dup {
			return fmt.Errorf("documents[%d]: duplicate id %q", i, doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}
	return nil
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Documents int
	Chunks    int
}

// ChunkImporter splits manifest pages into chunks and stores them, replacing
// earlier chunks of the same document.
type ChunkImporter struct {
	store    ChunkWriter
	embedder EmbeddingClient
	chunkCfg ChunkConfig
	now      func() time.Time
}

// NewChunkImporter builds an importer. embedder may be nil to skip embeddings.
func NewChunkImporter(store ChunkWriter, embedder EmbeddingClient) *ChunkImporter {
	return &ChunkImporter{
		store:    store,
		embedder: embedder,
		chunkCfg: DefaultChunkConfig(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (i *ChunkImporter) Import(ctx context.Context, m *ChunkManifest) (*ImportResult, error) {
	result := &ImportResult{}
	for _, doc := range m.Documents {
		chunks, err := i.buildChunks(ctx, m.TeamID, doc)
		if err != nil {
			return result, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		if err := i.store.ReplaceChunks(ctx, m.TeamID, doc.ID, chunks); err != nil {
			return result, fmt.Errorf("document %s: failed to store chunks: %w", doc.ID, err)
		}
		result.Documents++
		result.Chunks += len(chunks)
	}
	return result, nil
}

func (i *ChunkImporter) buildChunks(ctx context.Context, teamID string, doc ManifestDocument) ([]domain.DocumentChunk, error) {
	createdAt := i.now()
	var chunks []domain.DocumentChunk
	for _, page := range doc.Pages {
		for _, text := range chunkText(page.Text, i.chunkCfg) {
			chunk := domain.DocumentChunk{
				DocumentID:      doc.ID,
				TeamID:          teamID,
				ChunkIndex:      len(chunks),
				Title:           doc.Title,
				PageNumber:      page.Page,
				Content:         text,
				DocumentVersion: doc.Version,
				CreatedAt:       createdAt,
			}
			if i.embedder != nil {
				embedding, err := i.embedder.GenerateEmbedding(ctx, buildChunkEmbeddingText(doc.Title, text))
				if err != nil {
					return nil, fmt.Errorf("failed to generate chunk embedding: %w", err)
				}
				chunk.Embedding = embedding
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func buildChunkEmbeddingText(title, chunk string) string {
	if title == "" {
		return chunk
	}
	return title + "\n\n" + chunk
}
