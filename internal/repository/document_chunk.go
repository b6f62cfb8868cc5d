package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DocumentChunkRepository reads and loads ingested document chunks.
type DocumentChunkRepository struct {
	db dbtx
}

func NewDocumentChunkRepository(pool *pgxpool.Pool) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: pool}
}

func NewDocumentChunkRepositoryWithTx(tx dbtx) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: tx}
}

// FetchChunks returns a document's chunks in reading order. An empty result
// means the document has not been indexed yet.
func (r *DocumentChunkRepository) FetchChunks(ctx context.Context, teamID, documentID string) ([]domain.DocumentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT document_id, team_id, chunk_index, title, page_number, content, document_version, created_at
		 FROM document_chunks
		 WHERE team_id = $1 AND document_id = $2
		 ORDER BY chunk_index ASC`,
		teamID, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		if err := rows.Scan(&c.DocumentID, &c.TeamID, &c.ChunkIndex, &c.Title, &c.PageNumber,
			&c.Content, &c.DocumentVersion, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CurrentVersions maps each versioned document to its current version.
// Documents without a recorded version are absent from the result.
func (r *DocumentChunkRepository) CurrentVersions(ctx context.Context, teamID string, documentIDs []string) (map[string]string, error) {
	versions := make(map[string]string)
	if len(documentIDs) == 0 {
		return versions, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT document_id, MAX(document_version)
		 FROM document_chunks
		 WHERE team_id = $1 AND document_id = ANY($2) AND document_version <> ''
		 GROUP BY document_id`,
		teamID, documentIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, version string
		if err := rows.Scan(&id, &version); err != nil {
			return nil, err
		}
		versions[id] = version
	}
	return versions, rows.Err()
}

// ReplaceChunks deletes a document's chunks and inserts the new set.
func (r *DocumentChunkRepository) ReplaceChunks(ctx context.Context, teamID, documentID string, chunks []domain.DocumentChunk) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE team_id = $1 AND document_id = $2`,
		teamID, documentID,
	)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		var embedding *pgvector.Vector
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			embedding = &v
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(document_id, team_id, chunk_index, title, page_number, content, document_version, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			documentID,
			teamID,
			c.ChunkIndex,
			c.Title,
			c.PageNumber,
			c.Content,
			c.DocumentVersion,
			embedding,
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}
