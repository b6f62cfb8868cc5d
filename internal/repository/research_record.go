package repository

import (
	"context"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/pagination"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const researchRecordColumns = `id, team_id, user_id, document_ids, user_search_query, overall_query,
	similarity_score, sequential_query, enhanced_search, status, individual_findings,
	unanalyzed_document_ids, overall_summary, created_at, archived_at`

const defaultHistoryLimit = 20

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ResearchRecordRepository stores archived research results.
type ResearchRecordRepository struct {
	db dbtx
}

func NewResearchRecordRepository(pool *pgxpool.Pool) *ResearchRecordRepository {
	return &ResearchRecordRepository{db: pool}
}

func NewResearchRecordRepositoryWithTx(tx pgx.Tx) *ResearchRecordRepository {
	return &ResearchRecordRepository{db: tx}
}

// Create inserts the record. A record with the same id is left untouched so
// that a retried archival never produces a duplicate.
func (r *ResearchRecordRepository) Create(ctx context.Context, rec *domain.ResearchRecord) error {
	findings, err := marshalFindings(rec.IndividualFindings)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO research_records (`+researchRecordColumns+`, canonical_document_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.TeamID, rec.UserID, rec.DocumentIDs, rec.UserSearchQuery, rec.OverallQuery,
		rec.SimilarityScore, rec.SequentialQuery, rec.EnhancedSearch, rec.Status, findings,
		nonNilStrings(rec.UnanalyzedDocumentIDs), rec.OverallSummary, rec.CreatedAt, rec.ArchivedAt,
		domain.CanonicalDocumentIDs(rec.DocumentIDs),
	)
	return err
}

func (r *ResearchRecordRepository) GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	rec, err := scanResearchRecord(r.db.QueryRow(ctx,
		`SELECT `+researchRecordColumns+` FROM research_records WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// FindExactMatch returns the oldest complete record with an identical
// fingerprint, or nil. Partial records never match so a resubmission retries
// their unanalyzed documents.
func (r *ResearchRecordRepository) FindExactMatch(ctx context.Context, fp domain.Fingerprint) (*service.RecordMatch, error) {
	var match service.RecordMatch
	err := r.db.QueryRow(ctx,
		`SELECT rr.id, t.slug
		 FROM research_records rr
		 JOIN teams t ON t.id = rr.team_id
		 WHERE rr.team_id = $1
		   AND rr.user_search_query = $2
		   AND rr.overall_query = $3
		   AND rr.canonical_document_ids = $4
		   AND cardinality(rr.unanalyzed_document_ids) = 0
		 ORDER BY rr.archived_at ASC, rr.id ASC
		 LIMIT 1`,
		fp.TeamID, fp.UserSearchQuery, fp.OverallQuery, nonNilStrings(fp.DocumentIDs),
	).Scan(&match.RecordID, &match.TeamSlug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &match, nil
}

// FindFindings collects the findings of every record of the team with the
// same user query whose documents overlap the given set, oldest record first.
func (r *ResearchRecordRepository) FindFindings(ctx context.Context, teamID, userSearchQuery string, documentIDs []string) ([]domain.Finding, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT individual_findings
		 FROM research_records
		 WHERE team_id = $1
		   AND user_search_query = $2
		   AND document_ids && $3
		 ORDER BY archived_at ASC, id ASC`,
		teamID, userSearchQuery, documentIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Finding
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		findings, err := unmarshalFindings(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, findings...)
	}
	return out, rows.Err()
}

// ListByTeam pages through a team's records, newest first, optionally keeping
// only those whose user query contains filter.Query case-insensitively.
func (r *ResearchRecordRepository) ListByTeam(ctx context.Context, filter service.HistoryFilter) (*service.RecordPageResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := psql.
		Select(strings.Split(researchRecordColumns, ",")...).
		From("research_records").
		Where(sq.Eq{"team_id": filter.TeamID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit + 1))

	if q := strings.TrimSpace(filter.Query); q != "" {
		query = query.Where(sq.ILike{"user_search_query": "%" + escapeLike(q) + "%"})
	}
	if filter.Cursor != nil {
		query = query.Where(sq.Or{
			sq.Lt{"created_at": filter.Cursor.Timestamp},
			sq.And{
				sq.Eq{"created_at": filter.Cursor.Timestamp},
				sq.Lt{"id": filter.Cursor.LastID},
			},
		})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ResearchRecord
	for rows.Next() {
		rec, err := scanResearchRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &service.RecordPageResult{}
	if len(items) > limit {
		result.HasMore = true
		items = items[:limit]
	}
	result.Items = items
	if result.HasMore {
		last := items[len(items)-1]
		result.NextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return result, nil
}

func scanResearchRecord(row pgx.Row) (*domain.ResearchRecord, error) {
	var rec domain.ResearchRecord
	var findings []byte
	err := row.Scan(
		&rec.ID, &rec.TeamID, &rec.UserID, &rec.DocumentIDs, &rec.UserSearchQuery, &rec.OverallQuery,
		&rec.SimilarityScore, &rec.SequentialQuery, &rec.EnhancedSearch, &rec.Status, &findings,
		&rec.UnanalyzedDocumentIDs, &rec.OverallSummary, &rec.CreatedAt, &rec.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.IndividualFindings, err = unmarshalFindings(findings); err != nil {
		return nil, err
	}
	return &rec, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
