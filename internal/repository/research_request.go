package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const researchRequestColumns = `id, team_id, user_id, document_ids, user_search_query, overall_query,
	similarity_score, sequential_query, enhanced_search, status, individual_findings,
	unanalyzed_document_ids, overall_summary, created_at`

// ResearchRequestRepository stores the per-team work queue.
type ResearchRequestRepository struct {
	db dbtx
}

func NewResearchRequestRepository(pool *pgxpool.Pool) *ResearchRequestRepository {
	return &ResearchRequestRepository{db: pool}
}

func NewResearchRequestRepositoryWithTx(tx pgx.Tx) *ResearchRequestRepository {
	return &ResearchRequestRepository{db: tx}
}

func (r *ResearchRequestRepository) Create(ctx context.Context, req *domain.ResearchRequest) error {
	findings, err := marshalFindings(req.IndividualFindings)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO research_requests (`+researchRequestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		req.ID, req.TeamID, req.UserID, req.DocumentIDs, req.UserSearchQuery, req.OverallQuery,
		req.SimilarityScore, req.SequentialQuery, req.EnhancedSearch, req.Status, findings,
		nonNilStrings(req.UnanalyzedDocumentIDs), req.OverallSummary, req.CreatedAt,
	)
	return err
}

func (r *ResearchRequestRepository) GetByID(ctx context.Context, id string) (*domain.ResearchRequest, error) {
	req, err := scanResearchRequest(r.db.QueryRow(ctx,
		`SELECT `+researchRequestColumns+` FROM research_requests WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// Claim moves one waiting row to processing. Concurrent claimers skip rows
// locked by each other, so a row is handed out at most once.
func (r *ResearchRequestRepository) Claim(ctx context.Context, teamID, requestID string) (*domain.ResearchRequest, error) {
	req, err := scanResearchRequest(r.db.QueryRow(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM research_requests
			 WHERE team_id = $1
			   AND status = $2
			   AND ($3::text = '' OR id = $3::text)
			 ORDER BY created_at ASC, id ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT 1
		 )
		 UPDATE research_requests
		 SET status = $4,
		     claimed_at = $5
		 FROM cte
		 WHERE research_requests.id = cte.id
		 RETURNING `+prefixColumns("research_requests", researchRequestColumns),
		teamID, domain.StatusInQueue, requestID, domain.StatusProcessing, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// UpdateProgress moves a claimed row from one status to a later one. The
// write only lands while the row still holds from.
func (r *ResearchRequestRepository) UpdateProgress(ctx context.Context, id string, from, to domain.Status, findings []domain.Finding, unanalyzed []string) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}
	payload, err := marshalFindings(findings)
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE research_requests
		 SET status = $1, individual_findings = $2, unanalyzed_document_ids = $3
		 WHERE id = $4 AND status = $5`,
		to, payload, nonNilStrings(unanalyzed), id, from,
	)
	if err != nil {
		return err
	}
	return r.checkApplied(ctx, id, cmdTag.RowsAffected())
}

// Complete marks the row completed with its final findings and summary.
func (r *ResearchRequestRepository) Complete(ctx context.Context, id string, from domain.Status, findings []domain.Finding, unanalyzed []string, summary string) error {
	if err := checkTransition(from, domain.StatusCompleted); err != nil {
		return err
	}
	payload, err := marshalFindings(findings)
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE research_requests
		 SET status = $1, individual_findings = $2, overall_summary = $3, unanalyzed_document_ids = $4
		 WHERE id = $5 AND status = $6`,
		domain.StatusCompleted, payload, summary, nonNilStrings(unanalyzed), id, from,
	)
	if err != nil {
		return err
	}
	return r.checkApplied(ctx, id, cmdTag.RowsAffected())
}

func checkTransition(from, to domain.Status) error {
	if !from.Before(to) {
		return domain.ErrInvalidStatus.Wrap(fmt.Errorf("%q cannot follow %q", to, from))
	}
	return nil
}

// checkApplied tells a missing row apart from one whose status moved on.
func (r *ResearchRequestRepository) checkApplied(ctx context.Context, id string, affected int64) error {
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM research_requests WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrRequestNotClaimable
	}
	return domain.ErrRequestNotFound
}

// Delete removes the row. Deleting an already removed row is not an error.
func (r *ResearchRequestRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM research_requests WHERE id = $1`, id)
	return err
}

// ListTeamsWithPending returns teams that have rows waiting in queue, oldest first.
func (r *ResearchRequestRepository) ListTeamsWithPending(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT team_id
		 FROM research_requests
		 WHERE status = $1
		 GROUP BY team_id
		 ORDER BY MIN(created_at) ASC`,
		domain.StatusInQueue,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var teamID string
		if err := rows.Scan(&teamID); err != nil {
			return nil, err
		}
		teams = append(teams, teamID)
	}
	return teams, rows.Err()
}

func scanResearchRequest(row pgx.Row) (*domain.ResearchRequest, error) {
	var req domain.ResearchRequest
	var findings []byte
	err := row.Scan(
		&req.ID, &req.TeamID, &req.UserID, &req.DocumentIDs, &req.UserSearchQuery, &req.OverallQuery,
		&req.SimilarityScore, &req.SequentialQuery, &req.EnhancedSearch, &req.Status, &findings,
		&req.UnanalyzedDocumentIDs, &req.OverallSummary, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if req.IndividualFindings, err = unmarshalFindings(findings); err != nil {
		return nil, err
	}
	return &req, nil
}

func marshalFindings(findings []domain.Finding) ([]byte, error) {
	if findings == nil {
		findings = []domain.Finding{}
	}
	payload, err := json.Marshal(findings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode findings: %w", err)
	}
	return payload, nil
}

func unmarshalFindings(payload []byte) ([]domain.Finding, error) {
	if len(payload) == 0 {
		return []domain.Finding{}, nil
	}
	var findings []domain.Finding
	if err := json.Unmarshal(payload, &findings); err != nil {
		return nil, fmt.Errorf("failed to decode findings: %w", err)
	}
	return findings, nil
}
