package service

import (
	"context"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/pagination"
)

// ResearchRequestRepository persists queue rows.
type ResearchRequestRepository interface {
	Create(ctx context.Context, r *domain.ResearchRequest) error
	GetByID(ctx context.Context, id string) (*domain.ResearchRequest, error)
	// Claim atomically moves the oldest waiting row of the team (or the named
	// row) to processing. It returns nil when nothing is claimable.
	Claim(ctx context.Context, teamID, requestID string) (*domain.ResearchRequest, error)
	// UpdateProgress and Complete apply only while the row still holds from,
	// and only when the new status comes strictly after it.
	UpdateProgress(ctx context.Context, id string, from, to domain.Status, findings []domain.Finding, unanalyzed []string) error
	Complete(ctx context.Context, id string, from domain.Status, findings []domain.Finding, unanalyzed []string, summary string) error
}

// ResearchRecordRepository reads the archive.
type ResearchRecordRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error)
	FindExactMatch(ctx context.Context, fp domain.Fingerprint) (*RecordMatch, error)
	FindFindings(ctx context.Context, teamID, userSearchQuery string, documentIDs []string) ([]domain.Finding, error)
	ListByTeam(ctx context.Context, filter HistoryFilter) (*RecordPageResult, error)
}

// RecordMatch is an archived record that matches a submission fingerprint.
type RecordMatch struct {
	RecordID string
	TeamSlug string
}

// HistoryFilter selects archived records for a team.
type HistoryFilter struct {
	TeamID string
	Query  string
	Cursor *pagination.Cursor
	Limit  int
}

type RecordPageResult struct {
	Items      []*domain.ResearchRecord
	NextCursor string
	HasMore    bool
}

// TeamRepository resolves team routing and credentials.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
}

// UserRepository resolves notification targets.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// ChunkStore is the chunk retrieval client.
type ChunkStore interface {
	FetchChunks(ctx context.Context, teamID, documentID string) ([]domain.DocumentChunk, error)
}

// DocumentVersionSource reports the current content version of ingested documents.
type DocumentVersionSource interface {
	CurrentVersions(ctx context.Context, teamID string, documentIDs []string) (map[string]string, error)
}
