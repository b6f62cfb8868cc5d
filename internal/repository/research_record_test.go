//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/pagination"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/cloo-solutions/researchq/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(teamID, query string, createdAt time.Time, findings []domain.Finding, docs ...string) *domain.ResearchRecord {
	req := newQueuedRequest(teamID, "user-1", createdAt, docs...)
	req.UserSearchQuery = query
	return domain.NewResearchRecord(req, findings, nil, "summary", createdAt.Add(time.Second).UTC().Truncate(time.Microsecond))
}

func TestResearchRecordRepository_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	testutil.SeedTeamAndUser(ctx, t, pool, "team-1", "acme", "user-1")

	repo := NewResearchRecordRepository(pool)
	rec := newRecord("team-1", "q", time.Now(), []domain.Finding{{DocumentID: "a", PageContent: "x", Content: "y"}}, "b", "a")

	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got.DocumentIDs)
	assert.Equal(t, rec.IndividualFindings, got.IndividualFindings)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM research_records`).Scan(&count))
	assert.Equal(t, 1, count)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestResearchRecordRepository_FindExactMatch(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	testutil.SeedTeamAndUser(ctx, t, pool, "team-1", "acme", "user-1")

	repo := NewResearchRecordRepository(pool)
	rec := newRecord("team-1", "q", time.Now(), nil, "b", "a")
	require.NoError(t, repo.Create(ctx, rec))

	match, err := repo.FindExactMatch(ctx, domain.NewFingerprint("team-1", "q", domain.DefaultOverallQuery, []string{"a", "b", "a"}))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, rec.ID, match.RecordID)
	assert.Equal(t, "acme", match.TeamSlug)

	miss, err := repo.FindExactMatch(ctx, domain.NewFingerprint("team-1", "q", domain.DefaultOverallQuery, []string{"a"}))
	require.NoError(t, err)
	assert.Nil(t, miss)

	miss, err = repo.FindExactMatch(ctx, domain.NewFingerprint("team-1", "q", "other", []string{"a", "b"}))
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestResearchRecordRepository_FindExactMatch_SkipsPartialRecords(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	testutil.SeedTeamAndUser(ctx, t, pool, "team-1", "acme", "user-1")

	repo := NewResearchRecordRepository(pool)
	fa := domain.Finding{DocumentID: "a", PageContent: "x", Content: "from a"}
	req := newQueuedRequest("team-1", "user-1", time.Now(), "a", "b")
	req.UserSearchQuery = "q"
	partial := domain.NewResearchRecord(req, []domain.Finding{fa}, []string{"b"}, "summary", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, partial))

	got, err := repo.GetByID(ctx, partial.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.UnanalyzedDocumentIDs)
	assert.True(t, got.Partial())

	match, err := repo.FindExactMatch(ctx, domain.NewFingerprint("team-1", "q", domain.DefaultOverallQuery, []string{"a", "b"}))
	require.NoError(t, err)
	assert.Nil(t, match)

	findings, err := repo.FindFindings(ctx, "team-1", "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Finding{fa}, findings)
}

func TestResearchRecordRepository_FindFindings(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	testutil.SeedTeamAndUser(ctx, t, pool, "team-1", "acme", "user-1")
	testutil.SeedTeamAndUser(ctx, t, pool, "team-2", "other", "user-1")

	repo := NewResearchRecordRepository(pool)
	now := time.Now()
	fa := domain.Finding{DocumentID: "a", PageContent: "x", Content: "from a"}
	fc := domain.Finding{DocumentID: "c", PageContent: "z", Content: "from c"}
	require.NoError(t, repo.Create(ctx, newRecord("team-1", "q", now.Add(-time.Hour), []domain.Finding{fa}, "a")))
	require.NoError(t, repo.Create(ctx, newRecord("team-1", "q", now, []domain.Finding{fc, fa}, "a", "c")))
	require.NoError(t, repo.Create(ctx, newRecord("team-1", "other query", now, []domain.Finding{fa}, "a")))
	require.NoError(t, repo.Create(ctx, newRecord("team-2", "q", now, []domain.Finding{fa}, "a")))

	findings, err := repo.FindFindings(ctx, "team-1", "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Finding{fa, fc, fa}, findings)

	none, err := repo.FindFindings(ctx, "team-1", "q", []string{"b"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResearchRecordRepository_ListByTeam(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	testutil.SeedTeamAndUser(ctx, t, pool, "team-1", "acme", "user-1")

	repo := NewResearchRecordRepository(pool)
	now := time.Now()
	queries := []string{"Revenue outlook", "Risk factors", "revenue by region", "Headcount 50%"}
	for i, q := range queries {
		require.NoError(t, repo.Create(ctx, newRecord("team-1", q, now.Add(time.Duration(i)*time.Minute), nil, "a")))
	}

	page, err := repo.ListByTeam(ctx, service.HistoryFilter{TeamID: "team-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "Headcount 50%", page.Items[0].UserSearchQuery)

	cursor, err := pagination.DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	next, err := repo.ListByTeam(ctx, service.HistoryFilter{TeamID: "team-1", Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, "Revenue outlook", next.Items[0].UserSearchQuery)

	filtered, err := repo.ListByTeam(ctx, service.HistoryFilter{TeamID: "team-1", Query: "REVENUE"})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 2)
	assert.Equal(t, "revenue by region", filtered.Items[0].UserSearchQuery)

	literal, err := repo.ListByTeam(ctx, service.HistoryFilter{TeamID: "team-1", Query: "50%"})
	require.NoError(t, err)
	assert.Len(t, literal.Items, 1)
}

func TestTxRunner_ArchivesAtomically(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	testutil.SeedTeamAndUser(ctx, t, pool, "team-1", "acme", "user-1")

	requests := NewResearchRequestRepository(pool)
	records := NewResearchRecordRepository(pool)
	req := newQueuedRequest("team-1", "user-1", time.Now(), "a")
	require.NoError(t, requests.Create(ctx, req))
	rec := domain.NewResearchRecord(req, nil, nil, "summary", time.Now().UTC())

	runner := NewTxRunner(pool)
	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Records().Create(ctx, rec); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = records.GetByID(ctx, req.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	err = runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Records().Create(ctx, rec); err != nil {
			return err
		}
		return repos.Requests().Delete(ctx, req.ID)
	})
	require.NoError(t, err)

	_, err = records.GetByID(ctx, req.ID)
	assert.NoError(t, err)
	_, err = requests.GetByID(ctx, req.ID)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}
