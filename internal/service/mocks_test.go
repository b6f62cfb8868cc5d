package service

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockRequestRepository struct {
	mock.Mock
}

func (m *MockRequestRepository) Create(ctx context.Context, r *domain.ResearchRequest) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id string) (*domain.ResearchRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResearchRequest), args.Error(1)
}

func (m *MockRequestRepository) Claim(ctx context.Context, teamID, requestID string) (*domain.ResearchRequest, error) {
	args := m.Called(ctx, teamID, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResearchRequest), args.Error(1)
}

func (m *MockRequestRepository) UpdateProgress(ctx context.Context, id string, from, to domain.Status, findings []domain.Finding, unanalyzed []string) error {
	args := m.Called(ctx, id, from, to, findings, unanalyzed)
	return args.Error(0)
}

func (m *MockRequestRepository) Complete(ctx context.Context, id string, from domain.Status, findings []domain.Finding, unanalyzed []string, summary string) error {
	args := m.Called(ctx, id, from, findings, unanalyzed, summary)
	return args.Error(0)
}

type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResearchRecord), args.Error(1)
}

func (m *MockRecordRepository) FindExactMatch(ctx context.Context, fp domain.Fingerprint) (*RecordMatch, error) {
	args := m.Called(ctx, fp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecordMatch), args.Error(1)
}

func (m *MockRecordRepository) FindFindings(ctx context.Context, teamID, userSearchQuery string, documentIDs []string) ([]domain.Finding, error) {
	args := m.Called(ctx, teamID, userSearchQuery, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Finding), args.Error(1)
}

func (m *MockRecordRepository) ListByTeam(ctx context.Context, filter HistoryFilter) (*RecordPageResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecordPageResult), args.Error(1)
}

type MockTeamRepository struct {
	mock.Mock
}

func (m *MockTeamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Team), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) FetchChunks(ctx context.Context, teamID, documentID string) ([]domain.DocumentChunk, error) {
	args := m.Called(ctx, teamID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentChunk), args.Error(1)
}

type MockVersionSource struct {
	mock.Mock
}

func (m *MockVersionSource) CurrentVersions(ctx context.Context, teamID string, documentIDs []string) (map[string]string, error) {
	args := m.Called(ctx, teamID, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyResearchComplete(ctx context.Context, notice CompletionNotice) error {
	args := m.Called(ctx, notice)
	return args.Error(0)
}

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) ExportRecord(ctx context.Context, rec *domain.ResearchRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockExporter) ExportURL(ctx context.Context, rec *domain.ResearchRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

// executorFunc answers queries with a function so tests can key on chunk content.
type executorFunc func(ctx context.Context, in QueryInput) (string, error)

func (f executorFunc) ExecuteQuery(ctx context.Context, in QueryInput) (string, error) {
	return f(ctx, in)
}

type fixedUUID struct {
	mu  sync.Mutex
	ids []string
}

func (g *fixedUUID) NewString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id
}

// memStore is an in-memory queue and archive that records every status a
// request passes through.
type memStore struct {
	mu          sync.Mutex
	requests    map[string]*domain.ResearchRequest
	records     map[string]*domain.ResearchRecord
	recordOrder []string
	statuses    map[string][]domain.Status
	slugs       map[string]string
	txCalls     int
}

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[string]*domain.ResearchRequest),
		records:  make(map[string]*domain.ResearchRecord),
		statuses: make(map[string][]domain.Status),
		slugs:    map[string]string{"team-1": "acme", "team-2": "globex"},
	}
}

func (s *memStore) queue() *memRequests  { return &memRequests{s} }
func (s *memStore) archive() *memRecords { return &memRecords{s} }

func (s *memStore) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	s.mu.Lock()
	s.txCalls++
	s.mu.Unlock()
	return fn(&memTxRepos{s})
}

func (s *memStore) recordList() []*domain.ResearchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ResearchRecord, 0, len(s.recordOrder))
	for _, id := range s.recordOrder {
		out = append(out, s.records[id])
	}
	return out
}

func (s *memStore) statusHistory(id string) []domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Status(nil), s.statuses[id]...)
}

type memTxRepos struct{ s *memStore }

func (r *memTxRepos) Requests() ArchiveRequestRepository { return &memRequests{r.s} }
func (r *memTxRepos) Records() ArchiveRecordRepository   { return &memRecords{r.s} }

type memRequests struct{ s *memStore }

func (r *memRequests) Create(ctx context.Context, req *domain.ResearchRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *req
	r.s.requests[req.ID] = &cp
	r.s.statuses[req.ID] = append(r.s.statuses[req.ID], req.Status)
	return nil
}

func (r *memRequests) GetByID(ctx context.Context, id string) (*domain.ResearchRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *memRequests) Claim(ctx context.Context, teamID, requestID string) (*domain.ResearchRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var candidates []*domain.ResearchRequest
	for _, req := range r.s.requests {
		if req.TeamID != teamID || req.Status != domain.StatusInQueue {
			continue
		}
		if requestID != "" && req.ID != requestID {
			continue
		}
		candidates = append(candidates, req)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	req := candidates[0]
	req.Status = domain.StatusProcessing
	r.s.statuses[req.ID] = append(r.s.statuses[req.ID], req.Status)
	cp := *req
	return &cp, nil
}

// transition mirrors the repository guard: the row must still hold from and
// to must come strictly after it.
func (r *memRequests) transition(id string, from, to domain.Status) (*domain.ResearchRequest, error) {
	if !from.Before(to) {
		return nil, domain.ErrInvalidStatus
	}
	req, ok := r.s.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	if req.Status != from {
		return nil, domain.ErrRequestNotClaimable
	}
	req.Status = to
	r.s.statuses[id] = append(r.s.statuses[id], to)
	return req, nil
}

func (r *memRequests) UpdateProgress(ctx context.Context, id string, from, to domain.Status, findings []domain.Finding, unanalyzed []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, err := r.transition(id, from, to)
	if err != nil {
		return err
	}
	req.IndividualFindings = append([]domain.Finding(nil), findings...)
	req.UnanalyzedDocumentIDs = append([]string(nil), unanalyzed...)
	return nil
}

func (r *memRequests) Complete(ctx context.Context, id string, from domain.Status, findings []domain.Finding, unanalyzed []string, summary string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, err := r.transition(id, from, domain.StatusCompleted)
	if err != nil {
		return err
	}
	req.IndividualFindings = findings
	req.UnanalyzedDocumentIDs = append([]string(nil), unanalyzed...)
	req.OverallSummary = summary
	return nil
}

func (r *memRequests) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.requests, id)
	return nil
}

type memRecords struct{ s *memStore }

func (r *memRecords) Create(ctx context.Context, rec *domain.ResearchRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.records[rec.ID]; ok {
		return nil
	}
	r.s.records[rec.ID] = rec
	r.s.recordOrder = append(r.s.recordOrder, rec.ID)
	return nil
}

func (r *memRecords) GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (r *memRecords) FindExactMatch(ctx context.Context, fp domain.Fingerprint) (*RecordMatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.recordOrder {
		rec := r.s.records[id]
		if rec.Partial() {
			continue
		}
		got := domain.NewFingerprint(rec.TeamID, rec.UserSearchQuery, rec.OverallQuery, rec.DocumentIDs)
		if got.TeamID == fp.TeamID && got.UserSearchQuery == fp.UserSearchQuery &&
			got.OverallQuery == fp.OverallQuery && equalStrings(got.DocumentIDs, fp.DocumentIDs) {
			return &RecordMatch{RecordID: rec.ID, TeamSlug: r.s.slugs[rec.TeamID]}, nil
		}
	}
	return nil, nil
}

func (r *memRecords) FindFindings(ctx context.Context, teamID, userSearchQuery string, documentIDs []string) ([]domain.Finding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = true
	}
	var out []domain.Finding
	for _, id := range r.s.recordOrder {
		rec := r.s.records[id]
		if rec.TeamID != teamID || rec.UserSearchQuery != userSearchQuery {
			continue
		}
		for _, d := range rec.DocumentIDs {
			if wanted[d] {
				out = append(out, rec.IndividualFindings...)
				break
			}
		}
	}
	return out, nil
}

func (r *memRecords) ListByTeam(ctx context.Context, filter HistoryFilter) (*RecordPageResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []*domain.ResearchRecord
	for _, id := range r.s.recordOrder {
		if rec := r.s.records[id]; rec.TeamID == filter.TeamID {
			items = append(items, rec)
		}
	}
	return &RecordPageResult{Items: items}, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
