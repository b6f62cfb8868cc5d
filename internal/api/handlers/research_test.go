package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloo-solutions/researchq/internal/api"
	"github.com/cloo-solutions/researchq/internal/api/middleware"
	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockResearchService struct {
	mock.Mock
}

func (m *MockResearchService) Submit(ctx context.Context, input service.SubmitInput) (*service.SubmitResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SubmitResult), args.Error(1)
}

func (m *MockResearchService) ProcessNext(ctx context.Context, teamID, requestID string) (*domain.ResearchRecord, error) {
	args := m.Called(ctx, teamID, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResearchRecord), args.Error(1)
}

func (m *MockResearchService) GetStatus(ctx context.Context, requestID string) (*service.StatusResult, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StatusResult), args.Error(1)
}

func (m *MockResearchService) GetRecord(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResearchRecord), args.Error(1)
}

func (m *MockResearchService) ListHistory(ctx context.Context, input service.ListHistoryInput) (*service.ListHistoryOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListHistoryOutput), args.Error(1)
}

func (m *MockResearchService) ExportURL(ctx context.Context, recordID string) (string, error) {
	args := m.Called(ctx, recordID)
	return args.String(0), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(teamID, requestID string) {
	m.Called(teamID, requestID)
}

func newTestRecord() *domain.ResearchRecord {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.ResearchRecord{
		ID:              "rec-1",
		TeamID:          "team-1",
		UserID:          "user-1",
		DocumentIDs:     []string{"A"},
		UserSearchQuery: "revenue",
		OverallQuery:    domain.DefaultOverallQuery,
		SimilarityScore: 1,
		SequentialQuery: true,
		Status:          domain.StatusCompleted,
		IndividualFindings: []domain.Finding{
			{DocumentID: "A", Title: "Report", Page: "1", PageContent: "p", Content: "x"},
		},
		OverallSummary: "summary",
		CreatedAt:      now,
		ArchivedAt:     now,
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, target))
}

func TestResearchHandler_Submit_Queued(t *testing.T) {
	mockSvc := new(MockResearchService)
	dispatcher := new(MockDispatcher)
	handler := NewResearchHandler(mockSvc, dispatcher)

	queued := &domain.ResearchRequest{
		ID:              "req-1",
		TeamID:          "team-1",
		UserID:          "user-1",
		DocumentIDs:     []string{"A", "B"},
		UserSearchQuery: "revenue",
		OverallQuery:    domain.DefaultOverallQuery,
		SimilarityScore: 1,
		SequentialQuery: false,
		Status:          domain.StatusInQueue,
		CreatedAt:       time.Now(),
	}
	mockSvc.On("Submit", mock.Anything, mock.MatchedBy(func(in service.SubmitInput) bool {
		return in.TeamID == "team-1" && in.SequentialQuery != nil && !*in.SequentialQuery &&
			assert.ObjectsAreEqual([]string{"A", "B"}, in.DocumentIDs)
	})).Return(&service.SubmitResult{Request: queued}, nil)
	dispatcher.On("Dispatch", "team-1", "req-1").Return()

	body := `{"team_id":"team-1","user_id":"user-1","document_ids":["A","B"],"user_search_query":"revenue","sequential_query":false}`
	req := httptest.NewRequest(http.MethodPost, "/research", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Submit(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp SubmitResearchResponse
	decodeData(t, w, &resp)
	require.NotNil(t, resp.Request)
	assert.Equal(t, "req-1", resp.Request.ID)
	assert.Equal(t, "in queue", resp.Request.Status)
	mockSvc.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestResearchHandler_Submit_Redirect(t *testing.T) {
	mockSvc := new(MockResearchService)
	dispatcher := new(MockDispatcher)
	handler := NewResearchHandler(mockSvc, dispatcher)

	mockSvc.On("Submit", mock.Anything, mock.Anything).Return(&service.SubmitResult{
		RedirectTo: "/teams/acme/ai-result?id=rec-1",
		RecordID:   "rec-1",
	}, nil)

	body := `{"team_id":"team-1","user_id":"user-1","document_ids":["A"],"user_search_query":"revenue"}`
	req := httptest.NewRequest(http.MethodPost, "/research", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Submit(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp SubmitResearchResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "/teams/acme/ai-result?id=rec-1", resp.RedirectTo)
	assert.Equal(t, "rec-1", resp.RecordID)
	assert.Nil(t, resp.Request)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestResearchHandler_Submit_TeamFromScope(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("Submit", mock.Anything, mock.MatchedBy(func(in service.SubmitInput) bool {
		return in.TeamID == "team-9"
	})).Return(&service.SubmitResult{Request: &domain.ResearchRequest{ID: "req-1", TeamID: "team-9", Status: domain.StatusInQueue}}, nil)

	body := `{"user_id":"user-1","document_ids":["A"],"user_search_query":"revenue"}`
	req := httptest.NewRequest(http.MethodPost, "/research", bytes.NewReader([]byte(body)))
	req = req.WithContext(context.WithValue(req.Context(), middleware.TeamIDKey, "team-9"))
	w := httptest.NewRecorder()

	handler.Submit(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestResearchHandler_Submit_ValidationError(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("Submit", mock.Anything, mock.Anything).Return(nil, domain.ErrMissingRequiredField)

	req := httptest.NewRequest(http.MethodPost, "/research", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	handler.Submit(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeValidation, resp.Code)
}

func TestResearchHandler_Submit_InvalidJSON(t *testing.T) {
	handler := NewResearchHandler(new(MockResearchService), nil)

	req := httptest.NewRequest(http.MethodPost, "/research", bytes.NewReader([]byte(`{`)))
	w := httptest.NewRecorder()

	handler.Submit(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResearchHandler_Process(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("ProcessNext", mock.Anything, "team-1", "req-1").Return(newTestRecord(), nil)

	req := httptest.NewRequest(http.MethodPost, "/research/process", bytes.NewReader([]byte(`{"team_id":"team-1","request_id":"req-1"}`)))
	w := httptest.NewRecorder()

	handler.Process(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ProcessResearchResponse
	decodeData(t, w, &resp)
	assert.True(t, resp.Processed)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "summary", resp.Record.OverallSummary)
}

func TestResearchHandler_Process_NothingClaimable(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("ProcessNext", mock.Anything, "team-1", "").Return(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/research/process", bytes.NewReader([]byte(`{"team_id":"team-1"}`)))
	w := httptest.NewRecorder()

	handler.Process(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ProcessResearchResponse
	decodeData(t, w, &resp)
	assert.False(t, resp.Processed)
	assert.Nil(t, resp.Record)
}

func TestResearchHandler_Process_Errors(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	handler.Process(w, httptest.NewRequest(http.MethodPost, "/research/process", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockSvc.On("ProcessNext", mock.Anything, "team-2", "").Return(nil, domain.ErrMissingCredentials)
	w = httptest.NewRecorder()
	handler.Process(w, httptest.NewRequest(http.MethodPost, "/research/process", bytes.NewReader([]byte(`{"team_id":"team-2"}`))))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-")
}

func TestResearchHandler_Status(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("GetStatus", mock.Anything, "req-1").Return(&service.StatusResult{
		RequestID: "req-1",
		Status:    domain.ResearchingStatus(1, 2),
		Findings:  []domain.Finding{{DocumentID: "A", PageContent: "p", Content: "x"}},
	}, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/research/requests/req-1", nil), "id", "req-1")
	w := httptest.NewRecorder()

	handler.Status(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "researching 1/2", resp.Status)
	assert.Len(t, resp.IndividualFindings, 1)
	assert.Equal(t, "p", resp.IndividualFindings[0].PageContent)
	assert.NotNil(t, resp.UnanalyzedDocumentIDs)
	assert.False(t, resp.Archived)
}

func TestResearchHandler_Status_NotFound(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("GetStatus", mock.Anything, "missing").Return(nil, domain.ErrRequestNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/research/requests/missing", nil), "id", "missing")
	w := httptest.NewRecorder()

	handler.Status(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResearchHandler_GetRecord(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("GetRecord", mock.Anything, "rec-1").Return(newTestRecord(), nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/research/records/rec-1", nil), "id", "rec-1")
	w := httptest.NewRecorder()

	handler.GetRecord(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp RecordResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "rec-1", resp.ID)
	assert.Equal(t, "2025-03-01T12:00:00Z", resp.ArchivedAt)
	assert.False(t, resp.Partial)
	assert.Equal(t, []string{}, resp.UnanalyzedDocumentIDs)
}

func TestResearchHandler_GetRecord_Partial(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	rec := newTestRecord()
	rec.UnanalyzedDocumentIDs = []string{"doc-b"}
	mockSvc.On("GetRecord", mock.Anything, "rec-1").Return(rec, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/research/records/rec-1", nil), "id", "rec-1")
	w := httptest.NewRecorder()

	handler.GetRecord(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp RecordResponse
	decodeData(t, w, &resp)
	assert.True(t, resp.Partial)
	assert.Equal(t, []string{"doc-b"}, resp.UnanalyzedDocumentIDs)
}

func TestResearchHandler_ListHistory(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("ListHistory", mock.Anything, service.ListHistoryInput{
		TeamID: "team-1",
		Query:  "rev",
		Cursor: "abc",
		Limit:  5,
	}).Return(&service.ListHistoryOutput{
		Items:   []*domain.ResearchRecord{newTestRecord()},
		Cursor:  "next",
		HasMore: true,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/research/records?team_id=team-1&query=rev&cursor=abc&limit=5", nil)
	w := httptest.NewRecorder()

	handler.ListHistory(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp HistoryResponse
	decodeData(t, w, &resp)
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, "next", resp.Cursor)
	assert.True(t, resp.HasMore)
	mockSvc.AssertExpectations(t)
}

func TestResearchHandler_ListHistory_BadInput(t *testing.T) {
	handler := NewResearchHandler(new(MockResearchService), nil)

	w := httptest.NewRecorder()
	handler.ListHistory(w, httptest.NewRequest(http.MethodGet, "/research/records", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.ListHistory(w, httptest.NewRequest(http.MethodGet, "/research/records?team_id=t&limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResearchHandler_Export(t *testing.T) {
	mockSvc := new(MockResearchService)
	handler := NewResearchHandler(mockSvc, nil)

	mockSvc.On("ExportURL", mock.Anything, "rec-1").Return("https://s3.example.com/records/team-1/rec-1.json?sig", nil)
	mockSvc.On("ExportURL", mock.Anything, "rec-2").Return("", domain.ErrExportNotConfigured)

	w := httptest.NewRecorder()
	handler.Export(w, withURLParam(httptest.NewRequest(http.MethodGet, "/research/records/rec-1/export", nil), "id", "rec-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	var resp ExportResponse
	decodeData(t, w, &resp)
	assert.Contains(t, resp.URL, "rec-1.json")

	w = httptest.NewRecorder()
	handler.Export(w, withURLParam(httptest.NewRequest(http.MethodGet, "/research/records/rec-2/export", nil), "id", "rec-2"))
	assert.Equal(t, http.StatusConflict, w.Code)
}
