package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/researchq/internal/api"
	"github.com/cloo-solutions/researchq/internal/api/middleware"
	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/go-chi/chi/v5"
)

type ResearchService interface {
	Submit(ctx context.Context, input service.SubmitInput) (*service.SubmitResult, error)
	ProcessNext(ctx context.Context, teamID, requestID string) (*domain.ResearchRecord, error)
	GetStatus(ctx context.Context, requestID string) (*service.StatusResult, error)
	GetRecord(ctx context.Context, id string) (*domain.ResearchRecord, error)
	ListHistory(ctx context.Context, input service.ListHistoryInput) (*service.ListHistoryOutput, error)
	ExportURL(ctx context.Context, recordID string) (string, error)
}

// Dispatcher processes a queued request in the background.
type Dispatcher interface {
	Dispatch(teamID, requestID string)
}

type ResearchHandler struct {
	svc        ResearchService
	dispatcher Dispatcher
}

// NewResearchHandler builds the handler. With a nil dispatcher submissions
// wait for the sweep.
func NewResearchHandler(svc ResearchService, dispatcher Dispatcher) *ResearchHandler {
	return &ResearchHandler{svc: svc, dispatcher: dispatcher}
}

type SubmitResearchRequest struct {
	TeamID          string   `json:"team_id"`
	UserID          string   `json:"user_id"`
	DocumentIDs     []string `json:"document_ids"`
	UserSearchQuery string   `json:"user_search_query"`
	OverallQuery    string   `json:"overall_query"`
	SimilarityScore float64  `json:"similarity_score"`
	SequentialQuery *bool    `json:"sequential_query"`
	EnhancedSearch  bool     `json:"enhanced_search"`
}

type SubmitResearchResponse struct {
	RedirectTo string           `json:"redirect_to,omitempty"`
	RecordID   string           `json:"record_id,omitempty"`
	Request    *RequestResponse `json:"request,omitempty"`
}

type ProcessResearchRequest struct {
	TeamID    string `json:"team_id"`
	RequestID string `json:"request_id"`
}

type ProcessResearchResponse struct {
	Processed bool            `json:"processed"`
	Record    *RecordResponse `json:"record,omitempty"`
}

type FindingResponse struct {
	DocumentID      string `json:"document_id"`
	DocumentVersion string `json:"document_version,omitempty"`
	Title           string `json:"title"`
	Page            string `json:"page"`
	PageContent     string `json:"page_content"`
	Content         string `json:"content"`
}

type RequestResponse struct {
	ID              string   `json:"id"`
	TeamID          string   `json:"team_id"`
	UserID          string   `json:"user_id"`
	DocumentIDs     []string `json:"document_ids"`
	UserSearchQuery string   `json:"user_search_query"`
	OverallQuery    string   `json:"overall_query"`
	SimilarityScore float64  `json:"similarity_score"`
	SequentialQuery bool     `json:"sequential_query"`
	EnhancedSearch  bool     `json:"enhanced_search"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
}

type StatusResponse struct {
	RequestID             string            `json:"request_id"`
	Status                string            `json:"status"`
	IndividualFindings    []FindingResponse `json:"individual_findings"`
	UnanalyzedDocumentIDs []string          `json:"unanalyzed_document_ids"`
	OverallSummary        string            `json:"overall_summary"`
	Archived              bool              `json:"archived"`
}

type RecordResponse struct {
	ID                    string            `json:"id"`
	TeamID                string            `json:"team_id"`
	UserID                string            `json:"user_id"`
	DocumentIDs           []string          `json:"document_ids"`
	UserSearchQuery       string            `json:"user_search_query"`
	OverallQuery          string            `json:"overall_query"`
	SimilarityScore       float64           `json:"similarity_score"`
	SequentialQuery       bool              `json:"sequential_query"`
	EnhancedSearch        bool              `json:"enhanced_search"`
	Status                string            `json:"status"`
	IndividualFindings    []FindingResponse `json:"individual_findings"`
	UnanalyzedDocumentIDs []string          `json:"unanalyzed_document_ids"`
	Partial               bool              `json:"partial"`
	OverallSummary        string            `json:"overall_summary"`
	CreatedAt             string            `json:"created_at"`
	ArchivedAt            string            `json:"archived_at"`
}

type HistoryResponse struct {
	Items   []*RecordResponse `json:"items"`
	Cursor  string            `json:"cursor,omitempty"`
	HasMore bool              `json:"has_more"`
}

type ExportResponse struct {
	URL string `json:"url"`
}

func findingsToResponse(findings []domain.Finding) []FindingResponse {
	out := make([]FindingResponse, 0, len(findings))
	for _, f := range findings {
		out = append(out, FindingResponse{
			DocumentID:      f.DocumentID,
			DocumentVersion: f.DocumentVersion,
			Title:           f.Title,
			Page:            f.Page,
			PageContent:     f.PageContent,
			Content:         f.Content,
		})
	}
	return out
}

func requestToResponse(req *domain.ResearchRequest) *RequestResponse {
	return &RequestResponse{
		ID:              req.ID,
		TeamID:          req.TeamID,
		UserID:          req.UserID,
		DocumentIDs:     req.DocumentIDs,
		UserSearchQuery: req.UserSearchQuery,
		OverallQuery:    req.OverallQuery,
		SimilarityScore: req.SimilarityScore,
		SequentialQuery: req.SequentialQuery,
		EnhancedSearch:  req.EnhancedSearch,
		Status:          string(req.Status),
		CreatedAt:       req.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func recordToResponse(rec *domain.ResearchRecord) *RecordResponse {
	unanalyzed := rec.UnanalyzedDocumentIDs
	if unanalyzed == nil {
		unanalyzed = []string{}
	}
	return &RecordResponse{
		ID:                    rec.ID,
		TeamID:                rec.TeamID,
		UserID:                rec.UserID,
		DocumentIDs:           rec.DocumentIDs,
		UserSearchQuery:       rec.UserSearchQuery,
		OverallQuery:          rec.OverallQuery,
		SimilarityScore:       rec.SimilarityScore,
		SequentialQuery:       rec.SequentialQuery,
		EnhancedSearch:        rec.EnhancedSearch,
		Status:                string(rec.Status),
		IndividualFindings:    findingsToResponse(rec.IndividualFindings),
		UnanalyzedDocumentIDs: unanalyzed,
		Partial:               rec.Partial(),
		OverallSummary:        rec.OverallSummary,
		CreatedAt:             rec.CreatedAt.UTC().Format(time.RFC3339),
		ArchivedAt:            rec.ArchivedAt.UTC().Format(time.RFC3339),
	}
}

// teamID prefers the explicit value and falls back to the X-Team-ID scope.
func teamID(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return middleware.GetTeamID(r.Context())
}

// Submit returns 200 with a redirect when an identical record exists and
// 202 with the queued request otherwise.
func (h *ResearchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Submit(r.Context(), service.SubmitInput{
		TeamID:          teamID(r, req.TeamID),
		UserID:          req.UserID,
		DocumentIDs:     req.DocumentIDs,
		UserSearchQuery: req.UserSearchQuery,
		OverallQuery:    req.OverallQuery,
		SimilarityScore: req.SimilarityScore,
		SequentialQuery: req.SequentialQuery,
		EnhancedSearch:  req.EnhancedSearch,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	if result.Request == nil {
		api.Success(w, http.StatusOK, SubmitResearchResponse{
			RedirectTo: result.RedirectTo,
			RecordID:   result.RecordID,
		})
		return
	}

	if h.dispatcher != nil {
		h.dispatcher.Dispatch(result.Request.TeamID, result.Request.ID)
	}
	api.Success(w, http.StatusAccepted, SubmitResearchResponse{
		Request: requestToResponse(result.Request),
	})
}

// Process runs one claimable request synchronously.
func (h *ResearchHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	team := teamID(r, req.TeamID)
	if team == "" {
		api.Error(w, http.StatusBadRequest, "team_id is required")
		return
	}

	rec, err := h.svc.ProcessNext(r.Context(), team, req.RequestID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	resp := ProcessResearchResponse{Processed: rec != nil}
	if rec != nil {
		resp.Record = recordToResponse(rec)
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *ResearchHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	status, err := h.svc.GetStatus(r.Context(), id)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	unanalyzed := status.UnanalyzedDocumentIDs
	if unanalyzed == nil {
		unanalyzed = []string{}
	}
	api.Success(w, http.StatusOK, StatusResponse{
		RequestID:             status.RequestID,
		Status:                string(status.Status),
		IndividualFindings:    findingsToResponse(status.Findings),
		UnanalyzedDocumentIDs: unanalyzed,
		OverallSummary:        status.OverallSummary,
		Archived:              status.Archived,
	})
}

func (h *ResearchHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	rec, err := h.svc.GetRecord(r.Context(), id)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, recordToResponse(rec))
}

func (h *ResearchHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	team := teamID(r, q.Get("team_id"))
	if team == "" {
		api.Error(w, http.StatusBadRequest, "team_id is required")
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	out, err := h.svc.ListHistory(r.Context(), service.ListHistoryInput{
		TeamID: team,
		Query:  q.Get("query"),
		Cursor: q.Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	items := make([]*RecordResponse, 0, len(out.Items))
	for _, rec := range out.Items {
		items = append(items, recordToResponse(rec))
	}
	api.Success(w, http.StatusOK, HistoryResponse{
		Items:   items,
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	})
}

func (h *ResearchHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	link, err := h.svc.ExportURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, ExportResponse{URL: link})
}
