package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/pagination"
	"github.com/cloo-solutions/researchq/internal/telemetry"
)

const maxHistoryLimit = 100

// ResearchServiceDeps wires the research pipeline. Versions, Notifier and
// Exporter are optional.
type ResearchServiceDeps struct {
	Requests    ResearchRequestRepository
	Records     ResearchRecordRepository
	Teams       TeamRepository
	Users       UserRepository
	Chunks      ChunkStore
	Versions    DocumentVersionSource
	Executor    QueryExecutor
	Synthesizer Synthesizer
	Tx          TxRunner
	Notifier    Notifier
	Exporter    RecordExporter
	Credentials CredentialSource
	Retry       RetryPolicy
	// AppURL prefixes redirect links to archived records.
	AppURL  string
	UUIDGen UUIDGenerator
}

// ResearchService is the entry point for submitting, processing and reading
// research requests.
type ResearchService struct {
	requests    ResearchRequestRepository
	records     ResearchRecordRepository
	teams       TeamRepository
	users       UserRepository
	credentials CredentialSource
	cache       *FindingCache
	processor   *DocumentProcessor
	synthesizer Synthesizer
	archiver    *Archiver
	exporter    RecordExporter
	uuidGen     UUIDGenerator
	appURL      string
	now         func() time.Time
}

func NewResearchService(deps ResearchServiceDeps) *ResearchService {
	uuidGen := deps.UUIDGen
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	credentials := deps.Credentials
	if credentials == nil {
		credentials = NewCredentialResolver(deps.Teams, "", "")
	}
	return &ResearchService{
		requests:    deps.Requests,
		records:     deps.Records,
		teams:       deps.Teams,
		users:       deps.Users,
		credentials: credentials,
		cache:       NewFindingCache(deps.Records, deps.Versions),
		processor:   NewDocumentProcessor(deps.Chunks, deps.Executor, deps.Requests, deps.Retry),
		synthesizer: deps.Synthesizer,
		archiver:    NewArchiver(deps.Tx, deps.Teams, deps.Users, deps.Notifier, deps.Exporter),
		exporter:    deps.Exporter,
		uuidGen:     uuidGen,
		appURL:      strings.TrimRight(deps.AppURL, "/"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitInput is a research submission. Zero values take the defaults of the
// submit endpoint: default overall query, similarity 1.0, sequential queries.
type SubmitInput struct {
	TeamID          string
	UserID          string
	DocumentIDs     []string
	UserSearchQuery string
	OverallQuery    string
	SimilarityScore float64
	SequentialQuery *bool
	EnhancedSearch  bool
}

// SubmitResult is either a redirect to an identical archived record or the
// newly queued request.
type SubmitResult struct {
	RedirectTo string
	RecordID   string
	Request    *domain.ResearchRequest
}

// Submit enqueues a request unless an identical one is already archived.
func (s *ResearchService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResearchService.Submit", telemetry.SpanAttributes{
		TeamID:    input.TeamID,
		Operation: "submit",
	})
	defer span.End()

	docIDs := domain.UniqueDocumentIDs(input.DocumentIDs)
	if err := validateSubmit(input, docIDs); err != nil {
		return nil, err
	}
	if _, err := s.teams.GetByID(ctx, input.TeamID); err != nil {
		return nil, fmt.Errorf("failed to resolve team %s: %w", input.TeamID, err)
	}
	if _, err := s.users.GetByID(ctx, input.UserID); err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", input.UserID, err)
	}

	overallQuery := input.OverallQuery
	if strings.TrimSpace(overallQuery) == "" {
		overallQuery = domain.DefaultOverallQuery
	}

	fp := domain.NewFingerprint(input.TeamID, input.UserSearchQuery, overallQuery, docIDs)
	match, err := s.records.FindExactMatch(ctx, fp)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to look up archived records: %w", err)
	}
	if match != nil {
		return &SubmitResult{
			RedirectTo: s.appURL + domain.ResultPath(match.TeamSlug, match.RecordID),
			RecordID:   match.RecordID,
		}, nil
	}

	similarity := input.SimilarityScore
	if similarity <= 0 {
		similarity = domain.DefaultSimilarityScore
	}
	sequential := true
	if input.SequentialQuery != nil {
		sequential = *input.SequentialQuery
	}

	req := &domain.ResearchRequest{
		ID:                    s.uuidGen.NewString(),
		TeamID:                input.TeamID,
		UserID:                input.UserID,
		DocumentIDs:           docIDs,
		UserSearchQuery:       input.UserSearchQuery,
		OverallQuery:          overallQuery,
		SimilarityScore:       similarity,
		SequentialQuery:       sequential,
		EnhancedSearch:        input.EnhancedSearch,
		Status:                domain.StatusInQueue,
		IndividualFindings:    []domain.Finding{},
		UnanalyzedDocumentIDs: docIDs,
		CreatedAt:             s.now(),
	}
	if err := domain.ValidateResearchRequest(req); err != nil {
		return nil, domain.ErrMissingRequiredField.Wrap(err)
	}

	if err := s.requests.Create(ctx, req); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to enqueue request: %w", err)
	}

	log.Printf("research: queued request %s for team %s (%d documents)", req.ID, req.TeamID, len(docIDs))
	return &SubmitResult{Request: req}, nil
}

func validateSubmit(input SubmitInput, docIDs []string) error {
	switch {
	case input.TeamID == "":
		return domain.ErrMissingRequiredField.Wrap(errors.New("team_id is required"))
	case input.UserID == "":
		return domain.ErrMissingRequiredField.Wrap(errors.New("user_id is required"))
	case strings.TrimSpace(input.UserSearchQuery) == "":
		return domain.ErrMissingRequiredField.Wrap(errors.New("user_search_query is required"))
	case len(docIDs) == 0:
		return domain.ErrMissingRequiredField.Wrap(errors.New("document_ids cannot be empty"))
	}
	return nil
}

// ProcessNext drives one claimable request of the team to completion: the
// named request when requestID is set, else the oldest waiting one. It
// returns a nil record when nothing was claimable.
func (s *ResearchService) ProcessNext(ctx context.Context, teamID, requestID string) (*domain.ResearchRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResearchService.ProcessNext", telemetry.SpanAttributes{
		TeamID:    teamID,
		RequestID: requestID,
		Operation: "process",
	})
	defer span.End()

	if teamID == "" {
		return nil, domain.ErrMissingRequiredField.Wrap(errors.New("team_id is required"))
	}

	// Credentials are checked before the claim so a misconfigured team leaves
	// its rows waiting in queue.
	creds, err := s.credentials.Resolve(ctx, teamID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	req, err := s.requests.Claim(ctx, teamID, requestID)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to claim request: %w", err)
	}
	if req == nil {
		return nil, nil
	}
	span.SetTag("request_id", req.ID)

	rec, err := s.process(ctx, req, creds)
	if err != nil {
		span.SetError(err)
		log.Printf("research: request %s failed: %v", req.ID, err)
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}

	log.Printf("research: archived request %s (%d findings)", rec.ID, len(rec.IndividualFindings))
	return rec, nil
}

func (s *ResearchService) process(ctx context.Context, req *domain.ResearchRequest, creds domain.Credentials) (*domain.ResearchRecord, error) {
	lookup, err := s.cache.Lookup(ctx, req.TeamID, req.UserSearchQuery, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	telemetry.AddBreadcrumb(ctx, "cache", fmt.Sprintf("%d cached findings, %d documents to process",
		len(lookup.Findings), len(lookup.NewDocumentIDs)))

	result, err := s.processor.Process(ctx, ProcessJob{
		Request:     req,
		DocumentIDs: lookup.NewDocumentIDs,
		Cached:      lookup.Findings,
		Credentials: creds,
	})
	if err != nil {
		return nil, err
	}
	// With nothing to summarize the row stays at its last status.
	if result.Failures != nil && len(result.Findings) == 0 {
		return nil, result.Failures
	}
	if result.Failures != nil {
		log.Printf("research: request %s continues without %d unanalyzed documents", req.ID, len(result.Unanalyzed))
	}

	summary, err := s.synthesize(ctx, req, result.Findings, creds)
	if err != nil {
		return nil, err
	}

	if err := s.requests.Complete(ctx, req.ID, result.Status, result.Findings, result.Unanalyzed, summary); err != nil {
		return nil, fmt.Errorf("failed to mark request completed: %w", err)
	}

	return s.archiver.Archive(ctx, req, result, summary)
}

func (s *ResearchService) synthesize(ctx context.Context, req *domain.ResearchRequest, findings []domain.Finding, creds domain.Credentials) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResearchService.Synthesize", telemetry.SpanAttributes{
		TeamID:    req.TeamID,
		RequestID: req.ID,
		Operation: "synthesize",
	})
	defer span.End()

	overallQuery := req.OverallQuery
	if strings.TrimSpace(overallQuery) == "" {
		overallQuery = domain.DefaultOverallQuery
	}

	summary, err := s.synthesizer.Synthesize(ctx, SynthesisInput{
		Credentials:  creds,
		OverallQuery: overallQuery,
		Findings:     findings,
	})
	if err != nil {
		span.SetError(err)
		return "", domain.ErrSynthesis.Wrap(err)
	}
	return summary, nil
}

// StatusResult describes a request in the queue or in the archive.
type StatusResult struct {
	RequestID             string
	Status                domain.Status
	Findings              []domain.Finding
	UnanalyzedDocumentIDs []string
	OverallSummary        string
	Archived              bool
}

// GetStatus reports the queue row while it exists and the archived record after.
func (s *ResearchService) GetStatus(ctx context.Context, requestID string) (*StatusResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResearchService.GetStatus", telemetry.SpanAttributes{
		RequestID: requestID,
		Operation: "status",
	})
	defer span.End()

	req, err := s.requests.GetByID(ctx, requestID)
	if err == nil {
		return &StatusResult{
			RequestID:             req.ID,
			Status:                req.Status,
			Findings:              req.IndividualFindings,
			UnanalyzedDocumentIDs: req.UnanalyzedDocumentIDs,
			OverallSummary:        req.OverallSummary,
		}, nil
	}
	if !errors.Is(err, domain.ErrRequestNotFound) {
		return nil, err
	}

	rec, err := s.records.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return &StatusResult{
		RequestID:             rec.ID,
		Status:                domain.StatusCompleted,
		Findings:              rec.IndividualFindings,
		UnanalyzedDocumentIDs: rec.UnanalyzedDocumentIDs,
		OverallSummary:        rec.OverallSummary,
		Archived:              true,
	}, nil
}

func (s *ResearchService) GetRecord(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResearchService.GetRecord", telemetry.SpanAttributes{
		RequestID: id,
		Operation: "get_record",
	})
	defer span.End()

	return s.records.GetByID(ctx, id)
}

type ListHistoryInput struct {
	TeamID string
	Query  string
	Cursor string
	Limit  int
}

type ListHistoryOutput struct {
	Items   []*domain.ResearchRecord
	Cursor  string
	HasMore bool
}

// ListHistory pages through a team's archive, newest first. Query filters on
// the user search query, case-insensitively.
func (s *ResearchService) ListHistory(ctx context.Context, input ListHistoryInput) (*ListHistoryOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResearchService.ListHistory", telemetry.SpanAttributes{
		TeamID:    input.TeamID,
		Operation: "list_history",
	})
	defer span.End()

	if input.TeamID == "" {
		return nil, domain.ErrMissingRequiredField.Wrap(errors.New("team_id is required"))
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	limit := input.Limit
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	page, err := s.records.ListByTeam(ctx, HistoryFilter{
		TeamID: input.TeamID,
		Query:  input.Query,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	return &ListHistoryOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// ExportURL returns a time-limited download link for an archived record.
func (s *ResearchService) ExportURL(ctx context.Context, recordID string) (string, error) {
	if s.exporter == nil {
		return "", domain.ErrExportNotConfigured
	}

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return "", err
	}
	return s.exporter.ExportURL(ctx, rec)
}
