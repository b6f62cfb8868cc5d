package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/telemetry"
)

var errNoChunks = errors.New("document has no indexed chunks")

// RetryPolicy bounds chunk retrieval while the index catches up with ingestion.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 5 * time.Second}
}

// ProgressRecorder persists partial progress of a claimed request. The write
// applies only while the row still holds from.
type ProgressRecorder interface {
	UpdateProgress(ctx context.Context, id string, from, to domain.Status, findings []domain.Finding, unanalyzed []string) error
}

// ProcessJob is the uncached part of one claimed request.
type ProcessJob struct {
	Request     *domain.ResearchRequest
	DocumentIDs []string
	Cached      []domain.Finding
	Credentials domain.Credentials
}

// ProcessResult holds the merged findings, the documents that failed and
// the last status written to the queue row. Failures joins the document
// errors and is nil when every document was analyzed.
type ProcessResult struct {
	Findings   []domain.Finding
	Unanalyzed []string
	Status     domain.Status
	Failures   error
}

// DocumentProcessor turns documents into findings, one document at a time.
type DocumentProcessor struct {
	chunks   ChunkStore
	executor QueryExecutor
	progress ProgressRecorder
	retry    RetryPolicy
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDocumentProcessor(chunks ChunkStore, executor QueryExecutor, progress ProgressRecorder, retry RetryPolicy) *DocumentProcessor {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &DocumentProcessor{
		chunks:   chunks,
		executor: executor,
		progress: progress,
		retry:    retry,
		sleep:    sleepContext,
	}
}

// Process analyzes job.DocumentIDs in order. A failing document does not stop
// the others; it stays in the unanalyzed list and its error is joined into
// ProcessResult.Failures. Progress is persisted after each analyzed document.
// The returned error is reserved for failures that stop the whole batch:
// cancellation and progress writes.
func (p *DocumentProcessor) Process(ctx context.Context, job ProcessJob) (*ProcessResult, error) {
	req := job.Request
	total := len(job.DocumentIDs)
	running := domain.DedupeFindings(job.Cached)
	pending := append([]string(nil), job.DocumentIDs...)

	current := req.Status
	advance := func(next domain.Status) error {
		if err := p.progress.UpdateProgress(ctx, req.ID, current, next, running, pending); err != nil {
			return fmt.Errorf("failed to record progress: %w", err)
		}
		current = next
		return nil
	}

	if err := advance(domain.ResearchingStatus(0, total)); err != nil {
		return nil, err
	}

	done := 0
	var errs []error
	for _, docID := range job.DocumentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		findings, err := p.processDocument(ctx, job, docID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Printf("research: request %s document %s failed: %v", req.ID, docID, err)
			telemetry.CaptureError(ctx, err)
			errs = append(errs, fmt.Errorf("document %s: %w", docID, err))
			continue
		}

		done++
		running = domain.MergeFindings(running, findings)
		pending = removeID(pending, docID)
		if err := advance(domain.ResearchingStatus(done, total)); err != nil {
			return nil, err
		}
	}

	result := &ProcessResult{Findings: running, Unanalyzed: pending, Status: current}
	if len(errs) > 0 {
		result.Failures = fmt.Errorf("%d of %d documents failed: %w", len(errs), total, errors.Join(errs...))
	}
	return result, nil
}

func (p *DocumentProcessor) processDocument(ctx context.Context, job ProcessJob, docID string) ([]domain.Finding, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentProcessor.ProcessDocument", telemetry.SpanAttributes{
		TeamID:     job.Request.TeamID,
		RequestID:  job.Request.ID,
		DocumentID: docID,
		Operation:  "process_document",
	})
	defer span.End()

	chunks, err := p.fetchWithRetry(ctx, job.Request.TeamID, docID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	var findings []domain.Finding
	if job.Request.SequentialQuery {
		findings, err = p.querySequential(ctx, job, chunks)
	} else {
		findings, err = p.queryBatched(ctx, job, chunks)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	for i := range findings {
		findings[i].DocumentID = docID
	}
	return findings, nil
}

// fetchWithRetry treats an empty chunk set like an error: the document may
// not be indexed yet.
func (p *DocumentProcessor) fetchWithRetry(ctx context.Context, teamID, docID string) ([]domain.DocumentChunk, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retry.Attempts; attempt++ {
		chunks, err := p.chunks.FetchChunks(ctx, teamID, docID)
		if err == nil && len(chunks) > 0 {
			return chunks, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errNoChunks
		}

		if attempt < p.retry.Attempts {
			telemetry.AddBreadcrumb(ctx, "retrieval", fmt.Sprintf("document %s attempt %d empty, retrying", docID, attempt))
			if err := p.sleep(ctx, p.retry.Delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, domain.ErrRetrievalExhausted.Wrap(fmt.Errorf("after %d attempts: %w", p.retry.Attempts, lastErr))
}

func (p *DocumentProcessor) querySequential(ctx context.Context, job ProcessJob, chunks []domain.DocumentChunk) ([]domain.Finding, error) {
	findings := make([]domain.Finding, 0, len(chunks))
	for _, chunk := range chunks {
		content, err := p.executor.ExecuteQuery(ctx, QueryInput{
			Credentials: job.Credentials,
			Query:       job.Request.UserSearchQuery,
			Chunks:      []domain.DocumentChunk{chunk},
		})
		if err != nil {
			return nil, domain.ErrQueryExecution.Wrap(err)
		}
		findings = append(findings, chunk.FindingFor(strings.TrimSpace(content)))
	}
	return findings, nil
}

func (p *DocumentProcessor) queryBatched(ctx context.Context, job ProcessJob, chunks []domain.DocumentChunk) ([]domain.Finding, error) {
	content, err := p.executor.ExecuteQuery(ctx, QueryInput{
		Credentials: job.Credentials,
		Query:       job.Request.UserSearchQuery,
		Chunks:      chunks,
		Attributed:  true,
	})
	if err != nil {
		return nil, domain.ErrQueryExecution.Wrap(err)
	}
	return parseAttributedFindings(content, chunks), nil
}

type attributedReply struct {
	Findings []struct {
		Excerpt int    `json:"excerpt"`
		Content string `json:"content"`
	} `json:"findings"`
}

// parseAttributedFindings binds each answer to its numbered excerpt. Answers
// for the same excerpt are joined. Output that cannot be attributed becomes a
// single finding over the whole document.
func parseAttributedFindings(content string, chunks []domain.DocumentChunk) []domain.Finding {
	var reply attributedReply
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &reply); err == nil {
		byExcerpt := make(map[int][]string)
		var order []int
		for _, f := range reply.Findings {
			idx := f.Excerpt - 1
			text := strings.TrimSpace(f.Content)
			if idx < 0 || idx >= len(chunks) || text == "" {
				continue
			}
			if _, ok := byExcerpt[idx]; !ok {
				order = append(order, idx)
			}
			byExcerpt[idx] = append(byExcerpt[idx], text)
		}
		if len(order) > 0 {
			findings := make([]domain.Finding, 0, len(order))
			for _, idx := range order {
				findings = append(findings, chunks[idx].FindingFor(strings.Join(byExcerpt[idx], "\n\n")))
			}
			return findings
		}
	}

	excerpts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		excerpts = append(excerpts, c.Content)
	}
	whole := chunks[0]
	whole.Content = strings.Join(excerpts, "\n\n")
	return []domain.Finding{whole.FindingFor(strings.TrimSpace(content))}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
