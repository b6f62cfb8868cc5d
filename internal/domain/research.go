package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DefaultOverallQuery is the aggregation instruction used when a request
// does not supply its own overall query.
const DefaultOverallQuery = "The following text is a summary of different outputs. Please provide an inclusive extended summary of the following answers:"

// DefaultSimilarityScore is applied when a request omits the score.
const DefaultSimilarityScore = 1.0

// ResearchRequest is a queued unit of research work owned by the queue until archival.
type ResearchRequest struct {
	ID                    string
	TeamID                string
	UserID                string
	DocumentIDs           []string
	UserSearchQuery       string
	OverallQuery          string
	SimilarityScore       float64
	SequentialQuery       bool
	EnhancedSearch        bool
	Status                Status
	IndividualFindings    []Finding
	UnanalyzedDocumentIDs []string
	OverallSummary        string
	CreatedAt             time.Time
}

// ResearchRecord is the immutable archive entry for a completed request.
// UnanalyzedDocumentIDs lists documents that failed and are absent from the
// findings and the summary.
type ResearchRecord struct {
	ID                    string
	TeamID                string
	UserID                string
	DocumentIDs           []string
	UserSearchQuery       string
	OverallQuery          string
	SimilarityScore       float64
	SequentialQuery       bool
	EnhancedSearch        bool
	Status                Status
	IndividualFindings    []Finding
	UnanalyzedDocumentIDs []string
	OverallSummary        string
	CreatedAt             time.Time
	ArchivedAt            time.Time
}

// NewResearchRecord copies the request parameters into an archive entry.
func NewResearchRecord(req *ResearchRequest, findings []Finding, unanalyzed []string, summary string, archivedAt time.Time) *ResearchRecord {
	docIDs := make([]string, len(req.DocumentIDs))
	copy(docIDs, req.DocumentIDs)
	return &ResearchRecord{
		ID:                    req.ID,
		TeamID:                req.TeamID,
		UserID:                req.UserID,
		DocumentIDs:           docIDs,
		UserSearchQuery:       req.UserSearchQuery,
		OverallQuery:          req.OverallQuery,
		SimilarityScore:       req.SimilarityScore,
		SequentialQuery:       req.SequentialQuery,
		EnhancedSearch:        req.EnhancedSearch,
		Status:                StatusCompleted,
		IndividualFindings:    findings,
		UnanalyzedDocumentIDs: append([]string{}, unanalyzed...),
		OverallSummary:        summary,
		CreatedAt:             req.CreatedAt,
		ArchivedAt:            archivedAt,
	}
}

// Partial reports whether some documents of the record were never analyzed.
func (r *ResearchRecord) Partial() bool {
	return len(r.UnanalyzedDocumentIDs) > 0
}

// Fingerprint identifies byte-identical requests.
type Fingerprint struct {
	TeamID          string
	UserSearchQuery string
	OverallQuery    string
	DocumentIDs     []string
}

// NewFingerprint builds a fingerprint with canonical document ids.
func NewFingerprint(teamID, userSearchQuery, overallQuery string, documentIDs []string) Fingerprint {
	return Fingerprint{
		TeamID:          teamID,
		UserSearchQuery: userSearchQuery,
		OverallQuery:    overallQuery,
		DocumentIDs:     CanonicalDocumentIDs(documentIDs),
	}
}

// CanonicalDocumentIDs returns the sorted set of non-empty ids.
func CanonicalDocumentIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// UniqueDocumentIDs drops blanks and repeats while keeping first-seen order.
func UniqueDocumentIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ValidateResearchRequest validates a ResearchRequest instance
func ValidateResearchRequest(r *ResearchRequest) error {
	if r == nil {
		return fmt.Errorf("research request cannot be nil")
	}

	if r.ID == "" {
		return fmt.Errorf("research request ID is required")
	}

	if r.TeamID == "" {
		return fmt.Errorf("research request TeamID is required")
	}

	if r.UserID == "" {
		return fmt.Errorf("research request UserID is required")
	}

	if len(r.DocumentIDs) == 0 {
		return fmt.Errorf("research request DocumentIDs cannot be empty")
	}

	if strings.TrimSpace(r.UserSearchQuery) == "" {
		return fmt.Errorf("research request UserSearchQuery is required")
	}

	if !r.Status.Valid() {
		return fmt.Errorf("research request Status is invalid: %s", r.Status)
	}

	return nil
}

// ResultPath is the application route that renders an archived record.
func ResultPath(teamSlug, recordID string) string {
	return "/teams/" + url.PathEscape(teamSlug) + "/ai-result?id=" + url.QueryEscape(recordID)
}
