package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/researchq/internal/domain"
)

// CacheLookup is what history already answers for a request.
type CacheLookup struct {
	Findings []domain.Finding
	// NewDocumentIDs are the requested documents, in request order, that
	// still need processing.
	NewDocumentIDs []string
}

// FindingCache serves findings from archived records of the same team and
// user query so a document is analyzed once per query.
type FindingCache struct {
	records  ResearchRecordRepository
	versions DocumentVersionSource
}

// NewFindingCache builds a cache. versions may be nil, in which case cached
// findings are never invalidated.
func NewFindingCache(records ResearchRecordRepository, versions DocumentVersionSource) *FindingCache {
	return &FindingCache{records: records, versions: versions}
}

func (c *FindingCache) Lookup(ctx context.Context, teamID, userSearchQuery string, documentIDs []string) (*CacheLookup, error) {
	requested := domain.UniqueDocumentIDs(documentIDs)

	history, err := c.records.FindFindings(ctx, teamID, userSearchQuery, requested)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached findings: %w", err)
	}

	findings := domain.FilterFindingsByDocuments(history, requested)
	if c.versions != nil && len(findings) > 0 {
		current, err := c.versions.CurrentVersions(ctx, teamID, requested)
		if err != nil {
			return nil, fmt.Errorf("failed to load document versions: %w", err)
		}
		findings = dropStaleFindings(findings, current)
	}
	findings = domain.DedupeFindings(findings)

	return &CacheLookup{
		Findings:       findings,
		NewDocumentIDs: domain.UncoveredDocuments(requested, findings),
	}, nil
}

// dropStaleFindings removes findings produced from an older version of a
// document. Documents without a current version keep all their findings.
func dropStaleFindings(findings []domain.Finding, current map[string]string) []domain.Finding {
	out := make([]domain.Finding, 0, len(findings))
	for _, f := range findings {
		if v, ok := current[f.DocumentID]; ok && f.DocumentVersion != v {
			continue
		}
		out = append(out, f)
	}
	return out
}
