package service

import (
	"context"

	"github.com/cloo-solutions/researchq/internal/domain"
)

// QueryInput is one call to the query executor.
type QueryInput struct {
	Credentials domain.Credentials
	Query       string
	Chunks      []domain.DocumentChunk
	// Attributed asks for a JSON reply that ties each answer to a numbered excerpt.
	Attributed bool
}

// QueryExecutor runs a natural-language query against document text.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, in QueryInput) (string, error)
}

// SynthesisInput is the aggregation call over all findings of a request.
type SynthesisInput struct {
	Credentials  domain.Credentials
	OverallQuery string
	Findings     []domain.Finding
}

// Synthesizer produces the overall summary of a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (string, error)
}
