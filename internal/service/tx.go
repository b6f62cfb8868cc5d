package service

import (
	"context"

	"github.com/cloo-solutions/researchq/internal/domain"
)

// ArchiveRequestRepository is the queue side of an archival transaction.
type ArchiveRequestRepository interface {
	Delete(ctx context.Context, id string) error
}

// ArchiveRecordRepository is the archive side of an archival transaction.
type ArchiveRecordRepository interface {
	Create(ctx context.Context, rec *domain.ResearchRecord) error
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Requests() ArchiveRequestRepository
	Records() ArchiveRecordRepository
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
