package repository

import (
	"context"

	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner runs archival steps in one Postgres transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&txRepos{tx: tx})
	})
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Requests() service.ArchiveRequestRepository {
	return NewResearchRequestRepositoryWithTx(r.tx)
}

func (r *txRepos) Records() service.ArchiveRecordRepository {
	return NewResearchRecordRepositoryWithTx(r.tx)
}
