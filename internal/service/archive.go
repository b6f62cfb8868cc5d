package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/telemetry"
)

// CompletionNotice tells a requester their research is ready.
type CompletionNotice struct {
	Email           string
	TeamSlug        string
	RecordID        string
	UserSearchQuery string
	// Unanalyzed counts documents left out of a partial record.
	Unanalyzed      int
}

// Notifier delivers completion notices. Delivery is best effort.
type Notifier interface {
	NotifyResearchComplete(ctx context.Context, notice CompletionNotice) error
}

// RecordExporter writes archived records to object storage.
type RecordExporter interface {
	ExportRecord(ctx context.Context, rec *domain.ResearchRecord) error
	ExportURL(ctx context.Context, rec *domain.ResearchRecord) (string, error)
}

// Archiver moves a completed request into the archive.
type Archiver struct {
	tx       TxRunner
	teams    TeamRepository
	users    UserRepository
	notifier Notifier
	exporter RecordExporter
	now      func() time.Time
}

// NewArchiver builds an archiver. notifier and exporter may be nil.
func NewArchiver(tx TxRunner, teams TeamRepository, users UserRepository, notifier Notifier, exporter RecordExporter) *Archiver {
	return &Archiver{
		tx:       tx,
		teams:    teams,
		users:    users,
		notifier: notifier,
		exporter: exporter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Archive creates the record and deletes the queue row in one transaction,
// then notifies and exports. Only the transaction can fail the call.
func (a *Archiver) Archive(ctx context.Context, req *domain.ResearchRequest, result *ProcessResult, summary string) (*domain.ResearchRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "Archiver.Archive", telemetry.SpanAttributes{
		TeamID:    req.TeamID,
		RequestID: req.ID,
		Operation: "archive",
	})
	defer span.End()

	rec := domain.NewResearchRecord(req, result.Findings, result.Unanalyzed, summary, a.now())

	err := a.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Records().Create(ctx, rec); err != nil {
			return fmt.Errorf("failed to create record: %w", err)
		}
		if err := repos.Requests().Delete(ctx, req.ID); err != nil {
			return fmt.Errorf("failed to delete queue row: %w", err)
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	a.notify(ctx, rec)
	a.export(ctx, rec)
	return rec, nil
}

func (a *Archiver) notify(ctx context.Context, rec *domain.ResearchRecord) {
	if a.notifier == nil {
		return
	}

	user, err := a.users.GetByID(ctx, rec.UserID)
	if err != nil {
		a.swallow(ctx, fmt.Errorf("notify record %s: %w", rec.ID, err))
		return
	}
	team, err := a.teams.GetByID(ctx, rec.TeamID)
	if err != nil {
		a.swallow(ctx, fmt.Errorf("notify record %s: %w", rec.ID, err))
		return
	}

	err = a.notifier.NotifyResearchComplete(ctx, CompletionNotice{
		Email:           user.Email,
		TeamSlug:        team.Slug,
		RecordID:        rec.ID,
		UserSearchQuery: rec.UserSearchQuery,
		Unanalyzed:      len(rec.UnanalyzedDocumentIDs),
	})
	if err != nil {
		a.swallow(ctx, fmt.Errorf("notify record %s: %w", rec.ID, err))
	}
}

func (a *Archiver) export(ctx context.Context, rec *domain.ResearchRecord) {
	if a.exporter == nil {
		return
	}
	if err := a.exporter.ExportRecord(ctx, rec); err != nil {
		a.swallow(ctx, fmt.Errorf("export record %s: %w", rec.ID, err))
	}
}

func (a *Archiver) swallow(ctx context.Context, err error) {
	log.Printf("research: %v", err)
	telemetry.CaptureError(ctx, err)
}
