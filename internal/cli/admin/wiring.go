package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/researchq/internal/config"
	"github.com/cloo-solutions/researchq/internal/notify"
	"github.com/cloo-solutions/researchq/internal/openai"
	"github.com/cloo-solutions/researchq/internal/repository"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/cloo-solutions/researchq/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// newResearchService wires the pipeline against Postgres, the model API and
// whichever of SMTP and S3 are configured.
func newResearchService(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*service.ResearchService, *repository.ResearchRequestRepository, error) {
	requestRepo := repository.NewResearchRequestRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)
	chunkRepo := repository.NewDocumentChunkRepository(pool)

	if !cfg.HasOpenAI() {
		log.Println("no fallback OpenAI key configured; teams must bring their own")
	}
	llm := openai.NewClient(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})

	var notifier service.Notifier
	if cfg.HasSMTP() {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			AppURL:   cfg.AppURL,
		})
	} else {
		notifier = notify.LogNotifier{AppURL: cfg.AppURL}
	}

	var exporter service.RecordExporter
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		exporter = s3Client
	}

	svc := service.NewResearchService(service.ResearchServiceDeps{
		Requests:    requestRepo,
		Records:     repository.NewResearchRecordRepository(pool),
		Teams:       teamRepo,
		Users:       repository.NewUserRepository(pool),
		Chunks:      chunkRepo,
		Versions:    chunkRepo,
		Executor:    llm,
		Synthesizer: llm,
		Tx:          repository.NewTxRunner(pool),
		Notifier:    notifier,
		Exporter:    exporter,
		Credentials: service.NewCredentialResolver(teamRepo, cfg.OpenAIAPIKey, cfg.OpenAIModel),
		Retry: service.RetryPolicy{
			Attempts: cfg.ChunkRetryAttempts,
			Delay:    cfg.ChunkRetryDelay,
		},
		AppURL: cfg.AppURL,
	})
	return svc, requestRepo, nil
}
