package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/researchq/internal/api/handlers"
	"github.com/cloo-solutions/researchq/internal/config"
	"github.com/cloo-solutions/researchq/internal/database"
	"github.com/cloo-solutions/researchq/internal/jobs"
	"github.com/cloo-solutions/researchq/internal/repository"
	"github.com/cloo-solutions/researchq/internal/server"
	"github.com/cloo-solutions/researchq/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the research API server together with the queue sweeper",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides RESEARCH_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", "migrations", "Directory holding the SQL migrations")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.HasSentry() {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := database.RunMigrations(cfg.DatabaseURL, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	researchSvc, requestRepo, err := newResearchService(ctx, cfg, pool)
	if err != nil {
		return err
	}
	teamRepo := repository.NewTeamRepository(pool)

	sweeper := jobs.NewResearchSweeper(researchSvc, requestRepo)
	worker := jobs.NewWorker("research-sweeper", sweeper, cfg.SweepInterval)
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go worker.Start(workerCtx)
	log.Printf("queue sweeper started (interval %s)", cfg.SweepInterval)

	var dispatcher handlers.Dispatcher
	if cfg.ProcessOnSubmit {
		dispatcher = sweeper
	}

	router := server.NewRouter(server.RouterConfig{
		Teams:           teamRepo,
		ResearchHandler: handlers.NewResearchHandler(researchSvc, dispatcher),
		HealthCheck:     pool.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	worker.Stop()
	sweeper.Wait()

	log.Println("server exited")
	return nil
}
