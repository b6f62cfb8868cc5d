package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloo-solutions/researchq/internal/config"
	"github.com/cloo-solutions/researchq/internal/database"
	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func getDBPool(ctx context.Context) (*pgxpool.Pool, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, cfg, nil
}

type teamGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Team, error)
}

// resolveTeam accepts either a team id or a slug.
func resolveTeam(ctx context.Context, teams teamGetter, ref string) (*domain.Team, error) {
	if _, err := uuid.Parse(ref); err == nil {
		team, err := teams.GetByID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("team not found: %s", ref)
		}
		return team, nil
	}

	team, err := teams.GetBySlug(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrTeamNotFound) {
			return nil, fmt.Errorf("team not found: %s", ref)
		}
		return nil, err
	}
	return team, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
