package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type TeamRepository struct {
	pool *pgxpool.Pool
}

func NewTeamRepository(pool *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{pool: pool}
}

func (r *TeamRepository) Create(ctx context.Context, team *domain.Team) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO teams (id, slug, name, openai_api_key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		team.ID, team.Slug, team.Name, nullableString(team.OpenAIAPIKey), team.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrTeamAlreadyExists
	}
	return err
}

func (r *TeamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *TeamRepository) GetBySlug(ctx context.Context, slug string) (*domain.Team, error) {
	return r.getOne(ctx, `WHERE slug = $1`, slug)
}

func (r *TeamRepository) getOne(ctx context.Context, where string, arg string) (*domain.Team, error) {
	team, err := scanTeam(r.pool.QueryRow(ctx,
		`SELECT id, slug, name, openai_api_key, created_at FROM teams `+where,
		arg,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}

func (r *TeamRepository) List(ctx context.Context) ([]*domain.Team, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, slug, name, openai_api_key, created_at FROM teams ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*domain.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// SetAPIKey replaces the team's model key. An empty key clears it.
func (r *TeamRepository) SetAPIKey(ctx context.Context, id, apiKey string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE teams SET openai_api_key = $1 WHERE id = $2`,
		nullableString(apiKey), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var team domain.Team
	var apiKey *string
	if err := row.Scan(&team.ID, &team.Slug, &team.Name, &apiKey, &team.CreatedAt); err != nil {
		return nil, err
	}
	if apiKey != nil {
		team.OpenAIAPIKey = *apiKey
	}
	return &team, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
