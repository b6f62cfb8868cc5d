package service

import (
	"context"

	"github.com/cloo-solutions/researchq/internal/domain"
)

// CredentialSource resolves the model credentials used for a team's requests.
type CredentialSource interface {
	Resolve(ctx context.Context, teamID string) (domain.Credentials, error)
}

// CredentialResolver prefers the team's own key and falls back to the
// deployment key.
type CredentialResolver struct {
	teams       TeamRepository
	fallbackKey string
	model       string
}

func NewCredentialResolver(teams TeamRepository, fallbackKey, model string) *CredentialResolver {
	return &CredentialResolver{teams: teams, fallbackKey: fallbackKey, model: model}
}

func (r *CredentialResolver) Resolve(ctx context.Context, teamID string) (domain.Credentials, error) {
	team, err := r.teams.GetByID(ctx, teamID)
	if err != nil {
		return domain.Credentials{}, err
	}

	key := team.OpenAIAPIKey
	if key == "" {
		key = r.fallbackKey
	}
	if key == "" {
		return domain.Credentials{}, domain.ErrMissingCredentials
	}
	return domain.Credentials{APIKey: key, Model: r.model}, nil
}
