package admin

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTeams struct {
	byID   map[string]*domain.Team
	bySlug map[string]*domain.Team
	err    error
}

func (f *fakeTeams) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	if t, ok := f.byID[id]; ok {
		return t, nil
	}
	return nil, domain.ErrTeamNotFound
}

func (f *fakeTeams) GetBySlug(ctx context.Context, slug string) (*domain.Team, error) {
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.bySlug[slug]; ok {
		return t, nil
	}
	return nil, domain.ErrTeamNotFound
}

func TestResolveTeam(t *testing.T) {
	team := &domain.Team{ID: "6f1c1f4e-2b7a-4d55-9b0e-3f4c1d2e5a60", Slug: "acme"}
	teams := &fakeTeams{
		byID:   map[string]*domain.Team{team.ID: team},
		bySlug: map[string]*domain.Team{team.Slug: team},
	}
	ctx := context.Background()

	got, err := resolveTeam(ctx, teams, team.ID)
	require.NoError(t, err)
	assert.Equal(t, team, got)

	got, err = resolveTeam(ctx, teams, "acme")
	require.NoError(t, err)
	assert.Equal(t, team, got)

	_, err = resolveTeam(ctx, teams, "globex")
	assert.EqualError(t, err, "team not found: globex")

	_, err = resolveTeam(ctx, teams, "00000000-0000-0000-0000-000000000000")
	assert.EqualError(t, err, "team not found: 00000000-0000-0000-0000-000000000000")
}

func TestResolveTeam_PassesThroughStoreErrors(t *testing.T) {
	teams := &fakeTeams{err: errors.New("connection refused")}

	_, err := resolveTeam(context.Background(), teams, "acme")
	assert.EqualError(t, err, "connection refused")
}

func TestToTeamOutput_HidesKey(t *testing.T) {
	out := toTeamOutput(&domain.Team{ID: "t1", Slug: "acme", Name: "Acme", OpenAIAPIKey: "sk-secret"})

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, out))

	assert.True(t, out.HasKey)
	assert.NotContains(t, buf.String(), "sk-secret")
	assert.Contains(t, buf.String(), `"has_openai_key": true`)
}

func TestCommandsRequireArgs(t *testing.T) {
	cmd := TeamCreateCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())

	proc := ProcessCmd()
	proc.SetArgs([]string{})
	proc.SetOut(&bytes.Buffer{})
	proc.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, proc.Execute(), `required flag(s) "team" not set`)
}
