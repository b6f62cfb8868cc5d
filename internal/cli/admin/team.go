package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/repository"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/spf13/cobra"
)

func TeamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Manage teams",
		Long:  "Create and list teams and set their model keys",
	}

	cmd.AddCommand(TeamCreateCmd())
	cmd.AddCommand(TeamListCmd())
	cmd.AddCommand(TeamSetKeyCmd())

	return cmd
}

func TeamCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "create <slug>",
		Short:   "Create a new team",
		Example: "  researchd team create acme --name \"Acme Corp\" --openai-key sk-...",
		Args:    cobra.ExactArgs(1),
		RunE:    runTeamCreate,
	}

	cmd.Flags().String("name", "", "Display name (defaults to the slug)")
	cmd.Flags().String("openai-key", "", "Team OpenAI API key")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}

type teamOutput struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	HasKey    bool      `json:"has_openai_key"`
	CreatedAt time.Time `json:"created_at"`
}

func toTeamOutput(t *domain.Team) teamOutput {
	return teamOutput{
		ID:        t.ID,
		Slug:      t.Slug,
		Name:      t.Name,
		HasKey:    t.OpenAIAPIKey != "",
		CreatedAt: t.CreatedAt,
	}
}

func runTeamCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, _ := cmd.Flags().GetString("name")
	key, _ := cmd.Flags().GetString("openai-key")
	outputJSON, _ := cmd.Flags().GetBool("json")

	slug := strings.TrimSpace(args[0])
	if name == "" {
		name = slug
	}

	team := &domain.Team{
		ID:           (&service.DefaultUUIDGenerator{}).NewString(),
		Slug:         slug,
		Name:         name,
		OpenAIAPIKey: key,
		CreatedAt:    time.Now().UTC(),
	}
	if err := domain.ValidateTeam(team); err != nil {
		return err
	}

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.NewTeamRepository(pool).Create(ctx, team); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), toTeamOutput(team))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Team created: %s (%s)\n", team.Slug, team.ID)
	return nil
}

func TeamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List teams",
		Args:  cobra.NoArgs,
		RunE:  runTeamList,
	}

	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}

func runTeamList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputJSON, _ := cmd.Flags().GetBool("json")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	teams, err := repository.NewTeamRepository(pool).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}

	out := make([]teamOutput, 0, len(teams))
	for _, t := range teams {
		out = append(out, toTeamOutput(t))
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	if len(out) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No teams found")
		return nil
	}
	for _, t := range out {
		key := "fallback key"
		if t.HasKey {
			key = "own key"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Slug, key)
	}
	return nil
}

func TeamSetKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-key <team>",
		Short: "Set or clear a team's OpenAI API key",
		Long:  "Set the team's OpenAI API key. An empty --openai-key clears it so the deployment key is used.",
		Args:  cobra.ExactArgs(1),
		RunE:  runTeamSetKey,
	}

	cmd.Flags().String("openai-key", "", "Team OpenAI API key")

	return cmd
}

func runTeamSetKey(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key, _ := cmd.Flags().GetString("openai-key")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	teams := repository.NewTeamRepository(pool)
	team, err := resolveTeam(ctx, teams, args[0])
	if err != nil {
		return err
	}

	if err := teams.SetAPIKey(ctx, team.ID, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	if key == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared key for team %s\n", team.Slug)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Updated key for team %s\n", team.Slug)
	}
	return nil
}
