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

func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage requesters",
	}

	cmd.AddCommand(UserCreateCmd())

	return cmd
}

func UserCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Register a requester who receives completion emails",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserCreate,
	}

	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, _ := cmd.Flags().GetString("name")
	outputJSON, _ := cmd.Flags().GetBool("json")

	user := &domain.User{
		ID:        (&service.DefaultUUIDGenerator{}).NewString(),
		Email:     strings.TrimSpace(args[0]),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := domain.ValidateUser(user); err != nil {
		return err
	}

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.NewUserRepository(pool).Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"id":         user.ID,
			"email":      user.Email,
			"name":       user.Name,
			"created_at": user.CreatedAt,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "User created: %s (%s)\n", user.Email, user.ID)
	return nil
}
