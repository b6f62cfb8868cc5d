package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	root := &cobra.Command{Use: "researchd", Short: "daemon"}
	AddHelpJSONFlag(root)

	process := &cobra.Command{Use: "process", Short: "Process queued requests", RunE: func(*cobra.Command, []string) error { return nil }}
	process.Flags().String("team", "", "Team ID or slug")
	process.Flags().Bool("all", false, "Drain the team queue")
	require.NoError(t, process.MarkFlagRequired("team"))

	hidden := &cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}}
	root.AddCommand(process, hidden)

	schema := GenerateSchema(root)

	assert.Equal(t, "researchd", schema.Name)
	assert.Empty(t, schema.Flags)
	require.Len(t, schema.Subcommands, 1)

	sub := schema.Subcommands[0]
	assert.Equal(t, "process", sub.Name)
	require.Len(t, sub.Flags, 2)

	byName := map[string]FlagSchema{}
	for _, f := range sub.Flags {
		byName[f.Name] = f
	}
	assert.True(t, byName["team"].Required)
	assert.Equal(t, "string", byName["team"].Type)
	assert.False(t, byName["all"].Required)
	assert.Equal(t, "false", byName["all"].Default)
}

func TestFindTargetCommand(t *testing.T) {
	root := &cobra.Command{Use: "researchd"}
	team := &cobra.Command{Use: "team"}
	create := &cobra.Command{Use: "create", Aliases: []string{"new"}}
	team.AddCommand(create)
	root.AddCommand(team)

	assert.Equal(t, create, findTargetCommand(root, []string{"team", "new"}))
	assert.Equal(t, team, findTargetCommand(root, []string{"team", "unknown"}))
	assert.Equal(t, root, findTargetCommand(root, nil))
	assert.Equal(t, create, findTargetCommand(root, []string{"--output", "team", "create"}))
}

func TestGenerateSchema_Aliases(t *testing.T) {
	cmd := &cobra.Command{Use: "create", Aliases: []string{"new"}, Example: "researchd team create acme"}

	schema := GenerateSchema(cmd)

	assert.Equal(t, []string{"new"}, schema.Aliases)
	assert.Equal(t, "researchd team create acme", schema.Example)
}
