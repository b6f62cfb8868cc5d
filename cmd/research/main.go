package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/researchq/internal/cli"
	"github.com/cloo-solutions/researchq/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "research",
		Short: "Research CLI - submit document research and read the results",
		Long: `Research CLI submits research requests over a team's documents and reads
archived results.

Environment variables:
  RESEARCH_TEAM_ID   Team the requests belong to
  RESEARCH_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	rootCmd.PersistentFlags().String("team", "", "Team ID (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.SubmitCmd())
	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.HistoryCmd())
	rootCmd.AddCommand(client.RecordCmd())
	rootCmd.AddCommand(client.ExportCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
