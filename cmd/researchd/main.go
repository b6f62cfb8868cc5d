package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/researchq/internal/cli"
	"github.com/cloo-solutions/researchq/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "researchd",
		Short: "Research queue daemon and admin CLI",
		Long:  "Research queue daemon for running the API server, processing queued requests and managing teams",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ProcessCmd())
	rootCmd.AddCommand(admin.ChunksCmd())
	rootCmd.AddCommand(admin.TeamCmd())
	rootCmd.AddCommand(admin.UserCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
