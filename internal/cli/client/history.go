package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// HistoryCmd creates the history command.
func HistoryCmd() *cobra.Command {
	var (
		query  string
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived research of the team",
		Long:  "Lists archived research, newest first. --query keeps past queries containing the text.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runHistory(api, os.Stdout, query, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Only records whose query contains this text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runHistory(api *APIClient, out io.Writer, query string, limit int, cursor string, outputJSON bool) error {
	if api.TeamID() == "" {
		return fmt.Errorf("team not set (use --team or %s)", envTeamID)
	}

	params := url.Values{}
	params.Set("team_id", api.TeamID())
	if query != "" {
		params.Set("query", query)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	resp, err := api.Get("/research/records", params)
	if err != nil {
		return fmt.Errorf("history failed: %w", err)
	}

	var history HistoryResponse
	if err := json.Unmarshal(resp.Data, &history); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	if outputJSON {
		printJSON(history)
		return nil
	}

	if len(history.Items) == 0 {
		fmt.Fprintln(out, "No research found.")
		return nil
	}
	for i, rec := range history.Items {
		fmt.Fprintf(out, "%d. %s\n", i+1, rec.UserSearchQuery)
		fmt.Fprintf(out, "   Documents: %s\n", strings.Join(rec.DocumentIDs, ", "))
		fmt.Fprintf(out, "   Archived: %s\n", rec.ArchivedAt)
		fmt.Fprintf(out, "   ID: %s\n", rec.ID)
	}
	if history.HasMore && history.Cursor != "" {
		fmt.Fprintf(out, "\nMore results available. Use --cursor %s\n", history.Cursor)
	}
	return nil
}

// RecordCmd creates the record command.
func RecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <record-id>",
		Short: "Show an archived research record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")

			resp, err := api.Get("/research/records/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return fmt.Errorf("record failed: %w", err)
			}
			var rec Record
			if err := json.Unmarshal(resp.Data, &rec); err != nil {
				return fmt.Errorf("failed to parse record: %w", err)
			}
			if outputJSON {
				printJSON(rec)
				return nil
			}
			fmt.Printf("Query: %s\n", rec.UserSearchQuery)
			if rec.Partial {
				fmt.Printf("Unanalyzed: %s\n", strings.Join(rec.UnanalyzedDocumentIDs, ", "))
			}
			printFindings(os.Stdout, rec.IndividualFindings)
			fmt.Printf("\nSummary:\n%s\n", rec.OverallSummary)
			return nil
		},
	}
	return cmd
}

// ExportCmd creates the export command.
func ExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <record-id>",
		Short: "Print a download link for an exported record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Get("/research/records/"+url.PathEscape(args[0])+"/export", nil)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			var export struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(resp.Data, &export); err != nil {
				return fmt.Errorf("failed to parse export: %w", err)
			}
			fmt.Println(export.URL)
			return nil
		},
	}
}
