package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// StatusCmd creates the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Show the status of a research request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")

			status, err := fetchStatus(api, args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				printJSON(status)
				return nil
			}
			printStatus(os.Stdout, status)
			return nil
		},
	}
}

func fetchStatus(api *APIClient, requestID string) (*StatusResponse, error) {
	resp, err := api.Get("/research/requests/"+url.PathEscape(requestID), nil)
	if err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}

	var status StatusResponse
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &status, nil
}

func printStatus(out io.Writer, status *StatusResponse) {
	fmt.Fprintf(out, "Request: %s\n", status.RequestID)
	fmt.Fprintf(out, "Status:  %s\n", status.Status)
	if len(status.UnanalyzedDocumentIDs) > 0 {
		label := "Pending"
		if status.Archived {
			label = "Unanalyzed"
		}
		fmt.Fprintf(out, "%s: %s\n", label, strings.Join(status.UnanalyzedDocumentIDs, ", "))
	}
	printFindings(out, status.IndividualFindings)
	if status.OverallSummary != "" {
		fmt.Fprintf(out, "\nSummary:\n%s\n", status.OverallSummary)
	}
}

func printFindings(out io.Writer, findings []Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(out, "\nFindings (%d):\n", len(findings))
	for i, f := range findings {
		label := f.DocumentID
		if f.Title != "" {
			label = f.Title
		}
		if f.Page != "" {
			label += ", p. " + f.Page
		}
		fmt.Fprintf(out, "%d. [%s] %s\n", i+1, label, f.Content)
	}
}
