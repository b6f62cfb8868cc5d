package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type submitRequest struct {
	TeamID          string   `json:"team_id,omitempty"`
	UserID          string   `json:"user_id"`
	DocumentIDs     []string `json:"document_ids"`
	UserSearchQuery string   `json:"user_search_query"`
	OverallQuery    string   `json:"overall_query,omitempty"`
	SimilarityScore float64  `json:"similarity_score,omitempty"`
	SequentialQuery *bool    `json:"sequential_query,omitempty"`
	EnhancedSearch  bool     `json:"enhanced_search,omitempty"`
}

type submitOptions struct {
	userID       string
	documentIDs  []string
	overallQuery string
	similarity   float64
	batched      bool
	enhanced     bool
	wait         bool
	pollInterval time.Duration
	timeout      time.Duration
}

// SubmitCmd creates the submit command.
func SubmitCmd() *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit <query>",
		Short: "Submit a research request",
		Long: `Queues a research request over the given documents. When an identical
request has already been answered, the link to its result is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSubmit(api, os.Stdout, args[0], opts, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "Requesting user ID")
	cmd.Flags().StringSliceVarP(&opts.documentIDs, "doc", "d", nil, "Document ID (repeatable)")
	cmd.Flags().StringVar(&opts.overallQuery, "overall", "", "Instruction for the final summary")
	cmd.Flags().Float64Var(&opts.similarity, "similarity", 0, "Similarity score (default 1.0)")
	cmd.Flags().BoolVar(&opts.batched, "batched", false, "Query each document in one call instead of chunk by chunk")
	cmd.Flags().BoolVar(&opts.enhanced, "enhanced", false, "Request enhanced search")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "Wait until the request is archived")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll", 2*time.Second, "Status poll interval with --wait")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Give up waiting after this long")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("doc")

	return cmd
}

func runSubmit(api *APIClient, out io.Writer, query string, opts submitOptions, outputJSON bool) error {
	req := submitRequest{
		TeamID:          api.TeamID(),
		UserID:          opts.userID,
		DocumentIDs:     opts.documentIDs,
		UserSearchQuery: query,
		OverallQuery:    opts.overallQuery,
		SimilarityScore: opts.similarity,
		EnhancedSearch:  opts.enhanced,
	}
	if opts.batched {
		sequential := false
		req.SequentialQuery = &sequential
	}

	resp, err := api.Post("/research", req)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	var submitResp SubmitResponse
	if err := json.Unmarshal(resp.Data, &submitResp); err != nil {
		return fmt.Errorf("failed to parse submit response: %w", err)
	}

	if submitResp.Request == nil {
		if outputJSON {
			printJSON(submitResp)
			return nil
		}
		fmt.Fprintf(out, "Already answered: %s\n", submitResp.RedirectTo)
		return nil
	}

	if !opts.wait {
		if outputJSON {
			printJSON(submitResp)
			return nil
		}
		fmt.Fprintf(out, "Queued request %s (%s)\n", submitResp.Request.ID, submitResp.Request.Status)
		return nil
	}

	status, err := waitForCompletion(api, out, submitResp.Request.ID, opts.pollInterval, opts.timeout, !outputJSON)
	if err != nil {
		return err
	}
	if outputJSON {
		printJSON(status)
		return nil
	}
	printStatus(out, status)
	return nil
}

// waitForCompletion polls the request until it is archived.
func waitForCompletion(api *APIClient, out io.Writer, requestID string, interval, timeout time.Duration, verbose bool) (*StatusResponse, error) {
	deadline := time.Now().Add(timeout)
	last := ""
	for {
		status, err := fetchStatus(api, requestID)
		if err != nil {
			return nil, err
		}
		if verbose && status.Status != last {
			fmt.Fprintf(out, "%s: %s\n", requestID, status.Status)
			last = status.Status
		}
		if status.Archived {
			return status, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("request %s still %q after %s", requestID, status.Status, timeout)
		}
		time.Sleep(interval)
	}
}
