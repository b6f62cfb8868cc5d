package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/researchq/internal/jobs"
	"github.com/cloo-solutions/researchq/internal/repository"
	"github.com/spf13/cobra"
)

// ProcessCmd runs queued requests in the foreground without the HTTP server.
func ProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process queued research requests",
		Long: `Claim and process queued research requests for a team.

Without --request the oldest waiting request is processed. With --all the
team queue is drained, up to the per-sweep cap.`,
		RunE: runProcess,
	}

	cmd.Flags().String("team", "", "Team ID or slug (required)")
	cmd.Flags().String("request", "", "Process this request instead of the oldest")
	cmd.Flags().Bool("all", false, "Drain the team queue")
	cmd.Flags().Bool("json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("team")

	return cmd
}

type processedRecord struct {
	RecordID       string `json:"record_id"`
	Findings       int    `json:"findings"`
	OverallSummary string `json:"overall_summary"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	teamRef, _ := cmd.Flags().GetString("team")
	requestID, _ := cmd.Flags().GetString("request")
	all, _ := cmd.Flags().GetBool("all")
	outputJSON, _ := cmd.Flags().GetBool("json")

	if all && requestID != "" {
		return fmt.Errorf("--all and --request cannot be combined")
	}

	pool, cfg, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	team, err := resolveTeam(ctx, repository.NewTeamRepository(pool), teamRef)
	if err != nil {
		return err
	}

	svc, _, err := newResearchService(ctx, cfg, pool)
	if err != nil {
		return err
	}

	limit := 1
	if all {
		limit = jobs.MaxRequestsPerTeam
	}

	var processed []processedRecord
	for range limit {
		rec, err := svc.ProcessNext(ctx, team.ID, requestID)
		if err != nil {
			return fmt.Errorf("failed to process request: %w", err)
		}
		if rec == nil {
			break
		}
		processed = append(processed, processedRecord{
			RecordID:       rec.ID,
			Findings:       len(rec.IndividualFindings),
			OverallSummary: rec.OverallSummary,
		})
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		if processed == nil {
			processed = []processedRecord{}
		}
		return writeJSON(out, processed)
	}

	if len(processed) == 0 {
		fmt.Fprintf(out, "No queued requests for team %s\n", team.Slug)
		return nil
	}
	for _, p := range processed {
		fmt.Fprintf(out, "Archived %s (%d findings)\n", p.RecordID, p.Findings)
	}
	return nil
}
