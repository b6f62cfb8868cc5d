package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/telemetry"
)

// MaxRequestsPerTeam caps how many requests one sweep drains for a team so a
// busy team cannot starve the others.
const MaxRequestsPerTeam = 25

// ResearchProcessor drives one claimable request of a team to completion.
type ResearchProcessor interface {
	ProcessNext(ctx context.Context, teamID, requestID string) (*domain.ResearchRecord, error)
}

// PendingTeamLister reports teams with requests waiting in queue.
type PendingTeamLister interface {
	ListTeamsWithPending(ctx context.Context) ([]string, error)
}

// ResearchSweeper drains waiting requests, periodically through a Worker and
// on demand through Dispatch.
type ResearchSweeper struct {
	processor ResearchProcessor
	teams     PendingTeamLister
	wg        sync.WaitGroup
}

func NewResearchSweeper(processor ResearchProcessor, teams PendingTeamLister) *ResearchSweeper {
	return &ResearchSweeper{processor: processor, teams: teams}
}

// ProcessJobs drains every team with waiting requests, oldest team first.
// A failing request is logged and the sweep moves on to the next team.
func (s *ResearchSweeper) ProcessJobs(ctx context.Context) error {
	ctx, span := telemetry.StartTransaction(ctx, "ResearchSweeper.Sweep", "queue.sweep")
	defer span.End()

	teams, err := s.teams.ListTeamsWithPending(ctx)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to list teams with pending requests: %w", err)
	}
	if len(teams) == 0 {
		return nil
	}

	log.Printf("Sweeping %d teams with pending research", len(teams))
	for _, teamID := range teams {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.drainTeam(ctx, teamID)
	}
	return nil
}

func (s *ResearchSweeper) drainTeam(ctx context.Context, teamID string) {
	for i := 0; i < MaxRequestsPerTeam; i++ {
		rec, err := s.processor.ProcessNext(ctx, teamID, "")
		if err != nil {
			log.Printf("Sweep of team %s stopped: %v", teamID, err)
			return
		}
		if rec == nil {
			return
		}
	}
}

// Dispatch processes a just-submitted request in the background. The work
// is detached from the caller's context so it outlives the HTTP request.
func (s *ResearchSweeper) Dispatch(teamID, requestID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, span := telemetry.StartTransaction(context.Background(), "ResearchSweeper.Dispatch", "queue.dispatch")
		defer span.End()
		span.SetTag("team_id", teamID)
		span.SetTag("request_id", requestID)
		if _, err := s.processor.ProcessNext(ctx, teamID, requestID); err != nil {
			log.Printf("Dispatch of request %s failed: %v", requestID, err)
		}
	}()
}

// Wait blocks until every dispatched request has finished.
func (s *ResearchSweeper) Wait() {
	s.wg.Wait()
}
