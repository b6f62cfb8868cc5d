package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/researchq/internal/api"
	"github.com/cloo-solutions/researchq/internal/domain"
)

type contextKey string

const TeamIDKey contextKey = "team_id"

// TeamLookup resolves a team so an unknown X-Team-ID is rejected early.
type TeamLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
}

// TeamScope reads the X-Team-ID header, checks the team exists and stores its
// id on the context. Requests without the header pass through unchanged.
func TeamScope(teams TeamLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			teamID := strings.TrimSpace(r.Header.Get("X-Team-ID"))
			if teamID == "" {
				next.ServeHTTP(w, r)
				return
			}

			team, err := teams.GetByID(r.Context(), teamID)
			if err != nil {
				api.HandleError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), TeamIDKey, team.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTeamID returns the team scoped by TeamScope, if any.
func GetTeamID(ctx context.Context) string {
	teamID, _ := ctx.Value(TeamIDKey).(string)
	return teamID
}
