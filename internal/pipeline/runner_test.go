package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/websocket"
)

func testRunner() *Runner {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Runner{
		hub:    websocket.NewHub(log),
		logger: log.WithField("component", "pipeline"),
	}
}

func TestFailCancelledEndsPartial(t *testing.T) {
	r := testRunner()
	task := newTask()

	err := apperrors.New(apperrors.CodeCancelled, "training interrupted by cancel request")
	r.fail(task, Request{}, "training_poisson", err)

	view := task.Snapshot()
	assert.Equal(t, StatusPartial, view.Status)
	require.Contains(t, view.Steps, "training_poisson")
	assert.Equal(t, StepSkipped, view.Steps["training_poisson"].Status)
	assert.Empty(t, view.Steps["training_poisson"].Error)
}

func TestFailGenuineErrorEndsFailed(t *testing.T) {
	r := testRunner()
	task := newTask()

	r.fail(task, Request{}, "downloading", apperrors.New(apperrors.CodeUpstreamUnavailable, "source timed out"))

	view := task.Snapshot()
	assert.Equal(t, StatusFailed, view.Status)
	assert.Equal(t, StepFailed, view.Steps["downloading"].Status)
	assert.Contains(t, view.Steps["downloading"].Error, "source timed out")
}

func TestCreateMissingTeamsNeedsLeague(t *testing.T) {
	r := testRunner()
	task := newTask()

	err := r.createMissingTeams(context.Background(), task, []string{"Atletico B", "Rayo C"}, true, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeLeagueRequired))
}

func TestCreateMissingTeamsSkips(t *testing.T) {
	r := testRunner()

	// Nothing missing: the stage is recorded as skipped.
	task := newTask()
	require.NoError(t, r.createMissingTeams(context.Background(), task, nil, true, nil))
	assert.Equal(t, StepSkipped, task.Snapshot().Steps["creating_teams"].Status)

	// Creation not requested: same, even with missing teams.
	task = newTask()
	require.NoError(t, r.createMissingTeams(context.Background(), task, []string{"Atletico B"}, false, nil))
	assert.Equal(t, StepSkipped, task.Snapshot().Steps["creating_teams"].Status)
}

func TestFixtureLeagueIDs(t *testing.T) {
	premier := uuid.New()
	laLiga := uuid.New()
	fixtures := []models.JackpotFixture{
		{LeagueID: &premier},
		{LeagueID: &laLiga},
		{LeagueID: &premier},
		{LeagueID: nil},
		{LeagueID: &laLiga},
	}

	assert.Equal(t, []uuid.UUID{premier, laLiga}, fixtureLeagueIDs(fixtures))
	assert.Empty(t, fixtureLeagueIDs(nil))
	assert.Empty(t, fixtureLeagueIDs([]models.JackpotFixture{{LeagueID: nil}}))
}
