package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/cache"
	"github.com/tipster-dev/jackpot-sim/internal/ingest"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/modelstore"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
	"github.com/tipster-dev/jackpot-sim/internal/resolver"
	"github.com/tipster-dev/jackpot-sim/internal/training"
	"github.com/tipster-dev/jackpot-sim/internal/websocket"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// Request describes one pipeline run. TeamNames and LeagueCode come
// from the jackpot when JackpotID is set; standalone runs name them
// directly.
type Request struct {
	JackpotID    *uuid.UUID `json:"jackpot_id,omitempty"`
	LeagueCode   string     `json:"league_code,omitempty"`
	TeamNames    []string   `json:"team_names,omitempty"`
	WindowYears  int        `json:"window_years,omitempty"`
	Seasons      int        `json:"seasons,omitempty"`
	ForceRetrain bool       `json:"force_retrain,omitempty"`
	CreateTeams  bool       `json:"create_teams,omitempty"`
}

// Classification is the check-status verdict per team name.
type Classification struct {
	Validated []string `json:"validated"`
	Missing   []string `json:"missing"`
	Trained   []string `json:"trained"`
	Untrained []string `json:"untrained"`
}

// NeedsWork reports whether a pipeline run would do anything beyond
// recomputing probabilities.
func (c Classification) NeedsWork() bool {
	return len(c.Missing) > 0 || len(c.Untrained) > 0
}

// Runner executes pipeline tasks on a bounded worker pool. Stages run
// sequentially within a task; training failures past the Poisson stage
// degrade the run to partial instead of failing it.
type Runner struct {
	db        *database.DB
	resolver  *resolver.Resolver
	ingestor  *ingest.Ingestor
	trainer   *training.Service
	prob      *probability.Pipeline
	store     *modelstore.Store
	probCache *cache.ProbabilityCache
	registry  *Registry
	hub       *websocket.Hub
	logger    *logrus.Entry

	workers     chan struct{}
	maxSeasons  int
	windowYears int
}

func NewRunner(
	db *database.DB,
	res *resolver.Resolver,
	ing *ingest.Ingestor,
	trainer *training.Service,
	prob *probability.Pipeline,
	store *modelstore.Store,
	probCache *cache.ProbabilityCache,
	registry *Registry,
	hub *websocket.Hub,
	workerCount, maxSeasons, windowYears int,
	logger *logrus.Logger,
) *Runner {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Runner{
		db:          db,
		resolver:    res,
		ingestor:    ing,
		trainer:     trainer,
		prob:        prob,
		store:       store,
		probCache:   probCache,
		registry:    registry,
		hub:         hub,
		logger:      logger.WithField("component", "pipeline"),
		workers:     make(chan struct{}, workerCount),
		maxSeasons:  maxSeasons,
		windowYears: windowYears,
	}
}

// CheckStatus classifies the request's teams without side effects:
// resolved vs missing, and trained vs untrained against the active
// Poisson model.
func (r *Runner) CheckStatus(ctx context.Context, req Request) (*Classification, error) {
	names, _, leagueID, err := r.resolveScope(ctx, &req)
	if err != nil {
		return nil, err
	}

	var trainedIDs map[string]bool
	if poisson, err := r.store.Active(ctx, models.ModelTypePoisson); err == nil {
		if w := poisson.Weights.Poisson; w != nil {
			trainedIDs = make(map[string]bool, len(w.Teams))
			for id := range w.Teams {
				trainedIDs[id] = true
			}
		}
	} else if !apperrors.HasCode(err, apperrors.CodeNoActiveModel) {
		return nil, err
	}

	out := &Classification{}
	for _, name := range names {
		team, err := r.resolver.Resolve(ctx, name, leagueID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeResolutionMissing) {
				out.Missing = append(out.Missing, name)
				out.Untrained = append(out.Untrained, name)
				continue
			}
			return nil, err
		}
		out.Validated = append(out.Validated, name)
		if trainedIDs[team.ID.String()] {
			out.Trained = append(out.Trained, name)
		} else {
			out.Untrained = append(out.Untrained, name)
		}
	}
	return out, nil
}

// Run enqueues a pipeline task and returns immediately. The task id
// is the handle for the status endpoint and websocket stream.
func (r *Runner) Run(req Request) (*Task, error) {
	if req.JackpotID == nil && len(req.TeamNames) == 0 {
		return nil, apperrors.New(apperrors.CodeInputValidation,
			"pipeline request needs a jackpot_id or explicit team_names")
	}
	if req.WindowYears == 0 {
		req.WindowYears = r.windowYears
	}
	if req.Seasons == 0 || req.Seasons > r.maxSeasons {
		req.Seasons = r.maxSeasons
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := newTask()
	r.registry.put(task)

	go func() {
		r.workers <- struct{}{}
		defer func() { <-r.workers }()
		defer cancel()
		r.execute(ctx, task, req)
	}()
	return task, nil
}

func (r *Runner) execute(ctx context.Context, task *Task, req Request) {
	log := r.logger.WithField("task_id", task.ID.String())
	log.WithField("jackpot_id", req.JackpotID).Info("Pipeline task started")

	r.transition(task, StatusChecking, 10)
	_, leagueCodes, leagueID, err := r.resolveScope(ctx, &req)
	if err != nil {
		r.fail(task, req, "checking", err)
		return
	}
	class, err := r.CheckStatus(ctx, req)
	if err != nil {
		r.fail(task, req, "checking", err)
		return
	}
	task.recordStep("checking", StepResult{Status: StepDone, Counts: map[string]interface{}{
		"validated": len(class.Validated),
		"missing":   len(class.Missing),
		"trained":   len(class.Trained),
		"untrained": len(class.Untrained),
	}})

	// Idempotent short-circuit: nothing to ingest or train.
	if !class.NeedsWork() && !req.ForceRetrain {
		for _, step := range []string{"creating_teams", "downloading", "training_poisson", "training_blending", "training_calibration", "training_draw_calibration"} {
			task.recordStep(step, StepResult{Status: StepSkipped, Detail: "all teams validated and trained"})
		}
		r.recomputeAndFinish(ctx, task, req, StatusCompleted)
		return
	}

	if r.cancelled(ctx, task, req) {
		return
	}

	r.transition(task, StatusCreatingTeams, 20)
	if err := r.createMissingTeams(ctx, task, class.Missing, req.CreateTeams, leagueID); err != nil {
		r.fail(task, req, "creating_teams", err)
		return
	}

	if r.cancelled(ctx, task, req) {
		return
	}

	r.transition(task, StatusDownloading, 40)
	if len(leagueCodes) > 0 {
		var processed, inserted, updated, skipped int
		for _, code := range leagueCodes {
			report, err := r.ingestor.Ingest(ctx, code, seasonCodes(req.Seasons, time.Now()), req.CreateTeams)
			if err != nil {
				r.fail(task, req, "downloading", err)
				return
			}
			processed += report.Processed
			inserted += report.Inserted
			updated += report.Updated
			skipped += report.Skipped
		}
		task.recordStep("downloading", StepResult{Status: StepDone, Counts: map[string]interface{}{
			"leagues":   len(leagueCodes),
			"processed": processed,
			"inserted":  inserted,
			"updated":   updated,
			"skipped":   skipped,
		}})
	} else {
		task.recordStep("downloading", StepResult{Status: StepSkipped, Detail: "no league code in scope"})
	}

	if r.cancelled(ctx, task, req) {
		return
	}

	opts := training.Options{WindowYears: req.WindowYears}
	if len(leagueCodes) > 0 {
		opts.Leagues = leagueCodes
	}

	// Poisson is load-bearing: its failure fails the task.
	r.transition(task, StatusTrainingPoisson, 55)
	model, metrics, err := r.trainer.TrainPoisson(ctx, opts)
	if err != nil {
		r.fail(task, req, "training_poisson", err)
		return
	}
	task.recordStep("training_poisson", StepResult{Status: StepDone, ModelID: model.ID.String(), Counts: metrics})

	degraded := false
	steps := []struct {
		name     string
		status   string
		progress int
		train    func(context.Context) (*models.Model, training.Metrics, error)
	}{
		{"training_blending", StatusTrainingBlending, 65, func(ctx context.Context) (*models.Model, training.Metrics, error) {
			return r.trainer.TrainBlending(ctx, opts)
		}},
		{"training_calibration", StatusTrainingCalibration, 75, func(ctx context.Context) (*models.Model, training.Metrics, error) {
			return r.trainer.TrainCalibration(ctx, opts)
		}},
		{"training_draw_calibration", StatusTrainingDrawCal, 85, func(ctx context.Context) (*models.Model, training.Metrics, error) {
			return r.trainer.TrainDrawCalibration(ctx)
		}},
	}
	for _, step := range steps {
		if r.cancelled(ctx, task, req) {
			return
		}
		r.transition(task, step.status, step.progress)
		m, metrics, err := step.train(ctx)
		switch {
		case err == nil:
			task.recordStep(step.name, StepResult{Status: StepDone, ModelID: m.ID.String(), Counts: metrics})
		case apperrors.HasCode(err, apperrors.CodeInsufficientTrainingSamples):
			task.recordStep(step.name, StepResult{Status: StepSkipped, Detail: err.Error()})
		default:
			log.WithError(err).WithField("step", step.name).Warn("Training step degraded")
			task.recordStep(step.name, StepResult{Status: StepFailed, Error: err.Error()})
			degraded = true
		}
	}

	final := StatusCompleted
	if degraded {
		final = StatusPartial
	}
	r.recomputeAndFinish(ctx, task, req, final)
}

func (r *Runner) recomputeAndFinish(ctx context.Context, task *Task, req Request, final string) {
	if r.cancelled(ctx, task, req) {
		return
	}
	r.transition(task, StatusRecomputing, 95)
	// Any model activated during this run makes cached sets stale.
	r.probCache.InvalidateAll(ctx)
	if req.JackpotID != nil {
		results, err := r.prob.ComputeJackpot(ctx, *req.JackpotID, nil)
		if err != nil {
			r.fail(task, req, "recomputing", err)
			return
		}
		fallbacks := 0
		for i := range results {
			if results[i].FallbackUsed {
				fallbacks++
			}
		}
		task.recordStep("recomputing", StepResult{Status: StepDone, Counts: map[string]interface{}{
			"fixtures":  len(results),
			"fallbacks": fallbacks,
		}})
		if fallbacks > 0 && final == StatusCompleted {
			final = StatusPartial
		}
	} else {
		task.recordStep("recomputing", StepResult{Status: StepSkipped, Detail: "no jackpot in scope"})
	}

	r.transition(task, final, 100)
	r.persistMetadata(req, task)
	r.logger.WithFields(logrus.Fields{
		"task_id": task.ID.String(),
		"status":  final,
	}).Info("Pipeline task finished")
}

// createMissingTeams runs the creating_teams stage. Creation was
// requested for unresolved teams, so a missing league scope is an
// error, not a silent skip.
func (r *Runner) createMissingTeams(ctx context.Context, task *Task, missing []string, createTeams bool, leagueID *uuid.UUID) error {
	if len(missing) == 0 || !createTeams {
		task.recordStep("creating_teams", StepResult{Status: StepSkipped})
		return nil
	}
	if leagueID == nil {
		return apperrors.New(apperrors.CodeLeagueRequired,
			"%d unresolved teams but no league in scope to create them under", len(missing))
	}
	created := 0
	for _, name := range missing {
		if _, err := r.resolver.CreateIfNotExists(ctx, name, *leagueID); err != nil {
			return err
		}
		created++
	}
	task.recordStep("creating_teams", StepResult{Status: StepDone, Counts: map[string]interface{}{"created": created}})
	return nil
}

// resolveScope expands a jackpot id into team names and league scope.
// A jackpot can span several leagues; every distinct league code is
// returned, and the first fixture's league doubles as the
// team-creation scope.
func (r *Runner) resolveScope(ctx context.Context, req *Request) ([]string, []string, *uuid.UUID, error) {
	if req.JackpotID == nil {
		var leagueID *uuid.UUID
		var codes []string
		if req.LeagueCode != "" {
			var league models.League
			if err := r.db.WithContext(ctx).Where("code = ?", req.LeagueCode).First(&league).Error; err != nil {
				return nil, nil, nil, apperrors.Wrap(err, apperrors.CodeNotFound, "league %q not found", req.LeagueCode)
			}
			leagueID = &league.ID
			codes = []string{league.Code}
		}
		return req.TeamNames, codes, leagueID, nil
	}

	var jackpot models.Jackpot
	if err := r.db.WithContext(ctx).Preload("Fixtures").First(&jackpot, "id = ?", *req.JackpotID).Error; err != nil {
		return nil, nil, nil, apperrors.Wrap(err, apperrors.CodeNotFound, "jackpot %s not found", req.JackpotID)
	}
	seen := map[string]bool{}
	var names []string
	for i := range jackpot.Fixtures {
		fx := &jackpot.Fixtures[i]
		for _, name := range []string{fx.HomeTeamName, fx.AwayTeamName} {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	ids := fixtureLeagueIDs(jackpot.Fixtures)
	var leagueID *uuid.UUID
	if len(ids) > 0 {
		leagueID = &ids[0]
	}
	codes := r.leagueCodesFor(ctx, ids)

	req.TeamNames = names
	if req.LeagueCode == "" && len(codes) > 0 {
		req.LeagueCode = codes[0]
	}
	return names, codes, leagueID, nil
}

// fixtureLeagueIDs returns the distinct league ids in fixture order.
func fixtureLeagueIDs(fixtures []models.JackpotFixture) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for i := range fixtures {
		if id := fixtures[i].LeagueID; id != nil && !seen[*id] {
			seen[*id] = true
			ids = append(ids, *id)
		}
	}
	return ids
}

func (r *Runner) leagueCodesFor(ctx context.Context, ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	var rows []models.League
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		r.logger.WithError(err).Warn("Failed to load league codes for jackpot scope")
		return nil
	}
	byID := make(map[uuid.UUID]string, len(rows))
	for i := range rows {
		byID[rows[i].ID] = rows[i].Code
	}
	codes := make([]string, 0, len(ids))
	for _, id := range ids {
		if code, ok := byID[id]; ok && code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

func (r *Runner) cancelled(ctx context.Context, task *Task, req Request) bool {
	if ctx.Err() == nil && !task.isCancelled() {
		return false
	}
	task.recordStep("cancelled", StepResult{Status: StepDone, Detail: "stopped before next stage"})
	r.transition(task, StatusPartial, 100)
	r.persistMetadata(req, task)
	r.logger.WithField("task_id", task.ID.String()).Warn("Pipeline task cancelled")
	return true
}

func (r *Runner) fail(task *Task, req Request, step string, err error) {
	// A stage aborted by cancellation is not a failure: the task keeps
	// whatever the earlier stages produced and ends partial.
	if apperrors.HasCode(err, apperrors.CodeCancelled) {
		task.recordStep(step, StepResult{Status: StepSkipped, Detail: err.Error()})
		r.transition(task, StatusPartial, 100)
		r.persistMetadata(req, task)
		r.logger.WithFields(logrus.Fields{
			"task_id": task.ID.String(),
			"step":    step,
		}).Warn("Pipeline task cancelled mid-stage")
		return
	}
	task.recordStep(step, StepResult{Status: StepFailed, Error: err.Error()})
	r.transition(task, StatusFailed, 100)
	r.persistMetadata(req, task)
	r.logger.WithFields(logrus.Fields{
		"task_id": task.ID.String(),
		"step":    step,
	}).WithError(err).Error("Pipeline task failed")
}

func (r *Runner) transition(task *Task, status string, progress int) {
	task.setStatus(status, progress)
	r.hub.Broadcast(websocket.ProgressUpdate{
		TaskID:    task.ID.String(),
		Status:    status,
		Phase:     status,
		Progress:  progress,
		Timestamp: time.Now().UTC(),
	})
}

// persistMetadata copies the task record onto the jackpot so finished
// runs survive process restarts.
func (r *Runner) persistMetadata(req Request, task *Task) {
	if req.JackpotID == nil {
		return
	}
	view := task.Snapshot()
	steps := make(map[string]interface{}, len(view.Steps))
	for name, res := range view.Steps {
		steps[name] = res
	}
	meta := models.JSONMap{
		"task_id":    view.ID.String(),
		"status":     view.Status,
		"steps":      steps,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	err := r.db.Model(&models.Jackpot{}).
		Where("id = ?", *req.JackpotID).
		Update("pipeline_metadata", meta).Error
	if err != nil {
		r.logger.WithError(err).Warn("Failed to persist pipeline metadata")
	}
}

// seasonCodes yields football-data.co.uk season codes ("2324"), most
// recent first. Seasons roll over in August.
func seasonCodes(n int, now time.Time) []string {
	start := now.Year()
	if now.Month() < time.August {
		start--
	}
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		y := start - i
		codes = append(codes, fmt.Sprintf("%02d%02d", y%100, (y+1)%100))
	}
	return codes
}
