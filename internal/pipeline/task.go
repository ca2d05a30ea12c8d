package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task statuses mirror the pipeline state machine.
const (
	StatusQueued              = "queued"
	StatusChecking            = "checking"
	StatusCreatingTeams       = "creating_teams"
	StatusDownloading         = "downloading"
	StatusTrainingPoisson     = "training_poisson"
	StatusTrainingBlending    = "training_blending"
	StatusTrainingCalibration = "training_calibration"
	StatusTrainingDrawCal     = "training_draw_calibration"
	StatusRecomputing         = "recomputing"
	StatusCompleted           = "completed"
	StatusFailed              = "failed"
	StatusPartial             = "partial"
)

// Step outcomes recorded into pipeline metadata.
const (
	StepDone    = "done"
	StepSkipped = "skipped"
	StepFailed  = "failed"
)

// StepResult records one stage's outcome for idempotent reruns.
type StepResult struct {
	Status  string                 `json:"status"`
	Detail  string                 `json:"detail,omitempty"`
	ModelID string                 `json:"model_id,omitempty"`
	Counts  map[string]interface{} `json:"counts,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Task is one running (or finished) pipeline execution.
type Task struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu        sync.RWMutex
	status    string
	progress  int
	steps     map[string]StepResult
	cancelled bool
}

// TaskView is an immutable snapshot for the status endpoint.
type TaskView struct {
	ID        uuid.UUID             `json:"task_id"`
	Status    string                `json:"status"`
	Phase     string                `json:"phase"`
	Progress  int                   `json:"progress"`
	Steps     map[string]StepResult `json:"steps"`
	CreatedAt time.Time             `json:"created_at"`
}

func newTask() *Task {
	return &Task{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		status:    StatusQueued,
		steps:     map[string]StepResult{},
	}
}

func (t *Task) setStatus(status string, progress int) {
	t.mu.Lock()
	t.status = status
	t.progress = progress
	t.mu.Unlock()
}

func (t *Task) recordStep(name string, result StepResult) {
	t.mu.Lock()
	t.steps[name] = result
	t.mu.Unlock()
}

// Cancel requests a clean stop: the running stage finishes, no later
// stage starts, and the task ends partial.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *Task) isCancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled
}

// Snapshot returns a copy safe to serialize.
func (t *Task) Snapshot() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	steps := make(map[string]StepResult, len(t.steps))
	for k, v := range t.steps {
		steps[k] = v
	}
	return TaskView{
		ID:        t.ID,
		Status:    t.status,
		Phase:     t.status,
		Progress:  t.progress,
		Steps:     steps,
		CreatedAt: t.CreatedAt,
	}
}

// Registry is the id -> task lookup behind the status endpoint.
type Registry struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[uuid.UUID]*Task)}
}

func (r *Registry) put(t *Task) {
	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()
}

func (r *Registry) Get(id uuid.UUID) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}
