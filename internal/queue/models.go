package queue

import (
	"strings"
	"time"

	"harvester/internal/services"
)

// Stage is a task's position in the discover, download, upload lifecycle.
type Stage string

const (
	StageDiscovered     Stage = "discovered"
	StageQueuedDownload Stage = "queued_download"
	StageDownloading    Stage = "downloading"
	StageQueuedUpload   Stage = "queued_upload"
	StageUploading      Stage = "uploading"
	StageCompleted      Stage = "completed"
	StageSkipped        Stage = "skipped"
	StageFailed         Stage = "failed"
)

// InterruptedReason is recorded on tasks found mid-transfer at startup.
const InterruptedReason = "process stopped mid-transfer"

var allStages = []Stage{
	StageDiscovered,
	StageQueuedDownload,
	StageDownloading,
	StageQueuedUpload,
	StageUploading,
	StageCompleted,
	StageSkipped,
	StageFailed,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// transitions lists every permitted stage change. Same-stage writes are
// always permitted so replayed updates stay idempotent.
var transitions = map[Stage][]Stage{
	StageDiscovered:     {StageQueuedDownload},
	StageQueuedDownload: {StageDownloading},
	StageDownloading:    {StageQueuedUpload, StageFailed},
	StageQueuedUpload:   {StageUploading},
	StageUploading:      {StageCompleted, StageSkipped, StageFailed},
	StageFailed:         {StageQueuedDownload, StageQueuedUpload},
}

// AllStages returns the known stages in lifecycle order.
func AllStages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// ParseStage converts a string into a Stage if recognised.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	_, ok := stageSet[normalized]
	return normalized, ok
}

// CanTransition reports whether from -> to is a valid lifecycle step.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether a worker currently owns the task.
func (s Stage) IsActive() bool {
	return s == StageDownloading || s == StageUploading
}

// IsQueued reports whether the task waits in a stage queue.
func (s Stage) IsQueued() bool {
	return s == StageQueuedDownload || s == StageQueuedUpload
}

// IsProcessed reports whether the task reached a successful terminal stage.
func (s Stage) IsProcessed() bool {
	return s == StageCompleted || s == StageSkipped
}

// QueuedStageFor maps an active stage to the queue that feeds it. Unknown
// stages map to the download queue.
func QueuedStageFor(active Stage) Stage {
	if active == StageUploading || active == StageQueuedUpload {
		return StageQueuedUpload
	}
	return StageQueuedDownload
}

// ActiveStageFor maps a queued stage to the stage its worker moves it into.
func ActiveStageFor(queued Stage) Stage {
	if queued == StageQueuedUpload {
		return StageUploading
	}
	return StageDownloading
}

// Task tracks one content item end-to-end.
type Task struct {
	Seq          int64
	ID           string
	Title        string
	Stage        Stage
	Progress     float64
	Error        string
	FailureKind  services.FailureKind
	FailedFrom   Stage
	AttemptCount int
	SourceRef    string
	PublishedAt  time.Time
	Rating       float64
	LocalPath    string
	RemotePath   string
	AddedAt      time.Time
	UpdatedAt    time.Time
}

// Clone returns an independent copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// BeginAttempt moves a queued task into its active stage and starts a fresh
// attempt.
func (t *Task) BeginAttempt() {
	t.Stage = ActiveStageFor(t.Stage)
	t.AttemptCount++
	t.Progress = 0
	t.Error = ""
	t.FailureKind = ""
}

// SetFailed records a failure for the current active stage.
func (t *Task) SetFailed(err error) {
	details := services.Details(err)
	message := details.Message
	if message == "" {
		message = "unknown failure"
	}
	t.FailedFrom = t.Stage
	t.Stage = StageFailed
	t.Error = message
	t.FailureKind = details.Kind
	if t.FailureKind == "" {
		t.FailureKind = services.FailureTransient
	}
}

// Requeue returns a failed task to the queue of the stage it failed from.
// The attempt count is left untouched.
func (t *Task) Requeue() {
	t.Stage = QueuedStageFor(t.FailedFrom)
	t.Error = ""
	t.FailureKind = ""
	t.Progress = 0
}

// RetryEligible reports whether automatic retry may requeue the task.
func (t *Task) RetryEligible(ceiling int) bool {
	if t.Stage != StageFailed {
		return false
	}
	if ceiling > 0 && t.AttemptCount >= ceiling {
		return false
	}
	return t.FailureKind.Retryable()
}

// DatabaseHealth captures diagnostic information about the task database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}
