package stage

import (
	"context"

	"harvester/internal/queue"
)

// ProgressFunc receives a completion fraction in [0, 1]. Implementations
// may call it from any goroutine and as often as they like; the workflow
// throttles persistence.
type ProgressFunc func(fraction float64)

// UploadOutcome reports how an upload finished.
type UploadOutcome string

const (
	// Uploaded means the file was transferred to the target.
	Uploaded UploadOutcome = "uploaded"
	// Duplicate means an equivalent file already existed at the target.
	Duplicate UploadOutcome = "duplicate"
)

// Downloader fetches a task's media to local storage and returns the local
// path. Errors should carry a services marker: ErrNetwork for retryable
// transport failures, ErrSourceGone when the media no longer exists, and
// ErrInterrupted (or the context error) on cancellation.
type Downloader interface {
	Download(ctx context.Context, task *queue.Task, onProgress ProgressFunc) (string, error)
	HealthCheck(ctx context.Context) Health
}

// Uploader transfers a local file into a target folder. It reports
// Duplicate instead of an error when the target already holds the file.
type Uploader interface {
	Upload(ctx context.Context, localPath, targetFolder string, onProgress ProgressFunc) (UploadResult, error)
	HealthCheck(ctx context.Context) Health
}

// UploadResult describes a finished upload.
type UploadResult struct {
	Outcome    UploadOutcome
	RemotePath string
	Bytes      int64
}
