package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"harvester/internal/logging"
	"harvester/internal/queue"
	"harvester/internal/services"
	"harvester/internal/stage"
)

var errNotClaimable = errors.New("task is not waiting in this queue")

// claim moves a queued task into the lane's active stage and starts a new
// attempt. Tasks that left the queued stage since they were pushed are
// skipped.
func (m *Manager) claim(ctx context.Context, lane *laneState, logger *slog.Logger, id string) (*queue.Task, bool) {
	queued := queue.QueuedStageFor(lane.active)
	task, err := m.store.Update(ctx, id, func(t *queue.Task) error {
		if t.Stage != queued {
			return errNotClaimable
		}
		t.BeginAttempt()
		return nil
	})
	switch {
	case err == nil:
		return task, true
	case errors.Is(err, errNotClaimable), errors.Is(err, queue.ErrNotFound):
		logger.Debug("skipping stale queue entry", logging.String(logging.FieldTaskID, id), logging.Error(err))
		return nil, false
	default:
		m.handleStoreError(ctx, logger, id, "claim task", err)
		return nil, false
	}
}

func (m *Manager) processDownload(ctx context.Context, lane *laneState, logger *slog.Logger, id string) {
	task, ok := m.claim(ctx, lane, logger, id)
	if !ok {
		return
	}
	ctx = withTaskContext(ctx, task, uuid.NewString())
	stageLogger := logging.WithContext(ctx, logger)
	start := time.Now()
	stageLogger.Info("download started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("title", task.Title),
		logging.Int("attempt", task.AttemptCount),
	)

	reporter := m.newProgressReporter(ctx, stageLogger, task)
	localPath, err := m.downloader.Download(ctx, task, reporter.Report)
	if err == nil && strings.TrimSpace(localPath) == "" {
		err = services.Wrap(services.ErrValidation, "download", "finish", "downloader returned no local path", nil)
	}
	if err != nil {
		m.failTask(ctx, stageLogger, task, err, nil)
		return
	}

	persistCtx := context.WithoutCancel(ctx)
	updated, err := m.store.Update(persistCtx, task.ID, func(t *queue.Task) error {
		t.Stage = queue.StageQueuedUpload
		t.LocalPath = localPath
		return nil
	})
	if err != nil {
		m.handleStoreError(persistCtx, stageLogger, task.ID, "persist download result", err)
		return
	}
	m.UploadQueue().Push(updated.ID)
	stageLogger.Info("download completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("local_path", localPath),
		logging.Duration("stage_duration", time.Since(start)),
	)
}

func (m *Manager) processUpload(ctx context.Context, lane *laneState, logger *slog.Logger, id string) {
	task, ok := m.claim(ctx, lane, logger, id)
	if !ok {
		return
	}
	ctx = withTaskContext(ctx, task, uuid.NewString())
	stageLogger := logging.WithContext(ctx, logger)
	start := time.Now()

	if _, err := os.Stat(task.LocalPath); err != nil {
		// The download has to run again, so the failure is attributed to it.
		missing := services.Wrap(services.ErrTransient, "upload", "stat local file", "downloaded file is missing", err)
		m.failTask(ctx, stageLogger, task, missing, func(t *queue.Task) {
			t.FailedFrom = queue.StageDownloading
			t.LocalPath = ""
		})
		return
	}

	folder := stage.TargetFolderFor(task.ID)
	stageLogger.Info("upload started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("local_path", task.LocalPath),
		logging.String("target_folder", folder),
		logging.Int("attempt", task.AttemptCount),
	)

	reporter := m.newProgressReporter(ctx, stageLogger, task)
	result, err := m.uploader.Upload(ctx, task.LocalPath, folder, reporter.Report)
	if err == nil && result.Outcome != stage.Uploaded && result.Outcome != stage.Duplicate {
		err = services.Wrap(services.ErrValidation, "upload", "finish", "uploader returned unknown outcome "+string(result.Outcome), nil)
	}
	if err != nil {
		m.failTask(ctx, stageLogger, task, err, nil)
		return
	}

	persistCtx := context.WithoutCancel(ctx)
	next := queue.StageSkipped
	if result.Outcome == stage.Uploaded {
		if err := m.index.Record(persistCtx, task.ID); err != nil {
			m.handleStoreError(persistCtx, stageLogger, task.ID, "record dedup entry", err)
			m.failTask(ctx, stageLogger, task, services.Wrap(services.ErrTransient, "upload", "record dedup entry", "dedup index unavailable", err), nil)
			return
		}
		next = queue.StageCompleted
	}
	updated, err := m.store.Update(persistCtx, task.ID, func(t *queue.Task) error {
		t.Stage = next
		t.RemotePath = result.RemotePath
		return nil
	})
	if err != nil {
		m.handleStoreError(persistCtx, stageLogger, task.ID, "persist upload result", err)
		return
	}

	stageLogger.Info("upload completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("outcome", string(result.Outcome)),
		logging.String("remote_path", result.RemotePath),
		logging.Int64("bytes", result.Bytes),
		logging.Duration("stage_duration", time.Since(start)),
	)
	m.removeLocal(stageLogger, updated)
	if next == queue.StageCompleted {
		m.notifyTaskCompleted(persistCtx, stageLogger, updated)
	}
}

func (m *Manager) removeLocal(logger *slog.Logger, task *queue.Task) {
	if !m.cfg.Upload.DeleteLocal || strings.TrimSpace(task.LocalPath) == "" {
		return
	}
	if err := os.Remove(task.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "failed to delete local file after upload", "local_cleanup_failed",
			logging.String("local_path", task.LocalPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "download directory keeps the uploaded file"),
		)
		return
	}
	logger.Debug("deleted local file", logging.String("local_path", task.LocalPath))
}
