package upload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"harvester/internal/config"
	"harvester/internal/fileutil"
	"harvester/internal/logging"
	"harvester/internal/services"
	"harvester/internal/stage"
)

// Filesystem copies files into a directory tree, typically a mounted share.
type Filesystem struct {
	root       string
	verifySize bool
	logger     *slog.Logger
}

// NewFilesystem builds the filesystem backend rooted at upload.target_dir.
func NewFilesystem(cfg *config.Config, logger *slog.Logger) *Filesystem {
	return &Filesystem{
		root:       cfg.Upload.TargetDir,
		verifySize: cfg.Upload.VerifySize,
		logger:     logging.NewComponentLogger(logger, "upload-fs"),
	}
}

// Upload copies localPath into root/targetFolder.
func (f *Filesystem) Upload(ctx context.Context, localPath, targetFolder string, onProgress stage.ProgressFunc) (stage.UploadResult, error) {
	size, err := localSize(localPath)
	if err != nil {
		return stage.UploadResult{}, err
	}
	dir := filepath.Join(f.root, targetFolder)
	target := filepath.Join(dir, filepath.Base(localPath))
	result := stage.UploadResult{RemotePath: target}

	if existing := fileutil.FileSize(target); existing > 0 {
		f.logger.Info("target already holds file",
			logging.String("target", target),
			logging.Int64("bytes", existing),
		)
		result.Outcome = stage.Duplicate
		result.Bytes = existing
		return result, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result, classifyFSError("create folder", err)
	}

	part := target + partSuffix
	written, err := fileutil.CopyFileVerified(ctx, localPath, part, func(done, total int64) {
		if total > 0 && onProgress != nil {
			onProgress(float64(done) / float64(total))
		}
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return result, services.Wrap(services.ErrInterrupted, stageName, "copy", "upload cancelled", err)
		}
		return result, classifyFSError("copy", err)
	}
	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		return result, classifyFSError("finalize", err)
	}
	if f.verifySize {
		if got := fileutil.FileSize(target); got != size {
			return result, services.Wrap(services.ErrValidation, stageName, "verify",
				"target size does not match local file", nil)
		}
	}
	result.Outcome = stage.Uploaded
	result.Bytes = written
	return result, nil
}

// HealthCheck verifies the target root exists and is writable.
func (f *Filesystem) HealthCheck(context.Context) stage.Health {
	info, err := os.Stat(f.root)
	if err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	if !info.IsDir() {
		return stage.Unhealthy(stageName, f.root+" is not a directory")
	}
	probe, err := os.CreateTemp(f.root, ".harvester-probe-*")
	if err != nil {
		return stage.Unhealthy(stageName, "target not writable: "+err.Error())
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return stage.Healthy(stageName)
}
