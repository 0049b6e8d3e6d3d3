package upload

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"harvester/internal/config"
	"harvester/internal/services"
	"harvester/internal/stage"
)

const (
	stageName  = "upload"
	partSuffix = ".part"
)

// New returns the uploader selected by upload.backend.
func New(cfg *config.Config, logger *slog.Logger) (stage.Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Upload.Backend)) {
	case "", config.UploadBackendFilesystem:
		return NewFilesystem(cfg, logger), nil
	case config.UploadBackendHTTP:
		return NewHTTP(cfg, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, stageName, "select backend",
			fmt.Sprintf("unknown upload backend %q", cfg.Upload.Backend), nil)
	}
}

// localSize validates the file about to be uploaded.
func localSize(localPath string) (int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, stageName, "stat local file", localPath, err)
	}
	if info.IsDir() {
		return 0, services.Wrap(services.ErrValidation, stageName, "stat local file", localPath+" is a directory", nil)
	}
	return info.Size(), nil
}

// classifyFSError maps filesystem errors to the failure taxonomy.
func classifyFSError(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.EROFS):
		return services.Wrap(services.ErrAuth, stageName, op, "permission denied", err)
	case errors.Is(err, unix.ENOSPC):
		return services.Wrap(services.ErrTransient, stageName, op, "target is full", err)
	default:
		return services.Wrap(services.ErrNetwork, stageName, op, "", err)
	}
}
