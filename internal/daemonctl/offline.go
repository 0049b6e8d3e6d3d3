package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"harvester/internal/api"
	"harvester/internal/config"
	"harvester/internal/dedup"
	"harvester/internal/queue"
	"harvester/internal/status"
)

// OfflineStatus builds a status payload straight from the databases. The
// databases are not created when they do not exist yet.
func OfflineStatus(ctx context.Context, cfg *config.Config, includeTasks bool) (api.Status, error) {
	if _, err := os.Stat(cfg.TaskDBPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return api.FromSnapshot(status.Snapshot{}, nil), nil
		}
		return api.Status{}, fmt.Errorf("stat task database: %w", err)
	}

	store, err := queue.OpenPath(cfg.TaskDBPath())
	if err != nil {
		return api.Status{}, err
	}
	defer store.Close()

	var index *dedup.Index
	if _, err := os.Stat(cfg.DedupDBPath()); err == nil {
		index, err = dedup.Open(cfg.DedupDBPath())
		if err != nil {
			return api.Status{}, err
		}
		defer index.Close()
	}

	snap, err := status.NewProjector(store, index, nil).Snapshot(ctx)
	if err != nil {
		return api.Status{}, err
	}
	if !includeTasks {
		snap.Tasks = nil
	}
	return api.FromSnapshot(snap, nil), nil
}
