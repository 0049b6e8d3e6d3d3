package daemon

import (
	"context"
	"errors"
	"time"

	"harvester/internal/logging"
	"harvester/internal/orchestrator"
)

// runScheduler starts a cycle at launch when auto_start is set and then on
// every interval tick. Starting while a cycle runs is a no-op.
func (d *Daemon) runScheduler(ctx context.Context) {
	if d.cfg.Discovery.AutoStart {
		d.scheduledStart(ctx, "auto_start")
	}
	interval := d.cfg.CycleInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scheduledStart(ctx, "interval")
		}
	}
}

func (d *Daemon) scheduledStart(ctx context.Context, trigger string) {
	ack, err := d.orch.Start(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrClosed):
		return
	case err != nil:
		logging.WarnWithContext(d.logger, "scheduled cycle did not start", "scheduled_start_failed",
			logging.String("trigger", trigger),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no discovery until the next tick or a manual start"),
			logging.String(logging.FieldErrorHint, "check the data directory and run harvester status"),
		)
	case ack.Noop:
		d.logger.Debug("scheduled start skipped",
			logging.String("trigger", trigger),
			logging.String("reason", ack.Message),
		)
	default:
		d.logger.Info("scheduled cycle started",
			logging.String(logging.FieldEventType, "scheduled_start"),
			logging.String("trigger", trigger),
		)
	}
}
