package daemonctl

import (
	"context"

	"harvester/internal/config"
	"harvester/internal/preflight"
)

// Status line severities.
const (
	SeverityOK    = "ok"
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// StatusLine is one labelled readiness line in the status output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// BuildSystemChecks combines daemon liveness with the preflight results.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, daemonRunning bool) []StatusLine {
	lines := make([]StatusLine, 0, 8)
	if daemonRunning {
		lines = append(lines, StatusLine{Label: "Harvester", Severity: SeverityOK, Detail: "Running"})
	} else {
		lines = append(lines, StatusLine{Label: "Harvester", Severity: SeverityWarn, Detail: "Not running (run `harvester start`)"})
	}

	for _, result := range preflight.RunAll(ctx, cfg, preflight.Options{Network: true}) {
		severity := SeverityOK
		if !result.Passed {
			severity = SeverityError
		}
		lines = append(lines, StatusLine{Label: result.Name, Severity: severity, Detail: result.Detail})
	}

	if preflight.NotificationsConfigured(cfg) {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: SeverityOK, Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: SeverityInfo, Detail: "Not configured"})
	}
	return lines
}
