// Package logging assembles structured slog loggers and formatting helpers used
// across harvester services.
//
// Console output is rendered by charmbracelet/log acting as an slog.Handler;
// JSON output uses the standard library handler with stable ts/level/msg
// keys. Context-aware helpers tag log lines with task IDs, stages, worker
// names, and correlation IDs. The package also provides a no-op logger for
// tests and wiring code that cannot fail.
package logging
