package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"harvester/internal/api"
	"harvester/internal/daemonctl"
	"harvester/internal/queue"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleHeading = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		return statusKindStyle(kind).Render(base)
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindStyle(kind statusKind) lipgloss.Style {
	switch kind {
	case statusOK:
		return styleOK
	case statusWarn:
		return styleWarn
	case statusError:
		return styleError
	default:
		return styleInfo
	}
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case daemonctl.SeverityOK:
		return statusOK
	case daemonctl.SeverityWarn:
		return statusWarn
	case daemonctl.SeverityError:
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = styleHeading.Render(line)
		rule = styleHeading.Render(rule)
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func writeSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

func renderStatusView(out io.Writer, view daemonctl.StatusView, includeTasks, colorize bool) {
	writeSection(out, "System Status", colorize)
	for _, line := range view.Checks {
		fmt.Fprintln(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(out)

	status := view.Status
	writeSection(out, "Cycle", colorize)
	for _, line := range cycleLines(view, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	writeSection(out, "Pipeline", colorize)
	for _, line := range pipelineLines(status, view.Online, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	writeSection(out, "Task Stages", colorize)
	rows := buildStageRows(status.StageCounts)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No tasks")
	} else {
		fmt.Fprint(out, renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
		fmt.Fprintln(out)
	}

	if includeTasks {
		if view.Online {
			fmt.Fprintln(out)
			writeSection(out, "Queues", colorize)
			fmt.Fprintln(out, renderStatusLine("Download queue", statusInfo, formatQueue(status.DownloadQueued), colorize))
			fmt.Fprintln(out, renderStatusLine("Upload queue", statusInfo, formatQueue(status.UploadQueued), colorize))
		}
		fmt.Fprintln(out)
		writeSection(out, "Tasks", colorize)
		renderTaskTable(out, status.Tasks)
	}
}

func formatQueue(ids []string) string {
	if len(ids) == 0 {
		return "empty"
	}
	return strings.Join(ids, ", ")
}

func cycleLines(view daemonctl.StatusView, colorize bool) []string {
	status := view.Status
	lines := make([]string, 0, 6)
	switch {
	case !view.Online && view.Offline != "":
		lines = append(lines, renderStatusLine("State", statusError, "Task database unreadable: "+view.Offline, colorize))
	case !view.Online:
		lines = append(lines, renderStatusLine("State", statusInfo, "Daemon offline", colorize))
	case status.StoreDown:
		lines = append(lines, renderStatusLine("State", statusError, "Halted: durable state unavailable", colorize))
	case status.Stopping:
		lines = append(lines, renderStatusLine("State", statusWarn, "Stopping", colorize))
	case status.Running:
		lines = append(lines, renderStatusLine("State", statusOK, "Running", colorize))
	default:
		lines = append(lines, renderStatusLine("State", statusInfo, "Idle", colorize))
	}

	cycle := status.Cycle
	if cycle.StartedAt != "" {
		lines = append(lines, renderStatusLine("Started", statusInfo, cycle.StartedAt, colorize))
		if cycle.FinishedAt != "" {
			lines = append(lines, renderStatusLine("Finished", statusInfo, cycle.FinishedAt, colorize))
		}
		detail := fmt.Sprintf("%d pages, %d admitted, %d requeued, %d rejected",
			cycle.PagesScanned, cycle.Admitted, cycle.Requeued, sumCounts(cycle.Rejected))
		lines = append(lines, renderStatusLine("Last cycle", statusInfo, detail, colorize))
	}
	if status.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
	}
	return lines
}

func pipelineLines(status api.Status, online, colorize bool) []string {
	lines := make([]string, 0, 6)
	if online {
		lines = append(lines,
			renderStatusLine("Downloads", statusInfo, fmt.Sprintf("%d active, %d queued", status.ActiveDownloads, status.DownloadQueue), colorize),
			renderStatusLine("Uploads", statusInfo, fmt.Sprintf("%d active, %d queued", status.ActiveUploads, status.UploadQueue), colorize),
		)
		for _, health := range status.StageHealth {
			kind := statusOK
			detail := "Ready"
			if !health.Ready {
				kind = statusWarn
				detail = health.Detail
			}
			lines = append(lines, renderStatusLine(health.Name, kind, detail, colorize))
		}
	}
	failedKind := statusOK
	if status.FailedCount > 0 {
		failedKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Processed", statusInfo, strconv.Itoa(status.ProcessedCount), colorize),
		renderStatusLine("Failed", failedKind, strconv.Itoa(status.FailedCount), colorize),
		renderStatusLine("Delivered (dedup)", statusInfo, strconv.Itoa(status.DedupCount), colorize),
	)
	return lines
}

// buildStageRows orders stages by lifecycle and hides empty ones.
func buildStageRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, stage := range queue.AllStages() {
		name := string(stage)
		seen[name] = true
		if counts[name] == 0 {
			continue
		}
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	var unknown []string
	for name, count := range counts {
		if !seen[name] && count > 0 {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	return rows
}

func sumCounts(values map[string]int) int {
	total := 0
	for _, n := range values {
		total += n
	}
	return total
}
