package main

import (
	"bytes"
	"strings"
	"testing"

	"harvester/internal/api"
	"harvester/internal/daemonctl"
)

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Listing site", statusError, "unreachable", false)
	if !strings.Contains(line, "Listing site:") || !strings.Contains(line, "[ERROR] unreachable") {
		t.Fatalf("unexpected line %q", line)
	}
	if bare := renderStatusLine("Harvester", statusOK, "", false); !strings.HasSuffix(bare, "[OK]") {
		t.Fatalf("unexpected bare line %q", bare)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	tests := map[string]statusKind{
		"ok":    statusOK,
		"WARN":  statusWarn,
		"error": statusError,
		"info":  statusInfo,
		"":      statusInfo,
	}
	for input, want := range tests {
		if got := statusKindFromSeverity(input); got != want {
			t.Fatalf("statusKindFromSeverity(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestBuildStageRowsOrdersByLifecycle(t *testing.T) {
	rows := buildStageRows(map[string]int{
		"failed":          2,
		"discovered":      1,
		"queued_download": 0,
		"completed":       4,
	})
	if len(rows) != 3 {
		t.Fatalf("expected empty stages hidden, got %v", rows)
	}
	want := []string{"discovered", "completed", "failed"}
	for i, row := range rows {
		if row[0] != want[i] {
			t.Fatalf("row %d = %s, want %s", i, row[0], want[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer title here", 10, "a longe..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestRenderStatusViewListsQueues(t *testing.T) {
	view := daemonctl.StatusView{
		Online: true,
		Status: api.Status{
			DownloadQueue:  2,
			DownloadQueued: []string{"FC2-PPV-1", "FC2-PPV-2"},
		},
	}
	var out bytes.Buffer
	renderStatusView(&out, view, true, false)
	text := out.String()
	if !strings.Contains(text, "== Queues ==") || !strings.Contains(text, "FC2-PPV-1, FC2-PPV-2") {
		t.Fatalf("expected queue contents, got:\n%s", text)
	}
	if !strings.Contains(text, "Upload queue:") || !strings.Contains(text, "[INFO] empty") {
		t.Fatalf("expected empty upload queue, got:\n%s", text)
	}

	out.Reset()
	renderStatusView(&out, view, false, false)
	if strings.Contains(out.String(), "Queues") {
		t.Fatalf("queue section must need --tasks, got:\n%s", out.String())
	}
}
