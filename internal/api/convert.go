package api

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"harvester/internal/dedup"
	"harvester/internal/orchestrator"
	"harvester/internal/queue"
	"harvester/internal/stage"
	"harvester/internal/status"
)

// FromTask converts a task record to its API representation.
func FromTask(task queue.Task) Task {
	return Task{
		ID:           task.ID,
		Title:        task.Title,
		Stage:        string(task.Stage),
		Progress:     task.Progress,
		Error:        task.Error,
		FailureKind:  string(task.FailureKind),
		FailedFrom:   string(task.FailedFrom),
		AttemptCount: task.AttemptCount,
		Rating:       task.Rating,
		SourceRef:    task.SourceRef,
		LocalPath:    task.LocalPath,
		RemotePath:   task.RemotePath,
		PublishedAt:  FormatTime(task.PublishedAt),
		AddedAt:      FormatTime(task.AddedAt),
		UpdatedAt:    FormatTime(task.UpdatedAt),
	}
}

// FromTasks converts task records, keeping their order. The result is never
// nil so it encodes as an empty JSON array.
func FromTasks(tasks []queue.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromCycle converts cycle statistics.
func FromCycle(c orchestrator.CycleStats) Cycle {
	out := Cycle{
		CorrelationID: c.CorrelationID,
		StartedAt:     FormatTime(c.StartedAt),
		FinishedAt:    FormatTime(c.FinishedAt),
		PagesScanned:  c.PagesScanned,
		Admitted:      c.Admitted,
		Requeued:      c.Requeued,
	}
	if len(c.Rejected) > 0 {
		out.Rejected = maps.Clone(c.Rejected)
	}
	return out
}

// FromSnapshot converts a status snapshot.
func FromSnapshot(snap status.Snapshot, health []stage.Health) Status {
	out := Status{
		Sequence:        snap.Sequence,
		UpdatedAt:       FormatTime(snap.UpdatedAt),
		Running:         snap.Running,
		Stopping:        snap.Stopping,
		StoreDown:       snap.StoreDown,
		DownloadQueue:   snap.DownloadQueue,
		UploadQueue:     snap.UploadQueue,
		DownloadQueued:  snap.DownloadQueued,
		UploadQueued:    snap.UploadQueued,
		ActiveDownloads: snap.ActiveDownloads,
		ActiveUploads:   snap.ActiveUploads,
		ProcessedCount:  snap.ProcessedCount,
		FailedCount:     snap.FailedCount,
		DedupCount:      snap.DedupCount,
		LastError:       snap.LastError,
		Cycle:           FromCycle(snap.Cycle),
		StageHealth:     StageHealthSlice(health),
		Tasks:           FromTasks(snap.Tasks),
	}
	if len(snap.StageCounts) > 0 {
		out.StageCounts = make(map[string]int, len(snap.StageCounts))
		for s, n := range snap.StageCounts {
			out.StageCounts[string(s)] = n
		}
	}
	return out
}

// FromAck converts a control acknowledgement.
func FromAck(ack orchestrator.Ack) Ack {
	return Ack{
		OK:         ack.OK,
		Noop:       ack.Noop,
		Message:    ack.Message,
		Running:    ack.Running,
		Stopping:   ack.Stopping,
		ResetCount: ack.ResetCount,
	}
}

// FromDedupEntries converts dedup index entries.
func FromDedupEntries(entries []dedup.Entry) []DedupEntry {
	out := make([]DedupEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DedupEntry{ID: e.ID, CompletedAt: FormatTime(e.CompletedAt)})
	}
	return out
}

// StageHealthSlice orders stage health by name.
func StageHealthSlice(health []stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(out, func(a, b StageHealth) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// FormatTime converts a time to RFC3339 or returns an empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp. Unparseable values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
