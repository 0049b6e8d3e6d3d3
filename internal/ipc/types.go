package ipc

import "harvester/internal/api"

// StartRequest asks the daemon to begin a discovery cycle.
type StartRequest struct{}

// StartResponse acknowledges a start request.
type StartResponse struct {
	Ack api.Ack `json:"ack"`
}

// StopRequest asks the daemon to stop the running cycle.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Ack api.Ack `json:"ack"`
}

// ResetFailedRequest asks the daemon to requeue every failed task.
type ResetFailedRequest struct{}

// ResetFailedResponse acknowledges a reset.
type ResetFailedResponse struct {
	Ack api.Ack `json:"ack"`
}

// StatusRequest requests the current snapshot.
type StatusRequest struct {
	IncludeTasks bool `json:"include_tasks"`
}

// StatusResponse carries the snapshot plus daemon process details.
type StatusResponse struct {
	Status      api.Status `json:"status"`
	PID         int        `json:"pid"`
	TaskDBPath  string     `json:"task_db_path"`
	DedupDBPath string     `json:"dedup_db_path"`
	LockPath    string     `json:"lock_path"`
	LogPath     string     `json:"log_path,omitempty"`
	APIBind     string     `json:"api_bind,omitempty"`
}

// TaskListRequest filters tasks by stage.
type TaskListRequest struct {
	Stages []string `json:"stages"`
}

// TaskListResponse lists tasks in insertion order.
type TaskListResponse struct {
	Tasks []api.Task `json:"tasks"`
}

// TaskShowRequest identifies one task.
type TaskShowRequest struct {
	ID string `json:"id"`
}

// TaskShowResponse carries one task.
type TaskShowResponse struct {
	Task api.Task `json:"task"`
}

// ClearFinishedRequest removes completed and skipped tasks.
type ClearFinishedRequest struct{}

// ClearFinishedResponse reports how many tasks were removed.
type ClearFinishedResponse struct {
	Removed int64 `json:"removed"`
}

// DedupListRequest lists the dedup index.
type DedupListRequest struct{}

// DedupListResponse carries the dedup index contents.
type DedupListResponse struct {
	Entries []api.DedupEntry `json:"entries"`
}

// DedupRecordRequest marks an identifier as delivered.
type DedupRecordRequest struct {
	ID string `json:"id"`
}

// DedupRecordResponse acknowledges a dedup record.
type DedupRecordResponse struct {
	Recorded bool `json:"recorded"`
}

// DatabaseHealthRequest requests task store diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports task store diagnostics.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalTasks       int    `json:"total_tasks"`
	Error            string `json:"error,omitempty"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}
