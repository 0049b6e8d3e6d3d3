package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a task in a transport-friendly format.
type Task struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Stage        string  `json:"stage"`
	Progress     float64 `json:"progress"`
	Error        string  `json:"error,omitempty"`
	FailureKind  string  `json:"failure_kind,omitempty"`
	FailedFrom   string  `json:"failed_from,omitempty"`
	AttemptCount int     `json:"attempt_count"`
	Rating       float64 `json:"rating"`
	SourceRef    string  `json:"source_ref,omitempty"`
	LocalPath    string  `json:"local_path,omitempty"`
	RemotePath   string  `json:"remote_path,omitempty"`
	PublishedAt  string  `json:"published_at,omitempty"`
	AddedAt      string  `json:"added_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// Cycle describes the current or most recent discovery cycle.
type Cycle struct {
	CorrelationID string         `json:"correlation_id,omitempty"`
	StartedAt     string         `json:"started_at,omitempty"`
	FinishedAt    string         `json:"finished_at,omitempty"`
	PagesScanned  int            `json:"pages_scanned"`
	Admitted      int            `json:"admitted"`
	Requeued      int            `json:"requeued"`
	Rejected      map[string]int `json:"rejected,omitempty"`
}

// StageHealth mirrors readiness reporting for the transfer collaborators.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Status is the observer payload for pull and push delivery.
type Status struct {
	Sequence        uint64         `json:"sequence"`
	UpdatedAt       string         `json:"updated_at,omitempty"`
	Running         bool           `json:"running"`
	Stopping        bool           `json:"stopping"`
	StoreDown       bool           `json:"store_down,omitempty"`
	DownloadQueue   int            `json:"download_queue_len"`
	UploadQueue     int            `json:"upload_queue_len"`
	DownloadQueued  []string       `json:"download_queue,omitempty"`
	UploadQueued    []string       `json:"upload_queue,omitempty"`
	ActiveDownloads int            `json:"active_downloads"`
	ActiveUploads   int            `json:"active_uploads"`
	ProcessedCount  int            `json:"processed_count"`
	FailedCount     int            `json:"failed_count"`
	DedupCount      int            `json:"dedup_count"`
	StageCounts     map[string]int `json:"stage_counts,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
	Cycle           Cycle          `json:"cycle"`
	StageHealth     []StageHealth  `json:"stage_health,omitempty"`
	Tasks           []Task         `json:"tasks"`
}

// Ack acknowledges a control request.
type Ack struct {
	OK         bool   `json:"ok"`
	Noop       bool   `json:"noop"`
	Message    string `json:"message"`
	Running    bool   `json:"running"`
	Stopping   bool   `json:"stopping"`
	ResetCount int    `json:"reset_count"`
}

// DedupEntry is one delivered identifier.
type DedupEntry struct {
	ID          string `json:"id"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// DedupListResponse wraps the dedup index contents.
type DedupListResponse struct {
	Entries []DedupEntry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx HTTP reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
