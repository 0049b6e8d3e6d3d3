package queue

import (
	"database/sql"
	"errors"
	"time"

	"harvester/internal/services"
)

const taskColumns = "seq, id, title, stage, progress, error_message, failure_kind, failed_from, attempt_count, source_ref, published_at, rating, local_path, remote_path, added_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task         Task
		stage        string
		errorMessage sql.NullString
		failureKind  sql.NullString
		failedFrom   sql.NullString
		sourceRef    sql.NullString
		publishedRaw sql.NullString
		localPath    sql.NullString
		remotePath   sql.NullString
		addedRaw     string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&task.Seq,
		&task.ID,
		&task.Title,
		&stage,
		&task.Progress,
		&errorMessage,
		&failureKind,
		&failedFrom,
		&task.AttemptCount,
		&sourceRef,
		&publishedRaw,
		&task.Rating,
		&localPath,
		&remotePath,
		&addedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task.Stage = Stage(stage)
	task.Error = errorMessage.String
	task.FailureKind = services.FailureKind(failureKind.String)
	task.FailedFrom = Stage(failedFrom.String)
	task.SourceRef = sourceRef.String
	task.LocalPath = localPath.String
	task.RemotePath = remotePath.String
	if published, err := parseTimeString(publishedRaw.String); err == nil {
		task.PublishedAt = published
	}
	if added, err := parseTimeString(addedRaw); err == nil {
		task.AddedAt = added
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func clampProgress(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
