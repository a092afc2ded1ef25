package queue

import (
	"database/sql"
	"errors"
	"time"
)

const taskColumns = "id, stable_reference, direct_url, filename, destination_path, category, status, progress, size_bytes, downloaded_bytes, speed_bps, retry_count, segments, priority, error_message, wait_until, created_at, updated_at, started_at, completed_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id              int64
		stableReference string
		directURL       sql.NullString
		filename        string
		destinationPath sql.NullString
		category        sql.NullString
		statusStr       string
		progress        sql.NullFloat64
		sizeBytes       sql.NullInt64
		downloadedBytes sql.NullInt64
		speedBPS        sql.NullInt64
		retryCount      sql.NullInt64
		segments        sql.NullInt64
		priority        sql.NullInt64
		errorMessage    sql.NullString
		waitUntilRaw    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&stableReference,
		&directURL,
		&filename,
		&destinationPath,
		&category,
		&statusStr,
		&progress,
		&sizeBytes,
		&downloadedBytes,
		&speedBPS,
		&retryCount,
		&segments,
		&priority,
		&errorMessage,
		&waitUntilRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:              id,
		StableReference: stableReference,
		DirectURL:       directURL.String,
		Filename:        filename,
		DestinationPath: destinationPath.String,
		Category:        category.String,
		Status:          Status(statusStr),
		Progress:        progress.Float64,
		SizeBytes:       sizeBytes.Int64,
		DownloadedBytes: downloadedBytes.Int64,
		SpeedBPS:        speedBPS.Int64,
		RetryCount:      int(retryCount.Int64),
		Segments:        int(segments.Int64),
		Priority:        int(priority.Int64),
		ErrorMessage:    errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if waitUntilRaw.Valid {
		if waitUntil, err := parseTimeString(waitUntilRaw.String); err == nil {
			task.WaitUntil = &waitUntil
		}
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			task.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			task.CompletedAt = &completed
		}
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
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

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
