package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertSource inserts a new source or, when the external id already exists,
// refreshes its mutable fields. Returns the source id. A changed content
// fingerprint forces the status back to pending so the pipeline reprocesses
// the source from the top.
func (s *Store) UpsertSource(ctx context.Context, src Source) (int64, error) {
	if src.ExternalID == "" {
		return 0, errors.New("external id is required")
	}
	if err := s.checkConnState(ctx); err != nil {
		return 0, fmt.Errorf("check connection state: %w", err)
	}

	now := time.Now().UTC()
	existing, err := s.GetByExternalID(ctx, src.ExternalID)
	if err != nil {
		return 0, err
	}

	if existing == nil {
		status := src.Status
		if status == "" {
			status = SourceStatusPending
		}
		res, err := s.execWithRetry(ctx,
			`INSERT INTO sources (
                external_id, title, published_at, duration_sec, classification, status,
                failure_reason, content_fingerprint, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			src.ExternalID,
			src.Title,
			nullableTime(&src.PublishedAt),
			src.DurationSec,
			string(src.Classification),
			string(status),
			nullableString(src.FailureReason),
			nullableString(src.ContentFingerprint),
			now.Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return 0, fmt.Errorf("insert source: %w", err)
		}
		return res.LastInsertId()
	}

	status := existing.Status
	failureReason := existing.FailureReason
	fingerprintChanged := src.ContentFingerprint != "" && src.ContentFingerprint != existing.ContentFingerprint
	if fingerprintChanged {
		status = SourceStatusPending
		failureReason = ""
	}

	if err := s.execWithoutResultRetry(ctx,
		`UPDATE sources SET title = ?, published_at = ?, duration_sec = ?, classification = ?,
             status = ?, failure_reason = ?, content_fingerprint = ?, updated_at = ?
         WHERE id = ?`,
		src.Title,
		nullableTime(&src.PublishedAt),
		src.DurationSec,
		string(src.Classification),
		string(status),
		nullableString(failureReason),
		nullableString(src.ContentFingerprint),
		now.Format(time.RFC3339Nano),
		existing.ID,
	); err != nil {
		return 0, fmt.Errorf("update source: %w", err)
	}
	if fingerprintChanged {
		if err := s.InvalidateCachedVoiceEmbeddings(ctx, existing.ID); err != nil {
			return 0, fmt.Errorf("invalidate cached voice embeddings: %w", err)
		}
	}
	return existing.ID, nil
}

// GetByID fetches a source by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Source, error) {
	row := s.conn().QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// GetByExternalID fetches a source by its external (provider) identifier.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*Source, error) {
	row := s.conn().QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE external_id = ?`, externalID)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source by external id: %w", err)
	}
	return src, nil
}

// ListByStatus returns sources matching a status ordered by creation time.
func (s *Store) ListByStatus(ctx context.Context, statuses ...SourceStatus) ([]*Source, error) {
	var (
		rows *sql.Rows
		err  error
	)
	baseQuery := `SELECT ` + sourceColumns + ` FROM sources`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.conn().QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, st := range statuses {
			args[i] = string(st)
		}
		rows, err = s.conn().QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// AdvanceStatus moves a source to a new status, clearing the failure reason
// unless the new status is failed.
func (s *Store) AdvanceStatus(ctx context.Context, id int64, status SourceStatus, failureReason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE sources SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
		string(status), nullableString(failureReason), now, id,
	); err != nil {
		return fmt.Errorf("advance status: %w", err)
	}
	return nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight source.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE sources SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns sources stuck in a processing status back to
// pending when their heartbeat has expired, so a crashed worker's claim does
// not block reprocessing forever.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	statuses := make([]SourceStatus, 0, len(processingStatuses))
	for st := range processingStatuses {
		statuses = append(statuses, st)
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+2)
	args = append(args, string(SourceStatusPending), time.Now().UTC().Format(time.RFC3339Nano))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	query := `UPDATE sources SET status = ?, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (` + placeholders + `) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale sources: %w", err)
	}
	return res.RowsAffected()
}

// Reingest clears a terminal (failed/skipped) source back to pending,
// dropping its failure reason so the pipeline reprocesses it from C1.
func (s *Store) Reingest(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx,
			`UPDATE sources SET status = ?, failure_reason = NULL, updated_at = ?
             WHERE status IN (?, ?)`,
			string(SourceStatusPending),
			time.Now().UTC().Format(time.RFC3339Nano),
			string(SourceStatusFailed),
			string(SourceStatusSkipped),
		)
		if err != nil {
			return 0, fmt.Errorf("reingest all terminal sources: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, string(SourceStatusPending), time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE sources SET status = ?, failure_reason = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status IN ('` + string(SourceStatusFailed) + `', '` + string(SourceStatusSkipped) + `')`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reingest selected sources: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSource removes a source and, via cascade delete, its segments.
func (s *Store) DeleteSource(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of sources grouped by status.
func (s *Store) Stats(ctx context.Context) (map[SourceStatus]int, error) {
	rows, err := s.conn().QueryContext(ctx, `SELECT status, COUNT(1) FROM sources GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[SourceStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[SourceStatus(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates source state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{}
	for status, count := range stats {
		summary.Total += count
		switch status {
		case SourceStatusPending:
			summary.Pending += count
		case SourceStatusFailed:
			summary.Failed += count
		case SourceStatusSkipped:
			summary.Skipped += count
		case SourceStatusCompleted:
			summary.Completed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				summary.Processing += count
			}
		}
	}
	return summary, nil
}
