package store

import (
	"context"
	"fmt"
	"time"
)

const upsertSegmentSQL = `INSERT INTO segments (
        source_id, ordinal, start_sec, end_sec, text, speaker_label, speaker_confidence,
        voice_embedding, text_embedding, text_embedding_model_key, created_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT (source_id, start_sec, end_sec, text) DO UPDATE SET
        ordinal = excluded.ordinal,
        speaker_label = excluded.speaker_label,
        speaker_confidence = excluded.speaker_confidence,
        voice_embedding = excluded.voice_embedding,
        text_embedding = excluded.text_embedding,
        text_embedding_model_key = excluded.text_embedding_model_key,
        updated_at = excluded.updated_at`

// InsertSegments persists segments for a source inside batched transactions
// (default DefaultBatchSize rows per transaction). Each row upserts on the
// (source_id, start_sec, end_sec, text) uniqueness key so reingesting a
// source behaves like delete-then-reinsert without disturbing untouched
// rows. On any batch error the whole transaction is rolled back and the
// connection is discarded and replaced before the error is re-raised, so a
// single bad batch cannot poison subsequent inserts.
func (s *Store) InsertSegments(ctx context.Context, sourceID int64, segments []Segment, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := s.checkConnState(ctx); err != nil {
		return 0, fmt.Errorf("check connection state: %w", err)
	}
	if err := validateSegmentDimensions(segments); err != nil {
		return 0, err
	}

	inserted := 0
	for start := 0; start < len(segments); start += batchSize {
		end := start + batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]
		if err := s.insertSegmentBatch(ctx, sourceID, batch); err != nil {
			return inserted, err
		}
		inserted += len(batch)
	}

	if inserted > 0 {
		if err := s.AdvanceStatus(ctx, sourceID, SourceStatusCompleted, ""); err != nil {
			return inserted, fmt.Errorf("advance source after persist: %w", err)
		}
	}
	return inserted, nil
}

func (s *Store) insertSegmentBatch(ctx context.Context, sourceID int64, batch []Segment) error {
	ctx = ensureContext(ctx)
	var execErr error
	if err := retryOnBusy(ctx, func() error {
		execErr = s.runSegmentBatchTx(ctx, sourceID, batch)
		return execErr
	}); err != nil {
		if replaceErr := s.replaceConnection(); replaceErr != nil {
			return fmt.Errorf("insert segment batch: %w (connection replace also failed: %v)", err, replaceErr)
		}
		return fmt.Errorf("insert segment batch: %w", err)
	}
	return nil
}

func (s *Store) runSegmentBatchTx(ctx context.Context, sourceID int64, batch []Segment) error {
	tx, err := s.conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin segment batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, seg := range batch {
		if _, err := tx.ExecContext(ctx, upsertSegmentSQL,
			sourceID,
			seg.Ordinal,
			seg.StartSec,
			seg.EndSec,
			seg.Text,
			seg.SpeakerLabel,
			seg.SpeakerConfidence,
			nullableBlob(encodeVector(seg.VoiceEmbedding)),
			nullableBlob(encodeVector(seg.TextEmbedding)),
			nullableString(seg.TextEmbeddingModelKey),
			now,
			now,
		); err != nil {
			return fmt.Errorf("upsert segment (start=%v): %w", seg.StartSec, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segment batch: %w", err)
	}
	return nil
}

func validateSegmentDimensions(segments []Segment) error {
	dim := 0
	for _, seg := range segments {
		if len(seg.TextEmbedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(seg.TextEmbedding)
			continue
		}
		if len(seg.TextEmbedding) != dim {
			return fmt.Errorf("inconsistent text_embedding dimension: got %d, expected %d", len(seg.TextEmbedding), dim)
		}
	}
	return nil
}

// SegmentsForSource returns a source's segments ordered by start_sec.
func (s *Store) SegmentsForSource(ctx context.Context, sourceID int64) ([]*Segment, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE source_id = ? ORDER BY start_sec`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// CountSegments returns the total number of persisted segments.
func (s *Store) CountSegments(ctx context.Context) (int, error) {
	var count int
	row := s.conn().QueryRowContext(ctx, `SELECT COUNT(1) FROM segments`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return count, nil
}
