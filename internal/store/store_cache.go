package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

const cacheRoundingEpsilon = 0.01

var txReadOnlyOptions = sql.TxOptions{ReadOnly: true}

func roundSec(v float64) float64 {
	return math.Round(v/cacheRoundingEpsilon) * cacheRoundingEpsilon
}

// CachedVoiceEmbeddings fetches cached voice embeddings for a source in a
// read-only transaction. If the read fails — for example because the
// connection was left in an aborted transaction state — the store rolls
// back and returns an empty result rather than propagating the error: a
// cache miss only costs re-extraction, so it must never fail the caller.
func (s *Store) CachedVoiceEmbeddings(ctx context.Context, sourceID int64) map[[2]float64][]float32 {
	result := make(map[[2]float64][]float32)

	tx, err := s.conn().BeginTx(ctx, &txReadOnlyOptions)
	if err != nil {
		return result
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT start_sec_rounded, end_sec_rounded, voice_embedding FROM cached_voice_embeddings WHERE source_id = ?`,
		sourceID,
	)
	if err != nil {
		return result
	}
	defer rows.Close()

	for rows.Next() {
		var start, end float64
		var blob []byte
		if err := rows.Scan(&start, &end, &blob); err != nil {
			return result
		}
		result[[2]float64{start, end}] = decodeVector(blob)
	}
	if rows.Err() != nil {
		return make(map[[2]float64][]float32)
	}
	return result
}

// StoreCachedVoiceEmbedding persists a single voice embedding sample keyed
// by its rounded time bounds so later reruns can skip extraction.
func (s *Store) StoreCachedVoiceEmbedding(ctx context.Context, sample CachedVoiceEmbedding) error {
	start := roundSec(sample.StartSecRounded)
	end := roundSec(sample.EndSecRounded)
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO cached_voice_embeddings (source_id, start_sec_rounded, end_sec_rounded, voice_embedding)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (source_id, start_sec_rounded, end_sec_rounded) DO UPDATE SET
             voice_embedding = excluded.voice_embedding`,
		sample.SourceID, start, end, encodeVector(sample.VoiceEmbedding),
	); err != nil {
		return fmt.Errorf("store cached voice embedding: %w", err)
	}
	return nil
}

// InvalidateCachedVoiceEmbeddings drops cached embeddings for a source, used
// when its content fingerprint changes and prior extractions can no longer
// be trusted.
func (s *Store) InvalidateCachedVoiceEmbeddings(ctx context.Context, sourceID int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`DELETE FROM cached_voice_embeddings WHERE source_id = ?`, sourceID,
	); err != nil {
		return fmt.Errorf("invalidate cached voice embeddings: %w", err)
	}
	return nil
}
