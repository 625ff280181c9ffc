package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

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

// encodeVector packs a float32 slice into a little-endian byte blob. SQLite
// carries no native vector type; nearest-neighbor search over these columns
// is the downstream query service's concern, not the ingestion store's.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func nullableBlob(buf []byte) any {
	if len(buf) == 0 {
		return nil
	}
	return buf
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		id                 int64
		externalID         string
		title              string
		publishedAt        sql.NullString
		durationSec        float64
		classification     string
		statusStr          string
		failureReason      sql.NullString
		contentFingerprint sql.NullString
		createdRaw         string
		updatedRaw         string
		lastHeartbeatRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id, &externalID, &title, &publishedAt, &durationSec, &classification, &statusStr,
		&failureReason, &contentFingerprint, &createdRaw, &updatedRaw, &lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	src := &Source{
		ID:                 id,
		ExternalID:         externalID,
		Title:              title,
		DurationSec:        durationSec,
		Classification:     Classification(classification),
		Status:             SourceStatus(statusStr),
		FailureReason:      failureReason.String,
		ContentFingerprint: contentFingerprint.String,
	}
	if publishedAt.Valid {
		if t, err := parseTimeString(publishedAt.String); err == nil {
			src.PublishedAt = t
		}
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		src.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		src.UpdatedAt = t
	}
	if lastHeartbeatRaw.Valid {
		if t, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			src.LastHeartbeat = &t
		}
	}
	return src, nil
}

const sourceColumns = "id, external_id, title, published_at, duration_sec, classification, status, failure_reason, content_fingerprint, created_at, updated_at, last_heartbeat"

func scanSegment(scanner interface{ Scan(dest ...any) error }) (*Segment, error) {
	var (
		id                    int64
		sourceID              int64
		ordinal               int
		startSec              float64
		endSec                float64
		text                  string
		speakerLabel          string
		speakerConfidence     float64
		voiceEmbedding        []byte
		textEmbedding         []byte
		textEmbeddingModelKey sql.NullString
		createdRaw            string
		updatedRaw            string
	)
	if err := scanner.Scan(
		&id, &sourceID, &ordinal, &startSec, &endSec, &text, &speakerLabel, &speakerConfidence,
		&voiceEmbedding, &textEmbedding, &textEmbeddingModelKey, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	seg := &Segment{
		ID:                    id,
		SourceID:              sourceID,
		Ordinal:               ordinal,
		StartSec:              startSec,
		EndSec:                endSec,
		Text:                  text,
		SpeakerLabel:          speakerLabel,
		SpeakerConfidence:     speakerConfidence,
		VoiceEmbedding:        decodeVector(voiceEmbedding),
		TextEmbedding:         decodeVector(textEmbedding),
		TextEmbeddingModelKey: textEmbeddingModelKey.String,
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		seg.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		seg.UpdatedAt = t
	}
	return seg, nil
}

const segmentColumns = "id, source_id, ordinal, start_sec, end_sec, text, speaker_label, speaker_confidence, voice_embedding, text_embedding, text_embedding_model_key, created_at, updated_at"
