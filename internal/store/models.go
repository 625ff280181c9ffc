package store

import "time"

// SourceStatus represents the lifecycle of an ingestion source.
type SourceStatus string

const (
	SourceStatusPending     SourceStatus = "pending"
	SourceStatusFetched     SourceStatus = "fetched"
	SourceStatusTranscribed SourceStatus = "transcribed"
	SourceStatusDiarized    SourceStatus = "diarized"
	SourceStatusEmbedded    SourceStatus = "embedded"
	SourceStatusCompleted   SourceStatus = "completed"
	SourceStatusFailed      SourceStatus = "failed"
	SourceStatusSkipped     SourceStatus = "skipped"
)

var processingStatuses = map[SourceStatus]struct{}{
	SourceStatusFetched:     {},
	SourceStatusTranscribed: {},
	SourceStatusDiarized:    {},
	SourceStatusEmbedded:    {},
}

var terminalStatuses = map[SourceStatus]struct{}{
	SourceStatusFailed:  {},
	SourceStatusSkipped: {},
}

// Classification describes a Source's speaker-shape as determined at listing
// or after diarization.
type Classification string

const (
	ClassificationMonologue          Classification = "monologue"
	ClassificationInterview          Classification = "interview"
	ClassificationMonologueWithClips Classification = "monologue_with_clips"
	ClassificationUnknown            Classification = "unknown"
)

// Source is an immutable external audio reference, mutable only in its
// processing status, failure reason, and content fingerprint.
type Source struct {
	ID                 int64
	ExternalID         string
	Title              string
	PublishedAt        time.Time
	DurationSec        float64
	Classification     Classification
	Status             SourceStatus
	FailureReason      string
	ContentFingerprint string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastHeartbeat      *time.Time
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (s Source) IsProcessing() bool {
	_, ok := processingStatuses[s.Status]
	return ok
}

// IsTerminal returns true for statuses that only an explicit reingest clears.
func (s Source) IsTerminal() bool {
	_, ok := terminalStatuses[s.Status]
	return ok
}

// Segment is the core persisted record per source.
type Segment struct {
	ID                  int64
	SourceID             int64
	Ordinal              int
	StartSec             float64
	EndSec               float64
	Text                 string
	SpeakerLabel         string
	SpeakerConfidence    float64
	VoiceEmbedding       []float32
	TextEmbedding        []float32
	TextEmbeddingModelKey string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CachedVoiceEmbedding is a keyed lookup avoiding re-extraction across reruns.
type CachedVoiceEmbedding struct {
	SourceID         int64
	StartSecRounded  float64
	EndSecRounded    float64
	VoiceEmbedding   []float32
}

// DatabaseHealth captures diagnostic information about the segment store.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalSources     int
	TotalSegments    int
	Error            string
}

// HealthSummary describes aggregated source counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Skipped    int
	Completed  int
}
