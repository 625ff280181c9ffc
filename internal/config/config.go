package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config encapsulates all configuration values for the ingestion pipeline.
type Config struct {
	StagingDir         string `toml:"staging_dir"`
	AudioDir           string `toml:"audio_dir"`
	LogDir             string `toml:"log_dir"`
	StoreDir           string `toml:"store_dir"`
	VoiceProfileDir    string `toml:"voice_profile_dir"`
	WhisperXCacheDir   string `toml:"whisperx_cache_dir"`
	SubtitlesCacheDir  string `toml:"subtitles_cache_dir"`
	LogFormat          string `toml:"log_format"`
	LogLevel           string `toml:"log_level"`

	SourceChannelID string `toml:"source_channel_id"`
	SourceListLimit int    `toml:"source_list_limit"`

	PrimaryVoiceProfileName string  `toml:"primary_voice_profile_name"`
	SkipShorts               bool    `toml:"skip_shorts"`
	MaxAudioDurationSec      int     `toml:"max_audio_duration_sec"`
	AssumeMonologue          bool    `toml:"assume_monologue"`
	ChaffeeMinSimilarity     float64 `toml:"chaffee_min_similarity"`
	GuestMinSimilarity       float64 `toml:"guest_min_similarity"`
	AttributionMargin        float64 `toml:"attribution_margin"`

	SegmentMinChars            int     `toml:"segment_min_chars"`
	SegmentMaxChars            int     `toml:"segment_max_chars"`
	SegmentHardCapChars        int     `toml:"segment_hard_cap_chars"`
	SegmentMaxGapSec           float64 `toml:"segment_max_gap_sec"`
	SegmentMaxMergeDurationSec float64 `toml:"segment_max_merge_duration_sec"`

	TextEmbeddingModelKey     string `toml:"text_embedding_model_key"`
	TextEmbeddingDimensions   int    `toml:"text_embedding_dimensions"`
	TextEmbeddingBaseURL      string `toml:"text_embedding_base_url"`
	TextEmbeddingAPIKey       string `toml:"text_embedding_api_key"`
	VoiceEmbeddingBatchSize   int    `toml:"voice_embedding_batch_size"`

	IOWorkers int `toml:"io_workers"`
	GPUWorkers int `toml:"gpu_workers"`
	DBWorkers  int `toml:"db_workers"`

	StageHeartbeatInterval int `toml:"stage_heartbeat_interval"`
	StageHeartbeatTimeout  int `toml:"stage_heartbeat_timeout"`

	WhisperXModel       string `toml:"whisperx_model"`
	WhisperXCUDAEnabled bool   `toml:"whisperx_cuda_enabled"`
	WhisperXVADMethod   string `toml:"whisperx_vad_method"`

	RemoteASRAPIKey  string `toml:"remote_asr_api_key"`
	RemoteASRBaseURL string `toml:"remote_asr_base_url"`
	RemoteASRModel   string `toml:"remote_asr_model"`

	HuggingFaceToken string `toml:"hugging_face_token"`

	SubtitlesEnabled       bool     `toml:"subtitles_enabled"`
	OpenSubtitlesAPIKey    string   `toml:"opensubtitles_api_key"`
	OpenSubtitlesUserAgent string   `toml:"opensubtitles_user_agent"`
	OpenSubtitlesUserToken string   `toml:"opensubtitles_user_token"`
	OpenSubtitlesLanguages []string `toml:"opensubtitles_languages"`

	CleanupAudioAfterProcessing bool `toml:"cleanup_audio_after_processing"`

	FetchMaxRetries int `toml:"fetch_max_retries"`

	PartialPersistOnEmbeddingFailure bool `toml:"partial_persist_on_embedding_failure"`
}

const (
	defaultStagingDir        = "~/.local/share/podingest/staging"
	defaultAudioDir          = "~/.local/share/podingest/audio"
	defaultLogDir            = "~/.local/share/podingest/logs"
	defaultStoreDir          = "~/.local/share/podingest/store"
	defaultVoiceProfileDir   = "~/.local/share/podingest/voices"
	defaultWhisperXCacheDir  = "~/.local/share/podingest/cache/whisperx"
	defaultSubtitlesCacheDir = "~/.local/share/podingest/cache/subtitles"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"

	defaultSourceListLimit = 2000

	defaultPrimaryVoiceProfileName = "primary"
	defaultMaxAudioDurationSec     = 60 * 60
	defaultChaffeeMinSimilarity    = 0.62
	defaultGuestMinSimilarity      = 0.82
	defaultAttributionMargin       = 0.05

	defaultSegmentMinChars            = 200
	defaultSegmentMaxChars            = 1200
	defaultSegmentHardCapChars        = 1800
	defaultSegmentMaxGapSec           = 5.0
	defaultSegmentMaxMergeDurationSec = 120.0

	defaultTextEmbeddingModelKey   = "text-embedding-3-large"
	defaultTextEmbeddingDimensions = 3072
	defaultVoiceEmbeddingBatchSize = 16

	defaultIOWorkers  = 4
	defaultGPUWorkers = 1
	defaultDBWorkers  = 2

	defaultStageHeartbeatInterval = 15
	defaultStageHeartbeatTimeout  = 180

	defaultWhisperXModel     = "large-v3"
	defaultWhisperXVADMethod = "silero"

	defaultOpenSubtitlesUserAgent = "podingest/dev"

	defaultFetchMaxRetries = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		StagingDir:        defaultStagingDir,
		AudioDir:          defaultAudioDir,
		LogDir:            defaultLogDir,
		StoreDir:          defaultStoreDir,
		VoiceProfileDir:   defaultVoiceProfileDir,
		WhisperXCacheDir:  defaultWhisperXCacheDir,
		SubtitlesCacheDir: defaultSubtitlesCacheDir,
		LogFormat:         defaultLogFormat,
		LogLevel:          defaultLogLevel,

		SourceListLimit: defaultSourceListLimit,

		PrimaryVoiceProfileName: defaultPrimaryVoiceProfileName,
		SkipShorts:              true,
		MaxAudioDurationSec:     defaultMaxAudioDurationSec,
		AssumeMonologue:         false,
		ChaffeeMinSimilarity:    defaultChaffeeMinSimilarity,
		GuestMinSimilarity:      defaultGuestMinSimilarity,
		AttributionMargin:       defaultAttributionMargin,

		SegmentMinChars:            defaultSegmentMinChars,
		SegmentMaxChars:            defaultSegmentMaxChars,
		SegmentHardCapChars:        defaultSegmentHardCapChars,
		SegmentMaxGapSec:           defaultSegmentMaxGapSec,
		SegmentMaxMergeDurationSec: defaultSegmentMaxMergeDurationSec,

		TextEmbeddingModelKey:   defaultTextEmbeddingModelKey,
		TextEmbeddingDimensions: defaultTextEmbeddingDimensions,
		VoiceEmbeddingBatchSize: defaultVoiceEmbeddingBatchSize,

		IOWorkers:  defaultIOWorkers,
		GPUWorkers: defaultGPUWorkers,
		DBWorkers:  defaultDBWorkers,

		StageHeartbeatInterval: defaultStageHeartbeatInterval,
		StageHeartbeatTimeout:  defaultStageHeartbeatTimeout,

		WhisperXModel:       defaultWhisperXModel,
		WhisperXCUDAEnabled: false,
		WhisperXVADMethod:   defaultWhisperXVADMethod,

		OpenSubtitlesLanguages: []string{"en"},
		OpenSubtitlesUserAgent: defaultOpenSubtitlesUserAgent,

		CleanupAudioAfterProcessing: true,

		FetchMaxRetries: defaultFetchMaxRetries,

		PartialPersistOnEmbeddingFailure: false,
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podingest/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/podingest/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podingest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.StagingDir, err = expandPath(c.StagingDir); err != nil {
		return fmt.Errorf("staging_dir: %w", err)
	}
	if c.AudioDir, err = expandPath(c.AudioDir); err != nil {
		return fmt.Errorf("audio_dir: %w", err)
	}
	if c.LogDir, err = expandPath(c.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	if c.StoreDir, err = expandPath(c.StoreDir); err != nil {
		return fmt.Errorf("store_dir: %w", err)
	}
	if c.VoiceProfileDir, err = expandPath(c.VoiceProfileDir); err != nil {
		return fmt.Errorf("voice_profile_dir: %w", err)
	}
	if strings.TrimSpace(c.WhisperXCacheDir) == "" {
		c.WhisperXCacheDir = defaultWhisperXCacheDir
	}
	if c.WhisperXCacheDir, err = expandPath(c.WhisperXCacheDir); err != nil {
		return fmt.Errorf("whisperx_cache_dir: %w", err)
	}
	if strings.TrimSpace(c.SubtitlesCacheDir) == "" {
		c.SubtitlesCacheDir = defaultSubtitlesCacheDir
	}
	if c.SubtitlesCacheDir, err = expandPath(c.SubtitlesCacheDir); err != nil {
		return fmt.Errorf("subtitles_cache_dir: %w", err)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "", "console":
		c.LogFormat = "console"
	case "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.SourceListLimit <= 0 {
		c.SourceListLimit = defaultSourceListLimit
	}

	c.PrimaryVoiceProfileName = strings.TrimSpace(c.PrimaryVoiceProfileName)
	if c.PrimaryVoiceProfileName == "" {
		c.PrimaryVoiceProfileName = defaultPrimaryVoiceProfileName
	}

	c.WhisperXVADMethod = strings.ToLower(strings.TrimSpace(c.WhisperXVADMethod))
	if c.WhisperXVADMethod == "" {
		c.WhisperXVADMethod = defaultWhisperXVADMethod
	}

	c.HuggingFaceToken = strings.TrimSpace(c.HuggingFaceToken)
	if c.HuggingFaceToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.HuggingFaceToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.HuggingFaceToken = strings.TrimSpace(value)
		}
	}

	c.TextEmbeddingAPIKey = strings.TrimSpace(c.TextEmbeddingAPIKey)
	if c.TextEmbeddingAPIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.TextEmbeddingAPIKey = strings.TrimSpace(value)
		}
	}

	c.OpenSubtitlesAPIKey = strings.TrimSpace(c.OpenSubtitlesAPIKey)
	if c.OpenSubtitlesAPIKey == "" {
		if value, ok := os.LookupEnv("OPENSUBTITLES_API_KEY"); ok {
			c.OpenSubtitlesAPIKey = strings.TrimSpace(value)
		}
	}
	c.OpenSubtitlesUserAgent = strings.TrimSpace(c.OpenSubtitlesUserAgent)
	if c.OpenSubtitlesUserAgent == "" {
		c.OpenSubtitlesUserAgent = defaultOpenSubtitlesUserAgent
	}
	c.OpenSubtitlesUserToken = strings.TrimSpace(c.OpenSubtitlesUserToken)
	if c.OpenSubtitlesUserToken == "" {
		if value, ok := os.LookupEnv("OPENSUBTITLES_USER_TOKEN"); ok {
			c.OpenSubtitlesUserToken = strings.TrimSpace(value)
		}
	}
	if len(c.OpenSubtitlesLanguages) == 0 {
		c.OpenSubtitlesLanguages = []string{"en"}
	} else {
		langs := make([]string, 0, len(c.OpenSubtitlesLanguages))
		seen := make(map[string]struct{}, len(c.OpenSubtitlesLanguages))
		for _, lang := range c.OpenSubtitlesLanguages {
			normalized := strings.ToLower(strings.TrimSpace(lang))
			if normalized == "" {
				continue
			}
			if _, exists := seen[normalized]; exists {
				continue
			}
			seen[normalized] = struct{}{}
			langs = append(langs, normalized)
		}
		if len(langs) == 0 {
			langs = []string{"en"}
		}
		c.OpenSubtitlesLanguages = langs
	}

	if c.IOWorkers <= 0 {
		c.IOWorkers = defaultIOWorkers
	}
	if c.GPUWorkers <= 0 {
		c.GPUWorkers = defaultGPUWorkers
	}
	if c.DBWorkers <= 0 {
		c.DBWorkers = defaultDBWorkers
	}

	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.SourceChannelID == "" {
		return errors.New("source_channel_id must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"source_list_limit":             c.SourceListLimit,
		"max_audio_duration_sec":        c.MaxAudioDurationSec,
		"segment_min_chars":             c.SegmentMinChars,
		"segment_max_chars":             c.SegmentMaxChars,
		"segment_hard_cap_chars":        c.SegmentHardCapChars,
		"text_embedding_dimensions":     c.TextEmbeddingDimensions,
		"voice_embedding_batch_size":    c.VoiceEmbeddingBatchSize,
		"io_workers":                    c.IOWorkers,
		"gpu_workers":                   c.GPUWorkers,
		"db_workers":                    c.DBWorkers,
		"stage_heartbeat_interval":      c.StageHeartbeatInterval,
		"stage_heartbeat_timeout":       c.StageHeartbeatTimeout,
	}); err != nil {
		return err
	}
	if c.StageHeartbeatTimeout <= c.StageHeartbeatInterval {
		return errors.New("stage_heartbeat_timeout must be greater than stage_heartbeat_interval")
	}
	if c.SegmentMaxChars < c.SegmentMinChars {
		return errors.New("segment_max_chars must be greater than or equal to segment_min_chars")
	}
	if c.SegmentHardCapChars < c.SegmentMaxChars {
		return errors.New("segment_hard_cap_chars must be greater than or equal to segment_max_chars")
	}
	if c.SegmentMaxGapSec <= 0 {
		return errors.New("segment_max_gap_sec must be positive")
	}
	if c.SegmentMaxMergeDurationSec <= 0 {
		return errors.New("segment_max_merge_duration_sec must be positive")
	}
	if c.ChaffeeMinSimilarity < 0 || c.ChaffeeMinSimilarity > 1 {
		return errors.New("chaffee_min_similarity must be between 0 and 1")
	}
	if c.GuestMinSimilarity < 0 || c.GuestMinSimilarity > 1 {
		return errors.New("guest_min_similarity must be between 0 and 1")
	}
	if c.AttributionMargin < 0 || c.AttributionMargin > 1 {
		return errors.New("attribution_margin must be between 0 and 1")
	}
	if c.SubtitlesEnabled {
		if strings.TrimSpace(c.OpenSubtitlesAPIKey) == "" {
			return errors.New("opensubtitles_api_key must be set when subtitles_enabled is true")
		}
		if len(c.OpenSubtitlesLanguages) == 0 {
			return errors.New("opensubtitles_languages must include at least one language when subtitles_enabled is true")
		}
	}
	return nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.StagingDir, c.AudioDir, c.LogDir, c.StoreDir, c.VoiceProfileDir, c.WhisperXCacheDir, c.SubtitlesCacheDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WhisperXBinary returns the ASR launcher command name.
func (c *Config) WhisperXBinary() string {
	return "uvx"
}

// FFmpegBinary returns the ffmpeg executable name used for audio extraction.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// YtDlpBinary returns the downloader executable name used to fetch audio and
// owner/platform captions.
func (c *Config) YtDlpBinary() string {
	return "yt-dlp"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := `# podingest configuration
# ========================
# Edit the REQUIRED settings below, then customize optional settings when needed.

# ============================================================================
# REQUIRED SETTINGS
# ============================================================================

source_channel_id = "UCxxxxxxxxxxxxxxxxxxxxxx"       # YouTube channel to ingest

# ============================================================================
# PATHS
# ============================================================================

staging_dir = "~/.local/share/podingest/staging"     # Working directory for downloaded audio
audio_dir = "~/.local/share/podingest/audio"          # Extracted/normalized audio artifacts
log_dir = "~/.local/share/podingest/logs"             # Logs
store_dir = "~/.local/share/podingest/store"          # Segment store database directory
voice_profile_dir = "~/.local/share/podingest/voices" # Enrolled voice profile samples
whisperx_cache_dir = "~/.local/share/podingest/cache/whisperx"
subtitles_cache_dir = "~/.local/share/podingest/cache/subtitles"

# ============================================================================
# SOURCE LISTING
# ============================================================================

source_list_limit = 2000                             # Maximum videos to enumerate per run
skip_shorts = true                                    # Skip videos under the short-form duration threshold
max_audio_duration_sec = 3600                         # Reject videos longer than this (1 hour)

# ============================================================================
# SPEAKER ATTRIBUTION
# ============================================================================

primary_voice_profile_name = "primary"                # Enrolled voice profile treated as the show host
assume_monologue = false                              # Skip diarization entirely for single-speaker shows
chaffee_min_similarity = 0.62                         # Minimum cosine similarity to attribute to the primary speaker
guest_min_similarity = 0.82                           # Minimum cosine similarity to attribute to a known guest profile
attribution_margin = 0.05                             # Required margin between best and second-best match

# ============================================================================
# SEGMENT BUILDING
# ============================================================================

segment_min_chars = 200
segment_max_chars = 1200
segment_hard_cap_chars = 1800
segment_max_gap_sec = 5.0
segment_max_merge_duration_sec = 120.0

# ============================================================================
# EMBEDDING
# ============================================================================

text_embedding_model_key = "text-embedding-3-large"
text_embedding_dimensions = 3072
text_embedding_base_url = ""                          # Override for a self-hosted embedding endpoint
text_embedding_api_key = ""                           # Falls back to OPENAI_API_KEY
voice_embedding_batch_size = 16

# ============================================================================
# ASR / DIARIZATION MODELS
# ============================================================================

whisperx_model = "large-v3"
whisperx_cuda_enabled = false
whisperx_vad_method = "silero"                        # "silero" (default) or "pyannote" (requires hugging_face_token)
hugging_face_token = ""

# Remote ASR fallback, used only when whisperx_model is left blank (no local model)
remote_asr_api_key = ""
remote_asr_base_url = ""
remote_asr_model = "whisper-1"

# ============================================================================
# THIRD-PARTY SUBTITLES (transcript acquirer fallback tier)
# ============================================================================

subtitles_enabled = false
opensubtitles_api_key = "your_opensubtitles_api_key_here"
opensubtitles_user_agent = "podingest/<version>"
opensubtitles_user_token = ""
opensubtitles_languages = ["en"]

# ============================================================================
# CONCURRENCY
# ============================================================================

io_workers = 4                                        # Network/ffmpeg-bound workers
gpu_workers = 1                                        # ASR/diarization/embedding workers sharing the GPU lock
db_workers = 2                                          # Segment store writer workers

stage_heartbeat_interval = 15
stage_heartbeat_timeout = 180

cleanup_audio_after_processing = true                 # Delete extracted audio once segments are persisted

# ============================================================================
# LOGGING
# ============================================================================

log_format = "console"                                # "console" or "json"
log_level = "info"                                    # info, debug, warn, error
`

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
