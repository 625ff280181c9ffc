package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"podingest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.SourceChannelID = "UCtest"
	cfgVal.StagingDir = filepath.Join(base, "staging")
	cfgVal.AudioDir = filepath.Join(base, "audio")
	cfgVal.LogDir = filepath.Join(base, "logs")
	cfgVal.StoreDir = filepath.Join(base, "store")
	cfgVal.VoiceProfileDir = filepath.Join(base, "voices")
	cfgVal.WhisperXCacheDir = filepath.Join(base, "whisperx-cache")
	cfgVal.SubtitlesCacheDir = filepath.Join(base, "subs-cache")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSourceChannelID overrides the channel id on the test config.
func WithSourceChannelID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SourceChannelID = id
	}
}

// WithPrimaryVoiceProfile sets the primary voice profile name on the test config.
func WithPrimaryVoiceProfile(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.PrimaryVoiceProfileName = name
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default podingest external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "uvx"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.StagingDir)
}
