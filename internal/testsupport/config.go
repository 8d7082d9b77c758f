package testsupport

import (
	"path/filepath"
	"testing"

	"hackercast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, sets placeholder API credentials so validation
// passes, and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.AudioDir = filepath.Join(base, "audio")
	cfgVal.Paths.FeedDir = filepath.Join(base, "feed")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Gemini.APIKey = "test"
	cfgVal.TTS.APIKey = "test"
	cfgVal.Transistor.APIKey = "test"
	cfgVal.Transistor.ShowID = "1"

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

// WithWorkers overrides the batch worker pool size on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = workers
	}
}

// WithStoryCount overrides the number of stories enumerated per batch.
func WithStoryCount(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.HackerNews.StoryCount = count
	}
}

// WithStageAttempts overrides the attempt budget for one stage.
func WithStageAttempts(stage string, attempts int) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Pipeline.StageAttempts == nil {
			b.cfg.Pipeline.StageAttempts = map[string]int{}
		}
		b.cfg.Pipeline.StageAttempts[stage] = attempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
