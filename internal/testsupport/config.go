package testsupport

import (
	"path/filepath"
	"testing"

	"wharf/internal/config"
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
	cfgVal.Hoster.BaseURL = "https://host.test"
	cfgVal.Hoster.APIToken = "test-token"
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.IncompleteDir = filepath.Join(base, "incomplete")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.API.Bind = "127.0.0.1:0"

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

// WithHosterURL points the test config at a specific hoster endpoint, usually
// an httptest server.
func WithHosterURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hoster.BaseURL = url
	}
}

// WithAPIKey sets the facade api key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.APIKey = key
	}
}

// WithSegments overrides the per-task segment fan-out.
func WithSegments(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.SegmentsPerTask = n
	}
}

// WithWorkers overrides the engine worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.MaxConcurrentDownloads = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
