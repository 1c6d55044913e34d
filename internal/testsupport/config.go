package testsupport

import (
	"path/filepath"
	"testing"

	"parallelcamera/internal/config"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Gateway.APIKey = "test-key"

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

// WithHistoryLimit overrides the record store history cap.
func WithHistoryLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.HistoryLimit = limit
	}
}

// WithMirrorLimit overrides the mirror cap.
func WithMirrorLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mirror.Limit = limit
	}
}

// WithGatewayURL points the Gemini transport at a test server.
func WithGatewayURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gateway.BaseURL = url
	}
}

// WithAuth sets the HTTP authentication mode and its secret.
func WithAuth(mode, secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.AuthMode = mode
		switch mode {
		case config.AuthToken:
			b.cfg.Server.APIToken = secret
		case config.AuthJWT:
			b.cfg.Server.JWTSecret = secret
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
