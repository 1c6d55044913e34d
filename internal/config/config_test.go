package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"parallelcamera/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "parallelcam")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.StorePath() != filepath.Join(wantData, "camera.db") {
		t.Fatalf("unexpected store path: %q", cfg.StorePath())
	}
	if cfg.Server.Bind != "127.0.0.1:8787" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Gateway.Transport != config.TransportGemini {
		t.Fatalf("unexpected transport: %q", cfg.Gateway.Transport)
	}
	if cfg.Gateway.Describe.Fallback != "gemini-2.0-flash" {
		t.Fatalf("unexpected describe fallback: %q", cfg.Gateway.Describe.Fallback)
	}
	if cfg.Gateway.Generate.TimeoutSeconds != 120 {
		t.Fatalf("unexpected generate timeout: %d", cfg.Gateway.Generate.TimeoutSeconds)
	}
	if cfg.Store.HistoryLimit != 50 || cfg.Mirror.Limit != 50 {
		t.Fatalf("unexpected retention: store=%d mirror=%d", cfg.Store.HistoryLimit, cfg.Mirror.Limit)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("PARALLELCAM_LOG_LEVEL", "DEBUG")
	t.Setenv("PARALLELCAM_API_TOKEN", "secret-token")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[server]\nauth_mode = \"token\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Gateway.APIKey != "env-key" {
		t.Fatalf("expected api key from env, got %q", cfg.Gateway.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized log level, got %q", cfg.Logging.Level)
	}
	if cfg.Server.APIToken != "secret-token" {
		t.Fatalf("expected api token from env, got %q", cfg.Server.APIToken)
	}
}

func TestLoadParsesFileValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dataDir := t.TempDir()

	cfg := config.Default()
	cfg.Paths.DataDir = dataDir
	cfg.Gateway.Describe.Model = "custom-describe"
	cfg.Gateway.Describe.Fallback = "custom-describe"
	cfg.Store.HistoryLimit = 0
	cfg.Mirror.Backend = "POSTGRES"
	cfg.Mirror.PostgresDSN = "postgres://u:p@localhost/db"

	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir: %q", loaded.Paths.DataDir)
	}
	if loaded.Gateway.Describe.Fallback != "" {
		t.Fatalf("expected fallback equal to primary to be cleared, got %q", loaded.Gateway.Describe.Fallback)
	}
	if loaded.Store.HistoryLimit != 0 {
		t.Fatalf("expected uncapped history, got %d", loaded.Store.HistoryLimit)
	}
	if loaded.Mirror.Backend != config.MirrorPostgres {
		t.Fatalf("expected lowercased backend, got %q", loaded.Mirror.Backend)
	}
}

func TestValidateRejectsInconsistentSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"token without secret", func(c *config.Config) { c.Server.AuthMode = config.AuthToken }, "server.api_token"},
		{"short jwt secret", func(c *config.Config) {
			c.Server.AuthMode = config.AuthJWT
			c.Server.JWTSecret = "short"
		}, "server.jwt_secret"},
		{"unknown transport", func(c *config.Config) { c.Gateway.Transport = "grpc" }, "gateway.transport"},
		{"remote without url", func(c *config.Config) { c.Gateway.Transport = config.TransportRemote }, "gateway.remote_url"},
		{"negative history limit", func(c *config.Config) { c.Store.HistoryLimit = -1 }, "store.history_limit"},
		{"nats without url", func(c *config.Config) { c.Mirror.Backend = config.MirrorNATS }, "mirror.nats_url"},
		{"bad bind", func(c *config.Config) { c.Server.Bind = "localhost" }, "server.bind"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Mirror.NATSBucket != "camera_history" {
		t.Fatalf("unexpected bucket: %q", cfg.Mirror.NATSBucket)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
