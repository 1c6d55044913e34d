package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Server contains configuration for the HTTP surface.
type Server struct {
	Bind                string `toml:"bind"`
	AuthMode            string `toml:"auth_mode"`
	APIToken            string `toml:"api_token" env:"PARALLELCAM_API_TOKEN"`
	JWTSecret           string `toml:"jwt_secret" env:"PARALLELCAM_JWT_SECRET"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	MaxBodyMiB          int    `toml:"max_body_mib"`
}

// ModelRoute selects the primary and fallback model for one capability.
type ModelRoute struct {
	Model          string `toml:"model"`
	Fallback       string `toml:"fallback"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Gateway contains configuration for the remote capability gateway.
type Gateway struct {
	// Transport is "gemini" (direct REST) or "remote" (another Parallel Camera server).
	Transport   string `toml:"transport"`
	APIKey      string `toml:"api_key" env:"GEMINI_API_KEY,VERTEX_API_KEY"`
	BaseURL     string `toml:"base_url"`
	RemoteURL   string `toml:"remote_url"`
	RemoteToken string `toml:"remote_token"`
	MaxAttempts int    `toml:"max_attempts"`

	Describe   ModelRoute `toml:"describe"`
	Augment    ModelRoute `toml:"augment"`
	Generate   ModelRoute `toml:"generate"`
	Transcribe ModelRoute `toml:"transcribe"`
}

// Store contains configuration for the local record store.
type Store struct {
	// HistoryLimit caps the history collection to the newest N records. Zero disables the cap.
	HistoryLimit int `toml:"history_limit"`
}

// Mirror contains configuration for the server-side history mirror.
type Mirror struct {
	Backend     string `toml:"backend"`
	Limit       int    `toml:"limit"`
	PostgresDSN string `toml:"postgres_dsn" env:"PARALLELCAM_POSTGRES_DSN"`
	NATSURL     string `toml:"nats_url" env:"PARALLELCAM_NATS_URL"`
	NATSBucket  string `toml:"nats_bucket"`
}

// Capture contains configuration for the capture orchestrator.
type Capture struct {
	SessionTTLSeconds int  `toml:"session_ttl_seconds"`
	MirrorResults     bool `toml:"mirror_results"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level" env:"PARALLELCAM_LOG_LEVEL"`
}

// Config encapsulates all configuration values for Parallel Camera.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Server: HTTP bind address, authentication, timeouts
//   - Gateway: transport selection, credentials, per-capability models
//   - Store: local record store retention
//   - Mirror: server-side history mirror backend and cap
//   - Capture: orchestrator session housekeeping
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Server  Server  `toml:"server"`
	Gateway Gateway `toml:"gateway"`
	Store   Store   `toml:"store"`
	Mirror  Mirror  `toml:"mirror"`
	Capture Capture `toml:"capture"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file is decoded. The returned config has all
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

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, "", false, fmt.Errorf("read environment overrides: %w", err)
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
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

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the location of the local record store database.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, "camera.db")
}

// MirrorPath returns the location of the sqlite history mirror database.
func (c *Config) MirrorPath() string {
	return filepath.Join(c.Paths.DataDir, "mirror.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "parallelcamd.lock")
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
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
