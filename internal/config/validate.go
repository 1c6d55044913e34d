package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q is not a host:port address: %w", c.Server.Bind, err)
	}
	switch c.Server.AuthMode {
	case AuthNone:
	case AuthToken:
		if c.Server.APIToken == "" {
			return errors.New("server.api_token is required when server.auth_mode is \"token\" (or set PARALLELCAM_API_TOKEN)")
		}
	case AuthJWT:
		if len(c.Server.JWTSecret) < 16 {
			return errors.New("server.jwt_secret must be at least 16 characters when server.auth_mode is \"jwt\"")
		}
	default:
		return fmt.Errorf("server.auth_mode %q is not one of none, token, jwt", c.Server.AuthMode)
	}
	return nil
}

func (c *Config) validateGateway() error {
	switch c.Gateway.Transport {
	case TransportGemini:
		// The API key is checked when the gateway is constructed so that
		// store-only CLI commands work without credentials.
	case TransportRemote:
		if c.Gateway.RemoteURL == "" {
			return errors.New("gateway.remote_url is required when gateway.transport is \"remote\"")
		}
	default:
		return fmt.Errorf("gateway.transport %q is not one of gemini, remote", c.Gateway.Transport)
	}
	if c.Gateway.MaxAttempts > 10 {
		return errors.New("gateway.max_attempts must be 10 or less")
	}
	for name, route := range map[string]ModelRoute{
		"describe":   c.Gateway.Describe,
		"augment":    c.Gateway.Augment,
		"generate":   c.Gateway.Generate,
		"transcribe": c.Gateway.Transcribe,
	} {
		if route.TimeoutSeconds > 600 {
			return fmt.Errorf("gateway.%s.timeout_seconds must be 600 or less", name)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.HistoryLimit < 0 {
		return errors.New("store.history_limit must be 0 (uncapped) or positive")
	}
	return nil
}

func (c *Config) validateMirror() error {
	if c.Mirror.Limit <= 0 {
		return errors.New("mirror.limit must be positive")
	}
	switch c.Mirror.Backend {
	case MirrorSQLite:
	case MirrorPostgres:
		if c.Mirror.PostgresDSN == "" {
			return errors.New("mirror.postgres_dsn is required when mirror.backend is \"postgres\" (or set PARALLELCAM_POSTGRES_DSN)")
		}
	case MirrorNATS:
		if c.Mirror.NATSURL == "" {
			return errors.New("mirror.nats_url is required when mirror.backend is \"nats\" (or set PARALLELCAM_NATS_URL)")
		}
	default:
		return fmt.Errorf("mirror.backend %q is not one of sqlite, postgres, nats", c.Mirror.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of console, json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
