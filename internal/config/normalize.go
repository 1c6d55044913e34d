package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeGateway()
	c.normalizeMirror()
	c.normalizeCapture()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.AuthMode = strings.ToLower(strings.TrimSpace(c.Server.AuthMode))
	if c.Server.AuthMode == "" {
		c.Server.AuthMode = defaultAuthMode
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	c.Server.JWTSecret = strings.TrimSpace(c.Server.JWTSecret)
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = defaultReadTimeout
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = defaultWriteTimeout
	}
	if c.Server.MaxBodyMiB <= 0 {
		c.Server.MaxBodyMiB = defaultMaxBodyMiB
	}
}

func (c *Config) normalizeGateway() {
	g := &c.Gateway
	g.Transport = strings.ToLower(strings.TrimSpace(g.Transport))
	if g.Transport == "" {
		g.Transport = defaultTransport
	}
	g.APIKey = strings.TrimSpace(g.APIKey)
	g.BaseURL = strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
	if g.BaseURL == "" {
		g.BaseURL = defaultGeminiBaseURL
	}
	g.RemoteURL = strings.TrimRight(strings.TrimSpace(g.RemoteURL), "/")
	g.RemoteToken = strings.TrimSpace(g.RemoteToken)
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = defaultMaxAttempts
	}
	normalizeRoute(&g.Describe, defaultDescribeModel, defaultCallTimeout)
	normalizeRoute(&g.Augment, defaultAugmentModel, defaultCallTimeout)
	normalizeRoute(&g.Generate, defaultGenerateModel, defaultGenerateTimeout)
	normalizeRoute(&g.Transcribe, defaultTranscribeModel, defaultCallTimeout)
}

func normalizeRoute(route *ModelRoute, model string, timeout int) {
	route.Model = strings.TrimSpace(route.Model)
	if route.Model == "" {
		route.Model = model
	}
	route.Fallback = strings.TrimSpace(route.Fallback)
	if route.Fallback == route.Model {
		route.Fallback = ""
	}
	if route.TimeoutSeconds <= 0 {
		route.TimeoutSeconds = timeout
	}
}

func (c *Config) normalizeMirror() {
	c.Mirror.Backend = strings.ToLower(strings.TrimSpace(c.Mirror.Backend))
	if c.Mirror.Backend == "" {
		c.Mirror.Backend = defaultMirrorBackend
	}
	c.Mirror.PostgresDSN = strings.TrimSpace(c.Mirror.PostgresDSN)
	c.Mirror.NATSURL = strings.TrimSpace(c.Mirror.NATSURL)
	c.Mirror.NATSBucket = strings.TrimSpace(c.Mirror.NATSBucket)
	if c.Mirror.NATSBucket == "" {
		c.Mirror.NATSBucket = defaultNATSBucket
	}
}

func (c *Config) normalizeCapture() {
	if c.Capture.SessionTTLSeconds <= 0 {
		c.Capture.SessionTTLSeconds = defaultSessionTTLSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
