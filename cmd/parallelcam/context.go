package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"parallelcamera/internal/config"
	"parallelcamera/internal/gateway"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/mirror"
	"parallelcamera/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger writes warnings and errors to stderr so command output stays clean.
func (c *commandContext) logger() *slog.Logger {
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg, store.WithLogger(c.logger()))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func (c *commandContext) withMirror(ctx context.Context, fn func(*mirror.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	svc, err := mirror.Open(ctx, cfg, c.logger())
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func (c *commandContext) gateway() (gateway.Capabilities, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return gateway.New(cfg, c.logger())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
