package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parallelcamera/internal/config"
	"parallelcamera/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config file whose directories live under a temp
// dir and whose network endpoints refuse connections immediately.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithGatewayURL("http://127.0.0.1:1"))
	cfg.Server.Bind = "127.0.0.1:1"
	base := testsupport.BaseDir(cfg)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[server]\nbind = %q\n\n[gateway]\napi_key = %q\nbase_url = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Server.Bind,
		cfg.Gateway.APIKey,
		cfg.Gateway.BaseURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// writeSamplePNG stores the decoded sample image so commands can read it
// from disk.
func writeSamplePNG(t *testing.T, dir string) string {
	t.Helper()
	payload := testsupport.SampleImage[strings.Index(testsupport.SampleImage, ",")+1:]
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("decode sample image: %v", err)
	}
	path := filepath.Join(dir, "ref.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write sample image: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
