package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parallelcamera/internal/config"
	"parallelcamera/internal/preflight"
)

const daemonProbeTimeout = 2 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipChecks bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon reachability and run the startup checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Daemon", colorize)
			lines = append(lines, daemonStatusLine(cmd.Context(), cfg, colorize))
			if !skipChecks {
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Checks", colorize)...)
				lines = append(lines, preflightLines(preflight.RunAll(cmd.Context(), cfg), colorize)...)
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Only probe the daemon")
	return cmd
}

func daemonStatusLine(ctx context.Context, cfg *config.Config, colorize bool) string {
	label := "parallelcamd"
	health, err := probeDaemon(ctx, cfg.Server.Bind)
	if err != nil {
		return renderStatusLine(label, statusError, "Not reachable at "+cfg.Server.Bind, colorize)
	}
	kind := statusOK
	if health.Status != "ok" {
		kind = statusWarn
	}
	message := fmt.Sprintf("%s (store %s, mirror %s)", health.Status, health.Store, health.Mirror)
	return renderStatusLine(label, kind, message, colorize)
}

type daemonHealth struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Mirror string `json:"mirror"`
}

func probeDaemon(ctx context.Context, bind string) (daemonHealth, error) {
	var health daemonHealth
	ctx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+bind+"/health", nil)
	if err != nil {
		return health, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return health, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return health, fmt.Errorf("decode health: %w", err)
	}
	return health, nil
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		switch {
		case !r.Passed:
			kind = statusError
		case r.Detail == "Disabled":
			kind = statusInfo
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}
