package preflight

import (
	"context"
	"log/slog"

	"parallelcamera/internal/config"
	"parallelcamera/internal/logging"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is anything with a cheap liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes the checks that apply to cfg. The gateway and mirror checks
// build short-lived clients from cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	return []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckStore(ctx, cfg),
		CheckGateway(ctx, cfg),
		CheckMirror(ctx, cfg),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// LogResults writes one line per check: failures at warn, passes at debug.
func LogResults(logger *slog.Logger, results []Result) {
	if logger == nil {
		return
	}
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "requests depending on this check will fail"),
		)
	}
}
