package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"parallelcamera/internal/capture"
	"parallelcamera/internal/config"
	"parallelcamera/internal/daemon"
	"parallelcamera/internal/gateway"
	"parallelcamera/internal/httpapi"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/mirror"
	"parallelcamera/internal/store"
)

// bootstrap opens every dependency in order and hands them to the daemon.
// Anything opened before a failure is closed again.
func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (d *daemon.Daemon, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
		}
	}()

	st, err := store.Open(cfg, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	closers = append(closers, st)

	caps, err := gateway.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	deps := httpapi.Deps{Store: st, Gateway: caps, Logger: logger}
	orchOpts := []capture.Option{
		capture.WithLogger(logger),
		capture.WithSessionTTL(time.Duration(cfg.Capture.SessionTTLSeconds) * time.Second),
	}

	// The mirror is optional: a camera without it still captures and keeps
	// local history.
	mir, mirErr := mirror.Open(ctx, cfg, logger)
	if mirErr != nil {
		logging.WarnWithContext(logger, "history mirror unavailable", "mirror_unavailable",
			logging.String("backend", cfg.Mirror.Backend),
			logging.String(logging.FieldImpact, "mirror endpoints return store_unavailable"),
			logging.Error(mirErr),
		)
	} else {
		closers = append(closers, mir)
		deps.Mirror = mir
		if cfg.Capture.MirrorResults {
			orchOpts = append(orchOpts, capture.WithMirror(mir))
		}
	}

	orch := capture.New(caps, st, orchOpts...)
	deps.Orchestrator = orch

	srv, err := httpapi.New(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("build http api: %w", err)
	}

	// Mirror closes before the store.
	ordered := make([]io.Closer, 0, len(closers))
	for i := len(closers) - 1; i >= 0; i-- {
		ordered = append(ordered, closers[i])
	}
	d, err = daemon.New(cfg, daemon.Deps{
		Handler:  srv,
		Sessions: orch,
		Closers:  ordered,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}
