package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"parallelcamera/internal/config"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/preflight"
)

const defaultPruneInterval = time.Minute

// SessionPruner drops idle capture sessions. *capture.Orchestrator satisfies it.
type SessionPruner interface {
	Prune() int
	SessionCount() int
}

// Deps are the collaborators the daemon serves and shuts down.
type Deps struct {
	Handler  http.Handler
	Sessions SessionPruner
	// Closers are closed in order by Close.
	Closers []io.Closer
	// Preflight replaces the startup readiness checks. Nil runs preflight.RunAll.
	Preflight func(ctx context.Context, cfg *config.Config) []preflight.Result
}

// Daemon owns the HTTP server lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessions  SessionPruner
	closers   []io.Closer
	preflight func(ctx context.Context, cfg *config.Config) []preflight.Result

	server        *httpServer
	pruneInterval time.Duration

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool   `json:"running"`
	Address      string `json:"address,omitempty"`
	Sessions     int    `json:"sessions"`
	StorePath    string `json:"storePath"`
	LockFilePath string `json:"lockFilePath"`
}

// New constructs a daemon. Handler is required.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Handler == nil {
		return nil, errors.New("daemon requires config and http handler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	check := deps.Preflight
	if check == nil {
		check = preflight.RunAll
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:           cfg,
		logger:        logger,
		sessions:      deps.Sessions,
		closers:       deps.Closers,
		preflight:     check,
		server:        newHTTPServer(cfg.Server, deps.Handler, logger),
		pruneInterval: defaultPruneInterval,
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and begins serving.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another parallelcamd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.runPreflight(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.pruneLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("parallelcamd started",
		logging.String("address", d.server.addr()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop shuts the server down and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("parallelcamd stopped")
}

// Close stops the daemon and releases the resources it was given.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	for _, c := range d.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Addr returns the bound listen address, or "" when not serving.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Address:      d.server.addr(),
		StorePath:    d.cfg.StorePath(),
		LockFilePath: d.lockPath,
	}
	if d.sessions != nil {
		status.Sessions = d.sessions.SessionCount()
	}
	return status
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := d.preflight(ctx, d.cfg)
	if ctx.Err() != nil {
		return
	}
	preflight.LogResults(d.logger, results)
	if failed := preflight.Failed(results); len(failed) > 0 {
		d.logger.Info("preflight finished with failures",
			logging.Int("failed", len(failed)),
			logging.Int("total", len(results)),
		)
	}
}

func (d *Daemon) pruneLoop(ctx context.Context) {
	if d.sessions == nil {
		return
	}
	ticker := time.NewTicker(d.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.sessions.Prune(); n > 0 {
				d.logger.Debug("pruned idle capture sessions", logging.Int("count", n))
			}
		}
	}
}
