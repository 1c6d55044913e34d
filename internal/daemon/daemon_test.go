package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"parallelcamera/internal/config"
	"parallelcamera/internal/daemon"
	"parallelcamera/internal/preflight"
	"parallelcamera/internal/testsupport"
)

func noPreflight(context.Context, *config.Config) []preflight.Result { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
}

type fakeSessions struct {
	pruned atomic.Int32
}

func (f *fakeSessions) Prune() int        { f.pruned.Add(1); return 0 }
func (f *fakeSessions) SessionCount() int { return 3 }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newDaemon(t *testing.T, cfg *config.Config, deps daemon.Deps) *daemon.Daemon {
	t.Helper()
	if deps.Handler == nil {
		deps.Handler = okHandler()
	}
	if deps.Preflight == nil {
		deps.Preflight = noPreflight
	}
	d, err := daemon.New(cfg, deps, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d
}

func TestNewRequiresHandler(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Deps{}, nil); err == nil {
		t.Fatal("expected error without handler")
	}
	if _, err := daemon.New(nil, daemon.Deps{Handler: okHandler()}, nil); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sessions := &fakeSessions{}
	d := newDaemon(t, cfg, daemon.Deps{Sessions: sessions})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Sessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", status.Sessions)
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	resp, err := http.Get("http://" + d.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.Addr() != "" {
		t.Fatalf("expected no address after stop, got %q", d.Addr())
	}

	// A stopped daemon can be started again.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}

func TestSecondInstanceIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, daemon.Deps{})
	second := newDaemon(t, cfg, daemon.Deps{})

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to fail on the lock")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestStartFailsOnBadBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Server.Bind = "256.0.0.1:99999"
	d := newDaemon(t, cfg, daemon.Deps{})

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected listen failure")
	}
	if d.Status().Running {
		t.Fatal("daemon should not be running")
	}

	// The lock must have been released.
	cfg.Server.Bind = "127.0.0.1:0"
	other := newDaemon(t, cfg, daemon.Deps{})
	if err := other.Start(context.Background()); err != nil {
		t.Fatalf("Start after failed bind: %v", err)
	}
}

func TestPreflightRunsOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ran := make(chan struct{})
	d := newDaemon(t, cfg, daemon.Deps{
		Preflight: func(context.Context, *config.Config) []preflight.Result {
			close(ran)
			return []preflight.Result{{Name: "Gateway", Detail: "API key missing"}}
		},
	})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("preflight did not run")
	}
	if !d.Status().Running {
		t.Fatal("a failed preflight must not stop the daemon")
	}
}

func TestCloseClosesDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var closed []string
	boom := errors.New("boom")
	d, err := daemon.New(cfg, daemon.Deps{
		Handler:   okHandler(),
		Preflight: noPreflight,
		Closers: []io.Closer{
			closerFunc(func() error { closed = append(closed, "mirror"); return boom }),
			nil,
			closerFunc(func() error { closed = append(closed, "store"); return nil }),
		},
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = d.Close()
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined close error, got %v", err)
	}
	if len(closed) != 2 || closed[0] != "mirror" || closed[1] != "store" {
		t.Fatalf("unexpected close order %v", closed)
	}
}
