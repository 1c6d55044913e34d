package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"parallelcamera/internal/config"
	"parallelcamera/internal/gateway"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/mirror"
	"parallelcamera/internal/store"
)

const (
	gatewayCheckTimeout = 15 * time.Second
	serviceCheckTimeout = 5 * time.Second
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStore opens the record store and reports its schema version and
// record counts.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Record store"

	st, err := store.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer st.Close()

	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	info, err := st.Info(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("schema v%d, %d history, %d characters", info.SchemaVersion, info.HistoryCount, info.CharacterCount),
	}
}

// CheckGateway verifies that the configured transport is reachable and, for
// Gemini, that the API key is accepted. It makes a single attempt.
func CheckGateway(ctx context.Context, cfg *config.Config) Result {
	name := "Gateway"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}

	var pinger Pinger
	switch strings.ToLower(strings.TrimSpace(cfg.Gateway.Transport)) {
	case config.TransportRemote:
		name = "Gateway (remote)"
		remote, err := gateway.NewRemote(cfg.Gateway, logging.NewNop())
		if err != nil {
			return Result{Name: name, Detail: "missing or invalid remote_url"}
		}
		pinger = remote
	default:
		name = "Gateway (gemini)"
		if strings.TrimSpace(cfg.Gateway.APIKey) == "" {
			return Result{Name: name, Detail: "API key missing (set GEMINI_API_KEY)"}
		}
		gemini, err := gateway.NewGemini(cfg.Gateway)
		if err != nil {
			return Result{Name: name, Detail: err.Error()}
		}
		pinger = gemini
	}

	checkCtx, cancel := context.WithTimeout(ctx, gatewayCheckTimeout)
	defer cancel()
	if err := pinger.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckMirror opens the configured mirror backend and pings it.
func CheckMirror(ctx context.Context, cfg *config.Config) Result {
	name := "History mirror"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	name = fmt.Sprintf("History mirror (%s)", cfg.Mirror.Backend)

	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	svc, err := mirror.Open(checkCtx, cfg, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	defer svc.Close()
	return CheckPinger(checkCtx, name, svc)
}

// CheckPinger wraps a liveness probe of an already open dependency.
func CheckPinger(ctx context.Context, name string, p Pinger) Result {
	if p == nil {
		return Result{Name: name, Detail: "Disabled"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()
	if err := p.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// summarizeError produces a human-readable summary for failed probes.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
