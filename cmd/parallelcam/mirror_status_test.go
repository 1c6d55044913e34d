package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"parallelcamera/internal/logging"
	"parallelcamera/internal/mirror"
	"parallelcamera/internal/preflight"
)

func TestMirrorCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	svc, err := mirror.Open(context.Background(), env.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("mirror.Open: %v", err)
	}
	for i := range 3 {
		if _, err := svc.Save(context.Background(), json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	svc.Close()

	out, _, err := runCLI(t, []string{"mirror", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("mirror list: %v", err)
	}
	requireContains(t, out, "Backend: sqlite")
	requireContains(t, out, entries[0].ID)

	out, _, err = runCLI(t, []string{"mirror", "delete", "--index", "0"}, env.configPath)
	if err != nil {
		t.Fatalf("mirror delete --index: %v", err)
	}
	requireContains(t, out, "2 entries remain")

	out, _, err = runCLI(t, []string{"mirror", "delete", "--id", entries[2].ID}, env.configPath)
	if err != nil {
		t.Fatalf("mirror delete --id: %v", err)
	}
	requireContains(t, out, "Deleted mirror entry")

	if _, _, err := runCLI(t, []string{"mirror", "delete", "--id", entries[2].ID}, env.configPath); err == nil {
		t.Fatal("expected deleting a missing id to fail")
	}
	if _, _, err := runCLI(t, []string{"mirror", "delete"}, env.configPath); err == nil {
		t.Fatal("expected delete without a selector to fail")
	}

	out, _, err = runCLI(t, []string{"mirror", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("mirror list --json: %v", err)
	}
	var remaining []mirror.Entry
	if err := json.Unmarshal([]byte(out), &remaining); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != entries[1].ID {
		t.Fatalf("unexpected remaining entries: %+v", remaining)
	}
}

func TestStatusCommandReportsUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "[ERROR] Not reachable at 127.0.0.1:1")
	requireContains(t, out, "== Checks ==")
	requireContains(t, out, "Record store:")
	requireContains(t, out, "History mirror (sqlite):")

	out, _, err = runCLI(t, []string{"status", "--skip-checks"}, env.configPath)
	if err != nil {
		t.Fatalf("status --skip-checks: %v", err)
	}
	if strings.Contains(out, "Checks") {
		t.Fatalf("expected checks to be skipped:\n%s", out)
	}
}

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("parallelcamd", statusError, "Not reachable", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "parallelcamd:", "[ERROR] Not reachable")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Record store", statusOK, "", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
	if !strings.Contains(got, "[OK]") || strings.Contains(got, "[OK] ") {
		t.Fatalf("expected bare status label, got %q", got)
	}
}

func TestPreflightLines(t *testing.T) {
	lines := preflightLines([]preflight.Result{
		{Name: "Record store", Passed: true, Detail: "schema v2"},
		{Name: "History mirror (nats)", Passed: true, Detail: "Disabled"},
		{Name: "Gateway (gemini)", Detail: "API key missing"},
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"[OK] schema v2", "[INFO] Disabled", "[ERROR] API key missing"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
