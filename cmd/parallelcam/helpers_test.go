package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parallelcamera/internal/store"
	"parallelcamera/internal/testsupport"
)

func TestReadAndWriteDataURI(t *testing.T) {
	dir := t.TempDir()
	path := writeSamplePNG(t, dir)

	uri, err := readDataURI(path, "image/jpeg")
	if err != nil {
		t.Fatalf("readDataURI: %v", err)
	}
	if uri != testsupport.SampleImage {
		t.Fatalf("unexpected data URI %q", uri)
	}

	out := filepath.Join(dir, "copy.png")
	if err := writeDataURI(out, uri); err != nil {
		t.Fatalf("writeDataURI: %v", err)
	}
	want, _ := os.ReadFile(path)
	got, _ := os.ReadFile(out)
	if string(want) != string(got) {
		t.Fatal("round-tripped image differs")
	}
}

func TestReadDataURIFallbackMime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.bin")
	if err := os.WriteFile(path, []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0x01}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	uri, err := readDataURI(path, "audio/webm")
	if err != nil {
		t.Fatalf("readDataURI: %v", err)
	}
	if !strings.HasPrefix(uri, "data:") || strings.Contains(uri, ";;") {
		t.Fatalf("malformed data URI %q", uri)
	}

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readDataURI(empty, ""); err == nil {
		t.Fatal("expected empty file to be rejected")
	}
}

func TestFormattingHelpers(t *testing.T) {
	if got := modeLabel(store.ModeMeta); got != "Meta" {
		t.Fatalf("modeLabel = %q", got)
	}
	if got := truncate("a quiet street at dusk", 8); got != "a quiet…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := formatMillis(0); got != "-" {
		t.Fatalf("formatMillis(0) = %q", got)
	}
	if _, err := parseID("0"); err == nil {
		t.Fatal("expected zero id to be rejected")
	}
	if id, err := parseID(" 12 "); err != nil || id != 12 {
		t.Fatalf("parseID = %d, %v", id, err)
	}
}
