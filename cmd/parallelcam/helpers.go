package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"parallelcamera/internal/config"
	"parallelcamera/internal/store"
)

var titleCaser = cases.Title(language.English)

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// modeLabel renders a mode for tables, e.g. "Creative".
func modeLabel(mode store.Mode) string {
	return titleCaser.String(string(mode))
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit-1]) + "…"
}

// readDataURI loads a file and encodes it as a data URI. The MIME type is
// sniffed from the content unless fallback is set and sniffing is inconclusive.
func readDataURI(path, fallback string) (string, error) {
	resolved, err := config.ExpandPath(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", resolved, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%s is empty", resolved)
	}
	mimeType := http.DetectContentType(data)
	if mimeType == "application/octet-stream" && fallback != "" {
		mimeType = fallback
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// writeDataURI decodes a base64 data URI into path.
func writeDataURI(path, uri string) error {
	payload := uri
	if i := strings.Index(uri, ";base64,"); i >= 0 {
		payload = uri[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
