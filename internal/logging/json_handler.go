package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// newJSONHandler emits one JSON object per record with a "ts" key, lower-case
// levels, and data URIs elided.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	})
}

func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			if attr.Value.Kind() == slog.KindTime {
				return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			attr.Key = "ts"
			return attr
		case slog.LevelKey:
			return slog.String(slog.LevelKey, strings.ToLower(attr.Value.String()))
		case slog.SourceKey:
			if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
			}
			return attr
		}
	}
	if attr.Value.Kind() == slog.KindString {
		if elided, ok := elideDataURI(attr.Value.String()); ok {
			attr.Value = slog.StringValue(elided)
		}
	}
	return attr
}

// dataURIKeep is how much of a data URI's payload survives in a log line.
const dataURIKeep = 16

// elideDataURI shortens base64 data URIs to their media type, a short prefix
// of the payload, and the payload size. Captured photos and voice clips are
// megabytes of base64 and would otherwise swamp the log.
func elideDataURI(s string) (string, bool) {
	if !strings.HasPrefix(s, "data:") {
		return s, false
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return s, false
	}
	payload := s[comma+1:]
	if len(payload) <= dataURIKeep {
		return s, false
	}
	return fmt.Sprintf("%s,%s...(%d bytes)", s[:comma], payload[:dataURIKeep], len(payload)), true
}
