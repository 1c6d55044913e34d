package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

const defaultImageMimeType = "image/jpeg"

var (
	imageDataURIPattern = regexp.MustCompile(`^data:(image/\w+);base64,`)
	anyDataURIPattern   = regexp.MustCompile(`^data:([\w.+-]+/[\w.+-]+)(?:;[^,]*)?;base64,`)
)

// splitImage strips an image data URI prefix and returns the mime type and the
// bare base64 payload. Bare base64 input is assumed to be JPEG.
func splitImage(value string) (mimeType, data string) {
	value = strings.TrimSpace(value)
	if m := imageDataURIPattern.FindStringSubmatch(value); m != nil {
		return m[1], value[len(m[0]):]
	}
	return defaultImageMimeType, value
}

// splitAudio strips any data URI prefix from an audio payload. The declared
// mime type wins over the fallback.
func splitAudio(value, fallback string) (mimeType, data string) {
	value = strings.TrimSpace(value)
	if fallback == "" {
		fallback = DefaultAudioMimeType
	}
	if m := anyDataURIPattern.FindStringSubmatch(value); m != nil {
		return m[1], value[len(m[0]):]
	}
	return fallback, value
}

func toDataURI(mimeType, data string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, data)
}
