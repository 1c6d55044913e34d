package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"parallelcamera/internal/config"
	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

// Capability names used in errors and logs.
const (
	CapabilityDescribe   = "describe"
	CapabilityAugment    = "augment"
	CapabilityGenerate   = "generate"
	CapabilityTranscribe = "transcribe"
)

// DefaultAudioMimeType is assumed when a transcription request omits one.
const DefaultAudioMimeType = "audio/webm"

// Capabilities is the set of remote AI operations the capture flow depends on.
type Capabilities interface {
	Describe(ctx context.Context, req DescribeRequest) (string, error)
	Augment(ctx context.Context, description string) (string, error)
	Generate(ctx context.Context, req GenerateRequest) (GeneratedImage, error)
	Transcribe(ctx context.Context, req TranscribeRequest) (string, error)
}

// CharacterRef is the character payload sent alongside a request.
type CharacterRef struct {
	Name           string `json:"name"`
	ReferenceImage string `json:"referenceImage"`
}

// DescribeRequest asks for a scene description of Image.
type DescribeRequest struct {
	Image     string          `json:"image"`
	Location  *store.Location `json:"location,omitempty"`
	Character *CharacterRef   `json:"character,omitempty"`
}

// GenerateRequest asks for a new image rendered from Description.
type GenerateRequest struct {
	Description   string        `json:"description"`
	Mode          store.Mode    `json:"mode"`
	Character     *CharacterRef `json:"character,omitempty"`
	OriginalImage string        `json:"originalImage,omitempty"`
	UserPrompt    string        `json:"userPrompt,omitempty"`
}

// GeneratedImage is the outcome of a successful Generate call.
type GeneratedImage struct {
	// DataURI holds the encoded image, always with a data: prefix.
	DataURI string `json:"image"`
	// Text carries any commentary the model returned next to the image.
	Text string `json:"description,omitempty"`
}

// TranscribeRequest carries base64 audio, optionally as a data URI.
type TranscribeRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType,omitempty"`
}

// New builds the Capabilities implementation selected by the gateway transport.
func New(cfg *config.Config, logger *slog.Logger) (Capabilities, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "new", "config required", nil)
	}
	switch transport := strings.ToLower(strings.TrimSpace(cfg.Gateway.Transport)); transport {
	case config.TransportGemini, "":
		return NewGemini(cfg.Gateway, WithLogger(logger))
	case config.TransportRemote:
		return NewRemote(cfg.Gateway, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "new", fmt.Sprintf("unsupported transport %q", transport), nil)
	}
}
