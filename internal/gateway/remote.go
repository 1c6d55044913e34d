package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parallelcamera/internal/config"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/services"
)

var _ Capabilities = (*Remote)(nil)

// Remote forwards capability calls to another Parallel Camera server's HTTP
// endpoints. Provider-side model selection and fallback happen over there.
type Remote struct {
	baseURL    string
	token      string
	cfg        config.Gateway
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRemote constructs a remote transport. remote_url is required.
func NewRemote(cfg config.Gateway, logger *slog.Logger) (*Remote, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.RemoteURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "new", "gateway.remote_url required for remote transport", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "new", "invalid gateway.remote_url", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Remote{
		baseURL:    base,
		token:      strings.TrimSpace(cfg.RemoteToken),
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logging.NewComponentLogger(logger, "gateway"),
	}, nil
}

type remoteErrorBody struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
	Details   string `json:"details"`
}

// Describe calls POST /analyze-image.
func (r *Remote) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	var out struct {
		Description string `json:"description"`
	}
	if err := r.post(ctx, CapabilityDescribe, r.cfg.Describe, "/analyze-image", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Description), nil
}

// Augment calls POST /generate-creative-element.
func (r *Remote) Augment(ctx context.Context, description string) (string, error) {
	in := struct {
		Description string `json:"description"`
	}{Description: description}
	var out struct {
		CreativeElement string `json:"creativeElement"`
	}
	if err := r.post(ctx, CapabilityAugment, r.cfg.Augment, "/generate-creative-element", in, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.CreativeElement), nil
}

// Generate calls POST /generate-image.
func (r *Remote) Generate(ctx context.Context, req GenerateRequest) (GeneratedImage, error) {
	var out struct {
		Success     bool   `json:"success"`
		Image       string `json:"image"`
		Description string `json:"description"`
	}
	if err := r.post(ctx, CapabilityGenerate, r.cfg.Generate, "/generate-image", req, &out); err != nil {
		return GeneratedImage{}, err
	}
	if !out.Success || strings.TrimSpace(out.Image) == "" {
		return GeneratedImage{}, newError(KindNoImage, CapabilityGenerate, "", fmt.Errorf("remote returned no image"))
	}
	return GeneratedImage{DataURI: out.Image, Text: out.Description}, nil
}

// Transcribe calls POST /speech-to-text.
func (r *Remote) Transcribe(ctx context.Context, req TranscribeRequest) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := r.post(ctx, CapabilityTranscribe, r.cfg.Transcribe, "/speech-to-text", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

// Ping checks that the remote server answers its health endpoint.
func (r *Remote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("remote ping: new request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote ping: http %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) post(ctx context.Context, capability string, route config.ModelRoute, path string, in, out any) error {
	timeout := defaultCallTimeout
	if route.TimeoutSeconds > 0 {
		timeout = time.Duration(route.TimeoutSeconds) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	encoded, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("remote %s: encode body: %w", capability, err)
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("remote %s: new request: %w", capability, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-Id", id)
	}

	started := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return providerError(capability, "", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providerError(capability, "", fmt.Errorf("read body: %w", err))
	}
	logging.WithContext(ctx, r.logger).Debug("remote capability call",
		slog.String("capability", capability),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return remoteError(capability, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return providerError(capability, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func remoteError(capability string, status int, body []byte) error {
	var parsed remoteErrorBody
	_ = json.Unmarshal(body, &parsed)
	detail := strings.TrimSpace(parsed.Error)
	if parsed.Details != "" {
		detail += ": " + strings.TrimSpace(parsed.Details)
	}
	if detail == "" {
		detail = summarizeSnippet(string(body))
	}
	cause := fmt.Errorf("remote http %d: %s", status, detail)

	switch parsed.ErrorKind {
	case string(KindSafetyBlocked):
		return newError(KindSafetyBlocked, capability, "", cause)
	case string(KindNoImage):
		return newError(KindNoImage, capability, "", cause)
	case "validation":
		return services.Wrap(services.ErrValidation, "gateway", capability, "remote rejected request", cause)
	default:
		return newError(KindProvider, capability, "", cause)
	}
}
