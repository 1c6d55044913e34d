package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parallelcamera/internal/config"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/services"
)

const (
	defaultCallTimeout    = 60 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
)

var _ Capabilities = (*Gemini)(nil)

// Gemini calls the Gemini generateContent REST API directly.
type Gemini struct {
	cfg        config.Gateway
	httpClient *http.Client
	logger     *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the Gemini client.
type Option func(*Gemini)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gemini) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(g *Gemini) {
		g.retryBaseDelay = baseDelay
		g.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(g *Gemini) {
		g.sleeper = sleeper
	}
}

// WithLogger attaches a logger for call and fallback events.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gemini) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGemini constructs a Gemini client from gateway configuration. The API
// key is required.
func NewGemini(cfg config.Gateway, opts ...Option) (*Gemini, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "new", "gemini api key required (gateway.api_key or GEMINI_API_KEY)", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	g := &Gemini{
		cfg:              cfg,
		httpClient:       &http.Client{},
		logger:           logging.NewNop(),
		retryMaxAttempts: cfg.MaxAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	if g.retryMaxAttempts <= 0 {
		g.retryMaxAttempts = defaultRetryAttempts
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "gateway")
	return g, nil
}

// Describe returns a Chinese scene description of the photo.
func (g *Gemini) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	if strings.TrimSpace(req.Image) == "" {
		return "", services.NewValidationError("image", "is required")
	}
	mimeType, data := splitImage(req.Image)
	parts := []geminiPart{
		textPart(buildDescribePrompt(req)),
		inlinePart(mimeType, data),
	}
	if hasCharacterImage(req.Character) {
		charMime, charData := splitImage(req.Character.ReferenceImage)
		parts = append(parts, inlinePart(charMime, charData))
	}
	payload := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: parts}}}
	return withFallback(ctx, g, CapabilityDescribe, g.cfg.Describe, func(ctx context.Context, model string) (string, error) {
		return g.generateText(ctx, CapabilityDescribe, model, g.cfg.Describe, payload)
	})
}

// Augment invents a surreal element to blend into the described scene.
func (g *Gemini) Augment(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", services.NewValidationError("description", "is required")
	}
	payload := geminiRequest{Contents: []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{textPart(buildAugmentPrompt(description))},
	}}}
	return withFallback(ctx, g, CapabilityAugment, g.cfg.Augment, func(ctx context.Context, model string) (string, error) {
		return g.generateText(ctx, CapabilityAugment, model, g.cfg.Augment, payload)
	})
}

// Generate renders a new image. A response without an image part fails with
// a KindNoImage error.
func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (GeneratedImage, error) {
	if strings.TrimSpace(req.Description) == "" {
		return GeneratedImage{}, services.NewValidationError("description", "is required")
	}
	if !req.Mode.Valid() {
		return GeneratedImage{}, services.NewValidationError("mode", fmt.Sprintf("unsupported mode %q", req.Mode))
	}
	parts := make([]geminiPart, 0, 3)
	if hasCharacterImage(req.Character) {
		charMime, charData := splitImage(req.Character.ReferenceImage)
		parts = append(parts, inlinePart(charMime, charData))
	}
	parts = append(parts, textPart(buildGeneratePrompt(req)))
	if includesOriginal(req) {
		origMime, origData := splitImage(req.OriginalImage)
		parts = append(parts, inlinePart(origMime, origData))
	}
	payload := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		SafetySettings:   safetySettings,
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}
	return withFallback(ctx, g, CapabilityGenerate, g.cfg.Generate, func(ctx context.Context, model string) (GeneratedImage, error) {
		resp, err := g.call(ctx, CapabilityGenerate, model, g.cfg.Generate, payload)
		if err != nil {
			return GeneratedImage{}, err
		}
		return extractImage(resp, model)
	})
}

// Transcribe converts recorded speech to text.
func (g *Gemini) Transcribe(ctx context.Context, req TranscribeRequest) (string, error) {
	if strings.TrimSpace(req.Audio) == "" {
		return "", services.NewValidationError("audio", "is required")
	}
	mimeType, data := splitAudio(req.Audio, req.MimeType)
	payload := geminiRequest{Contents: []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{textPart(transcribePrompt), inlinePart(mimeType, data)},
	}}}
	return withFallback(ctx, g, CapabilityTranscribe, g.cfg.Transcribe, func(ctx context.Context, model string) (string, error) {
		return g.generateText(ctx, CapabilityTranscribe, model, g.cfg.Transcribe, payload)
	})
}

// Ping lists the configured describe model to verify the key and endpoint.
func (g *Gemini) Ping(ctx context.Context) error {
	endpoint, err := url.JoinPath(g.cfg.BaseURL, "models", g.cfg.Describe.Model)
	if err != nil {
		return fmt.Errorf("gemini ping: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("gemini ping: new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("gemini ping: http %d", resp.StatusCode)
	}
	return nil
}

// withFallback runs call against the primary model and, when allowed, once
// more against the route's fallback model.
func withFallback[T any](ctx context.Context, g *Gemini, capability string, route config.ModelRoute, call func(context.Context, string) (T, error)) (T, error) {
	result, err := call(ctx, route.Model)
	if err == nil {
		return result, nil
	}
	if route.Fallback == "" || !retryableWithFallback(ctx, err) {
		return result, err
	}
	logging.WarnWithContext(logging.WithContext(ctx, g.logger), "primary model failed; trying fallback", "gateway_fallback",
		slog.String("capability", capability),
		slog.String("model", route.Model),
		slog.String("fallback", route.Fallback),
		logging.Error(err),
		slog.String(logging.FieldImpact, "request retried once on the fallback model"),
	)
	return call(ctx, route.Fallback)
}

func (g *Gemini) generateText(ctx context.Context, capability, model string, route config.ModelRoute, payload geminiRequest) (string, error) {
	resp, err := g.call(ctx, capability, model, route, payload)
	if err != nil {
		return "", err
	}
	return extractText(resp), nil
}

// call sends one logical request, retrying transient transport failures, and
// classifies provider-side blocks.
func (g *Gemini) call(ctx context.Context, capability, model string, route config.ModelRoute, payload geminiRequest) (geminiResponse, error) {
	timeout := defaultCallTimeout
	if route.TimeoutSeconds > 0 {
		timeout = time.Duration(route.TimeoutSeconds) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	resp, err := g.completionWithRetry(callCtx, capability, model, payload)
	logger := logging.WithContext(ctx, g.logger)
	if err != nil {
		logger.Debug("gateway call failed",
			slog.String("capability", capability),
			slog.String("model", model),
			slog.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return resp, providerError(capability, model, err)
	}
	logger.Debug("gateway call completed",
		slog.String("capability", capability),
		slog.String("model", model),
		slog.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("gemini request: http %d: %s", e.StatusCode, summarizeSnippet(e.Body))
}

type emptyContentError struct {
	FinishReason string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, response_snippet=%s)", e.FinishReason, e.Snippet)
}

func (g *Gemini) completionWithRetry(ctx context.Context, capability, model string, payload geminiRequest) (geminiResponse, error) {
	attempts := g.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, body, err := g.sendOnce(ctx, model, payload)
		if err == nil {
			err = checkBlocked(resp, capability, model)
		}
		if err == nil && capability != CapabilityGenerate && extractText(resp) == "" {
			err = &emptyContentError{FinishReason: firstFinishReason(resp), Snippet: summarizeSnippet(string(body))}
		}
		if err == nil {
			return resp, nil
		}

		delay, retry := g.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return resp, err
		}
		if err := g.sleep(ctx, delay); err != nil {
			return resp, err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return geminiResponse{}, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (g *Gemini) sendOnce(ctx context.Context, model string, payload geminiRequest) (geminiResponse, []byte, error) {
	var parsed geminiResponse
	endpoint, err := url.JoinPath(g.cfg.BaseURL, "models", model+":generateContent")
	if err != nil {
		return parsed, nil, fmt.Errorf("gemini request: build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return parsed, nil, fmt.Errorf("gemini request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return parsed, nil, fmt.Errorf("gemini request: new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return parsed, nil, fmt.Errorf("gemini request: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return parsed, nil, fmt.Errorf("gemini request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return parsed, body, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return parsed, body, fmt.Errorf("gemini request: decode response: %w", err)
	}
	if parsed.Error != nil {
		return parsed, body, fmt.Errorf("gemini request: api error %d %s: %s", parsed.Error.Code, parsed.Error.Status, strings.TrimSpace(parsed.Error.Message))
	}
	return parsed, body, nil
}

func checkBlocked(resp geminiResponse, capability, model string) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return newError(KindSafetyBlocked, capability, model, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) > 0 {
		reason := strings.ToUpper(strings.TrimSpace(resp.Candidates[0].FinishReason))
		if _, blocked := safetyFinishReasons[reason]; blocked {
			return newError(KindSafetyBlocked, capability, model, fmt.Errorf("finish reason %s", reason))
		}
	}
	return nil
}

func extractText(resp geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

func extractImage(resp geminiResponse, model string) (GeneratedImage, error) {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return GeneratedImage{
					DataURI: toDataURI(part.InlineData.MimeType, part.InlineData.Data),
					Text:    extractText(resp),
				}, nil
			}
		}
	}
	return GeneratedImage{}, newError(KindNoImage, CapabilityGenerate, model,
		fmt.Errorf("response had no image part (finish_reason=%q)", firstFinishReason(resp)))
}

func firstFinishReason(resp geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	return resp.Candidates[0].FinishReason
}

func (g *Gemini) retryAttempts() int {
	if g == nil || g.retryMaxAttempts <= 0 {
		return 1
	}
	return g.retryMaxAttempts
}

func (g *Gemini) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return 0, false
	}

	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) {
		return g.backoffDelay(attempt), true
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return g.capDelay(statusErr.RetryAfter), true
			}
			return g.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return g.backoffDelay(attempt), true
	}
	return 0, false
}

func (g *Gemini) backoffDelay(attempt int) time.Duration {
	base := g.retryBaseDelay
	maxDelay := g.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return g.capDelay(delay)
}

func (g *Gemini) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := g.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (g *Gemini) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if g.sleeper != nil {
		g.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func summarizeSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
