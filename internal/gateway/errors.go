package gateway

import (
	"context"
	"errors"
	"fmt"

	"parallelcamera/internal/services"
)

// Kind distinguishes gateway failure outcomes.
type Kind string

const (
	KindProvider      Kind = "provider"
	KindSafetyBlocked Kind = "safety_blocked"
	KindNoImage       Kind = "no_image"
)

// Error is returned by every Capabilities call that fails after reaching the
// transport. errors.Is matches the services sentinel for its Kind.
type Error struct {
	Kind       Kind
	Capability string
	Model      string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s", e.Capability)
	if e.Model != "" {
		msg += fmt.Sprintf(" (model %s)", e.Model)
	}
	msg += ": " + e.marker().Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.marker()}
	}
	return []error{e.marker(), e.Err}
}

func (e *Error) marker() error {
	switch e.Kind {
	case KindSafetyBlocked:
		return services.ErrSafetyBlocked
	case KindNoImage:
		return services.ErrNoImageProduced
	default:
		return services.ErrProvider
	}
}

// KindOf reports the gateway kind carried by err, or "" when err did not
// come from the gateway.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}

// NoImageError reports a generation call that completed without an image.
func NoImageError(capability string) error {
	return newError(KindNoImage, capability, "", errors.New("response carried no image"))
}

func newError(kind Kind, capability, model string, err error) *Error {
	return &Error{Kind: kind, Capability: capability, Model: model, Err: err}
}

// providerError wraps a transport failure unless it is already classified or
// is a caller cancellation.
func providerError(capability, model string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return newError(KindProvider, capability, model, err)
}

// retryableWithFallback reports whether a failed primary call may be repeated
// against the fallback model.
func retryableWithFallback(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, services.ErrSafetyBlocked)
}
