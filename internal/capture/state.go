package capture

import (
	"errors"
	"fmt"

	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

// State is a capture session's position in the capture flow.
type State string

const (
	StateIdle             State = "idle"
	StateCapturing        State = "capturing"
	StatePromptCollection State = "prompt_collection"
	StateProcessing       State = "processing"
	StateResult           State = "result"
)

// ErrInvalidTransition reports an event that is not allowed in the current
// state. It matches services.ErrValidation.
var ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", services.ErrValidation)

// ErrCancelled is returned by a processing run that was cancelled before it
// finished. Nothing from the run is persisted.
var ErrCancelled = errors.New("capture cancelled")

func invalidTransition(from State, event string) error {
	return fmt.Errorf("%w: %s not allowed in state %s", ErrInvalidTransition, event, from)
}

// Snapshot is a point-in-time view of a session for display.
type Snapshot struct {
	SessionID  string     `json:"sessionId"`
	State      State      `json:"state"`
	Mode       store.Mode `json:"mode,omitempty"`
	Step       int        `json:"step"`
	TotalSteps int        `json:"totalSteps"`
	StepName   string     `json:"stepName,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	ErrorKind  string     `json:"errorKind,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}

// Result is the outcome of a successful processing run.
type Result struct {
	Record store.HistoryRecord `json:"record"`
	// Saved is false when the history write failed; the generated image is
	// still returned.
	Saved     bool   `json:"saved"`
	SaveError string `json:"saveError,omitempty"`
	// SaveErr carries the write failure for callers that need its kind.
	SaveErr error `json:"-"`
	// UsageErr is set when the character usage counter could not be bumped.
	UsageErr error `json:"-"`
}
