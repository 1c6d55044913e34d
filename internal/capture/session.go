package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

// Capture is the data collected when the user takes a photo.
type Capture struct {
	Mode        store.Mode      `json:"mode"`
	Image       string          `json:"image"`
	Location    *store.Location `json:"location,omitempty"`
	CharacterID int64           `json:"characterId,omitempty"`
}

// Validate checks the capture before it enters the flow.
func (c Capture) Validate() error {
	verr := &services.ValidationError{}
	if !c.Mode.Valid() {
		verr.Add("mode", fmt.Sprintf("must be one of realistic, creative, meta (got %q)", c.Mode))
	}
	if strings.TrimSpace(c.Image) == "" {
		verr.Add("image", "is required")
	}
	if c.CharacterID < 0 {
		verr.Add("characterId", "must be positive")
	}
	if err := store.ValidateLocation(c.Location); err != nil {
		var locErr *services.ValidationError
		if errors.As(err, &locErr) {
			verr.Fields = append(verr.Fields, locErr.Fields...)
		}
	}
	return verr.OrNil()
}

type pendingCapture struct {
	capture    Capture
	character  *store.CharacterRecord
	userPrompt string
	captureID  string
}

// Session is one caller's capture flow. At most one processing run is in
// flight per session.
type Session struct {
	id   string
	orch *Orchestrator

	mu        sync.Mutex
	state     State
	pending   *pendingCapture
	mode      store.Mode
	step      int
	total     int
	stepName  Step
	lastErr   error
	result    *Result
	run       uint64
	cancel    context.CancelFunc
	updatedAt time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start opens the camera: Idle to Capturing.
func (s *Session) Start() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
	case StateProcessing:
		s.mu.Unlock()
		return services.ErrBusy
	default:
		state := s.state
		s.mu.Unlock()
		return invalidTransition(state, "start")
	}
	s.state = StateCapturing
	s.lastErr = nil
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.orch.notify(snap)
	return nil
}

// Capture records a photo. Meta mode moves to prompt collection and returns
// a nil result; the other modes run processing to completion and return its
// result.
func (s *Session) Capture(ctx context.Context, c Capture) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch s.state {
	case StateCapturing:
	case StateProcessing:
		s.mu.Unlock()
		return nil, services.ErrBusy
	default:
		state := s.state
		s.mu.Unlock()
		return nil, invalidTransition(state, "capture")
	}

	character, err := s.resolveCharacter(ctx, c.CharacterID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.pending = &pendingCapture{capture: c, character: character, captureID: uuid.NewString()}
	s.mode = c.Mode

	if c.Mode == store.ModeMeta {
		s.state = StatePromptCollection
		s.touchLocked()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.orch.notify(snap)
		return nil, nil
	}

	runCtx, run, pending := s.beginLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.orch.notify(snap)

	return s.process(runCtx, run, pending)
}

// ConfirmPrompt supplies the meta-mode instruction and runs processing.
func (s *Session) ConfirmPrompt(ctx context.Context, prompt string) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, services.NewValidationError("userPrompt", "is required")
	}

	s.mu.Lock()
	switch s.state {
	case StatePromptCollection:
	case StateProcessing:
		s.mu.Unlock()
		return nil, services.ErrBusy
	default:
		state := s.state
		s.mu.Unlock()
		return nil, invalidTransition(state, "confirm")
	}
	s.pending.userPrompt = prompt

	runCtx, run, pending := s.beginLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.orch.notify(snap)

	return s.process(runCtx, run, pending)
}

// Back leaves prompt collection and returns to the camera, dropping the photo.
func (s *Session) Back() error {
	return s.transition("back", map[State]State{StatePromptCollection: StateCapturing}, nil)
}

// Reset leaves the result view.
func (s *Session) Reset() error {
	return s.transition("reset", map[State]State{StateResult: StateIdle}, nil)
}

// Cancel abandons the flow. During processing no further remote call is
// started and the eventual outcome is discarded.
func (s *Session) Cancel() error {
	return s.transition("cancel", map[State]State{
		StateCapturing:        StateIdle,
		StatePromptCollection: StateIdle,
		StateProcessing:       StateIdle,
	}, ErrCancelled)
}

func (s *Session) transition(event string, allowed map[State]State, reason error) error {
	s.mu.Lock()
	from := s.state
	to, ok := allowed[from]
	if !ok {
		s.mu.Unlock()
		return invalidTransition(from, event)
	}
	if from == StateProcessing {
		s.run++
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.orch.logger.Info("capture cancelled",
			"event_type", "capture_cancelled",
			"session_id", s.id,
			"step", string(s.stepName),
		)
	}
	s.state = to
	if to != StateResult {
		s.result = nil
	}
	if to == StateIdle || to == StateCapturing {
		s.pending = nil
		s.step, s.total, s.stepName = 0, 0, ""
	}
	if reason != nil {
		s.lastErr = reason
	}
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.orch.notify(snap)
	return nil
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Err returns the error that ended the last run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  s.id,
		State:      s.state,
		Mode:       s.mode,
		Step:       s.step,
		TotalSteps: s.total,
		StepName:   string(s.stepName),
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
		snap.ErrorKind = services.Kind(s.lastErr)
		if errors.Is(s.lastErr, ErrCancelled) {
			snap.ErrorKind = "cancelled"
		}
	}
	if s.result != nil {
		res := *s.result
		snap.Result = &res
	}
	return snap
}

func (s *Session) touchLocked() {
	s.updatedAt = s.orch.now()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return 0
	}
	return now.Sub(s.updatedAt)
}

func (s *Session) resolveCharacter(ctx context.Context, id int64) (*store.CharacterRecord, error) {
	if id == 0 {
		return nil, nil
	}
	rec, err := s.orch.store.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "capture", "resolve character", fmt.Sprintf("character %d", id), nil)
	}
	return rec, nil
}

// beginLocked enters Processing and returns the run context, the run token
// used to detect cancellation, and the captured data.
func (s *Session) beginLocked(ctx context.Context) (context.Context, uint64, pendingCapture) {
	s.run++
	pending := *s.pending
	plan := PlanFor(pending.capture.Mode)

	runCtx, cancel := context.WithCancel(ctx)
	runCtx = services.WithSessionID(runCtx, s.id)
	runCtx = services.WithCaptureID(runCtx, pending.captureID)

	s.cancel = cancel
	s.state = StateProcessing
	s.step, s.total, s.stepName = 0, len(plan), ""
	s.lastErr = nil
	s.result = nil
	s.touchLocked()
	return runCtx, s.run, pending
}
