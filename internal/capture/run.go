package capture

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"parallelcamera/internal/gateway"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

type runOutputs struct {
	description string
	creative    string
	image       gateway.GeneratedImage
}

// process executes the mode's plan strictly in order. Each step re-checks
// that the run is still current so a cancelled session starts no new call.
func (s *Session) process(ctx context.Context, run uint64, p pendingCapture) (*Result, error) {
	logger := logging.WithContext(ctx, s.orch.logger)
	plan := PlanFor(p.capture.Mode)
	started := s.orch.now()

	logger.Info("capture started",
		logging.String(logging.FieldEventType, "capture_start"),
		logging.String("mode", string(p.capture.Mode)),
		logging.Int("total_steps", len(plan)),
		logging.Bool("character", p.character != nil),
	)

	var out runOutputs
	for i, step := range plan {
		if err := s.advance(run, i+1, step); err != nil {
			return nil, err
		}
		stepCtx := services.WithStep(ctx, string(step))
		stepLogger := logging.WithContext(stepCtx, s.orch.logger)
		stepStarted := s.orch.now()
		stepLogger.Info("step started",
			logging.String(logging.FieldEventType, "step_start"),
			logging.Int("step_index", i+1),
			logging.String("label", step.Label()),
		)

		if err := s.runStep(stepCtx, step, p, &out); err != nil {
			return nil, s.fail(stepCtx, run, step, err)
		}

		stepLogger.Info("step completed",
			logging.String(logging.FieldEventType, "step_complete"),
			logging.Int("step_index", i+1),
			logging.Duration("duration", s.orch.now().Sub(stepStarted)),
		)
	}

	return s.complete(ctx, run, p, out, started)
}

func (s *Session) runStep(ctx context.Context, step Step, p pendingCapture, out *runOutputs) error {
	caps := s.orch.gateway
	var err error
	switch step {
	case StepDescribe:
		req := gateway.DescribeRequest{Image: p.capture.Image, Location: p.capture.Location}
		// The character's look must not leak into the scene description in
		// meta mode; it is only given to generation.
		if p.capture.Mode != store.ModeMeta {
			req.Character = characterRef(p.character)
		}
		out.description, err = caps.Describe(ctx, req)
	case StepAugment:
		out.creative, err = caps.Augment(ctx, out.description)
	case StepGenerate:
		out.image, err = caps.Generate(ctx, generateRequest(p, *out))
		if err == nil && out.image.DataURI == "" {
			err = gateway.NoImageError(gateway.CapabilityGenerate)
		}
	default:
		err = services.Wrap(services.ErrValidation, "capture", "run step", "unknown step "+string(step), nil)
	}
	return err
}

func generateRequest(p pendingCapture, out runOutputs) gateway.GenerateRequest {
	req := gateway.GenerateRequest{
		Description: out.description,
		Mode:        p.capture.Mode,
		Character:   characterRef(p.character),
	}
	switch p.capture.Mode {
	case store.ModeCreative:
		req.Description = out.description + "\n\n" + out.creative
		req.OriginalImage = p.capture.Image
	case store.ModeMeta:
		req.UserPrompt = p.userPrompt
		req.OriginalImage = p.capture.Image
	}
	return req
}

func characterRef(rec *store.CharacterRecord) *gateway.CharacterRef {
	if rec == nil {
		return nil
	}
	return &gateway.CharacterRef{Name: rec.Name, ReferenceImage: rec.ReferenceImage}
}

// advance moves the progress counter to step index, or reports ErrCancelled
// when the run is no longer current.
func (s *Session) advance(run uint64, index int, step Step) error {
	s.mu.Lock()
	if s.run != run || s.state != StateProcessing {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.step = index
	s.stepName = step
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.orch.notify(snap)
	return nil
}

// fail returns the session to Idle and drops the captured data. A run that
// was cancelled meanwhile leaves the session untouched.
func (s *Session) fail(ctx context.Context, run uint64, step Step, err error) error {
	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.releaseLocked()
	s.state = StateIdle
	s.pending = nil
	s.step, s.total, s.stepName = 0, 0, ""
	s.lastErr = err
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logging.ErrorWithContext(logging.WithContext(ctx, s.orch.logger), "capture failed", "capture_failed",
		logging.String("failed_step", string(step)),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldErrorHint, failureHint(err)),
		logging.Error(err),
	)
	s.orch.notify(snap)
	return err
}

// complete persists the run's outcome. Persistence happens under the session
// lock so a concurrent Cancel either wins before anything is written or waits
// until the record is stored.
func (s *Session) complete(ctx context.Context, run uint64, p pendingCapture, out runOutputs, started time.Time) (*Result, error) {
	logger := logging.WithContext(ctx, s.orch.logger)
	// A dropped caller must not leave usage bumped without a history row.
	persistCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.run != run || s.state != StateProcessing {
		s.mu.Unlock()
		return nil, ErrCancelled
	}

	record := store.HistoryRecord{
		Description:    out.description,
		GeneratedImage: out.image.DataURI,
		OriginalImage:  p.capture.Image,
		Location:       p.capture.Location,
		Mode:           p.capture.Mode,
		Timestamp:      s.orch.now().UnixMilli(),
	}
	if p.capture.Mode == store.ModeCreative {
		record.CreativeElement = out.creative
	}
	if p.capture.Mode == store.ModeMeta {
		record.UserPrompt = p.userPrompt
	}

	result := &Result{}
	if p.character != nil {
		record.CharacterName = p.character.Name
		if err := s.orch.store.IncrementUsage(persistCtx, p.character.ID); err != nil {
			result.UsageErr = err
			logging.WarnWithContext(logger, "character usage not recorded", "usage_increment_failed",
				logging.Int64("character_id", p.character.ID),
				logging.String(logging.FieldImpact, "character ranking will undercount this capture"),
				logging.Error(err),
			)
		}
	}

	id, err := s.orch.store.InsertHistory(persistCtx, record)
	if err != nil {
		result.SaveErr = err
		result.SaveError = err.Error()
		logging.ErrorWithContext(logger, "history record not saved", "history_save_failed",
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldImpact, "generated image is shown but not kept in history"),
			logging.Error(err),
		)
	} else {
		record.ID = id
		result.Saved = true
	}
	result.Record = record

	s.releaseLocked()
	s.state = StateResult
	s.pending = nil
	s.result = result
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Info("capture completed",
		logging.String(logging.FieldEventType, "capture_complete"),
		logging.Int64("history_id", record.ID),
		logging.Bool("saved", result.Saved),
		logging.Duration("duration", s.orch.now().Sub(started)),
	)
	s.orch.notify(snap)

	if result.Saved {
		s.pushMirror(persistCtx, logger, record)
	}
	return result, nil
}

func (s *Session) pushMirror(ctx context.Context, logger *slog.Logger, record store.HistoryRecord) {
	if s.orch.mirror == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logger.Warn("encode mirror payload", logging.Error(err))
		return
	}
	count, err := s.orch.mirror.Save(ctx, payload)
	if err != nil {
		logging.WarnWithContext(logger, "history mirror update failed", "mirror_save_failed",
			logging.String(logging.FieldImpact, "mirror copy is missing this capture"),
			logging.Error(err),
		)
		return
	}
	logger.Debug("history mirrored", logging.Int("mirror_count", count))
}

// releaseLocked drops the run context once the run no longer needs it.
func (s *Session) releaseLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrSafetyBlocked):
		return "the provider refused the content; try a different photo or prompt"
	case errors.Is(err, services.ErrNoImageProduced):
		return "the model returned no image; retry the capture"
	case errors.Is(err, context.DeadlineExceeded):
		return "raise the gateway route timeout"
	default:
		return "check gateway connectivity and API key"
	}
}
