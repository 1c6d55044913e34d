package httpapi

import (
	"errors"
	"net/http"

	"parallelcamera/internal/capture"
	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

// handleCapture drives a whole session for the caller: it opens the camera
// if needed, records the photo and, in meta mode, confirms the prompt.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	var req captureRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session := s.orch.Session(sessionID(r))
	if err := openCamera(session); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	result, err := session.Capture(ctx, req.capture())
	if err == nil && req.Mode == store.ModeMeta {
		result, err = session.ConfirmPrompt(ctx, req.UserPrompt)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// openCamera brings a session to Capturing from wherever the last request
// left it.
func openCamera(session *capture.Session) error {
	switch session.Snapshot().State {
	case capture.StateCapturing:
		return nil
	case capture.StateProcessing:
		return services.Wrap(services.ErrBusy, "capture", "start", "a capture is already processing", nil)
	case capture.StateResult:
		if err := session.Reset(); err != nil {
			return err
		}
	case capture.StatePromptCollection:
		return session.Back()
	}
	err := session.Start()
	if errors.Is(err, capture.ErrInvalidTransition) && session.Snapshot().State == capture.StateCapturing {
		// Another request opened the camera first.
		return nil
	}
	return err
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.orch.Session(sessionID(r)).Snapshot())
}

func (s *Server) handleCaptureCancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	session := s.orch.Session(sessionID(r))
	if err := session.Cancel(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleCaptureReset(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	session := s.orch.Session(sessionID(r))
	if err := session.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.Snapshot())
}
