package httpapi

import (
	"net/http"

	"parallelcamera/internal/mirror"
	"parallelcamera/internal/services"
)

type mirrorWriteResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

var errMirrorDisabled = services.Wrap(services.ErrStoreUnavailable, "httpapi", "mirror", "history mirror is not configured", nil)

func (s *Server) handleGetMirror(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet) {
		return
	}
	if s.mirror == nil {
		s.writeError(w, r, errMirrorDisabled)
		return
	}
	entries, err := s.mirror.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []mirror.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleSaveMirror(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	if s.mirror == nil {
		s.writeError(w, r, errMirrorDisabled)
		return
	}
	var req saveHistoryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	count, err := s.mirror.Save(r.Context(), req.Result)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mirrorWriteResponse{Success: true, Count: count})
}

func (s *Server) handleDeleteMirror(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	if s.mirror == nil {
		s.writeError(w, r, errMirrorDisabled)
		return
	}
	var req deleteHistoryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if req.Index != nil {
		count, err := s.mirror.DeleteAt(ctx, *req.Index)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, mirrorWriteResponse{Success: true, Count: count})
		return
	}

	if err := s.mirror.DeleteByID(ctx, req.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.mirror.List(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mirrorWriteResponse{Success: true, Count: len(entries)})
}
