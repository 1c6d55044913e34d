package httpapi

import (
	"context"
	"net/http"
	"time"

	"parallelcamera/internal/logging"
)

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Mirror string `json:"mirror"`
}

// handleHealth reports 503 only when the local store is down; a broken
// mirror degrades the status but the camera still works.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: "ok", Mirror: "disabled"}
	status := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		resp.Status, resp.Store = "down", "down"
		status = http.StatusServiceUnavailable
		s.log(r).Warn("store ping failed", logging.Error(err))
	}
	if s.mirror != nil {
		resp.Mirror = "ok"
		if err := s.mirror.Ping(ctx); err != nil {
			resp.Mirror = "down"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			s.log(r).Warn("mirror ping failed", logging.Error(err))
		}
	}
	s.writeJSON(w, status, resp)
}
