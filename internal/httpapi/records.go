package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"parallelcamera/internal/logging"
	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

const defaultMostUsedLimit = 5

func pathID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, services.NewValidationError("id", fmt.Sprintf("invalid id %q", raw))
	}
	return id, nil
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, services.NewValidationError("limit", "must be a non-negative integer")
	}
	return limit, nil
}

// handleHistory lists local history. Read failures degrade to an empty list
// so the feed still renders.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet) {
		return
	}
	limit, err := queryLimit(r, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var mode store.Mode
	if raw := strings.TrimSpace(r.URL.Query().Get("mode")); raw != "" {
		mode, err = store.ParseMode(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	ctx := r.Context()
	var records []store.HistoryRecord
	switch {
	case mode != "":
		records, err = s.store.HistoryByMode(ctx, mode)
		if err == nil && limit > 0 && len(records) > limit {
			records = records[:limit]
		}
	case limit > 0:
		records, err = s.store.RecentHistory(ctx, limit)
	default:
		records, err = s.store.ListHistory(ctx)
	}
	if err != nil {
		logging.WarnWithContext(s.log(r), "history read failed; returning empty list", "history_read_failed",
			logging.String(logging.FieldImpact, "history feed shows no records"),
			logging.Error(err),
		)
		records = nil
	}
	if records == nil {
		records = []store.HistoryRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet) {
		return
	}
	stats, err := s.store.HistoryStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet, http.MethodDelete) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodDelete {
		deleted, err := s.store.DeleteHistory(ctx, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
		return
	}

	rec, err := s.store.GetHistory(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "history", "get", fmt.Sprintf("record %d", id), nil))
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet, http.MethodPost) {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodGet {
		var (
			list []store.CharacterRecord
			err  error
		)
		if q := r.URL.Query().Get("q"); strings.TrimSpace(q) != "" {
			list, err = s.store.SearchCharacters(ctx, q)
		} else {
			list, err = s.store.ListCharacters(ctx)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if list == nil {
			list = []store.CharacterRecord{}
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"characters": list})
		return
	}

	var req createCharacterRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.store.CreateCharacter(ctx, req.record())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.store.GetCharacter(ctx, id)
	if err != nil || rec == nil {
		s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleCharacterStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet) {
		return
	}
	stats, err := s.store.CharacterStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMostUsed(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet) {
		return
	}
	limit, err := queryLimit(r, defaultMostUsedLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.store.MostUsed(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []store.CharacterRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"characters": list})
}

func (s *Server) handleCharacterItem(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodGet, http.MethodPatch, http.MethodDelete) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		rec, err := s.store.GetCharacter(ctx, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if rec == nil {
			s.writeError(w, r, services.Wrap(services.ErrNotFound, "characters", "get", fmt.Sprintf("character %d", id), nil))
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
	case http.MethodPatch:
		var patch store.CharacterPatch
		if err := decodeJSON(w, r, s.maxBody, &patch); err != nil {
			s.writeError(w, r, err)
			return
		}
		rec, err := s.store.UpdateCharacter(ctx, id, patch)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		deleted, err := s.store.DeleteCharacter(ctx, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	}
}
