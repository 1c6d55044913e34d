package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"parallelcamera/internal/capture"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/services"
)

type errorResponse struct {
	Error     string                `json:"error"`
	ErrorKind string                `json:"error_kind,omitempty"`
	Fields    []services.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeMethodNotAllowed(w http.ResponseWriter, logger *slog.Logger) {
	writeJSON(w, logger, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

// writeError maps err onto a status code and the error body clients expect.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := classify(err)
	body := errorResponse{Error: err.Error(), ErrorKind: kind}

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Fields = verr.Fields
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Warn("request failed",
			logging.String("error_kind", kind),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	writeJSON(w, logger, status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, capture.ErrCancelled):
		return http.StatusConflict, "cancelled"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrSafetyBlocked):
		return http.StatusUnprocessableEntity, "safety_blocked"
	case errors.Is(err, services.ErrNoImageProduced):
		return http.StatusBadGateway, "no_image"
	case errors.Is(err, services.ErrProvider):
		return http.StatusBadGateway, "provider"
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, services.ErrWrite):
		return http.StatusInternalServerError, "write"
	case errors.Is(err, services.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, ""
	}
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored; a
// malformed or oversized body becomes a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return services.NewValidationError("body", fmt.Sprintf("exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return services.NewValidationError("body", "is required")
		default:
			return services.NewValidationError("body", "malformed JSON: "+strings.TrimSpace(err.Error()))
		}
	}
	return nil
}
