package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
)

// JSON writes the provided payload as JSON with the supplied status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Error writes an error response with a standard envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"error": message})
}

// WriteError maps a domain error onto its HTTP status and envelope.
func WriteError(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		log.Printf("httpx: internal error: %v", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	payload := map[string]any{"error": e.Message}
	if e.Hint != "" {
		payload["hint"] = e.Hint
	}
	if len(e.Fields) > 0 {
		payload["fields"] = e.Fields
	}
	for key, value := range e.Meta {
		payload[key] = value
	}

	JSON(w, statusFor(e.Kind), payload)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindState:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}
