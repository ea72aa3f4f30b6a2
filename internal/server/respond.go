package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ASHISH26940/pokedex/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
	Deleted any    `json:"deleted,omitempty"`
	OldID   string `json:"oldId,omitempty"`
	NewID   string `json:"newId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps a store error kind to its HTTP status. Conflicts share 400
// with invalid input.
func statusFor(kind store.Kind) int {
	switch kind {
	case store.KindInvalidInput, store.KindConflict:
		return http.StatusBadRequest
	case store.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Internal failures are logged; their
// details never reach the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := store.KindOf(err)
	status := statusFor(kind)

	var se *store.Error
	msg := "internal server error"
	if errors.As(err, &se) {
		msg = se.Msg
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
	}
	writeMessage(w, status, msg)
}
