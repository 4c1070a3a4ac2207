package httpapi

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/logging"
)

// envelope is the response shape of every /api route.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	if wantsProtobuf(r) {
		msg, err := toStruct(body)
		if err != nil {
			s.logger.Error().Err(err).Msg("protobuf response encoding failed")
			http.Error(w, "proto marshal error", http.StatusInternalServerError)
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, body)
}

func (s *Server) ok(w http.ResponseWriter, r *http.Request, data any) {
	s.respond(w, r, http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.respond(w, r, status, envelope{Success: false, Error: msg})
}

// failErr maps service and store errors onto HTTP statuses. Unexpected
// errors are logged and hidden from the client.
func (s *Server) failErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		s.fail(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.fail(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, store.ErrTransient):
		s.fail(w, r, http.StatusServiceUnavailable, "persistence unavailable")
	default:
		log := logging.FromContext(r.Context(), s.logger)
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.fail(w, r, http.StatusInternalServerError, "unexpected server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
