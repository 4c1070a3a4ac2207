package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kernel.Health.Report())
}

func (s *Server) handleDoorStatus(w http.ResponseWriter, r *http.Request) {
	s.ok(w, r, s.kernel.DoorStatus())
}

func (s *Server) handleDoorControl(w http.ResponseWriter, r *http.Request) {
	var req types.DoorControlRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := s.kernel.DoorControl(r.Context(), req.Action)
	if errors.Is(err, service.ErrValidation) {
		s.fail(w, r, http.StatusBadRequest, `Invalid action. Must be "open" or "close"`)
		return
	}
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.ok(w, r, st)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := types.AlertFilter{Type: types.AlertType(q.Get("type"))}

	var err error
	if f.Page, err = intParam(q.Get("page")); err != nil {
		s.fail(w, r, http.StatusBadRequest, "page must be an integer")
		return
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		s.fail(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if v := q.Get("acknowledged"); v != "" {
		ack, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, "acknowledged must be true or false")
			return
		}
		f.Acknowledged = &ack
	}

	page, err := s.kernel.Alerts.Page(r.Context(), f)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.ok(w, r, page)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, r, http.StatusBadRequest, "alert id must be a positive integer")
		return
	}
	if _, err := s.kernel.AcknowledgeAlert(r.Context(), id); err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, envelope{Success: true, Message: "Alert acknowledged"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}
	logs, err := s.kernel.RecentLogs(r.Context(), limit)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	if logs == nil {
		logs = []types.DoorLogEntry{}
	}
	s.ok(w, r, logs)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.kernel.Settings.GetAll(r.Context())
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.ok(w, r, settings)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.kernel.Settings.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.ok(w, r, setting)
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	var body settingValue
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	value, err := body.String()
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	setting, err := s.kernel.Settings.Set(r.Context(), chi.URLParam(r, "key"), value)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, envelope{Success: true, Data: setting, Message: "Setting updated"})
}

func (s *Server) handleSensorDistance(w http.ResponseWriter, r *http.Request) {
	reading, ok := s.kernel.Sensor.Latest()
	if !ok {
		s.fail(w, r, http.StatusServiceUnavailable, "no sensor reading yet")
		return
	}
	s.ok(w, r, reading)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.kernel.Stats.Snapshot(r.Context())
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	s.ok(w, r, stats)
}

// intParam parses an optional integer query parameter; "" yields 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
