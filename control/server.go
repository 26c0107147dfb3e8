// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/verror"
	"github.com/rs/zerolog"
)

// Server exposes a Service's commands as JSON-over-HTTP endpoints under
// mux, the same http.ServeMux wiring the teacher's WebServer uses for its
// dashboard routes.
type Server struct {
	svc Service
	log zerolog.Logger
}

// NewServer registers the control surface's handlers on mux and returns
// the Server.
func NewServer(mux *http.ServeMux, svc Service, log zerolog.Logger) *Server {
	s := &Server{svc: svc, log: log}
	mux.HandleFunc("/control/start", s.handleStart)
	mux.HandleFunc("/control/stop", s.handleStop)
	mux.HandleFunc("/control/pause", s.handlePause)
	mux.HandleFunc("/control/resume", s.handleResume)
	mux.HandleFunc("/control/status", s.handleStatus)
	mux.HandleFunc("/control/stats", s.handleStats)
	mux.HandleFunc("/control/update_config", s.handleUpdateConfig)
	mux.HandleFunc("/control/reset_stats", s.handleResetStats)
	mux.HandleFunc("/control/trigger", s.handleTrigger)
	return s
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	kind := "internal"
	status := http.StatusInternalServerError
	if ve, ok := err.(*verror.Error); ok {
		kind = ve.Kind.String()
		switch ve.Kind.Tier() {
		case verror.TierSystemFatal:
			status = http.StatusBadRequest
		case verror.TierComponentFault:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusConflict
		}
	}
	s.log.Warn().Err(err).Str("kind", kind).Msg("control: command failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Kind: kind, Message: err.Error()})
}

func (s *Server) writeOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Start(r.Context()); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Stop(r.Context()); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Pause(r.Context()); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Resume(r.Context()); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := 0 * time.Second
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			s.writeErr(w, verror.Wrap(verror.ConfigInvalid, "invalid window parameter", err))
			return
		}
		window = d
	}
	snap, err := s.svc.Stats(r.Context(), window)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, snap)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeErr(w, verror.Wrap(verror.ConfigInvalid, "malformed config body", err))
		return
	}
	if err := s.svc.UpdateConfig(r.Context(), &cfg); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ResetStats(r.Context()); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera_id")
	if cameraID == "" {
		s.writeErr(w, verror.New(verror.ConfigInvalid, "missing camera_id"))
		return
	}
	if err := s.svc.Trigger(r.Context(), cameraID); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeOK(w, nil)
}
