// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"sync"
	"time"

	"github.com/maruel/visioncore/camera"
	"github.com/maruel/visioncore/config"
	"github.com/maruel/visioncore/control"
	"github.com/maruel/visioncore/eventlog"
	"github.com/maruel/visioncore/metrics"
	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/supervisor"
	"github.com/maruel/visioncore/verror"
)

// coreService implements control.Service over a running line's adapters,
// supervisor, metrics aggregator, and config store. It holds no acquisition
// logic of its own: every operation dispatches to the component that
// already owns that state.
type coreService struct {
	mu        sync.Mutex
	state     string
	startedAt time.Time

	store    *config.Store
	sup      *supervisor.Supervisor
	agg      *metrics.Aggregator
	evlog    *eventlog.Log
	adapters map[string]*camera.Adapter
}

func newCoreService(store *config.Store, sup *supervisor.Supervisor, agg *metrics.Aggregator, evlog *eventlog.Log, adapters map[string]*camera.Adapter) *coreService {
	return &coreService{
		state:     "running",
		startedAt: time.Now(),
		store:     store,
		sup:       sup,
		agg:       agg,
		evlog:     evlog,
		adapters:  adapters,
	}
}

func (s *coreService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.adapters {
		if a.State() == camera.Paused {
			_ = a.Resume()
		}
	}
	s.state = "running"
	return nil
}

func (s *coreService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.adapters {
		_ = a.Disconnect()
	}
	s.state = "stopped"
	if s.evlog != nil {
		_ = s.evlog.Record(eventlog.Shutdown, "stop requested via control surface")
	}
	return nil
}

func (s *coreService) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.adapters {
		if a.State() == camera.Acquiring {
			_ = a.Pause()
		}
	}
	s.state = "paused"
	return nil
}

func (s *coreService) Resume(ctx context.Context) error {
	return s.Start(ctx)
}

func (s *coreService) Status(ctx context.Context) (control.Status, error) {
	s.mu.Lock()
	state, startedAt := s.state, s.startedAt
	s.mu.Unlock()

	st := control.Status{State: state, Uptime: time.Since(startedAt)}
	for id, a := range s.adapters {
		breakerState := "unknown"
		if b := s.sup.Breaker(id); b != nil {
			breakerState = b.State().String()
		}
		ds := a.DriverStats()
		st.Cameras = append(st.Cameras, control.CameraStatus{
			ID:            id,
			State:         a.State().String(),
			BreakerState:  breakerState,
			GoodFrames:    ds.GoodFrames,
			DroppedFrames: ds.TransferFails,
			Reconnects:    ds.Reconnects,
		})
	}
	return st, nil
}

func (s *coreService) Stats(ctx context.Context, window time.Duration) (model.StatisticsSnapshot, error) {
	return s.agg.Stats(window, time.Now()), nil
}

func (s *coreService) UpdateConfig(ctx context.Context, next *model.Config) error {
	if err := next.Validate(); err != nil {
		return verror.Wrap(verror.ConfigInvalid, "control: update_config rejected", err)
	}
	s.store.Swap(next)
	if s.evlog != nil {
		_ = s.evlog.Record(eventlog.ConfigChange, "config updated via control surface")
	}
	return nil
}

func (s *coreService) ResetStats(ctx context.Context) error {
	s.agg.Reset()
	return nil
}

func (s *coreService) Trigger(ctx context.Context, cameraID string) error {
	a, ok := s.adapters[cameraID]
	if !ok {
		return verror.New(verror.ConfigInvalid, "control: unknown camera "+cameraID)
	}
	return a.Trigger(ctx)
}
