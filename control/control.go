// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package control is the small RPC surface over loopback HTTP that fronts
// a running inspection core: start, stop, pause, get_status, get_stats,
// update_config, reset_stats, and trigger. It mirrors the teacher's
// cmd/lepton/server.go http.ServeMux wiring, generalized from serving a
// dashboard to dispatching typed commands, with errors carried as
// verror.Kind instead of opaque HTTP status text.
package control

import (
	"context"
	"time"

	"github.com/maruel/visioncore/model"
)

// CameraStatus is the per-camera slice of Status.
type CameraStatus struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	BreakerState  string `json:"breaker_state"`
	GoodFrames    int64  `json:"good_frames"`
	DroppedFrames int64  `json:"dropped_frames"`
	Reconnects    int64  `json:"reconnects"`
}

// Status is the response to get_status.
type Status struct {
	State   string         `json:"state"` // stopped|running|paused|degraded
	Uptime  time.Duration  `json:"uptime"`
	Cameras []CameraStatus `json:"cameras"`
}

// Service is implemented by the running inspection core and is the target
// every control-surface command dispatches to. Handlers never touch the
// core's internals directly, only through this interface, so the HTTP
// transport in Server can be tested against a fake Service.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	Stats(ctx context.Context, window time.Duration) (model.StatisticsSnapshot, error)
	UpdateConfig(ctx context.Context, next *model.Config) error
	ResetStats(ctx context.Context) error
	Trigger(ctx context.Context, cameraID string) error
}
