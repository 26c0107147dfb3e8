// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package camera defines the Driver interface every vendor camera
// integration implements, the Adapter state machine that wraps a Driver
// with reconnection and timestamping behavior, and the mockable Stats a
// Driver reports for diagnostics. It mirrors the shape of a hardware
// interface meant to be mocked in tests: a small surface returning plain
// values and errors, with a separate fake implementation for development
// without real hardware.
package camera

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/maruel/visioncore/buffer"
	"github.com/maruel/visioncore/model"
)

// Driver reads frames from one camera. Implementations may be a real vendor
// SDK binding (out of scope here) or a synthetic/fake source for testing.
// It deliberately excludes GenICam/GigE Vision protocol details: a Driver
// is handed a ready, leased buffer.Buffer to fill, never allocates on its
// own; ReadInto returns once a frame is ready or its ctx is done.
type Driver interface {
	io.Closer

	// Open establishes the connection to the physical camera and applies the
	// given configuration (resolution, pixel format, trigger mode).
	Open(ctx context.Context, cfg model.CameraConfig) error

	// Trigger requests a single capture when the camera's trigger mode is
	// software; a no-op returning nil for continuous/external modes.
	Trigger(ctx context.Context) error

	// ReadInto blocks until the next frame is available (or ctx is done) and
	// fills buf's bytes in place, returning the frame's metadata. It never
	// allocates or leases memory on its own.
	ReadInto(ctx context.Context, buf *buffer.Buffer) (model.FrameMeta, error)

	// Stats reports the driver's own acquisition counters.
	Stats() DriverStats
}

// DriverStats mirrors the counters a camera SDK typically exposes for
// diagnostics: how many frames arrived cleanly versus were lost, duplicated,
// or failed at the transport level.
type DriverStats struct {
	LastFail        error
	GoodFrames      int64
	DuplicateFrames int64
	TransferFails   int64
	Reconnects      int64
}

// BreakerHandle is the subset of a circuit breaker the Adapter needs to gate
// acquisition attempts and report their outcome. *supervisor.Breaker
// satisfies this structurally; camera cannot import supervisor directly
// since supervisor already imports camera for *Adapter.
type BreakerHandle interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

// FrameMetrics is the subset of the metrics aggregator the Adapter reports
// frame arrivals and overflow/exhaustion conditions to. *metrics.Aggregator
// satisfies this structurally.
type FrameMetrics interface {
	ObserveCameraFrame(cameraID string, dropped bool)
	CountPoolExhausted()
	CountQueueFull()
}

// Heartbeater receives liveness pings from a running Adapter.
// *supervisor.Supervisor satisfies this structurally.
type Heartbeater interface {
	Heartbeat(cameraID string)
}

// State is one node of the Camera Adapter's lifecycle.
type State uint8

// Valid values of State.
const (
	Disconnected State = iota
	Discovering
	Configured
	Acquiring
	Paused
	Faulted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Discovering:
		return "discovering"
	case Configured:
		return "configured"
	case Acquiring:
		return "acquiring"
	case Paused:
		return "paused"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// validTransitions enumerates the Camera Adapter's allowed state graph.
var validTransitions = map[State]map[State]bool{
	Disconnected: {Discovering: true},
	Discovering:  {Configured: true, Disconnected: true, Faulted: true},
	Configured:   {Acquiring: true, Disconnected: true, Faulted: true},
	Acquiring:    {Paused: true, Faulted: true, Disconnected: true},
	Paused:       {Acquiring: true, Disconnected: true, Faulted: true},
	Faulted:      {Disconnected: true},
}

// CanTransition reports whether moving from 'from' to 'to' is a legal edge
// in the Camera Adapter's lifecycle graph.
func CanTransition(from, to State) bool {
	return validTransitions[from][to]
}

var errIllegalTransition = fmt.Errorf("camera: illegal state transition")

// ErrIllegalTransition is returned by Adapter.transitionTo when asked to
// move along an edge the lifecycle graph does not allow.
func ErrIllegalTransition() error { return errIllegalTransition }
