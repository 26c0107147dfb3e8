// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maruel/visioncore/buffer"
	"github.com/maruel/visioncore/clock"
	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/ring"
	"github.com/maruel/visioncore/verror"
	"github.com/rs/zerolog"
)

// pauseTick is how often Start's loop re-checks state while Paused or while
// its breaker is Open, instead of busy-spinning against pumpOne.
const pauseTick = 50 * time.Millisecond

// Adapter wraps one Driver with the state machine, reconnection bookkeeping,
// and arrival-path stamping described for a Camera Adapter: lease a buffer,
// read into it, stamp it, push it downstream — with no allocation, no
// blocking beyond the configured lease timeout, and no per-frame logging on
// the steady path.
type Adapter struct {
	id     string
	pos    model.CameraPosition
	driver Driver
	pool   *buffer.Pool
	out    *ring.Ring[*model.Frame]
	clk    *clock.Source
	log    zerolog.Logger

	mu    sync.Mutex
	state State

	frameIDs     uint64 // per-camera counter stamped as Frame.SequenceNumber; Frame.ID comes from clk.NextSeq
	leaseTimeout time.Duration
	cfg          model.CameraConfig

	breaker         BreakerHandle
	faultThreshold  int // consecutive transient read failures before faulting
	consecutiveFail int
	metrics         FrameMetrics
	heartbeat       Heartbeater
}

// NewAdapter constructs an Adapter in the Disconnected state.
func NewAdapter(id string, pos model.CameraPosition, driver Driver, pool *buffer.Pool, out *ring.Ring[*model.Frame], clk *clock.Source, leaseTimeout time.Duration, log zerolog.Logger) *Adapter {
	return &Adapter{
		id: id, pos: pos, driver: driver, pool: pool, out: out, clk: clk,
		leaseTimeout: leaseTimeout,
		log:          log.With().Str("camera", id).Logger(),
		state:        Disconnected,
	}
}

// SetBreaker wires b as the Adapter's circuit breaker: acquisition attempts
// are gated by b.Allow, and pumpOne's outcome is reported via
// RecordSuccess/RecordFailure. faultThreshold is the number of consecutive
// DriverTransient read failures after which the Adapter gives up retrying
// transiently and surfaces a terminal verror.DriverError instead; 0 disables
// the escalation.
func (a *Adapter) SetBreaker(b BreakerHandle, faultThreshold int) {
	a.mu.Lock()
	a.breaker = b
	a.faultThreshold = faultThreshold
	a.mu.Unlock()
}

// SetMetrics wires m as the Adapter's frame-arrival/drop counter sink.
func (a *Adapter) SetMetrics(m FrameMetrics) {
	a.mu.Lock()
	a.metrics = m
	a.mu.Unlock()
}

// SetHeartbeat wires h to receive a liveness ping every time the Adapter
// successfully reads a frame, so the Supervisor's Watchdog can detect a
// camera that has stopped delivering frames without outright faulting.
func (a *Adapter) SetHeartbeat(h Heartbeater) {
	a.mu.Lock()
	a.heartbeat = h
	a.mu.Unlock()
}

// State returns the Adapter's current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) transitionTo(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !CanTransition(a.state, to) {
		return verror.Wrap(verror.DriverError, "camera: "+a.id+": "+a.state.String()+" -> "+to.String(), ErrIllegalTransition())
	}
	a.log.Info().Str("from", a.state.String()).Str("to", to.String()).Msg("camera: state transition")
	a.state = to
	return nil
}

// Connect drives the Adapter from Disconnected through Discovering to
// Configured by opening the underlying Driver.
func (a *Adapter) Connect(ctx context.Context, cfg model.CameraConfig) error {
	if err := a.transitionTo(Discovering); err != nil {
		return err
	}
	if err := a.driver.Open(ctx, cfg); err != nil {
		_ = a.transitionTo(Faulted)
		return verror.Wrap(verror.DriverTransient, "camera: "+a.id+": open failed", err)
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return a.transitionTo(Configured)
}

// Start moves the Adapter into Acquiring and runs its arrival loop until ctx
// is done or a fatal driver error occurs. The arrival loop is the hot path:
// lease, read, stamp, push — no allocation, no info-level logging per frame.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.transitionTo(Acquiring); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return a.transitionTo(Disconnected)
		}
		if a.State() == Paused {
			if a.waitOrDone(ctx) {
				return a.transitionTo(Disconnected)
			}
			continue
		}
		if a.breaker != nil && !a.breaker.Allow() {
			if a.waitOrDone(ctx) {
				return a.transitionTo(Disconnected)
			}
			continue
		}
		if err := a.pumpOne(ctx); err != nil {
			if verror.Is(err, verror.DriverError) {
				if a.breaker != nil {
					a.breaker.RecordFailure()
				}
				_ = a.transitionTo(Faulted)
				return err
			}
			if a.breaker != nil {
				a.breaker.RecordFailure()
			}
			// Transient: the Supervisor's reconnection policy decides next steps.
			a.log.Debug().Err(err).Msg("camera: transient acquisition error")
			continue
		}
		if a.breaker != nil {
			a.breaker.RecordSuccess()
		}
		if a.heartbeat != nil {
			a.heartbeat.Heartbeat(a.id)
		}
	}
}

// waitOrDone parks for pauseTick, or returns true immediately if ctx is
// already done.
func (a *Adapter) waitOrDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(pauseTick):
		return false
	}
}

func (a *Adapter) pumpOne(ctx context.Context) error {
	buf, err := a.pool.LeaseTimeout(a.leaseTimeout)
	if err != nil {
		if a.metrics != nil {
			a.metrics.CountPoolExhausted()
			a.metrics.ObserveCameraFrame(a.id, true)
		}
		return verror.Wrap(verror.PoolExhausted, "camera: "+a.id+": buffer lease timed out", err)
	}
	meta, err := a.driver.ReadInto(ctx, buf)
	if err != nil {
		_ = buf.Return()
		a.mu.Lock()
		a.consecutiveFail++
		fails := a.consecutiveFail
		a.mu.Unlock()
		if a.faultThreshold > 0 && fails >= a.faultThreshold {
			return verror.Wrap(verror.DriverError,
				fmt.Sprintf("camera: %s: %d consecutive read failures", a.id, fails), err)
		}
		return verror.Wrap(verror.DriverTransient, "camera: "+a.id+": read failed", err)
	}
	a.mu.Lock()
	a.consecutiveFail = 0
	a.mu.Unlock()

	frameID := a.clk.NextSeq()
	buf.SetOwner(frameID)
	a.frameIDs++
	f := &model.Frame{
		ID:             frameID,
		CameraID:       a.id,
		Position:       a.pos,
		TimestampNS:    a.clk.NowNS(),
		SequenceNumber: a.frameIDs,
		VendorSeqNum:   meta.TriggerID,
		Format:         a.cfg.Format,
		Width:          a.cfg.Width,
		Height:         a.cfg.Height,
		Stride:         a.cfg.Width * a.cfg.Format.BytesPerPixel(),
		Buffer:         buf,
		Meta:           meta,
	}
	if err := a.out.TryPush(f); err != nil {
		_ = buf.Return()
		if a.metrics != nil {
			a.metrics.CountQueueFull()
			a.metrics.ObserveCameraFrame(a.id, true)
		}
		return verror.Wrap(verror.QueueFull, "camera: "+a.id+": downstream ring full", err)
	}
	if a.metrics != nil {
		a.metrics.ObserveCameraFrame(a.id, false)
	}
	return nil
}

// Pause moves the Adapter from Acquiring to Paused, for example while the
// Supervisor holds the line in a degraded mode.
func (a *Adapter) Pause() error { return a.transitionTo(Paused) }

// Resume moves the Adapter from Paused back to Acquiring.
func (a *Adapter) Resume() error { return a.transitionTo(Acquiring) }

// Trigger forwards a software-trigger request to the underlying Driver; a
// no-op returning nil for continuous/external-trigger cameras, per Driver's
// own contract.
func (a *Adapter) Trigger(ctx context.Context) error { return a.driver.Trigger(ctx) }

// DriverStats returns the underlying Driver's acquisition counters.
func (a *Adapter) DriverStats() DriverStats { return a.driver.Stats() }

// Disconnect closes the underlying Driver and returns the Adapter to
// Disconnected from any state.
func (a *Adapter) Disconnect() error {
	_ = a.driver.Close()
	a.mu.Lock()
	a.state = Disconnected
	a.mu.Unlock()
	return nil
}
