// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package supervisor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/maruel/visioncore/buffer"
	"github.com/maruel/visioncore/camera"
	"github.com/maruel/visioncore/eventlog"
	"github.com/maruel/visioncore/framesync"
	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
)

// ScavengeSource supplies the Frame ids the pipeline has finished with, for
// the Supervisor's periodic buffer-leak scan. *pipeline.Pool satisfies this
// structurally; supervisor cannot import pipeline, since pipeline's worker
// tests would then need the whole fault-tolerance stack, so this interface
// is declared on the consumer side instead.
type ScavengeSource interface {
	RetiredFrameIDs() map[uint64]bool
}

// Supervisor owns one Breaker per camera, a shared Watchdog, and the
// Reconnector, and implements framesync.Resyncer so the Sync Manager can
// request a forced resync when the degraded-FrameSet rate gets too high.
type Supervisor struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	watchdog  *Watchdog
	reconnect *Reconnector
	adapters  map[string]*camera.Adapter
	cfgs      map[string]model.CameraConfig
	syncMgr   *framesync.Manager
	log       zerolog.Logger
}

// New constructs a Supervisor with no cameras; add them with Register.
func New(retry model.RetryConfig, heartbeatTimeout time.Duration, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		breakers:  map[string]*Breaker{},
		watchdog:  NewWatchdog(heartbeatTimeout),
		reconnect: NewReconnector(retry, log),
		adapters:  map[string]*camera.Adapter{},
		cfgs:      map[string]model.CameraConfig{},
		log:       log,
	}
}

// Register associates an Adapter and its breaker/config under cameraID,
// seeds its breaker from breakerCfg, and wires the breaker and this
// Supervisor's heartbeat back into the Adapter so acquisition is actually
// gated by, and reports into, the fault-tolerance machinery.
func (s *Supervisor) Register(cameraID string, adapter *camera.Adapter, cfg model.CameraConfig, breakerCfg model.BreakerConfig) {
	s.mu.Lock()
	b := NewBreaker(breakerCfg.FailureThreshold, breakerCfg.ResetTimeout, breakerCfg.HalfOpenProbes)
	s.breakers[cameraID] = b
	s.adapters[cameraID] = adapter
	s.cfgs[cameraID] = cfg
	s.mu.Unlock()

	adapter.SetBreaker(b, breakerCfg.FailureThreshold)
	adapter.SetHeartbeat(s)
}

// SetSyncManager wires the Sync Manager whose in-flight trigger bookkeeping
// ResyncAll resets. It is set once after construction, since framesync.New
// takes the Supervisor as its Resyncer and must therefore be constructed
// first.
func (s *Supervisor) SetSyncManager(m *framesync.Manager) {
	s.mu.Lock()
	s.syncMgr = m
	s.mu.Unlock()
}

// Breaker returns the registered Breaker for cameraID, or nil if unknown.
func (s *Supervisor) Breaker(cameraID string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakers[cameraID]
}

// Heartbeat records liveness for cameraID.
func (s *Supervisor) Heartbeat(cameraID string) {
	s.watchdog.Beat(cameraID)
}

// ResyncAll implements framesync.Resyncer: per §4.6, it pauses every
// currently-acquiring camera, resets the Sync Manager's in-flight trigger
// bookkeeping, and resumes acquisition on the cameras it paused.
func (s *Supervisor) ResyncAll(reason string) {
	s.log.Warn().Str("reason", reason).Msg("supervisor: resync requested for all cameras")

	s.mu.Lock()
	adapters := make([]*camera.Adapter, 0, len(s.adapters))
	for _, a := range s.adapters {
		adapters = append(adapters, a)
	}
	mgr := s.syncMgr
	s.mu.Unlock()

	var paused []*camera.Adapter
	for _, a := range adapters {
		if a.State() == camera.Acquiring {
			if err := a.Pause(); err == nil {
				paused = append(paused, a)
			}
		}
	}

	if mgr != nil {
		mgr.ResetTriggers()
	}

	for _, a := range paused {
		if err := a.Resume(); err != nil {
			s.log.Error().Err(err).Msg("supervisor: resync failed to resume camera")
		}
	}
}

// ReconnectAll runs the Reconnector against every registered, currently
// disconnected or faulted camera.
func (s *Supervisor) ReconnectAll(ctx context.Context) {
	s.mu.Lock()
	adapters := make(map[string]*camera.Adapter, len(s.adapters))
	cfgs := make(map[string]model.CameraConfig, len(s.cfgs))
	for k, v := range s.adapters {
		adapters[k] = v
	}
	for k, v := range s.cfgs {
		cfgs[k] = v
	}
	s.mu.Unlock()

	for id, adapter := range adapters {
		switch adapter.State() {
		case camera.Disconnected, camera.Faulted:
			go func(id string, a *camera.Adapter) {
				if err := s.reconnect.Run(ctx, a, cfgs[id]); err != nil {
					s.log.Error().Str("camera", id).Err(err).Msg("supervisor: reconnect exhausted retries")
				}
			}(id, adapter)
		}
	}
}

// EvaluateLine reports the current degraded-mode decision across every
// registered camera.
func (s *Supervisor) EvaluateLine() DegradedDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	faulted := 0
	for _, a := range s.adapters {
		if a.State() == camera.Faulted {
			faulted++
		}
	}
	return EvaluateDegraded(faulted, len(s.adapters))
}

// Run is the Supervisor's control loop: it starts the Watchdog's periodic
// sweep (logging any camera whose heartbeat has expired and then running
// ReconnectAll, which only acts on disconnected or faulted cameras),
// reconnects every disconnected or faulted camera, evaluates the line's
// degraded-mode decision, and scans pool for leaked buffers, every interval
// until stop is closed. pool or scavenge may be nil to disable the
// buffer-leak scan (tests that have no pipeline Pool to scavenge); a nil
// evlog only skips the durable BufferLeak record.
func (s *Supervisor) Run(pool *buffer.Pool, scavenge ScavengeSource, evlog *eventlog.Log, interval time.Duration, stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stop
		cancel()
	}()

	go s.watchdog.Run(interval, func(expired []string) {
		for _, id := range expired {
			s.log.Warn().Str("camera", id).Msg("supervisor: camera heartbeat expired")
		}
		s.ReconnectAll(ctx)
	}, stop)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.ReconnectAll(ctx)
			if d := s.EvaluateLine(); !d.Continue {
				s.log.Error().Str("reason", d.Reason).Msg("supervisor: line halted, too many cameras faulted")
			} else if d.Reason != "" {
				s.log.Warn().Str("reason", d.Reason).Msg("supervisor: running degraded")
			}
			if pool != nil && scavenge != nil {
				s.scavenge(pool, scavenge, evlog)
			}
		case <-stop:
			return
		}
	}
}

// scavenge runs one pass of the Scavenger (§4.1): it scans pool for buffers
// leased to a Frame id the pipeline has already retired without returning
// them, logging and durably recording a BufferLeak event for each.
func (s *Supervisor) scavenge(pool *buffer.Pool, src ScavengeSource, evlog *eventlog.Log) {
	leaked := pool.LeakScan(src.RetiredFrameIDs())
	for _, b := range leaked {
		s.log.Warn().Uint32("buffer", b.ID()).Uint64("owner", b.Owner()).Msg("supervisor: leaked buffer detected")
		if evlog != nil {
			_ = evlog.Record(eventlog.BufferLeak, "leaked buffer detected",
				"buffer", strconv.FormatUint(uint64(b.ID()), 10),
				"owner", strconv.FormatUint(b.Owner(), 10))
		}
	}
}
