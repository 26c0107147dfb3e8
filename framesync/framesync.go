// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package framesync assembles per-camera Frames into FrameSets keyed by
// trigger id. A single housekeeping goroutine sweeps the pending-slot map
// for deadlines and emits degraded FrameSets for triggers that never
// completed.
package framesync

import (
	"sync"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/ring"
	"github.com/rs/zerolog"
)

// Resyncer is implemented by the Supervisor: the Sync Manager asks it to
// force a resync of every camera when the degraded rate crosses a
// threshold.
type Resyncer interface {
	ResyncAll(reason string)
}

// Manager assembles Frames arriving on independent per-camera ring.Rings
// into model.FrameSets, emitted on out once complete or once their deadline
// passes.
type Manager struct {
	want          []model.CameraPosition
	window        time.Duration
	sweepInterval time.Duration
	resyncThresh  int
	resyncWindow  time.Duration
	out           *ring.Ring[*model.FrameSet]
	resync        Resyncer
	log           zerolog.Logger

	mu            sync.Mutex
	pending       map[uint64]*model.FrameSet
	degradedTimes []time.Time

	duplicateFrames int64
	degradedSets    int64
}

// New constructs a Manager that expects a Frame for every position in want
// before a FrameSet is considered complete.
func New(want []model.CameraPosition, cfg model.SyncConfig, out *ring.Ring[*model.FrameSet], resync Resyncer, log zerolog.Logger) *Manager {
	return &Manager{
		want:          want,
		window:        cfg.WindowDuration,
		sweepInterval: cfg.SweepInterval,
		resyncThresh:  cfg.ResyncThreshold,
		resyncWindow:  cfg.ResyncWindow,
		out:           out,
		resync:        resync,
		log:           log,
		pending:       map[uint64]*model.FrameSet{},
	}
}

// Submit places f into its trigger's slot, creating the slot on first
// arrival. Duplicate frames for an already-filled camera position within
// the same trigger are dropped, keeping the earliest-timestamped one, and
// counted rather than erroring.
func (m *Manager) Submit(f *model.Frame, triggerDeadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fs, ok := m.pending[f.Meta.TriggerID]
	if !ok {
		fs = model.NewFrameSet(f.Meta.TriggerID, triggerDeadline)
		m.pending[f.Meta.TriggerID] = fs
	}
	if existing, dup := fs.Frames[f.Position]; dup {
		m.duplicateFrames++
		if f.TimestampNS < existing.TimestampNS {
			fs.Frames[f.Position] = f
		}
		return
	}
	fs.Frames[f.Position] = f

	if fs.Complete(m.want) {
		delete(m.pending, f.Meta.TriggerID)
		m.emit(fs)
	}
}

// Sweep scans pending slots for expired deadlines and emits them degraded.
// It is invoked by a housekeeping goroutine at sweepInterval and returns the
// number of slots emitted this pass.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	var expired []*model.FrameSet
	for id, fs := range m.pending {
		if !now.Before(fs.Deadline) {
			delete(m.pending, id)
			expired = append(expired, fs)
		}
	}
	resync := false
	for _, fs := range expired {
		fs.Degraded = true
		fs.Missing = fs.MissingFrom(m.want)
		if m.emit(fs) {
			resync = true
		}
	}
	m.mu.Unlock()
	// ResyncAll calls back into ResetTriggers, so it runs after m.mu is released.
	if resync {
		m.resync.ResyncAll("degraded FrameSet rate exceeded threshold")
	}
	return len(expired)
}

// emit pushes fs downstream and, if degraded, updates the sliding-window
// degraded-rate counter, reporting true when it crosses threshold so the
// caller requests a resync once m.mu is released. Caller must hold m.mu.
func (m *Manager) emit(fs *model.FrameSet) (resync bool) {
	if fs.Degraded {
		m.degradedSets++
		now := time.Now()
		m.degradedTimes = append(m.degradedTimes, now)
		cutoff := now.Add(-m.resyncWindow)
		i := 0
		for ; i < len(m.degradedTimes); i++ {
			if m.degradedTimes[i].After(cutoff) {
				break
			}
		}
		m.degradedTimes = m.degradedTimes[i:]
		if len(m.degradedTimes) >= m.resyncThresh && m.resync != nil {
			m.degradedTimes = nil
			resync = true
		}
	}
	if err := m.out.TryPush(fs); err != nil {
		m.log.Error().Err(err).Uint64("trigger", fs.TriggerID).Msg("framesync: output ring rejected frameset")
	}
	return resync
}

// Run sweeps on sweepInterval until stop is closed.
func (m *Manager) Run(stop <-chan struct{}) {
	t := time.NewTicker(m.sweepInterval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			m.Sweep(now)
		case <-stop:
			return
		}
	}
}

// Stats returns the running duplicate-frame and degraded-FrameSet counts.
func (m *Manager) Stats() (duplicateFrames, degradedSets int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duplicateFrames, m.degradedSets
}

// ResetTriggers clears in-flight trigger bookkeeping — the pending slot map
// and the degraded-rate sliding window — without touching the cumulative
// duplicate/degraded lifetime counters Stats reports. Called by the
// Supervisor's ResyncAll (§4.6) after pausing acquisition and before
// resuming it.
func (m *Manager) ResetTriggers() {
	m.mu.Lock()
	m.pending = map[uint64]*model.FrameSet{}
	m.degradedTimes = nil
	m.mu.Unlock()
}

// Pending returns the number of trigger ids currently awaiting completion.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
