// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package framesync

import (
	"testing"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/ring"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var want = []model.CameraPosition{model.Top, model.Bottom}

func newManager(resync Resyncer) (*Manager, *ring.Ring[*model.FrameSet]) {
	out := ring.NewMPMC[*model.FrameSet](8, model.Fail)
	cfg := model.SyncConfig{WindowDuration: 5 * time.Millisecond, SweepInterval: time.Millisecond, ResyncThreshold: 2, ResyncWindow: time.Second}
	return New(want, cfg, out, resync, zerolog.Nop()), out
}

func TestSubmitCompletesFrameSet(t *testing.T) {
	m, out := newManager(nil)
	deadline := time.Now().Add(m.window)
	m.Submit(&model.Frame{Position: model.Top, Meta: model.FrameMeta{TriggerID: 1}}, deadline)
	require.Equal(t, 1, m.Pending())
	m.Submit(&model.Frame{Position: model.Bottom, Meta: model.FrameMeta{TriggerID: 1}}, deadline)
	require.Equal(t, 0, m.Pending())

	fs, ok := out.TryPop()
	require.True(t, ok)
	require.False(t, fs.Degraded)
	require.True(t, fs.Complete(want))
}

func TestDuplicateFrameDropped(t *testing.T) {
	m, _ := newManager(nil)
	deadline := time.Now().Add(m.window)
	m.Submit(&model.Frame{Position: model.Top, TimestampNS: 100, Meta: model.FrameMeta{TriggerID: 1}}, deadline)
	m.Submit(&model.Frame{Position: model.Top, TimestampNS: 50, Meta: model.FrameMeta{TriggerID: 1}}, deadline)
	dup, _ := m.Stats()
	require.EqualValues(t, 1, dup)
}

func TestSweepEmitsDegraded(t *testing.T) {
	m, out := newManager(nil)
	past := time.Now().Add(-time.Millisecond)
	m.Submit(&model.Frame{Position: model.Top, Meta: model.FrameMeta{TriggerID: 1}}, past)
	n := m.Sweep(time.Now())
	require.Equal(t, 1, n)

	fs, ok := out.TryPop()
	require.True(t, ok)
	require.True(t, fs.Degraded)
	require.Equal(t, []model.CameraPosition{model.Bottom}, fs.Missing)
}

type countResync struct{ calls int }

func (c *countResync) ResyncAll(reason string) { c.calls++ }

func TestResyncThresholdTriggered(t *testing.T) {
	rs := &countResync{}
	m, _ := newManager(rs)
	past := time.Now().Add(-time.Millisecond)
	for i := uint64(1); i <= 2; i++ {
		m.Submit(&model.Frame{Position: model.Top, Meta: model.FrameMeta{TriggerID: i}}, past)
	}
	m.Sweep(time.Now())
	require.Equal(t, 1, rs.calls)
}
