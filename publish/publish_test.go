// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package publish

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	published []*model.InspectionResult
	closed    bool
}

func (f *fakeSink) Publish(r *model.InspectionResult) { f.published = append(f.published, r) }
func (f *fakeSink) Close() error                      { f.closed = true; return nil }

type panicSink struct{}

func (panicSink) Publish(*model.InspectionResult) { panic("boom") }
func (panicSink) Close() error                     { return nil }

func TestPublisherFansOutAndIsolatesPanics(t *testing.T) {
	stats := &fakeSink{}
	dash := &fakeSink{}
	p := New(panicSink{}, stats, dash, zerolog.Nop())
	r := model.NewInspectionResult(1, 1, time.Now())
	require.NotPanics(t, func() { p.Publish(r) })
	require.Len(t, stats.published, 1)
	require.Len(t, dash.published, 1)
}

func TestPublisherClose(t *testing.T) {
	stats := &fakeSink{}
	p := New(nil, stats, nil, zerolog.Nop())
	require.NoError(t, p.Close())
	require.True(t, stats.closed)
}

func TestStatsSinkAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.jsonl")
	s, err := NewStatsSink(path, 8, zerolog.Nop())
	require.NoError(t, err)
	s.Publish(model.NewInspectionResult(1, 1, time.Now()))
	s.Publish(model.NewInspectionResult(2, 2, time.Now()))
	require.NoError(t, s.Close())
}

func TestDashboardSinkLatestNewerWins(t *testing.T) {
	d := &DashboardSink{cond: *sync.NewCond(&sync.Mutex{})}
	r1 := model.NewInspectionResult(1, 1, time.Now())
	r2 := model.NewInspectionResult(2, 2, time.Now())
	d.Publish(r1)
	d.Publish(r2)
	require.Equal(t, r2.ID, d.latest.ID)
	require.NoError(t, d.Close())
}
