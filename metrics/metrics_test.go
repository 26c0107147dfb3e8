// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metrics

import (
	"testing"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/stretchr/testify/require"
)

func TestStatsPercentiles(t *testing.T) {
	a := New(4, time.Hour)
	for i := 1; i <= 100; i++ {
		a.ObserveStage("preprocess", time.Duration(i)*time.Microsecond)
	}
	snap := a.Stats(0, time.Now())
	p := snap.StageTimesUS["preprocess"]
	require.InDelta(t, 50.5, p.Mean, 1)
	require.Equal(t, 1.0, p.Min)
	require.Equal(t, 100.0, p.Max)
	require.InDelta(t, 99, p.P99, 2)
}

func TestStatsDoesNotMutateState(t *testing.T) {
	a := New(4, time.Hour)
	for i := 1; i <= 10; i++ {
		a.ObserveStage("preprocess", time.Duration(i)*time.Microsecond)
	}
	first := a.Stats(0, time.Now())
	second := a.Stats(0, time.Now())
	require.Equal(t, first.Total, second.Total)
	require.Equal(t, first.StageTimesUS["preprocess"], second.StageTimesUS["preprocess"])
}

func TestObserveResultCounters(t *testing.T) {
	a := New(4, time.Hour)
	r := model.NewInspectionResult(1, 1, time.Now())
	r.Decision = model.Decision{Kind: model.Fail, Reason: "contamination"}
	r.Defects = []model.Defect{{Type: model.ForeignObject}}
	r.TotalProcessUS = 1234
	a.ObserveResult(r)
	snap := a.Stats(0, time.Now())
	require.Equal(t, int64(1), snap.Total)
	require.Equal(t, int64(1), snap.FailCount)
	require.Equal(t, int64(0), snap.PassCount)
	require.Equal(t, int64(1), snap.FailuresByReason["contamination"])
	require.Equal(t, int64(1), snap.DefectTypeCounts[model.ForeignObject])
}

func TestObserveCameraFramePerCameraRates(t *testing.T) {
	a := New(4, time.Hour)
	a.ObserveCameraFrame("cam1", false)
	a.ObserveCameraFrame("cam1", false)
	a.ObserveCameraFrame("cam1", true)
	a.ObserveCameraFrame("cam2", false)
	snap := a.Stats(0, time.Now())
	require.Equal(t, int64(3), snap.PerCameraFrameCounts["cam1"])
	require.Equal(t, int64(1), snap.PerCameraFrameCounts["cam2"])
	require.InDelta(t, 1.0/3.0, snap.PerCameraDropRates["cam1"], 0.001)
	require.InDelta(t, 0, snap.PerCameraDropRates["cam2"], 0.001)
}

func TestStatsWindowExcludesOldSamples(t *testing.T) {
	a := New(4, time.Hour)
	a.mu.Lock()
	a.e2eSamples = append(a.e2eSamples, timedValue{at: time.Now().Add(-time.Hour), v: 999})
	a.mu.Unlock()
	a.ObserveResult(model.NewInspectionResult(1, 1, time.Now()))

	snap := a.Stats(time.Minute, time.Now())
	require.Equal(t, int64(1), snap.Total)
}

func appendHistory(a *Aggregator) {
	snap := a.Stats(0, time.Now())
	a.mu.Lock()
	a.history = append(a.history, snap)
	if len(a.history) > a.historyDepth {
		a.history = a.history[len(a.history)-a.historyDepth:]
	}
	a.mu.Unlock()
}

func TestHistoryBounded(t *testing.T) {
	a := New(2, time.Hour)
	for i := 0; i < 5; i++ {
		appendHistory(a)
	}
	require.Len(t, a.History(), 2)
}

func TestResetClearsHistory(t *testing.T) {
	a := New(4, time.Hour)
	appendHistory(a)
	require.NotEmpty(t, a.History())
	a.Reset()
	require.Empty(t, a.History())
}
