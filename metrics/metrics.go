// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metrics is the Metrics & Stats Aggregator (C10): per-stage and
// per-component counters and histograms cheap enough for the steady path (a
// single atomic add or one prometheus histogram observation), reduced on
// demand into windowed model.StatisticsSnapshot values. It mirrors the
// counter/histogram-vector style of a Prometheus-instrumented streaming
// service, generalized from per-session/per-codec labels to
// per-stage/per-camera ones.
package metrics

import (
	"sync"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/prometheus/client_golang/prometheus"
)

// timedValue is one stage or end-to-end duration sample, in microseconds,
// stamped with its observation time so Stats can filter by window.
type timedValue struct {
	at time.Time
	v  float64
}

// resultEvent is one InspectionResult's contribution to the windowed
// decision/defect counters.
type resultEvent struct {
	at      time.Time
	kind    model.DecisionKind
	reason  string
	defects []model.DefectType
}

// cameraEvent is one frame arrival (or drop) for a camera.
type cameraEvent struct {
	at      time.Time
	camera  string
	dropped bool
}

// Aggregator owns the prometheus collectors for one running core instance
// and a retained, time-stamped event log per signal used to compute windowed
// percentiles and counts on demand. No HDR-histogram library appears
// anywhere in the retrieved example pack, so percentile computation here is
// hand-rolled over a bounded, time-windowed event log rather than adapted
// from a library (documented in DESIGN.md).
type Aggregator struct {
	registry *prometheus.Registry

	stageHist     *prometheus.HistogramVec
	e2eHist       prometheus.Histogram
	decisions     *prometheus.CounterVec
	defectTypes   *prometheus.CounterVec
	failReasons   *prometheus.CounterVec
	cameraFrames  *prometheus.CounterVec
	cameraDrops   *prometheus.CounterVec
	queueFull     prometheus.Counter
	poolExhaust   prometheus.Counter
	latencyExceed prometheus.Counter

	mu           sync.Mutex
	windowStart  time.Time
	retention    time.Duration
	stageSamples map[string][]timedValue
	e2eSamples   []timedValue
	results      []resultEvent
	cameraEvents []cameraEvent
	history      []model.StatisticsSnapshot
	historyDepth int
}

// New constructs an Aggregator and registers its collectors with a fresh
// prometheus.Registry. historyDepth bounds how many past windowed snapshots
// History retains; retention bounds how long raw samples are kept around for
// Stats to window over (it defaults to an hour, comfortably longer than any
// reasonable dashboard query window).
func New(historyDepth int, retention time.Duration) *Aggregator {
	if historyDepth <= 0 {
		historyDepth = 60
	}
	if retention <= 0 {
		retention = time.Hour
	}
	a := &Aggregator{
		registry: prometheus.NewRegistry(),
		stageHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "visioncore",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage processing duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"stage"}),
		e2eHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "visioncore",
			Name:      "end_to_end_duration_seconds",
			Help:      "End-to-end FrameSet processing duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visioncore",
			Name:      "decisions_total",
			Help:      "Inspection decisions by kind.",
		}, []string{"kind"}),
		defectTypes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visioncore",
			Name:      "defects_total",
			Help:      "Classified defects by type.",
		}, []string{"type"}),
		failReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visioncore",
			Name:      "fail_reasons_total",
			Help:      "Fail decisions by reason.",
		}, []string{"reason"}),
		cameraFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visioncore",
			Name:      "camera_frames_total",
			Help:      "Frames received per camera.",
		}, []string{"camera"}),
		cameraDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visioncore",
			Name:      "camera_drops_total",
			Help:      "Frames dropped per camera due to overflow policy.",
		}, []string{"camera"}),
		queueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visioncore", Name: "queue_full_total", Help: "QueueFull occurrences.",
		}),
		poolExhaust: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visioncore", Name: "pool_exhausted_total", Help: "PoolExhausted occurrences.",
		}),
		latencyExceed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visioncore", Name: "latency_exceeded_total", Help: "LatencyExceeded occurrences.",
		}),
		windowStart:  time.Now(),
		retention:    retention,
		stageSamples: map[string][]timedValue{},
		historyDepth: historyDepth,
	}
	a.registry.MustRegister(a.stageHist, a.e2eHist, a.decisions, a.defectTypes,
		a.failReasons, a.cameraFrames, a.cameraDrops, a.queueFull, a.poolExhaust, a.latencyExceed)
	return a
}

// Registry exposes the underlying prometheus.Registry for wiring a
// promhttp.Handler in the dashboard sink.
func (a *Aggregator) Registry() *prometheus.Registry { return a.registry }

// ObserveStage implements pipeline.StageTimer: it records d against the
// stage's histogram and appends it to the retained, time-windowed sample
// log.
func (a *Aggregator) ObserveStage(stage string, d time.Duration) {
	now := time.Now()
	a.stageHist.WithLabelValues(stage).Observe(d.Seconds())
	a.mu.Lock()
	a.stageSamples[stage] = append(a.stageSamples[stage], timedValue{at: now, v: float64(d.Microseconds())})
	a.trimLocked(now)
	a.mu.Unlock()
}

// ObserveResult rolls one InspectionResult into the decision, defect-type,
// fail-reason, and end-to-end counters.
func (a *Aggregator) ObserveResult(r *model.InspectionResult) {
	now := time.Now()
	a.decisions.WithLabelValues(r.Decision.Kind.String()).Inc()
	if r.Decision.Kind == model.Fail && r.Decision.Reason != "" {
		a.failReasons.WithLabelValues(r.Decision.Reason).Inc()
	}
	defects := make([]model.DefectType, len(r.Defects))
	for i, d := range r.Defects {
		a.defectTypes.WithLabelValues(d.Type.String()).Inc()
		defects[i] = d.Type
	}
	d := time.Duration(r.TotalProcessUS) * time.Microsecond
	a.e2eHist.Observe(d.Seconds())

	a.mu.Lock()
	a.e2eSamples = append(a.e2eSamples, timedValue{at: now, v: float64(r.TotalProcessUS)})
	a.results = append(a.results, resultEvent{at: now, kind: r.Decision.Kind, reason: r.Decision.Reason, defects: defects})
	a.trimLocked(now)
	a.mu.Unlock()
}

// ObserveCameraFrame counts one frame arrival for cameraID, and one drop if
// dropped is true (the arrival was rejected by the ring's overflow policy).
func (a *Aggregator) ObserveCameraFrame(cameraID string, dropped bool) {
	now := time.Now()
	a.cameraFrames.WithLabelValues(cameraID).Inc()
	if dropped {
		a.cameraDrops.WithLabelValues(cameraID).Inc()
	}
	a.mu.Lock()
	a.cameraEvents = append(a.cameraEvents, cameraEvent{at: now, camera: cameraID, dropped: dropped})
	a.trimLocked(now)
	a.mu.Unlock()
}

// CountQueueFull, CountPoolExhausted, and CountLatencyExceeded record one
// occurrence of the corresponding verror.Kind, called by any component that
// observes the condition rather than propagating the error further.
func (a *Aggregator) CountQueueFull()       { a.queueFull.Inc() }
func (a *Aggregator) CountPoolExhausted()   { a.poolExhaust.Inc() }
func (a *Aggregator) CountLatencyExceeded() { a.latencyExceed.Inc() }

// trimLocked evicts every retained event older than a.retention. Caller must
// hold a.mu.
func (a *Aggregator) trimLocked(now time.Time) {
	cutoff := now.Add(-a.retention)
	for stage, samples := range a.stageSamples {
		a.stageSamples[stage] = trimTimed(samples, cutoff)
	}
	a.e2eSamples = trimTimed(a.e2eSamples, cutoff)

	i := 0
	for ; i < len(a.results); i++ {
		if a.results[i].at.After(cutoff) {
			break
		}
	}
	a.results = a.results[i:]

	j := 0
	for ; j < len(a.cameraEvents); j++ {
		if a.cameraEvents[j].at.After(cutoff) {
			break
		}
	}
	a.cameraEvents = a.cameraEvents[j:]
}

func trimTimed(samples []timedValue, cutoff time.Time) []timedValue {
	i := 0
	for ; i < len(samples); i++ {
		if samples[i].at.After(cutoff) {
			break
		}
	}
	return samples[i:]
}

func valuesSince(samples []timedValue, start time.Time) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !s.at.Before(start) {
			out = append(out, s.v)
		}
	}
	return out
}

// Stats computes a model.StatisticsSnapshot over every retained event within
// the last window (or, if window is zero, since the last history append),
// without mutating any retained sample. It is safe to call from multiple
// goroutines, including concurrently with the steady-path Observe* calls,
// and to call repeatedly with different windows — unlike a destructive
// snapshot, querying Stats never discards data other callers still need.
func (a *Aggregator) Stats(window time.Duration, now time.Time) model.StatisticsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.windowStart
	if window > 0 {
		start = now.Add(-window)
	}

	snap := model.StatisticsSnapshot{
		WindowStart:          start,
		WindowEnd:            now,
		StageTimesUS:         map[string]model.Percentiles{},
		FailuresByReason:     map[string]int64{},
		DefectTypeCounts:     map[model.DefectType]int64{},
		PerCameraFrameCounts: map[string]int64{},
		PerCameraDropRates:   map[string]float64{},
	}

	for stage, samples := range a.stageSamples {
		snap.StageTimesUS[stage] = percentilesOf(valuesSince(samples, start))
	}

	e2e := valuesSince(a.e2eSamples, start)
	snap.EndToEndUS = percentilesOf(e2e)
	snap.Total = int64(len(e2e))
	if elapsed := now.Sub(start).Seconds(); elapsed > 0 {
		snap.ThroughputPerSec = float64(snap.Total) / elapsed
	}

	for _, r := range a.results {
		if r.at.Before(start) {
			continue
		}
		switch r.kind {
		case model.Pass:
			snap.PassCount++
		case model.Fail:
			snap.FailCount++
			if r.reason != "" {
				snap.FailuresByReason[r.reason]++
			}
		case model.Uncertain:
			snap.UncertainCount++
		}
		for _, dt := range r.defects {
			snap.DefectTypeCounts[dt]++
		}
	}

	cameraDrops := map[string]int64{}
	for _, ev := range a.cameraEvents {
		if ev.at.Before(start) {
			continue
		}
		snap.PerCameraFrameCounts[ev.camera]++
		if ev.dropped {
			cameraDrops[ev.camera]++
		}
	}
	for cam, total := range snap.PerCameraFrameCounts {
		if total > 0 {
			snap.PerCameraDropRates[cam] = float64(cameraDrops[cam]) / float64(total)
		}
	}

	return snap
}

// History returns the retained windowed snapshots, oldest first.
func (a *Aggregator) History() []model.StatisticsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.StatisticsSnapshot, len(a.history))
	copy(out, a.history)
	return out
}

// Reset clears the retained history and every retained event, called by the
// control surface's reset_stats operation.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.stageSamples = map[string][]timedValue{}
	a.e2eSamples = nil
	a.results = nil
	a.cameraEvents = nil
	a.windowStart = time.Now()
}

// Run computes a Stats snapshot over the trailing interval every interval
// until stop is closed, appends it to the retained history (bounded by
// historyDepth), and hands it to publish.
func (a *Aggregator) Run(interval time.Duration, stop <-chan struct{}, publish func(model.StatisticsSnapshot)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			snap := a.Stats(interval, now)
			a.mu.Lock()
			a.windowStart = now
			a.history = append(a.history, snap)
			if len(a.history) > a.historyDepth {
				a.history = a.history[len(a.history)-a.historyDepth:]
			}
			a.mu.Unlock()
			publish(snap)
		case <-stop:
			return
		}
	}
}
