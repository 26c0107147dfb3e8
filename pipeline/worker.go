// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/ring"
	"github.com/maruel/visioncore/verror"
	"github.com/rs/zerolog"
)

// retiredRetention bounds how long a Pool remembers a Frame id as "finished
// processing" for RetiredFrameIDs, comfortably longer than any reasonable
// Supervisor scavenge interval.
const retiredRetention = 5 * time.Minute

// Pool runs each FrameSet arriving on in through Preprocess, Detect,
// Classify, Decide on one of a fixed number of worker goroutines, emitting
// an InspectionResult on out.
type Pool struct {
	in     *ring.Ring[*model.FrameSet]
	out    *ring.Ring[*model.InspectionResult]
	pre    PreprocessStage
	detect DetectStage
	classify ClassifyStage
	decide DecideStage
	timer  StageTimer
	soft   map[string]time.Duration
	hard   map[string]time.Duration
	log    zerolog.Logger

	retireMu sync.Mutex
	retired  map[uint64]time.Time
}

// NewPool constructs a worker Pool wired to the four stage implementations
// and the per-stage soft/hard deadlines from LatencyConfig.
func NewPool(in *ring.Ring[*model.FrameSet], out *ring.Ring[*model.InspectionResult], pre PreprocessStage, detect DetectStage, classify ClassifyStage, decide DecideStage, timer StageTimer, latency model.LatencyConfig, log zerolog.Logger) *Pool {
	return &Pool{
		in: in, out: out, pre: pre, detect: detect, classify: classify, decide: decide,
		timer: timer, soft: latency.StageSoft, hard: latency.StageHard, log: log,
		retired: map[uint64]time.Time{},
	}
}

// Run spawns n worker goroutines pulling from the input ring until stop is
// closed.
func (p *Pool) Run(n int, stop <-chan struct{}) {
	for i := 0; i < n; i++ {
		go p.workerLoop(stop)
	}
}

func (p *Pool) workerLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		fs, ok := p.in.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		result := p.processOne(fs)
		if err := p.out.TryPush(result); err != nil {
			p.log.Error().Err(err).Uint64("trigger", fs.TriggerID).Msg("pipeline: result ring rejected")
		}
	}
}

func (p *Pool) processOne(fs *model.FrameSet) (result *model.InspectionResult) {
	defer p.markRetired(fs)

	start := time.Now()
	result = model.NewInspectionResult(fs.TriggerID, fs.TriggerID, start)
	result.Degraded = fs.Degraded
	result.MissingCameras = fs.Missing

	// A panicking stage does not kill the worker: the FrameSet is reported
	// Uncertain and the worker goes on with the next one.
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Uint64("trigger", fs.TriggerID).Msg("pipeline: stage panicked")
			result.Decision = model.Decision{Kind: model.Uncertain, Reason: verror.New(verror.PipelineStageError, "pipeline: stage panicked").Error()}
			p.finish(result, start)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.endToEndHard())
	defer cancel()

	processed, err := timedStage(p, "preprocess", result, func(ctx context.Context) (map[model.CameraPosition]*ProcessedFrame, error) {
		return p.pre.Preprocess(ctx, fs)
	})(ctx)
	if err != nil {
		if err == context.DeadlineExceeded {
			p.countLatencyExceeded()
		}
		result.Decision = abortDecision(err)
		p.finish(result, start)
		return result
	}

	defects, err := timedStage(p, "detect", result, func(ctx context.Context) ([]model.Defect, error) {
		return p.detect.Detect(ctx, processed)
	})(ctx)
	if err != nil {
		if err == context.DeadlineExceeded {
			p.countLatencyExceeded()
		}
		result.Decision = abortDecision(err)
		p.finish(result, start)
		return result
	}

	classified, err := timedStage(p, "classify", result, func(ctx context.Context) ([]model.Defect, error) {
		return p.classify.Classify(ctx, defects)
	})(ctx)
	if err != nil {
		classified = defects // Classify failures degrade to raw candidates rather than abort.
	}
	result.Defects = classified

	decStart := time.Now()
	result.Decision = p.decide.Decide(ctx, classified)
	p.observe("decide", time.Since(decStart), result)

	p.finish(result, start)
	return result
}

func (p *Pool) finish(result *model.InspectionResult, start time.Time) {
	result.TotalProcessUS = time.Since(start).Microseconds()
}

// markRetired records every Frame in fs as finished processing, for
// RetiredFrameIDs, and evicts anything older than retiredRetention.
func (p *Pool) markRetired(fs *model.FrameSet) {
	now := time.Now()
	p.retireMu.Lock()
	for _, f := range fs.Frames {
		p.retired[f.ID] = now
	}
	cutoff := now.Add(-retiredRetention)
	for id, at := range p.retired {
		if at.Before(cutoff) {
			delete(p.retired, id)
		}
	}
	p.retireMu.Unlock()
}

// RetiredFrameIDs returns the Frame ids this Pool has finished processing
// within the retention window, satisfying supervisor.ScavengeSource for the
// Supervisor's periodic buffer-leak scan.
func (p *Pool) RetiredFrameIDs() map[uint64]bool {
	p.retireMu.Lock()
	defer p.retireMu.Unlock()
	out := make(map[uint64]bool, len(p.retired))
	for id := range p.retired {
		out[id] = true
	}
	return out
}

func (p *Pool) countLatencyExceeded() {
	if p.timer != nil {
		p.timer.CountLatencyExceeded()
	}
}

// abortDecision turns a stage error into the Uncertain verdict the hard
// deadline / stage failure path produces. A context deadline is reported as
// verror.LatencyExceeded; anything else carries the stage's own error text.
func abortDecision(err error) model.Decision {
	if err == context.DeadlineExceeded {
		return model.Decision{Kind: model.Uncertain, Reason: verror.New(verror.LatencyExceeded, "pipeline: hard deadline exceeded").Error()}
	}
	return model.Decision{Kind: model.Uncertain, Reason: err.Error()}
}

func (p *Pool) endToEndHard() time.Duration {
	if d, ok := p.hard["end_to_end"]; ok && d > 0 {
		return d
	}
	return time.Second
}

// timedStage wraps fn so that its wall-clock duration is recorded against
// result and the pool's soft/hard deadline log, regardless of fn's result
// type.
func timedStage[T any](p *Pool, name string, result *model.InspectionResult, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		start := time.Now()
		v, err := fn(ctx)
		p.observe(name, time.Since(start), result)
		return v, err
	}
}

func (p *Pool) observe(stage string, d time.Duration, result *model.InspectionResult) {
	result.StageTimesUS[stage] = d.Microseconds()
	if p.timer != nil {
		p.timer.ObserveStage(stage, d)
	}
	if hard, ok := p.hard[stage]; ok && hard > 0 && d > hard {
		p.log.Warn().Str("stage", stage).Dur("took", d).Dur("hard_deadline", hard).Msg("pipeline: hard deadline breached")
	} else if soft, ok := p.soft[stage]; ok && soft > 0 && d > soft {
		p.log.Debug().Str("stage", stage).Dur("took", d).Dur("soft_deadline", soft).Msg("pipeline: soft deadline breached")
	}
}
