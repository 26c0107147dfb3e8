// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package detect provides the Detector plugin contract, a name-keyed
// Registry of constructors, and the reference detectors shipped with the
// core: contamination, deformation, color-deviation, and fill-level, each
// operating on basic image statistics.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/pipeline"
	"golang.org/x/sync/errgroup"
)

// Detector is one pluggable defect check. Implementations must bound their
// own runtime via BudgetPerMegapixel so the fan-out scheduler can reason
// about worst-case stage time without inspecting the plugin's internals.
type Detector interface {
	Name() string
	Detect(ctx context.Context, frame *pipeline.ProcessedFrame, params map[string]float64) ([]model.Defect, error)
	BudgetPerMegapixel() time.Duration
}

// Constructor builds a Detector from its configured parameters.
type Constructor func(params map[string]float64) (Detector, error)

// Registry maps a Detector's configured name to its Constructor. It carries
// no inheritance or base-class relationship between entries, by design: new
// detectors register independently.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns a Registry seeded with the reference detectors.
func NewRegistry() *Registry {
	r := &Registry{ctors: map[string]Constructor{}}
	r.Register("contamination", NewContaminationDetector)
	r.Register("deformation", NewDeformationDetector)
	r.Register("color_deviation", NewColorDeviationDetector)
	r.Register("fill_level", NewFillLevelDetector)
	return r
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.ctors[name] = ctor
}

// Build instantiates every configured detector, failing on the first
// unknown name or construction error.
func (r *Registry) Build(cfgs []model.DetectorConfig) ([]Detector, error) {
	out := make([]Detector, 0, len(cfgs))
	for _, cfg := range cfgs {
		ctor, ok := r.ctors[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("detect: no registered detector named %q", cfg.Name)
		}
		d, err := ctor(cfg.Params)
		if err != nil {
			return nil, fmt.Errorf("detect: building %q: %w", cfg.Name, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// FanOutStage runs every configured Detector against every camera's
// ProcessedFrame concurrently, one goroutine per detector and frame pair
// (the errgroup sets no concurrency limit), and merges the resulting defects.
type FanOutStage struct {
	detectors []Detector
}

// NewFanOutStage returns a pipeline.DetectStage that fans detector
// invocations out across goroutines via errgroup.
func NewFanOutStage(detectors []Detector) *FanOutStage {
	return &FanOutStage{detectors: detectors}
}

// Detect implements pipeline.DetectStage.
func (s *FanOutStage) Detect(ctx context.Context, frames map[model.CameraPosition]*pipeline.ProcessedFrame) ([]model.Defect, error) {
	type job struct {
		detector Detector
		frame    *pipeline.ProcessedFrame
	}
	var jobs []job
	for _, d := range s.detectors {
		for _, f := range frames {
			jobs = append(jobs, job{detector: d, frame: f})
		}
	}

	results := make([][]model.Defect, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			defects, err := j.detector.Detect(gctx, j.frame, nil)
			if err != nil {
				return fmt.Errorf("detect: %s: %w", j.detector.Name(), err)
			}
			results[i] = defects
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.Defect
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
