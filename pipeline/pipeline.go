// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pipeline runs each FrameSet through the four inspection stages —
// Preprocess, Detect, Classify, Decide — on a fixed worker pool. The stage
// boundaries are layer-aligned interfaces rather than a monolithic
// callback, so each stage can be developed, tested, and swapped
// independently.
package pipeline

import (
	"context"
	"time"

	"github.com/maruel/visioncore/model"
)

// ProcessedFrame is a Preprocess stage's output for one camera: the raw
// Frame plus whatever normalized view (undistorted, white-balanced, ROI'd)
// the stage produced.
type ProcessedFrame struct {
	Source *model.Frame
	Pixels []byte // normalized pixel view; may alias Source.Buffer.Bytes()
	Width  int
	Height int
	Stride int
}

// PreprocessStage normalizes a raw FrameSet's per-camera Frames before
// detection: undistortion, white balance, ROI extraction.
type PreprocessStage interface {
	Preprocess(ctx context.Context, fs *model.FrameSet) (map[model.CameraPosition]*ProcessedFrame, error)
}

// DetectStage runs the configured Detector plugins over a preprocessed
// FrameSet and returns candidate defects, fanned out internally across
// detectors/ROIs.
type DetectStage interface {
	Detect(ctx context.Context, frames map[model.CameraPosition]*ProcessedFrame) ([]model.Defect, error)
}

// ClassifyStage refines candidate defects: scoring, deduplication across
// camera views, confidence calibration.
type ClassifyStage interface {
	Classify(ctx context.Context, defects []model.Defect) ([]model.Defect, error)
}

// DecideStage turns classified defects into the final pass/fail/uncertain
// verdict.
type DecideStage interface {
	Decide(ctx context.Context, defects []model.Defect) model.Decision
}

// StageTimer receives the observed duration of one pipeline stage for one
// FrameSet and counts hard-deadline breaches, implemented by the metrics
// aggregator.
type StageTimer interface {
	ObserveStage(stage string, d time.Duration)
	CountLatencyExceeded()
}
