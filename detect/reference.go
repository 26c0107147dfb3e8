// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package detect

import (
	"context"
	"math"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/pipeline"
)

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func frameStats(f *pipeline.ProcessedFrame) (mean, variance float64) {
	if f == nil || len(f.Pixels) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range f.Pixels {
		sum += float64(v)
	}
	mean = sum / float64(len(f.Pixels))
	var sq float64
	for _, v := range f.Pixels {
		d := float64(v) - mean
		sq += d * d
	}
	variance = sq / float64(len(f.Pixels))
	return mean, variance
}

// ContaminationDetector flags a region as a candidate foreign-object defect
// when the whole frame's pixel variance exceeds a configured multiple of its
// mean intensity, a cheap proxy for sharp, out-of-place edges.
type ContaminationDetector struct {
	varianceMultiplier float64
}

// NewContaminationDetector builds a ContaminationDetector from its params;
// variance_multiplier defaults to 3.
func NewContaminationDetector(params map[string]float64) (Detector, error) {
	return &ContaminationDetector{varianceMultiplier: paramOr(params, "variance_multiplier", 3)}, nil
}

func (d *ContaminationDetector) Name() string { return "contamination" }

func (d *ContaminationDetector) BudgetPerMegapixel() time.Duration { return 2 * time.Millisecond }

func (d *ContaminationDetector) Detect(ctx context.Context, f *pipeline.ProcessedFrame, params map[string]float64) ([]model.Defect, error) {
	if f == nil {
		return nil, nil
	}
	mean, variance := frameStats(f)
	threshold := mean * d.varianceMultiplier
	if variance <= threshold || threshold == 0 {
		return nil, nil
	}
	severity := math.Min(1, variance/(threshold+1))
	return []model.Defect{{
		Type:       model.ForeignObject,
		Bounds:     model.Rect{X: 0, Y: 0, W: f.Width, H: f.Height},
		Severity:   severity,
		Confidence: 0.6,
	}}, nil
}

// DeformationDetector compares the frame's aspect-consistent edge profile
// against an expected silhouette tolerance; here approximated by flagging
// frames whose variance falls far below the expected minimum, indicating a
// collapsed or missing silhouette edge.
type DeformationDetector struct {
	minVariance float64
}

// NewDeformationDetector builds a DeformationDetector; min_variance
// defaults to 50.
func NewDeformationDetector(params map[string]float64) (Detector, error) {
	return &DeformationDetector{minVariance: paramOr(params, "min_variance", 50)}, nil
}

func (d *DeformationDetector) Name() string { return "deformation" }

func (d *DeformationDetector) BudgetPerMegapixel() time.Duration { return 2 * time.Millisecond }

func (d *DeformationDetector) Detect(ctx context.Context, f *pipeline.ProcessedFrame, params map[string]float64) ([]model.Defect, error) {
	if f == nil {
		return nil, nil
	}
	_, variance := frameStats(f)
	if variance >= d.minVariance {
		return nil, nil
	}
	return []model.Defect{{
		Type:       model.Deformation,
		Bounds:     model.Rect{X: 0, Y: 0, W: f.Width, H: f.Height},
		Severity:   1 - variance/d.minVariance,
		Confidence: 0.5,
	}}, nil
}

// ColorDeviationDetector flags frames whose mean intensity falls outside an
// expected band, a proxy for off-color product or lighting faults.
type ColorDeviationDetector struct {
	expectedMean float64
	tolerance    float64
}

// NewColorDeviationDetector builds a ColorDeviationDetector; expected_mean
// defaults to 128, tolerance defaults to 20.
func NewColorDeviationDetector(params map[string]float64) (Detector, error) {
	return &ColorDeviationDetector{
		expectedMean: paramOr(params, "expected_mean", 128),
		tolerance:    paramOr(params, "tolerance", 20),
	}, nil
}

func (d *ColorDeviationDetector) Name() string { return "color_deviation" }

func (d *ColorDeviationDetector) BudgetPerMegapixel() time.Duration { return time.Millisecond }

func (d *ColorDeviationDetector) Detect(ctx context.Context, f *pipeline.ProcessedFrame, params map[string]float64) ([]model.Defect, error) {
	if f == nil {
		return nil, nil
	}
	mean, _ := frameStats(f)
	delta := math.Abs(mean - d.expectedMean)
	if delta <= d.tolerance {
		return nil, nil
	}
	return []model.Defect{{
		Type:       model.ColorDeviation,
		Bounds:     model.Rect{X: 0, Y: 0, W: f.Width, H: f.Height},
		Severity:   math.Min(1, delta/(d.tolerance*3)),
		Confidence: 0.7,
	}}, nil
}

// FillLevelDetector inspects the bottom band of the frame (the expected
// liquid fill region) and flags underfill when its mean intensity departs
// from the expected full-bottle reading.
type FillLevelDetector struct {
	expectedBandMean float64
	tolerance        float64
	bandFraction     float64
}

// NewFillLevelDetector builds a FillLevelDetector; expected_band_mean
// defaults to 100, tolerance defaults to 15, band_fraction (of frame height
// from the bottom) defaults to 0.2.
func NewFillLevelDetector(params map[string]float64) (Detector, error) {
	return &FillLevelDetector{
		expectedBandMean: paramOr(params, "expected_band_mean", 100),
		tolerance:        paramOr(params, "tolerance", 15),
		bandFraction:     paramOr(params, "band_fraction", 0.2),
	}, nil
}

func (d *FillLevelDetector) Name() string { return "fill_level" }

func (d *FillLevelDetector) BudgetPerMegapixel() time.Duration { return time.Millisecond }

func (d *FillLevelDetector) Detect(ctx context.Context, f *pipeline.ProcessedFrame, params map[string]float64) ([]model.Defect, error) {
	if f == nil || f.Height == 0 || f.Stride == 0 {
		return nil, nil
	}
	bandRows := int(float64(f.Height) * d.bandFraction)
	if bandRows <= 0 {
		return nil, nil
	}
	start := (f.Height - bandRows) * f.Stride
	if start < 0 || start >= len(f.Pixels) {
		return nil, nil
	}
	band := f.Pixels[start:]
	var sum float64
	for _, v := range band {
		sum += float64(v)
	}
	mean := sum / float64(len(band))
	delta := math.Abs(mean - d.expectedBandMean)
	if delta <= d.tolerance {
		return nil, nil
	}
	return []model.Defect{{
		Type:       model.FillLevel,
		Bounds:     model.Rect{X: 0, Y: f.Height - bandRows, W: f.Width, H: bandRows},
		Severity:   math.Min(1, delta/(d.tolerance*3)),
		Confidence: 0.65,
	}}, nil
}
