// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package detect

import (
	"context"
	"testing"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/pipeline"
	"github.com/stretchr/testify/require"
)

func flatFrame(value byte, w, h int) *pipeline.ProcessedFrame {
	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = value
	}
	return &pipeline.ProcessedFrame{Pixels: pix, Width: w, Height: h, Stride: w}
}

func TestRegistryBuildsConfiguredDetectors(t *testing.T) {
	r := NewRegistry()
	detectors, err := r.Build([]model.DetectorConfig{{Name: "contamination"}, {Name: "fill_level"}})
	require.NoError(t, err)
	require.Len(t, detectors, 2)
}

func TestRegistryRejectsUnknownName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build([]model.DetectorConfig{{Name: "nope"}})
	require.Error(t, err)
}

func TestColorDeviationFlagsOutOfBand(t *testing.T) {
	d, err := NewColorDeviationDetector(map[string]float64{"expected_mean": 128, "tolerance": 10})
	require.NoError(t, err)
	defects, err := d.Detect(context.Background(), flatFrame(200, 8, 8), nil)
	require.NoError(t, err)
	require.Len(t, defects, 1)
	require.Equal(t, model.ColorDeviation, defects[0].Type)
}

func TestColorDeviationPassesWithinBand(t *testing.T) {
	d, err := NewColorDeviationDetector(map[string]float64{"expected_mean": 128, "tolerance": 10})
	require.NoError(t, err)
	defects, err := d.Detect(context.Background(), flatFrame(128, 8, 8), nil)
	require.NoError(t, err)
	require.Empty(t, defects)
}

func TestFanOutStageMergesAcrossDetectorsAndCameras(t *testing.T) {
	contamination, err := NewContaminationDetector(nil)
	require.NoError(t, err)
	color, err := NewColorDeviationDetector(map[string]float64{"expected_mean": 0, "tolerance": 0})
	require.NoError(t, err)
	stage := NewFanOutStage([]Detector{contamination, color})

	frames := map[model.CameraPosition]*pipeline.ProcessedFrame{
		model.Top:    flatFrame(200, 4, 4),
		model.Bottom: flatFrame(200, 4, 4),
	}
	defects, err := stage.Detect(context.Background(), frames)
	require.NoError(t, err)
	require.Len(t, defects, 2) // color deviation fires once per camera; contamination stays flat (zero variance).
}
