// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"testing"

	"github.com/maruel/visioncore/model"
	"github.com/stretchr/testify/require"
)

func TestDedupClassifyStageDropsLowConfidence(t *testing.T) {
	s := NewDedupClassifyStage(0.5)
	in := []model.Defect{
		{Type: model.ForeignObject, Camera: model.Top, Confidence: 0.2, Severity: 0.9},
		{Type: model.ForeignObject, Camera: model.Top, Confidence: 0.8, Severity: 0.4},
	}
	out, err := s.Classify(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 0.8, out[0].Confidence)
}

func TestDedupClassifyStageMergesOverlapping(t *testing.T) {
	s := NewDedupClassifyStage(0)
	in := []model.Defect{
		{Type: model.FillLevel, Camera: model.Bottom, Bounds: model.Rect{X: 0, Y: 0, W: 10, H: 10}, Severity: 0.3, Confidence: 0.6},
		{Type: model.FillLevel, Camera: model.Bottom, Bounds: model.Rect{X: 5, Y: 5, W: 10, H: 10}, Severity: 0.9, Confidence: 0.7},
	}
	out, err := s.Classify(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 0.9, out[0].Severity)
	require.Equal(t, 0.7, out[0].Confidence)
	require.Equal(t, model.Rect{X: 0, Y: 0, W: 15, H: 15}, out[0].Bounds)
}

func TestDedupClassifyStageKeepsDistinctCameras(t *testing.T) {
	s := NewDedupClassifyStage(0)
	in := []model.Defect{
		{Type: model.Crack, Camera: model.Top, Bounds: model.Rect{X: 0, Y: 0, W: 5, H: 5}, Severity: 0.5, Confidence: 0.5},
		{Type: model.Crack, Camera: model.Left, Bounds: model.Rect{X: 0, Y: 0, W: 5, H: 5}, Severity: 0.5, Confidence: 0.5},
	}
	out, err := s.Classify(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 2)
}
