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

func TestThresholdDecideStagePassesWithNoDefects(t *testing.T) {
	s := NewThresholdDecideStage(nil, 0.5, 0.1)
	d := s.Decide(context.Background(), nil)
	require.Equal(t, model.Pass, d.Kind)
}

func TestThresholdDecideStageFailsAboveThreshold(t *testing.T) {
	s := NewThresholdDecideStage(map[string]float64{"foreign_object": 0.4}, 0.5, 0.1)
	d := s.Decide(context.Background(), []model.Defect{{Type: model.ForeignObject, Severity: 0.8, Confidence: 0.8}})
	require.Equal(t, model.Fail, d.Kind)
}

func TestThresholdDecideStageUncertainNearThreshold(t *testing.T) {
	s := NewThresholdDecideStage(nil, 0.5, 0.1)
	d := s.Decide(context.Background(), []model.Defect{{Type: model.Deformation, Severity: 0.7, Confidence: 0.65}})
	require.Equal(t, model.Uncertain, d.Kind)
}

func TestThresholdDecideStagePassesBelowBand(t *testing.T) {
	s := NewThresholdDecideStage(nil, 0.5, 0.05)
	d := s.Decide(context.Background(), []model.Defect{{Type: model.ColorDeviation, Severity: 0.2, Confidence: 0.2}})
	require.Equal(t, model.Pass, d.Kind)
}
