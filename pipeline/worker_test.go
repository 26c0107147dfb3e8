// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/ring"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakePre struct{}

func (fakePre) Preprocess(ctx context.Context, fs *model.FrameSet) (map[model.CameraPosition]*ProcessedFrame, error) {
	return map[model.CameraPosition]*ProcessedFrame{}, nil
}

type fakeDetect struct {
	defects []model.Defect
	delay   time.Duration
}

func (f fakeDetect) Detect(ctx context.Context, frames map[model.CameraPosition]*ProcessedFrame) ([]model.Defect, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.defects, nil
}

type passthroughClassify struct{}

func (passthroughClassify) Classify(ctx context.Context, d []model.Defect) ([]model.Defect, error) {
	return d, nil
}

type thresholdDecide struct{}

func (thresholdDecide) Decide(ctx context.Context, d []model.Defect) model.Decision {
	if len(d) == 0 {
		return model.Decision{Kind: model.Pass}
	}
	return model.Decision{Kind: model.Fail, Reason: "defects found"}
}

func TestPoolProcessesFrameSetToPass(t *testing.T) {
	in := ring.NewMPMC[*model.FrameSet](4, model.Fail)
	out := ring.NewMPMC[*model.InspectionResult](4, model.Fail)
	p := NewPool(in, out, fakePre{}, fakeDetect{}, passthroughClassify{}, thresholdDecide{}, nil, model.LatencyConfig{}, zerolog.Nop())

	stop := make(chan struct{})
	p.Run(1, stop)
	defer close(stop)

	fs := model.NewFrameSet(1, time.Now().Add(time.Second))
	require.NoError(t, in.TryPush(fs))

	require.Eventually(t, func() bool { return out.Len() > 0 }, time.Second, time.Millisecond)
	r, ok := out.TryPop()
	require.True(t, ok)
	require.Equal(t, model.Pass, r.Decision.Kind)
}

func TestPoolDetectsFailure(t *testing.T) {
	in := ring.NewMPMC[*model.FrameSet](4, model.Fail)
	out := ring.NewMPMC[*model.InspectionResult](4, model.Fail)
	defects := []model.Defect{{Type: model.Crack}}
	p := NewPool(in, out, fakePre{}, fakeDetect{defects: defects}, passthroughClassify{}, thresholdDecide{}, nil, model.LatencyConfig{}, zerolog.Nop())

	stop := make(chan struct{})
	p.Run(1, stop)
	defer close(stop)

	fs := model.NewFrameSet(2, time.Now().Add(time.Second))
	require.NoError(t, in.TryPush(fs))

	require.Eventually(t, func() bool { return out.Len() > 0 }, time.Second, time.Millisecond)
	r, ok := out.TryPop()
	require.True(t, ok)
	require.Equal(t, model.Fail, r.Decision.Kind)
}

func TestHardDeadlineMarksUncertain(t *testing.T) {
	in := ring.NewMPMC[*model.FrameSet](4, model.Fail)
	out := ring.NewMPMC[*model.InspectionResult](4, model.Fail)
	latency := model.LatencyConfig{StageHard: map[string]time.Duration{"end_to_end": 5 * time.Millisecond}}
	p := NewPool(in, out, fakePre{}, fakeDetect{delay: 50 * time.Millisecond}, passthroughClassify{}, thresholdDecide{}, nil, latency, zerolog.Nop())

	stop := make(chan struct{})
	p.Run(1, stop)
	defer close(stop)

	fs := model.NewFrameSet(3, time.Now().Add(time.Second))
	require.NoError(t, in.TryPush(fs))

	require.Eventually(t, func() bool { return out.Len() > 0 }, time.Second, time.Millisecond)
	r, ok := out.TryPop()
	require.True(t, ok)
	require.Equal(t, model.Uncertain, r.Decision.Kind)
}
