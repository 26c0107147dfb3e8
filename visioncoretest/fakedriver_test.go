// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package visioncoretest

import (
	"context"
	"testing"
	"time"

	"github.com/maruel/visioncore/buffer"
	"github.com/maruel/visioncore/model"
	"github.com/stretchr/testify/require"
)

func TestFakeDriverContinuous(t *testing.T) {
	pool, err := buffer.New(2, 64*48)
	require.NoError(t, err)
	buf, err := pool.Lease(context.Background())
	require.NoError(t, err)

	d := NewFakeDriver(1)
	require.NoError(t, d.Open(context.Background(), model.CameraConfig{ID: "cam-top", Width: 64, Height: 48, TriggerMode: "continuous"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	meta, err := d.ReadInto(ctx, buf)
	require.NoError(t, err)
	require.EqualValues(t, 1, meta.TriggerID)

	stats := d.Stats()
	require.EqualValues(t, 1, stats.GoodFrames)
	require.NoError(t, d.Close())
}

func TestFakeDriverSoftwareTriggerRequiresArm(t *testing.T) {
	pool, err := buffer.New(2, 64*48)
	require.NoError(t, err)
	buf, err := pool.Lease(context.Background())
	require.NoError(t, err)

	d := NewFakeDriver(2)
	require.NoError(t, d.Open(context.Background(), model.CameraConfig{ID: "cam-side", Width: 64, Height: 48, TriggerMode: "software"}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = d.ReadInto(ctx, buf)
	require.Error(t, err)

	require.NoError(t, d.Trigger(context.Background()))
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	_, err = d.ReadInto(ctx2, buf)
	require.NoError(t, err)
}

func TestFakeDriverBufferTooSmall(t *testing.T) {
	pool, err := buffer.New(2, 16)
	require.NoError(t, err)
	buf, err := pool.Lease(context.Background())
	require.NoError(t, err)

	d := NewFakeDriver(3)
	require.NoError(t, d.Open(context.Background(), model.CameraConfig{ID: "cam-bottom", Width: 64, Height: 48, TriggerMode: "continuous"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = d.ReadInto(ctx, buf)
	require.Error(t, err)
	require.EqualValues(t, 1, d.Stats().TransferFails)
}

func TestInjectorsProduceDetectableSignal(t *testing.T) {
	dst := make([]byte, 64*48)
	InjectContamination(dst, 64, 48)
	var sum, sq float64
	for _, v := range dst {
		sum += float64(v)
	}
	mean := sum / float64(len(dst))
	for _, v := range dst {
		d := float64(v) - mean
		sq += d * d
	}
	variance := sq / float64(len(dst))
	require.Greater(t, variance, mean*3)
}
