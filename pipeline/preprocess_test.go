// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/maruel/visioncore/buffer"
	"github.com/maruel/visioncore/model"
	"github.com/stretchr/testify/require"
)

func leaseBuffer(t *testing.T, n int) *buffer.Buffer {
	t.Helper()
	pool, err := buffer.New(1, n)
	require.NoError(t, err)
	b, err := pool.Lease(context.Background())
	require.NoError(t, err)
	return b
}

func TestNormalizeStageMono8PassesThroughPackedRows(t *testing.T) {
	buf := leaseBuffer(t, 4*2)
	data := buf.Bytes()
	copy(data, []byte{1, 2, 3, 4, 9, 9, 9, 9}) // width=3, stride=4, 2 rows
	f := &model.Frame{CameraID: "cam-top", Format: model.Mono8, Width: 3, Height: 2, Stride: 4, Buffer: buf}
	fs := model.NewFrameSet(1, time.Now().Add(time.Second))
	fs.Frames[model.Top] = f

	s := NewNormalizeStage()
	out, err := s.Preprocess(context.Background(), fs)
	require.NoError(t, err)
	pf := out[model.Top]
	require.Equal(t, []byte{1, 2, 3, 9, 9, 9}, pf.Pixels)
	require.Equal(t, 3, pf.Stride)
}

func TestNormalizeStageMono16Stretches(t *testing.T) {
	buf := leaseBuffer(t, 2*2*2)
	data := buf.Bytes()
	binary.LittleEndian.PutUint16(data[0:2], 100)
	binary.LittleEndian.PutUint16(data[2:4], 4100)
	binary.LittleEndian.PutUint16(data[4:6], 100)
	binary.LittleEndian.PutUint16(data[6:8], 4100)
	f := &model.Frame{CameraID: "cam-top", Format: model.Mono16, Width: 2, Height: 2, Stride: 4, Buffer: buf}
	fs := model.NewFrameSet(1, time.Now().Add(time.Second))
	fs.Frames[model.Top] = f

	s := NewNormalizeStage()
	out, err := s.Preprocess(context.Background(), fs)
	require.NoError(t, err)
	pf := out[model.Top]
	require.Equal(t, byte(0), pf.Pixels[0])
	require.Equal(t, byte(255), pf.Pixels[1])
}

func TestNormalizeStageRejectsUnsupportedFormat(t *testing.T) {
	buf := leaseBuffer(t, 4)
	f := &model.Frame{CameraID: "cam-top", Format: model.RGB8, Width: 1, Height: 1, Stride: 3, Buffer: buf}
	fs := model.NewFrameSet(1, time.Now().Add(time.Second))
	fs.Frames[model.Top] = f

	s := NewNormalizeStage()
	_, err := s.Preprocess(context.Background(), fs)
	require.Error(t, err)
}
