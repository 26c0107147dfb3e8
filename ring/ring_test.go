// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ring

import (
	"testing"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/verror"
	"github.com/stretchr/testify/require"
)

func TestFailOverflowRejectsWhenFull(t *testing.T) {
	r := NewMPMC[int](2, model.Fail)
	require.NoError(t, r.TryPush(1))
	require.NoError(t, r.TryPush(2))
	err := r.TryPush(3)
	require.True(t, verror.Is(err, verror.QueueFull))
	require.Equal(t, 2, r.Len())
}

func TestDropNewestKeepsOldest(t *testing.T) {
	r := NewSPSC[int](2, model.DropNewest)
	require.NoError(t, r.TryPush(1))
	require.NoError(t, r.TryPush(2))
	require.NoError(t, r.TryPush(3)) // silently dropped

	v, ok := r.TryPop()
	require.True(t, ok)
	require.Equal(t, 1, v)
	v, ok = r.TryPop()
	require.True(t, ok)
	require.Equal(t, 2, v)
	_, ok = r.TryPop()
	require.False(t, ok)
}

func TestDropOldestKeepsNewest(t *testing.T) {
	r := NewSPSC[int](2, model.DropOldest)
	require.NoError(t, r.TryPush(1))
	require.NoError(t, r.TryPush(2))
	require.NoError(t, r.TryPush(3)) // 1 dropped to make room

	require.Equal(t, 2, r.Len())
	v, ok := r.TryPop()
	require.True(t, ok)
	require.Equal(t, 2, v)
	v, ok = r.TryPop()
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestBlockWaitsForSpace(t *testing.T) {
	r := NewMPMC[int](1, model.Block)
	require.NoError(t, r.TryPush(1))

	done := make(chan struct{})
	go func() {
		require.NoError(t, r.PushTimeout(2, time.Second))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	v, ok := r.TryPop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked push never completed after space freed")
	}
}

func TestBlockTimesOut(t *testing.T) {
	r := NewMPMC[int](1, model.Block)
	require.NoError(t, r.TryPush(1))
	err := r.PushTimeout(2, 20*time.Millisecond)
	require.True(t, verror.Is(err, verror.QueueFull))
}

func TestFIFOOrderingPerProducer(t *testing.T) {
	r := NewSPSC[int](8, model.Fail)
	for i := 0; i < 8; i++ {
		require.NoError(t, r.TryPush(i))
	}
	for i := 0; i < 8; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}
