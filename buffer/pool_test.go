// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package buffer

import (
	"testing"
	"time"

	"github.com/maruel/visioncore/verror"
	"github.com/stretchr/testify/require"
)

func TestConservation(t *testing.T) {
	p, err := New(4, 16)
	require.NoError(t, err)
	require.Equal(t, 4, p.Free())
	require.Equal(t, 0, p.Leased())

	var leased []*Buffer
	for i := 0; i < 4; i++ {
		b, err := p.TryLease()
		require.NoError(t, err)
		leased = append(leased, b)
		require.Equal(t, p.Capacity(), p.Leased()+p.Free())
	}

	_, err = p.TryLease()
	require.True(t, verror.Is(err, verror.PoolExhausted))

	for _, b := range leased {
		require.NoError(t, b.Return())
	}
	require.Equal(t, 4, p.Free())
	require.Equal(t, 0, p.Leased())
}

func TestDoubleReturnReported(t *testing.T) {
	p, err := New(1, 16)
	require.NoError(t, err)
	b, err := p.TryLease()
	require.NoError(t, err)
	require.NoError(t, b.Return())
	err = b.Return()
	require.Error(t, err)
	require.True(t, verror.Is(err, verror.DoubleReturn))
}

func TestLeaseTimeout(t *testing.T) {
	p, err := New(1, 16)
	require.NoError(t, err)
	_, err = p.TryLease()
	require.NoError(t, err)

	start := time.Now()
	_, err = p.LeaseTimeout(20 * time.Millisecond)
	require.True(t, verror.Is(err, verror.PoolExhausted))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestLeakScan(t *testing.T) {
	p, err := New(2, 16)
	require.NoError(t, err)
	b, err := p.TryLease()
	require.NoError(t, err)
	b.SetOwner(99)

	require.Empty(t, p.LeakScan(map[uint64]bool{1: true}))
	leaked := p.LeakScan(map[uint64]bool{99: true})
	require.Len(t, leaked, 1)
	require.Equal(t, b.ID(), leaked[0].ID())
}

func TestNewRejectsBadSizes(t *testing.T) {
	_, err := New(0, 16)
	require.True(t, verror.Is(err, verror.PoolAllocationFailed))
	_, err = New(4, 0)
	require.True(t, verror.Is(err, verror.PoolAllocationFailed))
}

func BenchmarkLeaseReturn(b *testing.B) {
	p, err := New(8, 64)
	require.NoError(b, err)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := p.TryLease()
		if err != nil {
			b.Fatal(err)
		}
		if err := buf.Return(); err != nil {
			b.Fatal(err)
		}
	}
}
