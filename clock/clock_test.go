// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowNSMonotonic(t *testing.T) {
	s := New()
	a := s.NowNS()
	time.Sleep(time.Millisecond)
	b := s.NowNS()
	require.Greater(t, b, a)
}

func TestNextSeqStrictlyIncreasing(t *testing.T) {
	s := New()
	var last uint64
	for i := 0; i < 100; i++ {
		v := s.NextSeq()
		require.Greater(t, v, last)
		last = v
	}
}

func TestRecordSkewTracksMax(t *testing.T) {
	s := New()
	s.RecordSkew(100)
	s.RecordSkew(-500)
	s.RecordSkew(10)
	samples, maxSkew := s.SkewStats()
	require.EqualValues(t, 3, samples)
	require.EqualValues(t, 500, maxSkew)
}
