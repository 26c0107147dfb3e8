// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package clock provides the monotonic timestamp and sequence-number source
// shared by every Camera Adapter, so that Frame.TimestampNS values are
// comparable across cameras regardless of each driver's own clock.
package clock

import (
	"sync/atomic"
	"time"
)

// Source vends monotonic nanosecond timestamps and a process-wide strictly
// increasing sequence counter. Construct it with New: NowNS measures from
// the creation time New records.
type Source struct {
	start    time.Time
	seq      atomic.Uint64
	skewSamples atomic.Int64
	maxSkewNS   atomic.Int64
}

// New returns a Source anchored to the current monotonic clock reading.
func New() *Source {
	return &Source{start: time.Now()}
}

// NowNS returns nanoseconds elapsed on the monotonic clock since the Source
// was created. It never goes backwards within a process lifetime.
func (s *Source) NowNS() int64 {
	return time.Since(s.start).Nanoseconds()
}

// NextSeq returns the next value of the process-wide sequence counter,
// starting at 1. The Camera Adapter stamps it as Frame.ID, a process-wide
// unique frame id independent of any vendor-supplied sequence number.
func (s *Source) NextSeq() uint64 {
	return s.seq.Add(1)
}

// RecordSkew records the observed difference in nanoseconds between a
// vendor/device timestamp and the Source's own NowNS at the moment of
// capture, for drift diagnostics surfaced by the metrics aggregator.
func (s *Source) RecordSkew(deltaNS int64) {
	if deltaNS < 0 {
		deltaNS = -deltaNS
	}
	s.skewSamples.Add(1)
	for {
		cur := s.maxSkewNS.Load()
		if deltaNS <= cur {
			return
		}
		if s.maxSkewNS.CompareAndSwap(cur, deltaNS) {
			return
		}
	}
}

// SkewStats returns the number of skew samples recorded and the largest
// absolute skew observed, in nanoseconds.
func (s *Source) SkewStats() (samples int64, maxSkewNS int64) {
	return s.skewSamples.Load(), s.maxSkewNS.Load()
}
