// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metrics

import (
	"sort"

	"github.com/maruel/visioncore/model"
)

// percentilesOf computes mean/min/max/p50/p95/p99 over samples, without
// mutating the caller's slice. Returns the zero value when samples is
// empty.
func percentilesOf(samples []float64) model.Percentiles {
	if len(samples) == 0 {
		return model.Percentiles{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	return model.Percentiles{
		Mean: sum / float64(n),
		Min:  sorted[0],
		Max:  sorted[n-1],
		P50:  quantile(sorted, 0.50),
		P95:  quantile(sorted, 0.95),
		P99:  quantile(sorted, 0.99),
	}
}

// quantile returns the value at quantile q (0..1) in a pre-sorted slice,
// interpolating linearly between the two nearest ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
