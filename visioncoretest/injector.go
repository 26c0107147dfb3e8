// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package visioncoretest

// InjectContamination overwrites dst (row-major Mono8, width w, height h)
// with a sparse field of saturated pixels against a flat background, high
// enough local variance to reliably trip detect.ContaminationDetector's
// default threshold. It is the synthetic counterpart to pressing a defect
// in front of a real camera during a bench test.
func InjectContamination(dst []byte, w, h int) {
	for i := range dst {
		dst[i] = 64
	}
	step := 7
	if step <= 0 {
		step = 1
	}
	for i := 0; i < len(dst); i += step {
		dst[i] = 250
	}
}

// InjectUnderfill sets the bottom bandFraction of dst to a dark level far
// below FillLevelDetector's expected band mean, simulating a bottle that
// was not filled to spec.
func InjectUnderfill(dst []byte, w, h int, bandFraction float64) {
	if w <= 0 || h <= 0 {
		return
	}
	bandRows := int(float64(h) * bandFraction)
	if bandRows <= 0 {
		return
	}
	start := (h - bandRows) * w
	if start < 0 || start >= len(dst) {
		return
	}
	for i := start; i < len(dst); i++ {
		dst[i] = 10
	}
}

// InjectColorDeviation sets every pixel in dst to value, simulating
// off-color product or a lighting fault that ColorDeviationDetector's mean
// check can catch.
func InjectColorDeviation(dst []byte, value byte) {
	for i := range dst {
		dst[i] = value
	}
}
