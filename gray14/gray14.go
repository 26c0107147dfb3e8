// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gray14 provides the dynamic-range helpers used to compress a
// 14-bit-per-pixel thermal/mono image down to an 8-bit viewable range, the
// same min/max scan a Lepton frame needs before it can be rendered or fed
// to an 8-bit detector. It mirrors the pixel layout of
// google-periph's devices/lepton/image14bit.Gray14.
package gray14

import "image"

// Min returns the smallest Gray16.Y value in img.
func Min(img *image.Gray16) uint16 {
	return extreme(img, true)
}

// Max returns the largest Gray16.Y value in img.
func Max(img *image.Gray16) uint16 {
	return extreme(img, false)
}

func extreme(img *image.Gray16, wantMin bool) uint16 {
	b := img.Bounds()
	best := uint16(0)
	if wantMin {
		best = 0xffff
	}
	first := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.Gray16At(x, y).Y
			if first {
				best = v
				first = false
				continue
			}
			if wantMin && v < best {
				best = v
			}
			if !wantMin && v > best {
				best = v
			}
		}
	}
	return best
}

// Scale rescales every pixel of src into an 8-bit buffer using a linear
// min-max stretch, the AGC step a thermal sensor's raw counts need before
// they are meaningful to an 8-bit-only consumer. dst must have capacity for
// one byte per pixel of src.
func Scale(src *image.Gray16, dst []byte) {
	min, max := Min(src), Max(src)
	rng := float64(max) - float64(min)
	if rng <= 0 {
		rng = 1
	}
	b := src.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.Gray16At(x, y).Y
			dst[i] = byte(255 * (float64(v) - float64(min)) / rng)
			i++
		}
	}
}
