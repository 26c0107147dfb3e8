// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gray14

import (
	"image"
	"image/color"
	"testing"
)

func TestMin(t *testing.T) {
	i := image.NewGray16(image.Rect(0, 0, 1, 1))
	i.SetGray16(0, 0, color.Gray16{Y: 65535})
	if m := Min(i); m != 65535 {
		t.Fatal(m)
	}
}

func TestMinMaxAcrossImage(t *testing.T) {
	i := image.NewGray16(image.Rect(0, 0, 2, 1))
	i.SetGray16(0, 0, color.Gray16{Y: 100})
	i.SetGray16(1, 0, color.Gray16{Y: 4000})
	if m := Min(i); m != 100 {
		t.Fatalf("min = %d, want 100", m)
	}
	if m := Max(i); m != 4000 {
		t.Fatalf("max = %d, want 4000", m)
	}
}

func TestScaleStretchesToFullRange(t *testing.T) {
	i := image.NewGray16(image.Rect(0, 0, 2, 1))
	i.SetGray16(0, 0, color.Gray16{Y: 100})
	i.SetGray16(1, 0, color.Gray16{Y: 4100})
	dst := make([]byte, 2)
	Scale(i, dst)
	if dst[0] != 0 {
		t.Fatalf("dst[0] = %d, want 0", dst[0])
	}
	if dst[1] != 255 {
		t.Fatalf("dst[1] = %d, want 255", dst[1])
	}
}
