// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/maruel/visioncore/gray14"
	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/verror"
)

// NormalizeStage is the reference PreprocessStage: it produces a byte-per-
// pixel view of every camera's Frame so every downstream Detector can
// operate on a single, uniform representation regardless of the camera's
// native pixel format. Mono16 sources go through the same min/max dynamic
// range stretch the teacher's thermal sensor needs before its 14-bit counts
// are meaningful 8-bit intensities (package gray14); Mono8/Bayer sources are
// copied out of their stride-padded rows as-is.
type NormalizeStage struct{}

// NewNormalizeStage returns the reference PreprocessStage.
func NewNormalizeStage() *NormalizeStage { return &NormalizeStage{} }

// Preprocess implements PreprocessStage. It is the last stage that needs a
// Frame's raw pixels, so every Frame's Buffer is returned to the pool here
// regardless of whether normalization for that camera succeeds, keeping
// buffer conservation (§8.1) intact even on a partial-frameset error.
func (s *NormalizeStage) Preprocess(ctx context.Context, fs *model.FrameSet) (map[model.CameraPosition]*ProcessedFrame, error) {
	out := make(map[model.CameraPosition]*ProcessedFrame, len(fs.Frames))
	var firstErr error
	for pos, f := range fs.Frames {
		if err := ctx.Err(); err != nil {
			_ = f.Buffer.Return()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pf, err := normalizeFrame(f)
		_ = f.Buffer.Return()
		if err != nil {
			if firstErr == nil {
				firstErr = verror.Wrap(verror.PipelineStageError, fmt.Sprintf("preprocess: camera %s", f.CameraID), err)
			}
			continue
		}
		out[pos] = pf
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func normalizeFrame(f *model.Frame) (*ProcessedFrame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	raw := f.Buffer.Bytes()
	switch f.Format {
	case model.Mono8, model.Bayer:
		return copyPackedRows(f, raw, 1), nil
	case model.Mono16:
		return normalizeMono16(f, raw), nil
	default:
		return nil, fmt.Errorf("pipeline: unsupported pixel format %s for preprocessing", f.Format)
	}
}

// copyPackedRows strips each row's stride padding, leaving a tightly packed
// bytesPerPixel*width*height buffer.
func copyPackedRows(f *model.Frame, raw []byte, bytesPerPixel int) *ProcessedFrame {
	rowBytes := f.Width * bytesPerPixel
	pixels := make([]byte, rowBytes*f.Height)
	for y := 0; y < f.Height; y++ {
		src := raw[y*f.Stride : y*f.Stride+rowBytes]
		copy(pixels[y*rowBytes:(y+1)*rowBytes], src)
	}
	return &ProcessedFrame{Source: f, Pixels: pixels, Width: f.Width, Height: f.Height, Stride: rowBytes}
}

// normalizeMono16 unpacks f's stride-padded little-endian 14/16-bit rows
// into an image.Gray16 and hands it to gray14.Scale for the min/max dynamic
// range stretch down to a byte-per-pixel view.
func normalizeMono16(f *model.Frame, raw []byte) *ProcessedFrame {
	w, h := f.Width, f.Height
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		rowOff := y * f.Stride
		for x := 0; x < w; x++ {
			off := rowOff + 2*x
			v := binary.LittleEndian.Uint16(raw[off : off+2])
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	pixels := make([]byte, w*h)
	gray14.Scale(img, pixels)
	return &ProcessedFrame{Source: f, Pixels: pixels, Width: w, Height: h, Stride: w}
}
