// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"

	"github.com/maruel/visioncore/model"
)

// DedupClassifyStage is the reference ClassifyStage: it drops candidates
// below a confidence floor, then merges same-type, same-camera candidates
// whose bounds overlap into a single defect carrying the strongest
// reading, the way multiple detectors/ROIs observing the same foreign
// object should collapse into one finding rather than one result per
// observer.
type DedupClassifyStage struct {
	minConfidence float64
}

// NewDedupClassifyStage returns a DedupClassifyStage dropping candidates
// with confidence below minConfidence (0 disables the floor).
func NewDedupClassifyStage(minConfidence float64) *DedupClassifyStage {
	return &DedupClassifyStage{minConfidence: minConfidence}
}

// Classify implements ClassifyStage.
func (s *DedupClassifyStage) Classify(ctx context.Context, defects []model.Defect) ([]model.Defect, error) {
	filtered := defects[:0:0]
	for _, d := range defects {
		if d.Confidence < s.minConfidence {
			continue
		}
		filtered = append(filtered, d)
	}

	merged := make([]model.Defect, 0, len(filtered))
	used := make([]bool, len(filtered))
	for i, d := range filtered {
		if used[i] {
			continue
		}
		best := d
		for j := i + 1; j < len(filtered); j++ {
			if used[j] {
				continue
			}
			o := filtered[j]
			if o.Type != d.Type || o.Camera != d.Camera || !overlaps(d.Bounds, o.Bounds) {
				continue
			}
			used[j] = true
			if o.Severity > best.Severity {
				best.Severity = o.Severity
			}
			if o.Confidence > best.Confidence {
				best.Confidence = o.Confidence
			}
			best.Bounds = union(best.Bounds, o.Bounds)
		}
		merged = append(merged, best)
	}
	return merged, nil
}

func overlaps(a, b model.Rect) bool {
	return a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H
}

func union(a, b model.Rect) model.Rect {
	x0, y0 := min(a.X, b.X), min(a.Y, b.Y)
	x1, y1 := max(a.X+a.W, b.X+b.W), max(a.Y+a.H, b.Y+b.H)
	return model.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
