// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"

	"github.com/maruel/visioncore/model"
)

// ThresholdDecideStage is the reference DecideStage: every classified
// defect is scored as severity*confidence and compared against its type's
// configured threshold (model.Config.Thresholds, keyed by
// DefectType.String()), falling back to defaultThreshold when a type has
// no explicit entry. Any defect clearing its threshold fails the FrameSet;
// any defect within uncertainBand below its threshold, with nothing
// failing, reports Uncertain rather than a confident Pass.
type ThresholdDecideStage struct {
	thresholds       map[string]float64
	defaultThreshold float64
	uncertainBand    float64
}

// NewThresholdDecideStage returns a ThresholdDecideStage. thresholds may be
// nil to use defaultThreshold for every defect type.
func NewThresholdDecideStage(thresholds map[string]float64, defaultThreshold, uncertainBand float64) *ThresholdDecideStage {
	return &ThresholdDecideStage{thresholds: thresholds, defaultThreshold: defaultThreshold, uncertainBand: uncertainBand}
}

func (s *ThresholdDecideStage) thresholdFor(t model.DefectType) float64 {
	if s.thresholds != nil {
		if v, ok := s.thresholds[t.String()]; ok {
			return v
		}
	}
	return s.defaultThreshold
}

// Decide implements DecideStage.
func (s *ThresholdDecideStage) Decide(ctx context.Context, defects []model.Defect) model.Decision {
	if len(defects) == 0 {
		return model.Decision{Kind: model.Pass, Reason: "no defects"}
	}

	uncertain := false
	for _, d := range defects {
		threshold := s.thresholdFor(d.Type)
		score := d.Severity * d.Confidence
		if score >= threshold {
			return model.Decision{
				Kind:   model.Fail,
				Reason: fmt.Sprintf("%s score %.2f >= threshold %.2f", d.Type, score, threshold),
			}
		}
		if threshold-score <= s.uncertainBand {
			uncertain = true
		}
	}
	if uncertain {
		return model.Decision{Kind: model.Uncertain, Reason: "defect score within uncertain band of threshold"}
	}
	return model.Decision{Kind: model.Pass, Reason: "all defect scores below threshold"}
}
