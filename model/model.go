// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package model defines the data types shared across the inspection core:
// Frame, FrameSet, InspectionResult, Defect, and the statistics and config
// documents that describe a run.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CameraPosition identifies one of the (typically four) stations around the
// bottle that a camera is mounted at.
type CameraPosition uint8

// Valid values of CameraPosition.
const (
	Top CameraPosition = iota
	Bottom
	Left
	Right
)

func (p CameraPosition) String() string {
	switch p {
	case Top:
		return "top"
	case Bottom:
		return "bottom"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("position(%d)", uint8(p))
	}
}

// PixelFormat is the wire/memory layout of a Frame's pixels.
type PixelFormat uint8

// Valid values of PixelFormat.
const (
	Mono8 PixelFormat = iota
	Mono16
	Bayer
	RGB8
	BGR8
)

func (f PixelFormat) String() string {
	switch f {
	case Mono8:
		return "mono8"
	case Mono16:
		return "mono16"
	case Bayer:
		return "bayer"
	case RGB8:
		return "rgb8"
	case BGR8:
		return "bgr8"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// BytesPerPixel returns the number of bytes a single pixel occupies for
// formats with a fixed, uncompressed layout.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Mono8, Bayer:
		return 1
	case Mono16:
		return 2
	case RGB8, BGR8:
		return 3
	default:
		return 0
	}
}

// FrameMeta carries the small per-frame acquisition metadata that rides
// alongside the pixels.
type FrameMeta struct {
	ExposureUS float64
	Gain       float64
	TriggerID  uint64
}

// BufferRef is the minimal view a Frame needs of its pooled backing buffer:
// enough to read/write pixels and to return it to the pool that owns it.
// Implemented by buffer.Buffer; kept as an interface here so model has no
// dependency on the buffer package's internals.
type BufferRef interface {
	Bytes() []byte
	Return() error
}

// Frame is a single-camera image capture. It exclusively owns its pooled
// buffer until that buffer is returned; width*bytesPerPixel must never
// exceed Stride, and TimestampNS must strictly increase per camera.
type Frame struct {
	ID             uint64
	CameraID       string
	Position       CameraPosition
	TimestampNS    int64
	SequenceNumber uint64
	VendorSeqNum   uint64
	Format         PixelFormat
	Width          int
	Height         int
	Stride         int
	Buffer         BufferRef
	Meta           FrameMeta
}

// Validate checks the Frame invariants from the data model: stride must fit
// the declared width and pixel format.
func (f *Frame) Validate() error {
	if need := f.Width * f.Format.BytesPerPixel(); need > f.Stride {
		return fmt.Errorf("model: frame %d: width*bytesPerPixel=%d exceeds stride=%d", f.ID, need, f.Stride)
	}
	return nil
}

// FrameSet groups the Frames captured for a single trigger, one per
// participating camera. A FrameSet is "complete" once it carries every
// configured camera; otherwise it may be emitted partial/degraded once its
// deadline passes.
type FrameSet struct {
	TriggerID uint64
	Deadline  time.Time
	Frames    map[CameraPosition]*Frame
	Degraded  bool
	Missing   []CameraPosition
}

// NewFrameSet returns an empty FrameSet for the given trigger with the given
// composition deadline.
func NewFrameSet(triggerID uint64, deadline time.Time) *FrameSet {
	return &FrameSet{TriggerID: triggerID, Deadline: deadline, Frames: map[CameraPosition]*Frame{}}
}

// Complete reports whether the FrameSet carries a Frame for every position
// in want.
func (fs *FrameSet) Complete(want []CameraPosition) bool {
	for _, p := range want {
		if _, ok := fs.Frames[p]; !ok {
			return false
		}
	}
	return true
}

// MissingFrom returns the positions in want that fs does not carry a Frame
// for, in want's order.
func (fs *FrameSet) MissingFrom(want []CameraPosition) []CameraPosition {
	var missing []CameraPosition
	for _, p := range want {
		if _, ok := fs.Frames[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// DecisionKind is the outcome of the Decide pipeline stage.
type DecisionKind uint8

// Valid values of DecisionKind.
const (
	Pass DecisionKind = iota
	Fail
	Uncertain
)

func (d DecisionKind) String() string {
	switch d {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Uncertain:
		return "uncertain"
	default:
		return fmt.Sprintf("decision(%d)", uint8(d))
	}
}

// Decision is the Decide stage's verdict for one FrameSet.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// DefectType enumerates the kinds of defect a Detector plugin can report.
type DefectType uint8

// Valid values of DefectType.
const (
	ForeignObject DefectType = iota
	Crack
	Chip
	Deformation
	ColorDeviation
	FillLevel
	CapIssue
	LabelIssue
	OtherDefect
)

func (t DefectType) String() string {
	switch t {
	case ForeignObject:
		return "foreign_object"
	case Crack:
		return "crack"
	case Chip:
		return "chip"
	case Deformation:
		return "deformation"
	case ColorDeviation:
		return "color_deviation"
	case FillLevel:
		return "fill_level"
	case CapIssue:
		return "cap_issue"
	case LabelIssue:
		return "label_issue"
	case OtherDefect:
		return "other"
	default:
		return fmt.Sprintf("defect(%d)", uint8(t))
	}
}

// Rect is an axis-aligned bounding rectangle in a producing camera's pixel
// space.
type Rect struct {
	X, Y, W, H int
}

// Defect is one candidate or classified finding from a Detector plugin.
type Defect struct {
	Type       DefectType
	Bounds     Rect
	Severity   float64
	Confidence float64
	Camera     CameraPosition
}

// InspectionResult is the immutable, per-FrameSet output of the pipeline.
type InspectionResult struct {
	ID               uuid.UUID
	BottleID         uint64
	TriggerID        uint64
	Decision         Decision
	Defects          []Defect
	Confidence       float64
	TotalProcessUS   int64
	StageTimesUS     map[string]int64
	Thumbnails       map[CameraPosition][]byte
	Degraded         bool
	MissingCameras   []CameraPosition
	CreatedAt        time.Time
}

// NewInspectionResult allocates a result with a fresh id and the given
// creation time.
func NewInspectionResult(triggerID, bottleID uint64, createdAt time.Time) *InspectionResult {
	return &InspectionResult{
		ID:           uuid.New(),
		BottleID:     bottleID,
		TriggerID:    triggerID,
		StageTimesUS: map[string]int64{},
		Thumbnails:   map[CameraPosition][]byte{},
		CreatedAt:    createdAt,
	}
}

// Percentiles is a small summary of a distribution of microsecond
// durations.
type Percentiles struct {
	Mean, Min, Max float64
	P50, P95, P99  float64
}

// StatisticsSnapshot is a window-bounded summary published by the metrics
// aggregator.
type StatisticsSnapshot struct {
	WindowStart, WindowEnd time.Time
	Total                  int64
	PassCount              int64
	FailCount              int64
	UncertainCount         int64
	FailuresByReason       map[string]int64
	DefectTypeCounts       map[DefectType]int64
	StageTimesUS           map[string]Percentiles
	EndToEndUS             Percentiles
	ThroughputPerSec       float64
	PerCameraFrameCounts   map[string]int64
	PerCameraDropRates     map[string]float64
}
