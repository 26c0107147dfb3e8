// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package visioncoretest provides fakes for developing and testing the
// inspection core without real camera hardware: a synthetic camera.Driver
// and a defect injector the reference detectors can reliably trip. The
// noise generator is a direct generalization of the teacher's
// lepton/fake_lepton.go moving-blob noise field, from a fixed 80x60
// Gray16 thermal image to an arbitrary width/height Mono8 frame.
package visioncoretest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/maruel/visioncore/buffer"
	"github.com/maruel/visioncore/camera"
	"github.com/maruel/visioncore/model"
)

type vector struct {
	intensity float64
	x, y      float64
}

// noise renders a small field of moving Gaussian blobs into a Mono8 frame,
// the same "cheezy but gets us going for testing without a device" approach
// the teacher used for its fake Lepton.
type noise struct {
	rand    *rand.Rand
	vectors []vector
	w, h    int
}

func newNoise(w, h int, seed int64) *noise {
	n := &noise{rand: rand.New(rand.NewSource(seed)), w: w, h: h}
	n.vectors = make([]vector, 6)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64() * 10
		n.vectors[i].x = n.rand.Float64() * float64(w)
		n.vectors[i].y = n.rand.Float64() * float64(h)
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64() * 0.1
		n.vectors[i].x += n.rand.NormFloat64() * 0.2
		n.vectors[i].y += n.rand.NormFloat64() * 0.2
	}
}

// render fills dst (len == w*h, row-major Mono8) with the current noise
// field centered around 128.
func (n *noise) render(dst []byte) {
	const base, dynamicRange = 128, 96
	for y := 0; y < n.h; y++ {
		row := y * n.w
		fy := float64(y)
		for x := 0; x < n.w; x++ {
			fx := float64(x)
			value := float64(base)
			for _, v := range n.vectors {
				dx, dy := v.x-fx, v.y-fy
				dist := dx*dx + dy*dy + 1
				value += v.intensity / dist
			}
			if value > 255 {
				value = 255
			} else if value < 0 {
				value = 0
			}
			_ = dynamicRange
			dst[row+x] = byte(value)
		}
	}
}

// FakeDriver implements camera.Driver by rendering synthetic Mono8 frames
// at a fixed 40ms frame interval instead of talking to a GigE/GenICam
// device, the role the teacher's lepton.MakeFakeLepton and
// leptontest.LeptonFake play for the SPI Lepton driver.
type FakeDriver struct {
	mu        sync.Mutex
	cfg       model.CameraConfig
	interval  time.Duration
	n         *noise
	triggerID uint64
	armed     bool
	softTrig  bool

	goodFrames, dupFrames, transferFails int64
	lastFail                             error

	seed int64
}

// NewFakeDriver constructs a FakeDriver. seed makes the noise field
// deterministic across runs for reproducible tests.
func NewFakeDriver(seed int64) *FakeDriver {
	return &FakeDriver{seed: seed}
}

// Open implements camera.Driver.
func (f *FakeDriver) Open(ctx context.Context, cfg model.CameraConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.n = newNoise(cfg.Width, cfg.Height, f.seed)
	f.interval = 40 * time.Millisecond
	f.softTrig = cfg.TriggerMode == "software"
	f.armed = !f.softTrig
	return nil
}

// Trigger implements camera.Driver: in software trigger mode it arms the
// next ReadInto call; in continuous/external mode it is a no-op.
func (f *FakeDriver) Trigger(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.softTrig {
		return nil
	}
	f.armed = true
	return nil
}

// ReadInto implements camera.Driver: it blocks until the frame interval
// elapses (or, in software mode, until armed), renders the noise field
// directly into buf's bytes, and stamps a FrameMeta. It returns ctx.Err()
// if ctx is done first.
func (f *FakeDriver) ReadInto(ctx context.Context, buf *buffer.Buffer) (model.FrameMeta, error) {
	f.mu.Lock()
	interval := f.interval
	f.mu.Unlock()

	for {
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return model.FrameMeta{}, ctx.Err()
		}
		f.mu.Lock()
		if !f.softTrig || f.armed {
			break
		}
		f.mu.Unlock()
	}
	defer f.mu.Unlock()
	f.armed = false

	need := f.cfg.Width * f.cfg.Height
	if need > len(buf.Bytes()) {
		f.transferFails++
		f.lastFail = errFrameTooLarge
		return model.FrameMeta{}, errFrameTooLarge
	}
	f.n.update()
	f.n.render(buf.Bytes()[:need])
	f.triggerID++
	f.goodFrames++
	return model.FrameMeta{ExposureUS: 500, Gain: 1.0, TriggerID: f.triggerID}, nil
}

// Stats implements camera.Driver.
func (f *FakeDriver) Stats() camera.DriverStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return camera.DriverStats{
		LastFail:        f.lastFail,
		GoodFrames:      f.goodFrames,
		DuplicateFrames: f.dupFrames,
		TransferFails:   f.transferFails,
	}
}

// Close implements io.Closer.
func (f *FakeDriver) Close() error { return nil }

var errFrameTooLarge = &frameTooLargeError{}

type frameTooLargeError struct{}

func (*frameTooLargeError) Error() string { return "visioncoretest: frame exceeds buffer capacity" }
