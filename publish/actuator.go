// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package publish

import (
	"container/heap"
	"sync"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/rs/zerolog"
	"periph.io/x/periph/conn/gpio"
)

// ActuatorSink pushes (trigger_id, decision) to the physical reject
// actuator. The reference implementation drives a single GPIO line —
// pulsed high for Fail, left low for Pass/Uncertain — grounded on the
// teacher's own `gpio.PinOut.Out(gpio.High/Low)` chip-select pattern in
// lepton.Dev, redirected here from an SPI chip-select line to the PLC/
// reject-actuator side of the system. It maintains a small bounded
// reorder buffer keyed by trigger id so results reach the actuator in
// strict line order even though the pipeline's worker pool may finish
// FrameSets out of order.
type ActuatorSink struct {
	pin      gpio.PinOut
	deadline time.Duration
	pulse    time.Duration
	retries  int
	log      zerolog.Logger

	mu       sync.Mutex
	next     uint64
	pending  reorderHeap
	deadlines map[uint64]time.Time
}

// NewActuatorSink constructs an ActuatorSink driving pin, expecting results
// in trigger-id order starting at firstTriggerID. deadline is how long a
// result waits in the reorder buffer for its predecessors before it may be
// actuated out of order anyway (the line mechanics cannot wait forever).
// Expiry is only checked when Publish is called: a result whose deadline
// has passed is released by the next Publish, and no timer releases it
// on its own.
func NewActuatorSink(pin gpio.PinOut, firstTriggerID uint64, deadline, pulse time.Duration, retries int, log zerolog.Logger) *ActuatorSink {
	return &ActuatorSink{
		pin: pin, deadline: deadline, pulse: pulse, retries: retries, log: log,
		next: firstTriggerID, deadlines: map[uint64]time.Time{},
	}
}

// Publish implements Sink. It buffers result until every lower trigger id
// has been actuated or the reorder deadline for this trigger has passed,
// then drives the GPIO line and releases any now-ready successors.
func (a *ActuatorSink) Publish(result *model.InspectionResult) {
	a.mu.Lock()
	heap.Push(&a.pending, result)
	a.deadlines[result.TriggerID] = time.Now().Add(a.deadline)
	ready := a.drainReadyLocked()
	a.mu.Unlock()

	for _, r := range ready {
		a.actuate(r)
	}
}

// drainReadyLocked pops every result from the reorder heap that is next in
// line or whose reorder deadline has expired, advancing a.next past each.
// Caller must hold a.mu.
func (a *ActuatorSink) drainReadyLocked() []*model.InspectionResult {
	var ready []*model.InspectionResult
	now := time.Now()
	for a.pending.Len() > 0 {
		top := a.pending[0]
		expired := now.After(a.deadlines[top.TriggerID])
		if top.TriggerID != a.next && !expired {
			break
		}
		heap.Pop(&a.pending)
		delete(a.deadlines, top.TriggerID)
		ready = append(ready, top)
		if top.TriggerID >= a.next {
			a.next = top.TriggerID + 1
		}
	}
	return ready
}

// actuate drives the GPIO line for one decision, retrying a failed write up
// to a.retries more times; the retries are immediate and not bounded by
// a.deadline.
func (a *ActuatorSink) actuate(result *model.InspectionResult) {
	level := gpio.Low
	if result.Decision.Kind == model.Fail {
		level = gpio.High
	}
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if err = a.pin.Out(level); err == nil {
			break
		}
		a.log.Warn().Err(err).Int("attempt", attempt).Msg("publish: actuator gpio write failed")
	}
	if err != nil {
		a.log.Error().Err(err).Uint64("trigger", result.TriggerID).Msg("publish: actuator sink exhausted retries")
		return
	}
	if level == gpio.High && a.pulse > 0 {
		time.AfterFunc(a.pulse, func() { _ = a.pin.Out(gpio.Low) })
	}
}

// Close releases the GPIO line to its inactive level.
func (a *ActuatorSink) Close() error {
	return a.pin.Out(gpio.Low)
}

// reorderHeap is a container/heap.Interface over InspectionResults ordered
// by ascending trigger id, letting ActuatorSink hold the smallest pending
// trigger at the root without a full sort on every Publish.
type reorderHeap []*model.InspectionResult

func (h reorderHeap) Len() int            { return len(h) }
func (h reorderHeap) Less(i, j int) bool  { return h[i].TriggerID < h[j].TriggerID }
func (h reorderHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *reorderHeap) Push(x interface{}) { *h = append(*h, x.(*model.InspectionResult)) }
func (h *reorderHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
