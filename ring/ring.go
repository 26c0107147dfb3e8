// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ring implements the bounded handle queues that connect pipeline
// stages: a fixed-capacity channel plus an atomic occupancy counter, with a
// configurable overflow policy when the queue is full.
package ring

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/visioncore/model"
	"github.com/maruel/visioncore/verror"
)

// Ring is a bounded FIFO queue of handles of type T. A single Ring may be
// shared by multiple producers and consumers; NewSPSC and NewMPMC both
// return the same type, differing only in the intended usage pattern
// documented at each constructor.
type Ring[T any] struct {
	items    chan T
	overflow model.OverflowStrategy
	occupied atomic.Int64
	mu       sync.Mutex // guards DropOldest's drain-and-push
}

// NewSPSC returns a Ring sized for a single-producer/single-consumer path,
// such as a Camera Adapter feeding the Sync Manager.
func NewSPSC[T any](capacity int, overflow model.OverflowStrategy) *Ring[T] {
	return newRing[T](capacity, overflow)
}

// NewMPMC returns a Ring sized for a multi-producer/multi-consumer path,
// such as the Sync Manager feeding the pipeline worker pool.
func NewMPMC[T any](capacity int, overflow model.OverflowStrategy) *Ring[T] {
	return newRing[T](capacity, overflow)
}

func newRing[T any](capacity int, overflow model.OverflowStrategy) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make(chan T, capacity), overflow: overflow}
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return cap(r.items) }

// Len returns the number of items currently queued.
func (r *Ring[T]) Len() int { return int(r.occupied.Load()) }

// TryPush attempts a non-blocking push, applying the ring's OverflowStrategy
// if the ring is full. DropOldest and DropNewest never fail; Block falls
// back to a zero-wait attempt and fails if full; Fail always fails when
// full.
func (r *Ring[T]) TryPush(v T) error {
	switch r.overflow {
	case model.DropOldest:
		return r.pushDropOldest(v)
	case model.DropNewest:
		select {
		case r.items <- v:
			r.occupied.Add(1)
			return nil
		default:
			return nil // newest (v) is the one dropped; not an error.
		}
	default: // Block, Fail
		select {
		case r.items <- v:
			r.occupied.Add(1)
			return nil
		default:
			return verror.New(verror.QueueFull, "ring: full")
		}
	}
}

func (r *Ring[T]) pushDropOldest(v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		select {
		case r.items <- v:
			r.occupied.Add(1)
			return nil
		default:
			select {
			case <-r.items:
				r.occupied.Add(-1)
			default:
				// Raced with a concurrent pop; retry push immediately.
			}
		}
	}
}

// PushTimeout pushes v, waiting up to timeout when the overflow strategy is
// Block. Non-Block strategies behave exactly as TryPush regardless of
// timeout.
func (r *Ring[T]) PushTimeout(v T, timeout time.Duration) error {
	if r.overflow != model.Block {
		return r.TryPush(v)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.Push(ctx, v)
}

// Push pushes v, honoring ctx cancellation when the overflow strategy is
// Block. Non-Block strategies behave exactly as TryPush.
func (r *Ring[T]) Push(ctx context.Context, v T) error {
	if r.overflow != model.Block {
		return r.TryPush(v)
	}
	select {
	case r.items <- v:
		r.occupied.Add(1)
		return nil
	case <-ctx.Done():
		return verror.Wrap(verror.QueueFull, "ring: push blocked past deadline", ctx.Err())
	}
}

// TryPop attempts a non-blocking pop.
func (r *Ring[T]) TryPop() (T, bool) {
	select {
	case v := <-r.items:
		r.occupied.Add(-1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// PopTimeout blocks up to timeout for an item.
func (r *Ring[T]) PopTimeout(timeout time.Duration) (T, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.Pop(ctx)
}

// Pop blocks until ctx is done or an item is available.
func (r *Ring[T]) Pop(ctx context.Context) (T, bool) {
	select {
	case v := <-r.items:
		r.occupied.Add(-1)
		return v, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}
