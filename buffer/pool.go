// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package buffer implements the fixed, pre-allocated buffer pool that backs
// every Frame's pixel storage. No heap allocation happens after Init: the
// pool hands out fixed-size []byte slots by handle and never grows.
package buffer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/maruel/visioncore/verror"
)

// Buffer is one pooled, fixed-size byte slot. It is in exactly one of
// {free, leased} at any time; returning an already-free Buffer is reported,
// not silently accepted.
type Buffer struct {
	pool    *Pool
	id      uint32
	data    []byte
	leased  atomic.Bool
	ownerID atomic.Uint64 // Frame id that currently owns this buffer, 0 if free.
}

// Bytes returns the buffer's backing storage. Valid only while leased.
func (b *Buffer) Bytes() []byte { return b.data }

// ID is the buffer's fixed slot index, stable for the pool's lifetime.
func (b *Buffer) ID() uint32 { return b.id }

// Owner returns the Frame id that currently holds this buffer leased, or 0.
func (b *Buffer) Owner() uint64 { return b.ownerID.Load() }

// SetOwner records which Frame id leased this buffer. Called by the Camera
// Adapter immediately after Lease.
func (b *Buffer) SetOwner(frameID uint64) { b.ownerID.Store(frameID) }

// Return releases the buffer back to its pool. Returning a buffer that is
// already free is reported as verror.DoubleReturn rather than silently
// accepted, per the pool's idempotent-return invariant.
func (b *Buffer) Return() error {
	return b.pool.ret(b)
}

// Pool is a fixed array of N pre-allocated buffers of size MaxImageBytes.
// Allocation happens once at construction; allocation failure there is
// fatal (verror.PoolAllocationFailed), never at steady-path runtime.
type Pool struct {
	slots    []*Buffer
	free     chan *Buffer
	leased   atomic.Int64
	capacity int
}

// New allocates a Pool of count buffers, each sized bufBytes. Returns
// verror.PoolAllocationFailed if either argument is non-positive.
func New(count, bufBytes int) (*Pool, error) {
	if count <= 0 || bufBytes <= 0 {
		return nil, verror.New(verror.PoolAllocationFailed, "buffer: count and bufBytes must be positive")
	}
	p := &Pool{
		slots:    make([]*Buffer, count),
		free:     make(chan *Buffer, count),
		capacity: count,
	}
	for i := 0; i < count; i++ {
		b := &Buffer{pool: p, id: uint32(i), data: make([]byte, bufBytes)}
		p.slots[i] = b
		p.free <- b
	}
	return p, nil
}

// Capacity returns N, the fixed total number of buffers.
func (p *Pool) Capacity() int { return p.capacity }

// Leased returns the number of buffers currently leased out.
func (p *Pool) Leased() int { return int(p.leased.Load()) }

// Free returns the number of buffers currently free. Leased()+Free() ==
// Capacity() holds at every observation point (buffer conservation, §8.1).
func (p *Pool) Free() int { return p.capacity - p.Leased() }

// TryLease attempts a non-blocking lease. It is wait-free when a buffer is
// available, matching the fast-path requirement in §4.1.
func (p *Pool) TryLease() (*Buffer, error) {
	select {
	case b := <-p.free:
		p.lease(b)
		return b, nil
	default:
		return nil, verror.New(verror.PoolExhausted, "buffer: no free buffer")
	}
}

// LeaseTimeout blocks up to timeout for a free buffer before failing with
// verror.PoolExhausted.
func (p *Pool) LeaseTimeout(timeout time.Duration) (*Buffer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.Lease(ctx)
}

// Lease blocks until ctx is done or a buffer frees up.
func (p *Pool) Lease(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-p.free:
		p.lease(b)
		return b, nil
	case <-ctx.Done():
		return nil, verror.Wrap(verror.PoolExhausted, "buffer: lease timed out", ctx.Err())
	}
}

func (p *Pool) lease(b *Buffer) {
	b.leased.Store(true)
	p.leased.Add(1)
}

// ret returns b to the free list. It is wait-free: the channel send never
// blocks because len(free) can never exceed capacity.
func (p *Pool) ret(b *Buffer) error {
	if !b.leased.CompareAndSwap(true, false) {
		return verror.New(verror.DoubleReturn, "buffer: buffer already free")
	}
	b.SetOwner(0)
	p.leased.Add(-1)
	p.free <- b
	return nil
}

// LeakScan reports buffers that are leased to a Frame id present in
// retiredIDs: frames the caller knows have already finished but whose
// buffer was never returned. It is invoked periodically by the Supervisor
// (§4.1 "a periodic Supervisor scan") and never by the steady path itself.
func (p *Pool) LeakScan(retiredIDs map[uint64]bool) []*Buffer {
	var leaked []*Buffer
	for _, b := range p.slots {
		if !b.leased.Load() {
			continue
		}
		if owner := b.Owner(); owner != 0 && retiredIDs[owner] {
			leaked = append(leaked, b)
		}
	}
	return leaked
}
