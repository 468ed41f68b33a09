// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"sync"
	"time"
)

// Sample is one synchronized reading of all axes
type Sample struct {
	Time float64            // unix seconds; <= 0 means the slot was never written
	Axis [AxisCount]float64 // µm
}

// NewSample creates a sample stamped with t
func NewSample(t time.Time, axis [AxisCount]float64) Sample {
	return Sample{Time: float64(t.UnixNano()) / 1e9, Axis: axis}
}

// Written reports whether the sample holds data
func (s Sample) Written() bool {
	return s.Time > 0
}

// PositionBuffer is a fixed-capacity time series of the most recent
// samples, ordered oldest to newest by slot. Push shifts every sample one
// slot toward index 0 and writes the new one into the last slot. The
// buffer starts zero-filled, so it fills from the tail until it wraps.
type PositionBuffer struct {
	mu      sync.RWMutex
	samples []Sample
	written int
}

// NewPositionBuffer creates a buffer holding capacity samples
func NewPositionBuffer(capacity int) *PositionBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &PositionBuffer{samples: make([]Sample, capacity)}
}

// Push appends s as the newest sample, evicting the oldest
func (b *PositionBuffer) Push(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.samples)
	copy(b.samples, b.samples[1:])
	b.samples[n-1] = s
	if b.written < n {
		b.written++
	}
}

// Snapshot returns a copy of every slot, oldest first, including
// unwritten ones
func (b *PositionBuffer) Snapshot() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Valid returns a copy of the written samples, oldest first
func (b *PositionBuffer) Valid() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample, 0, b.written)
	for _, s := range b.samples[len(b.samples)-b.written:] {
		if s.Written() {
			out = append(out, s)
		}
	}
	return out
}

// Latest returns the newest sample and whether any sample was pushed
func (b *PositionBuffer) Latest() (Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.written == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Len returns the number of pushed samples still held
func (b *PositionBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.written
}

// Cap returns the buffer capacity
func (b *PositionBuffer) Cap() int {
	return len(b.samples)
}

// Reset clears all samples
func (b *PositionBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.samples)
	b.written = 0
}
