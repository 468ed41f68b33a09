// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"sync"
	"testing"
	"time"
)

func sampleAt(i int) Sample {
	return Sample{Time: float64(1000 + i), Axis: [AxisCount]float64{float64(i), float64(-i), float64(2 * i)}}
}

// ============================================================
// PositionBuffer Tests
// ============================================================

func TestPositionBuffer_Defaults(t *testing.T) {
	b := NewPositionBuffer(0)
	if b.Cap() != DefaultBufferCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultBufferCapacity, b.Cap())
	}
	if b.Len() != 0 {
		t.Errorf("new buffer should be empty, got %d", b.Len())
	}
	if _, ok := b.Latest(); ok {
		t.Error("Latest on empty buffer should report false")
	}
	for i, s := range b.Snapshot() {
		if s.Written() {
			t.Fatalf("slot %d of a new buffer is written", i)
		}
	}
}

func TestPositionBuffer_FillsFromTail(t *testing.T) {
	b := NewPositionBuffer(4)
	b.Push(sampleAt(1))
	b.Push(sampleAt(2))

	snap := b.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("snapshot should include every slot, got %d", len(snap))
	}
	if snap[0].Written() || snap[1].Written() {
		t.Error("leading slots should still be unwritten")
	}
	if snap[2] != sampleAt(1) || snap[3] != sampleAt(2) {
		t.Errorf("unexpected tail: %+v", snap[2:])
	}

	valid := b.Valid()
	if len(valid) != 2 || valid[0] != sampleAt(1) || valid[1] != sampleAt(2) {
		t.Errorf("Valid should return written samples oldest first, got %+v", valid)
	}
}

func TestPositionBuffer_Overflow(t *testing.T) {
	b := NewPositionBuffer(DefaultBufferCapacity)
	const pushes = DefaultBufferCapacity + 1
	for i := 1; i <= pushes; i++ {
		b.Push(sampleAt(i))
	}

	if b.Len() != DefaultBufferCapacity {
		t.Errorf("expected %d held samples, got %d", DefaultBufferCapacity, b.Len())
	}
	snap := b.Snapshot()
	if snap[0] != sampleAt(2) {
		t.Errorf("first push should be evicted, slot 0 holds %+v", snap[0])
	}
	if snap[len(snap)-1] != sampleAt(pushes) {
		t.Errorf("last slot should hold the newest sample, got %+v", snap[len(snap)-1])
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Time <= snap[i-1].Time {
			t.Fatalf("samples out of order at slot %d", i)
		}
	}
	latest, ok := b.Latest()
	if !ok || latest != sampleAt(pushes) {
		t.Errorf("Latest mismatch: %+v", latest)
	}
}

func TestPositionBuffer_SnapshotIsCopy(t *testing.T) {
	b := NewPositionBuffer(2)
	b.Push(sampleAt(1))

	snap := b.Snapshot()
	snap[1].Axis[0] = 99
	b.Push(sampleAt(2))

	if snap[1] == sampleAt(2) {
		t.Error("snapshot must not follow later pushes")
	}
	if latest, _ := b.Latest(); latest.Axis[0] == 99 {
		t.Error("mutating a snapshot must not affect the buffer")
	}
}

func TestPositionBuffer_Reset(t *testing.T) {
	b := NewPositionBuffer(3)
	b.Push(sampleAt(1))
	b.Reset()

	if b.Len() != 0 || len(b.Valid()) != 0 {
		t.Error("Reset should clear all samples")
	}
	if b.Cap() != 3 {
		t.Errorf("Reset must keep capacity, got %d", b.Cap())
	}
}

func TestPositionBuffer_ConcurrentReaders(t *testing.T) {
	b := NewPositionBuffer(64)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			b.Push(sampleAt(i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				valid := b.Valid()
				for j := 1; j < len(valid); j++ {
					if valid[j].Time <= valid[j-1].Time {
						t.Errorf("torn snapshot at %d", j)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestNewSample(t *testing.T) {
	at := time.Unix(1700000000, 500000000)
	s := NewSample(at, [AxisCount]float64{1, 2, 3})
	if s.Time != 1700000000.5 {
		t.Errorf("expected 1700000000.5, got %v", s.Time)
	}
	if !s.Written() {
		t.Error("stamped sample should be written")
	}
}

// ============================================================
// State and ValueTable Tests
// ============================================================

func TestState_Axes(t *testing.T) {
	s := NewState(8)
	s.SetAxis(0, 1.5)
	s.SetAxis(2, -3)

	if got := s.Axes(); got != [AxisCount]float64{1.5, 0, -3} {
		t.Errorf("unexpected axes %v", got)
	}
	if s.Positions.Cap() != 8 {
		t.Errorf("expected buffer capacity 8, got %d", s.Positions.Cap())
	}
}

func TestValueTable_Snapshot(t *testing.T) {
	v := NewValueTable()
	data := []int32{1, 2}
	v.Store(Key{Address: 0x700, Index: 1}, OpTell, data)
	v.Store(Key{Address: 0x100, Index: 2}, OpAck, []int32{3})
	v.Store(Key{Address: 0x700, Index: 0}, OpAck, nil)

	data[0] = 42
	got, _ := v.Get(Key{Address: 0x700, Index: 1})
	if got.Data[0] != 1 {
		t.Error("stored data must not alias the caller's slice")
	}

	snap := v.Snapshot()
	if len(snap) != 3 || v.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	order := []Key{{0x100, 2}, {0x700, 0}, {0x700, 1}}
	for i, k := range order {
		if snap[i].Key != k {
			t.Errorf("entry %d: expected %+v, got %+v", i, k, snap[i].Key)
		}
	}
	if snap[0].Updated.IsZero() {
		t.Error("entries should carry an update time")
	}
}
