// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeSource records the registered callback so tests can drive it
type fakeSource struct {
	mu        sync.Mutex
	cb        PositionCallback
	rate      int
	positions [AxisCount]float64
	err       error
}

func (f *fakeSource) Connect(dev uint) error    { return nil }
func (f *fakeSource) Disconnect(dev uint) error { return nil }

func (f *fakeSource) Positions(dev uint) ([AxisCount]float64, error) {
	return f.positions, f.err
}

func (f *fakeSource) SetPositionCallback(dev uint, sampleRate int, cb PositionCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cb = cb
	f.rate = sampleRate
	return nil
}

func (f *fakeSource) deliver(dev uint, seqIdx uint64, values ...float64) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()

	var positions [AxisCount][]float64
	for a := range positions {
		positions[a] = make([]float64, len(values))
		for i, v := range values {
			positions[a][i] = v * float64(a+1)
		}
	}
	cb(dev, len(values), seqIdx, positions)
}

// timestamps are unix seconds, so spacing is only exact to about 1e-7
func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func waitSamples(t *testing.T, buf *PositionBuffer, n int) []Sample {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for buf.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d samples, have %d", n, buf.Len())
		}
		time.Sleep(time.Millisecond)
	}
	return buf.Valid()
}

// ============================================================
// Monitor Tests
// ============================================================

func TestSampleRateTicks(t *testing.T) {
	ticks, err := SampleRateTicks(time.Millisecond)
	if err != nil {
		t.Fatalf("1ms should be valid: %v", err)
	}
	if ticks != 97 {
		t.Errorf("expected 97 ticks for 1ms, got %d", ticks)
	}

	for _, period := range []time.Duration{0, time.Microsecond, 2 * time.Second} {
		if _, err := SampleRateTicks(period); err == nil {
			t.Errorf("period %v should be rejected", period)
		}
	}
}

func TestMonitor_Samples(t *testing.T) {
	src := &fakeSource{}
	buf := NewPositionBuffer(16)
	m := NewMonitor(src, 0, buf)

	period := 100 * SourceTick
	if err := m.Start(context.Background(), period); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if src.rate != 100 {
		t.Errorf("expected sample rate of 100 ticks, got %d", src.rate)
	}

	src.deliver(0, 0, 1, 2, 3)
	samples := waitSamples(t, buf, 3)

	for i, s := range samples {
		if s.Axis[0] != float64(i+1) || s.Axis[2] != 3*float64(i+1) {
			t.Errorf("sample %d: unexpected axes %v", i, s.Axis)
		}
	}
	step := samples[1].Time - samples[0].Time
	if !closeTo(step, period.Seconds()) {
		t.Errorf("samples should be spaced by the period, got %v", step)
	}
}

func TestMonitor_GapAdvancesClock(t *testing.T) {
	src := &fakeSource{}
	buf := NewPositionBuffer(16)
	m := NewMonitor(src, 3, buf)

	period := 1000 * SourceTick
	if err := m.Start(context.Background(), period); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	src.deliver(3, 10, 1, 2)
	// indices 12..14 never arrive
	src.deliver(3, 15, 3)
	// other devices are ignored
	src.deliver(4, 16, 99)

	samples := waitSamples(t, buf, 3)
	if m.Missed() != 3 {
		t.Errorf("expected 3 missed samples, got %d", m.Missed())
	}

	gap := samples[2].Time - samples[1].Time
	if !closeTo(gap, 4*period.Seconds()) {
		t.Errorf("clock should skip the missing samples: gap %v, want %v", gap, 4*period.Seconds())
	}

	time.Sleep(10 * time.Millisecond)
	if buf.Len() != 3 {
		t.Errorf("batch for another device should be ignored, have %d samples", buf.Len())
	}
}

func TestMonitor_QueueFull(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, 0, NewPositionBuffer(4), WithMonitorQueue(1))

	// Register without draining to fill the queue deterministically
	m.running.Store(true)
	m.callback(0, 1, 0, [AxisCount][]float64{{1}, {1}, {1}})
	m.callback(0, 1, 1, [AxisCount][]float64{{2}, {2}, {2}})

	if m.Dropped() != 1 {
		t.Errorf("expected 1 dropped batch, got %d", m.Dropped())
	}
}

func TestMonitor_StartTwice(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, 0, NewPositionBuffer(4))

	if err := m.Start(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if err := m.Start(context.Background(), time.Millisecond); err == nil {
		t.Error("second Start should fail while running")
	}
}

func TestMonitor_RestartDiscardsQueuedBatches(t *testing.T) {
	src := &fakeSource{}
	buf := NewPositionBuffer(8)
	m := NewMonitor(src, 0, buf)

	if err := m.Start(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Stop()

	// Left behind by the first run
	m.queue <- sourceBatch{count: 2, seqIdx: 500, positions: [AxisCount][]float64{{7, 7}, {7, 7}, {7, 7}}}

	if err := m.Start(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer m.Stop()

	src.deliver(0, 0, 1)
	samples := waitSamples(t, buf, 1)

	time.Sleep(10 * time.Millisecond)
	if buf.Len() != 1 {
		t.Fatalf("expected only the new batch, have %d samples", buf.Len())
	}
	if samples[0].Axis[0] != 1 {
		t.Errorf("unexpected sample %v", samples[0].Axis)
	}
	if m.Missed() != 0 {
		t.Errorf("stale batch should not count toward missed samples, got %d", m.Missed())
	}
}

func TestMonitor_CallbackError(t *testing.T) {
	boom := errors.New("no device")
	src := &fakeSource{err: boom}
	m := NewMonitor(src, 0, NewPositionBuffer(4))

	if err := m.Start(context.Background(), time.Millisecond); !errors.Is(err, boom) {
		t.Errorf("expected callback registration error, got %v", err)
	}
	m.Stop()
}

func TestReadSourcePositions(t *testing.T) {
	src := &fakeSource{positions: [AxisCount]float64{1, 2, 3}}
	buf := NewPositionBuffer(4)

	s, err := ReadSourcePositions(src, 0, buf)
	if err != nil {
		t.Fatalf("ReadSourcePositions failed: %v", err)
	}
	if s.Axis != [AxisCount]float64{1, 2, 3} {
		t.Errorf("unexpected axes %v", s.Axis)
	}
	if latest, ok := buf.Latest(); !ok || latest != s {
		t.Error("sample should be pushed into the buffer")
	}

	src.err = errors.New("read failed")
	if _, err := ReadSourcePositions(src, 0, buf); err == nil {
		t.Error("expected error from source")
	}
}
