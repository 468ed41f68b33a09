// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Vendor library sample period limits, in ticks of SourceTick
const (
	SourceTick          = 10240 * time.Nanosecond
	MinSourceSampleRate = 1
	MaxSourceSampleRate = 100000
)

// PositionCallback receives count samples per axis, the first carrying
// sequence index seqIdx. It is invoked from outside this package's
// goroutines.
type PositionCallback func(dev uint, count int, seqIdx uint64, positions [AxisCount][]float64)

// PositionSource is the vendor library path to the sensor: device-level
// connect, one-shot reads and callback-based monitoring. Positions are in µm.
type PositionSource interface {
	Connect(dev uint) error
	Disconnect(dev uint) error
	Positions(dev uint) ([AxisCount]float64, error)
	SetPositionCallback(dev uint, sampleRate int, cb PositionCallback) error
}

// ReadSourcePositions reads the current positions of dev and pushes them
// into buf as one sample
func ReadSourcePositions(src PositionSource, dev uint, buf *PositionBuffer) (Sample, error) {
	axes, err := src.Positions(dev)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to read positions of device %d: %w", dev, err)
	}
	s := NewSample(time.Now(), axes)
	buf.Push(s)
	return s, nil
}

type sourceBatch struct {
	count     int
	seqIdx    uint64
	positions [AxisCount][]float64
}

// Monitor feeds callback batches from a PositionSource into a
// PositionBuffer. The callback only copies and queues; a drain goroutine
// timestamps samples from the sample period and pushes them, advancing
// the clock over gaps in the sequence index.
type Monitor struct {
	src PositionSource
	dev uint
	buf *PositionBuffer
	log *zap.Logger

	queue chan sourceBatch

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	missed  atomic.Uint64
	dropped atomic.Uint64

	// drain goroutine only
	period  float64
	start   float64
	clock   float64
	nextIdx uint64
	hasNext bool
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the monitor logger
func WithMonitorLogger(log *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		m.log = log
	}
}

// WithMonitorQueue sets the number of callback batches that may be queued
func WithMonitorQueue(n int) MonitorOption {
	return func(m *Monitor) {
		m.queue = make(chan sourceBatch, n)
	}
}

// NewMonitor creates a monitor for dev writing into buf
func NewMonitor(src PositionSource, dev uint, buf *PositionBuffer, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		src: src,
		dev: dev,
		buf: buf,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.queue == nil {
		m.queue = make(chan sourceBatch, 1024)
	}
	return m
}

// SampleRateTicks converts a sample period into vendor ticks and checks
// the supported range
func SampleRateTicks(period time.Duration) (int, error) {
	ticks := int(period / SourceTick)
	if ticks < MinSourceSampleRate || ticks > MaxSourceSampleRate {
		return 0, fmt.Errorf("invalid sample rate %v (%d ticks, valid %d-%d)",
			period, ticks, MinSourceSampleRate, MaxSourceSampleRate)
	}
	return ticks, nil
}

// Start registers the callback and starts draining. It returns an error if
// the monitor is already running or the period is out of range.
func (m *Monitor) Start(ctx context.Context, period time.Duration) error {
	ticks, err := SampleRateTicks(period)
	if err != nil {
		return err
	}
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running")
	}

	m.period = (time.Duration(ticks) * SourceTick).Seconds()
	m.hasNext = false
	m.clock = 0
	m.start = 0

	// Batches queued but not drained before the last Stop belong to the old clock
	for drained := false; !drained; {
		select {
		case <-m.queue:
		default:
			drained = true
		}
	}

	if err := m.src.SetPositionCallback(m.dev, ticks, m.callback); err != nil {
		m.running.Store(false)
		return fmt.Errorf("failed to set position callback: %w", err)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.drain(ctx)
	return nil
}

// Stop stops draining and waits for the drain goroutine to exit. Batches
// delivered afterwards are ignored.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel()
	m.wg.Wait()
}

// Missed returns the number of samples skipped by the source
func (m *Monitor) Missed() uint64 {
	return m.missed.Load()
}

// Dropped returns the number of batches discarded on a full queue
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Monitor) callback(dev uint, count int, seqIdx uint64, positions [AxisCount][]float64) {
	if dev != m.dev || !m.running.Load() {
		return
	}
	if count <= 0 {
		m.log.Warn("empty position callback", zap.Int("count", count))
		return
	}

	b := sourceBatch{count: count, seqIdx: seqIdx}
	for i := range positions {
		if len(positions[i]) < count {
			m.log.Warn("short position callback",
				zap.Int("axis", i), zap.Int("count", count), zap.Int("len", len(positions[i])))
			return
		}
		b.positions[i] = append([]float64(nil), positions[i][:count]...)
	}

	select {
	case m.queue <- b:
	default:
		m.dropped.Add(1)
		m.log.Warn("position queue full, dropping batch", zap.Uint64("seq_idx", seqIdx))
	}
}

func (m *Monitor) drain(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-m.queue:
			m.apply(b)
		}
	}
}

func (m *Monitor) apply(b sourceBatch) {
	if m.start == 0 {
		m.start = float64(time.Now().UnixNano()) / 1e9
	}
	if m.hasNext && m.nextIdx < b.seqIdx {
		gap := b.seqIdx - m.nextIdx
		m.missed.Add(gap)
		m.clock += m.period * float64(gap)
		m.log.Warn("missed positions",
			zap.Uint64("expected", m.nextIdx), zap.Uint64("got", b.seqIdx), zap.Uint64("gap", gap))
	}
	m.nextIdx = b.seqIdx + uint64(b.count)
	m.hasNext = true

	for i := 0; i < b.count; i++ {
		var axes [AxisCount]float64
		for a := range axes {
			axes[a] = b.positions[a][i]
		}
		m.buf.Push(Sample{Time: m.start + m.clock, Axis: axes})
		m.clock += m.period
	}
}
