// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher routes decoded telegrams to their meaning by address and
// updates a State. It is driven by a single receive loop.
type Dispatcher struct {
	state *State
	stats *Statistics
	seq   *Sequencer
	log   *zap.Logger
	now   func() time.Time

	pollOnReceipt bool

	mu       sync.Mutex
	expected int32 // sequence number of the awaited ACK, 0 when none
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger for diagnostics
func WithDispatchLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithDispatchStatistics sets the statistics tracker
func WithDispatchStatistics(stats *Statistics) DispatcherOption {
	return func(d *Dispatcher) {
		d.stats = stats
	}
}

// WithSequencer sets the sequencer used to number follow-up requests
func WithSequencer(seq *Sequencer) DispatcherOption {
	return func(d *Dispatcher) {
		d.seq = seq
	}
}

// WithClock sets the time source used to stamp position samples
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithPollOnReceipt enables or disables re-querying a single axis each
// time its position answer arrives. Enabled by default.
func WithPollOnReceipt(enabled bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.pollOnReceipt = enabled
	}
}

// NewDispatcher creates a dispatcher writing into state
func NewDispatcher(state *State, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		state:         state,
		log:           zap.NewNop(),
		now:           time.Now,
		pollOnReceipt: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.stats == nil {
		d.stats = NewStatistics()
	}
	if d.seq == nil {
		d.seq = NewSequencer(SequenceMin)
	}
	return d
}

// State returns the state the dispatcher writes into
func (d *Dispatcher) State() *State {
	return d.state
}

// Expect records seq as the sequence number of the next ACK. The next ACK
// clears the expectation; one carrying another number is reported as a
// sequence mismatch. Only one request is tracked at a time.
func (d *Dispatcher) Expect(seq int32) {
	d.mu.Lock()
	d.expected = seq
	d.mu.Unlock()
}

// Dispatch applies t to the state and returns the requests it triggers.
// Every telegram updates the position buffer, an axis position or the
// value table.
func (d *Dispatcher) Dispatch(t Telegram) []Telegram {
	h := t.Head()
	data := Data(t)

	ack, isAck := t.(*AckTelegram)
	if isAck {
		d.checkAck(ack)
	}

	switch h.Address {
	case AddrChanPosition:
		if d.applyChanPosition(h, data) {
			if isAck && d.pollOnReceipt {
				return []Telegram{NewGet(AddrChanPosition, h.Index, d.seq.Next())}
			}
			return nil
		}
	case AddrSyncPosition:
		if d.applySyncPosition(h, data) {
			return nil
		}
	}

	d.state.Values.Store(Key{Address: h.Address, Index: h.Index}, h.Opcode, data)
	d.stats.RecordUnknownAddress()
	d.log.Debug("unrecognized address",
		zap.String("address", fmt.Sprintf("0x%X", h.Address)),
		zap.Int32("index", h.Index),
		zap.Stringer("opcode", h.Opcode),
		zap.Int32s("data", data))
	return nil
}

// checkAck reports failure reasons and unexpected sequence numbers. Both
// are informational only.
func (d *Dispatcher) checkAck(ack *AckTelegram) {
	d.mu.Lock()
	expected := d.expected
	d.expected = 0
	d.mu.Unlock()

	if expected != 0 && ack.Sequence != expected {
		d.stats.RecordSequenceMismatch()
		d.log.Warn("unexpected acknowledgement",
			zap.Error(fmt.Errorf("%w: expected %d, got %d", ErrSequenceMismatch, expected, ack.Sequence)),
			zap.String("address", fmt.Sprintf("0x%X", ack.Address)))
	}

	if err := AckError(ack); err != nil {
		d.stats.RecordDeviceError()
		d.log.Warn("device reported error",
			zap.String("reason", ack.Reason.String()),
			zap.Int32("code", int32(ack.Reason)),
			zap.String("address", fmt.Sprintf("0x%X", ack.Address)),
			zap.Int32("index", ack.Index),
			zap.Int32("seq", ack.Sequence))
	}
}

// applyChanPosition stores a 100 pm single-axis reading
func (d *Dispatcher) applyChanPosition(h Header, data []int32) bool {
	if len(data) < 1 || h.Index < 0 || h.Index >= AxisCount {
		return false
	}
	d.state.SetAxis(int(h.Index), float64(data[0])/ChanPositionScale)
	d.stats.RecordAxisUpdate()
	return true
}

// applySyncPosition pushes a synchronized sample into the ring
func (d *Dispatcher) applySyncPosition(h Header, data []int32) bool {
	axes, err := DecodeSyncPositions(data)
	if err != nil {
		return false
	}
	for i, pos := range axes {
		d.state.SetAxis(i, pos)
	}
	d.state.Positions.Push(NewSample(d.now(), axes))
	d.stats.RecordSample()
	return true
}

// CombinePicometres joins the low 32 bits and the sign-extended upper 16
// bits of a 48-bit position
func CombinePicometres(low, high int32) int64 {
	return int64(high)<<32 | int64(uint32(low))
}

// DecodeSyncPositions converts the six data words of a synchronized
// position answer into three positions in µm
func DecodeSyncPositions(data []int32) ([AxisCount]float64, error) {
	var axes [AxisCount]float64
	if len(data) < 2*AxisCount {
		return axes, fmt.Errorf("%w: synchronized position needs %d elements, got %d",
			ErrMalformedTelegram, 2*AxisCount, len(data))
	}
	for i := range axes {
		pm := CombinePicometres(data[2*i], data[2*i+1])
		axes[i] = float64(pm) / SyncPositionScale
	}
	return axes, nil
}
