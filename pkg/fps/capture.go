// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Capture is a CBOR-serializable snapshot of the stream state, written by
// export and served over HTTP. Integer keys keep the encoding compact.
type Capture struct {
	Captured time.Time       `cbor:"0,keyasint"`
	Samples  []CaptureSample `cbor:"1,keyasint"`
	Values   []CaptureValue  `cbor:"2,keyasint,omitempty"`
	Axes     []float64       `cbor:"3,keyasint"`
}

// CaptureSample is one position sample: [time, axis0, axis1, axis2]
type CaptureSample struct {
	_    struct{} `cbor:",toarray"`
	Time float64
	A0   float64
	A1   float64
	A2   float64
}

// CaptureValue is one value table entry
type CaptureValue struct {
	Address int32   `cbor:"0,keyasint"`
	Index   int32   `cbor:"1,keyasint"`
	Data    []int32 `cbor:"2,keyasint"`
}

// NewCapture snapshots the written samples and values of state
func NewCapture(state *State) *Capture {
	samples := state.Positions.Valid()
	axes := state.Axes()

	c := &Capture{
		Captured: time.Now().UTC(),
		Samples:  make([]CaptureSample, len(samples)),
		Axes:     axes[:],
	}
	for i, s := range samples {
		c.Samples[i] = CaptureSample{Time: s.Time, A0: s.Axis[0], A1: s.Axis[1], A2: s.Axis[2]}
	}
	c.Values = CaptureValues(state.Values)
	return c
}

// CaptureValues converts the value table, sorted by address and index.
// It returns nil for an empty table.
func CaptureValues(t *ValueTable) []CaptureValue {
	var out []CaptureValue
	for _, v := range t.Snapshot() {
		out = append(out, CaptureValue{Address: v.Address, Index: v.Index, Data: v.Data})
	}
	return out
}

// PositionSamples converts the capture back into samples
func (c *Capture) PositionSamples() []Sample {
	out := make([]Sample, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = Sample{Time: s.Time, Axis: [AxisCount]float64{s.A0, s.A1, s.A2}}
	}
	return out
}

var captureEncMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("fps: cbor encode mode: %v", err))
	}
	return em
}()

// MarshalCBOR encodes v with the deterministic capture encoding
func MarshalCBOR(v any) ([]byte, error) {
	data, err := captureEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capture: %w", err)
	}
	return data, nil
}

// WriteCapture encodes c as CBOR to w
func WriteCapture(w io.Writer, c *Capture) error {
	if err := captureEncMode.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("failed to encode capture: %w", err)
	}
	return nil
}

// ReadCapture decodes a CBOR capture from r
func ReadCapture(r io.Reader) (*Capture, error) {
	var c Capture
	if err := cbor.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode capture: %w", err)
	}
	return &c, nil
}
