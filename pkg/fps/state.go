// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import "sync"

// State is the stream state fed by a Dispatcher: the synchronized position
// time series, the latest single-axis positions and the raw value table.
// The dispatcher is its only writer; readers may run concurrently.
type State struct {
	Positions *PositionBuffer
	Values    *ValueTable

	mu   sync.RWMutex
	axes [AxisCount]float64
}

// NewState creates a state with a position buffer of the given capacity
func NewState(capacity int) *State {
	return &State{
		Positions: NewPositionBuffer(capacity),
		Values:    NewValueTable(),
	}
}

// SetAxis records the single-axis position of axis in µm
func (s *State) SetAxis(axis int, pos float64) {
	s.mu.Lock()
	s.axes[axis] = pos
	s.mu.Unlock()
}

// Axes returns the latest single-axis positions in µm
func (s *State) Axes() [AxisCount]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.axes
}
