// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import "sync/atomic"

// Sequencer hands out request sequence numbers in SequenceMin..SequenceMax,
// wrapping and never returning 0.
type Sequencer struct {
	last atomic.Int32
}

// NewSequencer creates a sequencer whose first Next returns start.
// Out-of-range starts are folded into the valid range.
func NewSequencer(start int32) *Sequencer {
	s := &Sequencer{}
	s.last.Store(prevSequence(foldSequence(start)))
	return s
}

// Next returns the next sequence number
func (s *Sequencer) Next() int32 {
	for {
		last := s.last.Load()
		next := last%SequenceMax + 1
		if s.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Last returns the most recently issued sequence number
func (s *Sequencer) Last() int32 {
	return s.last.Load()
}

func foldSequence(v int32) int32 {
	if v < SequenceMin || v > SequenceMax {
		v = (v%SequenceMax+SequenceMax)%SequenceMax + 1
	}
	return v
}

func prevSequence(v int32) int32 {
	if v == SequenceMin {
		return SequenceMax
	}
	return v - 1
}
