// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of Statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Received
	TotalTelegrams uint64
	Sets           uint64
	Gets           uint64
	Acks           uint64
	Tells          uint64

	// Errors
	Malformed          uint64
	DeviceErrors       uint64
	SequenceMismatches uint64
	SendErrors         uint64

	// Dispatch
	PositionSamples uint64
	AxisUpdates     uint64
	UnknownAddress  uint64

	// Sent
	SentTelegrams uint64
	FollowUps     uint64

	// Rates (calculated)
	TelegramRate float64 // telegrams/sec
	ErrorRate    float64 // errors/sec
	SampleRate   float64 // position samples/sec
}

// Errors returns the total error count
func (c Counters) Errors() uint64 {
	return c.Malformed + c.DeviceErrors + c.SequenceMismatches + c.SendErrors
}

// Statistics tracks telegram counters and rates. It is written by the
// receive loop and read by display code, so every access is locked.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

// RecordTelegram counts a decoded telegram by opcode
func (s *Statistics) RecordTelegram(t Telegram) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalTelegrams++
	switch t.(type) {
	case *SetTelegram:
		s.c.Sets++
	case *GetTelegram:
		s.c.Gets++
	case *AckTelegram:
		s.c.Acks++
	case *TellTelegram:
		s.c.Tells++
	}
	s.c.LastUpdateTime = time.Now()
}

// RecordMalformed counts a discarded telegram
func (s *Statistics) RecordMalformed() {
	s.mu.Lock()
	s.c.Malformed++
	s.c.LastUpdateTime = time.Now()
	s.mu.Unlock()
}

// RecordDeviceError counts an ACK with a failure reason
func (s *Statistics) RecordDeviceError() {
	s.mu.Lock()
	s.c.DeviceErrors++
	s.mu.Unlock()
}

// RecordSequenceMismatch counts an ACK with an unexpected sequence number
func (s *Statistics) RecordSequenceMismatch() {
	s.mu.Lock()
	s.c.SequenceMismatches++
	s.mu.Unlock()
}

// RecordSample counts a synchronized position sample
func (s *Statistics) RecordSample() {
	s.mu.Lock()
	s.c.PositionSamples++
	s.mu.Unlock()
}

// RecordAxisUpdate counts a single-axis position update
func (s *Statistics) RecordAxisUpdate() {
	s.mu.Lock()
	s.c.AxisUpdates++
	s.mu.Unlock()
}

// RecordUnknownAddress counts a telegram stored in the value table
func (s *Statistics) RecordUnknownAddress() {
	s.mu.Lock()
	s.c.UnknownAddress++
	s.mu.Unlock()
}

// RecordSent counts a transmitted telegram
func (s *Statistics) RecordSent(followUp bool) {
	s.mu.Lock()
	s.c.SentTelegrams++
	if followUp {
		s.c.FollowUps++
	}
	s.mu.Unlock()
}

// RecordSendError counts a failed transmission
func (s *Statistics) RecordSendError() {
	s.mu.Lock()
	s.c.SendErrors++
	s.mu.Unlock()
}

// Snapshot returns the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.TelegramRate = float64(c.TotalTelegrams) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
		c.SampleRate = float64(c.PositionSamples) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var malformedPercent float64
	if seen := c.TotalTelegrams + c.Malformed; seen > 0 {
		malformedPercent = float64(c.Malformed) * 100.0 / float64(seen)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Telegrams:       %8d (ACK %d, TELL %d, SET %d, GET %d)\n",
		c.TotalTelegrams, c.Acks, c.Tells, c.Sets, c.Gets)
	result += fmt.Sprintf("Sent:            %8d (%d follow-ups)\n", c.SentTelegrams, c.FollowUps)
	result += fmt.Sprintf("Samples:         %8d\n", c.PositionSamples)

	if c.AxisUpdates > 0 {
		result += fmt.Sprintf("Axis Updates:    %8d\n", c.AxisUpdates)
	}
	if c.UnknownAddress > 0 {
		result += fmt.Sprintf("Other Registers: %8d\n", c.UnknownAddress)
	}
	if c.Malformed > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", c.Malformed, malformedPercent)
	}
	if c.DeviceErrors > 0 {
		result += fmt.Sprintf("Device Errors:   %8d\n", c.DeviceErrors)
	}
	if c.SequenceMismatches > 0 {
		result += fmt.Sprintf("Seq Mismatches:  %8d\n", c.SequenceMismatches)
	}
	if c.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", c.SendErrors)
	}

	result += fmt.Sprintf("Telegram Rate:   %8.1f tel/sec\n", c.TelegramRate)
	result += fmt.Sprintf("Sample Rate:     %8.1f samples/sec\n", c.SampleRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.mu.Lock()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
	s.mu.Unlock()
}
