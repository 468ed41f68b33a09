// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fps implements the telegram protocol spoken by the FPS3010
// interferometric position sensor over TCP.
//
// A telegram is a self-describing binary message: a fixed five-field header
// (length, opcode, address, index, sequence number) followed by an optional
// array of 32-bit data elements whose size is derived from the length field.
// This package provides the codec, a two-stage framing reader, a client with
// a dedicated receive loop, and the dispatch layer that turns decoded
// telegrams into axis positions, a synchronized position time series and a
// table of raw register values.
package fps

// Telegram size limits
const (
	MaxSize     = 512 // Maximum telegram size including header, in bytes
	HeaderSize  = 20  // length, opcode, address, index, sequence_num
	AckPrefix   = 24  // HeaderSize + reason
	ElementSize = 4

	// leadSize is the number of bytes the framing reader needs before it
	// knows how much more to read: the length and opcode fields.
	leadSize = 8
)

// Maximum data elements per variant
const (
	MaxSetElements  = (MaxSize - HeaderSize) / ElementSize
	MaxAckElements  = (MaxSize - AckPrefix) / ElementSize
	MaxTellElements = (MaxSize - HeaderSize) / ElementSize
)

// Field offsets within a telegram
const (
	offsetLength   = 0
	offsetOpcode   = 4
	offsetAddress  = 8
	offsetIndex    = 12
	offsetSequence = 16
	offsetReason   = 20
)

// DefaultPort is the TCP port the sensor listens on.
const DefaultPort = 2101

// AxisCount is the number of measurement axes. Telegrams that select an
// axis through the index field accept 0 ... AxisCount-1.
const AxisCount = 3

// Register addresses
const (
	// AddrChanPosition reads the position of one axis selected by index.
	// The answer is a single element in units of 100 pm.
	AddrChanPosition = 0x688

	// AddrSyncPosition reads all three axes sampled at the same instant.
	// The answer carries six elements, a (low 32 bit, high 16 bit) pair per
	// axis, in units of 1 pm. Index must be 0.
	AddrSyncPosition = 0x692

	// AddrTellOff disables unsolicited TELL telegrams when set to 1.
	AddrTellOff = 0x145

	AddrAlign      = 0x669 // alignment mode, data [0|1]
	AddrZero       = 0x60D // reset axis position to zero, data [1]
	AddrSampleTime = 0x68E // sample period in raw device ticks
)

// Unit conversions
const (
	// ChanPositionScale converts a 100 pm single-axis reading into µm.
	ChanPositionScale = 1e4

	// SyncPositionScale converts a 1 pm synchronized reading into µm.
	SyncPositionScale = 1e6

	// SampleTimeTicksPerMs converts raw AddrSampleTime values to ms.
	SampleTimeTicksPerMs = 97.65625
)

// Sequence number range
const (
	SequenceMin = 1
	SequenceMax = 10000
)

// DefaultBufferCapacity is the number of samples kept by a PositionBuffer.
const DefaultBufferCapacity = 20000
