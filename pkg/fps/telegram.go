// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import "fmt"

// Opcode identifies the structural shape of a telegram
type Opcode int32

// Opcode values
const (
	OpSet  Opcode = 0
	OpGet  Opcode = 1
	OpAck  Opcode = 3
	OpTell Opcode = 4
)

// String returns the opcode name
func (o Opcode) String() string {
	switch o {
	case OpSet:
		return "SET"
	case OpGet:
		return "GET"
	case OpAck:
		return "ACK"
	case OpTell:
		return "TELL"
	default:
		return fmt.Sprintf("OPCODE(%d)", int32(o))
	}
}

// Known reports whether o is one of the four protocol opcodes
func (o Opcode) Known() bool {
	switch o {
	case OpSet, OpGet, OpAck, OpTell:
		return true
	}
	return false
}

// Reason is the result code carried by an ACK telegram
type Reason int32

// Reason values
const (
	ReasonOK      Reason = 0
	ReasonAddr    Reason = 1
	ReasonRange   Reason = 2
	ReasonIgnored Reason = 3
	ReasonVerify  Reason = 4
	ReasonType    Reason = 5
	ReasonUnknown Reason = 99
)

var reasonStrings = map[Reason]string{
	ReasonOK:      "ok",
	ReasonAddr:    "invalid address",
	ReasonRange:   "value out of range",
	ReasonIgnored: "telegram was ignored",
	ReasonVerify:  "verification of data failed",
	ReasonType:    "wrong data type",
	ReasonUnknown: "unknown error",
}

// String returns the human-readable reason. Codes outside the enumeration
// map to "unknown error".
func (r Reason) String() string {
	if s, ok := reasonStrings[r]; ok {
		return s
	}
	return reasonStrings[ReasonUnknown]
}

// Header is the fixed part shared by every telegram
type Header struct {
	Length   int32 // total telegram size in bytes, including this field
	Opcode   Opcode
	Address  int32
	Index    int32
	Sequence int32
}

// Telegram is one of *SetTelegram, *GetTelegram, *AckTelegram or
// *TellTelegram.
type Telegram interface {
	Head() Header
	telegram()
}

// SetTelegram writes a value
type SetTelegram struct {
	Header
	Data []int32
}

// GetTelegram requests a value
type GetTelegram struct {
	Header
}

// AckTelegram answers a SET or GET
type AckTelegram struct {
	Header
	Reason Reason
	Data   []int32
}

// TellTelegram is an unsolicited device event
type TellTelegram struct {
	Header
	Data []int32
}

func (t *SetTelegram) Head() Header  { return t.Header }
func (t *GetTelegram) Head() Header  { return t.Header }
func (t *AckTelegram) Head() Header  { return t.Header }
func (t *TellTelegram) Head() Header { return t.Header }

func (*SetTelegram) telegram()  {}
func (*GetTelegram) telegram()  {}
func (*AckTelegram) telegram()  {}
func (*TellTelegram) telegram() {}

// prefixSize returns the number of bytes preceding the data array
func prefixSize(op Opcode) int {
	if op == OpAck {
		return AckPrefix
	}
	return HeaderSize
}

// maxElements returns the data array capacity of a variant
func maxElements(op Opcode) int {
	switch op {
	case OpSet:
		return MaxSetElements
	case OpAck:
		return MaxAckElements
	case OpTell:
		return MaxTellElements
	}
	return 0
}

// Data returns the data array of t, or nil for GET telegrams
func Data(t Telegram) []int32 {
	switch v := t.(type) {
	case *SetTelegram:
		return v.Data
	case *AckTelegram:
		return v.Data
	case *TellTelegram:
		return v.Data
	}
	return nil
}

// Size returns the serialized size of t in bytes
func Size(t Telegram) int {
	return prefixSize(t.Head().Opcode) + len(Data(t))*ElementSize
}

// NewSet creates a SET telegram for address/index carrying data
func NewSet(address, index, seq int32, data []int32) *SetTelegram {
	return &SetTelegram{
		Header: Header{
			Length:   int32(HeaderSize + len(data)*ElementSize),
			Opcode:   OpSet,
			Address:  address,
			Index:    index,
			Sequence: seq,
		},
		Data: data,
	}
}

// NewGet creates a GET telegram for address/index
func NewGet(address, index, seq int32) *GetTelegram {
	return &GetTelegram{
		Header: Header{
			Length:   HeaderSize,
			Opcode:   OpGet,
			Address:  address,
			Index:    index,
			Sequence: seq,
		},
	}
}

// NewAck creates an ACK telegram. Used by tests and device simulators.
func NewAck(address, index, seq int32, reason Reason, data []int32) *AckTelegram {
	return &AckTelegram{
		Header: Header{
			Length:   int32(AckPrefix + len(data)*ElementSize),
			Opcode:   OpAck,
			Address:  address,
			Index:    index,
			Sequence: seq,
		},
		Reason: reason,
		Data:   data,
	}
}

// NewTell creates a TELL telegram
func NewTell(address, index, seq int32, data []int32) *TellTelegram {
	return &TellTelegram{
		Header: Header{
			Length:   int32(HeaderSize + len(data)*ElementSize),
			Opcode:   OpTell,
			Address:  address,
			Index:    index,
			Sequence: seq,
		},
		Data: data,
	}
}
