// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import "fmt"

// DecodeHeader reads the fixed header fields from b
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: buffer holds %d bytes, header needs %d",
			ErrMalformedTelegram, len(b), HeaderSize)
	}
	return Header{
		Length:   getInt32(b, offsetLength),
		Opcode:   Opcode(getInt32(b, offsetOpcode)),
		Address:  getInt32(b, offsetAddress),
		Index:    getInt32(b, offsetIndex),
		Sequence: getInt32(b, offsetSequence),
	}, nil
}

// DecodeBody reinterprets b as the variant selected by h.Opcode. The data
// element count is computed from h.Length and validated before use.
func DecodeBody(b []byte, h Header) (Telegram, error) {
	length := int(h.Length)
	if length > len(b) || length > MaxSize {
		return nil, fmt.Errorf("%w: length %d exceeds buffer (%d bytes) or maximum (%d)",
			ErrMalformedTelegram, length, len(b), MaxSize)
	}
	if !h.Opcode.Known() {
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrMalformedTelegram, int32(h.Opcode))
	}

	prefix := prefixSize(h.Opcode)
	if length < prefix {
		return nil, fmt.Errorf("%w: %s length %d shorter than prefix %d",
			ErrMalformedTelegram, h.Opcode, length, prefix)
	}
	if (length-prefix)%ElementSize != 0 {
		return nil, fmt.Errorf("%w: %s length %d leaves %d trailing bytes",
			ErrMalformedTelegram, h.Opcode, length, (length-prefix)%ElementSize)
	}
	count := (length - prefix) / ElementSize

	switch h.Opcode {
	case OpGet:
		if count != 0 {
			return nil, fmt.Errorf("%w: GET carries %d data elements", ErrMalformedTelegram, count)
		}
		return &GetTelegram{Header: h}, nil
	case OpSet:
		return &SetTelegram{Header: h, Data: decodeData(b, prefix, count)}, nil
	case OpAck:
		return &AckTelegram{
			Header: h,
			Reason: Reason(getInt32(b, offsetReason)),
			Data:   decodeData(b, prefix, count),
		}, nil
	default:
		return &TellTelegram{Header: h, Data: decodeData(b, prefix, count)}, nil
	}
}

// Decode decodes a complete telegram from b
func Decode(b []byte) (Telegram, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	return DecodeBody(b, h)
}

// decodeData copies count elements starting at off into an owned slice
func decodeData(b []byte, off, count int) []int32 {
	data := make([]int32, count)
	for i := range data {
		data[i] = getInt32(b, off+i*ElementSize)
	}
	return data
}
