// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes a telegram to wire format. The length field is always
// written as the exact serialized size, whatever t.Head().Length holds.
func Encode(t Telegram) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("fps: nil telegram")
	}
	h := t.Head()
	if !h.Opcode.Known() {
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrMalformedTelegram, int32(h.Opcode))
	}

	data := Data(t)
	if len(data) > maxElements(h.Opcode) {
		return nil, fmt.Errorf("%w: %s with %d elements is %d bytes (max %d)",
			ErrPayloadTooLarge, h.Opcode, len(data), prefixSize(h.Opcode)+len(data)*ElementSize, MaxSize)
	}

	size := Size(t)
	buf := make([]byte, size)
	putInt32(buf, offsetLength, int32(size))
	putInt32(buf, offsetOpcode, int32(h.Opcode))
	putInt32(buf, offsetAddress, h.Address)
	putInt32(buf, offsetIndex, h.Index)
	putInt32(buf, offsetSequence, h.Sequence)

	if ack, ok := t.(*AckTelegram); ok {
		putInt32(buf, offsetReason, int32(ack.Reason))
	}

	off := prefixSize(h.Opcode)
	for _, v := range data {
		putInt32(buf, off, v)
		off += ElementSize
	}

	return buf, nil
}

// WriteTelegram encodes t and writes it to w in a single Write call
func WriteTelegram(w io.Writer, t Telegram) error {
	buf, err := Encode(t)
	if err != nil {
		return err
	}
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(buf))
	}
	return nil
}

func putInt32(buf []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(buf[off:], uint32(v))
}

func getInt32(buf []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[off:]))
}
