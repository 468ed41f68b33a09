// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"fmt"
	"io"
)

// Reader reads whole telegrams from a byte stream.
//
// The stream carries no frame markers: the only way to find the next
// telegram boundary is to trust the declared length. Each telegram takes
// exactly two reads, the lead (length and opcode) and then the remainder
// of the declared length, both into the same buffer.
type Reader struct {
	r   io.Reader
	buf [MaxSize]byte
}

// NewReader creates a telegram reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadTelegram reads and decodes the next telegram.
//
// Errors wrapping ErrMalformedTelegram mean the telegram was discarded and
// the stream may be read again. A length outside [HeaderSize, MaxSize]
// cannot be skipped, so every following read is likely desynchronized.
// Any other error comes from the underlying reader and is fatal.
func (r *Reader) ReadTelegram() (Telegram, error) {
	if _, err := io.ReadFull(r.r, r.buf[:leadSize]); err != nil {
		return nil, err
	}

	length := getInt32(r.buf[:], offsetLength)
	op := Opcode(getInt32(r.buf[:], offsetOpcode))

	if length <= 0 {
		return nil, fmt.Errorf("%w: length=%d", ErrMalformedTelegram, length)
	}
	if length < HeaderSize || length > MaxSize {
		return nil, fmt.Errorf("%w: length=%d outside [%d, %d]", ErrMalformedTelegram, length, HeaderSize, MaxSize)
	}

	// length-4 bytes follow the length field; the opcode among them has
	// already been read.
	remaining := int(length) - leadSize
	if _, err := io.ReadFull(r.r, r.buf[leadSize:leadSize+remaining]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if !op.Known() {
		return nil, fmt.Errorf("%w: unknown opcode %d (length=%d)", ErrMalformedTelegram, int32(op), length)
	}

	return Decode(r.buf[:length])
}
