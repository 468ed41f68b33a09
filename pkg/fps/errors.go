// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTelegram is returned when a header carries a length or
	// opcode that cannot describe a valid telegram.
	ErrMalformedTelegram = errors.New("malformed telegram")

	// ErrPayloadTooLarge is returned when a data array does not fit into
	// a MaxSize telegram.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrSequenceMismatch is reported when an ACK does not carry the
	// sequence number the caller is waiting for.
	ErrSequenceMismatch = errors.New("sequence mismatch")

	// ErrClientStopped is returned by Send after Close.
	ErrClientStopped = errors.New("client stopped")
)

// DeviceError is the failure reported by the device in an ACK telegram
type DeviceError struct {
	Reason   Reason
	Address  int32
	Index    int32
	Sequence int32
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error on 0x%X[%d] seq=%d: %s (%d)",
		e.Address, e.Index, e.Sequence, e.Reason, int32(e.Reason))
}

// AckError returns a *DeviceError when ack reports a failure, nil otherwise
func AckError(ack *AckTelegram) error {
	if ack.Reason == ReasonOK {
		return nil
	}
	return &DeviceError{
		Reason:   ack.Reason,
		Address:  ack.Address,
		Index:    ack.Index,
		Sequence: ack.Sequence,
	}
}
