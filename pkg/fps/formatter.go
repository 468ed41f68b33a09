// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"fmt"
	"strings"
	"time"
)

// FormatTelegram formats a telegram into a human-readable string
func FormatTelegram(t Telegram, at time.Time) string {
	h := t.Head()
	timestamp := at.Format("15:04:05.000")

	result := fmt.Sprintf("[%s] %s seq=%d addr=0x%X (%s) idx=%d len=%d\n",
		timestamp, h.Opcode, h.Sequence, h.Address, FormatAddress(h.Address), h.Index, h.Length)

	if ack, ok := t.(*AckTelegram); ok && ack.Reason != ReasonOK {
		result += fmt.Sprintf("  Reason: %s (%d)\n", ack.Reason, int32(ack.Reason))
	}

	return result + formatData(h, Data(t))
}

// FormatAddress returns the name of a known register
func FormatAddress(address int32) string {
	switch address {
	case AddrChanPosition:
		return "CHAN_POSITION"
	case AddrSyncPosition:
		return "SYNC_POSITION"
	case AddrTellOff:
		return "TELL_OFF"
	case AddrAlign:
		return "ALIGN"
	case AddrZero:
		return "ZERO"
	case AddrSampleTime:
		return "SAMPLE_TIME"
	default:
		return "UNKNOWN"
	}
}

func formatData(h Header, data []int32) string {
	if len(data) == 0 {
		return ""
	}

	switch h.Address {
	case AddrChanPosition:
		return fmt.Sprintf("  Axis %d: %.4f µm\n", h.Index, float64(data[0])/ChanPositionScale)

	case AddrSyncPosition:
		if axes, err := DecodeSyncPositions(data); err == nil {
			return fmt.Sprintf("  Axes: %.6f, %.6f, %.6f µm\n", axes[0], axes[1], axes[2])
		}

	case AddrSampleTime:
		return fmt.Sprintf("  Sample Time: %.3f ms (%d ticks)\n", float64(data[0])/SampleTimeTicksPerMs, data[0])
	}

	return "  Data: " + FormatValues(data) + "\n"
}

// FormatValues renders data elements separated by spaces
func FormatValues(data []int32) string {
	parts := make([]string, len(data))
	for i, v := range data {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " ")
}
