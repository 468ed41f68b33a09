// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"go.uber.org/zap"
)

// ErrTimeout is returned when no acknowledgement arrives in time
var ErrTimeout = errors.New("timed out waiting for acknowledgement")

// ackWaiter collects acknowledgements delivered by the receive loop
type ackWaiter struct {
	acks chan *fps.AckTelegram
}

func newAckWaiter() *ackWaiter {
	return &ackWaiter{acks: make(chan *fps.AckTelegram, 64)}
}

// observe is registered as a client observer
func (w *ackWaiter) observe(t fps.Telegram) {
	if ack, ok := t.(*fps.AckTelegram); ok {
		select {
		case w.acks <- ack:
		default:
		}
	}
}

// transact sends t and waits for the ACK carrying its sequence number.
// ACKs for other requests are skipped.
func (w *ackWaiter) transact(c *fps.Client, t fps.Telegram, timeout time.Duration) (*fps.AckTelegram, error) {
	seq := t.Head().Sequence
	c.Dispatcher().Expect(seq)
	if err := c.Send(t); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", t.Head().Opcode, err)
	}

	deadline := time.After(timeout)
	for {
		select {
		case ack := <-w.acks:
			if ack.Sequence == seq {
				return ack, nil
			}
		case <-c.Done():
			if err := c.Err(); err != nil {
				return nil, fmt.Errorf("connection closed: %w", err)
			}
			return nil, fps.ErrClientStopped
		case <-deadline:
			return nil, fmt.Errorf("%w (seq %d)", ErrTimeout, seq)
		}
	}
}

// set writes data to address/index and returns the device's verdict
func (w *ackWaiter) set(c *fps.Client, address, index int32, data []int32, timeout time.Duration) error {
	ack, err := w.transact(c, fps.NewSet(address, index, c.Sequencer().Next(), data), timeout)
	if err != nil {
		return err
	}
	return fps.AckError(ack)
}

// parseInt32 accepts decimal, 0x hex and 0o octal values
func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return int32(v), nil
}

func parseInt32s(args []string) ([]int32, error) {
	out := make([]int32, len(args))
	for i, a := range args {
		v, err := parseInt32(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// pollPositions requests a synchronized sample every interval until ctx
// is cancelled or the client stops
func pollPositions(ctx context.Context, c *fps.Client, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case <-ticker.C:
			if err := c.QueryPositions(); err != nil {
				if errors.Is(err, fps.ErrClientStopped) {
					return
				}
				log.Warn("position query failed", zap.Error(err))
			}
		}
	}
}

// noiseWindow is the running mean window used for the peak-to-peak estimate
const noiseWindow = 100

// summarizeAxes returns the mean and peak-to-peak noise of each axis
func summarizeAxes(samples []fps.Sample) (mean, p2p [fps.AxisCount]float64) {
	if len(samples) == 0 {
		return
	}
	for a := 0; a < fps.AxisCount; a++ {
		x := fps.AxisValues(samples, a)
		var sum float64
		for _, v := range x {
			sum += v
		}
		mean[a] = sum / float64(len(x))
		p2p[a] = fps.PeakToPeak(x, noiseWindow)
	}
	return
}
