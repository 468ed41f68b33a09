// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Observer is called on the receive goroutine for every decoded telegram,
// after it has been dispatched. It must not block.
type Observer func(Telegram)

// Client owns one connection to the sensor. Sends from any goroutine are
// serialized by a mutex; a single receive goroutine reads, dispatches and
// sends any follow-up requests.
type Client struct {
	conn       io.ReadWriteCloser
	reader     *Reader
	dispatcher *Dispatcher
	state      *State
	stats      *Statistics
	seq        *Sequencer
	log        *zap.Logger
	observers  []Observer

	dispatchOpts []DispatcherOption

	sendMu sync.Mutex

	running  atomic.Bool
	closed   atomic.Bool
	started  sync.Once
	stopOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the client logger
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithState sets the state fed by the client's dispatcher
func WithState(state *State) ClientOption {
	return func(c *Client) {
		c.state = state
	}
}

// WithStatistics sets the statistics tracker
func WithStatistics(stats *Statistics) ClientOption {
	return func(c *Client) {
		c.stats = stats
	}
}

// WithObserver registers an observer for decoded telegrams
func WithObserver(obs Observer) ClientOption {
	return func(c *Client) {
		c.observers = append(c.observers, obs)
	}
}

// WithFirstSequence sets the first sequence number used by the client
func WithFirstSequence(seq int32) ClientOption {
	return func(c *Client) {
		c.seq = NewSequencer(seq)
	}
}

// WithDispatchOptions passes extra options to the client's dispatcher
func WithDispatchOptions(opts ...DispatcherOption) ClientOption {
	return func(c *Client) {
		c.dispatchOpts = append(c.dispatchOpts, opts...)
	}
}

// NewClient creates a client on conn. Call Start to begin receiving.
func NewClient(conn io.ReadWriteCloser, opts ...ClientOption) *Client {
	c := &Client{
		conn: conn,
		log:  zap.NewNop(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.state == nil {
		c.state = NewState(DefaultBufferCapacity)
	}
	if c.stats == nil {
		c.stats = NewStatistics()
	}
	if c.seq == nil {
		c.seq = NewSequencer(SequenceMin)
	}

	dopts := []DispatcherOption{
		WithDispatchLogger(c.log),
		WithDispatchStatistics(c.stats),
		WithSequencer(c.seq),
	}
	c.dispatcher = NewDispatcher(c.state, append(dopts, c.dispatchOpts...)...)
	c.reader = NewReader(conn)
	return c
}

// State returns the stream state
func (c *Client) State() *State {
	return c.state
}

// Statistics returns the statistics tracker
func (c *Client) Statistics() *Statistics {
	return c.stats
}

// Sequencer returns the sequencer numbering the client's requests
func (c *Client) Sequencer() *Sequencer {
	return c.seq
}

// Dispatcher returns the client's dispatcher
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Start launches the receive loop. Calling it more than once has no effect.
func (c *Client) Start() {
	c.started.Do(func() {
		c.running.Store(true)
		go c.receiveLoop()
	})
}

// Stop asks the receive loop to exit after the telegram it is reading.
// A blocked read is not interrupted; use Close for that.
func (c *Client) Stop() {
	c.running.Store(false)
}

// Close stops the receive loop and closes the connection
func (c *Client) Close() error {
	c.Stop()
	var err error
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the receive loop has exited
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that terminated the receive loop, if any
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) receiveLoop() {
	defer close(c.done)
	c.log.Info("receive loop started")

	for c.running.Load() {
		t, err := c.reader.ReadTelegram()
		if err != nil {
			if errors.Is(err, ErrMalformedTelegram) {
				c.stats.RecordMalformed()
				c.log.Warn("discarding telegram", zap.Error(err))
				continue
			}
			if !c.closed.Load() {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
				c.log.Info("receive loop stopped", zap.Error(err))
			} else {
				c.log.Info("receive loop stopped")
			}
			c.running.Store(false)
			return
		}

		c.stats.RecordTelegram(t)
		followUps := c.dispatcher.Dispatch(t)
		for _, obs := range c.observers {
			obs(t)
		}

		for _, req := range followUps {
			if err := c.send(req, true); err != nil {
				c.log.Warn("follow-up request failed", zap.Error(err))
			}
		}
	}
	c.log.Info("receive loop stopped")
}

// Send encodes and writes t
func (c *Client) Send(t Telegram) error {
	return c.send(t, false)
}

func (c *Client) send(t Telegram, followUp bool) error {
	if c.closed.Load() {
		return ErrClientStopped
	}
	buf, err := Encode(t)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	_, err = c.conn.Write(buf)
	c.sendMu.Unlock()

	if err != nil {
		c.stats.RecordSendError()
		return err
	}
	c.stats.RecordSent(followUp)
	return nil
}

// Get sends a GET for address/index and returns its sequence number
func (c *Client) Get(address, index int32) (int32, error) {
	t := NewGet(address, index, c.seq.Next())
	return t.Sequence, c.Send(t)
}

// Set sends a SET for address/index and returns its sequence number.
// Data that does not fit into one telegram fails with ErrPayloadTooLarge
// and nothing is sent.
func (c *Client) Set(address, index int32, data []int32) (int32, error) {
	t := NewSet(address, index, c.seq.Next(), data)
	return t.Sequence, c.Send(t)
}

// QueryPosition requests the single-axis position of axis. Its answer
// starts the poll-on-receipt loop for that axis.
func (c *Client) QueryPosition(axis int) error {
	_, err := c.Get(AddrChanPosition, int32(axis))
	return err
}

// QueryPositions requests one synchronized sample of all axes
func (c *Client) QueryPositions() error {
	_, err := c.Get(AddrSyncPosition, 0)
	return err
}

// QuerySampleTime requests the device sample period
func (c *Client) QuerySampleTime() error {
	_, err := c.Get(AddrSampleTime, 0)
	return err
}

// SetSampleTime writes the device sample period in raw ticks
func (c *Client) SetSampleTime(ticks int32) error {
	_, err := c.Set(AddrSampleTime, 0, []int32{ticks})
	return err
}

// TellOff disables unsolicited TELL telegrams
func (c *Client) TellOff() error {
	_, err := c.Set(AddrTellOff, 0, []int32{1})
	return err
}

// Align enables or disables alignment mode
func (c *Client) Align(enabled bool) error {
	v := int32(0)
	if enabled {
		v = 1
	}
	_, err := c.Set(AddrAlign, 0, []int32{v})
	return err
}

// Zero resets the position of axis to zero
func (c *Client) Zero(axis int) error {
	_, err := c.Set(AddrZero, int32(axis), []int32{1})
	return err
}

// ZeroAll resets every axis
func (c *Client) ZeroAll() error {
	for axis := 0; axis < AxisCount; axis++ {
		if err := c.Zero(axis); err != nil {
			return err
		}
	}
	return nil
}
