// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/spf13/cobra"
)

const defaultRequestTimeout = 2 * time.Second

var requestTimeout time.Duration

var getCmd = &cobra.Command{
	Use:   "get <address> [index]",
	Short: "Read a register",
	Long: `Send a GET telegram and print the acknowledged data.

Addresses and indexes accept decimal or 0x-prefixed hex, e.g.:
  fringe --host 192.168.1.1 get 0x692
  fringe --host 192.168.1.1 get 0x688 1

Exit codes:
  0 - Register read
  1 - Timeout or device error`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <address> <index> <value>...",
	Short: "Write a register",
	Long: `Send a SET telegram and print the device's acknowledgement.

Up to 123 values fit in one telegram.

Exit codes:
  0 - Register written
  1 - Timeout or device error`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	for _, c := range []*cobra.Command{getCmd, setCmd} {
		c.Flags().DurationVar(&requestTimeout, "timeout", defaultRequestTimeout, "Time to wait for the acknowledgement")
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	address, err := parseInt32(args[0])
	if err != nil {
		return err
	}
	var index int32
	if len(args) > 1 {
		if index, err = parseInt32(args[1]); err != nil {
			return err
		}
	}

	waiter := newAckWaiter()
	s, err := openSession(nil,
		fps.WithObserver(waiter.observe),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
	)
	if err != nil {
		return err
	}
	defer s.Close()
	s.client.Start()

	ack, err := waiter.transact(s.client, fps.NewGet(address, index, s.client.Sequencer().Next()), requestTimeout)
	return printAck(ack, err)
}

func runSet(cmd *cobra.Command, args []string) error {
	address, err := parseInt32(args[0])
	if err != nil {
		return err
	}
	index, err := parseInt32(args[1])
	if err != nil {
		return err
	}
	data, err := parseInt32s(args[2:])
	if err != nil {
		return err
	}
	if len(data) > fps.MaxSetElements {
		return fmt.Errorf("%w: %d values (max %d)", fps.ErrPayloadTooLarge, len(data), fps.MaxSetElements)
	}

	waiter := newAckWaiter()
	s, err := openSession(nil,
		fps.WithObserver(waiter.observe),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
	)
	if err != nil {
		return err
	}
	defer s.Close()
	s.client.Start()

	ack, err := waiter.transact(s.client, fps.NewSet(address, index, s.client.Sequencer().Next(), data), requestTimeout)
	return printAck(ack, err)
}

// printAck prints an acknowledgement and exits 1 on timeout or device error
func printAck(ack *fps.AckTelegram, err error) error {
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			fmt.Fprintf(os.Stderr, "TIMEOUT: %v\n", err)
			os.Exit(1)
		}
		return err
	}

	fmt.Print(fps.FormatTelegram(ack, time.Now()))
	if devErr := fps.AckError(ack); devErr != nil {
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", devErr)
		os.Exit(1)
	}
	return nil
}
