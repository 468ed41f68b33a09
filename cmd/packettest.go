// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
	packetTestQuery   bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid telegram",
	Long: `Wait for a valid FPS3010 telegram on the connection until timeout.

This command connects to the sensor and waits for any telegram that decodes
cleanly. Malformed telegrams are counted and skipped. With --query, a
synchronized position request is sent first so a silent sensor still answers.

Exit codes:
  0 - Telegram received before timeout
  1 - Timeout reached without receiving a valid telegram
  2 - Connection error

Useful for testing connectivity to the sensor or a bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a telegram")
	packetTestCmd.Flags().BoolVar(&packetTestQuery, "query", true, "Request synchronized positions before waiting")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	telegramChan := make(chan fps.Telegram, 1)

	s, err := openSession(nil,
		fps.WithObserver(func(t fps.Telegram) {
			select {
			case telegramChan <- t:
			default:
			}
		}),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("Fringe - Telegram Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid telegram...\n\n")

	s.client.Start()
	if packetTestQuery {
		if err := s.client.QueryPositions(); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}

	select {
	case t := <-telegramChan:
		h := t.Head()
		if malformed := s.client.Statistics().Snapshot().Malformed; malformed > 0 {
			fmt.Printf("(skipped %d malformed telegrams)\n", malformed)
		}
		fmt.Printf("SUCCESS: Received valid telegram\n")
		fmt.Printf("  Opcode: %s\n", h.Opcode)
		fmt.Printf("  Address: 0x%X (%s) index %d\n", h.Address, fps.FormatAddress(h.Address), h.Index)
		fmt.Printf("  Sequence: %d\n", h.Sequence)
		fmt.Printf("  Length: %d bytes\n", h.Length)
		if ack, ok := t.(*fps.AckTelegram); ok {
			fmt.Printf("  Reason: %s\n", ack.Reason)
		}
		os.Exit(0)

	case <-s.client.Done():
		fmt.Fprintf(os.Stderr, "Read error: %v\n", s.client.Err())
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid telegram received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
