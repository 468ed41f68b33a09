// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/spf13/cobra"
)

var (
	rawLogTellOff bool
	rawLogStats   bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw telegram log in human-readable format",
	Long: `Continuously decode and display FPS3010 telegrams as they arrive.

Each telegram is shown with timestamp, opcode, sequence number, register
address and decoded data. Malformed telegrams are logged and skipped.

Supports TCP, serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogTellOff, "tell-off", false, "Disable unsolicited TELL telegrams on connect")
	rawLogCmd.Flags().BoolVar(&rawLogStats, "stats", false, "Print statistics on exit")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	s, err := openSession(nil,
		fps.WithObserver(func(t fps.Telegram) {
			fmt.Print(fps.FormatTelegram(t, time.Now()))
		}),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Fringe - Raw Telegram Log\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	s.client.Start()
	if rawLogTellOff {
		if err := s.client.TellOff(); err != nil {
			return fmt.Errorf("failed to disable TELL: %w", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-s.client.Done():
		if err := s.client.Err(); err != nil {
			fmt.Printf("Connection closed: %v\n", err)
		}
	}

	if rawLogStats {
		fmt.Print("\n" + s.client.Statistics().String())
	}
	return nil
}
