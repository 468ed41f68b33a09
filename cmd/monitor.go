// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	monitorInterval time.Duration
	monitorWindow   int
	showAll         bool
	statsInterval   int
	useTUI          bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor the position stream and its health",
	Long: `Request synchronized positions continuously and show the stream state.

The terminal UI shows the latest position of each axis with its mean and
peak-to-peak noise over the newest --noise-window samples, the estimated
sample interval, the register value table, telegram statistics and an event
log of warnings (malformed telegrams, device errors, sequence mismatches).

In text mode (--tui=false) errors are printed as they are detected and a
statistics summary is printed every --stats-interval seconds. Use --show-all
to print every telegram as well.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Millisecond, "Time between position requests")
	monitorCmd.Flags().IntVar(&monitorWindow, "noise-window", 2000, "Number of newest samples used for mean and noise")
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Print all telegrams, not just errors (text mode)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval in seconds (text mode)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if useTUI {
		return runTUIMode()
	}
	return runTextMode()
}

// runTUIMode runs the monitor in the terminal UI
func runTUIMode() error {
	level, err := parseLogLevel()
	if err != nil {
		return err
	}
	log, sink := newTUILogger(level)

	s, err := openSession(log, fps.WithDispatchOptions(fps.WithPollOnReceipt(false)))
	if err != nil {
		return err
	}
	defer s.Close()
	s.client.Start()

	p := &poller{client: s.client, interval: monitorInterval, log: log}
	p.toggle()
	defer p.stop()

	m := initialModel(s.info, s.client, p, sink, monitorWindow)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode prints detected errors and periodic statistics
func runTextMode() error {
	s, err := openSession(nil,
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
		fps.WithObserver(func(t fps.Telegram) {
			if ack, ok := t.(*fps.AckTelegram); ok && ack.Reason != fps.ReasonOK {
				printDeviceError(ack)
				return
			}
			if showAll {
				fmt.Print(fps.FormatTelegram(t, time.Now()))
			}
		}),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Fringe - Stream Monitor\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All telegrams\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	s.client.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go pollPositions(ctx, s.client, monitorInterval, s.log)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(s.client.Statistics().String())
			printPositionSummary(positionWindow(s.client.State().Positions.Valid(), monitorWindow))
			fmt.Println()
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(s.client.Statistics().String())
			return nil
		case <-s.client.Done():
			if err := s.client.Err(); err != nil {
				fmt.Fprintf(os.Stderr, "Connection closed: %v\n", err)
			}
			return nil
		}
	}
}

// printDeviceError prints an ACK carrying a failure reason in highlighted format
func printDeviceError(ack *fps.AckTelegram) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDEVICE ERROR:\033[0m %s (0x%X) index=%d seq=%d\n",
		timestamp, fps.FormatAddress(ack.Address), ack.Address, ack.Index, ack.Sequence)
	fmt.Printf("  Reason: \033[1;33m%s\033[0m (%d)\n\n", ack.Reason, int32(ack.Reason))
}

// positionWindow returns the newest n samples
func positionWindow(samples []fps.Sample, n int) []fps.Sample {
	if n > 0 && len(samples) > n {
		return samples[len(samples)-n:]
	}
	return samples
}
