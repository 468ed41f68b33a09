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
	"github.com/spf13/cobra"
)

var (
	positionsInterval time.Duration
	positionsCount    int
	positionsQuiet    bool
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Sample synchronized positions of all axes",
	Long: `Request synchronized positions at a fixed interval and print each sample.

After --count samples (or Ctrl+C) a summary is printed with the estimated
sample interval, the mean of each axis and its peak-to-peak noise, taken
as twice the mean deviation from a 100-point running mean.`,
	RunE: runPositions,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll a single axis continuously",
	Long: `Request the single-axis position of --axis once. Every answer triggers the
next request, so the axis is read as fast as the sensor answers. The latest
position and the answer rate are printed once per second.`,
	RunE: runPoll,
}

var pollAxis int

func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.Flags().DurationVar(&positionsInterval, "interval", 5*time.Millisecond, "Time between requests")
	positionsCmd.Flags().IntVarP(&positionsCount, "count", "n", 1000, "Number of samples to collect (0 runs until Ctrl+C)")
	positionsCmd.Flags().BoolVarP(&positionsQuiet, "quiet", "q", false, "Only print the summary")

	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().IntVarP(&pollAxis, "axis", "a", 0, "Axis to poll (0-2)")
}

func runPositions(cmd *cobra.Command, args []string) error {
	capacity := positionsCount
	if capacity <= 0 {
		capacity = fps.DefaultBufferCapacity
	}
	state := fps.NewState(capacity)
	samples := make(chan fps.Sample, 256)

	s, err := openSession(nil,
		fps.WithState(state),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
		fps.WithObserver(func(t fps.Telegram) {
			if t.Head().Address != fps.AddrSyncPosition {
				return
			}
			if latest, ok := state.Positions.Latest(); ok {
				select {
				case samples <- latest:
				default:
				}
			}
		}),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Fringe - Synchronized Positions\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Interval: %v\n", positionsInterval)
	fmt.Printf("Press Ctrl+C to stop\n\n")
	if !positionsQuiet {
		fmt.Printf("%-15s %14s %14s %14s\n", "Time", "Axis 0 (µm)", "Axis 1 (µm)", "Axis 2 (µm)")
	}

	s.client.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pollPositions(ctx, s.client, positionsInterval, s.log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	received := 0
loop:
	for positionsCount <= 0 || received < positionsCount {
		select {
		case sample := <-samples:
			received++
			if !positionsQuiet {
				at := time.Unix(0, int64(sample.Time*1e9))
				fmt.Printf("%-15s %14.6f %14.6f %14.6f\n", at.Format("15:04:05.000000"),
					sample.Axis[0], sample.Axis[1], sample.Axis[2])
			}
		case <-sigChan:
			break loop
		case <-s.client.Done():
			if err := s.client.Err(); err != nil {
				fmt.Printf("Connection closed: %v\n", err)
			}
			break loop
		}
	}
	cancel()

	printPositionSummary(state.Positions.Valid())
	return nil
}

func printPositionSummary(samples []fps.Sample) {
	fmt.Printf("\n=== Summary (%d samples) ===\n", len(samples))
	if len(samples) == 0 {
		return
	}
	if interval := fps.SampleInterval(samples); interval > 0 {
		fmt.Printf("Sample interval: %.3f ms (%.1f Hz)\n", interval*1e3, 1/interval)
	}
	mean, p2p := summarizeAxes(samples)
	for a := 0; a < fps.AxisCount; a++ {
		fmt.Printf("Axis %d: mean %12.6f µm, noise %9.3f nm p-p\n", a, mean[a], p2p[a]*1e3)
	}
}

func runPoll(cmd *cobra.Command, args []string) error {
	if pollAxis < 0 || pollAxis >= fps.AxisCount {
		return fmt.Errorf("invalid axis %d (0-%d)", pollAxis, fps.AxisCount-1)
	}

	s, err := openSession(nil)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Fringe - Axis Poll\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Axis: %d\n", pollAxis)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	s.client.Start()
	if err := s.client.QueryPosition(pollAxis); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastUpdates uint64
	for {
		select {
		case <-ticker.C:
			updates := s.client.Statistics().Snapshot().AxisUpdates
			fmt.Printf("[%s] Axis %d: %14.4f µm  (%d answers/s)\n",
				time.Now().Format("15:04:05"), pollAxis, s.client.State().Axes()[pollAxis], updates-lastUpdates)
			if updates == lastUpdates {
				// Lost answer ends the loop; restart it
				if err := s.client.QueryPosition(pollAxis); err != nil {
					return err
				}
			}
			lastUpdates = updates
		case <-sigChan:
			fmt.Print("\n" + s.client.Statistics().String())
			return nil
		case <-s.client.Done():
			return s.client.Err()
		}
	}
}
