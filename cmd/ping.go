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

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure request round-trip time to the sensor",
	Long: `Send GET requests for the sample time register and wait for each ACK.

This command tests bidirectional communication with the sensor or a bridge
in front of it. Each request carries a fresh sequence number; answers to
other requests are ignored.

This is useful for verifying:
  - The connection is established
  - HTTP Basic authentication works (WebSocket bridge)
  - The sensor is answering requests
  - Round-trip latency is stable

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	waiter := newAckWaiter()
	s, err := openSession(nil,
		fps.WithObserver(waiter.observe),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()
	s.client.Start()

	fmt.Printf("Fringe - Ping Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var minRTT, maxRTT, totalRTT time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		req := fps.NewGet(fps.AddrSampleTime, 0, s.client.Sequencer().Next())
		startTime := time.Now()
		ack, err := waiter.transact(s.client, req, time.Duration(pingTimeout)*time.Second)
		rtt := time.Since(startTime)

		switch {
		case errors.Is(err, ErrTimeout):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		default:
			fmt.Printf("ACK seq=%d reason=%s, rtt=%v\n", ack.Sequence, ack.Reason, rtt.Round(time.Microsecond))
			successCount++
			totalRTT += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			minRTT.Round(time.Microsecond),
			(totalRTT / time.Duration(successCount)).Round(time.Microsecond),
			maxRTT.Round(time.Microsecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
