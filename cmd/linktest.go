// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/spf13/cobra"
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test raw connection stability",
	Long: `Open the connection without sending any requests and frame whatever
arrives, logging each telegram, malformed frame or error.

A sensor only talks when asked, so on a quiet link this mostly shows that the
connection stays open. Useful for debugging bridges and cabling.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runLinkTest,
}

var linkTestDuration int

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
}

// countingReader counts the bytes passed through it
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

type linkEvent struct {
	telegram fps.Telegram
	err      error
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, connInfo, err := OpenConnection(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	counter := &countingReader{r: conn}
	reader := fps.NewReader(counter)
	events := make(chan linkEvent, 100)

	go func() {
		for {
			t, err := reader.ReadTelegram()
			if err != nil && !errors.Is(err, fps.ErrMalformedTelegram) {
				events <- linkEvent{err: err}
				return
			}
			events <- linkEvent{telegram: t, err: err}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(linkTestDuration) * time.Second)
	telegrams := 0
	malformed := 0

	results := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Telegrams received: %d\n", telegrams)
		fmt.Printf("Malformed telegrams: %d\n", malformed)
		fmt.Printf("Bytes received: %d\n", counter.n.Load())
		fmt.Printf("Result: %s\n", result)
	}

	fmt.Printf("Listening for data...\n\n")

	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	for time.Now().Before(endTime) {
		select {
		case ev := <-events:
			switch {
			case ev.err == nil:
				telegrams++
				fmt.Print(fps.FormatTelegram(ev.telegram, time.Now()))
			case errors.Is(ev.err, fps.ErrMalformedTelegram):
				malformed++
				fmt.Printf("[%s] Malformed: %v\n", time.Now().Format("15:04:05.000"), ev.err)
			default:
				fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), ev.err)
				results("FAILED (connection error)")
				os.Exit(1)
			}

		case <-heartbeat.C:
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	results("PASSED (connection stable)")
	return nil
}
