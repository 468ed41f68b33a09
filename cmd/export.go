// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
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
	exportDuration time.Duration
	exportInterval time.Duration
	exportOutput   string
	exportCapacity int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Capture synchronized positions to a CBOR file",
	Long: `Request synchronized positions for --duration and write the captured samples,
the latest axis positions and the register value table as CBOR.

Each sample is encoded as the array [time, axis0, axis1, axis2] with time in
unix seconds and positions in µm. Use --output - to write to stdout.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().DurationVarP(&exportDuration, "duration", "d", 10*time.Second, "Capture duration")
	exportCmd.Flags().DurationVar(&exportInterval, "interval", 5*time.Millisecond, "Time between requests")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "capture.cbor", "Output file")
	exportCmd.Flags().IntVar(&exportCapacity, "capacity", fps.DefaultBufferCapacity, "Maximum number of samples kept")
}

func runExport(cmd *cobra.Command, args []string) error {
	state := fps.NewState(exportCapacity)
	s, err := openSession(nil,
		fps.WithState(state),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	// Progress goes to stderr so the capture can be piped
	fmt.Fprintf(os.Stderr, "Fringe - Position Export\n")
	fmt.Fprintf(os.Stderr, "Connection: %s\n", s.info)
	fmt.Fprintf(os.Stderr, "Capturing for %v...\n", exportDuration)

	s.client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), exportDuration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pollPositions(ctx, s.client, exportInterval, s.log)

	capture := fps.NewCapture(state)
	if err := writeCaptureFile(exportOutput, capture); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Wrote %d samples and %d registers to %s\n",
		len(capture.Samples), len(capture.Values), exportOutput)
	return nil
}

func writeCaptureFile(path string, capture *fps.Capture) error {
	if path == "-" {
		w := bufio.NewWriter(os.Stdout)
		if err := fps.WriteCapture(w, capture); err != nil {
			return err
		}
		return w.Flush()
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := fps.WriteCapture(w, capture); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
