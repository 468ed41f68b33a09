// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/spf13/cobra"
)

var tellOffCmd = &cobra.Command{
	Use:   "tell_off",
	Short: "Disable unsolicited TELL telegrams",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(func(w *ackWaiter, c *fps.Client) error {
			if err := w.set(c, fps.AddrTellOff, 0, []int32{1}, requestTimeout); err != nil {
				return err
			}
			fmt.Println("TELL telegrams disabled")
			return nil
		})
	},
}

var zeroCmd = &cobra.Command{
	Use:   "zero [axis|all]",
	Short: "Reset axis positions to zero",
	Long:  `Reset the position of one axis, or every axis when no axis or "all" is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runZero,
}

var alignCmd = &cobra.Command{
	Use:       "align <on|off>",
	Short:     "Enable or disable alignment mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runAlign,
}

var sampleTimeCmd = &cobra.Command{
	Use:   "sample_time [ms]",
	Short: "Read or set the device sample period",
	Long: `Without arguments, print the device sample period. With a period in
milliseconds, write it (the device counts 97.65625 ticks per millisecond).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSampleTime,
}

func init() {
	for _, c := range []*cobra.Command{tellOffCmd, zeroCmd, alignCmd, sampleTimeCmd} {
		rootCmd.AddCommand(c)
		c.Flags().DurationVar(&requestTimeout, "timeout", defaultRequestTimeout, "Time to wait for the acknowledgement")
	}
}

// runControl opens a session without poll-on-receipt and runs fn against it
func runControl(fn func(w *ackWaiter, c *fps.Client) error) error {
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
	return fn(waiter, s.client)
}

func runZero(cmd *cobra.Command, args []string) error {
	axes := []int{0, 1, 2}
	if len(args) == 1 && args[0] != "all" {
		axis, err := strconv.Atoi(args[0])
		if err != nil || axis < 0 || axis >= fps.AxisCount {
			return fmt.Errorf("invalid axis %q (0-%d or all)", args[0], fps.AxisCount-1)
		}
		axes = []int{axis}
	}

	return runControl(func(w *ackWaiter, c *fps.Client) error {
		for _, axis := range axes {
			if err := w.set(c, fps.AddrZero, int32(axis), []int32{1}, requestTimeout); err != nil {
				return fmt.Errorf("axis %d: %w", axis, err)
			}
			fmt.Printf("Axis %d zeroed\n", axis)
		}
		return nil
	})
}

func runAlign(cmd *cobra.Command, args []string) error {
	var enabled int32
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		enabled = 1
	case "off", "0", "false":
	default:
		return fmt.Errorf("invalid state %q (use on or off)", args[0])
	}

	return runControl(func(w *ackWaiter, c *fps.Client) error {
		if err := w.set(c, fps.AddrAlign, 0, []int32{enabled}, requestTimeout); err != nil {
			return err
		}
		fmt.Printf("Alignment mode %s\n", map[int32]string{0: "off", 1: "on"}[enabled])
		return nil
	})
}

func runSampleTime(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		ms, err := strconv.ParseFloat(args[0], 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid sample period %q", args[0])
		}
		ticks := int32(math.Round(ms * fps.SampleTimeTicksPerMs))
		return runControl(func(w *ackWaiter, c *fps.Client) error {
			if err := w.set(c, fps.AddrSampleTime, 0, []int32{ticks}, requestTimeout); err != nil {
				return err
			}
			fmt.Printf("Sample time set to %.3f ms (%d ticks)\n", float64(ticks)/fps.SampleTimeTicksPerMs, ticks)
			return nil
		})
	}

	return runControl(func(w *ackWaiter, c *fps.Client) error {
		ack, err := w.transact(c, fps.NewGet(fps.AddrSampleTime, 0, c.Sequencer().Next()), requestTimeout)
		if err != nil {
			return err
		}
		if err := fps.AckError(ack); err != nil {
			return err
		}
		if len(ack.Data) == 0 {
			return fmt.Errorf("sample time answer carries no data")
		}
		fmt.Printf("Sample time: %.3f ms (%d ticks)\n", float64(ack.Data[0])/fps.SampleTimeTicksPerMs, ack.Data[0])
		return nil
	})
}
