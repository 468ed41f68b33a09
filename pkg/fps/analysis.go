// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import "math"

// SampleInterval returns the mean spacing between consecutive sample
// timestamps in seconds, or 0 with fewer than two samples
func SampleInterval(samples []Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	return (samples[len(samples)-1].Time - samples[0].Time) / float64(len(samples)-1)
}

// AxisValues extracts one axis from samples
func AxisValues(samples []Sample, axis int) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Axis[axis]
	}
	return out
}

// RunningMean smooths x with a window of n points. The first n points are
// cumulative means; afterwards each point is the mean of the n points
// starting at it, shrinking at the tail.
func RunningMean(x []float64, n int) []float64 {
	if n <= 0 || len(x) < n {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}

	out := make([]float64, len(x))
	var sum float64
	for i := 0; i < n; i++ {
		sum += x[i]
		out[i] = sum / float64(i+1)
	}
	for i := n; i < len(x); i++ {
		end := min(i+n, len(x))
		var s float64
		for _, v := range x[i:end] {
			s += v
		}
		out[i] = s / float64(end-i)
	}
	return out
}

// PeakToPeak estimates peak-to-peak noise of x as twice the mean absolute
// deviation from its running mean over window points
func PeakToPeak(x []float64, window int) float64 {
	if len(x) == 0 {
		return 0
	}
	avg := RunningMean(x, window)
	var dev float64
	for i, v := range x {
		dev += math.Abs(v - avg[i])
	}
	return 2 * dev / float64(len(x))
}
