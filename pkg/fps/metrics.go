// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports Statistics and State as Prometheus metrics, read at
// scrape time.
type Collector struct {
	stats *Statistics
	state *State

	telegrams    *prometheus.Desc
	errors       *prometheus.Desc
	sent         *prometheus.Desc
	samples      *prometheus.Desc
	axis         *prometheus.Desc
	buffered     *prometheus.Desc
	registers    *prometheus.Desc
	lastTelegram *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector. namespace defaults to "fps".
func NewCollector(namespace string, stats *Statistics, state *State) *Collector {
	if namespace == "" {
		namespace = "fps"
	}
	return &Collector{
		stats: stats,
		state: state,
		telegrams: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "telegrams_received_total"),
			"Decoded telegrams by opcode", []string{"opcode"}, nil),
		errors: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "errors_total"),
			"Protocol errors by kind", []string{"kind"}, nil),
		sent: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "telegrams_sent_total"),
			"Transmitted telegrams", []string{"origin"}, nil),
		samples: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "position_samples_total"),
			"Synchronized position samples pushed", nil, nil),
		axis: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "axis_position_micrometres"),
			"Latest axis position", []string{"axis"}, nil),
		buffered: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "buffered_samples"),
			"Samples held in the position buffer", nil, nil),
		registers: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "value_table_entries"),
			"Registers held in the value table", nil, nil),
		lastTelegram: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "last_telegram_timestamp_seconds"),
			"Time of the last received telegram", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.telegrams
	ch <- c.errors
	ch <- c.sent
	ch <- c.samples
	ch <- c.axis
	ch <- c.buffered
	ch <- c.registers
	ch <- c.lastTelegram
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.telegrams, s.Sets, OpSet.String())
	counter(c.telegrams, s.Gets, OpGet.String())
	counter(c.telegrams, s.Acks, OpAck.String())
	counter(c.telegrams, s.Tells, OpTell.String())

	counter(c.errors, s.Malformed, "malformed")
	counter(c.errors, s.DeviceErrors, "device")
	counter(c.errors, s.SequenceMismatches, "sequence")
	counter(c.errors, s.SendErrors, "send")

	counter(c.sent, s.SentTelegrams-s.FollowUps, "caller")
	counter(c.sent, s.FollowUps, "follow_up")

	counter(c.samples, s.PositionSamples)

	ch <- prometheus.MustNewConstMetric(c.lastTelegram, prometheus.GaugeValue,
		float64(s.LastUpdateTime.UnixNano())/1e9)

	if c.state == nil {
		return
	}
	for i, pos := range c.state.Axes() {
		ch <- prometheus.MustNewConstMetric(c.axis, prometheus.GaugeValue, pos, strconv.Itoa(i))
	}
	ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(c.state.Positions.Len()))
	ch <- prometheus.MustNewConstMetric(c.registers, prometheus.GaugeValue, float64(c.state.Values.Len()))
}
