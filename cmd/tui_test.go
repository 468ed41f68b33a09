// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	clientConn, deviceConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		deviceConn.Close()
	})
	c := fps.NewClient(clientConn)
	_, sink := newTUILogger(zap.InfoLevel)
	p := &poller{client: c, interval: time.Millisecond, log: zap.NewNop()}
	return initialModel("test", c, p, sink, 100)
}

// ============================================================
// Summary Tests
// ============================================================

func TestSummarize(t *testing.T) {
	if sum := summarize(nil, 10); sum.hasData || sum.samples != 0 {
		t.Errorf("empty input should have no data, got %+v", sum)
	}

	samples := make([]fps.Sample, 50)
	for i := range samples {
		samples[i] = fps.Sample{
			Time: float64(i) * 0.01,
			Axis: [fps.AxisCount]float64{float64(i), 1, 2},
		}
	}

	sum := summarize(samples, 10)
	if !sum.hasData || sum.samples != 50 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.latest.Axis[0] != 49 {
		t.Errorf("latest axis 0 = %v, want 49", sum.latest.Axis[0])
	}
	// Mean over the newest 10: 40..49
	if sum.mean[0] != 44.5 {
		t.Errorf("mean axis 0 = %v, want 44.5", sum.mean[0])
	}
	if d := sum.interval - 0.01; d > 1e-9 || d < -1e-9 {
		t.Errorf("interval = %v, want 0.01", sum.interval)
	}
}

func TestValueRows(t *testing.T) {
	long := make([]int32, 40)
	rows := valueRows([]fps.Value{
		{Key: fps.Key{Address: fps.AddrSampleTime, Index: 0}, Opcode: fps.OpAck, Data: []int32{977}, Updated: time.Now()},
		{Key: fps.Key{Address: 0x100, Index: 1}, Opcode: fps.OpTell, Data: long, Updated: time.Now()},
	})

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if !strings.HasPrefix(rows[0][0], "0x68E") {
		t.Errorf("address column = %q", rows[0][0])
	}
	if rows[0][2] != "ACK" {
		t.Errorf("opcode column = %q, want ACK", rows[0][2])
	}
	if len(rows[1][3]) > 36 || !strings.HasSuffix(rows[1][3], "...") {
		t.Errorf("long data not truncated: %q", rows[1][3])
	}
}

// ============================================================
// Model Tests
// ============================================================

func TestModel_ResetStatistics(t *testing.T) {
	m := newTestModel(t)
	m.client.Statistics().RecordMalformed()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = updated.(model)

	if n := m.client.Statistics().Snapshot().Malformed; n != 0 {
		t.Errorf("malformed = %d after reset, want 0", n)
	}
	if len(m.eventLog) != 1 || m.eventLog[0].message != "Statistics reset" {
		t.Errorf("unexpected event log %+v", m.eventLog)
	}
}

func TestModel_ClearSamples(t *testing.T) {
	m := newTestModel(t)
	m.client.State().Positions.Push(fps.NewSample(time.Now(), [fps.AxisCount]float64{1, 2, 3}))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m = updated.(model)

	if n := m.client.State().Positions.Len(); n != 0 {
		t.Errorf("buffer holds %d samples after clear, want 0", n)
	}
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(t)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !updated.(model).quitting {
		t.Error("model should be quitting")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_EventLogLimit(t *testing.T) {
	m := newTestModel(t)
	for i := 0; i < 150; i++ {
		updated, _ := m.Update(logMsg{timestamp: time.Now(), message: "warn"})
		m = updated.(model)
	}
	if len(m.eventLog) != m.maxLogEntries {
		t.Errorf("event log holds %d entries, want %d", len(m.eventLog), m.maxLogEntries)
	}
}

func TestModel_ViewWaiting(t *testing.T) {
	m := newTestModel(t)
	view := m.View()
	for _, want := range []string{"POSITION MONITOR", "Waiting for positions", "no events yet"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestLogChannel_ForwardsEntries(t *testing.T) {
	log, sink := newTUILogger(zap.InfoLevel)
	log.Warn("device reported error")
	log.Debug("not shown")

	select {
	case entry := <-sink.ch:
		if !strings.Contains(entry.message, "device reported error") || !entry.isError {
			t.Errorf("unexpected entry %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatal("no entry forwarded")
	}

	select {
	case entry := <-sink.ch:
		t.Errorf("debug entry should be filtered, got %+v", entry)
	default:
	}
}
