// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings and info
}

// Messages
type tickMsg time.Time
type logMsg logEntry

// logChannel is a zapcore.WriteSyncer that forwards encoded entries to the
// TUI instead of stderr, which the alt screen would overwrite
type logChannel struct {
	ch chan logEntry
}

func (l *logChannel) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	entry := logEntry{
		timestamp: time.Now(),
		message:   line,
		isError:   strings.Contains(line, "WARN") || strings.Contains(line, "ERROR"),
	}
	select {
	case l.ch <- entry:
	default:
	}
	return len(p), nil
}

func (l *logChannel) Sync() error { return nil }

// newTUILogger builds a logger whose entries end up in the event log
func newTUILogger(level zapcore.Level) (*zap.Logger, *logChannel) {
	sink := &logChannel{ch: make(chan logEntry, 256)}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), sink, level)
	return zap.New(core), sink
}

func waitForLog(sink *logChannel) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-sink.ch)
	}
}

// poller runs and pauses the synchronized position loop
type poller struct {
	mu       sync.Mutex
	client   *fps.Client
	interval time.Duration
	log      *zap.Logger
	cancel   context.CancelFunc
}

func (p *poller) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// toggle starts the loop if stopped and stops it if running
func (p *poller) toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go pollPositions(ctx, p.client, p.interval, p.log)
	return true
}

func (p *poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

type keyMap struct {
	Pause key.Binding
	Reset key.Binding
	Clear key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Reset, k.Clear, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var monitorKeys = keyMap{
	Pause: key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause/resume polling")),
	Reset: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset statistics")),
	Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear samples")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// axisSummary is recomputed once per tick
type axisSummary struct {
	samples  int
	interval float64 // seconds
	latest   fps.Sample
	hasData  bool
	mean     [fps.AxisCount]float64
	p2p      [fps.AxisCount]float64
}

// TUI model
type model struct {
	connInfo      string
	client        *fps.Client
	poller        *poller
	sink          *logChannel
	noiseSamples  int
	summary       axisSummary
	values        table.Model
	help          help.Model
	eventLog      []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

func initialModel(connInfo string, client *fps.Client, p *poller, sink *logChannel, noiseSamples int) model {
	values := table.New(
		table.WithColumns([]table.Column{
			{Title: "Address", Width: 18},
			{Title: "Index", Width: 6},
			{Title: "Opcode", Width: 7},
			{Title: "Data", Width: 36},
			{Title: "Age", Width: 8},
		}),
		table.WithHeight(6),
	)

	return model{
		connInfo:      connInfo,
		client:        client,
		poller:        p,
		sink:          sink,
		noiseSamples:  noiseSamples,
		values:        values,
		help:          help.New(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForLog(m.sink),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, monitorKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, monitorKeys.Pause):
			if m.poller.toggle() {
				m.addLogEntry("Polling resumed", false)
			} else {
				m.addLogEntry("Polling paused", false)
			}
		case key.Matches(msg, monitorKeys.Reset):
			m.client.Statistics().Reset()
			m.addLogEntry("Statistics reset", false)
		case key.Matches(msg, monitorKeys.Clear):
			m.client.State().Positions.Reset()
			m.addLogEntry("Samples cleared", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.summary = summarize(m.client.State().Positions.Valid(), m.noiseSamples)
		m.values.SetRows(valueRows(m.client.State().Values.Snapshot()))
		select {
		case <-m.client.Done():
			if err := m.client.Err(); err != nil {
				m.addLogEntry(fmt.Sprintf("Connection closed: %v", err), true)
			}
			return m, nil
		default:
		}
		return m, tickCmd()

	case logMsg:
		m.addLogEntry(msg.message, msg.isError)
		return m, waitForLog(m.sink)
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// summarize computes the axis panel from the newest n samples
func summarize(samples []fps.Sample, n int) axisSummary {
	sum := axisSummary{samples: len(samples)}
	if len(samples) == 0 {
		return sum
	}
	sum.latest = samples[len(samples)-1]
	sum.hasData = true
	samples = positionWindow(samples, n)
	sum.interval = fps.SampleInterval(samples)
	sum.mean, sum.p2p = summarizeAxes(samples)
	return sum
}

func valueRows(values []fps.Value) []table.Row {
	rows := make([]table.Row, len(values))
	for i, v := range values {
		data := fps.FormatValues(v.Data)
		if len(data) > 36 {
			data = data[:33] + "..."
		}
		rows[i] = table.Row{
			fmt.Sprintf("0x%X %s", v.Address, fps.FormatAddress(v.Address)),
			fmt.Sprintf("%d", v.Index),
			v.Opcode.String(),
			data,
			time.Since(v.Updated).Round(time.Second).String(),
		}
	}
	return rows
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("FRINGE - POSITION MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Polling: %s",
		m.connInfo, func() string {
			if m.poller.running() {
				return "running"
			}
			return "paused"
		}())))
	s.WriteString("\n\n")

	// Positions
	sum := m.summary
	posContent := strings.Builder{}
	if !sum.hasData {
		posContent.WriteString(warningStyle.Render("⏳ Waiting for positions..."))
	} else {
		posContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Samples:"), statsValueStyle.Render(fmt.Sprintf("%d", sum.samples)),
			statsLabelStyle.Render("Interval:"), statsValueStyle.Render(fmt.Sprintf("%.3f ms", sum.interval*1e3)),
		))
		for a := 0; a < fps.AxisCount; a++ {
			posContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
				statsLabelStyle.Render(fmt.Sprintf("Axis %d:", a)),
				statsValueStyle.Render(fmt.Sprintf("%14.6f µm", sum.latest.Axis[a])),
				statsLabelStyle.Render("Mean:"),
				statsValueStyle.Render(fmt.Sprintf("%14.6f µm", sum.mean[a])),
				statsLabelStyle.Render("Noise:"),
				statsValueStyle.Render(fmt.Sprintf("%8.3f nm p-p", sum.p2p[a]*1e3)),
			))
			if a < fps.AxisCount-1 {
				posContent.WriteString("\n")
			}
		}
	}
	s.WriteString(boxStyle.Render(posContent.String()))
	s.WriteString("\n\n")

	// Statistics
	c := m.client.Statistics().Snapshot()
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Received:"), statsValueStyle.Render(fmt.Sprintf("%d", c.TotalTelegrams)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", c.SentTelegrams)),
		statsLabelStyle.Render("Errors:"), func() string {
			if c.Errors() > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", c.Errors()))
			}
			return statsValueStyle.Render("0")
		}(),
	))
	if c.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf(" (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			headerStyle.Render("malformed"), c.Malformed,
			headerStyle.Render("device"), c.DeviceErrors,
			headerStyle.Render("sequence"), c.SequenceMismatches,
			headerStyle.Render("send"), c.SendErrors,
		))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Telegram Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f tel/s", c.TelegramRate)),
		statsLabelStyle.Render("Sample Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", c.SampleRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if c.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
		}(),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Registers (only shown once something lands in the value table)
	if len(m.values.Rows()) > 0 {
		s.WriteString(statsLabelStyle.Render("Registers:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.values.View()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 22
	if len(m.values.Rows()) > 0 {
		logHeight -= 10
	}
	if logHeight < 3 {
		logHeight = 3
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.help.View(monitorKeys))

	return s.String()
}
