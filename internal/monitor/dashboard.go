package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	maxMethodRows   = 10
	methodColWidth  = 36
)

// Model represents the BubbleTea dashboard model
type Model struct {
	url        string
	interval   time.Duration
	client     *StatsClient
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool

	hasPrev   bool
	prevCalls uint64
	prevTime  time.Time

	callRate        float64
	callRatePeak    float64
	rateHistory     []float64
	latencyHistory  []float64
	failureHistory  []float64
	loadProgress    progress.Model
	failureProgress progress.Model
}

// NewModel creates a dashboard polling the admin API at url every interval.
func NewModel(url string, interval time.Duration) Model {
	return Model{
		url:      url,
		interval: interval,
		client:   NewStatsClient(url),
		loadProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(40),
		),
		failureProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		rateHistory:    make([]float64, 0, historySize),
		latencyHistory: make([]float64, 0, historySize),
		failureHistory: make([]float64, 0, historySize),
		callRatePeak:   1.0,
	}
}

// failureBadge colors a failure ratio.
func failureBadge(ratio float64) string {
	switch {
	case ratio >= failingRatio:
		return errorStyle.Render("[✗]")
	case ratio >= warnRatio:
		return warningStyle.Render("[⚠]")
	}
	return healthyStyle.Render("[✓]")
}

// statusBadge summarizes the pipeline from its health and failure ratio.
func statusBadge(health string, failureRatio float64) string {
	switch {
	case health != "" && health != "ok":
		return errorStyle.Render("✗ " + strings.ToUpper(health))
	case failureRatio >= failingRatio:
		return errorStyle.Render("✗ FAILING")
	case failureRatio >= warnRatio:
		return warningStyle.Render("⚠ WARN")
	}
	return healthyStyle.Render("✓ HEALTHY")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

func ratio(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// Message types
type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchSnapshot(m.client),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot polls the admin API once.
func fetchSnapshot(client *StatsClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snap, err := client.Fetch(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snap)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.client)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchSnapshot(m.client),
		)

	case snapshotMsg:
		m.observe(Snapshot(msg))
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// observe folds a snapshot into the rolling histories. The call rate is the
// delta against the previous poll; a shrinking total means the pipeline
// restarted and resets the baseline.
func (m *Model) observe(snap Snapshot) {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	calls, failures := snap.Totals()

	m.callRate = 0
	if m.hasPrev && calls >= m.prevCalls {
		if elapsed := snap.TakenAt.Sub(m.prevTime).Seconds(); elapsed > 0 {
			m.callRate = float64(calls-m.prevCalls) / elapsed
		}
	}
	m.hasPrev = true
	m.prevCalls = calls
	m.prevTime = snap.TakenAt

	if m.callRate > m.callRatePeak {
		m.callRatePeak = m.callRate
	}
	m.rateHistory = appendToHistory(m.rateHistory, m.callRate)
	m.latencyHistory = appendToHistory(m.latencyHistory, float64(snap.MeanLatency())/float64(time.Millisecond))
	m.failureHistory = appendToHistory(m.failureHistory, ratio(failures, calls)*100)

	m.snapshot = snap
	m.lastUpdate = snap.TakenAt
	m.err = nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.err != nil {
		return m.renderError()
	}

	return m.renderDashboard()
}

func (m Model) renderFooter() string {
	return footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
}

// renderError renders the error view
func (m Model) renderError() string {
	header := headerStyle.Render(" tracelog Monitor ")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot reach the tracelog admin API") + "\n\n")
	b.WriteString(dimStyle.Render("URL: ") + valueStyle.Render(m.url) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Start it with: tracelog serve") + "\n")
	b.WriteString("\n" + m.renderFooter() + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

// renderDashboard renders the main dashboard view with sparklines and progress bars
func (m Model) renderDashboard() string {
	var b strings.Builder

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	calls, failures := m.snapshot.Totals()
	failRatio := ratio(failures, calls)

	b.WriteString(headerStyle.Render(" tracelog Monitor ") + "\n")
	b.WriteString(fmt.Sprintf("%s   %s   %s\n",
		statusBadge(m.snapshot.Health, failRatio),
		dimStyle.Render(m.url),
		dimStyle.Render(lastUpdateStr)))

	b.WriteString("\n" + sectionStyle.Render("┃ Calls") + "\n")
	b.WriteString(labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(m.callRate)) +
		"   " + createSparkline(m.rateHistory) + "\n")
	b.WriteString(labelStyle.Render("  Latency (mean): ") +
		valueStyle.Render(FormatLatency(m.snapshot.MeanLatency())) +
		"   " + createSparkline(m.latencyHistory) + "\n")

	load := 0.0
	if m.callRatePeak > 0 {
		load = m.callRate / m.callRatePeak
		if load > 1.0 {
			load = 1.0
		}
	}
	b.WriteString(labelStyle.Render("  Load: ") +
		m.loadProgress.ViewAs(load) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", load*100)) + "\n")
	b.WriteString(labelStyle.Render("  Total: ") +
		valueStyle.Render(FormatCount(calls)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Failures") + "\n")
	b.WriteString(labelStyle.Render("  Ratio: ") +
		m.failureProgress.ViewAs(failRatio) +
		" " + dimStyle.Render(FormatPercentage(failRatio)) +
		" " + failureBadge(failRatio) + "\n")
	b.WriteString(labelStyle.Render("  Failed calls: ") +
		valueStyle.Render(FormatCount(failures)) + "\n")
	b.WriteString(labelStyle.Render("  Sink failures: ") +
		valueStyle.Render(FormatCount(m.snapshot.SinkFailures)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Methods") + "\n")
	b.WriteString(m.renderMethods())

	if m.snapshot.Telemetry != "" {
		b.WriteString("\n" + labelStyle.Render("  Telemetry: ") + valueStyle.Render(m.snapshot.Telemetry) + "\n")
	}

	b.WriteString("\n" + m.renderFooter())

	return containerStyle.Render(b.String())
}

// renderMethods lists the busiest methods.
func (m Model) renderMethods() string {
	if len(m.snapshot.Methods) == 0 {
		return dimStyle.Render("  waiting for calls") + "\n"
	}

	row := func(method, calls, failed, mean, slowest string) string {
		return fmt.Sprintf("  %-*s %8s %8s %10s %10s", methodColWidth, method, calls, failed, mean, slowest)
	}

	var b strings.Builder
	b.WriteString(columnStyle.Render(row("METHOD", "CALLS", "FAILED", "MEAN", "MAX")) + "\n")
	for i, ms := range m.snapshot.Methods {
		if i == maxMethodRows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  … %d more", len(m.snapshot.Methods)-maxMethodRows)) + "\n")
			break
		}
		line := row(
			truncate(ms.Method, methodColWidth),
			FormatCount(ms.Calls),
			FormatCount(ms.Failures),
			FormatLatency(ms.Window.Mean),
			FormatLatency(ms.Window.Max),
		)
		if ms.Failures > 0 {
			b.WriteString(warningStyle.Render(line) + "\n")
			continue
		}
		b.WriteString(valueStyle.Render(line) + "\n")
	}
	return b.String()
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, url string, interval time.Duration, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(NewModel(url, interval), opts...).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
