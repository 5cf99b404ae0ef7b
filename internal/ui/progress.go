package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/pktlink/internal/filexfer"
)

// ProgressMsg carries a transfer progress report into a TransferModel.
type ProgressMsg filexfer.Progress

// DoneMsg ends a TransferModel.
type DoneMsg struct {
	Err error
}

// TransferModel is a Bubble Tea model showing a progress bar for one
// transfer. It quits on DoneMsg or ctrl+c.
type TransferModel struct {
	label       string
	bar         progress.Model
	last        filexfer.Progress
	done        bool
	err         error
	interrupted bool
}

// NewTransferModel creates a model with the given label above the bar.
func NewTransferModel(label string) TransferModel {
	return TransferModel{
		label: label,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth(GetTerminalWidth())),
		),
	}
}

func barWidth(termWidth int) int {
	return min(max(termWidth-20, 20), 50)
}

// Init implements tea.Model
func (m TransferModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.interrupted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = barWidth(msg.Width)
	case ProgressMsg:
		m.last = filexfer.Progress(msg)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model
func (m TransferModel) View() string {
	var b strings.Builder
	b.WriteString(ProgressLabelStyle.Render(m.label))
	b.WriteString("\n\n  ")
	b.WriteString(m.bar.ViewAs(m.last.Percentage / 100))
	b.WriteString("\n")
	b.WriteString(ProgressInfoStyle.Render(DescribeProgress(m.last)))
	b.WriteString("\n")
	return b.String()
}

// Interrupted reports whether the user quit before the transfer finished.
func (m TransferModel) Interrupted() bool {
	return m.interrupted
}

// Progress returns the last progress report received.
func (m TransferModel) Progress() filexfer.Progress {
	return m.last
}

// DescribeProgress renders a one-line summary of p.
func DescribeProgress(p filexfer.Progress) string {
	s := fmt.Sprintf("%5.1f%%  packet %d/%d  %s / %s",
		p.Percentage, p.Packet, p.TotalPackets,
		FormatBytes(p.Bytes), FormatBytes(p.TotalBytes))
	if rate := Rate(p.Bytes, p.ElapsedTime); rate != "" {
		s += "  " + rate
	}
	return s
}

// Rate renders a throughput, or "" when it cannot be computed.
func Rate(n int64, elapsed time.Duration) string {
	if n <= 0 || elapsed <= 0 {
		return ""
	}
	return FormatBytes(int64(float64(n)/elapsed.Seconds())) + "/s"
}
