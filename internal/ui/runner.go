package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/filexfer"
)

// ErrInterrupted is returned by Run when the user quits the progress display.
var ErrInterrupted = errors.New("interrupted")

// TransferOperation performs a transfer, reporting progress through
// onProgress. The returned details are shown in the success box.
type TransferOperation func(onProgress filexfer.ProgressCallback) ([]Param, error)

// TransferRunner prints a header, runs a transfer with a progress display
// and prints the result box.
type TransferRunner struct {
	Title   string
	Command string
	Params  []Param
	Output  io.Writer

	// Interactive selects the Bubble Tea progress bar. Otherwise progress
	// is printed as a line per 10%.
	Interactive bool

	width int
}

// NewTransferRunner creates a runner writing to out, or os.Stdout if nil.
func NewTransferRunner(title, command string, out io.Writer, params ...Param) *TransferRunner {
	if out == nil {
		out = os.Stdout
	}
	return &TransferRunner{
		Title:       title,
		Command:     command,
		Params:      params,
		Output:      out,
		Interactive: IsTerminal(out),
		width:       GetTerminalWidth(),
	}
}

// Run executes op with progress reporting.
func (r *TransferRunner) Run(op TransferOperation) error {
	start := time.Now()

	fmt.Fprintln(r.Output, NewHeader(r.Title, r.Command, r.Params...).SetWidth(r.width).Render())
	fmt.Fprintln(r.Output)

	var (
		details []Param
		err     error
	)
	if r.Interactive {
		details, err = r.runProgram(op)
	} else {
		details, err = r.runPlain(op)
	}
	duration := time.Since(start).Round(time.Millisecond)

	fmt.Fprintln(r.Output)
	if err != nil {
		result := NewFailureResult(r.Title+" failed", err, Troubleshooting(err))
		fmt.Fprintln(r.Output, result.SetWidth(r.width).Render())
		return err
	}

	result := NewSuccessResult(r.Title+" complete", details...)
	result.AddDetail("Duration", duration.String())
	fmt.Fprintln(r.Output, result.SetWidth(r.width).Render())
	return nil
}

type outcome struct {
	details []Param
	err     error
}

func (r *TransferRunner) runProgram(op TransferOperation) ([]Param, error) {
	p := tea.NewProgram(NewTransferModel(r.Title+"..."), tea.WithOutput(r.Output))

	results := make(chan outcome, 1)
	go func() {
		details, err := op(func(pr filexfer.Progress) {
			p.Send(ProgressMsg(pr))
		})
		results <- outcome{details, err}
		p.Send(DoneMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		res := <-results
		return res.details, errors.Join(res.err, fmt.Errorf("progress display: %w", err))
	}
	if m, ok := final.(TransferModel); ok && m.Interrupted() {
		return nil, ErrInterrupted
	}
	res := <-results
	return res.details, res.err
}

func (r *TransferRunner) runPlain(op TransferOperation) ([]Param, error) {
	next := 0.0
	return op(func(pr filexfer.Progress) {
		if pr.Percentage >= next || pr.Packet == pr.TotalPackets {
			fmt.Fprintln(r.Output, ProgressInfoStyle.Render(DescribeProgress(pr)))
			for next <= pr.Percentage {
				next += 10
			}
		}
	})
}

// Troubleshooting returns hints for a failed transfer.
func Troubleshooting(err error) []string {
	var remote *filexfer.RemoteError
	switch {
	case errors.As(err, &remote):
		return []string{
			"The receiver refused the request, see the error above",
			"Names must be relative paths inside the receiver's root",
		}
	case engine.IsTimeout(err):
		return []string{
			"Check the receiver is running: pktlink scan",
			"Raise engine.read_timeout in the config file",
		}
	case engine.IsTransport(err):
		return []string{
			"The link corrupted every attempt of one packet",
			"Raise engine.transmit_retries or lower transfer.chunk_size",
		}
	case engine.IsFraming(err):
		return []string{
			"Both ends must run the same protocol",
			"Capture the exchange with --capture and inspect it with tools/capture-dump.go",
		}
	case engine.IsClosed(err):
		return []string{"The peer closed the connection"}
	default:
		return nil
	}
}
