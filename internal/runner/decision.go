package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Decision is the operator's answer after a cell fails or times out.
type Decision int

const (
	// Continue resumes execution at the next cell.
	Continue Decision = iota
	// Stop halts the run before the next cell.
	Stop
	// Quit halts the run before the next cell, like Stop, but chosen
	// explicitly rather than as the cautious default.
	Quit
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// DecisionProvider supplies the operator's continue/stop/quit choice after a
// failed or timed-out cell. Implementations block until a decision is
// available or ctx is cancelled.
type DecisionProvider interface {
	Ask(ctx context.Context) (Decision, error)
}

// TerminalDecider prompts on the real terminal and reads a y/n/q answer from
// standard input. Anything other than "y" or "q" is treated as "n", so a
// stray newline stops the run rather than plowing on.
type TerminalDecider struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalDecider creates a decider reading from in and prompting on out.
func NewTerminalDecider(in io.Reader, out io.Writer) *TerminalDecider {
	return &TerminalDecider{in: bufio.NewReader(in), out: out}
}

// Ask prompts the operator and blocks for an answer.
func (d *TerminalDecider) Ask(ctx context.Context) (Decision, error) {
	fmt.Fprint(d.out, "\nContinue with next cell? (y/n/q): ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := d.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return Stop, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return Stop, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y":
			return Continue, nil
		case "q":
			return Quit, nil
		default:
			return Stop, nil
		}
	}
}
