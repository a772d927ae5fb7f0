package runner

import (
	"regexp"
	"strings"
	"time"

	"github.com/nbrun/nbrun/internal/kernel"
)

// ansiPattern matches CSI escape sequences, which Python tracebacks are full
// of when the kernel colorizes them.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// Router renders classified kernel messages into the sink: stream fragments
// verbatim on the raw channel, everything else as formatted lines.
type Router struct {
	sink *Sink

	// failed is set when a Failure message arrives for the current cell.
	// The runner resets it before each submission and folds it into the
	// cell's verdict alongside the terminal reply status.
	failed bool
}

// NewRouter creates a Router writing to sink.
func NewRouter(sink *Sink) *Router {
	return &Router{sink: sink}
}

// Reset clears per-cell state. Called before each cell submission.
func (r *Router) Reset() {
	r.failed = false
}

// SawFailure reports whether a Failure message arrived since the last Reset.
func (r *Router) SawFailure() bool {
	return r.failed
}

// Route renders one message. Ignored messages never reach the Router; the
// kernel drops them at the transport boundary.
func (r *Router) Route(msg kernel.Message) {
	switch m := msg.(type) {
	case kernel.Stream:
		r.sink.Raw(m.Text)

	case kernel.Result:
		r.sink.Line("\nOut: %s", m.Text)

	case kernel.Display:
		r.sink.Line("\nDisplay: %s", m.Text)

	case kernel.Failure:
		r.failed = true
		r.sink.Line("\n%s: %s", m.Name, m.Value)
		for _, entry := range m.Traceback {
			r.sink.Line("%s", stripControl(entry))
		}

	case kernel.Status:
		switch m.State {
		case kernel.StateBusy:
			r.sink.Line("Busy at %s", time.Now().Format("15:04:05"))
		case kernel.StateIdle:
			r.sink.Line("Idle at %s", time.Now().Format("15:04:05"))
		}
	}
}

// stripControl removes ANSI escape sequences and non-printable control
// characters from a traceback entry.
func stripControl(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
