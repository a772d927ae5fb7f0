package runner

import (
	"fmt"
	"io"
	"os"

	nberrors "github.com/nbrun/nbrun/internal/errors"
	"github.com/nbrun/nbrun/internal/logger"
)

// Sink is the run's dual-channel output destination: a line channel for
// progress and result lines, and a raw channel for streamed cell output.
// The runner is its only caller, so writes need no locking.
//
// In file mode both channels go to one transcript file and the process's
// os.Stdout/os.Stderr are swapped to /dev/null for the run, so incidental
// prints from libraries cannot corrupt the transcript. Close restores them
// unconditionally.
type Sink struct {
	file *os.File // transcript file, nil in console mode

	console     *os.File // the real stdout, kept for console writes and prompts
	savedStdout *os.File // non-nil only while redirection is active
	savedStderr *os.File
	devnull     *os.File

	closed bool
}

// NewConsoleSink returns a sink writing both channels to standard output.
func NewConsoleSink() *Sink {
	return &Sink{console: os.Stdout}
}

// NewFileSink returns a sink writing both channels to path and redirects the
// process's ambient stdout/stderr to a discard target until Close.
func NewFileSink(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}

	s := &Sink{
		file:        f,
		console:     os.Stdout,
		savedStdout: os.Stdout,
		savedStderr: os.Stderr,
		devnull:     devnull,
	}
	os.Stdout = devnull
	os.Stderr = devnull
	return s, nil
}

// Line writes one formatted line to the line channel, with a trailing newline.
func (s *Sink) Line(format string, args ...any) {
	if s.closed {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if s.file != nil {
		// os.File writes are unbuffered, so every line hits the transcript
		// immediately.
		fmt.Fprintln(s.file, msg)
		return
	}
	fmt.Fprintln(s.console, msg)
}

// Raw writes text verbatim to the raw channel, with no added framing. This is
// what keeps streamed cell output feeling real-time.
func (s *Sink) Raw(text string) {
	if s.closed {
		return
	}
	if s.file != nil {
		io.WriteString(s.file, text)
		return
	}
	io.WriteString(s.console, text)
}

// Prompt returns a writer on the real terminal, usable for the operator
// prompt even while stdout is redirected in file mode.
func (s *Sink) Prompt() io.Writer {
	return s.console
}

// FileMode reports whether the sink writes to a transcript file.
func (s *Sink) FileMode() bool {
	return s.file != nil
}

// Close flushes and closes the transcript file and restores any console
// redirection. It is idempotent; teardown failures are collected, not raised
// individually.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	merr := &nberrors.MultiError{}

	if s.savedStdout != nil {
		os.Stdout = s.savedStdout
		os.Stderr = s.savedStderr
		s.savedStdout = nil
		s.savedStderr = nil
	}
	if s.devnull != nil {
		if err := s.devnull.Close(); err != nil {
			merr.Append(nberrors.NewTransientError("closing discard target", err))
		}
		s.devnull = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			merr.Append(nberrors.NewTransientError("closing output file", err))
		}
		s.file = nil
	}

	if err := merr.ErrorOrNil(); err != nil {
		logger.Warn("Sink teardown reported: %v", err)
		return err
	}
	return nil
}
