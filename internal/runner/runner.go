// Package runner drives the sequential execution of a notebook's code cells
// against a kernel session: it resolves the cell range, submits one cell at a
// time, streams kernel messages into the sink while waiting for each terminal
// reply, classifies outcomes, asks the operator how to proceed on failure,
// and guarantees teardown on every exit path.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	nberrors "github.com/nbrun/nbrun/internal/errors"
	"github.com/nbrun/nbrun/internal/journal"
	"github.com/nbrun/nbrun/internal/kernel"
	"github.com/nbrun/nbrun/internal/logger"
	"github.com/nbrun/nbrun/internal/notebook"
)

const (
	// previewLimit caps how much of a cell's source the progress banner shows.
	previewLimit = 300

	// defaultStartupTimeout bounds the kernel-ready wait. Distinct from the
	// per-cell timeout, which only governs execution.
	defaultStartupTimeout = 60 * time.Second
)

// interruptGrace gives a best-effort kernel interrupt time to take effect
// before cleanup proceeds regardless. Variable so tests can shorten it.
var interruptGrace = 2 * time.Second

var separator = strings.Repeat("=", 60)

// Verdict classifies one executed cell.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictFailure Verdict = "failure"
	VerdictTimeout Verdict = "timeout"
)

// Outcome records one executed cell. Cell is the 1-based position within the
// selected window, not the notebook's absolute cell index.
type Outcome struct {
	Cell    int
	Elapsed time.Duration
	Verdict Verdict
}

// Status is the run's final state.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusStopped     Status = "stopped"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Report is what a run hands back to the caller.
type Report struct {
	Outcomes []Outcome
	Status   Status

	// CleanupErr collects teardown failures. They are recorded for
	// diagnosis, never raised: cleanup completing is a hard invariant.
	CleanupErr error
}

// Config holds everything one run needs. Immutable once the run starts.
type Config struct {
	NotebookPath   string
	RangeSpec      string        // "" selects every executable cell
	CellTimeout    time.Duration // 0 = unbounded
	OutputFile     string        // "" = console
	Python         string        // kernel interpreter override
	StartupTimeout time.Duration // kernel-ready deadline (default 60s)
	Debug          bool

	Session kernel.Session   // test seam; defaults to a real kernel
	Decider DecisionProvider // defaults to a terminal y/n/q prompt
	Journal *journal.Journal // optional run history, owned by the caller
}

// Runner executes one notebook run. Create with New, use once.
type Runner struct {
	cfg     Config
	session kernel.Session
	decider DecisionProvider
	sink    *Sink
	report  *Report

	sessionName    string
	sessionStarted bool
	cleanedUp      bool
}

// New creates a Runner for one run.
func New(cfg Config) *Runner {
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}

	r := &Runner{
		cfg:         cfg,
		session:     cfg.Session,
		decider:     cfg.Decider,
		report:      &Report{Status: StatusFailed},
		sessionName: journal.SessionName(cfg.NotebookPath),
	}
	if r.session == nil {
		r.session = kernel.New(kernel.Config{Python: cfg.Python})
	}
	return r
}

// Run executes the notebook and returns its report. Cleanup runs exactly once
// on every path out of here: completion, operator stop, cancellation, or
// fault.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	nb, err := notebook.Load(r.cfg.NotebookPath)
	if err != nil {
		return nil, err
	}

	if r.cfg.OutputFile != "" {
		sink, err := NewFileSink(r.cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		r.sink = sink
		r.sink.Line("Output will be saved to: %s", r.cfg.OutputFile)
	} else {
		r.sink = NewConsoleSink()
	}

	if r.decider == nil {
		r.decider = NewTerminalDecider(os.Stdin, r.sink.Prompt())
	}

	defer r.cleanup()

	err = nberrors.Recover(func() error {
		return r.execute(ctx, nb)
	})
	if err != nil {
		var panicErr *nberrors.PanicError
		if errors.As(err, &panicErr) {
			logger.Error("Run panicked: %v\n%s", panicErr.Value, panicErr.StackTrace)
			if r.cfg.Debug {
				fmt.Fprintf(r.sink.Prompt(), "panic: %v\n%s\n", panicErr.Value, panicErr.StackTrace)
			}
		}
		r.sink.Line("Execution error: %v", err)
	}

	r.record(journal.Event{Type: journal.EventRunEnd, Status: string(r.report.Status)})
	return r.report, err
}

// execute is the main loop: strictly sequential, one cell in flight at a
// time.
func (r *Runner) execute(ctx context.Context, nb *notebook.Notebook) error {
	cells := nb.ExecutableCells()
	rng, err := ParseRange(r.cfg.RangeSpec, len(cells))
	if err != nil {
		return err
	}

	var selected []*notebook.Cell
	if rng.Len() > 0 {
		selected = cells[rng.Start-1 : rng.End]
	}

	r.record(journal.Event{
		Type:     journal.EventRunStart,
		Notebook: r.cfg.NotebookPath,
		Total:    len(selected),
	})

	r.sink.Line("Waiting for kernel to be ready...")
	if err := r.session.Start(); err != nil {
		return err
	}
	r.sessionStarted = true

	// The ready wait is a suspension point: cancellation must reach it too.
	readyErr := make(chan error, 1)
	go func() { readyErr <- r.session.WaitReady(r.cfg.StartupTimeout) }()
	select {
	case err := <-readyErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return r.interrupted()
	}
	r.sink.Line("Kernel ready")

	router := NewRouter(r.sink)

	for i, cell := range selected {
		if ctx.Err() != nil {
			return r.interrupted()
		}

		num := i + 1
		source := strings.TrimSpace(cell.Source)

		// Progress is numbered relative to the selected window: with
		// --range 2-3 the operator sees "cell 1/2" then "cell 2/2".
		r.sink.Line("\n%s", separator)
		r.sink.Line("Executing cell %d/%d", num, len(selected))
		r.sink.Line("%s", separator)
		r.sink.Line("Code preview:\n%s", preview(source))
		r.sink.Line("%s\n", separator)
		r.sink.Line("Starting execution at %s", time.Now().Format("15:04:05"))

		router.Reset()
		start := time.Now()
		reply, err := r.session.Execute(ctx, source, r.cfg.CellTimeout, router.Route)
		elapsed := time.Since(start)

		var verdict Verdict
		switch {
		case err != nil && ctx.Err() != nil:
			return r.interrupted()

		case errors.Is(err, nberrors.ErrExecTimeout):
			verdict = VerdictTimeout
			r.sink.Line("\nTIMEOUT after %.2fs", elapsed.Seconds())

		case err != nil:
			// Transport faults are hard failures: the session is gone.
			return err

		case reply.Status == kernel.StatusError || router.SawFailure():
			verdict = VerdictFailure
			r.sink.Line("\nCompleted in %.2fs", elapsed.Seconds())

		default:
			verdict = VerdictSuccess
			r.sink.Line("\nCompleted in %.2fs", elapsed.Seconds())
		}

		r.report.Outcomes = append(r.report.Outcomes, Outcome{
			Cell:    num,
			Elapsed: elapsed,
			Verdict: verdict,
		})
		r.record(journal.Event{
			Type:    journal.EventCell,
			Cell:    num,
			Total:   len(selected),
			Verdict: string(verdict),
			Elapsed: elapsed.Seconds(),
		})

		if verdict == VerdictSuccess {
			r.sink.Line("\nCell %d completed successfully", num)
			continue
		}

		r.sink.Line("\nCell %d failed or timed out", num)
		decision, derr := r.decider.Ask(ctx)
		if derr != nil {
			if ctx.Err() != nil {
				return r.interrupted()
			}
			return fmt.Errorf("reading operator decision: %w", derr)
		}
		logger.Info("Operator decision after cell %d: %s", num, decision)

		if decision != Continue {
			r.sink.Line("Execution stopped by user")
			r.report.Status = StatusStopped
			return nil
		}
	}

	r.report.Status = StatusCompleted
	return nil
}

// interrupted handles a cancellation signal: best-effort kernel interrupt, a
// short grace period for it to land, then straight to cleanup. Failures of
// the interrupt itself are swallowed.
func (r *Runner) interrupted() error {
	r.sink.Line("\nExecution interrupted by user")

	if err := r.session.Interrupt(); err != nil {
		logger.Warn("Kernel interrupt failed: %v", err)
	}
	time.Sleep(interruptGrace)

	r.report.Status = StatusInterrupted
	return nil
}

// cleanup runs at most once: kernel shutdown, then sink release. Teardown
// failures are classified and recorded on the report, never raised.
func (r *Runner) cleanup() {
	if r.cleanedUp {
		return
	}
	r.cleanedUp = true

	r.sink.Line("\nCleaning up...")
	merr := &nberrors.MultiError{}

	if r.sessionStarted {
		if err := r.session.Shutdown(); err != nil {
			logger.Error("Kernel shutdown failed: %v", err)
			merr.Append(nberrors.NewTransientError("kernel shutdown", err))
		}
	}

	r.sink.Line("Cleanup complete")
	if err := r.sink.Close(); err != nil {
		merr.Append(nberrors.NewTransientError("sink release", err))
	}

	r.report.CleanupErr = merr.ErrorOrNil()
}

// record appends a journal event, best-effort: journaling never fails a run.
func (r *Runner) record(event journal.Event) {
	if r.cfg.Journal == nil {
		return
	}
	event.Session = r.sessionName

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.cfg.Journal.Record(ctx, event); err != nil {
		logger.Warn("Journal record failed: %v", err)
	}
}

// preview truncates cell source for the progress banner.
func preview(source string) string {
	runes := []rune(source)
	if len(runes) <= previewLimit {
		return source
	}
	return string(runes[:previewLimit]) + "..."
}
