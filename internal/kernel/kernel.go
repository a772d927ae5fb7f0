// Package kernel drives the interactive Python worker that executes notebook
// cells. The worker is a subprocess speaking newline-delimited JSON over
// stdio; cells share one namespace for the life of the session, so later
// cells observe state left by earlier ones.
package kernel

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	nberrors "github.com/nbrun/nbrun/internal/errors"
	"github.com/nbrun/nbrun/internal/logger"
)

//go:embed worker.py
var workerScript string

// idleReplyGrace bounds how long Execute keeps waiting for the structured
// reply once the kernel has already reported idle. Guards against transports
// that deliver idle slightly before the reply.
const idleReplyGrace = 500 * time.Millisecond

// shutdownWait bounds how long Shutdown waits for the worker to exit before
// killing it.
const shutdownWait = 5 * time.Second

// Session is the execution backend the runner drives, one cell at a time.
// *Kernel is the real implementation; tests substitute scripted fakes.
type Session interface {
	Start() error
	WaitReady(timeout time.Duration) error
	Execute(ctx context.Context, source string, timeout time.Duration, onMessage func(Message)) (*Reply, error)
	Interrupt() error
	Shutdown() error
}

// Config holds kernel creation options.
type Config struct {
	Python string // Python interpreter (default: python3)
}

// Kernel manages the worker subprocess and its message stream.
type Kernel struct {
	python string
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	events chan envelope // decoded worker lines, closed when stdout ends
	ready  chan struct{} // closed once the worker announces readiness

	nextID   int
	shutdown bool
}

// New creates a Kernel. Call Start then WaitReady before Execute.
func New(cfg Config) *Kernel {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	return &Kernel{
		python: python,
		events: make(chan envelope, 256),
		ready:  make(chan struct{}),
	}
}

// Start launches the worker subprocess and begins consuming its output.
func (k *Kernel) Start() error {
	logger.Debug("Starting kernel worker (%s)", k.python)

	cmd := exec.Command(k.python, "-u", "-c", workerScript)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: creating stdin pipe: %v", nberrors.ErrTransport, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: creating stdout pipe: %v", nberrors.ErrTransport, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: creating stderr pipe: %v", nberrors.ErrTransport, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %v", nberrors.ErrTransport, k.python, err)
	}
	k.cmd = cmd
	k.stdin = stdin

	// Worker stderr carries interpreter-level noise only; keep it out of the
	// transcript but visible in diagnostics.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("kernel stderr: %s", scanner.Text())
		}
	}()

	go k.readLoop(stdout)

	logger.Debug("Kernel worker started (pid %d)", cmd.Process.Pid)
	return nil
}

// readLoop decodes worker output lines and feeds them to events. It closes
// events when the worker's stdout ends, which is how consumers observe a dead
// transport.
func (k *Kernel) readLoop(stdout io.Reader) {
	defer close(k.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			logger.Warn("Dropping undecodable kernel line: %v", err)
			continue
		}

		if env.Type == "ready" {
			close(k.ready)
			continue
		}
		k.events <- env
	}

	if err := scanner.Err(); err != nil {
		logger.Error("Kernel output read failed: %v", err)
	}
	logger.Debug("Kernel output stream closed")
}

// WaitReady blocks until the worker announces readiness or the startup
// deadline elapses.
func (k *Kernel) WaitReady(timeout time.Duration) error {
	select {
	case <-k.ready:
		return nil
	case _, ok := <-k.events:
		if !ok {
			return fmt.Errorf("%w: kernel exited during startup", nberrors.ErrNotReady)
		}
		// Pre-ready chatter is not part of the protocol; ignore it.
		return k.WaitReady(timeout)
	case <-time.After(timeout):
		return fmt.Errorf("%w: no ready signal within %s", nberrors.ErrNotReady, timeout)
	}
}

// request is the wire shape of worker requests.
type request struct {
	ID       int    `json:"id"`
	Code     string `json:"code,omitempty"`
	Shutdown bool   `json:"shutdown,omitempty"`
}

func (k *Kernel) send(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", nberrors.ErrTransport, err)
	}
	data = append(data, '\n')
	if _, err := k.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: writing request: %v", nberrors.ErrTransport, err)
	}
	return nil
}

// Execute submits source to the worker and blocks until its terminal reply,
// invoking onMessage for every intermediate message as it arrives. A timeout
// of zero means no deadline is ever applied. The kernel's idle status also
// releases the wait: once idle is seen, the reply is given a short grace
// period and then assumed ok.
func (k *Kernel) Execute(ctx context.Context, source string, timeout time.Duration, onMessage func(Message)) (*Reply, error) {
	k.nextID++
	id := k.nextID

	if err := k.send(request{ID: id, Code: source}); err != nil {
		return nil, err
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var reply *Reply
	var grace <-chan time.Time
	busySeen := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-deadline:
			return nil, fmt.Errorf("%w: no reply within %s", nberrors.ErrExecTimeout, timeout)

		case <-grace:
			// Idle landed but the reply never did; release with an ok reply.
			// A kernel-side failure still surfaces through the error message
			// already delivered to onMessage.
			logger.Warn("Kernel went idle without a reply for request %d", id)
			return &Reply{ID: id, Status: StatusOK}, nil

		case env, ok := <-k.events:
			if !ok {
				return nil, fmt.Errorf("%w: kernel output closed mid-execution", nberrors.ErrTransport)
			}

			if env.Type == "execute_reply" {
				if env.ID != id {
					// Stale reply from an abandoned earlier request.
					continue
				}
				reply = &Reply{ID: env.ID, Status: env.Status}
				if grace != nil {
					// Idle already seen; the reply completes the pair.
					return reply, nil
				}
				continue
			}

			msg := env.toMessage()
			if _, ignored := msg.(Ignored); !ignored && onMessage != nil {
				onMessage(msg)
			}

			if st, isStatus := msg.(Status); isStatus {
				switch st.State {
				case StateBusy:
					busySeen = true
				case StateIdle:
					// An idle before our busy is leftover from an abandoned
					// earlier request; only a post-busy idle releases the wait.
					if !busySeen {
						continue
					}
					if reply != nil {
						return reply, nil
					}
					if grace == nil {
						timer := time.NewTimer(idleReplyGrace)
						defer timer.Stop()
						grace = timer.C
					}
				}
			}
		}
	}
}

// Interrupt sends SIGINT to the worker, best-effort. The worker surfaces it
// as a KeyboardInterrupt failure for the in-flight cell.
func (k *Kernel) Interrupt() error {
	if k.cmd == nil || k.cmd.Process == nil {
		return nil
	}
	logger.Debug("Interrupting kernel worker")
	if err := k.cmd.Process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("%w: interrupt: %v", nberrors.ErrTransport, err)
	}
	return nil
}

// Shutdown asks the worker to exit, waits briefly, then kills it. Safe to
// call once per kernel; returns the first failure but always reclaims the
// process.
func (k *Kernel) Shutdown() error {
	if k.cmd == nil || k.shutdown {
		return nil
	}
	k.shutdown = true
	logger.Debug("Shutting down kernel worker")

	merr := &nberrors.MultiError{}

	k.nextID++
	if err := k.send(request{ID: k.nextID, Shutdown: true}); err != nil {
		merr.Append(nberrors.NewTransientError("shutdown request", err))
	}
	if err := k.stdin.Close(); err != nil {
		merr.Append(nberrors.NewTransientError("closing kernel stdin", err))
	}

	// Drain remaining output so the reader never blocks on a full channel.
	go func() {
		for range k.events {
		}
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- k.cmd.Wait() }()

	select {
	case err := <-waitDone:
		if err != nil {
			logger.Debug("Kernel worker exited with: %v", err)
		} else {
			logger.Debug("Kernel worker exited cleanly")
		}
	case <-time.After(shutdownWait):
		logger.Warn("Kernel worker did not exit within %s, killing", shutdownWait)
		if err := k.cmd.Process.Kill(); err != nil {
			merr.Append(nberrors.NewTransientError("killing kernel worker", err))
		}
		<-waitDone
	}

	return merr.ErrorOrNil()
}
