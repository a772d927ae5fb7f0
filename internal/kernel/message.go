package kernel

import (
	"encoding/json"
)

// Message is one kernel-emitted message, parsed once at the transport
// boundary into a closed set of kinds. Anything the worker sends that does
// not match a known kind classifies as Ignored, never an error.
type Message interface {
	kind() string
}

// Stream is a raw stdout/stderr fragment, forwarded verbatim as it arrives.
type Stream struct {
	Text string
}

// Result is the rendered value of a cell's final expression.
type Result struct {
	Text string
}

// Display is a rich display payload rendered as text.
type Display struct {
	Text string
}

// Failure is a kernel-side execution error with its traceback.
type Failure struct {
	Name      string
	Value     string
	Traceback []string
}

// Execution states carried by Status messages.
const (
	StateBusy = "busy"
	StateIdle = "idle"
)

// Status reports the kernel's execution state. Busy marks the start of
// visible activity for a cell; idle signals the terminal reply has landed.
type Status struct {
	State string
}

// Ignored is any message shape the protocol does not recognize.
type Ignored struct{}

func (Stream) kind() string  { return "stream" }
func (Result) kind() string  { return "execute_result" }
func (Display) kind() string { return "display_data" }
func (Failure) kind() string { return "error" }
func (Status) kind() string  { return "status" }
func (Ignored) kind() string { return "ignored" }

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Reply is the kernel's terminal acknowledgment for one submitted cell.
type Reply struct {
	ID     int
	Status string
}

// envelope is the wire shape of every worker line. Fields are a union across
// message kinds; Classify picks the ones that apply.
type envelope struct {
	Type      string   `json:"type"`
	ID        int      `json:"id"`
	Text      string   `json:"text"`
	State     string   `json:"state"`
	Status    string   `json:"status"`
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// Classify parses one raw transport line into a Message. Malformed lines and
// unknown message types map to Ignored.
func Classify(line []byte) Message {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Ignored{}
	}
	return env.toMessage()
}

func (env envelope) toMessage() Message {
	switch env.Type {
	case "stream":
		return Stream{Text: env.Text}
	case "execute_result":
		return Result{Text: env.Text}
	case "display_data":
		return Display{Text: env.Text}
	case "error":
		name := env.Ename
		if name == "" {
			name = "Error"
		}
		return Failure{Name: name, Value: env.Evalue, Traceback: env.Traceback}
	case "status":
		if env.State != StateBusy && env.State != StateIdle {
			return Ignored{}
		}
		return Status{State: env.State}
	default:
		return Ignored{}
	}
}
