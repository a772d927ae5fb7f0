// Package journal records run history in an embedded NATS JetStream event
// log. Events are append-only: one run_start per run, one cell event per
// executed cell, one run_end with the final status. The info command replays
// them to show past runs for a notebook.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nbrun/nbrun/internal/logger"
)

const (
	streamName = "nbrun_events"

	// Event types
	EventRunStart = "run_start"
	EventCell     = "cell"
	EventRunEnd   = "run_end"
)

// Event is one journal entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
	Type      string    `json:"type"`              // run_start, cell, run_end
	Notebook  string    `json:"notebook,omitempty"`
	Cell      int       `json:"cell,omitempty"`    // 1-based position in the selected window
	Total     int       `json:"total,omitempty"`   // size of the selected window
	Verdict   string    `json:"verdict,omitempty"` // success, failure, timeout
	Status    string    `json:"status,omitempty"`  // completed, stopped, interrupted
	Elapsed   float64   `json:"elapsed,omitempty"` // seconds
}

// SessionName derives the journal session token from a notebook path.
// NATS subject tokens cannot contain dots or spaces, so the filename stem is
// slugified.
func SessionName(notebookPath string) string {
	base := filepath.Base(notebookPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if s := slug.Make(stem); s != "" {
		return s
	}
	return "notebook"
}

// subjectFor returns the subject for an event type in a session.
// Example: "nbrun.my-analysis.cell"
func subjectFor(session, eventType string) string {
	return fmt.Sprintf("nbrun.%s.%s", session, eventType)
}

// Journal owns an embedded NATS server and its JetStream event stream.
type Journal struct {
	ns     *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	closed bool
}

// Open starts an embedded, in-process NATS server with JetStream file storage
// under dataDir and ensures the event stream exists.
func Open(ctx context.Context, dataDir string) (*Journal, error) {
	storeDir := filepath.Join(dataDir, "journal")
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	logger.Debug("Starting embedded NATS server with store dir: %s", storeDir)
	ns, err := server.NewServer(&server.Options{
		JetStream:  true,
		StoreDir:   storeDir,
		DontListen: true, // no network ports, in-process only
	})
	if err != nil {
		return nil, fmt.Errorf("creating NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, errors.New("nats server failed to start within timeout")
	}

	nc, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connecting to NATS in-process: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"nbrun.>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("creating journal stream: %w", err)
	}

	return &Journal{ns: ns, nc: nc, js: js, stream: stream}, nil
}

// Record appends an event to the journal.
func (j *Journal) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling journal event: %w", err)
	}

	subject := subjectFor(event.Session, event.Type)
	logger.Debug("Recording journal event: session=%s type=%s", event.Session, event.Type)

	if _, err := j.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing journal event: %w", err)
	}
	return nil
}

// History replays all events for a session in append order.
func (j *Journal) History(ctx context.Context, session string) ([]Event, error) {
	consumer, err := j.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: fmt.Sprintf("nbrun.%s.>", session),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating journal consumer: %w", err)
	}

	var events []Event
	for {
		batch, err := consumer.FetchNoWait(100)
		if err != nil {
			return nil, fmt.Errorf("fetching journal events: %w", err)
		}

		count := 0
		for msg := range batch.Messages() {
			count++
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				logger.Warn("Skipping undecodable journal event: %v", err)
				continue
			}
			events = append(events, event)
		}
		if err := batch.Error(); err != nil {
			return nil, fmt.Errorf("reading journal batch: %w", err)
		}
		if count == 0 {
			break
		}
	}

	return events, nil
}

// Close drains the connection and shuts the embedded server down, each with a
// bounded wait so teardown can never hang.
func (j *Journal) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true

	if j.nc != nil {
		drainDone := make(chan error, 1)
		go func() { drainDone <- j.nc.Drain() }()

		select {
		case err := <-drainDone:
			if err != nil {
				logger.Warn("NATS drain failed, forcing close: %v", err)
				j.nc.Close()
			}
		case <-time.After(2 * time.Second):
			logger.Warn("NATS drain timed out after 2s, forcing close")
			j.nc.Close()
		}
	}

	if j.ns != nil {
		j.ns.Shutdown()

		shutdownDone := make(chan struct{})
		go func() {
			j.ns.WaitForShutdown()
			close(shutdownDone)
		}()

		select {
		case <-shutdownDone:
			logger.Debug("Journal server shut down cleanly")
		case <-time.After(5 * time.Second):
			logger.Error("Journal server shutdown timed out after 5s")
			return errors.New("journal server shutdown timed out")
		}
	}

	return nil
}
