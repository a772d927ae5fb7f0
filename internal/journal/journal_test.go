package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndHistory(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	session := "analysis"

	require.NoError(t, j.Record(ctx, Event{
		Session:  session,
		Type:     EventRunStart,
		Notebook: "analysis.ipynb",
	}))
	require.NoError(t, j.Record(ctx, Event{
		Session: session,
		Type:    EventCell,
		Cell:    1,
		Total:   2,
		Verdict: "success",
		Elapsed: 0.42,
	}))
	require.NoError(t, j.Record(ctx, Event{
		Session: session,
		Type:    EventCell,
		Cell:    2,
		Total:   2,
		Verdict: "failure",
		Elapsed: 1.07,
	}))
	require.NoError(t, j.Record(ctx, Event{
		Session: session,
		Type:    EventRunEnd,
		Status:  "stopped",
	}))

	events, err := j.History(ctx, session)
	require.NoError(t, err)
	require.Len(t, events, 4)

	// Append order is preserved.
	assert.Equal(t, EventRunStart, events[0].Type)
	assert.Equal(t, 1, events[1].Cell)
	assert.Equal(t, "success", events[1].Verdict)
	assert.Equal(t, 2, events[2].Cell)
	assert.Equal(t, "failure", events[2].Verdict)
	assert.Equal(t, "stopped", events[3].Status)

	// Timestamps are filled in on publish.
	assert.WithinDuration(t, time.Now(), events[0].Timestamp, time.Minute)
}

func TestHistory_SessionIsolation(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Event{Session: "one", Type: EventRunStart}))
	require.NoError(t, j.Record(ctx, Event{Session: "two", Type: EventRunStart}))

	events, err := j.History(ctx, "one")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "one", events[0].Session)
}

func TestHistory_Empty(t *testing.T) {
	j := openTestJournal(t)

	events, err := j.History(context.Background(), "never-ran")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClose_Idempotent(t *testing.T) {
	j, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, j.Close())
	assert.NoError(t, j.Close())
}

func TestSessionName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"analysis.ipynb", "analysis"},
		{"/data/My Experiments.v2.ipynb", "my-experiments-v2"},
		{"träning.ipynb", "traning"},
		{"....ipynb", "notebook"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionName(tt.path))
		})
	}
}
