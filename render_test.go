package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/conecta/internal/model"
)

func TestFormatEntry(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local).UnixMilli()

	tests := []struct {
		name  string
		entry model.Entry
		want  string
	}{
		{
			name:  "own durable",
			entry: model.DurableEntry("k", model.Message{SenderID: "alice", Text: "hi", Timestamp: ts}),
			want:  "[09:30] me: hi",
		},
		{
			name:  "peer durable",
			entry: model.DurableEntry("k", model.Message{SenderID: "bob", Text: "hey", Timestamp: ts}),
			want:  "[09:30] bob: hey",
		},
		{
			name:  "live delivery",
			entry: model.PendingEntry(model.Message{Text: "yo", Timestamp: ts}),
			want:  "[09:30] ~: yo *",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatEntry(tc.entry, "alice"))
		})
	}
}

func TestRenderPrintsOnlyNewEntries(t *testing.T) {
	pending := model.PendingEntry(model.Message{SenderID: "alice", Text: "hi"})
	durable := model.DurableEntry("k1", model.Message{SenderID: "alice", Text: "hi"})
	reply := model.DurableEntry("k2", model.Message{SenderID: "bob", Text: "hey"})

	updates := make(chan []model.Entry, 4)
	updates <- nil
	updates <- []model.Entry{pending}
	updates <- []model.Entry{durable}
	updates <- []model.Entry{durable, reply}
	close(updates)

	var buf bytes.Buffer
	render(&buf, updates, "alice")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "me: hi *")
	assert.Contains(t, string(lines[1]), "bob: hey")
}

func renderAll(updates ...[]model.Entry) []string {
	ch := make(chan []model.Entry, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)

	var buf bytes.Buffer
	render(&buf, ch, "alice")
	out := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	lines := make([]string, 0, len(out))
	for _, l := range out {
		if len(l) > 0 {
			lines = append(lines, string(l))
		}
	}
	return lines
}

func TestRenderSnapshotInsertsEarlierEntry(t *testing.T) {
	pending := model.PendingEntry(model.Message{SenderID: "alice", Text: "hi"})
	yo := model.DurableEntry("k1", model.Message{SenderID: "bob", Text: "yo"})
	hi := model.DurableEntry("k2", model.Message{SenderID: "alice", Text: "hi"})

	lines := renderAll([]model.Entry{pending}, []model.Entry{yo, hi})
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "me: hi *")
	assert.Contains(t, lines[1], "bob: yo")
}

func TestRenderLiveThenDurable(t *testing.T) {
	live := model.PendingEntry(model.Message{Text: "hey"})
	durable := model.DurableEntry("k1", model.Message{SenderID: "bob", Text: "hey"})
	next := model.DurableEntry("k2", model.Message{SenderID: "bob", Text: "still there?"})

	lines := renderAll([]model.Entry{live}, []model.Entry{durable}, []model.Entry{durable, next})
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "~: hey *")
	assert.Contains(t, lines[1], "bob: still there?")
}

func TestRenderDroppedPendingIsForgotten(t *testing.T) {
	start := model.DurableEntry("k1", model.Message{SenderID: "bob", Text: "start"})
	lost := model.PendingEntry(model.Message{SenderID: "alice", Text: "again"})
	again := model.DurableEntry("k2", model.Message{SenderID: "bob", Text: "again"})

	// The failed send disappears with the next snapshot, so a later durable
	// message with the same text is still printed.
	lines := renderAll(
		[]model.Entry{start},
		[]model.Entry{start, lost},
		[]model.Entry{start},
		[]model.Entry{start, again},
	)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "me: again *")
	assert.Contains(t, lines[2], "bob: again")
}
