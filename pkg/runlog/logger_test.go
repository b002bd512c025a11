package runlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer makes bytes.Buffer safe for the writer goroutine plus the
// test goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func decodeLines(t *testing.T, raw string) []Event {
	t.Helper()
	var events []Event
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(sc.Text()), &ev))
		events = append(events, ev)
	}
	return events
}

func TestLogger_WritesJSONLInEmissionOrder(t *testing.T) {
	var buf syncBuffer
	l := New(&buf)
	rl := l.ForRun("run-1")

	rl.Event(EventRunStart, map[string]any{"question": "q"})
	rl.TaskEvent(3, 1, EventAPICall, map[string]any{"source_id": "sam"})
	rl.Event(EventRunComplete, nil)
	require.NoError(t, l.Close())

	events := decodeLines(t, buf.String())
	require.Len(t, events, 3)

	assert.Equal(t, EventRunStart, events[0].EventType)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.False(t, events[0].TS.IsZero())

	require.NotNil(t, events[1].TaskID)
	assert.Equal(t, 3, *events[1].TaskID)
	require.NotNil(t, events[1].Attempt)
	assert.Equal(t, 1, *events[1].Attempt)
	assert.Equal(t, "sam", events[1].Payload["source_id"])

	assert.Equal(t, EventRunComplete, events[2].EventType)
}

func TestLogger_CloseFlushesBufferedEvents(t *testing.T) {
	var buf syncBuffer
	l := New(&buf)
	rl := l.ForRun("run-flush")

	for i := 0; i < 50; i++ {
		rl.Event(EventAPICall, map[string]any{"i": i})
	}
	require.NoError(t, l.Close())

	assert.Len(t, decodeLines(t, buf.String()), 50)
}

func TestLogger_EmitAfterCloseIsNoop(t *testing.T) {
	var buf syncBuffer
	l := New(&buf)
	require.NoError(t, l.Close())

	l.ForRun("run").Event(EventAPICall, nil)
	assert.Empty(t, decodeLines(t, buf.String()))
}

type replaceMasker struct{ from, to string }

func (m replaceMasker) Mask(s string) string { return strings.ReplaceAll(s, m.from, m.to) }

func TestLogger_MaskerAppliedToLines(t *testing.T) {
	var buf syncBuffer
	l := New(&buf, WithMasker(replaceMasker{from: "sk-secret", to: "***MASKED***"}))

	l.ForRun("run").Event(EventAPICall, map[string]any{"url": "https://x?api_key=sk-secret"})
	require.NoError(t, l.Close())

	out := buf.String()
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "***MASKED***")
}

func TestNewFile_CreatesParentsAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "abc", "execution_log.jsonl")

	l, err := NewFile(path)
	require.NoError(t, err)
	l.ForRun("abc").Event(EventRunStart, nil)
	require.NoError(t, l.Close())

	l2, err := NewFile(path)
	require.NoError(t, err)
	l2.ForRun("abc").Event(EventRunComplete, nil)
	require.NoError(t, l2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	events := decodeLines(t, string(data))
	require.Len(t, events, 2, "reopening appends instead of truncating")
	assert.Equal(t, EventRunStart, events[0].EventType)
	assert.Equal(t, EventRunComplete, events[1].EventType)
}

func TestEventType_Critical(t *testing.T) {
	assert.True(t, EventRunStart.Critical())
	assert.True(t, EventRunComplete.Critical())
	assert.True(t, EventTaskComplete.Critical())
	assert.False(t, EventAPICall.Critical())
	assert.False(t, EventRelevanceScoring.Critical())
}

func TestTruncate(t *testing.T) {
	short := "tiny body"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("x", RawResponseLimit+100)
	got := Truncate(long)
	assert.Len(t, got, RawResponseLimit+len("...[truncated]"))
	assert.True(t, strings.HasSuffix(got, "...[truncated]"))
}
