package runlog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one line of the JSONL execution log.
type Event struct {
	TS        time.Time      `json:"ts"`
	RunID     string         `json:"run_id"`
	TaskID    *int           `json:"task_id,omitempty"`
	Attempt   *int           `json:"attempt,omitempty"`
	EventType EventType      `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Masker scrubs credential material from serialized payloads before they
// reach disk.
type Masker interface {
	Mask(string) string
}

// Logger serializes events to an io.Writer as JSONL. A bounded buffer
// absorbs bursts; when full, the oldest buffered non-critical event is
// evicted so emitters never block indefinitely.
type Logger struct {
	masker Masker

	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	buf    chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool

	dropped int
}

const defaultBufferSize = 1024

// Option configures a Logger.
type Option func(*Logger)

// WithMasker installs a credential masker applied to every emitted line.
func WithMasker(m Masker) Option {
	return func(l *Logger) { l.masker = m }
}

// New creates a Logger writing to w.
func New(w io.Writer, opts ...Option) *Logger {
	l := &Logger{
		w:    w,
		buf:  make(chan Event, defaultBufferSize),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

// NewFile creates a Logger appending to the JSONL file at path, creating
// parent directories as needed.
func NewFile(path string, opts ...Option) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening execution log: %w", err)
	}
	l := New(f, opts...)
	l.closer = f
	return l, nil
}

// Emit queues an event for writing. Critical events block until buffered;
// non-critical events evict the oldest buffered event when full.
func (l *Logger) Emit(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if ev.EventType.Critical() {
		l.buf <- ev
		return
	}
	for {
		select {
		case l.buf <- ev:
			return
		default:
		}
		// Buffer full: evict the oldest entry to make room.
		select {
		case <-l.buf:
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()
		default:
		}
	}
}

// Dropped returns the count of events evicted under back-pressure.
func (l *Logger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes buffered events and closes the underlying file if owned.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.buf:
			l.write(ev)
		case <-l.done:
			for {
				select {
				case ev := <-l.buf:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to marshal execution log event",
			"event_type", ev.EventType, "error", err)
		return
	}
	line := string(data)
	if l.masker != nil {
		line = l.masker.Mask(line)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, line+"\n"); err != nil {
		slog.Warn("Failed to write execution log event",
			"event_type", ev.EventType, "error", err)
	}
}

// RunLogger binds a Logger to one run id.
type RunLogger struct {
	l     *Logger
	runID string
}

// ForRun returns a convenience wrapper scoped to a run.
func (l *Logger) ForRun(runID string) *RunLogger {
	return &RunLogger{l: l, runID: runID}
}

// Event emits a run-scoped event with no task context.
func (r *RunLogger) Event(t EventType, payload map[string]any) {
	r.l.Emit(Event{RunID: r.runID, EventType: t, Payload: payload})
}

// TaskEvent emits an event scoped to a task attempt.
func (r *RunLogger) TaskEvent(taskID, attempt int, t EventType, payload map[string]any) {
	r.l.Emit(Event{
		RunID:     r.runID,
		TaskID:    &taskID,
		Attempt:   &attempt,
		EventType: t,
		Payload:   payload,
	})
}

// RunID returns the bound run id.
func (r *RunLogger) RunID() string { return r.runID }
