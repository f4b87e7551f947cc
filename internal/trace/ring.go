package trace

import (
	"fmt"
	"io"
	"sync"
)

// RingTracer keeps the last N events of a link in memory. When a link fails
// the driver dumps the events of the failed stage from it.
type RingTracer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	head     int  // next write position
	full     bool // has wrapped around
	dropped  uint64
	level    Level
}

// NewRingTracer creates a ring holding capacity events; a non-positive
// capacity selects 4096.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{
		events:   make([]Event, capacity),
		capacity: capacity,
		level:    level,
	}
}

// Emit stores ev, overwriting the oldest event once the ring is full.
func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.full {
		t.dropped++
	}
	stored := *ev
	stored.Seq = NextSeq()
	t.events[t.head] = stored
	t.head = (t.head + 1) % t.capacity
	if t.head == 0 {
		t.full = true
	}
}

// Dropped is the number of events overwritten since the ring was created.
func (t *RingTracer) Dropped() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dropped
}

// Snapshot returns a copy of all stored events in chronological order.
func (t *RingTracer) Snapshot() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.full {
		result := make([]Event, t.head)
		copy(result, t.events[:t.head])
		return result
	}
	result := make([]Event, t.capacity)
	copy(result, t.events[t.head:])
	copy(result[t.capacity-t.head:], t.events[:t.head])
	return result
}

// StageEvents returns the events recorded since the last time stage began.
// ok is false when the ring no longer holds the beginning of stage; events
// is then the whole snapshot.
func (t *RingTracer) StageEvents(stage string) (events []Event, ok bool) {
	events = t.Snapshot()
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Kind == KindSpanBegin && ev.Scope == ScopeStage && ev.Name == stage {
			return events[i:], true
		}
	}
	return events, false
}

// Dump writes all events to w.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	return writeEvents(w, t.Snapshot(), format)
}

// DumpStage writes the events of the named stage to w, or every buffered
// event when the stage start has already been overwritten.
func (t *RingTracer) DumpStage(w io.Writer, format Format, stage string) error {
	events, ok := t.StageEvents(stage)
	if !ok {
		if n := t.Dropped(); n > 0 {
			if _, err := fmt.Fprintf(w, "(start of %s not buffered, %d earlier events dropped)\n", stage, n); err != nil {
				return err
			}
		}
	}
	return writeEvents(w, events, format)
}

func writeEvents(w io.Writer, events []Event, format Format) error {
	for _, ev := range events {
		if _, err := w.Write(FormatEvent(ev, format)); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op; everything is in memory.
func (t *RingTracer) Flush() error {
	return nil
}

// Close is a no-op.
func (t *RingTracer) Close() error {
	return nil
}

// Level returns the current tracing level.
func (t *RingTracer) Level() Level {
	return t.level
}

// Enabled returns true if tracing is active.
func (t *RingTracer) Enabled() bool {
	return t.level > LevelOff
}
