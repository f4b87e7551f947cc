package trace

import "errors"

// MultiTracer sends link events to a stream and a ring at once (mode
// "both"). Its level gates every sink, so one --trace-level applies to all
// of them.
type MultiTracer struct {
	tracers []Tracer
	level   Level
}

// NewMultiTracer returns a tracer emitting to every enabled tracer in
// tracers.
func NewMultiTracer(level Level, tracers ...Tracer) *MultiTracer {
	enabled := make([]Tracer, 0, len(tracers))
	for _, tr := range tracers {
		if tr != nil && tr.Enabled() {
			enabled = append(enabled, tr)
		}
	}
	return &MultiTracer{
		tracers: enabled,
		level:   level,
	}
}

// Emit sends ev to all underlying tracers.
func (t *MultiTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	for _, tr := range t.tracers {
		tr.Emit(ev)
	}
}

// Flush flushes every tracer and reports all failures.
func (t *MultiTracer) Flush() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

// Close closes every tracer and reports all failures.
func (t *MultiTracer) Close() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

// Level returns the configured level.
func (t *MultiTracer) Level() Level {
	return t.level
}

// Enabled reports whether any sink is active.
func (t *MultiTracer) Enabled() bool {
	return t.level > LevelOff && len(t.tracers) > 0
}
