// Package observ measures how long each link stage takes.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed stage of a link.
type Phase struct {
	Name    string
	Start   time.Time
	Dur     time.Duration
	Note    string
	Skipped bool
	done    bool
}

// Timer records phases in the order they begin. It is safe for concurrent
// use so stages may time sub-steps from worker goroutines.
type Timer struct {
	mu     sync.Mutex
	phases []Phase
	now    func() time.Time
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer {
	return &Timer{phases: make([]Phase, 0, 8), now: time.Now}
}

// Begin starts a phase and returns its index for End.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: t.now()})
	return len(t.phases) - 1
}

// End finishes the phase at idx. Unknown or already finished indexes are
// ignored.
func (t *Timer) End(idx int, note string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.phases) || t.phases[idx].done {
		return 0
	}
	p := &t.phases[idx]
	p.Dur = t.now().Sub(p.Start)
	p.Note = note
	p.done = true
	return p.Dur
}

// Skip records a phase that did not run, e.g. stages bypassed by a cache hit.
func (t *Timer) Skip(name, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: t.now(), Note: note, Skipped: true, done: true})
}

// PhaseReport is the serializable form of a phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
	Skipped    bool    `json:"skipped,omitempty"`
}

// Report aggregates the recorded phases.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Slowest returns the phase that ran longest, ignoring skipped ones.
func (r Report) Slowest() (PhaseReport, bool) {
	var best PhaseReport
	found := false
	for _, p := range r.Phases {
		if p.Skipped {
			continue
		}
		if !found || p.DurationMS > best.DurationMS {
			best, found = p, true
		}
	}
	return best, found
}

// Report snapshots the phases. Unfinished phases report zero duration.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.phases) == 0 {
		return Report{}
	}
	report := Report{Phases: make([]PhaseReport, len(t.phases))}
	var total time.Duration
	for i, phase := range t.phases {
		total += phase.Dur
		report.Phases[i] = PhaseReport{
			Name:       phase.Name,
			DurationMS: durationToMillis(phase.Dur),
			Note:       phase.Note,
			Skipped:    phase.Skipped,
		}
	}
	report.TotalMS = durationToMillis(total)
	return report
}

// Summary renders the report as an aligned table.
func (t *Timer) Summary() string {
	report := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range report.Phases {
		if p.Skipped {
			fmt.Fprintf(&sb, "  %-12s %10s", p.Name, "skipped")
		} else {
			fmt.Fprintf(&sb, "  %-12s %7.2f ms", p.Name, p.DurationMS)
		}
		if p.Note != "" {
			sb.WriteString("  // " + p.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-12s %7.2f ms\n", "total", report.TotalMS)
	return sb.String()
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
