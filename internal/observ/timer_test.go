package observ

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock advances by step on every read.
func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	tm.now = fakeClock(time.Millisecond)

	parse := tm.Begin("parse")
	if d := tm.End(parse, ""); d != time.Millisecond {
		t.Fatalf("End = %v, want 1ms", d)
	}
	tm.Skip("layout", "cached")
	write := tm.Begin("write")
	tm.End(write, "2 files")

	r := tm.Report()
	if len(r.Phases) != 3 {
		t.Fatalf("phases = %d, want 3", len(r.Phases))
	}
	if !r.Phases[1].Skipped || r.Phases[1].DurationMS != 0 {
		t.Errorf("skipped phase = %+v", r.Phases[1])
	}
	if r.TotalMS != 2 {
		t.Errorf("total = %v, want 2", r.TotalMS)
	}
	if r.Phases[2].Note != "2 files" {
		t.Errorf("note = %q", r.Phases[2].Note)
	}
}

func TestTimerEndTwiceIsIgnored(t *testing.T) {
	tm := NewTimer()
	tm.now = fakeClock(time.Millisecond)
	idx := tm.Begin("resolve")
	tm.End(idx, "first")
	if d := tm.End(idx, "second"); d != 0 {
		t.Errorf("second End = %v, want 0", d)
	}
	if got := tm.Report().Phases[0].Note; got != "first" {
		t.Errorf("note = %q, want first", got)
	}
	if d := tm.End(42, ""); d != 0 {
		t.Errorf("End of unknown index = %v", d)
	}
}

func TestSlowest(t *testing.T) {
	r := Report{Phases: []PhaseReport{
		{Name: "parse", DurationMS: 1},
		{Name: "assemble", DurationMS: 5},
		{Name: "tables", Skipped: true},
	}}
	p, ok := r.Slowest()
	if !ok || p.Name != "assemble" {
		t.Errorf("Slowest = %+v, %v", p, ok)
	}
	if _, ok := (Report{}).Slowest(); ok {
		t.Error("empty report has no slowest phase")
	}
}

func TestSummary(t *testing.T) {
	tm := NewTimer()
	tm.now = fakeClock(time.Millisecond)
	tm.End(tm.Begin("parse"), "")
	tm.Skip("tables", "")
	out := tm.Summary()
	for _, want := range []string{"timings:", "parse", "skipped", "total"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestTimerConcurrentUse(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.End(tm.Begin("worker"), "")
		}()
	}
	wg.Wait()
	if n := len(tm.Report().Phases); n != 8 {
		t.Errorf("phases = %d, want 8", n)
	}
}
