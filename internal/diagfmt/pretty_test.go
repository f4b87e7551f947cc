package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"emlink/internal/diag"
)

func sampleBag() *diag.Bag {
	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.ResUndefinedSymbol, "_puts", "undefined symbol: puts").
		WithStage("resolve").
		WithNote("set ERROR_ON_UNDEFINED_SYMBOLS=0 to allow it"))
	bag.Add(diag.New(diag.SevWarning, diag.TblReservedI64, "vij", "reserved slots skipped").WithStage("tables"))
	return bag
}

func TestPrettyPlain(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, sampleBag(), PrettyOpts{ShowNotes: true, ShowStage: true})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"resolve: ERROR RES2001 _puts: undefined symbol: puts",
		"  note: set ERROR_ON_UNDEFINED_SYMBOLS=0 to allow it",
		"tables: WARNING TBL4004 vij: reserved slots skipped",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestPrettyHidesNotesAndStage(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, sampleBag(), PrettyOpts{})
	out := buf.String()
	if strings.Contains(out, "note:") {
		t.Errorf("notes printed without ShowNotes:\n%s", out)
	}
	if strings.Contains(out, "resolve:") {
		t.Errorf("stage printed without ShowStage:\n%s", out)
	}
}

func TestPrettyColor(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, sampleBag(), PrettyOpts{Color: true})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected ANSI escapes, got %q", buf.String())
	}
}

func TestPrettyWidth(t *testing.T) {
	bag := diag.NewBag(0)
	bag.Add(diag.NewError(diag.AsmMissingValue, "", strings.Repeat("x", 40)))
	var buf bytes.Buffer
	Pretty(&buf, bag, PrettyOpts{Width: 10})
	if !strings.HasSuffix(strings.TrimSpace(buf.String()), "xxxxxxx...") {
		t.Errorf("message not clipped: %q", buf.String())
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, sampleBag(), PrettyOpts{})
	if got := strings.TrimSpace(buf.String()); got != "1 error, 1 warning" {
		t.Errorf("summary = %q", got)
	}

	buf.Reset()
	Summary(&buf, diag.NewBag(0), PrettyOpts{})
	if buf.Len() != 0 {
		t.Errorf("empty bag printed %q", buf.String())
	}
}
