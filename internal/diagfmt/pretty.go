package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"emlink/internal/diag"
)

// Pretty formats diagnostics for a terminal. Items are printed in bag
// order, so callers sort first. Each diagnostic takes one line:
//
//	[stage: ]SEV CODE subject: message
//
// followed by one indented line per note.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) {
	if bag == nil {
		return
	}
	p := newPalette(opts.Color)
	for _, d := range bag.Items() {
		var sb strings.Builder
		if opts.ShowStage && d.Stage != "" {
			sb.WriteString(p.stage.Sprint(d.Stage + ":"))
			sb.WriteByte(' ')
		}
		sb.WriteString(p.severity(d.Severity).Sprint(d.Severity.String()))
		sb.WriteByte(' ')
		sb.WriteString(p.code.Sprint(d.Code.ID()))
		sb.WriteByte(' ')
		if d.Subject != "" {
			sb.WriteString(p.subject.Sprint(d.Subject))
			sb.WriteString(": ")
		}
		sb.WriteString(clip(d.Message, int(opts.Width)))
		fmt.Fprintln(w, sb.String())

		if !opts.ShowNotes {
			continue
		}
		for _, note := range d.Notes {
			fmt.Fprintf(w, "  %s %s\n", p.note.Sprint("note:"), note)
		}
	}
}

// Summary prints the closing count line, e.g. "2 errors, 1 warning".
func Summary(w io.Writer, bag *diag.Bag, opts PrettyOpts) {
	if bag == nil || bag.Len() == 0 {
		return
	}
	errs := bag.CountErrors()
	warns := 0
	for _, d := range bag.Items() {
		if d.Severity == diag.SevWarning {
			warns++
		}
	}
	p := newPalette(opts.Color)
	parts := make([]string, 0, 2)
	if errs > 0 {
		parts = append(parts, p.severity(diag.SevError).Sprint(plural(errs, "error")))
	}
	if warns > 0 {
		parts = append(parts, p.severity(diag.SevWarning).Sprint(plural(warns, "warning")))
	}
	if len(parts) == 0 {
		return
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

type palette struct {
	err, warn, info *color.Color
	code            *color.Color
	subject         *color.Color
	stage           *color.Color
	note            *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:     color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		info:    color.New(color.FgCyan),
		code:    color.New(color.Faint),
		subject: color.New(color.Bold),
		stage:   color.New(color.FgBlue),
		note:    color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.subject, p.stage, p.note} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

func clip(msg string, width int) string {
	if width <= 0 || runewidth.StringWidth(msg) <= width {
		return msg
	}
	return runewidth.Truncate(msg, width, "...")
}
