package assemble

import (
	"sort"
	"strings"

	"emlink/internal/diag"
	"emlink/internal/model"
)

// reservedWords are JavaScript keywords a minified name must not collide
// with.
var reservedWords = map[string]bool{
	"do": true, "if": true, "in": true, "for": true, "new": true, "try": true,
	"var": true, "env": true, "let": true, "case": true, "else": true, "enum": true,
	"void": true, "this": true, "with": true,
}

const (
	minFirst = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_$"
	minRest  = minFirst + "0123456789"
)

// MinifiedNames returns n short, distinct identifiers in a fixed order:
// single letters first, then longer names, skipping reserved words.
func MinifiedNames(n int) []string {
	out := make([]string, 0, n)
	for length := 1; len(out) < n; length++ {
		idx := make([]int, length)
		for len(out) < n {
			var b strings.Builder
			b.WriteByte(minFirst[idx[0]])
			for _, i := range idx[1:] {
				b.WriteByte(minRest[i])
			}
			if name := b.String(); !reservedWords[name] {
				out = append(out, name)
			}
			if !advance(idx) {
				break
			}
		}
	}
	return out
}

// advance steps idx to the next name of the same length, rightmost digit
// fastest; it reports false once every name has been produced.
func advance(idx []int) bool {
	for pos := len(idx) - 1; pos >= 0; pos-- {
		limit := len(minRest)
		if pos == 0 {
			limit = len(minFirst)
		}
		idx[pos]++
		if idx[pos] < limit {
			return true
		}
		idx[pos] = 0
	}
	return false
}

// symbolMap renders the name mapping side file. Text links map minified
// export names and synthesized table functions to their symbols; binary
// links map function indices to names.
func (e *Emitter) symbolMap() []byte {
	var lines []string
	if e.text {
		for _, name := range model.SortedKeys(e.exportKeys) {
			if key := e.exportKeys[name]; key != name {
				lines = append(lines, key+":"+name)
			}
		}
		m := e.in.Tables.SymbolMap()
		for _, name := range model.SortedKeys(m) {
			lines = append(lines, name+":"+m[name])
		}
		sort.Strings(lines)
	} else {
		if e.in.BinaryInfo == nil {
			diag.ReportWarning(e.in.Reporter, diag.AsmSymbolMapIncomplete, SymbolsFileName(e.in.OutputName),
				"no symbol map written: the binary was not inspected").
				WithNote("enable VERIFY_BINARY to inspect it").
				Emit()
			return nil
		}
		lines = e.in.BinaryInfo.SymbolMap()
	}
	if len(lines) == 0 {
		return []byte{}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
