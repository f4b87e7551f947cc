// Package metadata reads backend output into a model.Module.
//
// Text form is the backend's JavaScript output with three markers:
//
//	<header>
//	// EMSCRIPTEN_START_FUNCS
//	<function bodies>
//	// EMSCRIPTEN_END_FUNCS
//	<memory initializer>
//	// EMSCRIPTEN_METADATA
//	{ ...json... }
//
// Binary form is the JSON object produced by the binary finalization tool.
// It is checked against a fixed key schema: unknown keys are fatal.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"emlink/internal/model"
	"emlink/internal/trace"
)

const (
	StartFuncsMarker = "// EMSCRIPTEN_START_FUNCS"
	EndFuncsMarker   = "// EMSCRIPTEN_END_FUNCS"
	MetadataMarker   = "// EMSCRIPTEN_METADATA"
)

// TextParts are the non-metadata sections of text-form backend output.
type TextParts struct {
	Header  string
	Funcs   string
	MemInit []byte
	// Ignored lists metadata keys the linker does not know, sorted.
	Ignored []string
}

var textRequiredKeys = []string{"declares", "implementedFunctions", "tables", "staticBump"}

var binaryRequiredKeys = []string{"tableSize"}

// ParseText splits text-form backend output at its markers and decodes the
// trailing metadata. The first START_FUNCS and the last END_FUNCS and
// METADATA markers are used, so function bodies may mention the markers.
func ParseText(ctx context.Context, raw []byte) (*model.Module, *TextParts, error) {
	start := bytes.Index(raw, []byte(StartFuncsMarker))
	if start < 0 {
		return nil, nil, missingMarker(StartFuncsMarker, raw)
	}
	end := bytes.LastIndex(raw, []byte(EndFuncsMarker))
	if end < start {
		return nil, nil, missingMarker(EndFuncsMarker, raw[start:])
	}
	meta := bytes.LastIndex(raw, []byte(MetadataMarker))
	if meta < end {
		return nil, nil, missingMarker(MetadataMarker, raw[end:])
	}

	parts := &TextParts{
		Header: string(raw[:start]),
		Funcs:  string(raw[start+len(StartFuncsMarker) : end]),
	}
	memInit, err := ParseMemInit(raw[end+len(EndFuncsMarker) : meta])
	if err != nil {
		return nil, nil, err
	}
	parts.MemInit = memInit

	obj, err := decodeObject(raw[meta+len(MetadataMarker):])
	if err != nil {
		return nil, nil, err
	}
	if err := requireKeys(obj, textRequiredKeys); err != nil {
		return nil, nil, err
	}
	for _, key := range orderedKeys(obj) {
		if _, ok := fields[key]; !ok {
			trace.StagePoint(ctx, trace.ScopeDetail, "metadata", "ignoring unknown key "+key)
			parts.Ignored = append(parts.Ignored, key)
			delete(obj, key)
		}
	}
	mod, err := decodeModule(obj, formText)
	if err != nil {
		return nil, nil, err
	}
	scanPrimitives(mod, parts.Funcs)
	return mod, parts, nil
}

// ParseBinary decodes binary-form metadata. tableSize is required; every
// other known key defaults to empty and unknown keys are rejected.
func ParseBinary(ctx context.Context, raw []byte) (*model.Module, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	for _, key := range orderedKeys(obj) {
		if _, ok := fields[key]; !ok {
			return nil, &ParseError{Kind: ParseErrUnexpectedKey, Key: key, Fragment: fragment(obj[key])}
		}
	}
	if err := requireKeys(obj, binaryRequiredKeys); err != nil {
		return nil, err
	}
	mod, err := decodeModule(obj, formBinary)
	if err != nil {
		return nil, err
	}
	trace.StagePoint(ctx, trace.ScopeDetail, "metadata", fmt.Sprintf("%d keys", len(obj)))
	return mod, nil
}

func missingMarker(marker string, raw []byte) *ParseError {
	return &ParseError{Kind: ParseErrMissingMarker, Marker: marker, Fragment: fragment(bytes.TrimSpace(raw))}
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &ParseError{Kind: ParseErrMalformedJSON, Fragment: fragment(raw), Err: err}
	}
	if obj == nil {
		return nil, &ParseError{Kind: ParseErrMalformedJSON, Fragment: fragment(raw), Err: fmt.Errorf("expected an object")}
	}
	return obj, nil
}

func requireKeys(obj map[string]json.RawMessage, keys []string) error {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return &ParseError{Kind: ParseErrMissingKey, Key: k}
		}
	}
	return nil
}

// decodeModule builds a fresh module from obj; keys absent from obj keep
// their empty defaults.
func decodeModule(obj map[string]json.RawMessage, f form) (*model.Module, error) {
	mod := model.NewModule()
	for _, key := range orderedKeys(obj) {
		raw := obj[key]
		if string(bytes.TrimSpace(raw)) == "null" {
			continue
		}
		if err := fields[key](mod, raw, f); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

var primitiveUse = regexp.MustCompile(`\bMath_([A-Za-z0-9]+)\b`)

func scanPrimitives(mod *model.Module, funcs string) {
	for _, m := range primitiveUse.FindAllStringSubmatch(funcs, -1) {
		mod.UsedPrimitives.Add("Math_" + m[1])
	}
}

// ParseMemInit extracts the static memory image from the section between
// END_FUNCS and METADATA. The section holds one bracketed list of byte
// values, optionally inside an allocate(...) call; a blank section means
// no initializer.
func ParseMemInit(section []byte) ([]byte, error) {
	section = bytes.TrimSpace(section)
	if len(section) == 0 {
		return nil, nil
	}
	open := bytes.IndexByte(section, '[')
	closing := bytes.IndexByte(section, ']')
	if open < 0 || closing < open {
		if isComment(section) {
			return nil, nil
		}
		return nil, badValue("memoryInitializer", section, fmt.Errorf("expected a [ ... ] byte list"))
	}
	body := strings.TrimSpace(string(section[open+1 : closing]))
	if body == "" {
		return []byte{}, nil
	}
	items := strings.Split(body, ",")
	out := make([]byte, 0, len(items))
	for _, it := range items {
		n, err := strconv.ParseUint(strings.TrimSpace(it), 10, 8)
		if err != nil {
			return nil, badValue("memoryInitializer", []byte(it), err)
		}
		out = append(out, byte(n))
	}
	return out, nil
}

func isComment(b []byte) bool {
	for _, line := range bytes.Split(b, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 && !bytes.HasPrefix(line, []byte("//")) {
			return false
		}
	}
	return true
}
