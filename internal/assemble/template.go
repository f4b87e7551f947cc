package assemble

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"emlink/internal/diag"
)

// ModuleMarker is where the generated module is spliced into a template.
const ModuleMarker = "// {{MODULE}}"

const (
	placeholderOpen  = "{{{ "
	placeholderClose = " }}}"
)

// Placeholder names a layout constant in a template, written as
// "{{{ NAME }}}" with exactly one space inside each brace group.
const (
	PhGlobalBase     = "GLOBAL_BASE"
	PhStaticBump     = "STATIC_BUMP"
	PhStackBase      = "STACK_BASE"
	PhStackMax       = "STACK_MAX"
	PhDynamicBase    = "DYNAMIC_BASE"
	PhDynamicTopPtr  = "DYNAMICTOP_PTR"
	PhTempDoublePtr  = "TEMP_DOUBLE_PTR"
	PhTotalMemory    = "TOTAL_MEMORY"
	PhTableSize      = "TABLE_SIZE"
	PhWasmBinaryFile = "WASM_BINARY_FILE"
	PhAssertions     = "ASSERTIONS"
)

var knownPlaceholders = map[string]bool{
	PhGlobalBase:     true,
	PhStaticBump:     true,
	PhStackBase:      true,
	PhStackMax:       true,
	PhDynamicBase:    true,
	PhDynamicTopPtr:  true,
	PhTempDoublePtr:  true,
	PhTotalMemory:    true,
	PhTableSize:      true,
	PhWasmBinaryFile: true,
	PhAssertions:     true,
}

// TemplateErrorKind enumerates template problems.
type TemplateErrorKind uint8

const (
	TemplateErrNoModuleMarker TemplateErrorKind = iota + 1
	TemplateErrDuplicateModuleMarker
	TemplateErrUnknownPlaceholder
	TemplateErrUnterminated
	TemplateErrMissingValue
)

// TemplateError reports a template that cannot be parsed or filled.
type TemplateError struct {
	Kind        TemplateErrorKind
	Template    string
	Placeholder string
	Offset      int
}

func (e *TemplateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case TemplateErrNoModuleMarker:
		return fmt.Sprintf("template %s: missing %q", e.Template, ModuleMarker)
	case TemplateErrDuplicateModuleMarker:
		return fmt.Sprintf("template %s: %q appears more than once (offset %d)", e.Template, ModuleMarker, e.Offset)
	case TemplateErrUnknownPlaceholder:
		return fmt.Sprintf("template %s: unknown placeholder %q at offset %d", e.Template, e.Placeholder, e.Offset)
	case TemplateErrUnterminated:
		return fmt.Sprintf("template %s: unterminated placeholder at offset %d", e.Template, e.Offset)
	case TemplateErrMissingValue:
		return fmt.Sprintf("template %s: no value for placeholder %s", e.Template, e.Placeholder)
	default:
		return fmt.Sprintf("template error kind=%d", e.Kind)
	}
}

// Code maps the error onto its diagnostic code.
func (e *TemplateError) Code() diag.Code {
	switch e.Kind {
	case TemplateErrNoModuleMarker, TemplateErrDuplicateModuleMarker:
		return diag.AsmTemplateMissing
	case TemplateErrMissingValue:
		return diag.AsmMissingValue
	default:
		return diag.AsmUnknownPlaceholder
	}
}

type fragmentKind uint8

const (
	fragText fragmentKind = iota
	fragPlaceholder
	fragModule
)

type fragment struct {
	kind fragmentKind
	text string
}

// Template is a parsed runtime template: literal text interleaved with
// placeholders and exactly one module marker.
type Template struct {
	Name  string
	frags []fragment
}

// ParseTemplate splits src into fragments. Placeholders are matched
// verbatim; anything else between triple braces is an error.
func ParseTemplate(name string, src []byte) (*Template, error) {
	t := &Template{Name: name}
	s := string(src)
	offset := 0
	modules := 0
	for len(s) > 0 {
		ph := strings.Index(s, "{{{")
		mk := strings.Index(s, ModuleMarker)
		switch {
		case ph < 0 && mk < 0:
			t.frags = append(t.frags, fragment{kind: fragText, text: s})
			s = ""
		case mk >= 0 && (ph < 0 || mk < ph):
			modules++
			if modules > 1 {
				return nil, &TemplateError{Kind: TemplateErrDuplicateModuleMarker, Template: name, Offset: offset + mk}
			}
			t.addText(s[:mk])
			t.frags = append(t.frags, fragment{kind: fragModule})
			s = s[mk+len(ModuleMarker):]
			offset += mk + len(ModuleMarker)
		default:
			t.addText(s[:ph])
			end := strings.Index(s[ph:], "}}}")
			if end < 0 {
				return nil, &TemplateError{Kind: TemplateErrUnterminated, Template: name, Offset: offset + ph}
			}
			raw := s[ph : ph+end+3]
			key, ok := placeholderName(raw)
			if !ok {
				return nil, &TemplateError{Kind: TemplateErrUnknownPlaceholder, Template: name, Placeholder: raw, Offset: offset + ph}
			}
			t.frags = append(t.frags, fragment{kind: fragPlaceholder, text: key})
			s = s[ph+len(raw):]
			offset += ph + len(raw)
		}
	}
	if modules == 0 {
		return nil, &TemplateError{Kind: TemplateErrNoModuleMarker, Template: name}
	}
	return t, nil
}

func (t *Template) addText(s string) {
	if s != "" {
		t.frags = append(t.frags, fragment{kind: fragText, text: s})
	}
}

func placeholderName(raw string) (string, bool) {
	if !strings.HasPrefix(raw, placeholderOpen) || !strings.HasSuffix(raw, placeholderClose) {
		return "", false
	}
	key := raw[len(placeholderOpen) : len(raw)-len(placeholderClose)]
	return key, knownPlaceholders[key]
}

// Placeholders lists the distinct placeholders the template uses, sorted.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range t.frags {
		if f.kind == fragPlaceholder && !seen[f.text] {
			seen[f.text] = true
			out = append(out, f.text)
		}
	}
	sort.Strings(out)
	return out
}

// Render fills every placeholder from values and splices module at the
// marker. A placeholder without a value is an error.
func (t *Template) Render(values map[string]string, module []byte) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range t.frags {
		switch f.kind {
		case fragText:
			buf.WriteString(f.text)
		case fragModule:
			buf.Write(module)
		case fragPlaceholder:
			v, ok := values[f.text]
			if !ok {
				return nil, &TemplateError{Kind: TemplateErrMissingValue, Template: t.Name, Placeholder: f.text}
			}
			buf.WriteString(v)
		}
	}
	return buf.Bytes(), nil
}
