package metadata

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"emlink/internal/model"
	"emlink/internal/sig"
)

func textOutput(funcs, memInit, meta string) []byte {
	return []byte("var header = 1;\n" + StartFuncsMarker + "\n" + funcs + "\n" + EndFuncsMarker + "\n" + memInit + "\n" + MetadataMarker + "\n" + meta)
}

const minimalText = `{"declares": ["_puts"], "implementedFunctions": ["_main", "_f"], "tables": {"vi": "var FUNCTION_TABLE_vi = [b0,_f,0,_f];"}, "staticBump": 64}`

func TestParseTextSections(t *testing.T) {
	funcs := "function _main() { return +Math_abs(1.0) + Math_fround(2.0); }"
	raw := textOutput(funcs, "allocate([1,2,3], \"i8\", ALLOC_NONE, GLOBAL_BASE);", minimalText)
	mod, parts, err := ParseText(context.Background(), raw)
	if err != nil {
		t.Fatalf("ParseText returned error: %v", err)
	}
	if !strings.Contains(parts.Funcs, "function _main") || !strings.Contains(parts.Header, "var header") {
		t.Fatalf("sections not split: %+v", parts)
	}
	if !reflect.DeepEqual(parts.MemInit, []byte{1, 2, 3}) {
		t.Fatalf("MemInit = %v, want [1 2 3]", parts.MemInit)
	}
	if mod.StaticBump != 64 {
		t.Fatalf("StaticBump = %d, want 64", mod.StaticBump)
	}
	if got := mod.UsedPrimitives.Sorted(); !reflect.DeepEqual(got, []string{"Math_abs", "Math_fround"}) {
		t.Fatalf("UsedPrimitives = %v", got)
	}
	table := mod.Tables[sig.MustParse("vi")]
	if len(table) != 4 || table[0] != nil || *table[1] != "_f" || table[2] != nil || *table[3] != "_f" {
		t.Fatalf("table vi = %v", table)
	}
}

func TestParseTextMarkersUseFirstAndLast(t *testing.T) {
	funcs := "function _f() { /* " + EndFuncsMarker + " */ }"
	raw := textOutput(funcs, "", minimalText)
	_, parts, err := ParseText(context.Background(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(parts.Funcs, "function _f") || !strings.Contains(parts.Funcs, "*/ }") {
		t.Fatalf("Funcs = %q", parts.Funcs)
	}
}

func TestParseTextErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		kind ParseErrorKind
	}{
		{"no start", []byte("junk " + EndFuncsMarker + MetadataMarker + "{}"), ParseErrMissingMarker},
		{"no metadata", []byte(StartFuncsMarker + " x " + EndFuncsMarker), ParseErrMissingMarker},
		{"inverted", []byte(EndFuncsMarker + " " + StartFuncsMarker + " " + MetadataMarker + "{}"), ParseErrMissingMarker},
		{"bad json", textOutput("", "", "{nope"), ParseErrMalformedJSON},
		{"missing key", textOutput("", "", `{"declares": [], "tables": {}, "staticBump": 0}`), ParseErrMissingKey},
		{"bad value", textOutput("", "", `{"declares": 3, "implementedFunctions": [], "tables": {}, "staticBump": 0}`), ParseErrBadValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseText(context.Background(), tt.raw)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseText error = %v, want *ParseError", err)
			}
			if pe.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", pe.Kind, tt.kind)
			}
		})
	}
}

func TestParseTextToleratesUnknownKeys(t *testing.T) {
	meta := `{"declares": [], "implementedFunctions": [], "tables": {}, "staticBump": 0, "futureKey": 1}`
	_, parts, err := ParseText(context.Background(), textOutput("", "", meta))
	if err != nil {
		t.Fatalf("ParseText rejected an unknown key: %v", err)
	}
	if len(parts.Ignored) != 1 || parts.Ignored[0] != "futureKey" {
		t.Fatalf("Ignored = %v, want [futureKey]", parts.Ignored)
	}
}

func TestParseBinaryDefaults(t *testing.T) {
	mod, err := ParseBinary(context.Background(), []byte(`{"tableSize": 3}`))
	if err != nil {
		t.Fatalf("ParseBinary returned error: %v", err)
	}
	if mod.TableSize != 3 {
		t.Fatalf("TableSize = %d, want 3", mod.TableSize)
	}
	if mod.Exports.Len() != 0 || len(mod.NamedGlobals) != 0 || len(mod.EmJsFuncs) != 0 ||
		len(mod.AsmConsts) != 0 || mod.InvokeFuncs.Len() != 0 || len(mod.Initializers) != 0 {
		t.Fatalf("optional keys did not default to empty: %+v", mod)
	}
}

func TestParseBinaryUnexpectedKey(t *testing.T) {
	_, err := ParseBinary(context.Background(), []byte(`{"tableSize": 0, "bogus": 1}`))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != ParseErrUnexpectedKey || pe.Key != "bogus" {
		t.Fatalf("ParseBinary error = %v, want unexpected metadata key", err)
	}
	if !strings.Contains(err.Error(), "unexpected metadata key") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestParseBinaryMissingTableSize(t *testing.T) {
	_, err := ParseBinary(context.Background(), []byte(`{"exports": []}`))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != ParseErrMissingKey || pe.Key != "tableSize" {
		t.Fatalf("ParseBinary error = %v, want missing tableSize", err)
	}
}

func TestParseBinaryFull(t *testing.T) {
	raw := `{
	  "tableSize": 2,
	  "declares": ["puts", "invoke_vi", "emscripten_asm_const_ii", "my_js", "g$extvar", "fp$extfn$vi"],
	  "implementedFunctions": ["main", "stackAlloc"],
	  "exports": ["main", "dynCall_vi"],
	  "initializers": ["__wasm_call_ctors"],
	  "namedGlobals": {"__heap_base": 5000, "sym": "STACKTOP"},
	  "emJsFuncs": {"my_js": "(int x, char* y)<::>{ return x; }"},
	  "asmConsts": {"0": ["{ return $0 + 1; }", ["ii"], ["sync_on_main_thread_"]]},
	  "invokeFuncs": ["invoke_vi"],
	  "features": ["--enable-threads"],
	  "mainReadsParams": 1
	}`
	mod, err := ParseBinary(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("ParseBinary returned error: %v", err)
	}
	if got := mod.Declared.Sorted(); !reflect.DeepEqual(got, []string{"_puts"}) {
		t.Fatalf("Declared = %v, want [_puts]", got)
	}
	if !mod.Implemented.Has("_main") || !mod.Implemented.Has("stackAlloc") {
		t.Fatalf("Implemented = %v", mod.Implemented.Names())
	}
	if !mod.Exports.Has("_main") || !mod.Exports.Has("dynCall_vi") {
		t.Fatalf("Exports = %v", mod.Exports.Names())
	}
	if !reflect.DeepEqual(mod.Initializers, []string{"___wasm_call_ctors"}) {
		t.Fatalf("Initializers = %v", mod.Initializers)
	}
	if !mod.Externs.Has("extvar") || mod.ExternFunctions["extfn"] != "vi" {
		t.Fatalf("externs = %v / %v", mod.Externs.Names(), mod.ExternFunctions)
	}
	if got := mod.NamedGlobals["___heap_base"]; got.Value != 5000 {
		t.Fatalf("namedGlobals = %v", mod.NamedGlobals)
	}
	if got := mod.NamedGlobals["_sym"]; got.Symbolic != "STACKTOP" {
		t.Fatalf("symbolic global = %+v", got)
	}
	fn := mod.EmJsFuncs["my_js"]
	if !reflect.DeepEqual(fn.Params, []string{"x", "y"}) || fn.Body != "{ return x; }" {
		t.Fatalf("EM_JS = %+v", fn)
	}
	c := mod.AsmConsts[0]
	if c.Code != "return $0 + 1;" || len(c.Sigs) != 1 || c.Sigs[0] != "ii" || c.CallTypes[0] != model.ProxySync {
		t.Fatalf("asm const = %+v", c)
	}
	if !mod.InvokeFuncs.Has("invoke_vi") || !mod.MainReadsParams {
		t.Fatalf("invoke/mainReadsParams not decoded")
	}
}

func TestRepeatedParsesDoNotMerge(t *testing.T) {
	a, err := ParseBinary(context.Background(), []byte(`{"tableSize": 0, "exports": ["a"]}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseBinary(context.Background(), []byte(`{"tableSize": 0, "exports": ["b"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if a.Exports.Has("_b") || b.Exports.Has("_a") {
		t.Fatalf("parses share state")
	}
}

func TestTableShapes(t *testing.T) {
	mod, err := ParseBinary(context.Background(), []byte(`{"tableSize": 0, "tables": {"ii": [null, "f", "0", "g"]}}`))
	if err != nil {
		t.Fatal(err)
	}
	table := mod.Tables["ii"]
	if len(table) != 4 || table[0] != nil || *table[1] != "_f" || table[2] != nil || *table[3] != "_g" {
		t.Fatalf("table = %v", table)
	}
	if _, err := ParseTableLiteral("vi", "var FUNCTION_TABLE_ii = [0];"); err == nil {
		t.Fatalf("ParseTableLiteral accepted a mismatched name")
	}
	slots, err := ParseTableLiteral("v", "var FUNCTION_TABLE_v = [];")
	if err != nil || len(slots) != 0 {
		t.Fatalf("empty table = %v, %v", slots, err)
	}
}

func TestTrimAsmConstBody(t *testing.T) {
	tests := map[string]string{
		`"{ return 1; }"`:        "return 1;",
		`  { console.log(1) }  `: "console.log(1)",
		`"{ alert(\"hi\") }"`:    `alert("hi")`,
		`({ x })`:                "x",
		`Module.print('x')`:      "Module.print('x')",
	}
	for in, want := range tests {
		if got := TrimAsmConstBody(in); got != want {
			t.Fatalf("TrimAsmConstBody(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEmJs(t *testing.T) {
	fn, err := ParseEmJs("(void)<::>{ return 42; }")
	if err != nil || len(fn.Params) != 0 {
		t.Fatalf("ParseEmJs(void) = %+v, %v", fn, err)
	}
	fn, err = ParseEmJs("(const char *msg, int n)<::>{ out(msg); }")
	if err != nil || !reflect.DeepEqual(fn.Params, []string{"msg", "n"}) {
		t.Fatalf("ParseEmJs = %+v, %v", fn, err)
	}
	if _, err := ParseEmJs("(int x){}"); err == nil {
		t.Fatalf("ParseEmJs accepted a record without separator")
	}
}

func TestParseMemInit(t *testing.T) {
	if got, err := ParseMemInit([]byte("  \n")); err != nil || got != nil {
		t.Fatalf("blank section = %v, %v", got, err)
	}
	if got, err := ParseMemInit([]byte("// no initializer")); err != nil || got != nil {
		t.Fatalf("comment section = %v, %v", got, err)
	}
	if _, err := ParseMemInit([]byte("[1, 300]")); err == nil {
		t.Fatalf("ParseMemInit accepted a value above 255")
	}
}
