package resolve

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"emlink/internal/diag"
	"emlink/internal/model"
	"emlink/internal/settings"
	"emlink/internal/sig"
)

func binarySettings() *settings.Settings {
	st := settings.Default()
	st.Wasm = true
	return st
}

func textSettings() *settings.Settings {
	st := settings.Default()
	st.Wasm = false
	return st
}

func run(t *testing.T, mod *model.Module, st *settings.Settings, lib ...string) (*Resolution, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(0)
	res, err := Resolve(context.Background(), mod, st, model.NewSymbolSet(lib...), diag.BagReporter{Bag: bag, Stage: "resolve"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	return res, bag
}

func TestMainOnlyModule(t *testing.T) {
	mod := model.NewModule()
	mod.Exports.Add("_main")
	mod.Implemented.Add("_main")

	res, bag := run(t, mod, binarySettings())
	if bag.HasErrors() || bag.HasWarnings() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	if res.Imports.Len() != 0 {
		t.Fatalf("Imports = %v, want empty", res.Imports.Sorted())
	}
	if got := res.Exports.Sorted(); !reflect.DeepEqual(got, []string{"_main"}) {
		t.Fatalf("Exports = %v, want [_main]", got)
	}
	if !res.UserExports.Has("_main") {
		t.Fatalf("UserExports = %v", res.UserExports.Sorted())
	}
}

func TestTextModuleAddsRuntimeSupport(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Tables[sig.MustParse("vi")] = []model.Slot{nil, model.SymbolSlot("_main")}

	res, bag := run(t, mod, textSettings())
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.Items())
	}
	for _, name := range []string{"abort", "assert", "enlargeMemory", "nullFunc_vi"} {
		if !res.Imports.Has(name) || !res.RuntimeImports.Has(name) {
			t.Fatalf("runtime import %s missing from %v", name, res.Imports.Sorted())
		}
	}
	for _, name := range []string{"_main", "stackAlloc", "stackSave", "stackRestore", "dynCall_vi"} {
		if !res.Exports.Has(name) {
			t.Fatalf("export %s missing from %v", name, res.Exports.Sorted())
		}
	}
	if res.UserExports.Has("dynCall_vi") {
		t.Fatalf("system function counted as user export")
	}
}

func TestUndefinedExportedFunction(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	st := binarySettings()
	st.ExportedFunctions = []string{"_main", "_foo"}

	_, bag := run(t, mod, st)
	d, ok := bag.FirstError()
	if !ok || d.Code != diag.ResUndefinedExport || d.Subject != "_foo" {
		t.Fatalf("FirstError = %+v, %v; want undefined exported function _foo", d, ok)
	}
	if !strings.Contains(d.Message, "_foo") {
		t.Fatalf("message %q does not name _foo", d.Message)
	}
}

func TestUndefinedExportSeverities(t *testing.T) {
	tests := []struct {
		name       string
		errOn      bool
		warnOn     bool
		ignored    []string
		wantErrors bool
		wantWarns  bool
	}{
		{name: "error", errOn: true, warnOn: true, wantErrors: true},
		{name: "warning", errOn: false, warnOn: true, wantWarns: true},
		{name: "silent", errOn: false, warnOn: false},
		{name: "ignored", errOn: true, warnOn: true, ignored: []string{"_malloc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := model.NewModule()
			mod.Implemented.Add("_main")
			st := binarySettings()
			st.ExportedFunctions = []string{"_main", "_malloc"}
			st.ErrorOnUndefinedSymbols = settings.Flag(tt.errOn)
			st.WarnOnUndefinedSymbols = settings.Flag(tt.warnOn)
			st.IgnoredUndefinedExports = tt.ignored
			_, bag := run(t, mod, st)
			if bag.HasErrors() != tt.wantErrors {
				t.Fatalf("HasErrors = %v, want %v (%+v)", bag.HasErrors(), tt.wantErrors, bag.Items())
			}
			warnings := 0
			for _, d := range bag.Items() {
				if d.Severity == diag.SevWarning {
					warnings++
				}
			}
			if (warnings > 0) != tt.wantWarns {
				t.Fatalf("warnings = %d, want any: %v (%+v)", warnings, tt.wantWarns, bag.Items())
			}
		})
	}
}

func TestMissingMain(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_helper")

	_, bag := run(t, mod, binarySettings())
	d, ok := bag.FirstError()
	if !ok || d.Code != diag.ResMissingMain {
		t.Fatalf("FirstError = %+v, want missing main", d)
	}
	if bag.Len() != 1 {
		t.Fatalf("want a single diagnostic for a missing main, got %+v", bag.Items())
	}

	st := binarySettings()
	st.IgnoreMissingMain = true
	_, bag = run(t, model.NewModule(), st)
	if bag.HasErrors() {
		t.Fatalf("IGNORE_MISSING_MAIN did not suppress: %+v", bag.Items())
	}

	st = binarySettings()
	st.SideModule = true
	st.ExportedFunctions = nil
	_, bag = run(t, model.NewModule(), st)
	if bag.HasErrors() {
		t.Fatalf("side module requires no main: %+v", bag.Items())
	}
}

func TestDeclaredAndImplementedAreNormalized(t *testing.T) {
	mod := model.NewModule()
	mod.Declared.Add("_f")
	mod.Declared.Add("_puts")
	mod.Implemented.Add("_f")
	mod.Implemented.Add("_main")

	res, bag := run(t, mod, binarySettings(), "puts")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.Items())
	}
	if bag.Len() != 1 || bag.Items()[0].Code != diag.ResDeclaredImplemented || bag.Items()[0].Subject != "_f" {
		t.Fatalf("want an info for _f, got %+v", bag.Items())
	}
	if both := mod.Declared.Intersect(mod.Implemented); len(both) != 0 {
		t.Fatalf("declared and implemented overlap: %v", both)
	}
	if both := res.Imports.Intersect(res.Exports); len(both) != 0 {
		t.Fatalf("imports and exports overlap: %v", both)
	}
	if got := res.Imports.Sorted(); !reflect.DeepEqual(got, []string{"_puts"}) {
		t.Fatalf("Imports = %v, want [_puts]", got)
	}
}

func TestUndefinedSymbols(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Declared.Add("_nowhere")

	res, bag := run(t, mod, binarySettings())
	if !reflect.DeepEqual(res.Undefined, []string{"_nowhere"}) {
		t.Fatalf("Undefined = %v", res.Undefined)
	}
	if d, ok := bag.FirstError(); !ok || d.Code != diag.ResUndefinedSymbol {
		t.Fatalf("FirstError = %+v", d)
	}

	st := binarySettings()
	st.ErrorOnUndefinedSymbols = false
	mod = model.NewModule()
	mod.Implemented.Add("_main")
	mod.Declared.Add("_nowhere")
	_, bag = run(t, mod, st)
	if bag.HasErrors() || !bag.HasWarnings() {
		t.Fatalf("demoted undefined symbol should warn: %+v", bag.Items())
	}

	st = binarySettings()
	st.Relocatable = true
	mod = model.NewModule()
	mod.Implemented.Add("_main")
	mod.Declared.Add("_nowhere")
	_, bag = run(t, mod, st)
	if bag.Len() != 0 {
		t.Fatalf("relocatable builds resolve at load time: %+v", bag.Items())
	}
}

func TestRelocatableAndHostCodeImports(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Externs.Add("_data")
	mod.ExternFunctions["_cb"] = sig.MustParse("vi")
	mod.InvokeFuncs.Add("invoke_vii")
	mod.EmJsFuncs["my_js"] = model.EmJsFunc{}
	mod.AsmConsts[0] = model.AsmConst{Code: "x", Sigs: []sig.Signature{"ii", "ii"}, CallTypes: []model.ProxyMode{model.ProxyDirect, model.ProxySync}}
	st := binarySettings()
	st.MainModule = true
	st.SafeHeap = true
	st.StackOverflowCheck = 1

	res, bag := run(t, mod, st)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.Items())
	}
	want := []string{
		"_emscripten_asm_const_ii",
		"_emscripten_asm_const_sync_on_main_thread_ii",
		"abortStackOverflow",
		"alignfault",
		"fp$_cb$vi",
		"g$_data",
		"invoke_vii",
		"my_js",
		"segfault",
	}
	if got := res.Imports.Sorted(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Imports = %v\nwant %v", got, want)
	}
	if !res.TableCallable.Has("_cb") {
		t.Fatalf("extern functions must be table-callable")
	}
}

func TestReservedSlotImports(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Tables["vi"] = nil
	mod.Tables["vj"] = nil
	st := textSettings()
	st.ReservedFunctionPointers = 2
	res, _ := run(t, mod, st)
	if !res.Imports.Has("jsCall_vi") || res.Imports.Has("jsCall_vj") {
		t.Fatalf("jsCall imports = %v", res.Imports.Sorted())
	}
}

func TestInitializersExported(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Implemented.Add("__GLOBAL__I_a")
	mod.Initializers = []string{"__GLOBAL__I_a", "__GLOBAL__missing"}
	res, bag := run(t, mod, binarySettings())
	if !res.Exports.Has("__GLOBAL__I_a") {
		t.Fatalf("initializer not exported: %v", res.Exports.Sorted())
	}
	d, ok := bag.FirstError()
	if !ok || d.Code != diag.ResUninitializedInit || d.Subject != "__GLOBAL__missing" {
		t.Fatalf("FirstError = %+v", d)
	}
}

func TestExportAll(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Implemented.Add("_a")
	mod.Implemented.Add("_b")
	st := binarySettings()
	st.ExportAll = true
	res, _ := run(t, mod, st)
	if got := res.Exports.Sorted(); !reflect.DeepEqual(got, []string{"_a", "_b", "_main"}) {
		t.Fatalf("Exports = %v", got)
	}
}

func TestVerifyDetectsOverlap(t *testing.T) {
	mod := model.NewModule()
	mod.Declared.Add("_x")
	mod.Implemented.Add("_x")
	res := &Resolution{Imports: model.NewSymbolSet(), Exports: model.NewSymbolSet()}
	if err := res.Verify(mod); err == nil {
		t.Fatalf("Verify accepted declared/implemented overlap")
	}
	mod = model.NewModule()
	res = &Resolution{Imports: model.NewSymbolSet("_y"), Exports: model.NewSymbolSet("_y")}
	if err := res.Verify(mod); err == nil {
		t.Fatalf("Verify accepted import/export overlap")
	}
}
