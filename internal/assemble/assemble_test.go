package assemble

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emlink/internal/diag"
	"emlink/internal/layout"
	"emlink/internal/metadata"
	"emlink/internal/model"
	"emlink/internal/resolve"
	"emlink/internal/settings"
	"emlink/internal/sig"
	"emlink/internal/tables"
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func testMemory() layout.Memory {
	mem, err := layout.Plan(layout.Input{
		GlobalBase:  1024,
		StackSize:   5 * 1024 * 1024,
		TotalMemory: 16 * 1024 * 1024,
		PageSize:    64 * 1024,
		Direction:   layout.Down,
	})
	if err != nil {
		panic(err)
	}
	return mem
}

func textModule() (*model.Module, *metadata.TextParts) {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Implemented.Add("_f")
	mod.Declared.Add("_puts")
	mod.Exports.Add("_main")
	mod.Tables[sig.MustParse("vi")] = []model.Slot{nil, model.SymbolSlot("_f")}
	mod.UsedPrimitives.Add("Math_imul")
	parts := &metadata.TextParts{
		Funcs: "function _main() {\n return 0;\n}\nfunction _f(x) {\n x = x|0;\n _puts(x|0)|0;\n}\n",
	}
	return mod, parts
}

func binaryModule() *model.Module {
	mod := model.NewModule()
	mod.Implemented.Add("_main")
	mod.Declared.Add("_puts")
	mod.Exports.Add("_main")
	mod.Initializers = []string{"_init_globals"}
	mod.Implemented.Add("_init_globals")
	mod.NamedGlobals["_counter"] = model.Address{Value: 2048}
	mod.TableSize = 2
	return mod
}

type linkCase struct {
	mod   *model.Module
	st    *settings.Settings
	parts *metadata.TextParts
	info  bool
}

func link(t *testing.T, c linkCase) (*Output, *diag.Bag) {
	t.Helper()
	out, bag, err := tryLink(c)
	require.NoError(t, err)
	return out, bag
}

func tryLink(c linkCase) (*Output, *diag.Bag, error) {
	ctx := context.Background()
	bag := diag.NewBag(0)
	rep := diag.BagReporter{Bag: bag, Stage: "assemble"}
	res, err := resolve.Resolve(ctx, c.mod, c.st, model.NewSymbolSet("puts"), rep)
	if err != nil {
		return nil, bag, err
	}
	set, err := tables.BuildAll(ctx, c.mod, res, tables.OptionsFrom(c.st), rep)
	if err != nil {
		return nil, bag, err
	}
	in := &Input{
		Module:     c.mod,
		Resolution: res,
		Memory:     testMemory(),
		Tables:     set,
		Settings:   c.st,
		Parts:      c.parts,
		OutputName: "out.js",
		Reporter:   rep,
	}
	if c.st.Encoding() == settings.EncodingBinary {
		in.Binary = wasmHeader
	}
	out, err := Assemble(ctx, in)
	return out, bag, err
}

func textSettings() *settings.Settings {
	st := settings.Default()
	st.Wasm = false
	return st
}

func mainJS(out *Output) string {
	return string(out.Main().Data)
}

func TestTextOutputIsDeterministic(t *testing.T) {
	var outputs []string
	for range 3 {
		mod, parts := textModule()
		out, bag := link(t, linkCase{mod: mod, st: textSettings(), parts: parts})
		require.False(t, bag.HasErrors(), "%+v", bag.Items())
		outputs = append(outputs, mainJS(out))
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

func TestBinaryOutputIsDeterministic(t *testing.T) {
	var outputs []string
	for range 3 {
		out, bag := link(t, linkCase{mod: binaryModule(), st: settings.Default()})
		require.False(t, bag.HasErrors(), "%+v", bag.Items())
		outputs = append(outputs, mainJS(out))
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

func TestTextModule(t *testing.T) {
	mod, parts := textModule()
	out, _ := link(t, linkCase{mod: mod, st: textSettings(), parts: parts})
	js := mainJS(out)

	assert.Equal(t, "out.js", out.Main().Name)
	assert.Len(t, out.Files, 1)
	assert.NotContains(t, js, "{{{")
	assert.NotContains(t, js, ModuleMarker)
	assert.Contains(t, js, "var GLOBAL_BASE = 1024;")
	assert.Contains(t, js, "var TABLE_SIZE = 2;")
	assert.Contains(t, js, "var Math_imul = global.Math.imul;")
	assert.Contains(t, js, "var _puts = env._puts;")
	assert.Contains(t, js, `"_puts": typeof _puts !== "undefined" ? _puts : lookupImport("_puts")`)
	assert.Contains(t, js, `"abort": abort`)
	assert.Contains(t, js, "var FUNCTION_TABLE_vi = [b_vi,_f];")
	assert.Contains(t, js, "function dynCall_vi(p0,p1) {")
	assert.Contains(t, js, "function nullFunc_vi(x) {")
	assert.Contains(t, js, "function stackAlloc(size) {")
	assert.Contains(t, js, `"_main": _main`)
	assert.Contains(t, js, "var memoryInitializer = null;")

	start := strings.Index(js, startAsmMarker)
	end := strings.Index(js, endAsmMarker)
	require.True(t, start >= 0 && end > start)
	assert.Contains(t, js[start:end], "function _main() {")
}

func TestBinaryGlue(t *testing.T) {
	out, _ := link(t, linkCase{mod: binaryModule(), st: settings.Default()})
	js := mainJS(out)

	wasm, ok := out.Lookup("out.wasm")
	require.True(t, ok)
	assert.Equal(t, wasmHeader, wasm.Data)
	assert.Contains(t, js, "var wasmBinaryFile = Module['wasmBinaryFile'] || 'out.wasm';")
	assert.Contains(t, js, `"memory": wasmMemory`)
	assert.Contains(t, js, `"table": wasmTable`)
	assert.Contains(t, js, `"puts": typeof _puts !== "undefined" ? _puts : lookupImport("_puts")`)
	assert.Contains(t, js, `Module["_counter"] = 2048;`)
	assert.Contains(t, js, "var _main;\n")
	assert.Contains(t, js, "function receiveInstance(instance) {")
	assert.Contains(t, js, `  _main = Module["_main"] = function() {`)
	assert.Contains(t, js, `    assertRuntimeReady("_main");`)
	assert.Contains(t, js, `    return asm["main"].apply(null, arguments);`)
	assert.Contains(t, js, "__ATINIT__.push(function() {\n  Module[\"asm\"][\"init_globals\"]();\n});")
}

func TestRelocatableGlobals(t *testing.T) {
	st := settings.Default()
	st.MainModule = true
	mod := binaryModule()
	mod.Externs.Add("_data")
	out, _ := link(t, linkCase{mod: mod, st: st})
	js := mainJS(out)

	assert.Contains(t, js, `Module["_counter"] = GLOBAL_BASE + 2048;`)
	assert.Contains(t, js, `"__memory_base": GLOBAL_BASE`)
	assert.Contains(t, js, `"g$_data": g$_data`)
	assert.Contains(t, js, "function g$_data() {")
}

func TestMinimalRuntimeSkipsGuards(t *testing.T) {
	st := settings.Default()
	st.MinimalRuntime = true
	out, _ := link(t, linkCase{mod: binaryModule(), st: st})
	js := mainJS(out)

	assert.Contains(t, js, `  _main = Module["_main"] = asm["main"];`)
	assert.NotContains(t, js, `assertRuntimeReady("_main")`)
}

func TestAssertionsOffSkipsGuards(t *testing.T) {
	mod, parts := textModule()
	st := textSettings()
	st.Assertions = 0
	out, _ := link(t, linkCase{mod: mod, st: st, parts: parts})
	js := mainJS(out)

	assert.Contains(t, js, `var _main = Module["_main"] = asm["_main"];`)
	assert.NotContains(t, js, "function nullFunc_vi(x) {")
}

func TestDisjointnessIsChecked(t *testing.T) {
	ctx := context.Background()
	mod := binaryModule()
	st := settings.Default()
	res, err := resolve.Resolve(ctx, mod, st, model.NewSymbolSet("puts"), nil)
	require.NoError(t, err)
	res.Imports.Add("_main")

	_, err = Assemble(ctx, &Input{
		Module: mod, Resolution: res, Settings: st, Memory: testMemory(),
		Tables: &tables.Set{}, Binary: wasmHeader, OutputName: "out.js",
	})
	var ae *AssembleError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, diag.AsmDisjointnessBroken, ae.Code())
}

func TestInvokeWrapperText(t *testing.T) {
	want := "function invoke_iii(index, a1, a2) {\n" +
		"  var sp = Module[\"asm\"][\"stackSave\"]();\n" +
		"  try {\n" +
		"    return Module[\"asm\"][\"dynCall_iii\"](index, a1, a2);\n" +
		"  } catch (e) {\n" +
		"    Module[\"asm\"][\"stackRestore\"](sp);\n" +
		"    if (typeof e !== \"number\" && e !== \"longjmp\") throw e;\n" +
		"    Module[\"asm\"][\"setThrew\"](1, 0);\n" +
		"  }\n" +
		"}\n"
	assert.Equal(t, want, InvokeWrapper("invoke_iii", true, nil))
	assert.Contains(t, InvokeWrapper("invoke_v", false, nil), "    Module[\"asm\"][\"dynCall_v\"](index);\n")
	assert.Contains(t, InvokeWrapper("invoke_v", false, nil), "if (typeof e !== \"number\") throw e;")
}

func TestInvokeWrapperBypassesExportGuards(t *testing.T) {
	for _, minify := range []bool{false, true} {
		mod, parts := textModule()
		mod.Implemented.Add("_ctor")
		mod.Initializers = []string{"_ctor"}
		mod.InvokeFuncs.Add("invoke_vi")
		st := textSettings()
		st.Assertions = 1
		st.MinifyExportNames = settings.Flag(minify)
		out, bag := link(t, linkCase{mod: mod, st: st, parts: parts})
		require.False(t, bag.HasErrors(), "%+v", bag.Items())
		js := mainJS(out)

		start := strings.Index(js, "function invoke_vi(")
		require.GreaterOrEqual(t, start, 0, "minify=%v", minify)
		end := strings.Index(js[start:], "\n}\n")
		require.Greater(t, end, 0)
		wrapper := js[start : start+end]

		assert.Contains(t, js, "assertRuntimeReady(", "minify=%v", minify)
		for _, helper := range []string{"stackSave", "stackRestore", "setThrew", "dynCall_vi"} {
			assert.NotContains(t, wrapper, "Module["+jsString(helper)+"]", "minify=%v", minify)
		}
		assert.Equal(t, 4, strings.Count(wrapper, `Module["asm"][`), "minify=%v", minify)
		if minify {
			assert.NotContains(t, wrapper, `Module["asm"]["stackSave"]`)
		} else {
			assert.Contains(t, wrapper, `Module["asm"]["stackSave"]()`)
		}
	}
}

func TestAsmConstDispatchers(t *testing.T) {
	mod, parts := textModule()
	mod.AsmConsts[3] = model.AsmConst{
		Code:      "return $0 + 1;",
		Sigs:      []sig.Signature{"ii", "ii"},
		CallTypes: []model.ProxyMode{model.ProxyDirect, model.ProxySync},
	}
	st := textSettings()
	st.UsePthreads = true
	out, _ := link(t, linkCase{mod: mod, st: st, parts: parts})
	js := mainJS(out)

	assert.Contains(t, js, "  3: function($0) { return $0 + 1; }\n")
	assert.Contains(t, js, "function _emscripten_asm_const_ii(code, a0) {\n  return ASM_CONSTS[code](a0);\n}")
	assert.Contains(t, js, "function _emscripten_asm_const_sync_on_main_thread_ii(code, a0) {\n"+
		"  if (ENVIRONMENT_IS_PTHREAD) return _emscripten_proxy_to_main_thread_js(-1 - code, 1, a0);\n")
}

func TestBinaryAsmConstReadsArgs(t *testing.T) {
	mod := binaryModule()
	mod.AsmConsts[0] = model.AsmConst{Code: "out($0)", Sigs: []sig.Signature{"vi"}, CallTypes: []model.ProxyMode{model.ProxyDirect}}
	out, _ := link(t, linkCase{mod: mod, st: settings.Default()})
	js := mainJS(out)

	assert.Contains(t, js, "function _emscripten_asm_const_vi(code, sigPtr, argbuf) {\n  var args = readAsmConstArgs(sigPtr, argbuf);\n")
	assert.Contains(t, js, `"emscripten_asm_const_vi": _emscripten_asm_const_vi`)
}

func TestI64HostSignatureRejected(t *testing.T) {
	mod := binaryModule()
	mod.AsmConsts[0] = model.AsmConst{Code: "x", Sigs: []sig.Signature{"vj"}, CallTypes: []model.ProxyMode{model.ProxyDirect}}
	_, _, err := tryLink(linkCase{mod: mod, st: settings.Default()})
	var ae *AssembleError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, diag.AsmI64HostSignature, ae.Code())
}

func TestMemoryInitializer(t *testing.T) {
	mod, parts := textModule()
	parts.MemInit = []byte{1, 2, 255}
	out, _ := link(t, linkCase{mod: mod, st: textSettings(), parts: parts})
	assert.Contains(t, mainJS(out), "var memoryInitializer = [1,2,255];")

	mod, parts = textModule()
	parts.MemInit = []byte{1, 2, 255}
	st := textSettings()
	st.MemInitMethod = 1
	out, _ = link(t, linkCase{mod: mod, st: st, parts: parts})
	assert.Contains(t, mainJS(out), `var memoryInitializer = "out.js.mem";`)
	mem, ok := out.Lookup("out.js.mem")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 255}, mem.Data)
}

func TestMinifiedExportsAndSymbolMap(t *testing.T) {
	mod, parts := textModule()
	st := textSettings()
	st.MinifyExportNames = true
	st.EmitSymbolMap = true
	out, _ := link(t, linkCase{mod: mod, st: st, parts: parts})
	js := mainJS(out)

	assert.Contains(t, js, `"a": _main`)
	assert.Contains(t, js, `return asm["a"].apply(null, arguments);`)
	symbols, ok := out.Lookup("out.js.symbols")
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(symbols.Data)), "\n")
	assert.Contains(t, lines, "a:_main")
	assert.IsIncreasing(t, lines)
}

func TestBinarySymbolMapNeedsInspection(t *testing.T) {
	st := settings.Default()
	st.EmitSymbolMap = true
	out, bag := link(t, linkCase{mod: binaryModule(), st: st})

	_, ok := out.Lookup("out.js.symbols")
	assert.False(t, ok)
	var codes []diag.Code
	for _, d := range bag.Items() {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, diag.AsmSymbolMapIncomplete)
}

func TestMinifiedNames(t *testing.T) {
	names := MinifiedNames(3000)
	require.Len(t, names, 3000)
	assert.Equal(t, []string{"a", "b", "c"}, names[:3])
	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, reservedWords[n], n)
		assert.False(t, seen[n], n)
		seen[n] = true
	}
}
