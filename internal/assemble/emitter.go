package assemble

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"emlink/internal/layout"
	"emlink/internal/model"
	"emlink/internal/resolve"
	"emlink/internal/settings"
	"emlink/internal/sig"
)

// Emitter writes the module section that is spliced into the template.
type Emitter struct {
	in   *Input
	mod  *model.Module
	res  *resolve.Resolution
	st   *settings.Settings
	text bool
	buf  strings.Builder

	// exportKeys maps a host export name to its key in the module's export
	// object; keys differ from names only when export names are minified.
	exportKeys map[string]string
	memFile    []byte
}

func newEmitter(in *Input) *Emitter {
	e := &Emitter{
		in:         in,
		mod:        in.Module,
		res:        in.Resolution,
		st:         in.Settings,
		text:       in.Settings.Encoding() == settings.EncodingText,
		exportKeys: make(map[string]string),
	}
	exports := e.res.Exports.Sorted()
	var minified []string
	if e.text && bool(e.st.MinifyExportNames) {
		minified = MinifiedNames(len(exports))
	}
	for i, name := range exports {
		switch {
		case minified != nil:
			e.exportKeys[name] = minified[i]
		case e.text:
			e.exportKeys[name] = name
		default:
			e.exportKeys[name] = model.Demangle(name)
		}
	}
	return e
}

func (e *Emitter) line(format string, args ...any) {
	fmt.Fprintf(&e.buf, format, args...)
	e.buf.WriteByte('\n')
}

func (e *Emitter) blank() {
	e.buf.WriteByte('\n')
}

func jsString(s string) string {
	return strconv.Quote(s)
}

func flagInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (e *Emitter) guarded() bool {
	return e.st.Assertions >= 1 && !bool(e.st.MinimalRuntime)
}

// emitConfig writes the settings the template consults at run time.
func (e *Emitter) emitConfig() {
	e.line("var MAIN_READS_PARAMS = %d;", flagInt(e.mod.MainReadsParams))
	e.line("var ALLOW_MEMORY_GROWTH = %d;", flagInt(bool(e.st.AllowMemoryGrowth)))
	e.line("var RESERVED_FUNCTION_POINTERS = %d;", e.st.ReservedFunctionPointers)
	e.blank()
}

// argList names n arguments starting at first: a1, a2, ...
func argList(n, first int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "a" + strconv.Itoa(i+first)
	}
	return out
}

func returnPrefix(s sig.Signature) string {
	if s.Return() == sig.Void {
		return ""
	}
	return "return "
}

// emitHostFunctions writes the host-side functions the module imports:
// trap reporters, callback slots, invoke trampolines, inline host code and
// relocation stubs.
func (e *Emitter) emitHostFunctions() {
	for _, s := range e.mod.TableSignatures() {
		if e.res.Imports.Has("nullFunc_" + string(s)) {
			e.emitNullFunc(s)
		}
	}
	for _, s := range e.mod.TableSignatures() {
		if e.res.Imports.Has("jsCall_" + string(s)) {
			e.emitJsCall(s)
		}
	}
	for _, name := range e.mod.InvokeFuncs.Sorted() {
		e.emitInvoke(name)
	}
	e.emitAsmConsts()
	for _, name := range e.mod.EmJsNames() {
		e.emitEmJs(name, e.mod.EmJsFuncs[name])
	}
	if e.st.IsRelocatable() {
		e.emitRelocationStubs()
	}
}

func (e *Emitter) emitNullFunc(s sig.Signature) {
	e.line("function nullFunc_%s(x) {", s)
	if !e.st.MinimalRuntime {
		hint := ""
		if e.st.Assertions < 2 {
			hint = " Build with ASSERTIONS=2 for more info."
		}
		e.line("  err(%s + x + %s);", jsString("Invalid function pointer "),
			jsString(" called with signature '"+string(s)+"'. Perhaps this is an invalid value (e.g. caused by calling a virtual method on a NULL pointer)? Or calling a function with an incorrect type, which will fail?"+hint))
	}
	e.line("  abort(x);")
	e.line("}")
	e.blank()
}

func (e *Emitter) emitJsCall(s sig.Signature) {
	args := argList(s.Arity(), 1)
	params := append([]string{"index"}, args...)
	e.line("function jsCall_%s(%s) {", s, strings.Join(params, ", "))
	e.line("  %sjsCallbacks[index](%s);", returnPrefix(s), strings.Join(args, ", "))
	e.line("}")
	e.blank()
}

// InvokeWrapper renders the trampoline that calls through a function table
// and turns a thrown exception or longjmp into setThrew. The trampoline
// reaches the helpers through the raw exports in Module["asm"] because
// static constructors call it before the runtime is ready. key maps a helper
// to its export key; nil keeps the helper's own name.
func InvokeWrapper(name string, longjmp bool, key func(string) string) string {
	if key == nil {
		key = func(s string) string { return s }
	}
	raw := func(helper string) string {
		return "Module[\"asm\"][" + jsString(key(helper)) + "]"
	}
	s := sig.Signature(strings.TrimPrefix(name, "invoke_"))
	args := argList(s.Arity(), 1)
	params := append([]string{"index"}, args...)
	var b strings.Builder
	fmt.Fprintf(&b, "function %s(%s) {\n", name, strings.Join(params, ", "))
	fmt.Fprintf(&b, "  var sp = %s();\n", raw("stackSave"))
	b.WriteString("  try {\n")
	fmt.Fprintf(&b, "    %s%s(%s);\n", returnPrefix(s), raw("dynCall_"+string(s)), strings.Join(params, ", "))
	b.WriteString("  } catch (e) {\n")
	fmt.Fprintf(&b, "    %s(sp);\n", raw("stackRestore"))
	if longjmp {
		b.WriteString("    if (typeof e !== \"number\" && e !== \"longjmp\") throw e;\n")
	} else {
		b.WriteString("    if (typeof e !== \"number\") throw e;\n")
	}
	fmt.Fprintf(&b, "    %s(1, 0);\n", raw("setThrew"))
	b.WriteString("  }\n")
	b.WriteString("}\n")
	return b.String()
}

func (e *Emitter) emitInvoke(name string) {
	e.buf.WriteString(InvokeWrapper(name, bool(e.st.SupportLongjmp), e.exportKey))
	e.blank()
}

// exportKey is the key host is exported under by the module.
func (e *Emitter) exportKey(host string) string {
	if k, ok := e.exportKeys[host]; ok {
		return k
	}
	return host
}

// emitAsmConsts writes the inline host code table and one dispatcher per
// (call type, signature) pair. Proxied blocks forward to the main thread
// when called from a worker.
func (e *Emitter) emitAsmConsts() {
	ids := e.mod.AsmConstIDs()
	if len(ids) == 0 {
		return
	}
	e.line("var ASM_CONSTS = {")
	for i, id := range ids {
		c := e.mod.AsmConsts[id]
		params := make([]string, c.Arity())
		for j := range params {
			params[j] = "$" + strconv.Itoa(j)
		}
		sep := ","
		if i == len(ids)-1 {
			sep = ""
		}
		e.line("  %d: function(%s) { %s }%s", id, strings.Join(params, ", "), c.Code, sep)
	}
	e.line("};")
	e.blank()

	type dispatcher struct {
		mode model.ProxyMode
		sig  sig.Signature
	}
	seen := make(map[string]dispatcher)
	for _, id := range ids {
		c := e.mod.AsmConsts[id]
		for i, s := range c.Sigs {
			seen[model.AsmConstDispatcher(c.CallTypes[i], string(s))] = dispatcher{mode: c.CallTypes[i], sig: s}
		}
	}
	for _, name := range model.SortedKeys(seen) {
		d := seen[name]
		if e.text {
			e.emitTextDispatcher(name, d.mode, d.sig)
		} else {
			e.emitBinaryDispatcher(name, d.mode, d.sig)
		}
	}
}

func (e *Emitter) proxied(mode model.ProxyMode) bool {
	return bool(e.st.UsePthreads) && mode.Proxied()
}

func syncFlag(mode model.ProxyMode) int {
	return flagInt(mode == model.ProxySync)
}

func (e *Emitter) emitTextDispatcher(name string, mode model.ProxyMode, s sig.Signature) {
	args := argList(s.Arity(), 0)
	params := append([]string{"code"}, args...)
	e.line("function %s(%s) {", name, strings.Join(params, ", "))
	if e.proxied(mode) {
		fwd := append([]string{"-1 - code", strconv.Itoa(syncFlag(mode))}, args...)
		e.line("  if (ENVIRONMENT_IS_PTHREAD) return _emscripten_proxy_to_main_thread_js(%s);", strings.Join(fwd, ", "))
	}
	e.line("  %sASM_CONSTS[code](%s);", returnPrefix(s), strings.Join(args, ", "))
	e.line("}")
	e.blank()
}

func (e *Emitter) emitBinaryDispatcher(name string, mode model.ProxyMode, s sig.Signature) {
	e.line("function %s(code, sigPtr, argbuf) {", name)
	e.line("  var args = readAsmConstArgs(sigPtr, argbuf);")
	if e.proxied(mode) {
		e.line("  if (ENVIRONMENT_IS_PTHREAD) return _emscripten_proxy_to_main_thread_js.apply(null, [-1 - code, %d].concat(args));", syncFlag(mode))
	}
	e.line("  %sASM_CONSTS[code].apply(null, args);", returnPrefix(s))
	e.line("}")
	e.blank()
}

func (e *Emitter) emitEmJs(name string, fn model.EmJsFunc) {
	body := strings.TrimSpace(fn.Body)
	if !strings.HasPrefix(body, "{") {
		body = "{ " + body + " }"
	}
	e.line("function %s(%s) %s", name, strings.Join(fn.Params, ", "), body)
	e.blank()
}

// emitRelocationStubs resolves data and function addresses of other modules
// lazily, on first use.
func (e *Emitter) emitRelocationStubs() {
	for _, name := range e.mod.Externs.Sorted() {
		e.line("function g$%s() {", name)
		e.line("  var addr = Module[%s];", jsString(name))
		e.line("  if (addr === undefined) abort(%s);", jsString("external symbol "+name+" is missing"))
		e.line("  return addr;")
		e.line("}")
		e.blank()
	}
	for _, name := range e.mod.ExternFunctionNames() {
		s := e.mod.ExternFunctions[name]
		stub := resolve.FunctionPointerImport(name, string(s))
		e.line("function %s() {", stub)
		e.line("  if (!Module[%s]) {", jsString(stub))
		e.line("    var func = Module[%s];", jsString(name))
		e.line("    if (!func) abort(%s);", jsString("external function "+name+" is missing"))
		e.line("    Module[%s] = addFunction(func, %s);", jsString(stub), jsString(string(s)))
		e.line("  }")
		e.line("  return Module[%s];", jsString(stub))
		e.line("}")
		e.blank()
	}
}

// importValue is the expression that provides import name to the module.
// Functions the glue defines itself are referenced directly; anything else
// comes from the library or from Module at run time.
func (e *Emitter) importValue(name string) string {
	if e.isGenerated(name) || e.res.RuntimeImports.Has(name) {
		return name
	}
	return fmt.Sprintf("typeof %s !== \"undefined\" ? %s : lookupImport(%s)", name, name, jsString(name))
}

func (e *Emitter) isGenerated(name string) bool {
	switch {
	case strings.HasPrefix(name, "nullFunc_"), strings.HasPrefix(name, "jsCall_"):
		return true
	case e.mod.InvokeFuncs.Has(name), resolve.IsEmJs(e.mod, name), model.IsAsmConstDispatcher(name):
		return true
	case strings.HasPrefix(name, "g$"), strings.HasPrefix(name, "fp$"):
		return e.st.IsRelocatable()
	}
	return false
}

type objectEntry struct {
	key, value string
}

// emitObject writes an object literal with entries sorted by key.
func (e *Emitter) emitObject(prefix string, entries []objectEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	if len(entries) == 0 {
		e.line("%s{};", prefix)
		return
	}
	e.line("%s{", prefix)
	for i, ent := range entries {
		sep := ","
		if i == len(entries)-1 {
			sep = ""
		}
		e.line("  %s: %s%s", jsString(ent.key), ent.value, sep)
	}
	e.line("};")
}

// emitBinding makes export host available to callers under its host name.
// asmExpr is the expression holding the module's exports.
func (e *Emitter) emitBinding(host, asmExpr, indent string, declare bool) {
	decl := ""
	if declare {
		decl = "var "
	}
	key := jsString(e.exportKeys[host])
	if !e.guarded() {
		e.line("%s%s%s = Module[%s] = %s[%s];", indent, decl, host, jsString(host), asmExpr, key)
		return
	}
	e.line("%s%s%s = Module[%s] = function() {", indent, decl, host, jsString(host))
	e.line("%s  assertRuntimeReady(%s);", indent, jsString(host))
	e.line("%s  return %s[%s].apply(null, arguments);", indent, asmExpr, key)
	e.line("%s};", indent)
}

// emitInitializers queues the static constructors in their listed order.
// They run while the runtime is initializing, so they bypass the guards.
func (e *Emitter) emitInitializers(asmExpr string) {
	for _, name := range e.mod.Initializers {
		key, ok := e.exportKeys[name]
		if !ok {
			continue
		}
		e.line("__ATINIT__.push(function() {")
		e.line("  %s[%s]();", asmExpr, jsString(key))
		e.line("});")
	}
	if len(e.mod.Initializers) > 0 {
		e.blank()
	}
}

func (e *Emitter) stackGrowsDown() bool {
	return e.in.Memory.Direction == layout.Down
}
