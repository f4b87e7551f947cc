package assemble

import (
	"strconv"

	"emlink/internal/model"
	"emlink/internal/resolve"
)

// emitBinary writes the glue for a WebAssembly binary: the import object,
// the bindings that receive the exports, and named global addresses.
func (e *Emitter) emitBinary() {
	e.emitConfig()
	e.emitHostFunctions()
	e.emitNamedGlobals()
	e.emitBinaryLibraryArg()
	e.blank()

	exports := e.res.Exports.Sorted()
	for _, name := range exports {
		e.line("var %s;", name)
	}
	if len(exports) > 0 {
		e.blank()
	}
	e.line("function receiveInstance(instance) {")
	e.line("  var asm = instance.exports;")
	e.line("  Module[\"asm\"] = asm;")
	for _, name := range exports {
		e.emitBinding(name, "asm", "  ", false)
	}
	e.line("}")
	e.blank()
	e.emitInitializers("Module[\"asm\"]")
}

// emitBinaryLibraryArg writes the env import object. Keys are the names the
// binary imports: without the leading underscore, except inline host
// functions which keep theirs.
func (e *Emitter) emitBinaryLibraryArg() {
	entries := []objectEntry{
		{key: "memory", value: "wasmMemory"},
		{key: "table", value: "wasmTable"},
	}
	for _, v := range asmVars {
		entries = append(entries, objectEntry{key: v, value: v})
	}
	if e.st.IsRelocatable() {
		entries = append(entries,
			objectEntry{key: "__memory_base", value: "GLOBAL_BASE"},
			objectEntry{key: "__table_base", value: "0"},
		)
	}
	for _, name := range e.res.Imports.Sorted() {
		key := model.ImportName(name, resolve.IsEmJs(e.mod, name))
		entries = append(entries, objectEntry{key: key, value: e.importValue(name)})
	}
	e.emitObject("var asmLibraryArg = ", entries)
}

// emitNamedGlobals publishes the addresses of named globals on Module.
// Relocatable modules are loaded at GLOBAL_BASE, so their addresses are
// offsets from it.
func (e *Emitter) emitNamedGlobals() {
	names := e.mod.NamedGlobalNames()
	for _, name := range names {
		addr := e.mod.NamedGlobals[name]
		value := addr.String()
		if !addr.IsSymbolic() {
			value = strconv.FormatUint(uint64(addr.Value), 10)
			if e.st.IsRelocatable() {
				value = "GLOBAL_BASE + " + value
			}
		}
		e.line("Module[%s] = %s;", jsString(name), value)
	}
	if len(names) > 0 {
		e.blank()
	}
}
