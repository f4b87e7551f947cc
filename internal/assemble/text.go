package assemble

import (
	"path/filepath"
	"strconv"
	"strings"

	"emlink/internal/metadata"
	"emlink/internal/model"
)

const (
	startAsmMarker = "// EMSCRIPTEN_START_ASM"
	endAsmMarker   = "// EMSCRIPTEN_END_ASM"
)

var heapViews = []struct{ name, ctor string }{
	{"HEAP8", "Int8Array"},
	{"HEAP16", "Int16Array"},
	{"HEAP32", "Int32Array"},
	{"HEAPU8", "Uint8Array"},
	{"HEAPU16", "Uint16Array"},
	{"HEAPU32", "Uint32Array"},
	{"HEAPF32", "Float32Array"},
	{"HEAPF64", "Float64Array"},
}

// asmVars are runtime words the module reads from its environment.
var asmVars = []string{"DYNAMICTOP_PTR", "tempDoublePtr", "STACKTOP", "STACK_MAX"}

func (e *Emitter) emitText() {
	e.emitConfig()
	if header := strings.TrimSpace(e.in.Parts.Header); header != "" {
		e.line("%s", header)
		e.blank()
	}
	e.emitMemoryInitializer()
	e.emitHostFunctions()
	e.emitAsmGlobalArg()
	e.emitAsmLibraryArg()
	e.blank()
	e.emitAsmModule()
	e.blank()
	e.line("Module[\"asm\"] = asm;")
	for _, name := range e.res.Exports.Sorted() {
		e.emitBinding(name, "asm", "", true)
	}
	e.blank()
	e.emitInitializers("asm")
}

// emitMemoryInitializer embeds the static memory image, or names the side
// file it is loaded from when MEM_INIT_METHOD=1.
func (e *Emitter) emitMemoryInitializer() {
	image := e.in.Parts.MemInit
	switch {
	case len(image) == 0:
		e.line("var memoryInitializer = null;")
	case e.st.MemInitMethod == 1:
		e.memFile = image
		e.line("var memoryInitializer = %s;", jsString(filepath.Base(MemFileName(e.in.OutputName))))
	default:
		var b strings.Builder
		for i, v := range image {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(int(v)))
		}
		e.line("var memoryInitializer = [%s];", b.String())
	}
	e.blank()
}

func (e *Emitter) emitAsmGlobalArg() {
	var entries []objectEntry
	for _, v := range heapViews {
		entries = append(entries, objectEntry{key: v.ctor, value: v.ctor})
	}
	entries = append(entries, objectEntry{key: "NaN", value: "NaN"}, objectEntry{key: "Infinity", value: "Infinity"})
	if e.mod.UsedPrimitives.Len() > 0 {
		entries = append(entries, objectEntry{key: "Math", value: "Math"})
	}
	e.emitObject("var asmGlobalArg = ", entries)
}

func (e *Emitter) emitAsmLibraryArg() {
	var entries []objectEntry
	for _, v := range asmVars {
		entries = append(entries, objectEntry{key: v, value: v})
	}
	for _, name := range e.res.Imports.Sorted() {
		entries = append(entries, objectEntry{key: name, value: e.importValue(name)})
	}
	e.emitObject("var asmLibraryArg = ", entries)
}

func (e *Emitter) emitAsmModule() {
	e.line("%s", startAsmMarker)
	e.line("var asm = (function(global, env, buffer) {")
	e.line("'almost asm';")
	e.blank()
	for _, v := range heapViews {
		e.line("var %s = new global.%s(buffer);", v.name, v.ctor)
	}
	for _, v := range asmVars {
		e.line("var %s = env.%s|0;", v, v)
	}
	e.line("var __THREW__ = 0;")
	e.line("var threwValue = 0;")
	e.line("var tempRet0 = 0;")
	e.line("var NaN = global.NaN, Infinity = global.Infinity;")
	for _, p := range e.mod.UsedPrimitives.Sorted() {
		e.line("var %s = global.Math.%s;", p, strings.TrimPrefix(p, "Math_"))
	}
	for _, name := range e.res.Imports.Sorted() {
		e.line("var %s = env.%s;", name, name)
	}
	e.blank()
	e.emitSupportFunctions()
	e.line("%s", metadata.StartFuncsMarker)
	if funcs := strings.Trim(e.in.Parts.Funcs, "\n"); funcs != "" {
		e.line("%s", funcs)
	}
	e.line("%s", metadata.EndFuncsMarker)
	e.blank()
	for _, f := range e.in.Tables.Funcs() {
		e.buf.WriteString(f.Source())
	}
	for _, t := range e.in.Tables.Tables {
		if !e.definedInFuncs("dynCall_" + string(t.Sig)) {
			e.buf.WriteString(t.DynCall().Source())
		}
	}
	e.blank()
	for _, t := range e.in.Tables.Tables {
		e.line("%s", t.Literal())
	}
	e.blank()
	var entries []objectEntry
	for _, name := range e.res.Exports.Sorted() {
		entries = append(entries, objectEntry{key: e.exportKeys[name], value: name})
	}
	e.emitObject("return ", entries)
	e.line("})")
	e.line("%s", endAsmMarker)
	e.line("(asmGlobalArg, asmLibraryArg, buffer);")
}

func (e *Emitter) definedInFuncs(name string) bool {
	return strings.Contains(e.in.Parts.Funcs, "function "+name+"(")
}

// emitSupportFunctions writes the stack and tempRet helpers the text
// encoding implements itself, unless the backend already did.
func (e *Emitter) emitSupportFunctions() {
	for _, h := range model.StackHelpers {
		if !e.mod.Implemented.Has(h) || e.definedInFuncs(h) {
			continue
		}
		e.buf.WriteString(e.stackHelper(h))
	}
	if !e.definedInFuncs("setTempRet0") {
		e.line("function setTempRet0(value) {")
		e.line(" value = value|0;")
		e.line(" tempRet0 = value;")
		e.line("}")
	}
	if !e.definedInFuncs("getTempRet0") {
		e.line("function getTempRet0() {")
		e.line(" return tempRet0|0;")
		e.line("}")
	}
}

func (e *Emitter) stackHelper(name string) string {
	overflow := ""
	if e.res.Imports.Has("abortStackOverflow") {
		overflow = " if ((STACKTOP|0) >= (STACK_MAX|0)) abortStackOverflow(size|0);\n"
		if e.stackGrowsDown() {
			overflow = " if ((STACKTOP|0) < (STACK_MAX|0)) abortStackOverflow(size|0);\n"
		}
	}
	switch name {
	case "stackAlloc":
		if e.stackGrowsDown() {
			return "function stackAlloc(size) {\n size = size|0;\n STACKTOP = (STACKTOP - size)|0;\n STACKTOP = STACKTOP & -16;\n" +
				overflow + " return STACKTOP|0;\n}\n"
		}
		return "function stackAlloc(size) {\n size = size|0;\n var ret = 0;\n ret = STACKTOP;\n STACKTOP = (STACKTOP + size)|0;\n STACKTOP = (STACKTOP + 15)&-16;\n" +
			overflow + " return ret|0;\n}\n"
	case "stackSave":
		return "function stackSave() {\n return STACKTOP|0;\n}\n"
	case "stackRestore":
		return "function stackRestore(top) {\n top = top|0;\n STACKTOP = top;\n}\n"
	case "establishStackSpace":
		return "function establishStackSpace(stackBase, stackMax) {\n stackBase = stackBase|0;\n stackMax = stackMax|0;\n STACKTOP = stackBase;\n STACK_MAX = stackMax;\n}\n"
	case "setThrew":
		return "function setThrew(threw, value) {\n threw = threw|0;\n value = value|0;\n if ((__THREW__|0) == 0) {\n  __THREW__ = threw;\n  threwValue = value;\n }\n}\n"
	}
	return ""
}
