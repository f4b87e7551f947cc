package model

import "strings"

// StackHelpers are runtime functions the linked module provides for stack
// management. They keep their host names unmangled.
var StackHelpers = []string{
	"stackAlloc",
	"stackSave",
	"stackRestore",
	"establishStackSpace",
	"setThrew",
}

var systemFuncs = map[string]bool{
	"stackAlloc":          true,
	"stackSave":           true,
	"stackRestore":        true,
	"establishStackSpace": true,
	"setThrew":            true,
	"setTempRet0":         true,
	"getTempRet0":         true,
}

// IsSystemFunc reports whether name is generated by the toolchain rather
// than written by the user: stack helpers, dynCall_ trampolines and the
// like.
func IsSystemFunc(name string) bool {
	if systemFuncs[name] {
		return true
	}
	return strings.HasPrefix(name, "dynCall_") ||
		strings.HasPrefix(name, "invoke_") ||
		strings.HasPrefix(name, "g$") ||
		strings.HasPrefix(name, "fp$")
}

// Mangle maps a native symbol name to the host-visible name: user symbols
// get a leading underscore, system functions keep theirs.
func Mangle(name string) string {
	if name == "" || IsSystemFunc(name) {
		return name
	}
	return "_" + name
}

// Demangle undoes Mangle.
func Demangle(name string) string {
	if IsSystemFunc(name) {
		return name
	}
	return strings.TrimPrefix(name, "_")
}

// ImportName is the key an import is provided under in the binary glue.
// Inline host functions are looked up by their own name.
func ImportName(name string, isEmJs bool) string {
	if isEmJs || strings.HasPrefix(name, "Math_") {
		return name
	}
	return strings.TrimPrefix(name, "_")
}

// AsmConstDispatcher is the name of the host function that runs inline host
// code for one (call type, signature) pair.
func AsmConstDispatcher(mode ProxyMode, s string) string {
	return "_emscripten_asm_const_" + mode.CallType() + s
}

// IsAsmConstDispatcher reports whether name was generated by
// AsmConstDispatcher, with or without the leading underscore.
func IsAsmConstDispatcher(name string) bool {
	return strings.HasPrefix(strings.TrimPrefix(name, "_"), "emscripten_asm_const_")
}

// InvokeName is the exception-catching trampoline for a signature.
func InvokeName(s string) string {
	return "invoke_" + s
}
