// Package resolve decides which symbols a linked module imports from the
// host and which it exports, and reports the symbols nobody provides.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"emlink/internal/diag"
	"emlink/internal/model"
	"emlink/internal/settings"
	"emlink/internal/trace"
)

// Resolution is the outcome of symbol resolution.
type Resolution struct {
	// Imports are provided by the host at instantiation time.
	Imports *model.SymbolSet
	// Exports are visible to the host after instantiation.
	Exports *model.SymbolSet
	// UserExports are metadata exports the program asked for, as opposed to
	// toolchain-generated ones.
	UserExports *model.SymbolSet
	// RuntimeImports are the runtime support functions among Imports.
	RuntimeImports *model.SymbolSet
	// TableCallable may be stored in a function table.
	TableCallable *model.SymbolSet
	// Undefined are declared symbols nothing provides.
	Undefined []string
}

// IsEmJs reports whether name is an inline host function of mod.
func IsEmJs(mod *model.Module, name string) bool {
	_, ok := mod.EmJsFuncs[name]
	return ok
}

// Resolve normalizes mod in place and computes the import and export sets.
// Findings go to rep; the returned error is reserved for broken invariants.
func Resolve(ctx context.Context, mod *model.Module, st *settings.Settings, library *model.SymbolSet, rep diag.Reporter) (*Resolution, error) {
	if rep == nil {
		rep = diag.NopReporter{}
	}
	r := &resolver{
		ctx:     ctx,
		mod:     mod,
		st:      st,
		library: library,
		rep:     diag.NewDedupReporter(rep),
		text:    st.Encoding() == settings.EncodingText,
		res: &Resolution{
			Imports:        model.NewSymbolSet(),
			Exports:        model.NewSymbolSet(),
			UserExports:    model.NewSymbolSet(),
			RuntimeImports: model.NewSymbolSet(),
			TableCallable:  model.NewSymbolSet(),
		},
	}
	r.normalize()
	r.collectImports()
	r.collectExports()
	r.checkMain()
	r.collectTableCallable()
	if err := r.res.Verify(mod); err != nil {
		return nil, err
	}
	return r.res, nil
}

type resolver struct {
	ctx     context.Context
	mod     *model.Module
	st      *settings.Settings
	library *model.SymbolSet
	rep     diag.Reporter
	text    bool
	res     *Resolution
}

func (r *resolver) point(name, detail string) {
	trace.StagePoint(r.ctx, trace.ScopeSymbol, name, detail)
}

// normalize drops declared names that turn out to be implemented, and treats
// aliases of implemented functions as implemented.
func (r *resolver) normalize() {
	for _, alias := range model.SortedKeys(r.mod.Aliases) {
		if r.mod.Implemented.Has(r.mod.Aliases[alias]) {
			r.mod.Implemented.Add(alias)
			r.point(alias, "alias of "+r.mod.Aliases[alias])
		}
	}
	for _, name := range r.mod.Declared.Sorted() {
		if r.mod.Implemented.Has(name) {
			r.mod.Declared.Remove(name)
			diag.ReportInfo(r.rep, diag.ResDeclaredImplemented, name,
				name+" is both declared and implemented; the implementation is used").Emit()
		}
	}
	if r.text {
		// The text encoding synthesizes these itself.
		if r.st.ExportStackHelpers && !r.st.SideModule {
			for _, h := range model.StackHelpers {
				r.mod.Implemented.Add(h)
			}
		}
		for _, s := range r.mod.TableSignatures() {
			r.mod.Implemented.Add("dynCall_" + string(s))
		}
	}
}

func (r *resolver) inLibrary(name string) bool {
	if r.library.Has(name) || r.library.Has(model.Demangle(name)) {
		return true
	}
	for _, s := range r.st.LibrarySymbols {
		if s == name || s == model.Demangle(name) {
			return true
		}
	}
	return false
}

func (r *resolver) collectImports() {
	imports := r.res.Imports
	for _, name := range r.mod.Declared.Names() {
		imports.Add(name)
		if r.inLibrary(name) || r.mod.IsDefined(name) || r.st.IsRelocatable() {
			continue
		}
		r.res.Undefined = append(r.res.Undefined, name)
		if sev, ok := diag.Demotable(bool(r.st.ErrorOnUndefinedSymbols), bool(r.st.WarnOnUndefinedSymbols)); ok {
			diag.NewReportBuilder(r.rep, sev, diag.ResUndefinedSymbol, name, "undefined symbol: "+name).Emit()
		}
	}

	r.addRuntime(r.runtimeImports()...)

	for _, name := range r.mod.InvokeFuncs.Sorted() {
		imports.Add(name)
	}
	for _, name := range AsmConstDispatchers(r.mod) {
		imports.Add(name)
	}
	for _, name := range r.mod.EmJsNames() {
		imports.Add(name)
	}
	if r.st.IsRelocatable() {
		for _, name := range r.mod.Externs.Sorted() {
			imports.Add("g$" + name)
		}
		for _, name := range r.mod.ExternFunctionNames() {
			imports.Add(FunctionPointerImport(name, string(r.mod.ExternFunctions[name])))
		}
	}
}

func (r *resolver) addRuntime(names ...string) {
	for _, name := range names {
		if r.mod.Implemented.Has(name) {
			continue
		}
		r.res.Imports.Add(name)
		r.res.RuntimeImports.Add(name)
	}
}

func (r *resolver) runtimeImports() []string {
	var out []string
	if r.text {
		out = append(out, r.st.RuntimeFuncsToImport...)
	}
	if r.st.SafeHeap {
		out = append(out, "segfault", "alignfault")
	}
	if r.st.StackOverflowCheck >= 1 {
		out = append(out, "abortStackOverflow")
	}
	for _, s := range r.mod.TableSignatures() {
		if r.text && r.st.Assertions >= 1 {
			out = append(out, "nullFunc_"+string(s))
		}
		if r.text && r.st.ReservedFunctionPointers > 0 && !s.HasI64() {
			out = append(out, "jsCall_"+string(s))
		}
	}
	return out
}

// FunctionPointerImport names the import through which a relocatable module
// obtains the table index of a function defined elsewhere.
func FunctionPointerImport(name, signature string) string {
	if signature == "" {
		return "fp$" + name
	}
	return "fp$" + name + "$" + signature
}

// AsmConstDispatchers lists one dispatcher per distinct (call type,
// signature) pair used by the inline host code of mod, sorted.
func AsmConstDispatchers(mod *model.Module) []string {
	set := model.NewSymbolSet()
	for _, id := range mod.AsmConstIDs() {
		c := mod.AsmConsts[id]
		for i, s := range c.Sigs {
			set.Add(model.AsmConstDispatcher(c.CallTypes[i], string(s)))
		}
	}
	return set.Sorted()
}

func (r *resolver) collectExports() {
	exports := r.res.Exports
	ignored := model.NewSymbolSet(r.st.IgnoredUndefinedExports...)

	for _, name := range r.st.ExportedFunctions {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
			diag.ReportError(r.rep, diag.ResBadExportName, name, "empty name in EXPORTED_FUNCTIONS").Emit()
		case r.mod.Implemented.Has(name):
			exports.Add(name)
		case ignored.Has(name):
			r.point(name, "undefined export ignored")
		case isMain(name) && (r.expectsMain() || bool(r.st.IgnoreMissingMain)):
			// reported by checkMain, or explicitly allowed to be absent
		default:
			if sev, ok := diag.Demotable(bool(r.st.ErrorOnUndefinedSymbols), bool(r.st.WarnOnUndefinedSymbols)); ok {
				diag.NewReportBuilder(r.rep, sev, diag.ResUndefinedExport, name, "undefined exported function: "+name).
					WithNote("remove it from EXPORTED_FUNCTIONS or list it in IGNORED_UNDEFINED_EXPORTS").
					Emit()
			}
		}
	}

	for _, name := range r.mod.Exports.Names() {
		if r.res.Imports.Has(name) {
			continue
		}
		exports.Add(name)
		if !model.IsSystemFunc(name) {
			r.res.UserExports.Add(name)
		}
	}

	for _, name := range r.mod.Initializers {
		if !r.mod.Implemented.Has(name) {
			diag.ReportError(r.rep, diag.ResUninitializedInit, name, "initializer "+name+" is not implemented").Emit()
			continue
		}
		exports.Add(name)
	}

	if r.st.ExportStackHelpers && !r.st.SideModule {
		for _, h := range model.StackHelpers {
			if r.mod.Implemented.Has(h) {
				exports.Add(h)
			}
		}
	}

	if r.text {
		for _, s := range r.mod.TableSignatures() {
			exports.Add("dynCall_" + string(s))
		}
	}

	if r.st.ExportAll {
		for _, name := range r.mod.Implemented.Names() {
			exports.Add(name)
		}
	}
}

func (r *resolver) expectsMain() bool {
	return bool(r.st.ExpectMain) && !bool(r.st.SideModule) && !bool(r.st.IgnoreMissingMain)
}

func isMain(name string) bool {
	return name == "_main" || name == "main"
}

func (r *resolver) checkMain() {
	if !r.expectsMain() {
		return
	}
	if r.mod.Implemented.Has("_main") || r.mod.Implemented.Has("main") {
		return
	}
	diag.ReportError(r.rep, diag.ResMissingMain, "_main", "entry point _main is not defined").
		WithNote("set IGNORE_MISSING_MAIN=1 or EXPECT_MAIN=0 to build a module without one").
		Emit()
}

func (r *resolver) collectTableCallable() {
	for _, s := range r.mod.TableSignatures() {
		for _, slot := range r.mod.Tables[s] {
			if slot != nil {
				r.res.TableCallable.Add(*slot)
			}
		}
	}
	for _, name := range r.mod.ExternFunctionNames() {
		r.res.TableCallable.Add(name)
	}
}

// Verify checks that no symbol is both declared and implemented and that the
// import and export sets are disjoint.
func (res *Resolution) Verify(mod *model.Module) error {
	if both := mod.Declared.Intersect(mod.Implemented); len(both) > 0 {
		return fmt.Errorf("internal error: symbols both declared and implemented: %s", strings.Join(both, ", "))
	}
	if both := res.Imports.Intersect(res.Exports); len(both) > 0 {
		return fmt.Errorf("internal error: symbols both imported and exported: %s", strings.Join(both, ", "))
	}
	return nil
}
