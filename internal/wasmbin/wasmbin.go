// Package wasmbin inspects a finalized WebAssembly binary without running it,
// so the glue can be checked against what the binary really imports and
// exports.
package wasmbin

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"emlink/internal/sig"
)

// EnvModule is the import module the glue provides.
const EnvModule = "env"

// Func is an imported or exported function of the binary.
type Func struct {
	Module string        `json:"module,omitempty"`
	Name   string        `json:"name"`
	Sig    sig.Signature `json:"sig"`
	Index  uint32        `json:"index"`
}

// Info describes the function interface of a binary.
type Info struct {
	Imports []Func `json:"imports"`
	Exports []Func `json:"exports"`
	// DebugNames come from the name section, keyed by function index.
	DebugNames map[uint32]string `json:"debug_names,omitempty"`
}

// Inspect compiles bin with the interpreter and reads its imports and
// exports. The module is never instantiated.
func Inspect(ctx context.Context, bin []byte) (*Info, error) {
	cfg := wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(api.CoreFeaturesV2)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer rt.Close(ctx)

	cm, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile wasm binary: %w", err)
	}
	defer cm.Close(ctx)

	info := &Info{DebugNames: make(map[uint32]string)}
	for _, def := range cm.ImportedFunctions() {
		module, name, _ := def.Import()
		info.Imports = append(info.Imports, Func{
			Module: module,
			Name:   name,
			Sig:    signatureOf(def),
			Index:  def.Index(),
		})
		if def.Name() != "" {
			info.DebugNames[def.Index()] = def.Name()
		}
	}
	for name, def := range cm.ExportedFunctions() {
		info.Exports = append(info.Exports, Func{
			Name:  name,
			Sig:   signatureOf(def),
			Index: def.Index(),
		})
		if def.Name() != "" {
			info.DebugNames[def.Index()] = def.Name()
		}
	}
	sort.Slice(info.Imports, func(i, j int) bool { return info.Imports[i].Index < info.Imports[j].Index })
	sort.Slice(info.Exports, func(i, j int) bool {
		if info.Exports[i].Index != info.Exports[j].Index {
			return info.Exports[i].Index < info.Exports[j].Index
		}
		return info.Exports[i].Name < info.Exports[j].Name
	})
	return info, nil
}

func signatureOf(def api.FunctionDefinition) sig.Signature {
	var b strings.Builder
	results := def.ResultTypes()
	if len(results) == 0 {
		b.WriteByte(byte(sig.Void))
	} else {
		b.WriteByte(byte(typeOf(results[0])))
	}
	for _, p := range def.ParamTypes() {
		b.WriteByte(byte(typeOf(p)))
	}
	return sig.Signature(b.String())
}

func typeOf(vt api.ValueType) sig.Type {
	switch vt {
	case api.ValueTypeI64:
		return sig.I64
	case api.ValueTypeF32:
		return sig.F32
	case api.ValueTypeF64:
		return sig.F64
	default:
		return sig.I32
	}
}

// ImportNames lists the functions imported from module, sorted.
func (i *Info) ImportNames(module string) []string {
	var out []string
	for _, f := range i.Imports {
		if f.Module == module {
			out = append(out, f.Name)
		}
	}
	sort.Strings(out)
	return out
}

// ExportNames lists the exported functions, sorted.
func (i *Info) ExportNames() []string {
	out := make([]string, 0, len(i.Exports))
	for _, f := range i.Exports {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

// HasExport reports whether the binary exports a function called name.
func (i *Info) HasExport(name string) bool {
	for _, f := range i.Exports {
		if f.Name == name {
			return true
		}
	}
	return false
}

// SymbolMap lists "index:name" for every function with a known name, in
// index order. Debug names win over import and export names.
func (i *Info) SymbolMap() []string {
	names := make(map[uint32]string)
	for _, f := range i.Imports {
		names[f.Index] = f.Name
	}
	for _, f := range i.Exports {
		if _, ok := names[f.Index]; !ok {
			names[f.Index] = f.Name
		}
	}
	for idx, name := range i.DebugNames {
		names[idx] = name
	}
	indices := make([]uint32, 0, len(names))
	for idx := range names {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })
	out := make([]string, len(indices))
	for n, idx := range indices {
		out[n] = strconv.FormatUint(uint64(idx), 10) + ":" + names[idx]
	}
	return out
}
