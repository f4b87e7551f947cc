// Package model holds the normalized in-memory representation of one link:
// what the backend declared, implemented and exported, its globals, function
// tables and inline host-code blocks.
//
// A Module is built once by the metadata parser, normalized in place by the
// symbol resolver and read by every later stage. It never outlives a link.
package model

import (
	"encoding/json"
	"sort"
	"strconv"

	"emlink/internal/sig"
)

// Slot is one function table entry; nil means a null slot.
type Slot = *string

// SymbolSlot returns a non-null slot for name.
func SymbolSlot(name string) Slot {
	return &name
}

// Address is a global variable location: either a numeric address or a
// symbolic placeholder resolved during layout.
type Address struct {
	Value    uint32
	Symbolic string
}

// IsSymbolic reports whether the address still needs resolution.
func (a Address) IsSymbolic() bool {
	return a.Symbolic != ""
}

func (a Address) String() string {
	if a.IsSymbolic() {
		return a.Symbolic
	}
	return strconv.FormatUint(uint64(a.Value), 10)
}

// MarshalJSON renders numeric addresses as numbers and symbolic ones as strings.
func (a Address) MarshalJSON() ([]byte, error) {
	if a.IsSymbolic() {
		return json.Marshal(a.Symbolic)
	}
	return json.Marshal(a.Value)
}

// ProxyMode says where an inline host-code block runs.
type ProxyMode uint8

const (
	// ProxyDirect runs the block on the calling thread.
	ProxyDirect ProxyMode = iota
	// ProxySync forwards to the owner thread and waits.
	ProxySync
	// ProxyAsync forwards to the owner thread without waiting.
	ProxyAsync
)

// CallType is the prefix used in dispatcher names for this mode.
func (m ProxyMode) CallType() string {
	switch m {
	case ProxySync:
		return "sync_on_main_thread_"
	case ProxyAsync:
		return "async_on_main_thread_"
	default:
		return ""
	}
}

// Proxied reports whether calls are forwarded to the owner thread.
func (m ProxyMode) Proxied() bool {
	return m == ProxySync || m == ProxyAsync
}

func (m ProxyMode) String() string {
	switch m {
	case ProxySync:
		return "sync"
	case ProxyAsync:
		return "async"
	default:
		return "direct"
	}
}

// MarshalJSON renders the mode name.
func (m ProxyMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// ParseCallType maps a backend call type string to a ProxyMode.
func ParseCallType(s string) (ProxyMode, bool) {
	switch s {
	case "":
		return ProxyDirect, true
	case "sync_on_main_thread_":
		return ProxySync, true
	case "async_on_main_thread_":
		return ProxyAsync, true
	}
	return ProxyDirect, false
}

// AsmConst is a numbered inline host-code block. Sigs and CallTypes are
// parallel: each call site contributes one signature and its proxy mode.
type AsmConst struct {
	Code      string          `json:"code"`
	Sigs      []sig.Signature `json:"sigs"`
	CallTypes []ProxyMode     `json:"call_types"`
}

// Arity is the largest parameter count over all call sites.
func (c AsmConst) Arity() int {
	arity := 0
	for _, s := range c.Sigs {
		if s.Arity() > arity {
			arity = s.Arity()
		}
	}
	return arity
}

// EmJsFunc is a named host function defined in the source program.
type EmJsFunc struct {
	Params []string `json:"params"`
	Body   string   `json:"body"`
}

// Module is the normalized link model.
type Module struct {
	Declared    *SymbolSet `json:"declared"`
	Implemented *SymbolSet `json:"implemented"`

	Externs         *SymbolSet               `json:"externs"`
	ExternFunctions map[string]sig.Signature `json:"extern_functions"`

	Exports      *SymbolSet        `json:"exports"`
	Initializers []string          `json:"initializers"`
	Aliases      map[string]string `json:"aliases,omitempty"`
	Redirects    map[string]string `json:"redirects,omitempty"`

	NamedGlobals map[string]Address `json:"named_globals"`

	Tables             map[sig.Signature][]Slot `json:"tables"`
	FunctionSignatures map[string]sig.Signature `json:"function_signatures,omitempty"`

	AsmConsts   map[int]AsmConst    `json:"asm_consts"`
	EmJsFuncs   map[string]EmJsFunc `json:"em_js_funcs"`
	InvokeFuncs *SymbolSet          `json:"invoke_funcs"`

	Features        []string        `json:"features,omitempty"`
	StaticBump      uint32          `json:"static_bump"`
	TableSize       uint32          `json:"table_size"`
	MaxGlobalAlign  uint32          `json:"max_global_align"`
	MainReadsParams bool            `json:"main_reads_params"`
	SIMD            bool            `json:"simd"`
	CantValidate    string          `json:"cant_validate,omitempty"`
	CyberdwarfData  json.RawMessage `json:"-"`

	// UsedPrimitives is the set of host numeric primitives (Math_*) the
	// function bodies reference; only those are imported.
	UsedPrimitives *SymbolSet `json:"used_primitives"`
}

// NewModule returns an empty module with every collection allocated.
func NewModule() *Module {
	return &Module{
		Declared:           NewSymbolSet(),
		Implemented:        NewSymbolSet(),
		Externs:            NewSymbolSet(),
		ExternFunctions:    make(map[string]sig.Signature),
		Exports:            NewSymbolSet(),
		Aliases:            make(map[string]string),
		Redirects:          make(map[string]string),
		NamedGlobals:       make(map[string]Address),
		Tables:             make(map[sig.Signature][]Slot),
		FunctionSignatures: make(map[string]sig.Signature),
		AsmConsts:          make(map[int]AsmConst),
		EmJsFuncs:          make(map[string]EmJsFunc),
		InvokeFuncs:        NewSymbolSet(),
		UsedPrimitives:     NewSymbolSet(),
	}
}

// TableSignatures returns the table signatures in sorted order.
func (m *Module) TableSignatures() []sig.Signature {
	out := make([]sig.Signature, 0, len(m.Tables))
	for s := range m.Tables {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AsmConstIDs returns the asm const ids in ascending order.
func (m *Module) AsmConstIDs() []int {
	out := make([]int, 0, len(m.AsmConsts))
	for id := range m.AsmConsts {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// EmJsNames returns the EM_JS function names in sorted order.
func (m *Module) EmJsNames() []string {
	return SortedKeys(m.EmJsFuncs)
}

// NamedGlobalNames returns the named globals in sorted order.
func (m *Module) NamedGlobalNames() []string {
	return SortedKeys(m.NamedGlobals)
}

// ExternFunctionNames returns the extern function names in sorted order.
func (m *Module) ExternFunctionNames() []string {
	return SortedKeys(m.ExternFunctions)
}

// IsDefined reports whether name is implemented here or expected from
// another module at load time.
func (m *Module) IsDefined(name string) bool {
	if m.Implemented.Has(name) || m.Externs.Has(name) {
		return true
	}
	_, ok := m.ExternFunctions[name]
	return ok
}

// SortedKeys returns the keys of a string-keyed map in sorted order.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func marshalSorted(names []string) ([]byte, error) {
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}
