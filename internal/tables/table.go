// Package tables finalizes the indirect call tables: every slot ends up
// holding a callable, and the coercion and trap functions the tables need are
// synthesized alongside.
package tables

import (
	"strings"

	"emlink/internal/sig"
)

// SlotKind says where a slot's callable came from.
type SlotKind uint8

const (
	// SlotSymbol holds a function implemented by the module.
	SlotSymbol SlotKind = iota
	// SlotTrap aborts when called.
	SlotTrap
	// SlotReserved forwards to a callback installed by the host.
	SlotReserved
	// SlotWrapper adapts an import or a mismatched signature.
	SlotWrapper
	// SlotEmulated reinterprets a call into another table's entry.
	SlotEmulated
)

func (k SlotKind) String() string {
	switch k {
	case SlotSymbol:
		return "symbol"
	case SlotTrap:
		return "trap"
	case SlotReserved:
		return "reserved"
	case SlotWrapper:
		return "wrapper"
	case SlotEmulated:
		return "emulated"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind name.
func (k SlotKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Slot is one finalized table entry. Name is what the table literal holds;
// Target is the symbol a wrapper or emulated slot ends up calling.
type Slot struct {
	Kind   SlotKind `json:"kind"`
	Name   string   `json:"name,omitempty"`
	Target string   `json:"target,omitempty"`
}

// Table is the finalized table for one signature.
type Table struct {
	Sig   sig.Signature `json:"sig"`
	Slots []Slot        `json:"slots"`
	// Mask is applied to indices before lookup; zero when the encoding does
	// not mask.
	Mask  uint32 `json:"mask"`
	Funcs []Func `json:"funcs,omitempty"`
}

// Len is the number of slots.
func (t *Table) Len() int {
	return len(t.Slots)
}

// Var is the name of the table in the text encoding.
func (t *Table) Var() string {
	return "FUNCTION_TABLE_" + string(t.Sig)
}

// Names lists the slot contents in order; slots without a callable render as 0.
func (t *Table) Names() []string {
	out := make([]string, len(t.Slots))
	for i, s := range t.Slots {
		if s.Name == "" {
			out[i] = "0"
			continue
		}
		out[i] = s.Name
	}
	return out
}

// Literal renders the table declaration for the text encoding.
func (t *Table) Literal() string {
	return "var " + t.Var() + " = [" + strings.Join(t.Names(), ",") + "];"
}

// DynCall is the exported helper the host uses to call through the table.
func (t *Table) DynCall() Func {
	params := t.Sig.Params()
	callee := sig.Signature(string(t.Sig.Return()) + "i" + string(t.Sig[1:]))
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = sig.CoerceSame(paramName(i+1), p)
	}
	call := t.Var() + "[" + paramName(0) + "&" + uintString(t.Mask) + "](" + strings.Join(args, ",") + ")"
	return Func{
		Name: "dynCall_" + string(t.Sig),
		Sig:  callee,
		Body: []string{returnOrCall(call, t.Sig.Return())},
	}
}

// Set is every finalized table of a link, in signature order.
type Set struct {
	Tables []*Table `json:"tables"`
	// TableSize is the total slot count the runtime reserves.
	TableSize uint32 `json:"table_size"`
}

// Lookup returns the table for s, or nil.
func (s *Set) Lookup(sg sig.Signature) *Table {
	if s == nil {
		return nil
	}
	for _, t := range s.Tables {
		if t.Sig == sg {
			return t
		}
	}
	return nil
}

// Funcs returns every synthesized function in table order.
func (s *Set) Funcs() []Func {
	if s == nil {
		return nil
	}
	var out []Func
	for _, t := range s.Tables {
		out = append(out, t.Funcs...)
	}
	return out
}

// SymbolMap pairs each synthesized wrapper with the symbol it calls.
func (s *Set) SymbolMap() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for _, t := range s.Tables {
		for _, slot := range t.Slots {
			if slot.Target != "" && slot.Name != slot.Target {
				out[slot.Name] = slot.Target
			}
		}
	}
	return out
}
