package tables

import (
	"context"
	"fmt"
	"strconv"

	"fortio.org/safecast"

	"emlink/internal/model"
	"emlink/internal/sig"
	"emlink/internal/trace"
)

// emulateCasts pads every table to the same length so any function pointer
// is a valid index into any table. In the text encoding a null slot whose
// index holds a function in another table calls that function, converting
// arguments and result between the two signatures.
func emulateCasts(ctx context.Context, set *Set, mod *model.Module, opts Options) error {
	longest := 0
	for _, t := range set.Tables {
		longest = max(longest, t.Len())
	}
	if opts.text() {
		longest = nextPow2(longest)
	}
	mask, err := safecast.Conv[uint32](max(longest-1, 0))
	if err != nil {
		return fmt.Errorf("emulated table mask: %w", err)
	}

	for _, t := range set.Tables {
		for len(t.Slots) < longest {
			t.Slots = append(t.Slots, Slot{Kind: SlotTrap})
		}
		if opts.text() {
			t.Mask = mask
		}
	}
	if !opts.text() {
		return nil
	}

	for _, t := range set.Tables {
		for i := range t.Slots {
			if t.Slots[i].Kind != SlotTrap {
				continue
			}
			target, actual, ok := castSource(set, mod, t, i)
			if !ok {
				ensureTrap(t, i, opts)
				continue
			}
			f := castFunc("fpemu_"+string(t.Sig)+"_"+strconv.Itoa(i), target, t.Sig, actual)
			t.Funcs = append(t.Funcs, f)
			t.Slots[i] = Slot{Kind: SlotEmulated, Name: f.Name, Target: target}
			trace.StagePoint(ctx, trace.ScopeSymbol, f.Name, "calls "+target+" as "+string(actual))
		}
		pruneTraps(t)
	}
	return nil
}

// castSource finds the implemented function another table holds at index i.
func castSource(set *Set, mod *model.Module, t *Table, i int) (string, sig.Signature, bool) {
	for _, other := range set.Tables {
		if other == t || i >= other.Len() {
			continue
		}
		target := other.Slots[i].Target
		if target == "" || !mod.Implemented.Has(target) {
			continue
		}
		actual, ok := mod.FunctionSignatures[target]
		if !ok {
			actual = other.Sig
		}
		return target, actual, true
	}
	return "", "", false
}

// ensureTrap gives slot i of t a trap function, creating it if needed.
func ensureTrap(t *Table, i int, opts Options) {
	if t.Slots[i].Name != "" {
		return
	}
	name, index := "b_"+string(t.Sig), -1
	if opts.Assertions >= 2 {
		name, index = name+"_"+strconv.Itoa(i), i
	}
	if !t.hasFunc(name) {
		t.Funcs = append(t.Funcs, trapFunc(name, t.Sig, opts.Assertions, index))
	}
	t.Slots[i].Name = name
}

// pruneTraps drops trap functions no slot refers to any more.
func pruneTraps(t *Table) {
	used := make(map[string]bool, len(t.Slots))
	for _, s := range t.Slots {
		if s.Kind == SlotTrap {
			used[s.Name] = true
		}
	}
	kept := t.Funcs[:0]
	for _, f := range t.Funcs {
		if isTrapName(f.Name, t.Sig) && !used[f.Name] {
			continue
		}
		kept = append(kept, f)
	}
	t.Funcs = kept
}

func isTrapName(name string, s sig.Signature) bool {
	prefix := "b_" + string(s)
	return name == prefix || (len(name) > len(prefix) && name[:len(prefix)+1] == prefix+"_")
}

func (t *Table) hasFunc(name string) bool {
	for _, f := range t.Funcs {
		if f.Name == name {
			return true
		}
	}
	return false
}
