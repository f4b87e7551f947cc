// Package layout plans the static memory map of a linked module:
//
//	[0, GlobalBase)            reserved
//	[GlobalBase, StaticDataEnd) static data, then two runtime words
//	  DynamicTopPtr             current top of the dynamic heap
//	  TempDoublePtr             8-byte scratch slot for float reinterpretation
//	[StackLow, StackHigh)       stack
//	[DynamicBase, TotalMemory)  dynamic heap
//
// Every boundary is 16-byte aligned.
package layout

import (
	"fmt"

	"fortio.org/safecast"
)

// Align is the alignment of every region boundary.
const Align = 16

// runtimeWords is the space reserved after static data for DynamicTopPtr and
// TempDoublePtr.
const runtimeWords = 16

// Input holds the numbers the planner needs.
type Input struct {
	GlobalBase     uint32
	StaticDataSize uint32
	StackSize      uint32
	TotalMemory    uint32
	Direction      Direction
	PageSize       uint32
}

// Memory is the planned layout. StackBase is where the stack pointer starts,
// StackMax is the limit it must not cross: for an upward stack
// StackBase == StackLow, for a downward one StackBase == StackHigh.
type Memory struct {
	GlobalBase    uint32    `json:"global_base"`
	StaticDataEnd uint32    `json:"static_data_end"`
	DynamicTopPtr uint32    `json:"dynamictop_ptr"`
	TempDoublePtr uint32    `json:"temp_double_ptr"`
	StackLow      uint32    `json:"stack_low"`
	StackHigh     uint32    `json:"stack_high"`
	StackBase     uint32    `json:"stack_base"`
	StackMax      uint32    `json:"stack_max"`
	DynamicBase   uint32    `json:"dynamic_base"`
	TotalMemory   uint32    `json:"total_memory"`
	Direction     Direction `json:"direction"`
}

// StaticBump is the size of static data including alignment padding.
func (m Memory) StaticBump() uint32 {
	return m.StaticDataEnd - m.GlobalBase
}

// Plan computes the memory layout for in.
func Plan(in Input) (Memory, error) {
	if in.PageSize == 0 {
		return Memory{}, fmt.Errorf("layout: page size must be positive")
	}
	if in.TotalMemory%in.PageSize != 0 {
		return Memory{}, &LayoutError{
			Kind:        LayoutErrMisalignedMemory,
			TotalMemory: uint64(in.TotalMemory),
			PageSize:    in.PageSize,
			Required:    roundUp(uint64(in.TotalMemory), uint64(in.PageSize)),
		}
	}

	staticEnd := roundUp(uint64(in.GlobalBase)+uint64(in.StaticDataSize), Align)
	stackLow := roundUp(staticEnd+runtimeWords, Align)
	stackHigh := roundUp(stackLow+uint64(in.StackSize), Align)
	dynamicBase := roundUp(max(stackLow, stackHigh), Align)

	if dynamicBase >= uint64(in.TotalMemory) {
		return Memory{}, &LayoutError{
			Kind:        LayoutErrInsufficientMemory,
			StaticSize:  uint64(in.StaticDataSize),
			StackSize:   uint64(in.StackSize),
			TotalMemory: uint64(in.TotalMemory),
			Required:    requiredMemory(dynamicBase, uint64(in.PageSize)),
		}
	}

	var m Memory
	var err error
	if m.StaticDataEnd, err = conv("static data end", staticEnd); err != nil {
		return Memory{}, err
	}
	if m.StackLow, err = conv("stack low", stackLow); err != nil {
		return Memory{}, err
	}
	if m.StackHigh, err = conv("stack high", stackHigh); err != nil {
		return Memory{}, err
	}
	if m.DynamicBase, err = conv("dynamic base", dynamicBase); err != nil {
		return Memory{}, err
	}
	m.GlobalBase = in.GlobalBase
	m.DynamicTopPtr = m.StaticDataEnd
	m.TempDoublePtr = m.StaticDataEnd + 8
	m.TotalMemory = in.TotalMemory
	m.Direction = in.Direction
	switch in.Direction {
	case Down:
		m.StackBase, m.StackMax = m.StackHigh, m.StackLow
	default:
		m.StackBase, m.StackMax = m.StackLow, m.StackHigh
	}
	return m, nil
}

// requiredMemory is the smallest page multiple strictly above dynamicBase.
func requiredMemory(dynamicBase, page uint64) uint64 {
	req := roundUp(dynamicBase, page)
	if req <= dynamicBase {
		req += page
	}
	return req
}

func conv(what string, v uint64) (uint32, error) {
	out, err := safecast.Conv[uint32](v)
	if err != nil {
		return 0, &LayoutError{Kind: LayoutErrAddressOverflow, What: what, Err: err}
	}
	return out, nil
}

func roundUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}
