package assemble

import (
	"strconv"

	"emlink/internal/layout"
)

// LayoutValues are the placeholder values for a planned layout. The binary
// file name is only set for the binary encoding.
func LayoutValues(mem layout.Memory, tableSize uint32, assertions int64, wasmFile string) map[string]string {
	u := func(v uint32) string { return strconv.FormatUint(uint64(v), 10) }
	values := map[string]string{
		PhGlobalBase:    u(mem.GlobalBase),
		PhStaticBump:    u(mem.StaticBump()),
		PhStackBase:     u(mem.StackBase),
		PhStackMax:      u(mem.StackMax),
		PhDynamicBase:   u(mem.DynamicBase),
		PhDynamicTopPtr: u(mem.DynamicTopPtr),
		PhTempDoublePtr: u(mem.TempDoublePtr),
		PhTotalMemory:   u(mem.TotalMemory),
		PhTableSize:     u(tableSize),
		PhAssertions:    strconv.FormatInt(assertions, 10),
	}
	if wasmFile != "" {
		values[PhWasmBinaryFile] = wasmFile
	}
	return values
}
