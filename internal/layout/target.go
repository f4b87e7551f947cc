package layout

// Target describes the output encoding the layout is planned for. The two
// encodings differ in page granularity and in their defaults.
type Target struct {
	Name             string
	PageSize         uint32 // TotalMemory must be a multiple of this
	DefaultBase      uint32 // GlobalBase when the settings leave it automatic
	DefaultDirection Direction
}

// Text is the textual (asm.js) encoding. Its heap can only be resized in
// 16 MiB steps and its stack grows up.
func Text() Target {
	return Target{
		Name:             "text",
		PageSize:         16 * 1024 * 1024,
		DefaultBase:      8,
		DefaultDirection: Up,
	}
}

// Binary is the binary (wasm) encoding with 64 KiB pages and a downward stack.
func Binary() Target {
	return Target{
		Name:             "binary",
		PageSize:         64 * 1024,
		DefaultBase:      1024,
		DefaultDirection: Down,
	}
}

// Direction is the stack growth direction.
type Direction uint8

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// MarshalText renders the direction name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
