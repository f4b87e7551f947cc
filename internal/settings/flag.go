package settings

import "fmt"

// Flag is a boolean option that also accepts the 0/1 integers toolchain
// users are used to writing (`-s WASM=0`).
type Flag bool

// UnmarshalTOML accepts booleans and the integers 0 and 1.
func (f *Flag) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case bool:
		*f = Flag(x)
	case int64:
		if x != 0 && x != 1 {
			return fmt.Errorf("expected 0 or 1, got %d", x)
		}
		*f = x == 1
	default:
		return fmt.Errorf("expected a boolean or 0/1, got %T", v)
	}
	return nil
}

// On reports whether the flag is set.
func (f Flag) On() bool {
	return bool(f)
}
