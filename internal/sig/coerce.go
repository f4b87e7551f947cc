package sig

// Coerce wraps value so that it has type to, given that it currently holds a
// value of type from. The exact operators matter: asm.js validation and the
// runtime numeric semantics both depend on them.
//
//	to i: x|0 (floats are truncated first with ~~)
//	to f: Math_fround(x) (ints are normalized with |0 first)
//	to d: +x (ints are normalized with |0 first)
//	to j: i64(x)
//	to v: x
func Coerce(value string, to, from Type) string {
	switch to {
	case I32:
		if from.IsFloat() {
			return "(~~" + value + ")|0"
		}
		return value + "|0"
	case F32:
		if from == I32 {
			return "Math_fround((" + value + "|0))"
		}
		return "Math_fround(" + value + ")"
	case F64:
		if from == I32 {
			return "+(" + value + "|0)"
		}
		return "+" + value
	case I64:
		return "i64(" + value + ")"
	default:
		return value
	}
}

// CoerceSame is Coerce for a value already of type t; it is the form used to
// annotate parameters and results.
func CoerceSame(value string, t Type) string {
	return Coerce(value, t, t)
}

// CoerceFFIResult coerces the result of a call into the host environment. Host
// calls never return float32 directly, so those pass through a double first.
func CoerceFFIResult(call string, t Type) string {
	if t == F32 {
		return Coerce("+"+call, F32, F64)
	}
	return CoerceSame(call, t)
}

// Initializer is the zero value literal for t.
func Initializer(t Type) string {
	switch t {
	case I32:
		return "0"
	case F32:
		return "Math_fround(0)"
	case F64:
		return "+0"
	case I64:
		return "i64(0)"
	default:
		return ""
	}
}
