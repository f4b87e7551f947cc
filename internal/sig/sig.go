// Package sig models call signatures: compact strings where the first character
// is the return type and the remaining characters are parameter types.
//
//	v  void (return position only)
//	i  32-bit integer
//	j  64-bit integer (two 32-bit words across the host boundary)
//	f  32-bit float
//	d  64-bit float
package sig

import (
	"fmt"
	"strings"
)

// Type is a single signature character.
type Type byte

const (
	Void Type = 'v'
	I32  Type = 'i'
	I64  Type = 'j'
	F32  Type = 'f'
	F64  Type = 'd'
)

func (t Type) String() string {
	return string(rune(t))
}

// Valid reports whether t is a known type code.
func (t Type) Valid() bool {
	switch t {
	case Void, I32, I64, F32, F64:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool {
	return t == F32 || t == F64
}

// Signature is a validated call signature such as "vii".
type Signature string

// Parse validates s as a call signature.
func Parse(s string) (Signature, error) {
	if s == "" {
		return "", fmt.Errorf("empty call signature")
	}
	for i := 0; i < len(s); i++ {
		t := Type(s[i])
		if !t.Valid() {
			return "", fmt.Errorf("invalid type %q at position %d in call signature %q", s[i], i, s)
		}
		if i > 0 && t == Void {
			return "", fmt.Errorf("void parameter at position %d in call signature %q", i, s)
		}
	}
	return Signature(s), nil
}

// MustParse is Parse for signatures known at compile time.
func MustParse(s string) Signature {
	sg, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sg
}

func (s Signature) String() string {
	return string(s)
}

// Return is the return type.
func (s Signature) Return() Type {
	if s == "" {
		return Void
	}
	return Type(s[0])
}

// Params returns the parameter types.
func (s Signature) Params() []Type {
	if len(s) <= 1 {
		return nil
	}
	out := make([]Type, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		out = append(out, Type(s[i]))
	}
	return out
}

// Arity is the number of parameters.
func (s Signature) Arity() int {
	if len(s) <= 1 {
		return 0
	}
	return len(s) - 1
}

// HasI64 reports whether the signature carries a 64-bit integer anywhere.
func (s Signature) HasI64() bool {
	return strings.IndexByte(string(s), byte(I64)) >= 0
}

// Legalize rewrites the signature into one the host calling convention can
// carry: an i64 return becomes i32 (high bits travel through tempRet0) and an
// i64 parameter becomes two i32 parameters.
func (s Signature) Legalize() Signature {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	if s.Return() == I64 {
		b.WriteByte(byte(I32))
	} else {
		b.WriteByte(s[0])
	}
	for _, p := range s.Params() {
		if p == I64 {
			b.WriteString("ii")
			continue
		}
		b.WriteByte(byte(p))
	}
	return Signature(b.String())
}

// IsLegal reports whether the signature is unchanged by Legalize.
func (s Signature) IsLegal() bool {
	return s == s.Legalize()
}

// CheckHostInterop rejects signatures the host language cannot carry without
// splitting 64-bit values.
func (s Signature) CheckHostInterop(what string) error {
	if s.HasI64() {
		return fmt.Errorf("%s: signature %q carries a 64-bit integer, which cannot cross the host boundary", what, s)
	}
	return nil
}
