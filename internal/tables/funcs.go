package tables

import (
	"strconv"
	"strings"

	"emlink/internal/sig"
)

// Func is a synthesized function in the text encoding. Body holds the
// statements that follow the parameter annotations.
type Func struct {
	Name string        `json:"name"`
	Sig  sig.Signature `json:"sig"`
	Body []string      `json:"body"`
}

// Params names the parameters.
func (f Func) Params() []string {
	out := make([]string, f.Sig.Arity())
	for i := range out {
		out[i] = paramName(i)
	}
	return out
}

// Source renders the function.
func (f Func) Source() string {
	var b strings.Builder
	params := f.Params()
	b.WriteString("function ")
	b.WriteString(f.Name)
	b.WriteString("(")
	b.WriteString(strings.Join(params, ","))
	b.WriteString(") {\n")
	for i, t := range f.Sig.Params() {
		b.WriteString(" ")
		b.WriteString(params[i])
		b.WriteString(" = ")
		b.WriteString(sig.CoerceSame(params[i], t))
		b.WriteString(";\n")
	}
	for _, stmt := range f.Body {
		b.WriteString(" ")
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func paramName(i int) string {
	return "p" + strconv.Itoa(i)
}

func uintString(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func returnOrCall(call string, ret sig.Type) string {
	if ret == sig.Void {
		return call + ";"
	}
	return "return " + sig.CoerceSame(call, ret) + ";"
}

// ffiArg prepares a parameter for a call into the host, which only takes
// ints and doubles.
func ffiArg(name string, t sig.Type) string {
	if t.IsFloat() {
		return "+" + name
	}
	return sig.CoerceSame(name, t)
}

func ffiCall(callee string, lead []string, s sig.Signature) []string {
	args := append([]string(nil), lead...)
	for i, p := range s.Params() {
		args = append(args, ffiArg(paramName(i), p))
	}
	call := callee + "(" + strings.Join(args, ",") + ")"
	if s.Return() == sig.Void {
		return []string{call + ";"}
	}
	return []string{"return " + sig.CoerceFFIResult(call, s.Return()) + ";"}
}

// trapFunc aborts naming the expected signature, and the slot index when
// index is not negative.
func trapFunc(name string, s sig.Signature, assertions int64, index int) Func {
	var body []string
	switch {
	case assertions <= 0:
		body = append(body, "abort('"+string(s)+"');")
	case index < 0:
		body = append(body, "nullFunc_"+string(s)+"(-1);")
	default:
		body = append(body, "nullFunc_"+string(s)+"("+strconv.Itoa(index)+");")
	}
	if s.Return() != sig.Void {
		body = append(body, "return "+sig.Initializer(s.Return())+";")
	}
	return Func{Name: name, Sig: s, Body: body}
}

// importWrapper lets an imported function sit in a table.
func importWrapper(target string, s sig.Signature) Func {
	return Func{Name: target + "__wrapper", Sig: s, Body: ffiCall(target, nil, s)}
}

// reservedFunc forwards slot j to the host callback registry.
func reservedFunc(s sig.Signature, j int) Func {
	name := "jsCall_" + string(s) + "_" + strconv.Itoa(j)
	return Func{Name: name, Sig: s, Body: ffiCall("jsCall_"+string(s), []string{strconv.Itoa(j)}, s)}
}

// castFunc calls target, whose real signature is actual, from a table of
// signature table. Missing arguments are zero; extra ones are dropped.
func castFunc(name, target string, table, actual sig.Signature) Func {
	tparams := table.Params()
	aparams := actual.Params()
	args := make([]string, len(aparams))
	for i, p := range aparams {
		if i < len(tparams) {
			args[i] = sig.Coerce(paramName(i), p, tparams[i])
			continue
		}
		args[i] = sig.Initializer(p)
	}
	call := target + "(" + strings.Join(args, ",") + ")"
	tret, aret := table.Return(), actual.Return()
	var body []string
	switch {
	case tret == sig.Void:
		body = []string{call + ";"}
	case aret == sig.Void:
		body = []string{call + ";", "return " + sig.Initializer(tret) + ";"}
	default:
		body = []string{"return " + sig.Coerce(call, tret, aret) + ";"}
	}
	return Func{Name: name, Sig: table, Body: body}
}
