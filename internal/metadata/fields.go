package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"emlink/internal/model"
	"emlink/internal/sig"
)

// form distinguishes the two metadata dialects. Binary metadata names native
// symbols without the host underscore; the parser mangles them so the model
// always holds host names.
type form uint8

const (
	formText form = iota
	formBinary
)

type fieldDecoder func(mod *model.Module, raw json.RawMessage, f form) error

var fields = map[string]fieldDecoder{
	"aliases":              decodeAliases,
	"declares":             decodeDeclares,
	"implementedFunctions": decodeImplemented,
	"externs":              decodeExterns,
	"externFunctions":      decodeExternFunctions,
	"simd":                 decodeSIMD,
	"maxGlobalAlign":       decodeMaxGlobalAlign,
	"staticBump":           decodeStaticBump,
	"tableSize":            decodeTableSize,
	"initializers":         decodeInitializers,
	"exports":              decodeExports,
	"namedGlobals":         decodeNamedGlobals,
	"emJsFuncs":            decodeEmJsFuncs,
	"asmConsts":            decodeAsmConsts,
	"invokeFuncs":          decodeInvokeFuncs,
	"features":             decodeFeatures,
	"mainReadsParams":      decodeMainReadsParams,
	"tables":               decodeTables,
	"functionSignatures":   decodeFunctionSignatures,
	"redirects":            decodeRedirects,
	"cantValidate":         decodeCantValidate,
	"cyberdwarfData":       decodeCyberdwarf,
}

// KnownKeys returns every metadata key the parser understands, sorted.
func KnownKeys() []string {
	return model.SortedKeys(fields)
}

// decodeOrder fixes the order keys are applied in: sets that later keys
// filter against come first.
var decodeOrder = []string{
	"emJsFuncs",
	"invokeFuncs",
	"asmConsts",
	"implementedFunctions",
}

func orderedKeys(obj map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(obj))
	seen := make(map[string]bool, len(decodeOrder))
	for _, k := range decodeOrder {
		if _, ok := obj[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(obj))
	for k := range obj {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (f form) name(n string) string {
	if f == formBinary {
		return model.Mangle(n)
	}
	return n
}

func decodeStrings(key string, raw json.RawMessage) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, badValue(key, raw, err)
	}
	return out, nil
}

func decodeStringMap(key string, raw json.RawMessage) (map[string]string, error) {
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, badValue(key, raw, err)
	}
	return out, nil
}

func decodeUint32(key string, raw json.RawMessage) (uint32, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, badValue(key, raw, err)
	}
	v, err := strconv.ParseUint(n.String(), 10, 32)
	if err != nil {
		return 0, badValue(key, raw, err)
	}
	return uint32(v), nil
}

// decodeBool accepts true/false and 0/1.
func decodeBool(key string, raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	n, err := decodeUint32(key, raw)
	if err != nil || n > 1 {
		return false, badValue(key, raw, fmt.Errorf("expected a boolean"))
	}
	return n == 1, nil
}

func decodeAliases(mod *model.Module, raw json.RawMessage, f form) error {
	m, err := decodeStringMap("aliases", raw)
	if err != nil {
		return err
	}
	for k, v := range m {
		mod.Aliases[f.name(k)] = f.name(v)
	}
	return nil
}

func decodeRedirects(mod *model.Module, raw json.RawMessage, f form) error {
	m, err := decodeStringMap("redirects", raw)
	if err != nil {
		return err
	}
	for k, v := range m {
		mod.Redirects[f.name(k)] = v
	}
	return nil
}

// decodeDeclares splits the declared list: g$ and fp$ entries describe
// symbols another module provides, inline host functions, invoke
// trampolines and inline-code dispatchers are tracked in their own sets.
func decodeDeclares(mod *model.Module, raw json.RawMessage, f form) error {
	names, err := decodeStrings("declares", raw)
	if err != nil {
		return err
	}
	for _, n := range names {
		switch {
		case strings.HasPrefix(n, "g$"):
			mod.Externs.Add(strings.TrimPrefix(n, "g$"))
		case strings.HasPrefix(n, "fp$"):
			name, s := splitFunctionPointer(strings.TrimPrefix(n, "fp$"))
			mod.ExternFunctions[name] = s
		case model.IsAsmConstDispatcher(n):
		case strings.HasPrefix(n, "invoke_"):
			mod.InvokeFuncs.Add(n)
		default:
			if isEmJs(mod, n) {
				continue
			}
			mod.Declared.Add(f.name(n))
		}
	}
	return nil
}

func isEmJs(mod *model.Module, n string) bool {
	if _, ok := mod.EmJsFuncs[n]; ok {
		return true
	}
	_, ok := mod.EmJsFuncs[strings.TrimPrefix(n, "_")]
	return ok
}

// splitFunctionPointer splits "name$sig"; a missing or invalid signature
// leaves it empty.
func splitFunctionPointer(s string) (string, sig.Signature) {
	i := strings.LastIndexByte(s, '$')
	if i < 0 {
		return s, ""
	}
	sg, err := sig.Parse(s[i+1:])
	if err != nil {
		return s, ""
	}
	return s[:i], sg
}

func decodeImplemented(mod *model.Module, raw json.RawMessage, f form) error {
	names, err := decodeStrings("implementedFunctions", raw)
	if err != nil {
		return err
	}
	for _, n := range names {
		mod.Implemented.Add(f.name(n))
	}
	return nil
}

func decodeExterns(mod *model.Module, raw json.RawMessage, _ form) error {
	names, err := decodeStrings("externs", raw)
	if err != nil {
		return err
	}
	for _, n := range names {
		mod.Externs.Add(n)
	}
	return nil
}

// decodeExternFunctions accepts a list of "name" or "name$sig" entries, or
// an object mapping names to signatures.
func decodeExternFunctions(mod *model.Module, raw json.RawMessage, _ form) error {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, n := range list {
			name, s := splitFunctionPointer(n)
			mod.ExternFunctions[name] = s
		}
		return nil
	}
	m, err := decodeStringMap("externFunctions", raw)
	if err != nil {
		return err
	}
	for name, s := range m {
		sg, err := sig.Parse(s)
		if err != nil {
			return badValue("externFunctions", raw, err)
		}
		mod.ExternFunctions[name] = sg
	}
	return nil
}

func decodeSIMD(mod *model.Module, raw json.RawMessage, _ form) error {
	v, err := decodeBool("simd", raw)
	mod.SIMD = v
	return err
}

func decodeMaxGlobalAlign(mod *model.Module, raw json.RawMessage, _ form) error {
	v, err := decodeUint32("maxGlobalAlign", raw)
	mod.MaxGlobalAlign = v
	return err
}

func decodeStaticBump(mod *model.Module, raw json.RawMessage, _ form) error {
	v, err := decodeUint32("staticBump", raw)
	mod.StaticBump = v
	return err
}

func decodeTableSize(mod *model.Module, raw json.RawMessage, _ form) error {
	v, err := decodeUint32("tableSize", raw)
	mod.TableSize = v
	return err
}

func decodeInitializers(mod *model.Module, raw json.RawMessage, f form) error {
	names, err := decodeStrings("initializers", raw)
	if err != nil {
		return err
	}
	for _, n := range names {
		mod.Initializers = append(mod.Initializers, f.name(n))
	}
	return nil
}

func decodeExports(mod *model.Module, raw json.RawMessage, f form) error {
	names, err := decodeStrings("exports", raw)
	if err != nil {
		return err
	}
	for _, n := range names {
		mod.Exports.Add(f.name(n))
	}
	return nil
}

func decodeNamedGlobals(mod *model.Module, raw json.RawMessage, f form) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return badValue("namedGlobals", raw, err)
	}
	for name, v := range m {
		addr, err := decodeAddress(v)
		if err != nil {
			return badValue("namedGlobals", v, err)
		}
		mod.NamedGlobals[f.name(name)] = addr
	}
	return nil
}

// decodeAddress reads a number, a numeric string, or a symbolic string.
func decodeAddress(raw json.RawMessage) (model.Address, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32); err == nil {
			return model.Address{Value: uint32(n)}, nil
		}
		if strings.TrimSpace(s) == "" {
			return model.Address{}, fmt.Errorf("empty address")
		}
		return model.Address{Symbolic: s}, nil
	}
	n, err := decodeUint32("namedGlobals", raw)
	if err != nil {
		return model.Address{}, err
	}
	return model.Address{Value: n}, nil
}

func decodeEmJsFuncs(mod *model.Module, raw json.RawMessage, _ form) error {
	m, err := decodeStringMap("emJsFuncs", raw)
	if err != nil {
		return err
	}
	for name, v := range m {
		fn, err := ParseEmJs(v)
		if err != nil {
			return badValue("emJsFuncs", []byte(v), err)
		}
		mod.EmJsFuncs[name] = fn
	}
	return nil
}

func decodeAsmConsts(mod *model.Module, raw json.RawMessage, _ form) error {
	var m map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return badValue("asmConsts", raw, err)
	}
	for key, parts := range m {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			return badValue("asmConsts", []byte(key), fmt.Errorf("id must be a non-negative integer"))
		}
		c, err := decodeAsmConst(parts)
		if err != nil {
			return badValue("asmConsts", raw, fmt.Errorf("id %d: %w", id, err))
		}
		mod.AsmConsts[id] = c
	}
	return nil
}

func decodeAsmConst(parts []json.RawMessage) (model.AsmConst, error) {
	if len(parts) < 2 || len(parts) > 3 {
		return model.AsmConst{}, fmt.Errorf("expected [code, sigs] or [code, sigs, callTypes]")
	}
	var code string
	if err := json.Unmarshal(parts[0], &code); err != nil {
		return model.AsmConst{}, fmt.Errorf("code: %w", err)
	}
	var sigs []string
	if err := json.Unmarshal(parts[1], &sigs); err != nil {
		return model.AsmConst{}, fmt.Errorf("sigs: %w", err)
	}
	var callTypes []string
	if len(parts) == 3 {
		if err := json.Unmarshal(parts[2], &callTypes); err != nil {
			return model.AsmConst{}, fmt.Errorf("callTypes: %w", err)
		}
		if len(callTypes) != len(sigs) {
			return model.AsmConst{}, fmt.Errorf("%d call types for %d signatures", len(callTypes), len(sigs))
		}
	}
	c := model.AsmConst{Code: TrimAsmConstBody(code)}
	for i, s := range sigs {
		sg, err := sig.Parse(s)
		if err != nil {
			return model.AsmConst{}, err
		}
		mode := model.ProxyDirect
		if callTypes != nil {
			var ok bool
			if mode, ok = model.ParseCallType(callTypes[i]); !ok {
				return model.AsmConst{}, fmt.Errorf("unknown call type %q", callTypes[i])
			}
		}
		c.Sigs = append(c.Sigs, sg)
		c.CallTypes = append(c.CallTypes, mode)
	}
	return c, nil
}

func decodeInvokeFuncs(mod *model.Module, raw json.RawMessage, _ form) error {
	names, err := decodeStrings("invokeFuncs", raw)
	if err != nil {
		return err
	}
	for _, n := range names {
		if _, err := sig.Parse(strings.TrimPrefix(n, "invoke_")); err != nil || !strings.HasPrefix(n, "invoke_") {
			return badValue("invokeFuncs", []byte(n), fmt.Errorf("expected invoke_<sig>"))
		}
		mod.InvokeFuncs.Add(n)
	}
	return nil
}

func decodeFeatures(mod *model.Module, raw json.RawMessage, _ form) error {
	names, err := decodeStrings("features", raw)
	mod.Features = names
	return err
}

func decodeMainReadsParams(mod *model.Module, raw json.RawMessage, _ form) error {
	v, err := decodeBool("mainReadsParams", raw)
	mod.MainReadsParams = v
	return err
}

func decodeTables(mod *model.Module, raw json.RawMessage, f form) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return badValue("tables", raw, err)
	}
	for key, v := range m {
		sg, err := sig.Parse(key)
		if err != nil {
			return badValue("tables", []byte(key), err)
		}
		slots, err := decodeTable(sg, v, f)
		if err != nil {
			return err
		}
		mod.Tables[sg] = slots
	}
	return nil
}

func decodeFunctionSignatures(mod *model.Module, raw json.RawMessage, f form) error {
	m, err := decodeStringMap("functionSignatures", raw)
	if err != nil {
		return err
	}
	for name, s := range m {
		sg, err := sig.Parse(s)
		if err != nil {
			return badValue("functionSignatures", []byte(s), err)
		}
		mod.FunctionSignatures[f.name(name)] = sg
	}
	return nil
}

func decodeCantValidate(mod *model.Module, raw json.RawMessage, _ form) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return badValue("cantValidate", raw, err)
	}
	mod.CantValidate = s
	return nil
}

func decodeCyberdwarf(mod *model.Module, raw json.RawMessage, _ form) error {
	if !json.Valid(raw) {
		return badValue("cyberdwarfData", raw, fmt.Errorf("invalid JSON"))
	}
	mod.CyberdwarfData = append(json.RawMessage(nil), raw...)
	return nil
}
