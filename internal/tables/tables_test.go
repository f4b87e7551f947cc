package tables

import (
	"context"
	"errors"
	"strings"
	"testing"

	"emlink/internal/diag"
	"emlink/internal/model"
	"emlink/internal/settings"
	"emlink/internal/sig"
)

func slots(names ...string) []model.Slot {
	out := make([]model.Slot, len(names))
	for i, n := range names {
		if n != "" {
			out[i] = model.SymbolSlot(n)
		}
	}
	return out
}

func textOpts(assertions int64) Options {
	return Options{Encoding: settings.EncodingText, Assertions: assertions}
}

func build(t *testing.T, mod *model.Module, opts Options) (*Set, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(0)
	set, err := BuildAll(context.Background(), mod, nil, opts, diag.BagReporter{Bag: bag, Stage: "tables"})
	if err != nil {
		t.Fatalf("BuildAll returned error: %v", err)
	}
	return set, bag
}

func funcNames(fs []Func) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func TestDistinctTrapsKeepOrder(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_f")
	mod.Implemented.Add("_g")
	mod.Tables["vi"] = slots("_f", "", "_g")

	set, _ := build(t, mod, textOpts(2))
	tbl := set.Lookup("vi")
	if tbl == nil {
		t.Fatalf("no vi table")
	}
	got := strings.Join(tbl.Names(), ",")
	if got != "_f,b_vi_1,_g,b_vi_3" {
		t.Fatalf("slots = %s, want _f,b_vi_1,_g,b_vi_3", got)
	}
	if tbl.Mask != 3 {
		t.Fatalf("Mask = %d, want 3", tbl.Mask)
	}
	traps := funcNames(tbl.Funcs)
	if strings.Join(traps, ",") != "b_vi_1,b_vi_3" {
		t.Fatalf("trap functions = %v", traps)
	}
	if !strings.Contains(tbl.Funcs[0].Source(), "nullFunc_vi(1);") {
		t.Fatalf("trap body does not name the slot:\n%s", tbl.Funcs[0].Source())
	}
	if set.TableSize != 4 {
		t.Fatalf("TableSize = %d, want 4", set.TableSize)
	}
}

func TestSharedTrap(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_f")
	mod.Tables["ii"] = slots("", "_f", "", "")

	set, _ := build(t, mod, textOpts(1))
	tbl := set.Lookup("ii")
	if got := strings.Join(tbl.Names(), ","); got != "b_ii,_f,b_ii,b_ii" {
		t.Fatalf("slots = %s", got)
	}
	if len(tbl.Funcs) != 1 {
		t.Fatalf("want one shared trap, got %v", funcNames(tbl.Funcs))
	}
	want := "function b_ii(p0) {\n p0 = p0|0;\n nullFunc_ii(-1);\n return 0;\n}\n"
	if got := tbl.Funcs[0].Source(); got != want {
		t.Fatalf("Source = %q, want %q", got, want)
	}

	set, _ = build(t, mod, textOpts(0))
	if got := set.Lookup("ii").Funcs[0].Body[0]; got != "abort('ii');" {
		t.Fatalf("ASSERTIONS=0 trap body = %q", got)
	}
}

func TestEveryNullSlotTraps(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_a")
	mod.Tables["v"] = slots("", "_a", "", "", "")
	mod.Tables["d"] = nil

	for _, assertions := range []int64{0, 1, 2} {
		set, _ := build(t, mod, textOpts(assertions))
		for _, tbl := range set.Tables {
			defined := make(map[string]bool)
			for _, f := range tbl.Funcs {
				defined[f.Name] = true
			}
			for i, s := range tbl.Slots {
				switch s.Kind {
				case SlotSymbol:
					if !mod.Implemented.Has(s.Name) {
						t.Fatalf("%s[%d] = %s is not implemented", tbl.Sig, i, s.Name)
					}
				case SlotTrap:
					if !defined[s.Name] {
						t.Fatalf("%s[%d] traps through undefined %q", tbl.Sig, i, s.Name)
					}
				default:
					t.Fatalf("%s[%d] unexpected kind %s", tbl.Sig, i, s.Kind)
				}
			}
		}
		if set.Lookup("d").Len() != 1 {
			t.Fatalf("empty table should hold a single trap")
		}
	}
}

func TestBinaryTables(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_f")
	mod.Tables["vi"] = slots("", "_f", "")
	mod.TableSize = 3

	set, _ := build(t, mod, Options{Encoding: settings.EncodingBinary, Assertions: 2})
	tbl := set.Lookup("vi")
	if tbl.Len() != 3 || tbl.Mask != 0 {
		t.Fatalf("binary table len=%d mask=%d, want exact length and no mask", tbl.Len(), tbl.Mask)
	}
	if tbl.Slots[0].Kind != SlotReserved || tbl.Slots[2].Kind != SlotTrap || len(tbl.Funcs) != 0 {
		t.Fatalf("binary slots = %+v funcs = %v", tbl.Slots, funcNames(tbl.Funcs))
	}
	if set.TableSize != 3 {
		t.Fatalf("TableSize = %d, want metadata tableSize", set.TableSize)
	}

	mod.Tables["vi"] = slots("_f")
	_, err := BuildAll(context.Background(), mod, nil, Options{Encoding: settings.EncodingBinary}, nil)
	var te *TableError
	if !errors.As(err, &te) || te.Kind != TableErrReservedSlotZero {
		t.Fatalf("err = %v, want reserved slot zero", err)
	}
	if te.Code() != diag.TblReservedSlotZero {
		t.Fatalf("Code = %v", te.Code())
	}
}

func TestUnknownSlotSymbol(t *testing.T) {
	mod := model.NewModule()
	mod.Tables["v"] = slots("", "_ghost")
	_, err := BuildAll(context.Background(), mod, nil, textOpts(1), nil)
	var te *TableError
	if !errors.As(err, &te) || te.Kind != TableErrUnknownSymbol || te.Symbol != "_ghost" || te.Index != 1 {
		t.Fatalf("err = %v, want unknown symbol _ghost at 1", err)
	}
}

func TestReservedSlots(t *testing.T) {
	for _, n := range []int64{1, 2, 3, 5} {
		mod := model.NewModule()
		for _, name := range []string{"_a", "_b", "_c"} {
			mod.Implemented.Add(name)
		}
		mod.Tables["vi"] = slots("", "_a", "_b", "_c")
		opts := textOpts(1)
		opts.Reserved = n

		set, bag := build(t, mod, opts)
		tbl := set.Lookup("vi")
		reserved := 0
		for i, s := range tbl.Slots {
			if s.Kind != SlotReserved {
				continue
			}
			reserved++
			if i < 1 || int64(i) > n {
				t.Fatalf("N=%d: reserved slot at %d", n, i)
			}
			if want := "jsCall_vi_" + string(rune('0'+i-1)); s.Name != want {
				t.Fatalf("N=%d: slot %d = %s, want %s", n, i, s.Name, want)
			}
		}
		if int64(reserved) != n {
			t.Fatalf("N=%d: %d reserved slots", n, reserved)
		}
		overwritten := min(int(n), 3)
		if bag.Len() != overwritten || bag.HasErrors() {
			t.Fatalf("N=%d: want %d overwrite warnings, got %+v", n, overwritten, bag.Items())
		}
	}
}

func TestReservedForwarding(t *testing.T) {
	mod := model.NewModule()
	mod.Tables["fi"] = nil
	opts := textOpts(1)
	opts.Reserved = 1
	set, _ := build(t, mod, opts)
	tbl := set.Lookup("fi")
	var src string
	for _, f := range tbl.Funcs {
		if f.Name == "jsCall_fi_0" {
			src = f.Source()
		}
	}
	if !strings.Contains(src, "return Math_fround(+jsCall_fi(0,p0|0));") {
		t.Fatalf("jsCall_fi_0 =\n%s", src)
	}
}

func TestReservedSkipsI64(t *testing.T) {
	mod := model.NewModule()
	mod.Tables["vj"] = nil
	opts := textOpts(1)
	opts.Reserved = 2
	set, bag := build(t, mod, opts)
	for _, s := range set.Lookup("vj").Slots {
		if s.Kind == SlotReserved {
			t.Fatalf("i64 table got reserved slots")
		}
	}
	if !bag.HasWarnings() || bag.Items()[0].Code != diag.TblReservedI64 {
		t.Fatalf("want i64 reservation warning, got %+v", bag.Items())
	}
}

func funcNamed(t *testing.T, tbl *Table, name string) Func {
	t.Helper()
	for _, f := range tbl.Funcs {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no function %s in table %s", name, tbl.Var())
	return Func{}
}

func TestWrappers(t *testing.T) {
	mod := model.NewModule()
	mod.Declared.Add("_imp")
	mod.Implemented.Add("_h")
	mod.Implemented.Add("_k")
	mod.FunctionSignatures["_h"] = sig.MustParse("if")
	mod.FunctionSignatures["_k"] = sig.MustParse("fi")
	mod.Tables["di"] = slots("", "_imp")
	mod.Tables["ii"] = slots("", "_h", "_k")

	set, bag := build(t, mod, textOpts(1))
	if bag.Len() != 2 {
		t.Fatalf("want two signature mismatch notes, got %+v", bag.Items())
	}
	for _, d := range bag.Items() {
		if d.Code != diag.TblSignatureMismatch || d.Severity != diag.SevInfo {
			t.Fatalf("unexpected diagnostic %+v", d)
		}
	}

	imp := set.Lookup("di")
	if imp.Slots[1].Kind != SlotWrapper || imp.Slots[1].Name != "_imp__wrapper" || imp.Slots[1].Target != "_imp" {
		t.Fatalf("import slot = %+v", imp.Slots[1])
	}
	want := "function _imp__wrapper(p0) {\n p0 = p0|0;\n return +_imp(p0|0);\n}\n"
	if got := funcNamed(t, imp, "_imp__wrapper").Source(); got != want {
		t.Fatalf("wrapper = %q, want %q", got, want)
	}

	cast := set.Lookup("ii")
	if cast.Slots[1].Name != "_h__ii" || cast.Slots[2].Name != "_k__ii" {
		t.Fatalf("cast slots = %+v", cast.Slots)
	}
	bodies := []struct {
		name string
		want string
	}{
		{"_h__ii", "return _h(Math_fround((p0|0)))|0;"},
		{"_k__ii", "return (~~_k(p0|0))|0;"},
	}
	for _, b := range bodies {
		if got := funcNamed(t, cast, b.name).Body[0]; got != b.want {
			t.Fatalf("%s body = %q, want %q", b.name, got, b.want)
		}
	}

	m := set.SymbolMap()
	if m["_imp__wrapper"] != "_imp" || m["_h__ii"] != "_h" || m["_k__ii"] != "_k" {
		t.Fatalf("SymbolMap = %v", m)
	}
}

func TestCastEmulation(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_f")
	mod.Implemented.Add("_g")
	mod.Tables["vi"] = slots("", "_f")
	mod.Tables["ii"] = slots("", "", "", "_g")
	opts := textOpts(2)
	opts.EmulateCasts = true

	set, _ := build(t, mod, opts)
	for _, tbl := range set.Tables {
		if tbl.Len() != 4 || tbl.Mask != 3 {
			t.Fatalf("%s len=%d mask=%d, want all tables padded to 4", tbl.Sig, tbl.Len(), tbl.Mask)
		}
	}
	vi := set.Lookup("vi")
	if got := strings.Join(vi.Names(), ","); got != "b_vi_0,_f,b_vi_2,fpemu_vi_3" {
		t.Fatalf("vi = %s", got)
	}
	ii := set.Lookup("ii")
	if got := strings.Join(ii.Names(), ","); got != "b_ii_0,fpemu_ii_1,b_ii_2,_g" {
		t.Fatalf("ii = %s", got)
	}
	for _, f := range ii.Funcs {
		if f.Name == "fpemu_ii_1" && strings.Join(f.Body, " ") != "_f(p0|0); return 0;" {
			t.Fatalf("fpemu_ii_1 body = %v", f.Body)
		}
	}
	for _, f := range set.Funcs() {
		if f.Name == "b_ii_1" || f.Name == "b_vi_3" {
			t.Fatalf("replaced trap %s still emitted", f.Name)
		}
	}

	opts.EmulateCasts = false
	set, _ = build(t, mod, opts)
	if set.Lookup("vi").Len() != 2 {
		t.Fatalf("tables padded without emulation")
	}
}

func TestDynCall(t *testing.T) {
	mod := model.NewModule()
	mod.Implemented.Add("_f")
	mod.Tables["fi"] = slots("", "_f")
	set, _ := build(t, mod, textOpts(1))
	f := set.Lookup("fi").DynCall()
	want := "function dynCall_fi(p0,p1) {\n p0 = p0|0;\n p1 = p1|0;\n return Math_fround(FUNCTION_TABLE_fi[p0&1](p1|0));\n}\n"
	if got := f.Source(); got != want {
		t.Fatalf("DynCall = %q, want %q", got, want)
	}
	if got := set.Lookup("fi").Literal(); got != "var FUNCTION_TABLE_fi = [b_fi,_f];" {
		t.Fatalf("Literal = %q", got)
	}
}
