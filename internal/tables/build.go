package tables

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"emlink/internal/diag"
	"emlink/internal/model"
	"emlink/internal/resolve"
	"emlink/internal/settings"
	"emlink/internal/sig"
	"emlink/internal/trace"
)

// Options selects how tables are finalized.
type Options struct {
	Encoding     settings.Encoding
	Assertions   int64
	Reserved     int64
	EmulateCasts bool
	// Jobs bounds concurrent table builds; zero means GOMAXPROCS.
	Jobs int
}

// OptionsFrom reads the table options out of st.
func OptionsFrom(st *settings.Settings) Options {
	return Options{
		Encoding:     st.Encoding(),
		Assertions:   st.Assertions,
		Reserved:     st.ReservedFunctionPointers,
		EmulateCasts: bool(st.EmulateFunctionPointerCasts),
	}
}

func (o Options) text() bool {
	return o.Encoding == settings.EncodingText
}

type buildResult struct {
	table *Table
	bag   *diag.Bag
	err   error
}

// BuildAll finalizes every table of mod. Tables are built concurrently and
// collected in signature order, so diagnostics and output do not depend on
// scheduling. Fatal slot problems are returned as *TableError.
func BuildAll(ctx context.Context, mod *model.Module, res *resolve.Resolution, opts Options, rep diag.Reporter) (*Set, error) {
	if rep == nil {
		rep = diag.NopReporter{}
	}
	sigs := mod.TableSignatures()
	results := make([]buildResult, len(sigs))

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(sigs))))
	for i, s := range sigs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			bag := diag.NewBag(0)
			b := &builder{
				mod:  mod,
				res:  res,
				opts: opts,
				rep:  diag.BagReporter{Bag: bag, Stage: "tables"},
			}
			t, err := b.build(s, mod.Tables[s])
			results[i] = buildResult{table: t, bag: bag, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &Set{Tables: make([]*Table, 0, len(sigs))}
	for _, r := range results {
		for _, d := range r.bag.Items() {
			rep.Report(d.Code, d.Severity, d.Subject, d.Message, d.Notes)
		}
		if r.err != nil {
			return nil, r.err
		}
		set.Tables = append(set.Tables, r.table)
	}

	if opts.EmulateCasts {
		if err := emulateCasts(ctx, set, mod, opts); err != nil {
			return nil, err
		}
	}

	if opts.text() {
		var total uint64
		for _, t := range set.Tables {
			total += uint64(t.Len())
		}
		size, err := safecast.Conv[uint32](total)
		if err != nil {
			return nil, fmt.Errorf("table size: %w", err)
		}
		set.TableSize = size
	} else {
		set.TableSize = mod.TableSize
	}
	trace.StagePoint(ctx, trace.ScopeDetail, "tables", fmt.Sprintf("%d tables, %d slots", len(set.Tables), set.TableSize))
	return set, nil
}

type builder struct {
	mod  *model.Module
	res  *resolve.Resolution
	opts Options
	rep  diag.Reporter

	sharedTrap bool
	funcs      []Func
}

func (b *builder) build(s sig.Signature, entries []model.Slot) (*Table, error) {
	reserved := b.reservedCount(s)
	length := len(entries)
	if reserved > 0 && length < reserved+1 {
		length = reserved + 1
	}
	if b.opts.text() {
		length = nextPow2(length)
	}

	t := &Table{Sig: s, Slots: make([]Slot, length)}
	for i := range t.Slots {
		var entry model.Slot
		if i < len(entries) {
			entry = entries[i]
		}
		slot, err := b.slot(s, i, entry, reserved)
		if err != nil {
			return nil, err
		}
		t.Slots[i] = slot
	}
	if b.opts.text() {
		mask, err := safecast.Conv[uint32](length - 1)
		if err != nil {
			return nil, fmt.Errorf("table %s mask: %w", s, err)
		}
		t.Mask = mask
	}
	t.Funcs = b.funcs
	return t, nil
}

// reservedCount is the number of leading slots kept for host callbacks.
func (b *builder) reservedCount(s sig.Signature) int {
	if !b.opts.text() || b.opts.Reserved <= 0 {
		return 0
	}
	if s.HasI64() {
		diag.ReportWarning(b.rep, diag.TblReservedI64, string(s),
			"function table "+string(s)+" takes a 64-bit integer; no slots reserved for host callbacks").Emit()
		return 0
	}
	return int(b.opts.Reserved)
}

func (b *builder) slot(s sig.Signature, i int, entry model.Slot, reserved int) (Slot, error) {
	if i >= 1 && i <= reserved {
		if entry != nil {
			diag.ReportWarning(b.rep, diag.TblReservedOverwrite, *entry,
				fmt.Sprintf("function table %s slot %d is reserved for host callbacks; %s is dropped from it", s, i, *entry)).Emit()
		}
		f := reservedFunc(s, i-1)
		b.funcs = append(b.funcs, f)
		return Slot{Kind: SlotReserved, Name: f.Name}, nil
	}

	if !b.opts.text() && i == 0 {
		if entry != nil {
			return Slot{}, &TableError{Kind: TableErrReservedSlotZero, Sig: s, Symbol: *entry}
		}
		return Slot{Kind: SlotReserved}, nil
	}

	if entry == nil {
		return b.trap(s, i), nil
	}

	name := *entry
	if !b.known(name) {
		return Slot{}, &TableError{Kind: TableErrUnknownSymbol, Sig: s, Index: i, Symbol: name}
	}
	if !b.opts.text() {
		return Slot{Kind: SlotSymbol, Name: name, Target: name}, nil
	}
	if !b.mod.Implemented.Has(name) {
		f := importWrapper(name, s)
		b.funcs = append(b.funcs, f)
		return Slot{Kind: SlotWrapper, Name: f.Name, Target: name}, nil
	}
	if actual, ok := b.mod.FunctionSignatures[name]; ok && actual != s {
		diag.ReportInfo(b.rep, diag.TblSignatureMismatch, name,
			fmt.Sprintf("%s has signature %s but sits in table %s; calls go through a conversion wrapper", name, actual, s)).Emit()
		f := castFunc(name+"__"+string(s), name, s, actual)
		b.funcs = append(b.funcs, f)
		return Slot{Kind: SlotWrapper, Name: f.Name, Target: name}, nil
	}
	return Slot{Kind: SlotSymbol, Name: name, Target: name}, nil
}

func (b *builder) known(name string) bool {
	if b.mod.Implemented.Has(name) || b.mod.Declared.Has(name) || b.mod.IsDefined(name) {
		return true
	}
	return b.res != nil && b.res.Imports.Has(name)
}

// trap fills a null slot. Binary tables trap natively; text tables call a
// synthesized function, one per signature or one per slot at ASSERTIONS=2.
func (b *builder) trap(s sig.Signature, i int) Slot {
	if !b.opts.text() {
		return Slot{Kind: SlotTrap}
	}
	if b.opts.Assertions >= 2 {
		f := trapFunc("b_"+string(s)+"_"+strconv.Itoa(i), s, b.opts.Assertions, i)
		b.funcs = append(b.funcs, f)
		return Slot{Kind: SlotTrap, Name: f.Name}
	}
	name := "b_" + string(s)
	if !b.sharedTrap {
		b.sharedTrap = true
		b.funcs = append(b.funcs, trapFunc(name, s, b.opts.Assertions, -1))
	}
	return Slot{Kind: SlotTrap, Name: name}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
