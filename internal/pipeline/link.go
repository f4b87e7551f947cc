// Package pipeline runs a complete link: it reads the backend output, runs
// every stage in order and writes the artifacts atomically.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"emlink/internal/assemble"
	"emlink/internal/diag"
	"emlink/internal/layout"
	"emlink/internal/linkcache"
	"emlink/internal/metadata"
	"emlink/internal/model"
	"emlink/internal/observ"
	"emlink/internal/resolve"
	"emlink/internal/settings"
	"emlink/internal/tables"
	"emlink/internal/trace"
	"emlink/internal/wasmbin"
	runtimeembed "emlink/runtime"
)

// Request configures one link.
type Request struct {
	// Input is the backend output: the JavaScript file for the text
	// encoding, the metadata JSON for the binary encoding.
	Input string
	// WasmBinary is the finalized binary; required for the binary encoding.
	WasmBinary string
	// Output is the main JavaScript output path.
	Output string
	// TemplatePath overrides the embedded runtime template.
	TemplatePath string

	// StopAfter ends the link after the named stage. Nothing is written and
	// the cache is not consulted; the binary encoding may then omit
	// WasmBinary, which skips verification.
	StopAfter Stage

	Settings       *settings.Settings
	Cache          *linkcache.Cache
	MaxDiagnostics int
	Progress       ProgressSink
}

// Result captures the link artifacts and what the stages found.
type Result struct {
	Files      []string
	Bag        *diag.Bag
	Timings    Timings
	Report     observ.Report
	Module     *model.Module
	Resolution *resolve.Resolution
	Layout     layout.Memory
	Tables     *tables.Set
	CacheHit   bool
}

type linker struct {
	req   *Request
	st    *settings.Settings
	bag   *diag.Bag
	timer *observ.Timer
	res   Result

	input    []byte
	binary   []byte
	template *assemble.Template
	tmplSrc  []byte
	parts    *metadata.TextParts
	info     *wasmbin.Info
}

// Link runs every stage of req. Diagnostics are returned in the result even
// when the link fails.
func Link(ctx context.Context, req *Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return Result{}, fmt.Errorf("missing link request")
	}
	if req.Input == "" {
		return Result{}, fmt.Errorf("missing backend output path")
	}
	st := req.Settings
	if st == nil {
		st = settings.Default()
	}
	if err := st.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid settings: %w", err)
	}
	l := &linker{
		req:   req,
		st:    st,
		bag:   diag.NewBag(req.MaxDiagnostics),
		timer: observ.NewTimer(),
	}
	if l.req.Output == "" {
		l.req = copyRequest(req)
		l.req.Output = defaultOutput(req.Input)
	}
	l.res.Bag = l.bag

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "link", trace.CurrentSpan(ctx))
	ctx = trace.WithSpan(ctx, span)
	err := l.run(ctx)
	l.res.Report = l.timer.Report()
	detail := "ok"
	if err != nil {
		detail = err.Error()
	}
	span.End(detail)
	return l.res, err
}

func copyRequest(req *Request) *Request {
	c := *req
	return &c
}

// defaultOutput names the JavaScript output after the input.
func defaultOutput(input string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	if strings.HasSuffix(base, ".metadata") {
		base = strings.TrimSuffix(base, ".metadata")
	}
	return base + ".out.js"
}

func (l *linker) run(ctx context.Context) error {
	emitQueued(l.req.Progress, l.req.Input)

	if err := l.stage(ctx, StageRead, l.read); err != nil {
		return err
	}
	if l.req.StopAfter != "" {
		return l.runUntil(ctx, l.req.StopAfter)
	}
	key, hit, err := l.lookupCache(ctx)
	if err != nil {
		return err
	}
	if hit {
		return nil
	}

	var out *assemble.Output
	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageParse, l.parse},
		{StageResolve, l.resolve},
		{StageLayout, l.layout},
		{StageTables, l.tables},
		{StageAssemble, func(ctx context.Context) error {
			var err error
			out, err = l.assemble(ctx)
			return err
		}},
		{StageWrite, func(context.Context) error {
			return l.write(out.Files)
		}},
	}
	for _, s := range steps {
		if err := l.stage(ctx, s.stage, s.fn); err != nil {
			return err
		}
	}
	l.storeCache(key, out)
	return nil
}

// runUntil runs the analysis stages up to and including last.
func (l *linker) runUntil(ctx context.Context, last Stage) error {
	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageParse, l.parse},
		{StageResolve, l.resolve},
		{StageLayout, l.layout},
		{StageTables, l.tables},
	}
	known := false
	for _, s := range steps {
		known = known || s.stage == last
	}
	if !known {
		return fmt.Errorf("cannot stop after stage %q", last)
	}
	for _, s := range steps {
		if err := l.stage(ctx, s.stage, s.fn); err != nil {
			return err
		}
		if s.stage == last {
			break
		}
	}
	return nil
}

// stage runs fn as stage: it times it, traces it, reports progress and
// turns a returned error or a new error diagnostic into a LinkError.
func (l *linker) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	emit(l.req.Progress, l.req.Input, stage, StatusWorking, nil)
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStage, string(stage), trace.CurrentSpan(ctx))
	idx := l.timer.Begin(string(stage))
	errsBefore := l.bag.CountErrors()

	err := fn(trace.WithSpan(ctx, span))
	if err == nil && l.bag.CountErrors() > errsBefore {
		err = diag.ErrorFromBag(string(stage), l.bag)
	} else if err != nil {
		err = l.stageError(stage, err)
	}

	note := ""
	if err != nil {
		note = "failed"
	}
	l.timer.End(idx, note)
	dur := span.End(note)
	l.res.Timings.Set(stage, dur)
	if err != nil {
		emit(l.req.Progress, l.req.Input, stage, StatusError, err)
		return err
	}
	if l.req.Progress != nil {
		l.req.Progress.OnEvent(Event{File: l.req.Input, Stage: stage, Status: StatusDone, Elapsed: dur})
	}
	return nil
}

// stageError records a coded error as a diagnostic and wraps it in a
// LinkError; other errors are wrapped with the stage name.
func (l *linker) stageError(stage Stage, err error) error {
	var linkErr *diag.LinkError
	if errors.As(err, &linkErr) {
		return err
	}
	var coded interface{ Code() diag.Code }
	if !errors.As(err, &coded) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	d := diag.NewError(coded.Code(), "", err.Error()).WithStage(string(stage))
	l.bag.Add(d)
	return &diag.LinkError{
		Stage:   string(stage),
		Code:    d.Code,
		Message: d.Message,
		Count:   max(l.bag.CountErrors(), 1),
		Err:     err,
	}
}

func (l *linker) reporter(stage Stage) diag.Reporter {
	return diag.BagReporter{Bag: l.bag, Stage: string(stage)}
}

func (l *linker) text() bool {
	return l.st.Encoding() == settings.EncodingText
}

func (l *linker) read(ctx context.Context) error {
	var err error
	if l.input, err = readFile(l.req.Input); err != nil {
		return err
	}
	switch {
	case l.text():
	case l.req.WasmBinary == "" && l.req.StopAfter != "":
		trace.StagePoint(ctx, trace.ScopeDetail, "read", "no wasm binary, verification skipped")
	case l.req.WasmBinary == "":
		return fmt.Errorf("the binary encoding needs the finalized wasm binary")
	default:
		if l.binary, err = readFile(l.req.WasmBinary); err != nil {
			return err
		}
	}
	if l.req.TemplatePath != "" {
		if l.tmplSrc, err = readFile(l.req.TemplatePath); err != nil {
			return err
		}
		if l.template, err = assemble.ParseTemplate(filepath.Base(l.req.TemplatePath), l.tmplSrc); err != nil {
			return err
		}
	}
	trace.StagePoint(ctx, trace.ScopeDetail, "read", fmt.Sprintf("%d bytes of backend output", len(l.input)))
	return nil
}

func readFile(path string) ([]byte, error) {
	// #nosec G304 -- paths come from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return data, nil
}

func (l *linker) parse(ctx context.Context) error {
	var mod *model.Module
	var err error
	if l.text() {
		mod, l.parts, err = metadata.ParseText(ctx, l.input)
	} else {
		mod, err = metadata.ParseBinary(ctx, l.input)
	}
	if err != nil {
		return err
	}
	if l.parts != nil {
		for _, key := range l.parts.Ignored {
			diag.ReportInfo(l.reporter(StageParse), diag.PrsUnknownTextKey, key,
				"metadata key "+key+" is not used by the linker").Emit()
		}
	}
	if mod.CantValidate != "" {
		diag.ReportWarning(l.reporter(StageParse), diag.PrsCantValidate, l.req.Input,
			"the backend reports the module cannot be validated: "+mod.CantValidate).
			WithNote("binary verification is skipped").
			Emit()
	}
	l.res.Module = mod
	return nil
}

func (l *linker) resolve(ctx context.Context) error {
	library := model.NewSymbolSet(runtimeembed.LibrarySymbols()...)
	res, err := resolve.Resolve(ctx, l.res.Module, l.st, library, l.reporter(StageResolve))
	if err != nil {
		return &stageFailure{code: diag.ResImportExportOverlap, err: err}
	}
	l.res.Resolution = res
	if l.text() || l.binary == nil || !bool(l.st.VerifyBinary) || l.res.Module.CantValidate != "" {
		return nil
	}
	info, err := wasmbin.Inspect(ctx, l.binary)
	if err != nil {
		return fmt.Errorf("%s: %w", l.req.WasmBinary, err)
	}
	l.info = info
	wasmbin.CrossCheck(info, l.res.Module, res, l.reporter(StageResolve))
	return nil
}

func (l *linker) layout(ctx context.Context) error {
	in, err := l.st.ResolveLayoutInput(l.res.Module.StaticBump)
	if err != nil {
		return &stageFailure{code: diag.LayBadGlobalBase, err: err}
	}
	mem, err := layout.Plan(in)
	if err != nil {
		return err
	}
	l.st.Layout = &mem
	l.res.Layout = mem
	trace.StagePoint(ctx, trace.ScopeDetail, "layout",
		fmt.Sprintf("stack %d..%d, dynamic base %d", mem.StackLow, mem.StackHigh, mem.DynamicBase))
	return nil
}

func (l *linker) tables(ctx context.Context) error {
	opts := tables.OptionsFrom(l.st)
	set, err := tables.BuildAll(ctx, l.res.Module, l.res.Resolution, opts, l.reporter(StageTables))
	if err != nil {
		return err
	}
	l.st.TableSize = set.TableSize
	l.res.Tables = set
	return nil
}

func (l *linker) assemble(ctx context.Context) (*assemble.Output, error) {
	return assemble.Assemble(ctx, &assemble.Input{
		Module:     l.res.Module,
		Resolution: l.res.Resolution,
		Memory:     l.res.Layout,
		Tables:     l.res.Tables,
		Settings:   l.st,
		Parts:      l.parts,
		Binary:     l.binary,
		BinaryInfo: l.info,
		Template:   l.template,
		OutputName: l.req.Output,
		Reporter:   l.reporter(StageAssemble),
	})
}

// write commits files. The wasm binary is written next to the glue even
// when it already exists elsewhere, so the glue's relative reference holds.
func (l *linker) write(files []assemble.File) error {
	var set OutputSet
	for _, f := range files {
		if err := set.Add(f.Name, f.Data); err != nil {
			set.Abort()
			return &stageFailure{code: diag.OutWriteError, err: err}
		}
	}
	written, err := set.Commit()
	if err != nil {
		return &stageFailure{code: diag.OutWriteError, err: err}
	}
	l.res.Files = written
	return nil
}

// stageFailure attaches a diagnostic code to an error from a package that
// does not define one.
type stageFailure struct {
	code diag.Code
	err  error
}

func (e *stageFailure) Error() string   { return e.err.Error() }
func (e *stageFailure) Unwrap() error   { return e.err }
func (e *stageFailure) Code() diag.Code { return e.code }
