// Package assemble produces the final artifacts of a link: the asm.js module
// for the text encoding, or the JavaScript glue that accompanies a
// WebAssembly binary.
package assemble

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"emlink/internal/diag"
	"emlink/internal/layout"
	"emlink/internal/metadata"
	"emlink/internal/model"
	"emlink/internal/resolve"
	"emlink/internal/settings"
	"emlink/internal/tables"
	"emlink/internal/trace"
	"emlink/internal/wasmbin"
	runtimeembed "emlink/runtime"
)

// Input is everything the assembler reads. Every earlier stage must have
// run: the module is resolved, the layout planned and the tables built.
type Input struct {
	Module     *model.Module
	Resolution *resolve.Resolution
	Memory     layout.Memory
	Tables     *tables.Set
	Settings   *settings.Settings

	// Parts holds the function bodies of a text-form link.
	Parts *metadata.TextParts
	// Binary is the finalized module of a binary-form link.
	Binary []byte
	// BinaryInfo, when present, feeds the binary symbol map.
	BinaryInfo *wasmbin.Info

	// Template overrides the embedded runtime template.
	Template *Template
	// OutputName is the path of the main JavaScript output.
	OutputName string

	Reporter diag.Reporter
}

// File is one output artifact.
type File struct {
	Name string
	Data []byte
}

// Output lists the artifacts of a link; the JavaScript file comes first.
type Output struct {
	Files []File
}

// Main returns the JavaScript output.
func (o *Output) Main() File {
	if o == nil || len(o.Files) == 0 {
		return File{}
	}
	return o.Files[0]
}

// Lookup returns the file called name.
func (o *Output) Lookup(name string) (File, bool) {
	for _, f := range o.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// AssembleError is a fatal problem found while emitting.
type AssembleError struct {
	code    diag.Code
	Subject string
	Message string
}

func (e *AssembleError) Error() string {
	if e.Subject == "" {
		return e.Message
	}
	return e.Subject + ": " + e.Message
}

// Code is the diagnostic code of the error.
func (e *AssembleError) Code() diag.Code {
	return e.code
}

func errorf(code diag.Code, subject, format string, args ...any) *AssembleError {
	return &AssembleError{code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// WasmFileName is the binary that accompanies the glue at outputName.
func WasmFileName(outputName string) string {
	return strings.TrimSuffix(outputName, ".js") + ".wasm"
}

// MemFileName is the memory initializer side file.
func MemFileName(outputName string) string {
	return outputName + ".mem"
}

// SymbolsFileName is the symbol map side file.
func SymbolsFileName(outputName string) string {
	return outputName + ".symbols"
}

// DebugInfoFileName is the cyberdwarf side file.
func DebugInfoFileName(outputName string) string {
	return outputName + ".cd"
}

// DefaultTemplate parses the embedded template for enc.
func DefaultTemplate(enc settings.Encoding) (*Template, error) {
	if enc == settings.EncodingBinary {
		return ParseTemplate("wasm.js", runtimeembed.BinaryTemplate())
	}
	return ParseTemplate("asmjs.js", runtimeembed.TextTemplate())
}

// Assemble renders the outputs of in. The result depends only on in: every
// collection is emitted in sorted order.
func Assemble(ctx context.Context, in *Input) (*Output, error) {
	if in.Settings == nil || in.Module == nil || in.Resolution == nil {
		return nil, fmt.Errorf("assemble: incomplete input")
	}
	if in.Reporter == nil {
		in.Reporter = diag.NopReporter{}
	}
	if err := in.Resolution.Verify(in.Module); err != nil {
		return nil, errorf(diag.AsmDisjointnessBroken, "", "%v", err)
	}
	if err := checkHostSignatures(in.Module); err != nil {
		return nil, err
	}
	enc := in.Settings.Encoding()
	if enc == settings.EncodingText && in.Parts == nil {
		return nil, fmt.Errorf("assemble: text encoding needs the function bodies")
	}
	if enc == settings.EncodingBinary && len(in.Binary) == 0 {
		return nil, fmt.Errorf("assemble: binary encoding needs the wasm binary")
	}

	tmpl := in.Template
	if tmpl == nil {
		var err error
		if tmpl, err = DefaultTemplate(enc); err != nil {
			return nil, err
		}
	}

	e := newEmitter(in)
	if enc == settings.EncodingBinary {
		e.emitBinary()
	} else {
		e.emitText()
	}

	wasmFile := ""
	if enc == settings.EncodingBinary {
		wasmFile = filepath.Base(WasmFileName(in.OutputName))
	}
	values := LayoutValues(in.Memory, tableSize(in.Tables), in.Settings.Assertions, wasmFile)
	js, err := tmpl.Render(values, []byte(e.buf.String()))
	if err != nil {
		return nil, err
	}

	out := &Output{Files: []File{{Name: in.OutputName, Data: js}}}
	if enc == settings.EncodingBinary {
		out.Files = append(out.Files, File{Name: WasmFileName(in.OutputName), Data: in.Binary})
	}
	if e.memFile != nil {
		out.Files = append(out.Files, File{Name: MemFileName(in.OutputName), Data: e.memFile})
	}
	if in.Settings.EmitSymbolMap {
		if data := e.symbolMap(); data != nil {
			out.Files = append(out.Files, File{Name: SymbolsFileName(in.OutputName), Data: data})
		}
	}
	if in.Settings.Cyberdwarf && len(in.Module.CyberdwarfData) > 0 {
		out.Files = append(out.Files, File{Name: DebugInfoFileName(in.OutputName), Data: in.Module.CyberdwarfData})
	}
	trace.StagePoint(ctx, trace.ScopeDetail, "assemble", fmt.Sprintf("%d files, %d bytes of js", len(out.Files), len(js)))
	return out, nil
}

func tableSize(set *tables.Set) uint32 {
	if set == nil {
		return 0
	}
	return set.TableSize
}

// checkHostSignatures rejects inline host code called with 64-bit integers.
func checkHostSignatures(mod *model.Module) error {
	for _, id := range mod.AsmConstIDs() {
		for _, s := range mod.AsmConsts[id].Sigs {
			if err := s.CheckHostInterop(fmt.Sprintf("EM_ASM block %d", id)); err != nil {
				return errorf(diag.AsmI64HostSignature, string(s), "%v", err)
			}
		}
	}
	for _, name := range mod.EmJsNames() {
		if s, ok := mod.FunctionSignatures[name]; ok {
			if err := s.CheckHostInterop("EM_JS function " + name); err != nil {
				return errorf(diag.AsmI64HostSignature, name, "%v", err)
			}
		}
	}
	return nil
}
