// Package settings holds the link configuration. A Settings value is created
// once per link, filled from defaults, an optional TOML file and `-s`
// overrides, and passed by pointer to every stage. Stages only write the
// fields they own: the layout stage sets Layout, the table stage TableSize.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"emlink/internal/layout"
)

// Encoding selects the output form.
type Encoding uint8

const (
	// EncodingText emits one asm.js JavaScript file.
	EncodingText Encoding = iota
	// EncodingBinary emits a .wasm binary plus JavaScript glue.
	EncodingBinary
)

func (e Encoding) String() string {
	if e == EncodingBinary {
		return "binary"
	}
	return "text"
}

type Settings struct {
	Wasm        Flag  `toml:"WASM"`
	TotalMemory int64 `toml:"TOTAL_MEMORY"`
	TotalStack  int64 `toml:"TOTAL_STACK"`
	GlobalBase  int64 `toml:"GLOBAL_BASE"`
	Assertions  int64 `toml:"ASSERTIONS"`

	Relocatable Flag `toml:"RELOCATABLE"`
	SideModule  Flag `toml:"SIDE_MODULE"`
	MainModule  Flag `toml:"MAIN_MODULE"`

	ExportedFunctions       []string `toml:"EXPORTED_FUNCTIONS"`
	ExportAll               Flag     `toml:"EXPORT_ALL"`
	ErrorOnUndefinedSymbols Flag     `toml:"ERROR_ON_UNDEFINED_SYMBOLS"`
	WarnOnUndefinedSymbols  Flag     `toml:"WARN_ON_UNDEFINED_SYMBOLS"`
	IgnoredUndefinedExports []string `toml:"IGNORED_UNDEFINED_EXPORTS"`
	ExpectMain              Flag     `toml:"EXPECT_MAIN"`
	IgnoreMissingMain       Flag     `toml:"IGNORE_MISSING_MAIN"`
	ExportStackHelpers      Flag     `toml:"EXPORT_STACK_HELPERS"`

	EmulateFunctionPointerCasts Flag  `toml:"EMULATE_FUNCTION_POINTER_CASTS"`
	ReservedFunctionPointers    int64 `toml:"RESERVED_FUNCTION_POINTERS"`

	MinimalRuntime     Flag   `toml:"MINIMAL_RUNTIME"`
	SafeHeap           Flag   `toml:"SAFE_HEAP"`
	StackOverflowCheck int64  `toml:"STACK_OVERFLOW_CHECK"`
	UsePthreads        Flag   `toml:"USE_PTHREADS"`
	AllowMemoryGrowth  Flag   `toml:"ALLOW_MEMORY_GROWTH"`
	SupportLongjmp     Flag   `toml:"SUPPORT_LONGJMP"`
	StackDirection     string `toml:"STACK_DIRECTION"`

	EmitSymbolMap     Flag  `toml:"EMIT_SYMBOL_MAP"`
	MinifyExportNames Flag  `toml:"MINIFY_EXPORT_NAMES"`
	Cyberdwarf        Flag  `toml:"CYBERDWARF"`
	MemInitMethod     int64 `toml:"MEM_INIT_METHOD"`
	VerifyBinary      Flag  `toml:"VERIFY_BINARY"`

	RuntimeFuncsToImport []string `toml:"RUNTIME_FUNCS_TO_IMPORT"`
	LibrarySymbols       []string `toml:"LIBRARY_SYMBOLS"`

	// Layout is written by the layout stage.
	Layout *layout.Memory `toml:"-"`
	// TableSize is written by the table stage.
	TableSize uint32 `toml:"-"`
}

// DefaultRuntimeImports are the support functions the text encoding always
// imports from the host.
var DefaultRuntimeImports = []string{
	"abort",
	"assert",
	"enlargeMemory",
	"getTotalMemory",
	"abortOnCannotGrowMemory",
}

// Default returns the built-in configuration.
func Default() *Settings {
	return &Settings{
		Wasm:                    true,
		TotalMemory:             16 * 1024 * 1024,
		TotalStack:              5 * 1024 * 1024,
		GlobalBase:              -1,
		Assertions:              1,
		ExportedFunctions:       []string{"_main"},
		ErrorOnUndefinedSymbols: true,
		WarnOnUndefinedSymbols:  true,
		IgnoredUndefinedExports: []string{},
		ExpectMain:              true,
		ExportStackHelpers:      true,
		SupportLongjmp:          true,
		StackDirection:          "auto",
		VerifyBinary:            true,
		RuntimeFuncsToImport:    append([]string(nil), DefaultRuntimeImports...),
		LibrarySymbols:          []string{},
	}
}

// Load returns the defaults overlaid with the TOML file at path. Keys the
// struct does not know are an error.
func Load(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	// #nosec G304 -- path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := s.decode(string(data)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ApplyOverrides applies each `KEY=VALUE` in order.
func (s *Settings) ApplyOverrides(overrides []string) error {
	for _, o := range overrides {
		if err := s.ApplyOverride(o); err != nil {
			return err
		}
	}
	return nil
}

// ApplyOverride applies one `KEY=VALUE` override. VALUE is read as TOML, so
// arrays may be written `['_main','_foo']`; a bare word that is not valid TOML
// is taken as a string, and a missing `=VALUE` means 1.
func (s *Settings) ApplyOverride(kv string) error {
	key, value, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("invalid setting %q: missing name", kv)
	}
	if !ok {
		value = "1"
	}
	value = strings.TrimSpace(value)
	err := s.decode(key + " = " + value)
	if err != nil && looksBare(value) {
		qerr := s.decode(key + " = " + strconv.Quote(value))
		if qerr == nil {
			return nil
		}
		var unknown *unknownKeysError
		if errors.As(qerr, &unknown) {
			err = qerr
		}
	}
	if err != nil {
		return fmt.Errorf("invalid setting %q: %w", kv, err)
	}
	return nil
}

type unknownKeysError struct {
	keys []string
}

func (e *unknownKeysError) Error() string {
	return "unknown setting " + strings.Join(e.keys, ", ")
}

func (s *Settings) decode(doc string) error {
	meta, err := toml.Decode(doc, s)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return &unknownKeysError{keys: keys}
	}
	return nil
}

func looksBare(v string) bool {
	if v == "" {
		return false
	}
	switch v[0] {
	case '[', '{', '"', '\'':
		return false
	}
	return true
}

// Validate checks ranges and combinations.
func (s *Settings) Validate() error {
	var errs []error
	if s.Assertions < 0 || s.Assertions > 2 {
		errs = append(errs, fmt.Errorf("ASSERTIONS must be 0, 1 or 2, got %d", s.Assertions))
	}
	if s.StackOverflowCheck < 0 || s.StackOverflowCheck > 2 {
		errs = append(errs, fmt.Errorf("STACK_OVERFLOW_CHECK must be 0, 1 or 2, got %d", s.StackOverflowCheck))
	}
	if s.ReservedFunctionPointers < 0 {
		errs = append(errs, fmt.Errorf("RESERVED_FUNCTION_POINTERS must not be negative, got %d", s.ReservedFunctionPointers))
	}
	switch s.StackDirection {
	case "up", "down", "auto":
	default:
		errs = append(errs, fmt.Errorf("STACK_DIRECTION must be up, down or auto, got %q", s.StackDirection))
	}
	if s.MemInitMethod < 0 || s.MemInitMethod > 1 {
		errs = append(errs, fmt.Errorf("MEM_INIT_METHOD must be 0 or 1, got %d", s.MemInitMethod))
	}
	if s.SideModule && s.MainModule {
		errs = append(errs, errors.New("SIDE_MODULE and MAIN_MODULE are mutually exclusive"))
	}
	if s.TotalMemory <= 0 || s.TotalMemory > 1<<32-1 {
		errs = append(errs, fmt.Errorf("TOTAL_MEMORY out of range: %d", s.TotalMemory))
	}
	if s.TotalStack < 0 || s.TotalStack > 1<<32-1 {
		errs = append(errs, fmt.Errorf("TOTAL_STACK out of range: %d", s.TotalStack))
	}
	if s.GlobalBase < -1 || s.GlobalBase > 1<<32-1 {
		errs = append(errs, fmt.Errorf("GLOBAL_BASE out of range: %d", s.GlobalBase))
	}
	return errors.Join(errs...)
}

// Encoding is the selected output form.
func (s *Settings) Encoding() Encoding {
	if s.Wasm {
		return EncodingBinary
	}
	return EncodingText
}

// IsRelocatable reports whether symbols may be resolved at load time.
func (s *Settings) IsRelocatable() bool {
	return bool(s.Relocatable || s.SideModule || s.MainModule)
}

// Target returns the layout target for the selected encoding.
func (s *Settings) Target() layout.Target {
	if s.Encoding() == EncodingBinary {
		return layout.Binary()
	}
	return layout.Text()
}

// ResolveLayoutInput turns the layout settings into planner input, filling
// the automatic values for the selected encoding.
func (s *Settings) ResolveLayoutInput(staticDataSize uint32) (layout.Input, error) {
	target := s.Target()
	in := layout.Input{
		StaticDataSize: staticDataSize,
		PageSize:       target.PageSize,
		GlobalBase:     target.DefaultBase,
		Direction:      target.DefaultDirection,
	}
	if s.GlobalBase >= 0 {
		gb, err := u32("GLOBAL_BASE", s.GlobalBase)
		if err != nil {
			return layout.Input{}, err
		}
		in.GlobalBase = gb
	}
	var err error
	if in.StackSize, err = u32("TOTAL_STACK", s.TotalStack); err != nil {
		return layout.Input{}, err
	}
	if in.TotalMemory, err = u32("TOTAL_MEMORY", s.TotalMemory); err != nil {
		return layout.Input{}, err
	}
	switch s.StackDirection {
	case "up":
		in.Direction = layout.Up
	case "down":
		in.Direction = layout.Down
	}
	return in, nil
}

// u32 narrows a setting to an address-sized value, naming the setting when
// it does not fit.
func u32(name string, v int64) (uint32, error) {
	out, err := safecast.Conv[uint32](v)
	if err != nil {
		return 0, fmt.Errorf("%s out of range: %d: %w", name, v, err)
	}
	return out, nil
}

// Canonical encodes the settings as TOML. Fields are written in declaration
// order, so equal settings always produce equal bytes.
func (s *Settings) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return buf.Bytes(), nil
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.ExportedFunctions = append([]string(nil), s.ExportedFunctions...)
	c.IgnoredUndefinedExports = append([]string(nil), s.IgnoredUndefinedExports...)
	c.RuntimeFuncsToImport = append([]string(nil), s.RuntimeFuncsToImport...)
	c.LibrarySymbols = append([]string(nil), s.LibrarySymbols...)
	if s.Layout != nil {
		l := *s.Layout
		c.Layout = &l
	}
	return &c
}
