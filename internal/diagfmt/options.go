package diagfmt

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	ShowNotes bool
	// ShowStage prefixes each line with the stage that produced it.
	ShowStage bool
	Width     uint8 // max message width, 0 means unlimited
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	Max          int // output cut-off, the bag keeps everything
	IncludeNotes bool
}

// SarifRunMeta provides metadata for SARIF output.
type SarifRunMeta struct {
	ToolName       string
	ToolVersion    string
	InvocationArgs []string
	// Artifact is the linked input file, used as the result location.
	Artifact string
}
