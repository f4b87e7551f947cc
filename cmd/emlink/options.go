package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"emlink/internal/diag"
	"emlink/internal/diagfmt"
	"emlink/internal/settings"
	"emlink/internal/version"
)

// addSettingsFlags registers the flags every settings-reading command takes.
func addSettingsFlags(cmd *cobra.Command) {
	cmd.Flags().String("settings", "", "TOML file with link settings")
	cmd.Flags().StringArrayP("setting", "s", nil, "override one setting, KEY=VALUE (repeatable)")
}

// loadSettings applies defaults, the --settings file and then every -s
// override, in that order.
func loadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	path, err := cmd.Flags().GetString("settings")
	if err != nil {
		return nil, err
	}
	overrides, err := cmd.Flags().GetStringArray("setting")
	if err != nil {
		return nil, err
	}
	st, err := settings.Load(path)
	if err != nil {
		return nil, err
	}
	if err := st.ApplyOverrides(overrides); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return st, nil
}

type globalOptions struct {
	color          bool
	quiet          bool
	timings        bool
	maxDiagnostics int
}

func readGlobalOptions(cmd *cobra.Command) (globalOptions, error) {
	flags := cmd.Root().PersistentFlags()
	var opts globalOptions
	colorValue, err := flags.GetString("color")
	if err != nil {
		return opts, err
	}
	colorMode, err := readSwitch("color", colorValue)
	if err != nil {
		return opts, err
	}
	opts.color = colorMode.enabled(os.Stderr)
	if opts.quiet, err = flags.GetBool("quiet"); err != nil {
		return opts, err
	}
	if opts.timings, err = flags.GetBool("timings"); err != nil {
		return opts, err
	}
	if opts.maxDiagnostics, err = flags.GetInt("max-diagnostics"); err != nil {
		return opts, err
	}
	return opts, nil
}

// printDiagnostics renders bag on stderr in the requested format. Quiet mode
// keeps errors only in pretty output.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag, format, artifact string, opts globalOptions) error {
	if bag == nil {
		return nil
	}
	bag.Dedup()
	bag.Sort()
	out := cmd.ErrOrStderr()
	switch strings.ToLower(format) {
	case "json":
		return diagfmt.JSON(out, bag, diagfmt.JSONOpts{IncludeNotes: true})
	case "sarif":
		return diagfmt.Sarif(out, bag, diagfmt.SarifRunMeta{
			ToolName:       "emlink",
			ToolVersion:    version.Version,
			InvocationArgs: os.Args[1:],
			Artifact:       artifact,
		})
	case "", "pretty":
		shown := bag
		if opts.quiet {
			shown = diag.NewBag(0)
			for _, d := range bag.Items() {
				if d.Severity >= diag.SevError {
					shown.Add(d)
				}
			}
		}
		pretty := diagfmt.PrettyOpts{Color: opts.color, ShowNotes: true, ShowStage: true}
		diagfmt.Pretty(out, shown, pretty)
		diagfmt.Summary(out, shown, pretty)
		return nil
	default:
		return fmt.Errorf("unsupported diagnostics format %q (must be pretty, json or sarif)", format)
	}
}
