package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"emlink/internal/linkcache"
	"emlink/internal/pipeline"
)

var linkCmd = &cobra.Command{
	Use:   "link [flags] <backend-output>",
	Short: "Link backend output into a runnable module",
	Long: `Link reads the backend output (the JavaScript file for the text encoding, the
metadata JSON for the binary encoding) and writes the final module next to it
unless -o is given.`,
	Args: cobra.ExactArgs(1),
	RunE: linkExecution,
}

func linkExecution(cmd *cobra.Command, args []string) error {
	opts, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	wasmBinary, err := cmd.Flags().GetString("wasm-binary")
	if err != nil {
		return err
	}
	templatePath, err := cmd.Flags().GetString("template")
	if err != nil {
		return err
	}
	cacheDir, err := cmd.Flags().GetString("cache")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	diagFormat, err := cmd.Flags().GetString("diagnostics")
	if err != nil {
		return err
	}
	uiMode, err := readSwitch("ui", uiValue)
	if err != nil {
		return err
	}
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	req := pipeline.Request{
		Input:          args[0],
		WasmBinary:     wasmBinary,
		Output:         output,
		TemplatePath:   templatePath,
		Settings:       st,
		MaxDiagnostics: opts.maxDiagnostics,
	}
	if !noCache {
		cache, cacheErr := linkcache.Open(cacheDir)
		if cacheErr != nil {
			if !opts.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "cache disabled: %v\n", cacheErr)
			}
		} else {
			req.Cache = cache
		}
	}

	var res pipeline.Result
	if uiMode.enabled(os.Stdout) && !opts.quiet {
		res, err = runLinkWithUI(cmd.Context(), "emlink "+filepath.Base(args[0]), &req)
	} else {
		res, err = pipeline.Link(cmd.Context(), &req)
	}

	if printErr := printDiagnostics(cmd, res.Bag, diagFormat, args[0], opts); printErr != nil {
		return errors.Join(err, printErr)
	}
	if opts.timings {
		printStageTimings(cmd.OutOrStdout(), res.Timings)
		printSlowest(cmd.OutOrStdout(), res.Report)
	}
	if err != nil {
		dumpTraceRing(cmd, err)
		return err
	}
	if !opts.quiet {
		suffix := ""
		if res.CacheHit {
			suffix = " (cached)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "linked %s%s\n", strings.Join(res.Files, ", "), suffix)
	}
	return nil
}

func init() {
	linkCmd.Flags().StringP("output", "o", "", "main JavaScript output (default: <input>.out.js)")
	linkCmd.Flags().String("wasm-binary", "", "finalized wasm binary (binary encoding)")
	linkCmd.Flags().String("template", "", "runtime template overriding the embedded one")
	linkCmd.Flags().String("cache", "", "link cache directory (default: user cache dir)")
	linkCmd.Flags().Bool("no-cache", false, "do not read or write the link cache")
	linkCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	linkCmd.Flags().String("diagnostics", "pretty", "diagnostics format (pretty|json|sarif)")
	addSettingsFlags(linkCmd)
}
