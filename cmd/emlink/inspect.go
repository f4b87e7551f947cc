package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"emlink/internal/model"
	"emlink/internal/pipeline"
	"emlink/internal/tables"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <backend-output>",
	Short: "Print the normalized module and its symbol sets as JSON",
	Long: `Inspect parses the backend output, resolves symbols and builds the function
tables without writing anything. Pass --wasm-binary to also cross-check the
binary encoding against its metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: inspectExecution,
}

type inspectPayload struct {
	Module         *model.Module    `json:"module"`
	Imports        *model.SymbolSet `json:"imports"`
	Exports        *model.SymbolSet `json:"exports"`
	RuntimeImports *model.SymbolSet `json:"runtime_imports"`
	TableCallable  *model.SymbolSet `json:"table_callable"`
	Undefined      []string         `json:"undefined,omitempty"`
	Tables         *tables.Set      `json:"tables,omitempty"`
}

func inspectExecution(cmd *cobra.Command, args []string) error {
	opts, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}
	wasmBinary, err := cmd.Flags().GetString("wasm-binary")
	if err != nil {
		return err
	}
	withTables, err := cmd.Flags().GetBool("tables")
	if err != nil {
		return err
	}
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	last := pipeline.StageResolve
	if withTables {
		last = pipeline.StageTables
	}
	res, err := pipeline.Link(cmd.Context(), &pipeline.Request{
		Input:          args[0],
		WasmBinary:     wasmBinary,
		Settings:       st,
		MaxDiagnostics: opts.maxDiagnostics,
		StopAfter:      last,
	})
	if printErr := printDiagnostics(cmd, res.Bag, "pretty", args[0], opts); printErr != nil {
		return printErr
	}
	if err != nil {
		dumpTraceRing(cmd, err)
		return err
	}
	if res.Resolution == nil {
		return fmt.Errorf("no resolution for %s", args[0])
	}

	payload := inspectPayload{
		Module:         res.Module,
		Imports:        res.Resolution.Imports,
		Exports:        res.Resolution.Exports,
		RuntimeImports: res.Resolution.RuntimeImports,
		TableCallable:  res.Resolution.TableCallable,
		Undefined:      res.Resolution.Undefined,
		Tables:         res.Tables,
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func init() {
	inspectCmd.Flags().String("wasm-binary", "", "finalized wasm binary to cross-check (binary encoding)")
	inspectCmd.Flags().Bool("tables", true, "also finalize the function tables")
	addSettingsFlags(inspectCmd)
}
