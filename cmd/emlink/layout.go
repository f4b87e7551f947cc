package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"emlink/internal/layout"
)

var layoutCmd = &cobra.Command{
	Use:   "layout [flags]",
	Short: "Plan linear memory from settings alone",
	Long: `Layout runs only the memory planner: give the static data size and the
usual settings and it prints where every region starts.`,
	Args: cobra.NoArgs,
	RunE: layoutExecution,
}

func layoutExecution(cmd *cobra.Command, args []string) error {
	staticSize, err := cmd.Flags().GetUint32("static-size")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	in, err := st.ResolveLayoutInput(staticSize)
	if err != nil {
		return err
	}
	mem, err := layout.Plan(in)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(mem)
	case "pretty", "":
		return renderLayout(cmd.OutOrStdout(), mem)
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
}

func renderLayout(out io.Writer, mem layout.Memory) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	rows := []struct {
		name  string
		value uint32
	}{
		{"GLOBAL_BASE", mem.GlobalBase},
		{"STATIC_END", mem.StaticDataEnd},
		{"DYNAMICTOP_PTR", mem.DynamicTopPtr},
		{"tempDoublePtr", mem.TempDoublePtr},
		{"STACK_LOW", mem.StackLow},
		{"STACK_HIGH", mem.StackHigh},
		{"STACK_BASE", mem.StackBase},
		{"STACK_MAX", mem.StackMax},
		{"DYNAMIC_BASE", mem.DynamicBase},
		{"TOTAL_MEMORY", mem.TotalMemory},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t0x%08x\t\n", r.name, r.value, r.value)
	}
	fmt.Fprintf(tw, "stack grows\t%s\t\t\n", mem.Direction)
	return tw.Flush()
}

func init() {
	layoutCmd.Flags().Uint32("static-size", 0, "size of static data in bytes")
	layoutCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	addSettingsFlags(layoutCmd)
}
