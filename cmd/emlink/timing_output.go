package main

import (
	"fmt"
	"io"
	"time"

	"emlink/internal/observ"
	"emlink/internal/pipeline"
)

// printStageTimings prints one line per stage that ran, then the total.
func printStageTimings(out io.Writer, timings pipeline.Timings) {
	if out == nil {
		return
	}
	var total time.Duration
	for _, stage := range pipeline.Stages {
		if !timings.Has(stage) {
			continue
		}
		d := timings.Duration(stage)
		total += d
		fmt.Fprintf(out, "%-9s %7.2f ms\n", stage, toMillis(d))
	}
	if total > 0 {
		fmt.Fprintf(out, "%-9s %7.2f ms\n", "total", toMillis(total))
	}
}

// printSlowest names the stage that dominated the link.
func printSlowest(out io.Writer, report observ.Report) {
	if p, ok := report.Slowest(); ok {
		fmt.Fprintf(out, "slowest: %s (%.2f ms)\n", p.Name, p.DurationMS)
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
