// Package trace is the logging facility of the linker: structured begin/end
// and point events describing what each stage did.
//
// Enable it from the command line:
//
//	emlink link --trace=- --trace-level=phase out.js.backend
//
// Implementations:
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: last N events in memory, dumped when a link fails
//   - MultiTracer: fan-out to several tracers
//
// Levels select scopes: phase shows driver and stage spans, detail adds
// per-table and per-file events, debug adds individual symbol decisions.
//
// Tracers travel on the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStage, "resolve", 0)
//	defer span.End("")
package trace
