// Package diag defines the diagnostic model shared by all link stages.
//
// Diagnostic is the central record:
//
//   - Severity: Info, Warning or Error. Findings that settings can downgrade
//     (undefined symbols, undefined exports) pick their severity through
//     Demotable; warnings and errors are never merged into one level.
//   - Code: compact numeric identifier with a stable prefixed form
//     (PRS for parsing, RES resolution, LAY layout, TBL tables, ASM assembly,
//     OUT output).
//   - Stage and Subject: which stage produced it and what it is about.
//   - Notes: optional follow-up lines.
//
// Stages report through a Reporter so they do not depend on storage. The
// pipeline hands each stage a BagReporter tagged with the stage name and turns
// a bag holding errors into a *LinkError.
//
// Package diag does no formatting; rendering lives in internal/diagfmt.
package diag
