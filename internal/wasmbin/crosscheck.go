package wasmbin

import (
	"emlink/internal/diag"
	"emlink/internal/model"
	"emlink/internal/resolve"
)

// CrossCheck compares the binary with the resolved link. Metadata exports
// the binary lacks, and env imports nothing resolves, are warnings: the
// binary is authoritative and the glue can still be emitted.
func CrossCheck(info *Info, mod *model.Module, res *resolve.Resolution, rep diag.Reporter) {
	if info == nil || rep == nil {
		return
	}
	for _, name := range mod.Exports.Sorted() {
		if info.HasExport(name) || info.HasExport(model.Demangle(name)) {
			continue
		}
		diag.ReportWarning(rep, diag.ResBinaryExportMissing, name,
			"metadata exports "+name+" but the binary does not").Emit()
	}
	for _, name := range info.ImportNames(EnvModule) {
		if res.Imports.Has(name) || res.Imports.Has(model.Mangle(name)) {
			continue
		}
		diag.ReportWarning(rep, diag.ResBinaryImportUnresolved, name,
			"binary imports env."+name+" which the link does not provide").Emit()
	}
}
