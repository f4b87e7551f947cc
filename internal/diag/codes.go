package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Metadata parsing
	PrsInfo            Code = 1000
	PrsMissingMarker   Code = 1001
	PrsMalformedJSON   Code = 1002
	PrsMissingKey      Code = 1003
	PrsUnexpectedKey   Code = 1004
	PrsBadValue        Code = 1005
	PrsUnknownTextKey  Code = 1006
	PrsBadTableLiteral Code = 1007
	PrsCantValidate    Code = 1008

	// Symbol resolution
	ResInfo                   Code = 2000
	ResUndefinedSymbol        Code = 2001
	ResUndefinedExport        Code = 2002
	ResMissingMain            Code = 2003
	ResUninitializedInit      Code = 2004
	ResImportExportOverlap    Code = 2005
	ResDeclaredImplemented    Code = 2006
	ResBadExportName          Code = 2007
	ResBinaryExportMissing    Code = 2008
	ResBinaryImportUnresolved Code = 2009

	// Memory layout
	LayInfo               Code = 3000
	LayInsufficientMemory Code = 3001
	LayMisalignedMemory   Code = 3002
	LayAddressOverflow    Code = 3003
	LayBadGlobalBase      Code = 3004

	// Function tables
	TblInfo              Code = 4000
	TblUnknownSymbol     Code = 4001
	TblReservedSlotZero  Code = 4002
	TblReservedOverwrite Code = 4003
	TblReservedI64       Code = 4004
	TblSignatureMismatch Code = 4005

	// Assembly
	AsmInfo                Code = 5000
	AsmTemplateMissing     Code = 5001
	AsmUnknownPlaceholder  Code = 5002
	AsmMissingValue        Code = 5003
	AsmI64HostSignature    Code = 5004
	AsmDisjointnessBroken  Code = 5005
	AsmSymbolMapIncomplete Code = 5006

	// Output
	OutInfo       Code = 6000
	OutWriteError Code = 6001
	OutCacheError Code = 6002
)

var (
	codeDescription = map[Code]string{
		UnknownCode: "Unknown error",

		PrsInfo:            "Metadata information",
		PrsMissingMarker:   "Backend output marker not found",
		PrsMalformedJSON:   "Malformed metadata JSON",
		PrsMissingKey:      "Required metadata key missing",
		PrsUnexpectedKey:   "Unexpected metadata key",
		PrsBadValue:        "Metadata value has the wrong shape",
		PrsUnknownTextKey:  "Unknown metadata key ignored",
		PrsBadTableLiteral: "Function table literal cannot be parsed",
		PrsCantValidate:    "Backend reports the module cannot be validated",

		ResInfo:                   "Symbol resolution information",
		ResUndefinedSymbol:        "Undefined symbol",
		ResUndefinedExport:        "Undefined exported function",
		ResMissingMain:            "Entry point is not defined",
		ResUninitializedInit:      "Initializer is not implemented",
		ResImportExportOverlap:    "Symbol is both imported and exported",
		ResDeclaredImplemented:    "Symbol is both declared and implemented",
		ResBadExportName:          "Invalid export name",
		ResBinaryExportMissing:    "Export missing from the binary",
		ResBinaryImportUnresolved: "Binary import is not provided",

		LayInfo:               "Layout information",
		LayInsufficientMemory: "Memory is not large enough",
		LayMisalignedMemory:   "Total memory is not a multiple of the page size",
		LayAddressOverflow:    "Address arithmetic overflows 32 bits",
		LayBadGlobalBase:      "Invalid global base",

		TblInfo:              "Function table information",
		TblUnknownSymbol:     "Function table references an unknown symbol",
		TblReservedSlotZero:  "Function table slot 0 must be null",
		TblReservedOverwrite: "Reserved function pointer slot overwritten",
		TblReservedI64:       "Reserved function pointers skipped for i64 signature",
		TblSignatureMismatch: "Function signature differs from its table",

		AsmInfo:                "Assembly information",
		AsmTemplateMissing:     "Runtime template is missing",
		AsmUnknownPlaceholder:  "Unknown template placeholder",
		AsmMissingValue:        "Template placeholder has no value",
		AsmI64HostSignature:    "Inline host code uses a 64-bit integer",
		AsmDisjointnessBroken:  "Import and export sets overlap",
		AsmSymbolMapIncomplete: "Symbol map is incomplete",

		OutInfo:       "Output information",
		OutWriteError: "Output could not be written",
		OutCacheError: "Link cache unavailable",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("PRS%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("LAY%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("TBL%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("ASM%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OUT%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
