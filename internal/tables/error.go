package tables

import (
	"fmt"

	"emlink/internal/diag"
	"emlink/internal/sig"
)

// TableErrorKind enumerates fatal table problems.
type TableErrorKind uint8

const (
	// TableErrUnknownSymbol: a slot names a function nobody provides.
	TableErrUnknownSymbol TableErrorKind = iota + 1
	// TableErrReservedSlotZero: slot 0 of a binary table is not null.
	TableErrReservedSlotZero
)

// TableError is a fatal problem in one table slot.
type TableError struct {
	Kind   TableErrorKind
	Sig    sig.Signature
	Index  int
	Symbol string
}

func (e *TableError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case TableErrUnknownSymbol:
		return fmt.Sprintf("function table %s slot %d refers to unknown function %s", e.Sig, e.Index, e.Symbol)
	case TableErrReservedSlotZero:
		return fmt.Sprintf("function table %s: slot 0 is reserved for the null pointer but holds %s", e.Sig, e.Symbol)
	default:
		return fmt.Sprintf("table error kind=%d", e.Kind)
	}
}

// Code maps the error onto its diagnostic code.
func (e *TableError) Code() diag.Code {
	switch e.Kind {
	case TableErrUnknownSymbol:
		return diag.TblUnknownSymbol
	case TableErrReservedSlotZero:
		return diag.TblReservedSlotZero
	default:
		return diag.UnknownCode
	}
}
