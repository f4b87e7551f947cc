package layout

import (
	"fmt"

	"emlink/internal/diag"
)

// LayoutErrorKind enumerates types of layout planning errors.
type LayoutErrorKind uint8

const (
	// LayoutErrInsufficientMemory: static data plus the stack do not fit.
	LayoutErrInsufficientMemory LayoutErrorKind = iota + 1
	LayoutErrMisalignedMemory
	LayoutErrAddressOverflow
)

// LayoutError represents an error during memory layout planning. It carries
// every number needed to fix the configuration.
type LayoutError struct {
	Kind        LayoutErrorKind
	StaticSize  uint64
	StackSize   uint64
	TotalMemory uint64
	Required    uint64 // smallest acceptable TotalMemory
	PageSize    uint32
	What        string // for LayoutErrAddressOverflow
	Err         error
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrInsufficientMemory:
		return fmt.Sprintf("memory is not large enough for static data (%d) plus the stack (%d), please increase TOTAL_MEMORY (%d) to %d",
			e.StaticSize, e.StackSize, e.TotalMemory, e.Required)
	case LayoutErrMisalignedMemory:
		return fmt.Sprintf("TOTAL_MEMORY (%d) must be a multiple of the page size (%d), for example %d",
			e.TotalMemory, e.PageSize, e.Required)
	case LayoutErrAddressOverflow:
		if e.Err != nil {
			return fmt.Sprintf("address overflow computing %s: %v", e.What, e.Err)
		}
		return fmt.Sprintf("address overflow computing %s", e.What)
	default:
		return fmt.Sprintf("layout error kind=%d", e.Kind)
	}
}

func (e *LayoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Code maps the error onto its diagnostic code.
func (e *LayoutError) Code() diag.Code {
	switch e.Kind {
	case LayoutErrInsufficientMemory:
		return diag.LayInsufficientMemory
	case LayoutErrMisalignedMemory:
		return diag.LayMisalignedMemory
	case LayoutErrAddressOverflow:
		return diag.LayAddressOverflow
	}
	return diag.UnknownCode
}
