package metadata

import (
	"fmt"
	"strconv"

	"emlink/internal/diag"
)

// ParseErrorKind enumerates why backend output could not be read.
type ParseErrorKind uint8

const (
	// ParseErrMissingMarker: a section marker is absent or out of order.
	ParseErrMissingMarker ParseErrorKind = iota + 1
	ParseErrMalformedJSON
	ParseErrMissingKey
	ParseErrUnexpectedKey
	ParseErrBadValue
)

func (k ParseErrorKind) String() string {
	switch k {
	case ParseErrMissingMarker:
		return "missing marker"
	case ParseErrMalformedJSON:
		return "malformed JSON"
	case ParseErrMissingKey:
		return "missing key"
	case ParseErrUnexpectedKey:
		return "unexpected metadata key"
	case ParseErrBadValue:
		return "bad value"
	}
	return "unknown"
}

// ParseError reports malformed backend output. Fragment holds the offending
// raw text, truncated.
type ParseError struct {
	Kind     ParseErrorKind
	Marker   string // for ParseErrMissingMarker
	Key      string
	Fragment string
	Err      error
}

const fragmentLimit = 80

func fragment(raw []byte) string {
	if len(raw) > fragmentLimit {
		return string(raw[:fragmentLimit]) + "..."
	}
	return string(raw)
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var msg string
	switch e.Kind {
	case ParseErrMissingMarker:
		msg = fmt.Sprintf("backend output is missing %q", e.Marker)
	case ParseErrMalformedJSON:
		msg = "metadata is not valid JSON"
	case ParseErrMissingKey:
		msg = fmt.Sprintf("metadata is missing required key %q", e.Key)
	case ParseErrUnexpectedKey:
		msg = fmt.Sprintf("unexpected metadata key %q", e.Key)
	case ParseErrBadValue:
		msg = fmt.Sprintf("metadata key %q has an invalid value", e.Key)
	default:
		msg = fmt.Sprintf("metadata error kind=%d", e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Fragment != "" {
		msg += " (near " + strconv.Quote(e.Fragment) + ")"
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Code maps the error onto its diagnostic code.
func (e *ParseError) Code() diag.Code {
	switch e.Kind {
	case ParseErrMissingMarker:
		return diag.PrsMissingMarker
	case ParseErrMalformedJSON:
		return diag.PrsMalformedJSON
	case ParseErrMissingKey:
		return diag.PrsMissingKey
	case ParseErrUnexpectedKey:
		return diag.PrsUnexpectedKey
	case ParseErrBadValue:
		if e.Key == "tables" {
			return diag.PrsBadTableLiteral
		}
		return diag.PrsBadValue
	}
	return diag.UnknownCode
}

func badValue(key string, raw []byte, err error) *ParseError {
	return &ParseError{Kind: ParseErrBadValue, Key: key, Fragment: fragment(raw), Err: err}
}
