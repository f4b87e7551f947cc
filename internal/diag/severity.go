package diag

import "fmt"

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevInfo is for informational diagnostics.
	SevInfo Severity = iota
	// SevWarning is for warning diagnostics.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// MarshalText renders the severity in lower case for JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	switch s {
	case SevInfo:
		return []byte("info"), nil
	case SevWarning:
		return []byte("warning"), nil
	case SevError:
		return []byte("error"), nil
	}
	return nil, fmt.Errorf("unknown severity %d", s)
}

// Demotable picks SevError or SevWarning for findings that settings may
// downgrade. It returns ok=false when the finding is silenced entirely.
func Demotable(asError, asWarning bool) (Severity, bool) {
	switch {
	case asError:
		return SevError, true
	case asWarning:
		return SevWarning, true
	}
	return SevInfo, false
}
