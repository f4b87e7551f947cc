package diag

import "fmt"

// LinkError is returned by the pipeline when a stage leaves error
// diagnostics behind. It names the first error and how many there were.
type LinkError struct {
	Stage   string
	Code    Code
	Subject string
	Message string
	Count   int
	// Err is the stage error the diagnostic was derived from, if any.
	Err error
}

func (e *LinkError) Error() string {
	msg := e.Message
	if e.Subject != "" {
		msg = e.Subject + ": " + msg
	}
	if e.Count > 1 {
		return fmt.Sprintf("%s failed: %s %s (and %d more errors)", e.Stage, e.Code.ID(), msg, e.Count-1)
	}
	return fmt.Sprintf("%s failed: %s %s", e.Stage, e.Code.ID(), msg)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// ErrorFromBag builds a LinkError from bag, or returns nil when the bag holds
// no errors.
func ErrorFromBag(stage string, bag *Bag) error {
	if bag == nil {
		return nil
	}
	first, ok := bag.FirstError()
	if !ok {
		return nil
	}
	return &LinkError{
		Stage:   stage,
		Code:    first.Code,
		Subject: first.Subject,
		Message: first.Message,
		Count:   bag.CountErrors(),
	}
}
