package diag

// Diagnostic is one finding of a link stage. Subject names what the finding is
// about: a symbol, a table signature, a settings key or an output file.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Stage    string
	Subject  string
	Message  string
	Notes    []string
}

func New(sev Severity, code Code, subject, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Subject:  subject,
		Message:  msg,
	}
}

func NewError(code Code, subject, msg string) Diagnostic {
	return New(SevError, code, subject, msg)
}

func (d Diagnostic) WithNote(msg string) Diagnostic {
	d.Notes = append(d.Notes, msg)
	return d
}

func (d Diagnostic) WithStage(stage string) Diagnostic {
	d.Stage = stage
	return d
}
