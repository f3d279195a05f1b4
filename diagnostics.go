package hammer

import (
	"fmt"
	"io"
	"strings"
)

type Severity int

const (
	Severity_Warning Severity = iota
	Severity_Error
)

func (s Severity) String() string {
	switch s {
	case Severity_Warning:
		return "warning"
	case Severity_Error:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is a single compiler message tied to a source position.
// Diagnostics are collected, never thrown.
type Diagnostic struct {
	Severity Severity
	Span     Span
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s @ %s: %s", d.Severity, d.Span, d.Message)
}

// Diagnostics accumulates compiler messages for one compilation.  The
// compiler keeps going after errors where it can, so a single run can
// report more than one problem.
type Diagnostics struct {
	messages []Diagnostic
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

func (d *Diagnostics) Error(span Span, format string, args ...interface{}) {
	d.report(Severity_Error, span, format, args...)
}

func (d *Diagnostics) Warning(span Span, format string, args ...interface{}) {
	d.report(Severity_Warning, span, format, args...)
}

func (d *Diagnostics) report(sev Severity, span Span, format string, args ...interface{}) {
	d.messages = append(d.messages, Diagnostic{
		Severity: sev,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (d *Diagnostics) HasErrors() bool {
	for _, m := range d.messages {
		if m.Severity == Severity_Error {
			return true
		}
	}
	return false
}

func (d *Diagnostics) HasMessages() bool { return len(d.messages) > 0 }

func (d *Diagnostics) Messages() []Diagnostic { return d.messages }

func (d *Diagnostics) Clear() { d.messages = nil }

func (d *Diagnostics) Print(w io.Writer) {
	for _, m := range d.messages {
		fmt.Fprintln(w, m.String())
	}
}

func (d *Diagnostics) String() string {
	var s strings.Builder
	d.Print(&s)
	return s.String()
}
