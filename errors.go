package hammer

import "fmt"

// RuntimeErrorKind classifies the errors that bytecode execution can
// raise.  They terminate the current coroutine with a failure result;
// they never unwind across the scheduler boundary.
type RuntimeErrorKind int

const (
	RuntimeError_Generic RuntimeErrorKind = iota
	RuntimeError_BadArgument
	RuntimeError_TypeMismatch
	RuntimeError_OutOfRange
	RuntimeError_DivideByZero
	RuntimeError_AssertionFailed
	RuntimeError_UnknownMember
	RuntimeError_NoSuchMethod
	RuntimeError_WrongArity
	RuntimeError_BadResultAccess
)

var runtimeErrorNames = map[RuntimeErrorKind]string{
	RuntimeError_Generic:         "error",
	RuntimeError_BadArgument:     "bad argument",
	RuntimeError_TypeMismatch:    "type mismatch",
	RuntimeError_OutOfRange:      "out of range",
	RuntimeError_DivideByZero:    "division by zero",
	RuntimeError_AssertionFailed: "assertion failed",
	RuntimeError_UnknownMember:   "unknown member",
	RuntimeError_NoSuchMethod:    "no such method",
	RuntimeError_WrongArity:      "wrong arity",
	RuntimeError_BadResultAccess: "bad result access",
}

// RuntimeError is the failure value produced when bytecode traps.
type RuntimeError struct {
	Kind    RuntimeErrorKind
	Message string
}

func (e *RuntimeError) Error() string {
	name := runtimeErrorNames[e.Kind]
	if e.Message == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, e.Message)
}

func newRuntimeError(kind RuntimeErrorKind, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// CompileError is returned by the compile entry points when the
// diagnostics object holds at least one error.  The structured
// messages stay on the Diagnostics; this error is just the signal that
// no module was produced.
type CompileError struct {
	Diagnostics *Diagnostics
}

func (e *CompileError) Error() string {
	n := 0
	for _, m := range e.Diagnostics.Messages() {
		if m.Severity == Severity_Error {
			n++
		}
	}
	return fmt.Sprintf("compilation failed with %d error(s)", n)
}
