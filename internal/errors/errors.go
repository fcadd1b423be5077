// Package errors is the source-location-aware diagnostic type shared
// by the lexer, parser, and the top-level driver (spec §7). Runtime
// faults raised while a function is executing are represented more
// cheaply by internal/vm.Error (just a Kind and a backtrace, no source
// line to carry); FromRuntime bridges one into this package's richer,
// caret-rendering form once it reaches the top of the call stack and
// needs to be shown to a human.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType is spec §7's error taxonomy. The runtime-facing subset of
// these values is kept string-identical to internal/vm.Kind so
// FromRuntime is a plain conversion, not a lookup table.
type ErrorType string

const (
	ParseError         ErrorType = "parse error"
	ArityError         ErrorType = "arity violation"
	TypeError          ErrorType = "type mismatch"
	ConstraintError    ErrorType = "constraint violation"
	NullAccessError    ErrorType = "access on null"
	MissingPropertyErr ErrorType = "missing property"
	BadAssignmentError ErrorType = "bad assignment target"
	StackOverflowError ErrorType = "stack overflow"
	FFIError           ErrorType = "ffi error"
	NotCallableError   ErrorType = "not callable"
)

// SourceLocation is a file/line/column triple.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// StackFrame is one entry of a rendered call-stack trace.
type StackFrame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// Error is a diagnostic with enough context to render a caret pointing
// at the offending column, plus an optional call-stack trace.
type Error struct {
	Type      ErrorType
	Message   string
	Location  SourceLocation
	CallStack []StackFrame
	Source    string // the source line the error occurred on, if known
}

func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s\n", e.Type, e.Message))

	if e.Location.File != "" {
		sb.WriteString(fmt.Sprintf("  at %s:%d:%d\n", e.Location.File, e.Location.Line, e.Location.Column))

		if e.Source != "" {
			prefix := fmt.Sprintf("  %d | ", e.Location.Line)
			sb.WriteString(fmt.Sprintf("\n%s%s\n", prefix, e.Source))
			sb.WriteString(strings.Repeat(" ", len(prefix)))
			if e.Location.Column > 0 {
				sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			}
			sb.WriteString("^\n")
		}
	}

	if len(e.CallStack) > 0 {
		sb.WriteString("\nCall Stack:\n")
		for _, frame := range e.CallStack {
			if frame.Function != "" {
				sb.WriteString(fmt.Sprintf("  at %s (%s:%d:%d)\n", frame.Function, frame.File, frame.Line, frame.Column))
			} else {
				sb.WriteString(fmt.Sprintf("  at %s:%d:%d\n", frame.File, frame.Line, frame.Column))
			}
		}
	}

	return sb.String()
}

// NewParseError builds a syntax error at a known source position.
func NewParseError(message, file string, line, column int) *Error {
	return &Error{
		Type:     ParseError,
		Message:  message,
		Location: SourceLocation{File: file, Line: line, Column: column},
	}
}

// WithSource attaches the offending source line for caret rendering.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// AddStackFrame appends one call-stack entry, outermost caller last.
func (e *Error) AddStackFrame(function, file string, line, column int) *Error {
	e.CallStack = append(e.CallStack, StackFrame{Function: function, File: file, Line: line, Column: column})
	return e
}

// RuntimeFault is the minimal surface FromRuntime needs from a runtime
// error, kept as an interface rather than a direct internal/vm import
// so internal/vm stays free to import internal/errors itself without
// creating a cycle.
type RuntimeFault interface {
	error
	FaultKind() string
	FaultBacktrace() []string
}

// FromRuntime renders a runtime fault (internal/vm.Error) as an Error
// with its backtrace turned into a call stack, so the top-level driver
// can print a VM fault the same way it prints a parse error.
func FromRuntime(f RuntimeFault) *Error {
	e := &Error{Type: ErrorType(f.FaultKind()), Message: f.Error()}
	for _, frame := range f.FaultBacktrace() {
		e.CallStack = append(e.CallStack, StackFrame{Function: frame})
	}
	return e
}
