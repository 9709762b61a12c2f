// Package errors defines the DER error taxonomy. It is kept separate from
// the standard library "errors" package deliberately — the module never
// imports both in the same file to avoid the name clash.
package errors

import (
	"fmt"
	"strings"
)

// Kind is the top-level error taxonomy.
type Kind string

const (
	BadContainer       Kind = "BadContainer"
	ValidationError    Kind = "ValidationError"
	TypeMismatch       Kind = "TypeMismatch"
	DivisionByZero     Kind = "DivisionByZero"
	OutOfBounds        Kind = "OutOfBounds"
	KeyNotFound        Kind = "KeyNotFound"
	HeapError          Kind = "HeapError"
	AsyncError         Kind = "AsyncError"
	CapabilityDenied   Kind = "CapabilityDenied"
	LoopBudgetExceeded Kind = "LoopBudgetExceeded"
	NodeBudgetExceeded Kind = "NodeBudgetExceeded"
	DeadlineExceeded   Kind = "DeadlineExceeded"
	StackOverflow      Kind = "StackOverflow"
	IOError            Kind = "IOError"
)

// Fault is the error type returned by every DER component. It carries the
// kind, an optional sub-kind (e.g. "BadMagic" under BadContainer,
// "DanglingReference" under ValidationError), the offending result_id and
// opcode when known, and a short human message.
type Fault struct {
	Kind     Kind
	Sub      string
	ResultID uint32
	HasID    bool
	Opcode   string
	Message  string
	TraceID  string
}

// New creates a Fault with no location information yet.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// WithSub attaches a sub-kind, e.g. "BadMagic" or "DanglingReference".
func (f *Fault) WithSub(sub string) *Fault {
	f.Sub = sub
	return f
}

// WithResultID records the offending node's result_id.
func (f *Fault) WithResultID(id uint32) *Fault {
	f.ResultID = id
	f.HasID = true
	return f
}

// WithOpcode records the opcode being dispatched when the fault occurred.
func (f *Fault) WithOpcode(op string) *Fault {
	f.Opcode = op
	return f
}

// WithTrace attaches the run-scoped trace identifier (see exec.Executor.TraceID).
func (f *Fault) WithTrace(traceID string) *Fault {
	f.TraceID = traceID
	return f
}

// Error implements the error interface.
func (f *Fault) Error() string {
	var sb strings.Builder

	if f.Sub != "" {
		sb.WriteString(fmt.Sprintf("%s(%s): %s", f.Kind, f.Sub, f.Message))
	} else {
		sb.WriteString(fmt.Sprintf("%s: %s", f.Kind, f.Message))
	}

	if f.HasID {
		sb.WriteString(fmt.Sprintf(" [result_id=%d", f.ResultID))
		if f.Opcode != "" {
			sb.WriteString(fmt.Sprintf(" opcode=%s", f.Opcode))
		}
		sb.WriteString("]")
	} else if f.Opcode != "" {
		sb.WriteString(fmt.Sprintf(" [opcode=%s]", f.Opcode))
	}

	if f.TraceID != "" {
		sb.WriteString(fmt.Sprintf(" (trace %s)", f.TraceID))
	}

	return sb.String()
}

// Is allows errors.Is(err, target) to match on Kind, so callers can write
// errors.Is(err, errors.New(errors.DivisionByZero, "")) without caring
// about message text.
func (f *Fault) Is(target error) bool {
	other, ok := target.(*Fault)
	if !ok {
		return false
	}
	return f.Kind == other.Kind
}
