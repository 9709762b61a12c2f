package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestFaultError(t *testing.T) {
	f := New(DivisionByZero, "integer division by zero").
		WithResultID(7).WithOpcode("Div").WithTrace("trace-1")

	msg := f.Error()
	for _, want := range []string{"DivisionByZero", "integer division by zero", "result_id=7", "opcode=Div", "trace trace-1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want substring %q", msg, want)
		}
	}
}

func TestFaultErrorWithSub(t *testing.T) {
	f := New(BadContainer, "signature mismatch").WithSub("BadMagic")
	if !strings.Contains(f.Error(), "BadContainer(BadMagic)") {
		t.Errorf("Error() = %q, want BadContainer(BadMagic) prefix", f.Error())
	}
}

func TestFaultIsMatchesByKind(t *testing.T) {
	a := New(OutOfBounds, "index 5 out of range")
	b := New(OutOfBounds, "a completely different message")
	if !stderrors.Is(a, b) {
		t.Error("two Faults with the same Kind should match via errors.Is")
	}

	c := New(KeyNotFound, "missing")
	if stderrors.Is(a, c) {
		t.Error("Faults with different Kinds should not match")
	}
}

func TestFaultWithoutResultID(t *testing.T) {
	f := New(ValidationError, "no entry point")
	if strings.Contains(f.Error(), "result_id") {
		t.Errorf("Error() = %q, should omit result_id when HasID is false", f.Error())
	}
}
