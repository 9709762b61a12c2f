package exec

import (
	derrors "der/internal/errors"

	"der/internal/bytecode"
)

// This file is the shallow type checker: argument-variant predicates and
// check helpers that each opcode's handler calls inline, at the moment the
// executor dispatches that opcode, never by walking the whole graph up
// front. There is no central per-opcode table; arg counts are checked
// separately by graph.Validate.

func typeMismatch(op bytecode.OpCode, resultID uint32, expected string, actual Value) error {
	return derrors.New(derrors.TypeMismatch, "expected "+expected+", got "+actual.Variant).
		WithResultID(resultID).WithOpcode(op.String())
}

func isInt(v Value) bool    { return v.Variant == "Int" }
func isFloat(v Value) bool  { return v.Variant == "Float" }
func isBool(v Value) bool   { return v.Variant == "Bool" }
func isString(v Value) bool { return v.Variant == "String" }
func isHeapRef(v Value) bool {
	return v.Variant == "HeapRef"
}
func isArray(v Value) bool { return v.Variant == "Array" }
func isMap(v Value) bool   { return v.Variant == "Map" }
func isAsyncTok(v Value) bool {
	return v.Variant == variantAsyncToken
}

// checkArithmetic requires both operands Int or both Float, with no
// implicit coercion between them.
func checkArithmetic(op bytecode.OpCode, resultID uint32, a, b Value) (resultIsFloat bool, err error) {
	switch {
	case isInt(a) && isInt(b):
		return false, nil
	case isFloat(a) && isFloat(b):
		return true, nil
	case isInt(a) || isFloat(a):
		return false, typeMismatch(op, resultID, a.Variant, b)
	default:
		return false, typeMismatch(op, resultID, "Int or Float", a)
	}
}

// checkComparable requires both operands to share the same, comparable
// variant.
func checkComparable(op bytecode.OpCode, resultID uint32, a, b Value) error {
	if a.Variant != b.Variant {
		return typeMismatch(op, resultID, a.Variant, b)
	}
	switch a.Variant {
	case "Int", "Float", "Bool", "String", "Nil":
		return nil
	default:
		return derrors.New(derrors.TypeMismatch, "variant "+a.Variant+" is not comparable").
			WithResultID(resultID).WithOpcode(op.String())
	}
}

// checkOrdered enforces that Lt/Le/Gt/Ge only apply to Int, Float, or
// String — Bool and Nil have equality but no ordering.
func checkOrdered(op bytecode.OpCode, resultID uint32, a, b Value) error {
	if err := checkComparable(op, resultID, a, b); err != nil {
		return err
	}
	switch a.Variant {
	case "Int", "Float", "String":
		return nil
	default:
		return derrors.New(derrors.TypeMismatch, "variant "+a.Variant+" has no ordering").
			WithResultID(resultID).WithOpcode(op.String())
	}
}

func checkVariant(op bytecode.OpCode, resultID uint32, expected string, v Value, pred func(Value) bool) error {
	if !pred(v) {
		return typeMismatch(op, resultID, expected, v)
	}
	return nil
}
