package exec

import (
	"math"

	derrors "der/internal/errors"

	"der/internal/bytecode"
)

func (ex *Executor) evalConst(n *bytecode.Node) (Value, error) {
	idx := int(n.Args[0])
	c, ok := ex.program.Constants.Get(idx)
	if !ok {
		return vNil(), derrors.New(derrors.ValidationError, "constant index out of range").
			WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	switch n.Opcode {
	case bytecode.ConstInt:
		return vInt(c.Int), nil
	case bytecode.ConstFloat:
		return vFloat(c.Float), nil
	case bytecode.ConstString:
		return vString(c.Str), nil
	case bytecode.ConstBool:
		return vBool(c.Bool), nil
	default:
		return vNil(), derrors.New(derrors.ValidationError, "not a constant opcode").WithResultID(n.ResultID)
	}
}

// evalArithmetic implements Add/Sub/Mul/Div/Mod. Integer
// overflow wraps via Go's native int64 two's-complement arithmetic; no
// special-case code is needed to get that behavior. Float division and
// modulo by zero follow IEEE-754 (producing +-Inf or NaN) rather than
// raising DivisionByZero, which is reserved for integer operands.
func (ex *Executor) evalArithmetic(n *bytecode.Node) (Value, error) {
	a, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	b, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}

	isFloat, err := checkArithmetic(n.Opcode, n.ResultID, a, b)
	if err != nil {
		return vNil(), err
	}

	if !isFloat {
		x, y := a.Int, b.Int
		switch n.Opcode {
		case bytecode.Add:
			return vInt(x + y), nil
		case bytecode.Sub:
			return vInt(x - y), nil
		case bytecode.Mul:
			return vInt(x * y), nil
		case bytecode.Div:
			if y == 0 {
				return vNil(), derrors.New(derrors.DivisionByZero, "integer division by zero").
					WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
			}
			return vInt(x / y), nil
		case bytecode.Mod:
			if y == 0 {
				return vNil(), derrors.New(derrors.DivisionByZero, "integer modulo by zero").
					WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
			}
			return vInt(x % y), nil
		}
	}

	x, y := a.Float, b.Float
	switch n.Opcode {
	case bytecode.Add:
		return vFloat(x + y), nil
	case bytecode.Sub:
		return vFloat(x - y), nil
	case bytecode.Mul:
		return vFloat(x * y), nil
	case bytecode.Div:
		return vFloat(x / y), nil
	case bytecode.Mod:
		return vFloat(math.Mod(x, y)), nil
	}
	return vNil(), derrors.New(derrors.ValidationError, "unreachable arithmetic opcode").WithResultID(n.ResultID)
}

// compareOrdered returns -1, 0, or 1 for Int/Float/String operands already
// checked comparable and ordered by checkOrdered.
func compareOrdered(a, b Value) int {
	switch a.Variant {
	case "Int":
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case "Float":
		switch {
		case a.Float < b.Float:
			return -1
		case a.Float > b.Float:
			return 1
		default:
			return 0
		}
	case "String":
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	}
	return 0
}

// valuesEqual implements Eq/Ne's equality for the variants checkComparable
// allows (Int, Float, Bool, String, Nil). Float equality relies on Go's
// native == operator, which already gives correct IEEE-754 NaN behavior
// (NaN != NaN) with no special-case code.
func valuesEqual(a, b Value) bool {
	switch a.Variant {
	case "Int":
		return a.Int == b.Int
	case "Float":
		return a.Float == b.Float
	case "Bool":
		return a.Bool == b.Bool
	case "String":
		return a.Str == b.Str
	case "Nil":
		return true
	}
	return false
}

func (ex *Executor) evalComparison(n *bytecode.Node) (Value, error) {
	a, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	b, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}

	switch n.Opcode {
	case bytecode.Eq:
		if err := checkComparable(n.Opcode, n.ResultID, a, b); err != nil {
			return vNil(), err
		}
		return vBool(valuesEqual(a, b)), nil
	case bytecode.Ne:
		if err := checkComparable(n.Opcode, n.ResultID, a, b); err != nil {
			return vNil(), err
		}
		return vBool(!valuesEqual(a, b)), nil
	}

	if err := checkOrdered(n.Opcode, n.ResultID, a, b); err != nil {
		return vNil(), err
	}
	cmp := compareOrdered(a, b)
	switch n.Opcode {
	case bytecode.Lt:
		return vBool(cmp < 0), nil
	case bytecode.Le:
		return vBool(cmp <= 0), nil
	case bytecode.Gt:
		return vBool(cmp > 0), nil
	case bytecode.Ge:
		return vBool(cmp >= 0), nil
	}
	return vNil(), derrors.New(derrors.ValidationError, "unreachable comparison opcode").WithResultID(n.ResultID)
}
