package exec

import (
	derrors "der/internal/errors"
	"der/internal/heap"

	"der/internal/bytecode"
)

func (ex *Executor) arrayCell(op bytecode.OpCode, resultID uint32, ref Value) (*heap.Cell, error) {
	if ref.Variant != "Array" {
		return nil, typeMismatch(op, resultID, "Array", ref)
	}
	cell, err := ex.heap.Get(ref.CellID)
	if err != nil {
		return nil, derrors.New(derrors.HeapError, err.Error()).WithResultID(resultID).WithOpcode(op.String())
	}
	return cell, nil
}

func (ex *Executor) mapCell(op bytecode.OpCode, resultID uint32, ref Value) (*heap.Cell, error) {
	if ref.Variant != "Map" {
		return nil, typeMismatch(op, resultID, "Map", ref)
	}
	cell, err := ex.heap.Get(ref.CellID)
	if err != nil {
		return nil, derrors.New(derrors.HeapError, err.Error()).WithResultID(resultID).WithOpcode(op.String())
	}
	return cell, nil
}

// evalArrayGet implements ArrayGet(array, index) with OutOfBounds raised
// for any index outside [0, len).
func (ex *Executor) evalArrayGet(n *bytecode.Node) (Value, error) {
	ref, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	idx, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "Int", idx, isInt); err != nil {
		return vNil(), err
	}
	cell, err := ex.arrayCell(n.Opcode, n.ResultID, ref)
	if err != nil {
		return vNil(), err
	}
	if idx.Int < 0 || idx.Int >= int64(len(cell.Elems)) {
		return vNil(), derrors.New(derrors.OutOfBounds, "array index out of bounds").
			WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	return cell.Elems[idx.Int], nil
}

// evalArraySet implements ArraySet(array, index, value). Index equal to
// the current length appends, growing the array; index beyond that is
// OutOfBounds. ArrayNew never pre-sizes its backing store, so ArraySet is
// the only opcode that grows an array.
func (ex *Executor) evalArraySet(n *bytecode.Node) (Value, error) {
	ref, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	idx, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "Int", idx, isInt); err != nil {
		return vNil(), err
	}
	val, err := ex.eval(n.Args[2])
	if err != nil {
		return vNil(), err
	}
	cell, err := ex.arrayCell(n.Opcode, n.ResultID, ref)
	if err != nil {
		return vNil(), err
	}

	switch {
	case idx.Int == int64(len(cell.Elems)):
		if isHeapKind(val) {
			_ = ex.heap.Retain(val.CellID)
		}
		cell.Elems = append(cell.Elems, val)
	case idx.Int >= 0 && idx.Int < int64(len(cell.Elems)):
		old := cell.Elems[idx.Int]
		if isHeapKind(val) {
			_ = ex.heap.Retain(val.CellID)
		}
		cell.Elems[idx.Int] = val
		if isHeapKind(old) {
			_ = ex.heap.Release(old.CellID)
		}
	default:
		return vNil(), derrors.New(derrors.OutOfBounds, "array index out of bounds").
			WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	return vNil(), nil
}

// evalMapGet implements MapGet(map, key). A missing key returns Nil rather
// than an error.
func (ex *Executor) evalMapGet(n *bytecode.Node) (Value, error) {
	ref, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	key, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "String", key, isString); err != nil {
		return vNil(), err
	}
	cell, err := ex.mapCell(n.Opcode, n.ResultID, ref)
	if err != nil {
		return vNil(), err
	}
	v, ok := cell.Entries[key.Str]
	if !ok {
		return vNil(), nil
	}
	return v, nil
}

// evalMapSet implements MapSet(map, key, value).
func (ex *Executor) evalMapSet(n *bytecode.Node) (Value, error) {
	ref, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	key, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "String", key, isString); err != nil {
		return vNil(), err
	}
	val, err := ex.eval(n.Args[2])
	if err != nil {
		return vNil(), err
	}
	cell, err := ex.mapCell(n.Opcode, n.ResultID, ref)
	if err != nil {
		return vNil(), err
	}

	old, hadOld := cell.Entries[key.Str]
	if isHeapKind(val) {
		_ = ex.heap.Retain(val.CellID)
	}
	cell.Entries[key.Str] = val
	if hadOld && isHeapKind(old) {
		_ = ex.heap.Release(old.CellID)
	}
	return vNil(), nil
}
