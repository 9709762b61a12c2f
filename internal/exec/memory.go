package exec

import (
	derrors "der/internal/errors"
	"der/internal/heap"

	"der/internal/bytecode"
)

// evalAlloc implements Alloc(size): a fresh Bytes cell with refcount 1,
// addressable as a single boxed Value slot (see heap.Cell's doc comment).
func (ex *Executor) evalAlloc(n *bytecode.Node) (Value, error) {
	size, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "Int", size, isInt); err != nil {
		return vNil(), err
	}
	if size.Int < 0 {
		return vNil(), derrors.New(derrors.ValidationError, "negative allocation size").
			WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	id := ex.heap.AllocBytes(int(size.Int))
	return vHeapRef(id), nil
}

// evalFree implements Free(cell): a hard refcount decrement. When the
// count reaches zero the cell is freed and any heap-kind value it contains
// is released in turn; freeing a cell that is no longer live is
// HeapError{DoubleFree}.
func (ex *Executor) evalFree(n *bytecode.Node) (Value, error) {
	ref, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	if !isHeapKind(ref) {
		return vNil(), typeMismatch(n.Opcode, n.ResultID, "heap reference", ref)
	}
	if err := ex.heap.Release(ref.CellID); err != nil {
		return vNil(), derrors.New(derrors.HeapError, err.Error()).WithSub("DoubleFree").
			WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	return vNil(), nil
}

func (ex *Executor) bytesCell(op bytecode.OpCode, resultID uint32, ref Value) (cellID uint32, err error) {
	if ref.Variant != "HeapRef" {
		return 0, typeMismatch(op, resultID, "HeapRef", ref)
	}
	cell, herr := ex.heap.Get(ref.CellID)
	if herr != nil {
		return 0, derrors.New(derrors.HeapError, herr.Error()).WithResultID(resultID).WithOpcode(op.String())
	}
	if cell.Kind != heap.Bytes {
		return 0, derrors.New(derrors.TypeMismatch, "cell is not a Bytes cell").
			WithResultID(resultID).WithOpcode(op.String())
	}
	return cell.ID, nil
}

// evalLoad implements Load(cell): reads the cell's boxed value.
func (ex *Executor) evalLoad(n *bytecode.Node) (Value, error) {
	ref, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	id, err := ex.bytesCell(n.Opcode, n.ResultID, ref)
	if err != nil {
		return vNil(), err
	}
	cell, _ := ex.heap.Get(id)
	return cell.Boxed, nil
}

// evalStore implements Store(cell, value): overwrites the cell's boxed
// value, adjusting refcounts for any heap-kind values involved.
func (ex *Executor) evalStore(n *bytecode.Node) (Value, error) {
	ref, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	val, err := ex.eval(n.Args[1])
	if err != nil {
		return vNil(), err
	}
	id, err := ex.bytesCell(n.Opcode, n.ResultID, ref)
	if err != nil {
		return vNil(), err
	}
	cell, _ := ex.heap.Get(id)

	old := cell.Boxed
	if isHeapKind(val) {
		_ = ex.heap.Retain(val.CellID)
	}
	cell.Boxed = val
	if isHeapKind(old) {
		_ = ex.heap.Release(old.CellID)
	}
	return vNil(), nil
}
