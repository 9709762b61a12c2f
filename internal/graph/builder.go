package graph

import (
	"fmt"
	"time"

	"der/internal/bytecode"
)

// Builder constructs a Program incrementally. Result ids are assigned
// 1, 2, 3, ... in builder order; 0 is reserved "none".
type Builder struct {
	program *Program
	nextID  uint32
}

// NewBuilder returns a builder over a fresh, empty program, stamped with
// the current format version (override with SetVersion).
func NewBuilder() *Builder {
	b := &Builder{program: New(), nextID: 1}
	b.program.Metadata.VersionMajor = FormatVersionMajor
	b.program.Metadata.VersionMinor = FormatVersionMinor
	return b
}

// AddConstant interns nothing and appends val to the pool, returning its
// stable index.
func (b *Builder) AddConstant(kind ConstantKind, val interface{}) (int, error) {
	c := Constant{Kind: kind}
	switch kind {
	case KindInt:
		v, ok := val.(int64)
		if !ok {
			return 0, fmt.Errorf("graph: AddConstant(KindInt) expects int64, got %T", val)
		}
		c.Int = v
	case KindFloat:
		v, ok := val.(float64)
		if !ok {
			return 0, fmt.Errorf("graph: AddConstant(KindFloat) expects float64, got %T", val)
		}
		c.Float = v
	case KindString:
		v, ok := val.(string)
		if !ok {
			return 0, fmt.Errorf("graph: AddConstant(KindString) expects string, got %T", val)
		}
		c.Str = v
	case KindBool:
		v, ok := val.(bool)
		if !ok {
			return 0, fmt.Errorf("graph: AddConstant(KindBool) expects bool, got %T", val)
		}
		c.Bool = v
	default:
		return 0, fmt.Errorf("graph: unknown constant kind %d", kind)
	}
	return b.program.Constants.Add(c), nil
}

// AddNode appends a node with a fresh monotone result_id and the current
// timestamp, returning the result_id for other nodes' args to cite.
func (b *Builder) AddNode(op bytecode.OpCode, args ...uint32) (uint32, error) {
	if b.program.Executing() {
		return 0, fmt.Errorf("graph: cannot mutate a program that has begun executing")
	}
	if len(args) > 3 {
		return 0, fmt.Errorf("graph: node takes at most 3 args, got %d", len(args))
	}
	if !op.IsValid() {
		return 0, fmt.Errorf("graph: unknown opcode %d", op)
	}

	n := bytecode.Node{
		Opcode:    op,
		ResultID:  b.nextID,
		Timestamp: uint64(time.Now().UnixNano()),
		ArgCount:  uint8(len(args)),
	}
	for i, a := range args {
		n.Args[i] = a
	}

	b.program.Nodes = append(b.program.Nodes, n)
	b.program.index[n.ResultID] = len(b.program.Nodes) - 1
	b.nextID++
	return n.ResultID, nil
}

// SetEntry sets the program's entry point. Fails if resultID is unknown.
func (b *Builder) SetEntry(resultID uint32) error {
	if _, ok := b.program.index[resultID]; !ok {
		return fmt.Errorf("graph: unknown entry result_id %d", resultID)
	}
	b.program.Metadata.EntryResultID = resultID
	return nil
}

// SetCapabilities sets the program's declared capability bitset.
func (b *Builder) SetCapabilities(c Capability) {
	b.program.Metadata.Capabilities = c
}

// AddTrait appends an opaque trait to the program's metadata.
func (b *Builder) AddTrait(t Trait) {
	b.program.Metadata.Traits = append(b.program.Metadata.Traits, t)
}

// SetProof attaches opaque proof bytes, preserved but never interpreted.
func (b *Builder) SetProof(proof []byte) {
	b.program.Proof = proof
}

// SetVersion sets the format version stamped into the program's metadata.
func (b *Builder) SetVersion(major, minor uint16) {
	b.program.Metadata.VersionMajor = major
	b.program.Metadata.VersionMinor = minor
}

// Validate runs the DAG + ref-resolution + shallow arity check.
func (b *Builder) Validate() error {
	return b.program.Validate()
}

// Build returns the constructed program. Callers should call Validate
// first; Build does not validate implicitly, keeping construction and
// validation as separate passes.
func (b *Builder) Build() *Program {
	return b.program
}
