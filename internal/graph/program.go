package graph

import (
	"fmt"

	derrors "der/internal/errors"

	"der/internal/bytecode"
)

// FormatVersionMajor/Minor is the current on-disk format version.
// NewBuilder stamps every fresh program with this version so that
// round-trip identity never depends on a caller remembering to call
// SetVersion.
const (
	FormatVersionMajor = 1
	FormatVersionMinor = 0
)

// Capability is the per-program bitset gating I/O-capable opcodes.
type Capability uint32

const (
	FileSystem Capability = 1 << iota
	Network
	Process
	UI
	ExternalCode
)

// Has reports whether the set contains bit.
func (c Capability) Has(bit Capability) bool {
	return c&bit != 0
}

// Trait is an opaque named pre/postcondition pair attached to a program;
// the core never interprets the strings, it only preserves them across
// round-trip — verification of the claim is out of scope.
type Trait struct {
	Name string
	Pre  []string
	Post []string
}

// Metadata is the program-level information stored in the META chunk.
type Metadata struct {
	EntryResultID uint32
	Capabilities  Capability
	Traits        []Trait
	VersionMajor  uint16
	VersionMinor  uint16
}

// Program is the in-memory graph: an ordered node arena with a result_id
// index, a constant pool, metadata, and an opaque proof chunk.
type Program struct {
	Metadata  Metadata
	Nodes     []bytecode.Node
	Constants *ConstantPool
	Proof     []byte

	// UnknownChunks preserves chunk tags this implementation does not
	// interpret, in the order they were read. Encode writes them after the
	// four known chunks; their original position relative to the known
	// chunks is not kept (see container.Options for the preserve-vs-reject
	// policy).
	UnknownChunks []UnknownChunk

	index      map[uint32]int // result_id -> index into Nodes
	executing  bool           // true once an Executor has started running this program
}

// UnknownChunk is a chunk tag this implementation does not recognize,
// preserved byte-for-byte so that round-trip identity holds even for
// files written by a newer version of the format.
type UnknownChunk struct {
	Tag   [4]byte
	Bytes []byte
}

// New returns an empty program with an initialized index and constant pool.
func New() *Program {
	return &Program{
		Constants: NewConstantPool(),
		index:     make(map[uint32]int),
	}
}

// reindex rebuilds the result_id -> node-index map, e.g. after deserializing.
func (p *Program) reindex() error {
	p.index = make(map[uint32]int, len(p.Nodes))
	for i, n := range p.Nodes {
		if _, exists := p.index[n.ResultID]; exists {
			return derrors.New(derrors.ValidationError, fmt.Sprintf("duplicate result_id %d", n.ResultID)).
				WithSub("DuplicateResultId").WithResultID(n.ResultID)
		}
		p.index[n.ResultID] = i
	}
	return nil
}

// IndexOf returns the node index for a result_id.
func (p *Program) IndexOf(resultID uint32) (int, bool) {
	i, ok := p.index[resultID]
	return i, ok
}

// NodeByID returns the node with the given result_id.
func (p *Program) NodeByID(resultID uint32) (*bytecode.Node, bool) {
	i, ok := p.index[resultID]
	if !ok {
		return nil, false
	}
	return &p.Nodes[i], true
}

// BeginExecution marks the program as executing. Builder.AddNode consults
// this flag and refuses to add nodes once it is set; the builder's other
// methods (AddConstant, SetEntry, SetCapabilities, AddTrait, SetProof,
// SetVersion) do not check it.
func (p *Program) BeginExecution() {
	p.executing = true
}

// Executing reports whether execution has begun.
func (p *Program) Executing() bool {
	return p.executing
}

// isNodeRefArg reports whether args[i] of an opcode is interpreted as a
// node reference (the common case) as opposed to a constant-pool index.
// Only the Const* opcodes use args[0] as a constant-pool index.
func isNodeRefArg(op bytecode.OpCode) bool {
	switch op {
	case bytecode.ConstInt, bytecode.ConstFloat, bytecode.ConstString, bytecode.ConstBool:
		return false
	default:
		return true
	}
}

// Validate runs the DAG, reference-resolution, and shallow-arity checks.
// It is deterministic and idempotent.
func (p *Program) Validate() error {
	if err := p.reindex(); err != nil {
		return err
	}

	for i, n := range p.Nodes {
		if int(n.ArgCount) > len(n.Args) {
			return derrors.New(derrors.ValidationError, "arg_count exceeds 3").
				WithSub("BadArity").WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
		}
		ar, ok := arityTable[n.Opcode]
		if !ok {
			return derrors.New(derrors.ValidationError, fmt.Sprintf("unknown opcode %d", n.Opcode)).
				WithSub("BadArity").WithResultID(n.ResultID)
		}
		if int(n.ArgCount) < ar.min || int(n.ArgCount) > ar.max {
			return derrors.New(derrors.ValidationError,
				fmt.Sprintf("opcode %s expects %d-%d args, got %d", n.Opcode, ar.min, ar.max, n.ArgCount)).
				WithSub("BadArity").WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
		}

		if !isNodeRefArg(n.Opcode) {
			if n.ArgCount < 1 || int(n.Args[0]) >= p.Constants.Len() {
				return derrors.New(derrors.ValidationError, "constant index out of bounds").
					WithSub("BadConstantKind").WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
			}
			continue
		}

		for a := uint8(0); a < n.ArgCount; a++ {
			ref := n.Args[a]
			refIdx, ok := p.index[ref]
			if !ok {
				return derrors.New(derrors.ValidationError, fmt.Sprintf("node %d references unknown result_id %d", n.ResultID, ref)).
					WithSub("DanglingReference").WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
			}
			if refIdx >= i {
				return derrors.New(derrors.ValidationError, fmt.Sprintf("node %d references node %d which is not earlier-declared", n.ResultID, ref)).
					WithSub("CycleDetected").WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
			}
		}
	}

	if p.Metadata.EntryResultID != 0 {
		if _, ok := p.index[p.Metadata.EntryResultID]; !ok {
			return derrors.New(derrors.ValidationError, "entry result_id not found").WithSub("DanglingReference")
		}
	}

	return nil
}

// Clone deep-copies nodes, constants, and metadata so independent
// executors can run the same program concurrently — heap cells are
// per-executor, so each clone needs its own Heap via a fresh Executor.
// The proof chunk is immutable opaque data and is shared, not copied.
func (p *Program) Clone() *Program {
	out := New()
	out.Nodes = append([]bytecode.Node(nil), p.Nodes...)
	out.Constants.entries = append([]Constant(nil), p.Constants.entries...)
	out.Proof = p.Proof
	out.Metadata = p.Metadata
	out.Metadata.Traits = append([]Trait(nil), p.Metadata.Traits...)
	out.UnknownChunks = append([]UnknownChunk(nil), p.UnknownChunks...)
	_ = out.reindex()
	return out
}
