// Package bytecode defines the opcode enumeration and fixed-width node
// record shared by the container, program, and executor layers.
package bytecode

// OpCode identifies the operation a node performs. Numeric codes are part
// of the on-disk format: new opcodes are appended at the end, never
// renumbered, within a major version.
type OpCode uint16

const (
	// Constants
	ConstInt OpCode = iota
	ConstFloat
	ConstString
	ConstBool

	// Arithmetic
	Add
	Sub
	Mul
	Div
	Mod

	// Comparison
	Eq
	Ne
	Lt
	Le
	Gt
	Ge

	// Memory
	Alloc
	Free
	Load
	Store

	// Array
	ArrayNew
	ArrayGet
	ArraySet

	// Map
	MapNew
	MapGet
	MapSet

	// Control
	If
	Loop
	Call
	Return

	// Async
	AsyncBegin
	AsyncComplete
	AsyncAwait

	// I/O
	Print
	Read
	FileOpen
	FileRead
	FileWrite
)

var names = map[OpCode]string{
	ConstInt:      "ConstInt",
	ConstFloat:    "ConstFloat",
	ConstString:   "ConstString",
	ConstBool:     "ConstBool",
	Add:           "Add",
	Sub:           "Sub",
	Mul:           "Mul",
	Div:           "Div",
	Mod:           "Mod",
	Eq:            "Eq",
	Ne:            "Ne",
	Lt:            "Lt",
	Le:            "Le",
	Gt:            "Gt",
	Ge:            "Ge",
	Alloc:         "Alloc",
	Free:          "Free",
	Load:          "Load",
	Store:         "Store",
	ArrayNew:      "ArrayNew",
	ArrayGet:      "ArrayGet",
	ArraySet:      "ArraySet",
	MapNew:        "MapNew",
	MapGet:        "MapGet",
	MapSet:        "MapSet",
	If:            "If",
	Loop:          "Loop",
	Call:          "Call",
	Return:        "Return",
	AsyncBegin:    "AsyncBegin",
	AsyncComplete: "AsyncComplete",
	AsyncAwait:    "AsyncAwait",
	Print:         "Print",
	Read:          "Read",
	FileOpen:      "FileOpen",
	FileRead:      "FileRead",
	FileWrite:     "FileWrite",
}

func (op OpCode) String() string {
	if s, ok := names[op]; ok {
		return s
	}
	return "Unknown"
}

// IsValid reports whether op is a recognized opcode.
func (op OpCode) IsValid() bool {
	_, ok := names[op]
	return ok
}

// NodeFlags is a reserved 16-bit bitfield. Unknown bits must round-trip
// unchanged — the executor never interprets them today.
type NodeFlags uint16

// Node is the in-memory form of the fixed-width on-disk node record: an
// opcode, reserved flags, the node's own result_id, an opaque audit
// timestamp, and up to three argument references.
type Node struct {
	Opcode    OpCode
	Flags     NodeFlags
	ResultID  uint32
	Timestamp uint64
	ArgCount  uint8
	Args      [3]uint32
}
