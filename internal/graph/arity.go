package graph

import "der/internal/bytecode"

type arityRange struct{ min, max int }

// arityTable is the structural arg-count check performed by Validate.
// Variant-level predicates (e.g. "both operands must be Int or both
// Float") are the shallow type checker's job and live in
// exec/typecheck.go, evaluated lazily during dispatch rather than here.
var arityTable = map[bytecode.OpCode]arityRange{
	bytecode.ConstInt:    {1, 1},
	bytecode.ConstFloat:  {1, 1},
	bytecode.ConstString: {1, 1},
	bytecode.ConstBool:   {1, 1},

	bytecode.Add: {2, 2},
	bytecode.Sub: {2, 2},
	bytecode.Mul: {2, 2},
	bytecode.Div: {2, 2},
	bytecode.Mod: {2, 2},

	bytecode.Eq: {2, 2},
	bytecode.Ne: {2, 2},
	bytecode.Lt: {2, 2},
	bytecode.Le: {2, 2},
	bytecode.Gt: {2, 2},
	bytecode.Ge: {2, 2},

	bytecode.Alloc: {1, 1},
	bytecode.Free:  {1, 1},
	bytecode.Load:  {1, 1},
	bytecode.Store: {2, 2},

	bytecode.ArrayNew: {0, 0},
	bytecode.ArrayGet: {2, 2},
	bytecode.ArraySet: {3, 3},

	bytecode.MapNew: {0, 0},
	bytecode.MapGet: {2, 2},
	bytecode.MapSet: {3, 3},

	bytecode.If:   {3, 3},
	bytecode.Loop: {2, 2},
	// Call(target_node, arg_nodes...): the fixed 3-slot node layout limits
	// Call to at most 2 positional actuals in this representation.
	bytecode.Call:   {1, 3},
	bytecode.Return: {1, 1},

	bytecode.AsyncBegin:    {0, 0},
	bytecode.AsyncComplete: {2, 2},
	bytecode.AsyncAwait:    {1, 1},

	bytecode.Print:     {1, 1},
	bytecode.Read:      {0, 0},
	bytecode.FileOpen:  {1, 1},
	bytecode.FileRead:  {1, 1},
	bytecode.FileWrite: {2, 2},
}
