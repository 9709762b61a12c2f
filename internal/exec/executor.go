// Package exec implements the demand-driven graph executor and the
// shallow type checker, the latter consulted inline from the dispatch
// loop below.
package exec

import (
	"bufio"
	"io"
	"os"
	"time"

	derrors "der/internal/errors"
	"der/internal/graph"
	"der/internal/heap"

	"der/internal/bytecode"

	"github.com/google/uuid"
)

// Executor runs one Program to completion. It owns a heap, an async token
// table, and a value cache; none of these are shared across executors —
// a cloned Program gets a fresh Executor and a fresh Heap.
type Executor struct {
	program *graph.Program
	heap    *heap.Heap
	async   *asyncTable
	frames  []*frame
	limits  Limits

	nodesEvaluated int
	callDepth      int

	files    map[uint32]*os.File
	nextFile uint32

	Stdout io.Writer
	stdin  *bufio.Reader

	// TraceID is a run-scoped identifier stamped on every Fault and
	// printed by `der run` next to each result or error, so that several
	// `der run --parallel` executors can be told apart in logs.
	TraceID string
}

// New takes ownership of program, rejecting it if it fails Validate. It
// marks the program as executing, after which Builder.AddNode refuses to
// add further nodes to it.
func New(p *graph.Program, limits Limits) (*Executor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.BeginExecution()

	if limits.MaxLoopIterations == 0 {
		limits.MaxLoopIterations = DefaultLimits().MaxLoopIterations
	}
	if limits.MaxCallDepth == 0 {
		limits.MaxCallDepth = DefaultMaxCallDepth
	}

	ex := &Executor{
		program: p,
		heap:    heap.New(),
		async:   newAsyncTable(),
		limits:  limits,
		files:   make(map[uint32]*os.File),
		Stdout:  os.Stdout,
		stdin:   bufio.NewReader(os.Stdin),
		TraceID: uuid.NewString(),
	}
	return ex, nil
}

// Heap exposes the executor's heap for inspection (tests, visualization).
func (ex *Executor) Heap() *heap.Heap { return ex.heap }

// Execute runs from the program's declared entry point.
func (ex *Executor) Execute() (Value, error) {
	if ex.program.Metadata.EntryResultID == 0 {
		return vNil(), derrors.New(derrors.ValidationError, "program has no entry point").WithTrace(ex.TraceID)
	}
	return ex.run(ex.program.Metadata.EntryResultID)
}

// ExecuteNode runs from an arbitrary node, for testing and visualization.
func (ex *Executor) ExecuteNode(resultID uint32) (Value, error) {
	return ex.run(resultID)
}

func (ex *Executor) run(resultID uint32) (Value, error) {
	ex.frames = nil
	ex.pushFrame()
	defer func() { ex.frames = nil }()

	v, err := ex.eval(resultID)
	if err != nil {
		if f, ok := err.(*derrors.Fault); ok {
			f.WithTrace(ex.TraceID)
		}
		return vNil(), err
	}
	return v, nil
}

// eval is the recursive, demand-driven evaluator. It checks the current
// activation's cache, evaluates argument nodes left-to-right, dispatches
// on opcode, caches, and returns. A node that allocates a cell or token
// (Alloc/ArrayNew/MapNew/AsyncBegin) keeps one identity across Call
// frames: a value an enclosing frame already cached for it is reused.
func (ex *Executor) eval(resultID uint32) (Value, error) {
	f := ex.topFrame()
	if v, ok := f.cache[resultID]; ok {
		return v, nil
	}
	if an, ok := ex.program.NodeByID(resultID); ok {
		switch an.Opcode {
		case bytecode.Alloc, bytecode.ArrayNew, bytecode.MapNew, bytecode.AsyncBegin:
			for i := len(ex.frames) - 2; i >= 0; i-- {
				if v, ok := ex.frames[i].cache[resultID]; ok {
					return v, nil
				}
			}
		}
	}

	if !ex.limits.Deadline.IsZero() && time.Now().After(ex.limits.Deadline) {
		return vNil(), derrors.New(derrors.DeadlineExceeded, "wall-clock deadline exceeded").WithResultID(resultID)
	}
	if ex.limits.MaxNodeBudget > 0 && ex.nodesEvaluated >= ex.limits.MaxNodeBudget {
		return vNil(), derrors.New(derrors.NodeBudgetExceeded, "node evaluation budget exceeded").WithResultID(resultID)
	}
	ex.nodesEvaluated++

	n, ok := ex.program.NodeByID(resultID)
	if !ok {
		return vNil(), derrors.New(derrors.ValidationError, "dangling reference").WithSub("DanglingReference").WithResultID(resultID)
	}

	v, err := ex.dispatch(n)
	if err != nil {
		return vNil(), err
	}

	f = ex.topFrame()
	f.cache[resultID] = v
	return v, nil
}

func (ex *Executor) dispatch(n *bytecode.Node) (Value, error) {
	op := n.Opcode
	rid := n.ResultID

	switch op {
	case bytecode.ConstInt, bytecode.ConstFloat, bytecode.ConstString, bytecode.ConstBool:
		return ex.evalConst(n)

	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div, bytecode.Mod:
		return ex.evalArithmetic(n)

	case bytecode.Eq, bytecode.Ne, bytecode.Lt, bytecode.Le, bytecode.Gt, bytecode.Ge:
		return ex.evalComparison(n)

	case bytecode.Alloc:
		return ex.evalAlloc(n)
	case bytecode.Free:
		return ex.evalFree(n)
	case bytecode.Load:
		return ex.evalLoad(n)
	case bytecode.Store:
		return ex.evalStore(n)

	case bytecode.ArrayNew:
		return vArray(ex.heap.AllocArray()), nil
	case bytecode.ArrayGet:
		return ex.evalArrayGet(n)
	case bytecode.ArraySet:
		return ex.evalArraySet(n)

	case bytecode.MapNew:
		return vMap(ex.heap.AllocMap()), nil
	case bytecode.MapGet:
		return ex.evalMapGet(n)
	case bytecode.MapSet:
		return ex.evalMapSet(n)

	case bytecode.If:
		return ex.evalIf(n)
	case bytecode.Loop:
		return ex.evalLoop(n)
	case bytecode.Call:
		return ex.evalCall(n)
	case bytecode.Return:
		return ex.evalReturn(n)

	case bytecode.AsyncBegin:
		return vAsyncToken(ex.async.Begin()), nil
	case bytecode.AsyncComplete:
		return ex.evalAsyncComplete(n)
	case bytecode.AsyncAwait:
		return ex.evalAsyncAwait(n)

	case bytecode.Print:
		return ex.evalPrint(n)
	case bytecode.Read:
		return ex.evalRead(n)
	case bytecode.FileOpen:
		return ex.evalFileOpen(n)
	case bytecode.FileRead:
		return ex.evalFileRead(n)
	case bytecode.FileWrite:
		return ex.evalFileWrite(n)

	default:
		return vNil(), derrors.New(derrors.ValidationError, "unknown opcode").WithResultID(rid).WithOpcode(op.String())
	}
}
