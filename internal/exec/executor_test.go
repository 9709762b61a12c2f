package exec

import (
	"bytes"
	"strings"
	"testing"

	derrors "der/internal/errors"
	"der/internal/graph"

	"der/internal/bytecode"
)

// addProgram builds 10 + 20 and sets it as the entry.
func addProgram(t *testing.T) *graph.Program {
	t.Helper()
	b := graph.NewBuilder()
	c0, _ := b.AddConstant(graph.KindInt, int64(10))
	c1, _ := b.AddConstant(graph.KindInt, int64(20))
	n0, _ := b.AddNode(bytecode.ConstInt, uint32(c0))
	n1, _ := b.AddNode(bytecode.ConstInt, uint32(c1))
	sum, _ := b.AddNode(bytecode.Add, n0, n1)
	if err := b.SetEntry(sum); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return b.Build()
}

func TestExecuteAddition(t *testing.T) {
	ex, err := New(addProgram(t), DefaultLimits())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := ex.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Variant != "Int" || v.Int != 30 {
		t.Fatalf("result = %+v, want Int(30)", v)
	}
}

// arithmeticTreeProgram builds a deeper arithmetic tree equal to 150:
// ((10 + 20) * 5) = 150.
func arithmeticTreeProgram(t *testing.T) *graph.Program {
	t.Helper()
	b := graph.NewBuilder()
	c10, _ := b.AddConstant(graph.KindInt, int64(10))
	c20, _ := b.AddConstant(graph.KindInt, int64(20))
	c5, _ := b.AddConstant(graph.KindInt, int64(5))
	n10, _ := b.AddNode(bytecode.ConstInt, uint32(c10))
	n20, _ := b.AddNode(bytecode.ConstInt, uint32(c20))
	n5, _ := b.AddNode(bytecode.ConstInt, uint32(c5))
	sum, _ := b.AddNode(bytecode.Add, n10, n20)
	product, _ := b.AddNode(bytecode.Mul, sum, n5)
	if err := b.SetEntry(product); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return b.Build()
}

func TestExecuteArithmeticTree(t *testing.T) {
	ex, _ := New(arithmeticTreeProgram(t), DefaultLimits())
	v, err := ex.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Int != 150 {
		t.Fatalf("result = %d, want 150", v.Int)
	}
}

func TestDivisionByZero(t *testing.T) {
	b := graph.NewBuilder()
	c10, _ := b.AddConstant(graph.KindInt, int64(10))
	c0, _ := b.AddConstant(graph.KindInt, int64(0))
	n10, _ := b.AddNode(bytecode.ConstInt, uint32(c10))
	n0, _ := b.AddNode(bytecode.ConstInt, uint32(c0))
	div, _ := b.AddNode(bytecode.Div, n10, n0)
	b.SetEntry(div)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	_, err := ex.Execute()
	if err == nil {
		t.Fatal("Execute should fail on integer division by zero")
	}
	fault, ok := err.(*derrors.Fault)
	if !ok || fault.Kind != derrors.DivisionByZero {
		t.Fatalf("err = %v, want a DivisionByZero Fault", err)
	}
}

// TestIfLaziness verifies only the taken branch's side effects occur: two
// Print nodes, one per branch, only one of which should run.
func TestIfLaziness(t *testing.T) {
	b := graph.NewBuilder()
	cTrue, _ := b.AddConstant(graph.KindBool, true)
	cThen, _ := b.AddConstant(graph.KindString, "then-branch")
	cElse, _ := b.AddConstant(graph.KindString, "else-branch")
	cond, _ := b.AddNode(bytecode.ConstBool, uint32(cTrue))
	thenMsg, _ := b.AddNode(bytecode.ConstString, uint32(cThen))
	elseMsg, _ := b.AddNode(bytecode.ConstString, uint32(cElse))
	thenPrint, _ := b.AddNode(bytecode.Print, thenMsg)
	elsePrint, _ := b.AddNode(bytecode.Print, elseMsg)
	ifNode, _ := b.AddNode(bytecode.If, cond, thenPrint, elsePrint)
	b.SetEntry(ifNode)
	b.SetCapabilities(graph.UI)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var out bytes.Buffer
	ex, _ := New(b.Build(), DefaultLimits())
	ex.Stdout = &out
	if _, err := ex.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "then-branch") {
		t.Errorf("output = %q, want the then-branch to have printed", got)
	}
	if strings.Contains(got, "else-branch") {
		t.Errorf("output = %q, the else-branch must not run when cond is true", got)
	}
}

// TestLoopCounterTerminates builds a heap-counter loop that increments a
// Bytes cell from 0 until it reaches 3, then returns the final count.
func TestLoopCounterTerminates(t *testing.T) {
	b := graph.NewBuilder()
	cZero, _ := b.AddConstant(graph.KindInt, int64(0))
	cOne, _ := b.AddConstant(graph.KindInt, int64(1))
	cThree, _ := b.AddConstant(graph.KindInt, int64(3))

	sizeNode, _ := b.AddNode(bytecode.ConstInt, uint32(cOne))
	cell, _ := b.AddNode(bytecode.Alloc, sizeNode)

	zeroNode, _ := b.AddNode(bytecode.ConstInt, uint32(cZero))
	initStore, _ := b.AddNode(bytecode.Store, cell, zeroNode)
	_ = initStore

	// Loop(cond, body): cond loads the counter and compares to 3; body
	// loads, adds 1, stores back.
	loadForCond, _ := b.AddNode(bytecode.Load, cell)
	threeNode, _ := b.AddNode(bytecode.ConstInt, uint32(cThree))
	cond, _ := b.AddNode(bytecode.Lt, loadForCond, threeNode)

	loadForBody, _ := b.AddNode(bytecode.Load, cell)
	oneNode, _ := b.AddNode(bytecode.ConstInt, uint32(cOne))
	incremented, _ := b.AddNode(bytecode.Add, loadForBody, oneNode)
	store, _ := b.AddNode(bytecode.Store, cell, incremented)

	loop, _ := b.AddNode(bytecode.Loop, cond, store)

	// Force initStore to run before the loop by threading it through a
	// Call: evalCall evaluates its extra arg (initStore) for side effects
	// before evaluating its target (loop).
	seq, _ := b.AddNode(bytecode.Call, loop, initStore)
	finalLoad, _ := b.AddNode(bytecode.Load, cell)

	// entry must evaluate seq before finalLoad: model with a second Call.
	entry, _ := b.AddNode(bytecode.Call, finalLoad, seq)

	b.SetEntry(entry)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	v, err := ex.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Int != 3 {
		t.Fatalf("final counter = %d, want 3", v.Int)
	}
}

func TestPlantedCycleIsRejectedAtValidate(t *testing.T) {
	p := graph.New()
	p.Nodes = []bytecode.Node{
		{Opcode: bytecode.Free, ResultID: 1, ArgCount: 1, Args: [3]uint32{2}},
		{Opcode: bytecode.Alloc, ResultID: 2, ArgCount: 1, Args: [3]uint32{1}},
	}
	if err := p.Validate(); err == nil {
		t.Fatal("Validate should reject a planted cycle between nodes 1 and 2")
	}
}

func TestUTF8StringRoundTrip(t *testing.T) {
	b := graph.NewBuilder()
	s := "héllo wörld 你好 🎉"
	c0, _ := b.AddConstant(graph.KindString, s)
	n0, _ := b.AddNode(bytecode.ConstString, uint32(c0))
	b.SetEntry(n0)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	v, err := ex.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Str != s {
		t.Fatalf("Str = %q, want %q", v.Str, s)
	}
	if ToString(v) != s {
		t.Fatalf("ToString = %q, want %q", ToString(v), s)
	}
}

func TestMemoizationEvaluatesOnce(t *testing.T) {
	b := graph.NewBuilder()
	cTrue, _ := b.AddConstant(graph.KindBool, true)
	cMsg, _ := b.AddConstant(graph.KindString, "side-effect")
	cond, _ := b.AddNode(bytecode.ConstBool, uint32(cTrue))
	msg, _ := b.AddNode(bytecode.ConstString, uint32(cMsg))
	print1, _ := b.AddNode(bytecode.Print, msg)
	// print1 is the then-branch of an If whose cond is always true; the
	// else-branch prints the same text, so it would show up as a second
	// print if it ran.
	elseMsg, _ := b.AddNode(bytecode.ConstString, uint32(cMsg))
	print2, _ := b.AddNode(bytecode.Print, elseMsg)
	ifNode, _ := b.AddNode(bytecode.If, cond, print1, print2)
	// Eq(ifNode, print1) reaches print1 a second time: it must not print
	// twice, since Print's own result_id is memoized within the
	// activation. Print returns its argument, so both operands are Strings.
	same, _ := b.AddNode(bytecode.Eq, ifNode, print1)
	b.SetEntry(same)
	b.SetCapabilities(graph.UI)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var out bytes.Buffer
	ex, _ := New(b.Build(), DefaultLimits())
	ex.Stdout = &out
	if _, err := ex.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Count(out.String(), "side-effect") != 1 {
		t.Fatalf("output = %q, want exactly one print", out.String())
	}
}

func TestCapabilityDeniedWithoutGrant(t *testing.T) {
	b := graph.NewBuilder()
	cMsg, _ := b.AddConstant(graph.KindString, "hi")
	msg, _ := b.AddNode(bytecode.ConstString, uint32(cMsg))
	print1, _ := b.AddNode(bytecode.Print, msg)
	b.SetEntry(print1)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	_, err := ex.Execute()
	if err == nil {
		t.Fatal("Print without the UI capability should fail")
	}
	fault, ok := err.(*derrors.Fault)
	if !ok || fault.Kind != derrors.CapabilityDenied {
		t.Fatalf("err = %v, want CapabilityDenied", err)
	}
}

func TestMapGetMissingKeyReturnsNil(t *testing.T) {
	b := graph.NewBuilder()
	cKey, _ := b.AddConstant(graph.KindString, "absent")
	m, _ := b.AddNode(bytecode.MapNew)
	key, _ := b.AddNode(bytecode.ConstString, uint32(cKey))
	get, _ := b.AddNode(bytecode.MapGet, m, key)
	b.SetEntry(get)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	v, err := ex.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Variant != "Nil" {
		t.Fatalf("MapGet on a missing key = %+v, want Nil", v)
	}
}

func TestAsyncCompleteThenAwait(t *testing.T) {
	b := graph.NewBuilder()
	cVal, _ := b.AddConstant(graph.KindInt, int64(42))
	tok, _ := b.AddNode(bytecode.AsyncBegin)
	val, _ := b.AddNode(bytecode.ConstInt, uint32(cVal))
	complete, _ := b.AddNode(bytecode.AsyncComplete, tok, val)
	await, _ := b.AddNode(bytecode.AsyncAwait, tok)
	entry, _ := b.AddNode(bytecode.Call, await, complete)
	b.SetEntry(entry)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	v, err := ex.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Int != 42 {
		t.Fatalf("Await result = %+v, want Int(42)", v)
	}
}

func TestAwaitOnPendingTokenErrors(t *testing.T) {
	b := graph.NewBuilder()
	tok, _ := b.AddNode(bytecode.AsyncBegin)
	await, _ := b.AddNode(bytecode.AsyncAwait, tok)
	b.SetEntry(await)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	_, err := ex.Execute()
	if err == nil {
		t.Fatal("Await on a never-completed token should fail")
	}
	fault, ok := err.(*derrors.Fault)
	if !ok || fault.Kind != derrors.AsyncError {
		t.Fatalf("err = %v, want AsyncError", err)
	}
}

func TestReturnUnwindsToEnclosingCall(t *testing.T) {
	b := graph.NewBuilder()
	cInner, _ := b.AddConstant(graph.KindInt, int64(7))
	cOuter, _ := b.AddConstant(graph.KindInt, int64(999))
	innerVal, _ := b.AddNode(bytecode.ConstInt, uint32(cInner))
	ret, _ := b.AddNode(bytecode.Return, innerVal)
	call, _ := b.AddNode(bytecode.Call, ret)

	outerVal, _ := b.AddNode(bytecode.ConstInt, uint32(cOuter))
	_ = outerVal
	b.SetEntry(call)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ex, _ := New(b.Build(), DefaultLimits())
	v, err := ex.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v.Int != 7 {
		t.Fatalf("Call result after Return = %+v, want Int(7)", v)
	}
}

func TestStackOverflowOnUnboundedRecursion(t *testing.T) {
	b := graph.NewBuilder()
	// A Call whose only arg is itself would be rejected by Validate's
	// forward-reference check, so instead build a chain of nested Calls
	// exceeding a tiny MaxCallDepth.
	inner, _ := b.AddNode(bytecode.AsyncBegin)
	cur := inner
	for i := 0; i < 10; i++ {
		next, _ := b.AddNode(bytecode.Call, cur)
		cur = next
	}
	b.SetEntry(cur)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	limits := DefaultLimits()
	limits.MaxCallDepth = 3
	ex, _ := New(b.Build(), limits)
	_, err := ex.Execute()
	if err == nil {
		t.Fatal("Execute should fail once call depth exceeds MaxCallDepth")
	}
	fault, ok := err.(*derrors.Fault)
	if !ok || fault.Kind != derrors.StackOverflow {
		t.Fatalf("err = %v, want StackOverflow", err)
	}
}
