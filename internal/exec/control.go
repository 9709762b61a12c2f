package exec

import (
	derrors "der/internal/errors"

	"der/internal/bytecode"
)

// evalIf implements If(cond, then, else): only the taken branch is
// evaluated — the other branch's side effects, if any, never happen.
func (ex *Executor) evalIf(n *bytecode.Node) (Value, error) {
	cond, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	if err := checkVariant(n.Opcode, n.ResultID, "Bool", cond, isBool); err != nil {
		return vNil(), err
	}
	if cond.Bool {
		return ex.eval(n.Args[1])
	}
	return ex.eval(n.Args[2])
}

// invalidateSubtree purges the top frame's cache for resultID and every
// node transitively reachable from it through node-ref arguments, so a
// Loop's cond/body re-evaluate fresh on every iteration. Loop is the one
// construct exempt from "each result_id evaluated at most once" within
// an activation.
func (ex *Executor) invalidateSubtree(resultID uint32) {
	f := ex.topFrame()
	ex.invalidateWalk(resultID, f, make(map[uint32]bool))
}

// invalidateWalk purges resultID and its transitive node-ref arguments,
// with two exceptions that stop the recursion without deleting anything:
// Const* nodes (pure and cheap, no benefit to recomputing) and the
// allocating opcodes Alloc/ArrayNew/MapNew/AsyncBegin. The latter is
// load-bearing, not an optimization: a cell or token allocated by a node
// reachable from a Loop's cond/body (e.g. a counter cell read by Load
// every iteration) must keep the same identity across iterations. Blindly
// invalidating it would re-run the allocation every iteration, handing
// Load a freshly zeroed cell instead of the one the previous iteration's
// Store wrote to.
func (ex *Executor) invalidateWalk(resultID uint32, f *frame, seen map[uint32]bool) {
	if seen[resultID] {
		return
	}
	seen[resultID] = true

	n, ok := ex.program.NodeByID(resultID)
	if !ok {
		return
	}
	switch n.Opcode {
	case bytecode.ConstInt, bytecode.ConstFloat, bytecode.ConstString, bytecode.ConstBool:
		return
	case bytecode.Alloc, bytecode.ArrayNew, bytecode.MapNew, bytecode.AsyncBegin:
		return
	}

	delete(f.cache, resultID)
	for i := uint8(0); i < n.ArgCount; i++ {
		ex.invalidateWalk(n.Args[i], f, seen)
	}
}

// evalLoop implements Loop(cond, body): re-evaluates cond and, while true,
// body, invalidating the body subtree's cached values before every
// iteration and the cond subtree's before every iteration after the first.
// Bounded by
// Limits.MaxLoopIterations, raising LoopBudgetExceeded past it. Returns
// the last value body produced, or Nil if the loop never ran.
func (ex *Executor) evalLoop(n *bytecode.Node) (Value, error) {
	condID, bodyID := n.Args[0], n.Args[1]
	result := vNil()

	for iter := 0; ; iter++ {
		if iter > 0 {
			ex.invalidateSubtree(condID)
		}
		cond, err := ex.eval(condID)
		if err != nil {
			return vNil(), err
		}
		if err := checkVariant(n.Opcode, n.ResultID, "Bool", cond, isBool); err != nil {
			return vNil(), err
		}
		if !cond.Bool {
			return result, nil
		}
		if iter >= ex.limits.MaxLoopIterations {
			return vNil(), derrors.New(derrors.LoopBudgetExceeded, "loop iteration budget exceeded").
				WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
		}

		ex.invalidateSubtree(bodyID)
		v, err := ex.eval(bodyID)
		if err != nil {
			return vNil(), err
		}
		result = v
	}
}

// evalCall implements Call(target, arg_nodes...). Extra arg_nodes beyond
// target are evaluated left-to-right, in the caller's frame, purely for
// their side effects — there is no opcode for reading a bound actual
// inside the callee, so nothing binds them into the callee's scope.
// target is then evaluated in a fresh activation frame with its own
// memoization cache, so a target re-entered from a Loop body or another
// Call gets independent caching per invocation.
func (ex *Executor) evalCall(n *bytecode.Node) (result Value, err error) {
	targetID := n.Args[0]
	for i := uint8(1); i < n.ArgCount; i++ {
		if _, err := ex.eval(n.Args[i]); err != nil {
			return vNil(), err
		}
	}

	if ex.callDepth >= ex.limits.MaxCallDepth {
		return vNil(), derrors.New(derrors.StackOverflow, "call depth exceeded").
			WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}

	ex.callDepth++
	depth := ex.callDepth
	ex.pushFrame()
	defer func() {
		ex.popFrame()
		ex.callDepth--
		if r := recover(); r != nil {
			cr, ok := r.(callReturn)
			if !ok || cr.depth != depth {
				panic(r)
			}
			result, err = cr.value, nil
		}
	}()

	result, err = ex.eval(targetID)
	return result, err
}

// evalReturn implements Return(value): a non-local transfer that unwinds
// directly to the innermost enclosing Call, implemented as a
// panic keyed by call depth so evalCall's recover can tell "my Return" from
// one meant for an outer Call.
func (ex *Executor) evalReturn(n *bytecode.Node) (Value, error) {
	if ex.callDepth == 0 {
		return vNil(), derrors.New(derrors.ValidationError, "Return outside of any Call").
			WithSub("ReturnOutsideCall").WithResultID(n.ResultID).WithOpcode(n.Opcode.String())
	}
	v, err := ex.eval(n.Args[0])
	if err != nil {
		return vNil(), err
	}
	panic(callReturn{depth: ex.callDepth, value: v})
}
