package graph

import "der/internal/bytecode"

// Visit is called once per reachable node in the traversal order defined
// below, with the node itself and its already-resolved argument nodes, in
// topological order.
type Visit func(n bytecode.Node, resolvedArgs []bytecode.Node)

// Walk performs a read-only, depth-first, left-to-right traversal from the
// program's entry node, visiting each reachable node exactly once — the
// same order the executor evaluates in, but without computing any runtime
// values. It is the interface visualization and other read-only consumers
// use, and it never mutates the program or depends on executor state.
func Walk(p *Program, visit Visit) error {
	if p.Metadata.EntryResultID == 0 {
		return nil
	}
	seen := make(map[uint32]bool)
	return walkFrom(p, p.Metadata.EntryResultID, seen, visit)
}

// WalkFrom traverses starting at an arbitrary node, mirroring
// Executor.ExecuteNode's testing and visualization entry point.
func WalkFrom(p *Program, resultID uint32, visit Visit) error {
	seen := make(map[uint32]bool)
	return walkFrom(p, resultID, seen, visit)
}

func walkFrom(p *Program, resultID uint32, seen map[uint32]bool, visit Visit) error {
	if seen[resultID] {
		return nil
	}
	seen[resultID] = true

	n, ok := p.NodeByID(resultID)
	if !ok {
		return nil
	}

	resolved := make([]bytecode.Node, 0, n.ArgCount)
	if isNodeRefArg(n.Opcode) {
		for i := uint8(0); i < n.ArgCount; i++ {
			argID := n.Args[i]
			if err := walkFrom(p, argID, seen, visit); err != nil {
				return err
			}
			if argNode, ok := p.NodeByID(argID); ok {
				resolved = append(resolved, *argNode)
			}
		}
	}

	visit(*n, resolved)
	return nil
}
