package exec

import "time"

// Limits bounds a single execute() call. Zero-value fields mean "no bound"
// except MaxLoopIterations and MaxCallDepth, which always apply and fall
// back to their own mandatory defaults when zero.
type Limits struct {
	// MaxLoopIterations bounds a single Loop node's iteration count.
	// Exceeding it raises LoopBudgetExceeded. Default 10^6.
	MaxLoopIterations int
	// MaxNodeBudget bounds the total number of node evaluations across
	// the whole execute() call. Zero means unlimited. Exceeding it raises
	// NodeBudgetExceeded.
	MaxNodeBudget int
	// MaxCallDepth bounds Call nesting. Exceeding it raises StackOverflow.
	// Default DefaultMaxCallDepth.
	MaxCallDepth int
	// Deadline, if non-zero, is a wall-clock time after which execution
	// halts with DeadlineExceeded. Zero means no deadline.
	Deadline time.Time
}

// DefaultLimits returns a million loop iterations, the default call-depth
// bound, and no node budget or deadline.
func DefaultLimits() Limits {
	return Limits{
		MaxLoopIterations: 1_000_000,
		MaxCallDepth:      DefaultMaxCallDepth,
	}
}
