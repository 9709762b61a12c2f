package exec

import (
	derrors "der/internal/errors"
	"der/internal/graph"

	"der/internal/bytecode"
)

// requireCapability enforces the capability gate: I/O opcodes only
// run if the program's metadata declares the matching bit. Print/Read are
// gated under UI (console I/O); the File* opcodes under FileSystem.
func (ex *Executor) requireCapability(op bytecode.OpCode, resultID uint32, cap graph.Capability) error {
	if ex.program.Metadata.Capabilities.Has(cap) {
		return nil
	}
	return derrors.New(derrors.CapabilityDenied, "capability not granted").
		WithResultID(resultID).WithOpcode(op.String())
}
