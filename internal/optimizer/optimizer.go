// Package optimizer implements the two-phase optimization pipeline of
// spec §4.G: a light phase-1 pass run once at parse time, and a fuller
// phase-2 pipeline triggered the moment a function crosses the hot-call
// threshold (internal/ir.HotCallThreshold), run by internal/vm.
package optimizer

import "quill/internal/ir"

// Phase1 runs the two passes cheap enough to apply to every function as
// soon as it is built, before it has executed even once.
func Phase1(fn *ir.UserFunction) {
	if fn.NonSSA {
		return
	}
	InlinePrimitiveAccesses(fn)
	RedirectPredictableLookupMisses(fn)
	fn.Opt = ir.OptPhase1
}

// Phase2 runs the full pipeline twice (the second pass cleans up
// opportunities the first pass's rewrites exposed — e.g. a slot that
// inline_constant_slots folded away can make remove_dead_slot_writes
// apply somewhere it couldn't before), with inline_constant_slots
// additionally run between the two passes, and compactify_registers
// last, per spec §4.G. compactify_registers breaks SSA, so it must
// never run before everything else that assumes single-assignment form.
func Phase2(fn *ir.UserFunction) {
	if fn.NonSSA {
		return
	}
	if fn.Opt < ir.OptPhase1 {
		Phase1(fn)
	}

	runFullPipeline(fn)
	InlineConstantSlots(fn)
	runFullPipeline(fn)

	CompactifyRegisters(fn)
	fn.Opt = ir.OptPhase2
}

func runFullPipeline(fn *ir.UserFunction) {
	InlinePrimitiveAccesses(fn)
	RedirectPredictableLookupMisses(fn)
	InlineStaticLookupsToConstants(fn)
	AccessVarsViaRefslots(fn)
	InlineConstantSlots(fn)
	SlotRefslotFuse(fn)
	FuseStaticObjectAlloc(fn)
	CallFunctionsDirectly(fn)
	RemoveDeadSlotWrites(fn)
	RemovePointlessBlocks(fn)
}
