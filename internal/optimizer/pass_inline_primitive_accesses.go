package optimizer

import "quill/internal/ir"

// InlinePrimitiveAccesses folds a string literal materialized by
// ALLOC_STRING_OBJECT straight into the generic instruction that uses
// it as a key, producing the specialized *_STRING_KEY opcode and
// leaving the now-likely-dead ALLOC_STRING_OBJECT for
// RemoveDeadSlotWrites to clean up. This is the cheap, purely local
// pattern match spec §4.G runs at parse time, before any profiling data
// exists to justify the heavier passes.
func InlinePrimitiveAccesses(fn *ir.UserFunction) {
	for _, blk := range fn.Blocks {
		known := map[int]string{}
		for i := blk.Start; i < blk.End; i++ {
			instr := &fn.Code[i]

			switch instr.Op {
			case ir.OpAccess:
				if name, ok := literalKey(known, instr.B); ok {
					*instr = ir.Instr{Op: ir.OpAccessStringKey, Dst: instr.Dst, A: instr.A, StringKey: name}
				}
			case ir.OpAssign:
				if name, ok := literalKey(known, instr.B); ok {
					*instr = ir.Instr{Op: ir.OpAssignStringKey, Mode: instr.Mode, Dst: instr.Dst, A: instr.A, C: instr.C, StringKey: name}
				}
			case ir.OpKeyInObj:
				if name, ok := literalKey(known, instr.B); ok {
					*instr = ir.Instr{Op: ir.OpStringKeyInObj, Dst: instr.Dst, A: instr.A, StringKey: name}
				}
			case ir.OpSetConstraint:
				if name, ok := literalKey(known, instr.B); ok {
					*instr = ir.Instr{Op: ir.OpSetConstraintStringKey, Dst: instr.Dst, A: instr.A, C: instr.C, StringKey: name}
				}
			}

			if instr.Op == ir.OpAllocStringObject {
				if slot, ok := writtenSlot(*instr); ok {
					known[slot] = instr.StringKey
					continue
				}
			}
			if slot, ok := writtenSlot(*instr); ok {
				delete(known, slot)
			}
		}
	}
}

// literalKey reports whether key is a slot read currently holding a
// known string literal.
func literalKey(known map[int]string, key ir.Arg) (string, bool) {
	if key.Kind != ir.ArgSlot {
		return "", false
	}
	name, ok := known[key.Index]
	return name, ok
}
