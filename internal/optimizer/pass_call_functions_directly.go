package optimizer

import "quill/internal/ir"

// CallFunctionsDirectly tracks slots holding the result of an
// ALLOC_CLOSURE_OBJECT along with the UserFunction it was built from; a
// later CALL whose callee operand is such a slot (with no intervening
// reassignment) is rewritten to CALL_FUNCTION_DIRECT with DirectTarget
// set. The callee operand (Call.Fn) is deliberately left untouched:
// internal/vm still evaluates it at the direct call site, purely to
// recover the closure's captured context object, since DirectTarget
// only proves *which function* runs, not what it closed over.
func CallFunctionsDirectly(fn *ir.UserFunction) {
	for _, blk := range fn.Blocks {
		known := map[int]*ir.UserFunction{}

		for i := blk.Start; i < blk.End; i++ {
			instr := &fn.Code[i]

			if instr.Op == ir.OpCall && instr.Call.Fn.Kind == ir.ArgSlot {
				if target, ok := known[instr.Call.Fn.Index]; ok {
					instr.Op = ir.OpCallFunctionDirect
					instr.DirectTarget = target
				}
			}

			if instr.Op == ir.OpAllocClosureObject && instr.DirectTarget != nil {
				if slot, ok := writtenSlot(*instr); ok {
					known[slot] = instr.DirectTarget
					continue
				}
			}
			if slot, ok := writtenSlot(*instr); ok {
				delete(known, slot)
			}
		}
	}
}
