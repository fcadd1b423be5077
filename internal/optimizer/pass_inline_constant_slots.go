package optimizer

import "quill/internal/ir"

// InlineConstantSlots is constant propagation over SSA slots: since
// valid SSA guarantees a slot is written by exactly one instruction,
// and that instruction necessarily dominates every read of it, a slot
// written once by a constant-producing instruction can have every
// later ArgSlot read of it replaced by the constant directly.
func InlineConstantSlots(fn *ir.UserFunction) {
	writeCount := map[int]int{}
	constVal := map[int]ir.Arg{}

	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		slot, ok := writtenSlot(*instr)
		if !ok {
			return
		}
		writeCount[slot]++
		if v, ok := constantProduced(*instr); ok {
			constVal[slot] = v
		} else {
			delete(constVal, slot)
		}
	})

	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		rewriteSlotOperand(&instr.A, writeCount, constVal)
		rewriteSlotOperand(&instr.B, writeCount, constVal)
		rewriteSlotOperand(&instr.C, writeCount, constVal)
		if instr.Call != nil {
			rewriteSlotOperand(&instr.Call.Fn, writeCount, constVal)
			rewriteSlotOperand(&instr.Call.This, writeCount, constVal)
			for i := range instr.Call.Args {
				rewriteSlotOperand(&instr.Call.Args[i], writeCount, constVal)
			}
		}
	})
}

// constantProduced reports the compile-time constant instr writes, if
// it unconditionally writes one.
func constantProduced(instr ir.Instr) (ir.Arg, bool) {
	switch instr.Op {
	case ir.OpAllocIntObject, ir.OpAllocBoolObject, ir.OpAllocFloatObject, ir.OpMove:
		if instr.A.Kind == ir.ArgValue {
			return instr.A, true
		}
	}
	return ir.Arg{}, false
}

func rewriteSlotOperand(a *ir.Arg, writeCount map[int]int, constVal map[int]ir.Arg) {
	if a.Kind != ir.ArgSlot {
		return
	}
	if writeCount[a.Index] != 1 {
		return
	}
	if v, ok := constVal[a.Index]; ok {
		*a = v
	}
}
