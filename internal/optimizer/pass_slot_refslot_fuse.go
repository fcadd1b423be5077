package optimizer

import "quill/internal/ir"

// SlotRefslotFuse eliminates the MOVE a refslot read/write is often
// shadowed by: when a slot is written exactly once, and that write is a
// plain MOVE from a refslot, every later read of the slot is redirected
// to read the refslot directly and the MOVE becomes dead (left for
// RemoveDeadSlotWrites).
func SlotRefslotFuse(fn *ir.UserFunction) {
	writeCount := map[int]int{}
	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		if slot, ok := writtenSlot(*instr); ok {
			writeCount[slot]++
		}
	})

	fused := map[int]int{} // slot -> refslot
	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		slot, ok := writtenSlot(*instr)
		if !ok {
			return
		}
		if writeCount[slot] != 1 {
			return
		}
		if instr.Op == ir.OpMove && instr.A.Kind == ir.ArgRefslot {
			fused[slot] = instr.A.Index
		}
	})
	if len(fused) == 0 {
		return
	}

	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		rewriteFusedOperand(&instr.A, fused)
		rewriteFusedOperand(&instr.B, fused)
		rewriteFusedOperand(&instr.C, fused)
		if instr.Call != nil {
			rewriteFusedOperand(&instr.Call.Fn, fused)
			rewriteFusedOperand(&instr.Call.This, fused)
			for i := range instr.Call.Args {
				rewriteFusedOperand(&instr.Call.Args[i], fused)
			}
		}
	})
}

func rewriteFusedOperand(a *ir.Arg, fused map[int]int) {
	if a.Kind != ir.ArgSlot {
		return
	}
	if r, ok := fused[a.Index]; ok {
		*a = ir.RefslotArg(r)
	}
}
