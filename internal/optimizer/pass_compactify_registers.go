package optimizer

import "quill/internal/ir"

// CompactifyRegisters renumbers slots down to however many are still
// actually referenced (noop'd instructions from earlier passes leave
// gaps): each referenced old slot gets its own new number, in the order
// first seen (params, this and context first). Slots whose live ranges
// do not overlap are not merged onto one number. It then sets NonSSA.
// This must run last — Phase1/Phase2 both refuse to run anything once
// NonSSA is set.
func CompactifyRegisters(fn *ir.UserFunction) {
	renumber := map[int]int{}
	next := 0

	assign := func(old int) int {
		if new, ok := renumber[old]; ok {
			return new
		}
		new := next
		renumber[old] = new
		next++
		return new
	}

	// params/this/context keep stable low numbers first, so the calling
	// convention's slot assumptions in internal/vm need no changes.
	for i, slot := range fn.ParamSlots {
		fn.ParamSlots[i] = assign(slot)
	}
	if fn.ThisSlot >= 0 {
		fn.ThisSlot = assign(fn.ThisSlot)
	}
	if fn.ContextSlot >= 0 {
		fn.ContextSlot = assign(fn.ContextSlot)
	}

	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		renumberOperand(&instr.A, renumber, assign)
		renumberOperand(&instr.B, renumber, assign)
		renumberOperand(&instr.C, renumber, assign)
		renumberWrite(&instr.Dst, assign)
		if instr.Call != nil {
			renumberOperand(&instr.Call.Fn, renumber, assign)
			renumberOperand(&instr.Call.This, renumber, assign)
			for i := range instr.Call.Args {
				renumberOperand(&instr.Call.Args[i], renumber, assign)
			}
		}
		if instr.Static != nil {
			for i := range instr.Static.Values {
				renumberOperand(&instr.Static.Values[i], renumber, assign)
			}
			for i := range instr.Static.Constraints {
				renumberOperand(&instr.Static.Constraints[i], renumber, assign)
			}
		}
	})

	fn.SlotCount = next
	fn.NonSSA = true
}

func renumberOperand(a *ir.Arg, renumber map[int]int, assign func(int) int) {
	if a.Kind != ir.ArgSlot {
		return
	}
	a.Index = assign(a.Index)
}

func renumberWrite(w *ir.WriteArg, assign func(int) int) {
	if w.None || w.Kind != ir.ArgSlot {
		return
	}
	w.Index = assign(w.Index)
}
