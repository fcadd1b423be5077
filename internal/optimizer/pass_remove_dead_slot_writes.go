package optimizer

import "quill/internal/ir"

// RemoveDeadSlotWrites turns any write-producing instruction whose slot
// is never read into a no-op, but only when the instruction is pure:
// producers with no effect beyond the write (allocating a primitive
// wrapper, materializing a string/array literal, a bare MOVE) are
// eligible; anything that can affect the rest of the program through
// some channel other than its own result slot — CALL, ASSIGN, a
// property lookup that can trap into user code through an operator
// fallback — keeps running for its side effects even if nothing reads
// what it returns.
func RemoveDeadSlotWrites(fn *ir.UserFunction) {
	read := map[int]bool{}
	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		markRead(&instr.A, read)
		markRead(&instr.B, read)
		markRead(&instr.C, read)
		if instr.Call != nil {
			markRead(&instr.Call.Fn, read)
			markRead(&instr.Call.This, read)
			for i := range instr.Call.Args {
				markRead(&instr.Call.Args[i], read)
			}
		}
		if instr.Static != nil {
			for i := range instr.Static.Values {
				markRead(&instr.Static.Values[i], read)
			}
			for i := range instr.Static.Constraints {
				markRead(&instr.Static.Constraints[i], read)
			}
		}
	})

	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		slot, ok := writtenSlot(*instr)
		if !ok || read[slot] {
			return
		}
		if isPureProducer(instr.Op) {
			noop(instr)
		}
	})
}

func markRead(a *ir.Arg, read map[int]bool) {
	if a.Kind == ir.ArgSlot {
		read[a.Index] = true
	}
}

func isPureProducer(op ir.Op) bool {
	switch op {
	case ir.OpAllocIntObject, ir.OpAllocBoolObject, ir.OpAllocFloatObject,
		ir.OpAllocStringObject, ir.OpAllocArrayObject, ir.OpAllocObject,
		ir.OpMove, ir.OpIdentical, ir.OpInstanceOf, ir.OpTest,
		ir.OpKeyInObj, ir.OpStringKeyInObj:
		return true
	default:
		return false
	}
}
