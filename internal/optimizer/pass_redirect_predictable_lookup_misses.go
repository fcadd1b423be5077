package optimizer

import "quill/internal/ir"

// RedirectPredictableLookupMisses is simple redundant-load elimination:
// a second ACCESS_STRING_KEY against the same (object slot, key) pair
// within a block, with no intervening write, returns exactly what the
// first lookup returned, so it is rewritten to a MOVE from the first
// lookup's destination. Any ASSIGN/ASSIGN_STRING_KEY, constraint
// change, CLOSE/FREEZE or call drops the whole cache, and reassigning
// an object slot drops that slot's cached results.
func RedirectPredictableLookupMisses(fn *ir.UserFunction) {
	for _, blk := range fn.Blocks {
		type cacheKey struct {
			slot int
			name string
		}
		cache := map[cacheKey]ir.WriteArg{}

		invalidate := func(slot int) {
			for k := range cache {
				if k.slot == slot {
					delete(cache, k)
				}
			}
		}

		for i := blk.Start; i < blk.End; i++ {
			instr := &fn.Code[i]

			switch instr.Op {
			case ir.OpAccessStringKey:
				if instr.A.Kind != ir.ArgSlot {
					break
				}
				ck := cacheKey{instr.A.Index, instr.StringKey}
				if prior, ok := cache[ck]; ok {
					*instr = ir.Instr{Op: ir.OpMove, Dst: instr.Dst, A: argFromWrite(prior)}
				} else if instr.Dst.Kind == ir.ArgSlot && !instr.Dst.None {
					cache[ck] = instr.Dst
				}
				continue

			case ir.OpAssign, ir.OpAssignStringKey, ir.OpSetConstraint, ir.OpSetConstraintStringKey,
				ir.OpCloseObject, ir.OpFreezeObject, ir.OpCall, ir.OpCallFunctionDirect:
				// any of these may mutate an object's properties through
				// paths this pass doesn't track precisely; drop the whole
				// cache rather than risk a stale read.
				cache = map[cacheKey]ir.WriteArg{}
			}

			if slot, ok := writtenSlot(*instr); ok {
				invalidate(slot)
			}
		}
	}
}

// argFromWrite reinterprets a WriteArg as a read Arg of the same slot
// or refslot — valid since both share the same index space.
func argFromWrite(w ir.WriteArg) ir.Arg {
	if w.Kind == ir.ArgRefslot {
		return ir.RefslotArg(w.Index)
	}
	return ir.SlotArg(w.Index)
}
