package optimizer

import "quill/internal/ir"

// InlineStaticLookupsToConstants tracks slots holding the result of an
// ALLOC_STATIC_OBJECT (CLOSED by construction, so its key set can never
// grow) together with the compile-time-constant values its template
// bound each key to. A later ACCESS_STRING_KEY against such a slot for
// a key whose template value was itself a constant is rewritten to a
// MOVE of that constant, skipping the table lookup entirely.
func InlineStaticLookupsToConstants(fn *ir.UserFunction) {
	for _, blk := range fn.Blocks {
		consts := map[int]map[string]ir.Arg{}

		for i := blk.Start; i < blk.End; i++ {
			instr := &fn.Code[i]

			if instr.Op == ir.OpAllocStaticObject {
				if slot, ok := writtenSlot(*instr); ok {
					byKey := map[string]ir.Arg{}
					for idx, key := range instr.Static.Keys {
						if v := instr.Static.Values[idx]; v.Kind == ir.ArgValue {
							byKey[key] = v
						}
					}
					consts[slot] = byKey
					continue
				}
			}

			if instr.Op == ir.OpAccessStringKey && instr.A.Kind == ir.ArgSlot {
				if byKey, ok := consts[instr.A.Index]; ok {
					if v, ok := byKey[instr.StringKey]; ok {
						*instr = ir.Instr{Op: ir.OpMove, Dst: instr.Dst, A: v}
						continue
					}
				}
			}

			if slot, ok := writtenSlot(*instr); ok {
				delete(consts, slot)
			}
		}
	}
}
