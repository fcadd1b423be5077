package optimizer

import (
	"quill/internal/ir"
	"quill/internal/object"
)

// FuseStaticObjectAlloc recognizes the allocate-then-populate-then-close
// idiom the parser emits for every object literal — ALLOC_OBJECT
// followed by a contiguous run of plain ASSIGN_STRING_KEY instructions
// against that same slot, optionally followed by SET_CONSTRAINT_STRING_KEY
// calls and a CLOSE_OBJECT/FREEZE_OBJECT — and fuses the whole run into
// a single ALLOC_STATIC_OBJECT carrying a StaticTemplate, so the object
// and its now-permanently-closed table are built in one allocation
// instead of growing incrementally.
func FuseStaticObjectAlloc(fn *ir.UserFunction) {
	for bi := range fn.Blocks {
		blk := fn.Blocks[bi]
		i := blk.Start
		for i < blk.End {
			instr := fn.Code[i]
			if instr.Op != ir.OpAllocObject {
				i++
				continue
			}
			slot, ok := writtenSlot(instr)
			if !ok {
				i++
				continue
			}
			parent := instr.A

			tmpl := &ir.StaticTemplate{}
			fieldIdx := map[string]int{}
			j := i + 1
			closed, frozen := false, false

		run:
			for j < blk.End {
				c := fn.Code[j]
				switch {
				case c.Op == ir.OpAssignStringKey && c.Mode == ir.ModePlain && c.A.Kind == ir.ArgSlot && c.A.Index == slot:
					idx, seen := fieldIdx[c.StringKey]
					if !seen {
						idx = len(tmpl.Keys)
						tmpl.Keys = append(tmpl.Keys, c.StringKey)
						tmpl.Constraints = append(tmpl.Constraints, ir.ValueArg(object.Null))
						tmpl.Refslots = append(tmpl.Refslots, -1)
						fieldIdx[c.StringKey] = idx
						tmpl.Values = append(tmpl.Values, c.C)
					} else {
						tmpl.Values[idx] = c.C
					}
					j++
				case c.Op == ir.OpSetConstraintStringKey && c.A.Kind == ir.ArgSlot && c.A.Index == slot:
					if idx, seen := fieldIdx[c.StringKey]; seen {
						tmpl.Constraints[idx] = c.C
					}
					j++
				case c.Op == ir.OpCloseObject && c.A.Kind == ir.ArgSlot && c.A.Index == slot:
					closed = true
					j++
					break run
				case c.Op == ir.OpFreezeObject && c.A.Kind == ir.ArgSlot && c.A.Index == slot:
					closed = true
					frozen = true
					j++
					break run
				default:
					break run
				}
			}

			if !closed || len(tmpl.Keys) == 0 {
				i++
				continue
			}
			tmpl.Freeze = frozen

			for k := i; k < j; k++ {
				noop(&fn.Code[k])
			}
			fn.Code[i] = ir.Instr{Op: ir.OpAllocStaticObject, Dst: ir.SlotWrite(slot), A: parent, Static: tmpl}
			i = j
		}
	}
}
