package optimizer

import "quill/internal/ir"

// AccessVarsViaRefslots finds (object slot, key) pairs accessed or
// reassigned-in-place more than once after the object has been closed
// (CLOSE_OBJECT, or closed by construction as an ALLOC_STATIC_OBJECT
// result) and replaces the repeat accesses with a direct refslot, set
// up by one DEFINE_REFSLOT inserted right after the close point. A
// refslot is only safe once an object is closed: CLOSE_OBJECT stops its
// table from ever growing again, so the entry's address (and therefore
// the refslot pointing at it) stays valid for the object's whole
// lifetime.
//
// Opportunities are found one at a time and the instruction stream is
// rescanned after each rewrite, trading some quadratic-in-rewrites cost
// for never having to reason about overlapping index shifts from more
// than one insertion at a time.
func AccessVarsViaRefslots(fn *ir.UserFunction) {
	for bi := range fn.Blocks {
		for fuseOneRefslot(fn, bi) {
		}
	}
}

type refslotSite struct {
	slot      int
	name      string
	insertAt  int
	instrIdxs []int
}

// fuseOneRefslot finds the first (slot, key) pair in block bi used two
// or more times after its object is closed and converts it to a
// refslot, returning true if it made a change (so the caller rescans).
func fuseOneRefslot(fn *ir.UserFunction, bi int) bool {
	blk := fn.Blocks[bi]
	closedAt := map[int]int{}

	sites := map[string]*refslotSite{}
	order := []string{}

	for i := blk.Start; i < blk.End; i++ {
		instr := fn.Code[i]

		switch instr.Op {
		case ir.OpCloseObject:
			if instr.A.Kind == ir.ArgSlot {
				closedAt[instr.A.Index] = i + 1
			}
		case ir.OpAllocStaticObject:
			if slot, ok := writtenSlot(instr); ok {
				closedAt[slot] = i + 1
			}
		case ir.OpAccessStringKey:
			if instr.A.Kind == ir.ArgSlot {
				if at, ok := closedAt[instr.A.Index]; ok {
					recordSite(sites, &order, instr.A.Index, instr.StringKey, at, i)
				}
			}
		case ir.OpAssignStringKey:
			if instr.Mode == ir.ModeExisting && instr.A.Kind == ir.ArgSlot {
				if at, ok := closedAt[instr.A.Index]; ok {
					recordSite(sites, &order, instr.A.Index, instr.StringKey, at, i)
				}
			}
		}
	}

	for _, k := range order {
		s := sites[k]
		if len(s.instrIdxs) < 2 {
			continue
		}

		r := fn.RefslotCount
		fn.RefslotCount++
		insertInstr(fn, s.insertAt, ir.Instr{
			Op:        ir.OpDefineRefslot,
			Dst:       ir.RefslotWrite(r),
			A:         ir.SlotArg(s.slot),
			StringKey: s.name,
		})

		for _, idx := range s.instrIdxs {
			if idx >= s.insertAt {
				idx++
			}
			instr := &fn.Code[idx]
			switch instr.Op {
			case ir.OpAccessStringKey:
				*instr = ir.Instr{Op: ir.OpMove, Dst: instr.Dst, A: ir.RefslotArg(r)}
			case ir.OpAssignStringKey:
				*instr = ir.Instr{Op: ir.OpMove, Dst: ir.RefslotWrite(r), A: instr.C}
			}
		}
		return true
	}
	return false
}

func recordSite(sites map[string]*refslotSite, order *[]string, slot int, name string, insertAt, instrIdx int) {
	key := name + "\x00" + itoa(slot)
	s, ok := sites[key]
	if !ok {
		s = &refslotSite{slot: slot, name: name, insertAt: insertAt}
		sites[key] = s
		*order = append(*order, key)
	}
	s.instrIdxs = append(s.instrIdxs, instrIdx)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// insertInstr splices instr into fn.Code at position at, shifting
// Blocks/Ranges accordingly. Branch targets (BlockTrue/BlockFalse) name
// block ids, not Code indices, so they need no adjustment.
func insertInstr(fn *ir.UserFunction, at int, instr ir.Instr) {
	code := make([]ir.Instr, 0, len(fn.Code)+1)
	code = append(code, fn.Code[:at]...)
	code = append(code, instr)
	code = append(code, fn.Code[at:]...)
	fn.Code = code

	if at <= len(fn.Ranges) {
		var fr ir.FileRange
		if at > 0 {
			fr = fn.Ranges[at-1]
		}
		ranges := make([]ir.FileRange, 0, len(fn.Ranges)+1)
		ranges = append(ranges, fn.Ranges[:at]...)
		ranges = append(ranges, fr)
		ranges = append(ranges, fn.Ranges[at:]...)
		fn.Ranges = ranges
	}

	for bi := range fn.Blocks {
		b := &fn.Blocks[bi]
		if b.Start >= at {
			b.Start++
		}
		if b.End >= at {
			b.End++
		}
	}
}
