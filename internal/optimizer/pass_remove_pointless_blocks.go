package optimizer

import "quill/internal/ir"

// RemovePointlessBlocks collapses a block whose entire body is a single
// unconditional BR into its target, redirecting every branch/phi that
// pointed at the eliminated block straight to where it actually goes.
// A block that some PHI names as an incoming edge is kept, since
// execution must still arrive at the PHI from it.
// Block ids (not Code indices) are the unit of reference here, so the
// rewrite never has to touch Code layout — only the BlockTrue/
// BlockFalse fields of BR/TESTBR terminators and PHI's block-id side
// channel.
func RemovePointlessBlocks(fn *ir.UserFunction) {
	phiSrc := map[int]bool{}
	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		if instr.Op == ir.OpPhi && instr.Static != nil {
			for _, b := range instr.Static.Refslots {
				phiSrc[b] = true
			}
		}
	})
	redirect := map[int]int{}
	for bid, blk := range fn.Blocks {
		if bid == 0 {
			continue // entry block is always reachable by id 0; never retarget it away
		}
		if blk.End-blk.Start != 1 || phiSrc[bid] {
			continue
		}
		term := fn.Code[blk.Start]
		if term.Op == ir.OpBr {
			redirect[bid] = term.BlockTrue
		}
	}
	if len(redirect) == 0 {
		return
	}

	resolve := func(b int) int {
		seen := map[int]bool{}
		for {
			target, ok := redirect[b]
			if !ok || seen[b] {
				return b
			}
			seen[b] = true
			b = target
		}
	}

	forEachInstr(fn, func(_ int, instr *ir.Instr) {
		switch instr.Op {
		case ir.OpBr:
			instr.BlockTrue = resolve(instr.BlockTrue)
		case ir.OpTestBr:
			instr.BlockTrue = resolve(instr.BlockTrue)
			instr.BlockFalse = resolve(instr.BlockFalse)
		case ir.OpPhi:
			if instr.Static != nil {
				for i, b := range instr.Static.Refslots {
					instr.Static.Refslots[i] = resolve(b)
				}
			}
		}
	})
}
