package optimizer

import (
	"quill/internal/ir"
	"quill/internal/object"
)

// writtenSlot reports the slot instr writes to, if any (refslot writes
// don't count — passes that track "known string literal in a slot"
// etc. only ever care about slot invalidation).
func writtenSlot(instr ir.Instr) (int, bool) {
	if instr.Dst.None || instr.Dst.Kind != ir.ArgSlot {
		return 0, false
	}
	return instr.Dst.Index, true
}

// forEachInstr visits every instruction in fn with its absolute index,
// in block order (which is also code order — blocks are contiguous
// windows over Code).
func forEachInstr(fn *ir.UserFunction, visit func(i int, instr *ir.Instr)) {
	for i := range fn.Code {
		visit(i, &fn.Code[i])
	}
}

// noop overwrites instr in place with a side-effect-free placeholder.
// Passes use this instead of physically deleting instructions, since
// Blocks/BlockTrue/BlockFalse/PC all refer to absolute Code indices
// that must stay stable.
func noop(instr *ir.Instr) {
	*instr = ir.Instr{Op: ir.OpMove, Dst: ir.NoWrite(), A: ir.ValueArg(object.Null)}
}
