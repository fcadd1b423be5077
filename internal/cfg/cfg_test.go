package cfg

import (
	"testing"

	"quill/internal/ir"
	"quill/internal/object"
)

// buildDiamond builds: block0 testbr -> block1, block2; both br -> block3; block3 returns.
func buildDiamond() *ir.UserFunction {
	b := ir.NewBuilder("diamond")
	cond := b.NewSlot()
	result := b.NewSlot()
	fr := ir.FileRange{}
	b.AllocPrimitive(ir.OpAllocBoolObject, ir.SlotWrite(cond), ir.ValueArg(object.Bool(true)), fr)
	tb := b.TestBr(ir.SlotArg(cond), -1, -1, fr)

	thenBlk := b.Label()
	b.AllocPrimitive(ir.OpAllocIntObject, ir.SlotWrite(result), ir.ValueArg(object.Int(1)), fr)
	brThen := b.Br(-1, fr)

	elseBlk := b.Label()
	b.AllocPrimitive(ir.OpAllocIntObject, ir.SlotWrite(result), ir.ValueArg(object.Int(2)), fr)
	brElse := b.Br(-1, fr)

	joinBlk := b.Label()
	b.Return(ir.SlotArg(result), fr)

	b.Patch(tb, thenBlk, elseBlk)
	b.Patch(brThen, joinBlk, -1)
	b.Patch(brElse, joinBlk, -1)

	return b.Finish()
}

func TestDominatorsDiamond(t *testing.T) {
	fn := buildDiamond()
	g := Build(fn)

	if g.IDom(1) != 0 || g.IDom(2) != 0 {
		t.Fatalf("then/else should be dominated by entry: idom(1)=%d idom(2)=%d", g.IDom(1), g.IDom(2))
	}
	if g.IDom(3) != 0 {
		t.Fatalf("join block should be dominated by entry (diamond merge), got idom(3)=%d", g.IDom(3))
	}
	if !g.Dominates(0, 3) {
		t.Fatal("entry should dominate join block")
	}
	if g.Dominates(1, 2) {
		t.Fatal("then-branch should not dominate else-branch")
	}
}

func TestRPOIsValidTopologicalOrderForDAG(t *testing.T) {
	fn := buildDiamond()
	g := Build(fn)
	if g.RPOIndex[0] != 0 {
		t.Fatalf("entry block should be first in RPO, got index %d", g.RPOIndex[0])
	}
	// the diamond has no back-edges, so every edge must go forward in RPO
	for from, succs := range g.Succ {
		for _, to := range succs {
			if g.RPOIndex[from] >= g.RPOIndex[to] {
				t.Fatalf("edge %d->%d goes backwards in RPO (%d >= %d)", from, to, g.RPOIndex[from], g.RPOIndex[to])
			}
		}
	}
}
