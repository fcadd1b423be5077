package ir

import (
	"testing"

	"quill/internal/object"
)

func TestBuilderSimpleFunctionVerifies(t *testing.T) {
	b := NewBuilder("main")
	s0 := b.NewSlot()
	s1 := b.NewSlot()
	fr := FileRange{File: "t.ql", Line: 1}
	b.AllocPrimitive(OpAllocIntObject, SlotWrite(s0), ValueArg(object.Int(1)), fr)
	b.AllocPrimitive(OpAllocIntObject, SlotWrite(s1), ValueArg(object.Int(2)), fr)
	b.Return(SlotArg(s0), fr)
	fn := b.Finish()

	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(fn.Blocks))
	}
	if err := Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyCatchesDoubleWrite(t *testing.T) {
	b := NewBuilder("bad")
	s0 := b.NewSlot()
	fr := FileRange{}
	b.AllocPrimitive(OpAllocIntObject, SlotWrite(s0), ValueArg(object.Int(1)), fr)
	b.AllocPrimitive(OpAllocIntObject, SlotWrite(s0), ValueArg(object.Int(2)), fr)
	b.Return(SlotArg(s0), fr)
	fn := b.Finish()

	if err := Verify(fn); err == nil {
		t.Fatal("expected SSA violation error, got nil")
	}
}

func TestBranchingBlocks(t *testing.T) {
	b := NewBuilder("branch")
	cond := b.NewSlot()
	result := b.NewSlot()
	fr := FileRange{}
	b.AllocPrimitive(OpAllocBoolObject, SlotWrite(cond), ValueArg(object.Bool(true)), fr)
	testReg := b.NewSlot()
	b.Test(SlotWrite(testReg), SlotArg(cond), fr)
	trIdx := b.TestBr(SlotArg(testReg), -1, -1, fr)

	thenBlock := b.Label()
	b.AllocPrimitive(OpAllocIntObject, SlotWrite(result), ValueArg(object.Int(1)), fr)
	brIdx := b.Br(-1, fr)

	elseBlock := b.Label()
	b.AllocPrimitive(OpAllocIntObject, SlotWrite(result), ValueArg(object.Int(2)), fr)
	b.Return(SlotArg(result), fr)

	// NOTE: result is written in both branches; that's fine for SSA
	// since only one branch executes, but our single-assignment check
	// is purely syntactic, so this function is expected to be rejected
	// by Verify unless compiled through actual phi-joining. Here we
	// only check block wiring, not call Verify on this one.
	b.Patch(trIdx, thenBlock, elseBlock)
	b.Patch(brIdx, elseBlock, -1)

	fn := b.Finish()
	if len(fn.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(fn.Blocks))
	}
	if fn.Code[trIdx].BlockTrue != thenBlock || fn.Code[trIdx].BlockFalse != elseBlock {
		t.Fatalf("testbr targets not patched correctly")
	}
}
