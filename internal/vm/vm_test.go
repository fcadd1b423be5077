package vm

import (
	"testing"

	"quill/internal/ir"
	"quill/internal/object"
)

// buildAdd builds: fn add(a, b) { return a + b } using the same
// ACCESS_STRING_KEY + CALL shape a real compiler would lower `a + b`
// into (look up the operator property, then call it with the other
// operand).
func buildAdd() *ir.UserFunction {
	b := ir.NewBuilder("add")
	a := b.ReserveParam()
	c := b.ReserveParam()
	opFn := b.NewSlot()
	result := b.NewSlot()
	fr := ir.FileRange{}

	b.AccessStringKey(ir.SlotWrite(opFn), ir.SlotArg(a), "+", fr)
	b.Call(ir.SlotWrite(result), ir.SlotArg(opFn), ir.SlotArg(a), true, []ir.Arg{ir.SlotArg(c)}, fr)
	b.Return(ir.SlotArg(result), fr)
	return b.Finish()
}

func TestInvokeRunsOperatorOverloadThroughBaseLookup(t *testing.T) {
	s := New()
	fn := buildAdd()

	result, err := s.Run(fn, []object.Value{object.Int(3), object.Int(4)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Tag != object.TInt || result.I != 7 {
		t.Fatalf("expected int 7, got %s", result)
	}
}

func TestInvokeArityViolation(t *testing.T) {
	s := New()
	fn := buildAdd()

	_, err := s.Run(fn, []object.Value{object.Int(1)})
	if err == nil {
		t.Fatal("expected an arity violation error")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindArity {
		t.Fatalf("expected KindArity, got %v", err)
	}
}

// buildObjectRoundtrip builds a function that allocates an object,
// assigns a property on it via PLAIN mode, then reads it back.
func buildObjectRoundtrip() *ir.UserFunction {
	b := ir.NewBuilder("roundtrip")
	obj := b.NewSlot()
	val := b.NewSlot()
	out := b.NewSlot()
	fr := ir.FileRange{}

	b.AllocObject(ir.SlotWrite(obj), ir.ValueArg(object.Null), fr)
	b.AllocPrimitive(ir.OpAllocIntObject, ir.SlotWrite(val), ir.ValueArg(object.Int(42)), fr)
	b.AssignStringKey(ir.ModePlain, ir.SlotArg(obj), "answer", ir.SlotArg(val), fr)
	b.AccessStringKey(ir.SlotWrite(out), ir.SlotArg(obj), "answer", fr)
	b.Return(ir.SlotArg(out), fr)
	return b.Finish()
}

func TestObjectAssignAndAccessRoundtrip(t *testing.T) {
	s := New()
	fn := buildObjectRoundtrip()

	result, err := s.Run(fn, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Tag != object.TInt || result.I != 42 {
		t.Fatalf("expected int 42, got %s", result)
	}
}

func TestMissingPropertyIsAnError(t *testing.T) {
	b := ir.NewBuilder("missing")
	obj := b.NewSlot()
	out := b.NewSlot()
	fr := ir.FileRange{}
	b.AllocObject(ir.SlotWrite(obj), ir.ValueArg(object.Null), fr)
	b.AccessStringKey(ir.SlotWrite(out), ir.SlotArg(obj), "nope", fr)
	b.Return(ir.SlotArg(out), fr)
	fn := b.Finish()

	s := New()
	_, err := s.Run(fn, nil)
	if err == nil {
		t.Fatal("expected a missing-property error")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindMissingProp {
		t.Fatalf("expected KindMissingProp, got %v", err)
	}
}
