package vm

import (
	"quill/internal/gc"
	"quill/internal/ir"
	"quill/internal/object"
)

// CallFrame is one activation of a UserFunction: its slot/refslot
// storage, program counter, and the block it is currently executing
// within, per spec §3's "Callframe".
type CallFrame struct {
	Fn    *ir.UserFunction
	Slots []object.Value
	// Refslots holds, per refslot index, the property entry it points
	// into — nil until the corresponding DEFINE_REFSLOT instruction
	// runs. Refslots are only ever taken into CLOSED objects (the
	// optimizer's access_vars_via_refslots pass enforces this), so the
	// entry's address stays valid for the refslot's entire lifetime:
	// CLOSE_OBJECT is what makes the table's backing array stop
	// growing/rehashing.
	Refslots []*object.Entry

	Block     int
	PrevBlock int
	PC        int

	Caller *CallFrame

	roots gc.RootSet
}

func newFrame(fn *ir.UserFunction, caller *CallFrame) *CallFrame {
	return &CallFrame{
		Fn:       fn,
		Slots:    make([]object.Value, fn.SlotCount),
		Refslots: make([]*object.Entry, fn.RefslotCount),
		Caller:   caller,
	}
}
