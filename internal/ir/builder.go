package ir

// Builder assembles a UserFunction one instruction at a time, the way
// the parser's lowering pass does. It tracks the current block so a
// terminator (RETURN/BR/TESTBR) automatically closes the block it ends.
//
// The SSA invariant promised by the builder's output (spec §4.E) is:
// every slot is written by at most one instruction, and every block
// ends with exactly one terminator as its last instruction. Builder
// closes a block at every terminator (startBlock begins a fresh window
// right after one), but Label also closes a non-empty block that has no
// terminator, so the second property holds only where the lowering ends
// each block itself; Verify (verify.go) checks the first for tests and
// for the optimizer's own sanity checks.
type Builder struct {
	fn           *UserFunction
	blockStart   int
	sawTerminator bool
}

// NewBuilder starts building a function named name.
func NewBuilder(name string) *Builder {
	b := &Builder{fn: &UserFunction{Name: name, ThisSlot: -1, ContextSlot: -1}}
	return b
}

// ReserveThis allocates (and records) the slot setup_call populates with
// the receiver for a method function.
func (b *Builder) ReserveThis() int {
	s := b.NewSlot()
	b.fn.ThisSlot = s
	b.fn.IsMethod = true
	return s
}

// ReserveContext allocates (and records) the slot setup_call populates
// with a closure's captured context object.
func (b *Builder) ReserveContext() int {
	s := b.NewSlot()
	b.fn.ContextSlot = s
	return s
}

// ReserveParam allocates the next positional parameter's slot, in
// declaration order, and bumps Arity to match.
func (b *Builder) ReserveParam() int {
	s := b.NewSlot()
	b.fn.ParamSlots = append(b.fn.ParamSlots, s)
	b.fn.Arity = len(b.fn.ParamSlots)
	return s
}

// NewSlot allocates a fresh slot index.
func (b *Builder) NewSlot() int {
	i := b.fn.SlotCount
	b.fn.SlotCount++
	return i
}

// NewRefslot allocates a fresh refslot index.
func (b *Builder) NewRefslot() int {
	i := b.fn.RefslotCount
	b.fn.RefslotCount++
	return i
}

// CurrentBlock returns the id of the block currently being filled.
func (b *Builder) CurrentBlock() int { return len(b.fn.Blocks) }

// Terminated reports whether the instruction most recently emitted in
// the block currently being filled was RETURN/BR/TESTBR — the parser's
// if/loop lowering uses this to tell whether a branch arm falls through
// to a join block or has already left some other way.
func (b *Builder) Terminated() bool { return b.sawTerminator }

// LastInstrIndex is the absolute Code index of the instruction most
// recently emitted, for patching a BR this builder just emitted once
// its target block is known.
func (b *Builder) LastInstrIndex() int { return len(b.fn.Code) - 1 }

// ContextSlotReserved reports whether ReserveContext has already been
// called for this function.
func (b *Builder) ContextSlotReserved() bool { return b.fn.ContextSlot >= 0 }

// ExistingContextSlot returns the slot ReserveContext allocated; only
// valid once ContextSlotReserved is true.
func (b *Builder) ExistingContextSlot() int { return b.fn.ContextSlot }

// SetVariadic marks the function as accepting a variadic tail on its
// last declared parameter (bound as an array by setup_call).
func (b *Builder) SetVariadic(v bool) { b.fn.Variadic = v }

// emit appends instr at the given source range and returns its
// absolute index in Code.
func (b *Builder) emit(instr Instr, fr FileRange) int {
	if b.sawTerminator {
		b.startBlock()
	}
	idx := len(b.fn.Code)
	b.fn.Code = append(b.fn.Code, instr)
	b.fn.Ranges = append(b.fn.Ranges, fr)
	switch instr.Op {
	case OpReturn, OpBr, OpTestBr:
		b.sawTerminator = true
	}
	return idx
}

// startBlock closes the block in progress (recording its end as the
// current code length) and opens a new one.
func (b *Builder) startBlock() {
	b.fn.Blocks = append(b.fn.Blocks, Block{Start: b.blockStart, End: len(b.fn.Code)})
	b.blockStart = len(b.fn.Code)
	b.sawTerminator = false
}

// Label reserves the next block boundary without requiring a preceding
// terminator — used for jump targets that fall through from the
// previous block (e.g. the head of a loop).
func (b *Builder) Label() int {
	if b.blockStart != len(b.fn.Code) {
		b.startBlock()
	}
	return b.CurrentBlock()
}

// --- instruction constructors -------------------------------------------------

func (b *Builder) AllocObject(dst WriteArg, parent Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpAllocObject, Dst: dst, A: parent}, fr)
}

func (b *Builder) AllocPrimitive(op Op, dst WriteArg, value Arg, fr FileRange) int {
	return b.emit(Instr{Op: op, Dst: dst, A: value}, fr)
}

func (b *Builder) AllocClosure(dst WriteArg, proto *UserFunction, context Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpAllocClosureObject, Dst: dst, A: context, DirectTarget: proto}, fr)
}

// AllocStringObject allocates a heap string object from a literal. Go's
// object.Value has no string tag of its own (per spec §3, strings live
// in the heap like any other object), so the literal payload rides
// along in StringKey rather than in an Arg.
func (b *Builder) AllocStringObject(dst WriteArg, literal string, fr FileRange) int {
	return b.emit(Instr{Op: OpAllocStringObject, Dst: dst, StringKey: literal}, fr)
}

// AllocArray allocates an array object from element operands, carried
// in Call.Args (reusing the CallInfo slot rather than adding a
// dedicated variable-length field to Instr).
func (b *Builder) AllocArray(dst WriteArg, elems []Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpAllocArrayObject, Dst: dst, Call: &CallInfo{Args: elems}}, fr)
}

// AllocStatic allocates and populates a CLOSED object from tmpl in one
// step (the fuse_static_object_alloc optimizer pass's output shape);
// parent is the prototype the new object inherits from.
func (b *Builder) AllocStatic(dst WriteArg, parent Arg, tmpl *StaticTemplate, fr FileRange) int {
	return b.emit(Instr{Op: OpAllocStaticObject, Dst: dst, A: parent, Static: tmpl}, fr)
}

// Access emits ACCESS R(dst) = R(obj)[R(key)].
func (b *Builder) Access(dst WriteArg, obj, key Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpAccess, Dst: dst, A: obj, B: key}, fr)
}

func (b *Builder) AccessStringKey(dst WriteArg, obj Arg, key string, fr FileRange) int {
	return b.emit(Instr{Op: OpAccessStringKey, Dst: dst, A: obj, StringKey: key}, fr)
}

// Assign emits ASSIGN obj[key] = value under the given mode (§4.C).
func (b *Builder) Assign(mode AssignMode, obj, key, value Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpAssign, Mode: mode, A: obj, B: key, C: value, Dst: NoWrite()}, fr)
}

func (b *Builder) AssignStringKey(mode AssignMode, obj Arg, key string, value Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpAssignStringKey, Mode: mode, A: obj, C: value, StringKey: key, Dst: NoWrite()}, fr)
}

func (b *Builder) KeyInObj(dst WriteArg, obj, key Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpKeyInObj, Dst: dst, A: obj, B: key}, fr)
}

func (b *Builder) SetConstraint(obj, key, constraint Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpSetConstraint, A: obj, B: key, C: constraint, Dst: NoWrite()}, fr)
}

func (b *Builder) CloseObject(obj Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpCloseObject, A: obj, Dst: NoWrite()}, fr)
}

func (b *Builder) FreezeObject(obj Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpFreezeObject, A: obj, Dst: NoWrite()}, fr)
}

func (b *Builder) Identical(dst WriteArg, a, c Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpIdentical, Dst: dst, A: a, B: c}, fr)
}

func (b *Builder) InstanceOf(dst WriteArg, a, proto Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpInstanceOf, Dst: dst, A: a, B: proto}, fr)
}

func (b *Builder) Test(dst WriteArg, v Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpTest, Dst: dst, A: v}, fr)
}

func (b *Builder) Return(v Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpReturn, A: v, Dst: NoWrite()}, fr)
}

// Br's target is patched after the destination block id is known; the
// caller passes -1 and later calls Patch.
func (b *Builder) Br(target int, fr FileRange) int {
	return b.emit(Instr{Op: OpBr, BlockTrue: target, Dst: NoWrite()}, fr)
}

func (b *Builder) TestBr(cond Arg, whenTrue, whenFalse int, fr FileRange) int {
	return b.emit(Instr{Op: OpTestBr, A: cond, BlockTrue: whenTrue, BlockFalse: whenFalse, Dst: NoWrite()}, fr)
}

func (b *Builder) Patch(instrIdx int, whenTrue, whenFalse int) {
	instr := &b.fn.Code[instrIdx]
	instr.BlockTrue = whenTrue
	if whenFalse >= 0 {
		instr.BlockFalse = whenFalse
	}
}

// Phi reads the value corresponding to the block execution actually
// arrived from; incoming maps block id -> Arg. A PHI with a single
// incoming value is read as a plain copy whichever block execution
// arrived from.
func (b *Builder) Phi(dst WriteArg, incoming map[int]Arg, fr FileRange) int {
	// Instr can't hold a map directly without losing the fixed-field
	// shape the rest of the package relies on, so the incoming Args go
	// in Call.Args and their block ids in a parallel slice carried in
	// Static.Refslots.
	ci := &CallInfo{}
	blocks := make([]int, 0, len(incoming))
	for blk := range incoming {
		blocks = append(blocks, blk)
	}
	// deterministic order for reproducible dumps
	for i := 0; i < len(blocks); i++ {
		for j := i + 1; j < len(blocks); j++ {
			if blocks[j] < blocks[i] {
				blocks[i], blocks[j] = blocks[j], blocks[i]
			}
		}
	}
	for _, blk := range blocks {
		ci.Args = append(ci.Args, incoming[blk])
	}
	instr := Instr{Op: OpPhi, Dst: dst, Call: ci}
	instr.Static = &StaticTemplate{} // reused purely to carry the block-id list
	instr.Static.Refslots = blocks
	return b.emit(instr, fr)
}

// PhiIncoming extracts a PHI instruction's (block id -> Arg) mapping.
func PhiIncoming(instr Instr) map[int]Arg {
	out := make(map[int]Arg, len(instr.Call.Args))
	for i, blk := range instr.Static.Refslots {
		out[blk] = instr.Call.Args[i]
	}
	return out
}

// PatchPhi adds or overwrites the incoming value for predecessor block
// blk on an already-emitted PHI instruction. Loop headers need this:
// the back-edge's value is only known once the loop body has been
// lowered, well after the header PHI itself had to be emitted so the
// body could reference it.
func (b *Builder) PatchPhi(instrIdx int, blk int, val Arg) {
	instr := &b.fn.Code[instrIdx]
	for i, bb := range instr.Static.Refslots {
		if bb == blk {
			instr.Call.Args[i] = val
			return
		}
	}
	instr.Static.Refslots = append(instr.Static.Refslots, blk)
	instr.Call.Args = append(instr.Call.Args, val)
}

func (b *Builder) Call(dst WriteArg, fn Arg, this Arg, hasThis bool, args []Arg, fr FileRange) int {
	return b.emit(Instr{Op: OpCall, Dst: dst, Call: &CallInfo{Fn: fn, This: this, HasThis: hasThis, Args: args}}, fr)
}

// Move emits MOVE dst = src (an optimizer-only opcode, but exposed here
// so the optimizer package can build replacement instructions).
func Move(dst WriteArg, src Arg, fr FileRange) Instr {
	return Instr{Op: OpMove, Dst: dst, A: src}
}

// DefineRefslot emits DEFINE_REFSLOT refslot = ref-into(obj, key).
func DefineRefslot(refslot int, obj Arg, key string, fr FileRange) Instr {
	return Instr{Op: OpDefineRefslot, Dst: RefslotWrite(refslot), A: obj, StringKey: key}
}

// Finish finalizes the function: if the last block never saw an
// explicit terminator-triggered close (shouldn't happen for
// well-formed input, but Finish is defensive), it closes the trailing
// window.
func (b *Builder) Finish() *UserFunction {
	if b.blockStart != len(b.fn.Code) || len(b.fn.Blocks) == 0 {
		b.startBlock()
	}
	return b.fn
}
