// Package ir defines the SSA instruction stream that the parser lowers
// source into (spec §4.E) and that internal/optimizer rewrites. Go has
// no function pointers embedded in data the way the original C VM
// caches a dispatch handler per instruction, so Instr is a plain tagged
// record and internal/vm dispatches on Op with a switch — the "cache"
// the spec describes is instead the Hot/specialized Op variants that
// the optimizer substitutes in place (ACCESS -> ACCESS_STRING_KEY, etc).
package ir

import "quill/internal/object"

// Op is the instruction opcode, grouped as in spec §4.E.
type Op uint8

const (
	OpAllocObject Op = iota
	OpAllocIntObject
	OpAllocBoolObject
	OpAllocFloatObject
	OpAllocStringObject
	OpAllocArrayObject
	OpAllocClosureObject
	OpAllocStaticObject

	OpAccess
	OpAssign
	OpKeyInObj
	OpSetConstraint
	OpCloseObject
	OpFreezeObject

	OpIdentical
	OpInstanceOf
	OpTest

	OpBr
	OpTestBr
	OpReturn
	OpPhi

	OpCall

	// Specialized opcodes, produced by internal/optimizer; the parser's
	// lowering also emits ACCESS_STRING_KEY and ASSIGN_STRING_KEY itself.
	OpAccessStringKey
	OpAssignStringKey
	OpStringKeyInObj
	OpSetConstraintStringKey
	OpDefineRefslot
	OpMove
	OpCallFunctionDirect
)

// AssignMode selects the three assignment semantics of §4.C.
type AssignMode uint8

const (
	ModePlain AssignMode = iota
	ModeExisting
	ModeShadowing
)

// ArgKind tags how an Arg's payload is interpreted.
type ArgKind uint8

const (
	ArgSlot ArgKind = iota
	ArgRefslot
	ArgValue
)

// Arg is an instruction operand: a small index into the frame's slot or
// refslot array, or an inlined immediate Value.
type Arg struct {
	Kind  ArgKind
	Index int
	Value object.Value
}

func SlotArg(i int) Arg          { return Arg{Kind: ArgSlot, Index: i} }
func RefslotArg(i int) Arg       { return Arg{Kind: ArgRefslot, Index: i} }
func ValueArg(v object.Value) Arg { return Arg{Kind: ArgValue, Value: v} }

// WriteArg is a write-destination: same two reference kinds as Arg
// (refslot writes go through the entry's value pointer), values make no
// sense as a destination so are omitted.
type WriteArg struct {
	Kind  ArgKind // ArgSlot or ArgRefslot; ArgValue is invalid here
	Index int
	None  bool // true for instructions that produce no result (RETURN, BR, ...)
}

func SlotWrite(i int) WriteArg    { return WriteArg{Kind: ArgSlot, Index: i} }
func RefslotWrite(i int) WriteArg { return WriteArg{Kind: ArgRefslot, Index: i} }
func NoWrite() WriteArg           { return WriteArg{None: true} }

// FileRange is source provenance for one instruction, recorded parallel
// to the instruction buffer for diagnostics and per-range profiling.
type FileRange struct {
	File      string
	Line, Col int
}

// CallInfo carries a CALL's receiver/callee/argument operands in one
// place, as the original jerboa does (spec §3, "Arg fn; Arg this_arg").
type CallInfo struct {
	Fn      Arg
	This    Arg
	Args    []Arg
	HasThis bool
}

// StaticTemplate is the pre-built table template embedded in an
// ALLOC_STATIC_OBJECT instruction by the fuse_static_object_alloc pass:
// every key/constraint/value/refslot the object will ever hold is known
// ahead of time, so the object and its (now permanently CLOSED) table
// can be allocated and populated in one step.
type StaticTemplate struct {
	Keys        []string
	Constraints []Arg // ArgValue{Null} means "no constraint" for field i
	Values      []Arg
	Refslots    []int // refslot index to DEFINE_REFSLOT for field i, -1 if none requested
	Freeze      bool
}

// Instr is one IR instruction. Not every field is meaningful for every
// Op; see the comments on each Op's constructor in builder.go.
type Instr struct {
	Op   Op
	Mode AssignMode
	Dst  WriteArg

	A, B, C Arg // generic operands; meaning is Op-specific (see builder.go)

	StringKey string // for *_STRING_KEY opcodes: the inlined literal key

	BlockTrue, BlockFalse int // BR: BlockTrue only; TESTBR: both

	Call *CallInfo

	Static *StaticTemplate

	// DirectTarget is the statically-known callee for
	// CALL_FUNCTION_DIRECT, set by the call_functions_directly pass.
	DirectTarget *UserFunction
}

// Block is a (start, end) window into a UserFunction's Code, end
// exclusive. Block id is its index in UserFunction.Blocks.
type Block struct {
	Start, End int
}

// OptStatus records how far a UserFunction has been optimized.
type OptStatus uint8

const (
	OptNone OptStatus = iota
	OptPhase1
	OptPhase2
)

// UserFunction is a compiled function prototype (spec §3): arity, slot
// and refslot counts, the linear instruction buffer plus its block
// index and the parallel file-range array.
type UserFunction struct {
	Name         string
	Arity        int
	Variadic     bool
	IsMethod     bool
	SlotCount    int
	RefslotCount int

	// ThisSlot/ContextSlot name the slots setup_call (internal/vm)
	// populates with the receiver and the closure's captured context
	// before handing control to Code[0]; -1 means "not applicable" (a
	// bare function has neither). ParamSlots lists, in declaration order,
	// which slots the positional (non-this, non-context) arguments land
	// in — kept explicit rather than assumed contiguous from 0, since
	// nothing else in the IR requires parameter slots to precede
	// locals.
	ThisSlot    int
	ContextSlot int
	ParamSlots  []int

	Code   []Instr
	Blocks []Block
	Ranges []FileRange

	Opt    OptStatus
	NonSSA bool // set by compactify_registers; forbids further optimization

	CallCount int // hot-call counter driving the phase-2 optimizer trigger
}

// HotCallThreshold is the invocation count at which phase 2 of the
// optimizer runs (spec §4.G: "at first hot call, >= 10 invocations").
const HotCallThreshold = 10
