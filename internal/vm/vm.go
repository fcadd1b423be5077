// Package vm implements the bytecode dispatch loop over internal/ir
// (spec component H): the calling convention, the reentrant dispatch
// that doubles as the spec's "sub-VM spawn/join" for operator-overload
// fallback, and the runtime error model.
package vm

import (
	"github.com/google/uuid"

	"quill/internal/gc"
	"quill/internal/ir"
	"quill/internal/key"
	"quill/internal/object"
	"quill/internal/profile"
	"quill/internal/runtime"
)

// MaxCallDepth bounds recursion; exceeding it raises KindStackOverflow
// rather than letting a runaway script crash the host process.
const MaxCallDepth = 2048

// State is one interpreter session: one heap, one set of base
// prototypes, and the currently executing frame chain. Invoke is
// reentrant — a native builtin or an operator-overload fallback calls
// back into the same State recursively, which is this Go-native
// rendering of the spec's sub-VM spawn/join (Go's own call stack does
// the spawning and joining; there is no separate VM value to construct
// and tear down).
type State struct {
	GC      *gc.State
	Bases   *runtime.Bases
	Keys    *key.Table
	Session uuid.UUID

	// Profiler is nil unless the caller opts in (cmd/interp's -prof
	// flag); dispatch and invokeClosure both check it before doing any
	// profiling work, so an unprofiled session pays nothing beyond the
	// nil check.
	Profiler *profile.Profiler

	// Cycles is VMState's "cycle counter" (spec §3): one tick per
	// dispatched instruction, across every frame this session has ever
	// run. cmd/interp's -v flag reports it after the script returns.
	Cycles int64

	frame *CallFrame
	depth int
}

// New builds a fresh interpreter session with its own heap and base
// object graph.
func New() *State {
	keys := key.NewTable()
	gcs := gc.New(keys)
	return &State{
		GC:      gcs,
		Bases:   runtime.New(gcs, keys),
		Keys:    keys,
		Session: uuid.New(),
	}
}

// Run invokes fn as a top-level script: no receiver, the given
// positional arguments (spec §6: CLI arguments become an `arguments`
// array bound as the sole parameter by the caller, not by Run itself).
//
// The top-level script's context is Bases.Root, not nil: internal/parser
// resolves every free identifier (print, keys, user globals) through
// ContextSlot, and nested closures chain their own context's parent
// back to the context they were built under. Root sits at the end of
// every chain, so a bare name that resolves to nothing more local falls
// through to the builtins installed on it.
func (s *State) Run(fn *ir.UserFunction, args []object.Value) (object.Value, error) {
	return s.Invoke(closureValue(s, fn, s.Bases.Root), object.Null, false, args)
}

// closureValue wraps a bare UserFunction as a callable closure Value
// whose context is the given object; Run uses it to call a top-level
// script with Root as its context.
func closureValue(s *State, fn *ir.UserFunction, context *object.Object) object.Value {
	obj := s.GC.Alloc(s.Bases.Closure, 0)
	obj.Native = &ir.Closure{Proto: fn, Context: context}
	return object.Obj(obj)
}

func readArg(f *CallFrame, a ir.Arg) object.Value {
	switch a.Kind {
	case ir.ArgSlot:
		return f.Slots[a.Index]
	case ir.ArgRefslot:
		if e := f.Refslots[a.Index]; e != nil {
			return e.Value
		}
		return object.Null
	default:
		return a.Value
	}
}

func writeResult(f *CallFrame, w ir.WriteArg, v object.Value) {
	if w.None {
		return
	}
	switch w.Kind {
	case ir.ArgSlot:
		f.Slots[w.Index] = v
	case ir.ArgRefslot:
		if e := f.Refslots[w.Index]; e != nil {
			e.Value = v
		}
	}
}
