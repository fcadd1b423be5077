package vm

import (
	"quill/internal/gc"
	"quill/internal/ir"
	"quill/internal/object"
	"quill/internal/optimizer"
	"quill/internal/runtime"
)

// Invoke is the calling convention of spec §4.H's setup_call, broken
// into the same eight steps:
//
//  1. resolve the callee to something invokable;
//  2. guard recursion depth;
//  3. allocate the callee's activation record;
//  4. check arity;
//  5. bind positional arguments (collecting the variadic tail, if any);
//  6. bind `this` and the captured context, if the callee wants them;
//  7. publish the frame as a GC root and as the active frame;
//  8. run the dispatch loop and unwind, whichever of return/error comes
//     first.
//
// Native callees (object.NativeFn) skip straight to invocation — they
// have no slots, no blocks, and cannot themselves be interrupted by the
// GC threading a new frame's roots.
func (s *State) Invoke(callee object.Value, this object.Value, hasThis bool, args []object.Value) (object.Value, error) {
	if callee.Tag != object.TObject || callee.Obj == nil {
		return object.Null, newError(KindNotCallable, "value %s is not callable", callee)
	}

	// step 1
	if native, ok := object.AsNative(callee.Obj); ok {
		v, err := native(s.GC, this, args)
		if err != nil {
			return object.Null, wrapNative(err)
		}
		return v, nil
	}
	closure, ok := callee.Obj.Native.(*ir.Closure)
	if !ok {
		return object.Null, newError(KindNotCallable, "value %s is not callable", callee)
	}
	return s.invokeClosure(closure.Proto, closure.Context, this, args)
}

// invokeClosure runs steps 2-8 of setup_call given an already-resolved
// callee: a UserFunction and the context it was captured with (nil for
// a closure with no free variables). call_functions_directly
// (internal/optimizer) calls this directly once it has proven which
// UserFunction a CALL's callee must be, skipping the native/closure
// type switch Invoke otherwise has to do at every call site.
func (s *State) invokeClosure(fn *ir.UserFunction, context *object.Object, this object.Value, args []object.Value) (object.Value, error) {
	// step 2
	if s.depth >= MaxCallDepth {
		return object.Null, newError(KindStackOverflow, "call depth exceeded %d", MaxCallDepth)
	}

	fn.CallCount++
	if fn.CallCount == ir.HotCallThreshold && fn.Opt < ir.OptPhase2 {
		optimizer.Phase2(fn)
	}

	// step 3
	frame := newFrame(fn, s.frame)

	// step 4
	if !fn.Variadic && len(args) != fn.Arity {
		return object.Null, newError(KindArity, "%s expects %d argument(s), got %d", fn.Name, fn.Arity, len(args))
	}
	if fn.Variadic && len(args) < fn.Arity {
		return object.Null, newError(KindArity, "%s expects at least %d argument(s), got %d", fn.Name, fn.Arity, len(args))
	}

	// step 5
	for i, slot := range fn.ParamSlots {
		if fn.Variadic && i == len(fn.ParamSlots)-1 {
			frame.Slots[slot] = object.Obj(runtime.NewArray(s.GC, s.Bases.Array, s.Keys, args[i:]))
			break
		}
		frame.Slots[slot] = args[i]
	}

	// step 6: a plain function called with a receiver (hasThis) but no
	// ThisSlot simply has nowhere to put it, which is harmless — it
	// just means the call site passed a receiver this callee ignores.
	if fn.ThisSlot >= 0 {
		frame.Slots[fn.ThisSlot] = this
	}
	if fn.ContextSlot >= 0 {
		frame.Slots[fn.ContextSlot] = object.Obj(context)
	}

	// step 7
	rootValues := frame.Slots
	frame.roots = gc.RootSet{Values: &rootValues}
	s.GC.PushRoot(&frame.roots)
	s.depth++
	prevFrame := s.frame
	s.frame = frame

	if s.Profiler != nil {
		caller := "<script>"
		if prevFrame != nil {
			caller = prevFrame.Fn.Name
		}
		s.Profiler.RecordCall(caller, fn.Name)
	}

	// step 8
	result, err := s.dispatch(frame)

	s.frame = prevFrame
	s.depth--
	s.GC.PopRoot(&frame.roots)

	if err != nil {
		if rerr, ok := err.(*Error); ok {
			rerr.Backtrace = append(rerr.Backtrace, fn.Name)
		}
		return object.Null, err
	}
	return result, nil
}

func wrapNative(err error) error {
	if rerr, ok := err.(*Error); ok {
		return rerr
	}
	return newError(KindType, "%v", err)
}

// accessNamed resolves name against obj's own prototype chain (objects)
// or the appropriate base (primitives), without raising an error when
// absent — callers decide whether "absent" means "missing property" or
// "try the operator fallback".
func (s *State) accessNamed(obj object.Value, name string) (object.Value, bool) {
	fk := s.Keys.Prepare(name)
	if obj.Tag == object.TObject {
		if v, ok := object.Lookup(obj.Obj, &fk); ok {
			return v, true
		}
		return object.Null, false
	}
	if base := s.Bases.BaseFor(obj); base != nil {
		return object.Lookup(base, &fk)
	}
	return object.Null, false
}

// invokeOperator looks up name on this and calls it with args, failing
// with KindMissingProp if this has no such operator at all.
func (s *State) invokeOperator(this object.Value, name string, args []object.Value) (object.Value, error) {
	v, ok := s.accessNamed(this, name)
	if !ok {
		return object.Null, newError(KindMissingProp, "no %q operator on %s", name, this)
	}
	return s.Invoke(v, this, true, args)
}
