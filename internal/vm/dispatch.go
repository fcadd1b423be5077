package vm

import (
	"quill/internal/ir"
	"quill/internal/object"
	"quill/internal/runtime"
)

// dispatch runs frame's code from block 0 until a RETURN or an error.
// Every other terminator (BR/TESTBR) just moves Block/PC; non-terminator
// instructions fall through to the next index in Code, which always
// stays inside the current block because internal/ir guarantees a
// block's last instruction is its only terminator.
func (s *State) dispatch(f *CallFrame) (object.Value, error) {
	f.Block = 0
	f.PrevBlock = -1
	f.PC = f.Fn.Blocks[0].Start

	for {
		instr := f.Fn.Code[f.PC]
		s.Cycles++
		if s.Profiler != nil {
			s.Profiler.Tick(f.Fn.Name, f.Fn.Ranges[f.PC])
		}
		switch instr.Op {

		case ir.OpAllocObject:
			parent := readArg(f, instr.A)
			var parentObj *object.Object
			if parent.Tag == object.TObject {
				parentObj = parent.Obj
			} else if parent.Tag != object.TNull {
				return object.Null, newError(KindType, "object parent must be an object or null, got %s", parent)
			}
			obj := s.GC.Alloc(parentObj, 0)
			writeResult(f, instr.Dst, object.Obj(obj))

		case ir.OpAllocIntObject, ir.OpAllocBoolObject, ir.OpAllocFloatObject:
			writeResult(f, instr.Dst, readArg(f, instr.A))

		case ir.OpAllocStringObject:
			writeResult(f, instr.Dst, object.Obj(runtime.NewString(s.GC, s.Bases.String, s.Keys, instr.StringKey)))

		case ir.OpAllocArrayObject:
			elems := make([]object.Value, len(instr.Call.Args))
			for i, a := range instr.Call.Args {
				elems[i] = readArg(f, a)
			}
			writeResult(f, instr.Dst, object.Obj(runtime.NewArray(s.GC, s.Bases.Array, s.Keys, elems)))

		case ir.OpAllocClosureObject:
			ctxVal := readArg(f, instr.A)
			var ctx *object.Object
			if ctxVal.Tag == object.TObject {
				ctx = ctxVal.Obj
			}
			obj := s.GC.Alloc(s.Bases.Closure, 0)
			obj.Native = &ir.Closure{Proto: instr.DirectTarget, Context: ctx}
			writeResult(f, instr.Dst, object.Obj(obj))

		case ir.OpAllocStaticObject:
			v, err := s.allocStatic(f, instr)
			if err != nil {
				return object.Null, err
			}
			writeResult(f, instr.Dst, v)

		case ir.OpAccess:
			obj := readArg(f, instr.A)
			keyVal := readArg(f, instr.B)
			v, err := s.access(obj, keyVal)
			if err != nil {
				return object.Null, err
			}
			writeResult(f, instr.Dst, v)

		case ir.OpAccessStringKey:
			obj := readArg(f, instr.A)
			v, ok := s.accessNamed(obj, instr.StringKey)
			if !ok {
				return object.Null, newError(KindMissingProp, "no property %q on %s", instr.StringKey, obj)
			}
			writeResult(f, instr.Dst, v)

		case ir.OpAssign:
			obj := readArg(f, instr.A)
			keyVal := readArg(f, instr.B)
			val := readArg(f, instr.C)
			if err := s.assign(instr.Mode, obj, keyVal, val); err != nil {
				return object.Null, err
			}

		case ir.OpAssignStringKey:
			obj := readArg(f, instr.A)
			val := readArg(f, instr.C)
			if err := s.assignStringKey(instr.Mode, obj, instr.StringKey, val); err != nil {
				return object.Null, err
			}

		case ir.OpKeyInObj:
			obj := readArg(f, instr.A)
			keyVal := readArg(f, instr.B)
			found := false
			if name, ok := runtime.AsString(keyVal); ok {
				found = s.keyInObj(obj, name)
			}
			writeResult(f, instr.Dst, object.Bool(found))

		case ir.OpStringKeyInObj:
			obj := readArg(f, instr.A)
			writeResult(f, instr.Dst, object.Bool(s.keyInObj(obj, instr.StringKey)))

		case ir.OpSetConstraint:
			obj := readArg(f, instr.A)
			keyVal := readArg(f, instr.B)
			constraint := readArg(f, instr.C)
			if err := s.setConstraint(obj, keyVal, constraint); err != nil {
				return object.Null, err
			}

		case ir.OpSetConstraintStringKey:
			obj := readArg(f, instr.A)
			constraint := readArg(f, instr.C)
			if err := s.setConstraintNamed(obj, instr.StringKey, constraint); err != nil {
				return object.Null, err
			}

		case ir.OpCloseObject:
			if v := readArg(f, instr.A); v.Tag == object.TObject {
				object.Close(v.Obj)
			}

		case ir.OpFreezeObject:
			if v := readArg(f, instr.A); v.Tag == object.TObject {
				object.Freeze(v.Obj)
			}

		case ir.OpIdentical:
			a, b := readArg(f, instr.A), readArg(f, instr.B)
			writeResult(f, instr.Dst, object.Bool(object.Identical(a, b)))

		case ir.OpInstanceOf:
			a, proto := readArg(f, instr.A), readArg(f, instr.B)
			result := false
			if a.Tag == object.TObject && proto.Tag == object.TObject {
				result = object.InstanceOf(a.Obj, proto.Obj)
			}
			writeResult(f, instr.Dst, object.Bool(result))

		case ir.OpTest:
			v := readArg(f, instr.A)
			writeResult(f, instr.Dst, object.Bool(object.IsTruthy(v)))

		case ir.OpMove:
			writeResult(f, instr.Dst, readArg(f, instr.A))

		case ir.OpDefineRefslot:
			obj := readArg(f, instr.A)
			if obj.Tag != object.TObject {
				return object.Null, newError(KindNullAccess, "cannot take a refslot into a non-object")
			}
			fk := s.Keys.Prepare(instr.StringKey)
			f.Refslots[instr.Dst.Index] = object.EntryFor(obj.Obj, &fk)

		case ir.OpBr:
			s.jump(f, instr.BlockTrue)
			continue

		case ir.OpTestBr:
			cond := readArg(f, instr.A)
			if object.IsTruthy(cond) {
				s.jump(f, instr.BlockTrue)
			} else {
				s.jump(f, instr.BlockFalse)
			}
			continue

		case ir.OpPhi:
			incoming := ir.PhiIncoming(instr)
			v, ok := incoming[f.PrevBlock]
			if !ok && len(incoming) == 1 {
				// a single-incoming PHI is a plain copy (the parser's emitMove)
				for _, only := range incoming {
					v, ok = only, true
				}
			}
			if !ok {
				return object.Null, newError(KindType, "phi has no incoming value for block %d", f.PrevBlock)
			}
			writeResult(f, instr.Dst, readArg(f, v))

		case ir.OpCall:
			v, err := s.execCall(f, instr, nil)
			if err != nil {
				return object.Null, err
			}
			writeResult(f, instr.Dst, v)

		case ir.OpCallFunctionDirect:
			v, err := s.execCall(f, instr, instr.DirectTarget)
			if err != nil {
				return object.Null, err
			}
			writeResult(f, instr.Dst, v)

		case ir.OpReturn:
			return readArg(f, instr.A), nil

		default:
			return object.Null, newError(KindType, "unhandled opcode %d", instr.Op)
		}

		f.PC++
	}
}

// jump moves execution to the start of block target, recording the
// block just left so a PHI at the target can pick its incoming value.
func (s *State) jump(f *CallFrame, target int) {
	f.PrevBlock = f.Block
	f.Block = target
	f.PC = f.Fn.Blocks[target].Start
}

// execCall evaluates a CALL or CALL_FUNCTION_DIRECT's operands. For the
// direct form, Call.Fn is still evaluated (it is cheap — just a slot
// read) purely to recover the closure's captured context; the
// call_functions_directly pass (internal/optimizer) has already proven
// which UserFunction it resolves to, so the native/closure type switch
// Invoke performs for a generic CALL is skipped entirely.
func (s *State) execCall(f *CallFrame, instr ir.Instr, direct *ir.UserFunction) (object.Value, error) {
	args := make([]object.Value, len(instr.Call.Args))
	for i, a := range instr.Call.Args {
		args[i] = readArg(f, a)
	}
	this := object.Null
	if instr.Call.HasThis {
		this = readArg(f, instr.Call.This)
	}
	if direct != nil {
		var context *object.Object
		if callee := readArg(f, instr.Call.Fn); callee.Tag == object.TObject {
			if cl, ok := callee.Obj.Native.(*ir.Closure); ok {
				context = cl.Context
			}
		}
		return s.invokeClosure(direct, context, this, args)
	}
	callee := readArg(f, instr.Call.Fn)
	return s.Invoke(callee, this, instr.Call.HasThis, args)
}

// keyInObj walks obj's prototype chain looking for name (objects only;
// primitives never carry a table of their own, so KEY_IN_OBJ is always
// false for them).
func (s *State) keyInObj(obj object.Value, name string) bool {
	if obj.Tag != object.TObject {
		return false
	}
	fk := s.Keys.Prepare(name)
	_, ok := object.Lookup(obj.Obj, &fk)
	return ok
}
