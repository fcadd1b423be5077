package ir

import (
	"fmt"
	"strings"
)

// Dump renders fn as human-readable text for the `-v` CLI flag, in the
// spirit of the original jerboa's instruction dumper.
func Dump(fn *UserFunction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s(arity=%d variadic=%v slots=%d refslots=%d opt=%d)\n",
		fn.Name, fn.Arity, fn.Variadic, fn.SlotCount, fn.RefslotCount, fn.Opt)
	for bid, blk := range fn.Blocks {
		fmt.Fprintf(&sb, "block %d:\n", bid)
		for i := blk.Start; i < blk.End; i++ {
			fmt.Fprintf(&sb, "  %4d: %s\n", i, dumpInstr(fn.Code[i]))
		}
	}
	return sb.String()
}

func dumpArg(a Arg) string {
	switch a.Kind {
	case ArgSlot:
		return fmt.Sprintf("s%d", a.Index)
	case ArgRefslot:
		return fmt.Sprintf("r%d", a.Index)
	default:
		return a.Value.String()
	}
}

func dumpWrite(w WriteArg) string {
	if w.None {
		return "_"
	}
	if w.Kind == ArgRefslot {
		return fmt.Sprintf("r%d", w.Index)
	}
	return fmt.Sprintf("s%d", w.Index)
}

func dumpInstr(i Instr) string {
	switch i.Op {
	case OpAllocObject:
		return fmt.Sprintf("%s = alloc_object(%s)", dumpWrite(i.Dst), dumpArg(i.A))
	case OpAllocStaticObject:
		return fmt.Sprintf("%s = alloc_static_object(%d fields)", dumpWrite(i.Dst), len(i.Static.Keys))
	case OpAllocClosureObject:
		return fmt.Sprintf("%s = alloc_closure(%s, ctx=%s)", dumpWrite(i.Dst), i.DirectTarget.Name, dumpArg(i.A))
	case OpAccess:
		return fmt.Sprintf("%s = access(%s, %s)", dumpWrite(i.Dst), dumpArg(i.A), dumpArg(i.B))
	case OpAccessStringKey:
		return fmt.Sprintf("%s = access_k(%s, %q)", dumpWrite(i.Dst), dumpArg(i.A), i.StringKey)
	case OpAssign:
		return fmt.Sprintf("assign[%d](%s, %s, %s)", i.Mode, dumpArg(i.A), dumpArg(i.B), dumpArg(i.C))
	case OpAssignStringKey:
		return fmt.Sprintf("assign_k[%d](%s, %q, %s)", i.Mode, dumpArg(i.A), i.StringKey, dumpArg(i.C))
	case OpKeyInObj:
		return fmt.Sprintf("%s = key_in(%s, %s)", dumpWrite(i.Dst), dumpArg(i.A), dumpArg(i.B))
	case OpSetConstraint:
		return fmt.Sprintf("set_constraint(%s, %s, %s)", dumpArg(i.A), dumpArg(i.B), dumpArg(i.C))
	case OpCloseObject:
		return fmt.Sprintf("close(%s)", dumpArg(i.A))
	case OpFreezeObject:
		return fmt.Sprintf("freeze(%s)", dumpArg(i.A))
	case OpIdentical:
		return fmt.Sprintf("%s = identical(%s, %s)", dumpWrite(i.Dst), dumpArg(i.A), dumpArg(i.B))
	case OpInstanceOf:
		return fmt.Sprintf("%s = instanceof(%s, %s)", dumpWrite(i.Dst), dumpArg(i.A), dumpArg(i.B))
	case OpTest:
		return fmt.Sprintf("%s = test(%s)", dumpWrite(i.Dst), dumpArg(i.A))
	case OpBr:
		return fmt.Sprintf("br block%d", i.BlockTrue)
	case OpTestBr:
		return fmt.Sprintf("testbr(%s) true->block%d false->block%d", dumpArg(i.A), i.BlockTrue, i.BlockFalse)
	case OpReturn:
		return fmt.Sprintf("return %s", dumpArg(i.A))
	case OpPhi:
		return fmt.Sprintf("%s = phi(%d incoming)", dumpWrite(i.Dst), len(i.Call.Args))
	case OpCall:
		return fmt.Sprintf("%s = call(%s, this=%s, %d args)", dumpWrite(i.Dst), dumpArg(i.Call.Fn), dumpArg(i.Call.This), len(i.Call.Args))
	case OpCallFunctionDirect:
		return fmt.Sprintf("%s = call_direct(%s, %d args)", dumpWrite(i.Dst), i.DirectTarget.Name, len(i.Call.Args))
	case OpDefineRefslot:
		return fmt.Sprintf("r%d = define_refslot(%s, %q)", i.Dst.Index, dumpArg(i.A), i.StringKey)
	case OpMove:
		return fmt.Sprintf("%s = move(%s)", dumpWrite(i.Dst), dumpArg(i.A))
	case OpStringKeyInObj:
		return fmt.Sprintf("%s = key_in_k(%s, %q)", dumpWrite(i.Dst), dumpArg(i.A), i.StringKey)
	case OpSetConstraintStringKey:
		return fmt.Sprintf("set_constraint_k(%s, %q, %s)", dumpArg(i.A), i.StringKey, dumpArg(i.C))
	default:
		return fmt.Sprintf("op(%d)", i.Op)
	}
}
