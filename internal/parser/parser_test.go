package parser

import (
	"testing"

	"quill/internal/ir"
	"quill/internal/lexer"
)

func parse(t *testing.T, src string) []Stmt {
	t.Helper()
	tokens := lexer.NewScanner("test.ql", src).ScanTokens()
	p := NewParser("test.ql", src, tokens)
	stmts := p.Parse()
	if len(p.Errors) != 0 {
		t.Fatalf("parse(%q): %v", src, p.Errors)
	}
	return stmts
}

func lower(t *testing.T, src string) *ir.UserFunction {
	t.Helper()
	fn := Lower(parse(t, src))
	assertSingleAssignment(t, fn)
	return fn
}

// assertSingleAssignment walks every instruction in every function
// reachable from fn (via AllocClosure's DirectTarget) and fails if any
// slot is written by more than one instruction — the SSA invariant
// internal/ir/builder.go documents and lower.go's if/loop phi
// reconciliation exists to uphold.
func assertSingleAssignment(t *testing.T, fn *ir.UserFunction) {
	t.Helper()
	seen := map[*ir.UserFunction]bool{}
	var walk func(*ir.UserFunction)
	walk = func(f *ir.UserFunction) {
		if seen[f] {
			return
		}
		seen[f] = true
		written := map[int]int{}
		for i, instr := range f.Code {
			if !instr.Dst.None && instr.Dst.Kind == ir.ArgSlot {
				if prev, ok := written[instr.Dst.Index]; ok {
					t.Fatalf("function %q: slot %d written by instructions %d and %d",
						f.Name, instr.Dst.Index, prev, i)
				}
				written[instr.Dst.Index] = i
			}
			if instr.Op == ir.OpAllocClosureObject && instr.DirectTarget != nil {
				walk(instr.DirectTarget)
			}
		}
	}
	walk(fn)
}

func TestParseVarAndReturn(t *testing.T) {
	stmts := parse(t, "var x = 1; return x;")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	v, ok := stmts[0].(*VarStmt)
	if !ok || v.Name != "x" {
		t.Fatalf("expected VarStmt x, got %#v", stmts[0])
	}
	if _, ok := stmts[1].(*ReturnStmt); !ok {
		t.Fatalf("expected ReturnStmt, got %#v", stmts[1])
	}
}

func TestParseIfElse(t *testing.T) {
	stmts := parse(t, "if (x) { y = 1; } else { y = 2; }")
	st, ok := stmts[0].(*IfStmt)
	if !ok {
		t.Fatalf("expected IfStmt, got %#v", stmts[0])
	}
	if len(st.Then) != 1 || len(st.Else) != 1 {
		t.Fatalf("expected one statement per arm, got then=%d else=%d", len(st.Then), len(st.Else))
	}
}

func TestParseObjectLiteralWithConstraint(t *testing.T) {
	stmts := parse(t, `var o = { x: int = 1, y = 2 };`)
	v := stmts[0].(*VarStmt)
	lit, ok := v.Value.(*ObjectLit)
	if !ok || len(lit.Fields) != 2 {
		t.Fatalf("expected a two-field object literal, got %#v", v.Value)
	}
	if lit.Fields[0].Type == nil {
		t.Fatal("expected field x to carry a type constraint")
	}
	if lit.Fields[1].Type != nil {
		t.Fatal("expected field y to carry no type constraint")
	}
}

func TestLowerIfElseReconcilesReassignedVariable(t *testing.T) {
	fn := lower(t, `
		var x = 1;
		if (x) {
			x = 2;
		} else {
			x = 3;
		}
		return x;
	`)
	hasPhi := false
	for _, instr := range fn.Code {
		if instr.Op == ir.OpPhi && len(ir.PhiIncoming(instr)) == 2 {
			hasPhi = true
		}
	}
	if !hasPhi {
		t.Fatal("expected a two-incoming-edge PHI merging the if/else reassignment")
	}
}

func TestLowerIfWithoutElseStillReachesJoin(t *testing.T) {
	lower(t, `
		var x = 1;
		if (x) {
			x = 2;
		}
		return x;
	`)
}

func TestLowerWhileLoopCarriesReassignedVariable(t *testing.T) {
	fn := lower(t, `
		var i = 0;
		while (i < 3) {
			i = i + 1;
		}
		return i;
	`)
	foundBackEdge := false
	for _, instr := range fn.Code {
		if instr.Op != ir.OpPhi {
			continue
		}
		incoming := ir.PhiIncoming(instr)
		if len(incoming) >= 2 {
			foundBackEdge = true
		}
	}
	if !foundBackEdge {
		t.Fatal("expected the loop counter's header PHI to gain a back-edge entry")
	}
}

func TestLowerForLoopWithContinue(t *testing.T) {
	lower(t, `
		var sum = 0;
		for (var i = 0; i < 10; i = i + 1) {
			if (i == 5) {
				continue;
			}
			sum = sum + i;
		}
		return sum;
	`)
}

func TestLowerForInLoop(t *testing.T) {
	lower(t, `
		var total = 0;
		for (k in obj) {
			total = total + 1;
		}
		return total;
	`)
}

func TestLowerNestedClosureCapturesOuterLocal(t *testing.T) {
	fn := lower(t, `
		var x = 1;
		var f = function() { return x; };
		return f();
	`)
	foundStatic := false
	for _, instr := range fn.Code {
		if instr.Op == ir.OpAllocStaticObject && len(instr.Static.Keys) == 1 && instr.Static.Keys[0] == "x" {
			foundStatic = true
		}
	}
	if !foundStatic {
		t.Fatal("expected the closure's capture object to hold x")
	}
}

func TestLowerLabeledBreakAndContinue(t *testing.T) {
	lower(t, `
		outer: while (true) {
			while (true) {
				break outer;
			}
		}
	`)
}

func TestLowerShortCircuitOperators(t *testing.T) {
	lower(t, `
		var a = true && false;
		var b = false || true;
		return a;
	`)
}
