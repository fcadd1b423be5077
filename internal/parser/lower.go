package parser

import (
	"strconv"

	"quill/internal/ir"
	"quill/internal/object"
	"quill/internal/optimizer"
)

// Lower walks a parsed top-level statement list and builds the
// ir.UserFunction the VM runs (spec §4.E/§4.H). The lowering pass is
// the one place the parser constructs genuine SSA: every local
// variable gets a fresh slot on each assignment, and control-flow
// merges (if/else join points, loop headers) get an explicit PHI
// rather than reusing a slot across writes — internal/ir/builder.go
// documents that invariant, and internal/ir/ir.go reserves MOVE for
// the optimizer alone, so the parser has no slot-reuse shortcut
// available to it.
//
// Free identifiers (anything not a parameter or a `var`/`const` declared
// in the function or an enclosing one) resolve through the function's
// ContextSlot: a closure's Context object holds its captured free
// variables as of the moment it was created, parented to the enclosing
// function's own context. internal/vm.State.Run seeds the top-level
// script's context with Bases.Root, so a name that isn't found in any
// enclosing scope's capture falls through the prototype chain to the
// builtins installed there (print, keys, malloc).
func Lower(stmts []Stmt) *ir.UserFunction {
	fb := newFuncBuilder("script")
	fb.b.ReserveContext()
	fb.lowerBlock(stmts)
	fb.finishImplicitReturn()
	fn := fb.b.Finish()
	optimizer.Phase1(fn)
	return fn
}

// scope is one lexical block's name->slot bindings. Functions push a
// fresh chain of scopes for their body; blocks (if/while/for bodies)
// push and pop one scope each without starting a new function.
type scope struct {
	vars   map[string]int
	parent *scope
}

func newScope(parent *scope) *scope { return &scope{vars: map[string]int{}, parent: parent} }

func (s *scope) lookup(name string) (int, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if slot, ok := sc.vars[name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// loopCtx tracks the pending break/continue branch patches for one
// enclosing loop, keyed by label (""'s the innermost unlabeled loop).
// carried/continueEdges exist so a `continue` partway through the body
// contributes its own incoming edge to the loop-carried variables' header
// PHIs, rather than only the body's final fallthrough block.
type loopCtx struct {
	label         string
	breaks        []int // BR instruction indices to patch to the exit block
	continues     []int // BR instruction indices to patch to the continue target
	carried       map[string]int
	continueEdges []loopEdge
	parent        *loopCtx
}

// loopEdge is a mid-body branch back toward the loop header (a
// `continue`), recording the block it leaves from and the live slot for
// each loop-carried name at that point.
type loopEdge struct {
	block int
	vals  map[string]int
}

// funcBuilder lowers one function body (top-level script or a nested
// FuncExpr) into its own ir.Builder.
type funcBuilder struct {
	b     *ir.Builder
	scope *scope
	loops *loopCtx
	fr    ir.FileRange
}

func newFuncBuilder(name string) *funcBuilder {
	return &funcBuilder{
		b:     ir.NewBuilder(name),
		scope: newScope(nil),
	}
}

func (fb *funcBuilder) pushScope() { fb.scope = newScope(fb.scope) }
func (fb *funcBuilder) popScope()  { fb.scope = fb.scope.parent }

func (fb *funcBuilder) declare(name string, slot int) { fb.scope.vars[name] = slot }

// finishImplicitReturn appends a bare `return null` if the lowered body
// doesn't end with one already (every block the builder closes must end
// in a terminator).
func (fb *funcBuilder) finishImplicitReturn() {
	fb.b.Return(ir.ValueArg(object.Null), fb.fr)
}

// --- statements -----------------------------------------------------------

func (fb *funcBuilder) lowerBlock(stmts []Stmt) {
	for _, s := range stmts {
		fb.lowerStmt(s)
	}
}

func (fb *funcBuilder) lowerStmt(s Stmt) {
	switch st := s.(type) {
	case *VarStmt:
		fb.fr = ir.FileRange{Line: st.Line, Col: st.Col}
		val := fb.lowerExpr(st.Value)
		slot := fb.b.NewSlot()
		fb.emitMove(slot, val)
		if st.Type != nil {
			typeObj := fb.lowerExpr(st.Type)
			// constraints apply to object fields, not bare locals; a
			// typed `var` only makes sense as sugar for assigning into
			// an object field elsewhere, so a bare local ignores it.
			_ = typeObj
		}
		fb.declare(st.Name, slot)

	case *ExprStmt:
		fb.lowerExpr(st.Expr)

	case *AssignStmt:
		fb.lowerAssign(st)

	case *ReturnStmt:
		var v ir.Arg
		if st.Value != nil {
			v = fb.lowerExpr(st.Value)
		} else {
			v = ir.ValueArg(object.Null)
		}
		fb.b.Return(v, fb.fr)

	case *IfStmt:
		fb.lowerIf(st)

	case *WhileStmt:
		fb.lowerWhile(st)

	case *ForStmt:
		fb.lowerFor(st)

	case *ForInStmt:
		fb.lowerForIn(st)

	case *BreakStmt:
		fb.lowerBreak(st.Label)

	case *ContinueStmt:
		fb.lowerContinue(st.Label)

	case *FuncDeclStmt:
		fnVal := fb.lowerFuncExpr(st.Fn)
		slot := fb.b.NewSlot()
		fb.emitMove(slot, fnVal)
		if st.Fn.Name != "" {
			fb.declare(st.Fn.Name, slot)
		}
	}
}

// emitMove writes src into a freshly reserved slot via an identity
// Test+TestBr-free path: since MOVE is optimizer-only, a bare "copy"
// is instead modeled as whatever instruction already produced the
// value writing directly to slot. lowerExpr always takes a destination
// slot for exactly this reason; emitMove exists for call sites, like
// VarStmt, that already have a value Arg in hand (a sub-expression
// result or a phi) and need it mirrored into a new named slot without
// re-evaluating it — done with a trivial ACCESS-free identity: a Phi
// of one incoming value, which dispatch reads as a plain copy whatever
// block execution arrived from.
func (fb *funcBuilder) emitMove(dst int, src ir.Arg) {
	fb.b.Phi(ir.SlotWrite(dst), map[int]ir.Arg{fb.b.CurrentBlock(): src}, fb.fr)
}

func (fb *funcBuilder) lowerAssign(st *AssignStmt) {
	fb.fr = ir.FileRange{Line: st.Line, Col: st.Col}
	val := fb.lowerExpr(st.Value)
	switch target := st.Target.(type) {
	case *Ident:
		if _, ok := fb.scope.lookup(target.Name); ok {
			// a reassignment gets a fresh slot (SSA: no slot is ever
			// written twice) and the binding moves to it in the
			// innermost scope; lowerIf/lowerWhile/lowerFor read that
			// scope's own map back out as the branch/iteration's
			// "overlay" to reconcile with a PHI at the next merge point.
			newSlot := fb.b.NewSlot()
			fb.emitMove(newSlot, val)
			fb.scope.vars[target.Name] = newSlot
			return
		}
		// assigning to a free/global name: write through the context
		// chain rather than silently creating a new local.
		ctxArg := fb.contextArg()
		fb.b.AssignStringKey(ir.ModeExisting, ctxArg, target.Name, val, fb.fr)

	case *PropExpr:
		obj := fb.lowerExpr(target.Object)
		fb.b.AssignStringKey(ir.ModePlain, obj, target.Name, val, fb.fr)

	case *IndexExpr:
		obj := fb.lowerExpr(target.Object)
		idx := fb.lowerExpr(target.Index)
		fb.b.Assign(ir.ModePlain, obj, idx, val, fb.fr)
	}
}

// lowerIf lowers the branch, then reconciles any name either arm
// reassigned with a PHI at the join block: each arm's reassignments
// land in that arm's own pushed scope (lowerAssign always writes the
// innermost scope), so popScope leaves that map around just long
// enough to read back as the arm's "what changed" overlay.
func (fb *funcBuilder) lowerIf(st *IfStmt) {
	cond := fb.lowerExpr(st.Cond)
	test := fb.b.NewSlot()
	fb.b.Test(ir.SlotWrite(test), cond, fb.fr)
	brIdx := fb.b.TestBr(ir.SlotArg(test), -1, -1, fb.fr)

	preScope := fb.scope

	thenStart := fb.b.Label()
	fb.pushScope()
	fb.lowerBlock(st.Then)
	thenOverlay := fb.scope.vars
	thenTerminated := fb.blockTerminated()
	thenEnd := fb.b.CurrentBlock()
	if !thenTerminated {
		fb.b.Br(-1, fb.fr)
	}
	thenBrIdx := fb.lastInstrIdx()
	fb.popScope()

	elseStart := fb.b.Label()
	fb.b.Patch(brIdx, thenStart, elseStart)
	fb.pushScope()
	fb.lowerBlock(st.Else)
	elseOverlay := fb.scope.vars
	elseTerminated := fb.blockTerminated()
	elseEnd := fb.b.CurrentBlock()
	if !elseTerminated {
		fb.b.Br(-1, fb.fr)
	}
	elseBrIdx := fb.lastInstrIdx()
	fb.popScope()

	if thenTerminated && elseTerminated {
		return
	}

	joinBlock := fb.b.Label()
	if !thenTerminated {
		fb.b.Patch(thenBrIdx, joinBlock, -1)
	}
	if !elseTerminated {
		fb.b.Patch(elseBrIdx, joinBlock, -1)
	}

	changed := map[string]bool{}
	for name := range thenOverlay {
		changed[name] = true
	}
	for name := range elseOverlay {
		changed[name] = true
	}
	for name := range changed {
		preSlot, existedBefore := preScope.lookup(name)
		if !existedBefore {
			continue // declared inside one of the arms, doesn't escape it
		}
		thenVal, elseVal := preSlot, preSlot
		if s, ok := thenOverlay[name]; ok {
			thenVal = s
		}
		if s, ok := elseOverlay[name]; ok {
			elseVal = s
		}
		switch {
		case !thenTerminated && !elseTerminated:
			if thenVal == elseVal {
				preScope.vars[name] = thenVal
				continue
			}
			merged := fb.b.NewSlot()
			fb.b.Phi(ir.SlotWrite(merged), map[int]ir.Arg{thenEnd: ir.SlotArg(thenVal), elseEnd: ir.SlotArg(elseVal)}, fb.fr)
			preScope.vars[name] = merged
		case !thenTerminated:
			preScope.vars[name] = thenVal
		case !elseTerminated:
			preScope.vars[name] = elseVal
		}
	}
}

// blockTerminated reports whether the instruction stream most recently
// emitted by this builder ends in RETURN/BR/TESTBR already (a nested
// if/while/for whose every arm returned, for instance): lowerIf and the
// loop lowerers use this to skip emitting a redundant fallthrough
// branch and to skip phi-ing a variable out of a branch that never
// reaches the join.
func (fb *funcBuilder) blockTerminated() bool {
	return fb.b.Terminated()
}

func (fb *funcBuilder) lastInstrIdx() int { return fb.b.LastInstrIndex() }

// openLoopCarry reserves one PHI per name in carried (name -> its slot
// immediately before the loop) at the block currently being filled (the
// loop header), sourced from preheader, and rebinds each name in the
// current scope to the new phi slot so the header's condition and the
// body read the carried value rather than the stale pre-loop one.
// finishLoopCarry uses the returned phiIdx/phiSlot maps to patch in every
// edge that reaches back to the header once the body's lowered.
func (fb *funcBuilder) openLoopCarry(preheader int, carried map[string]int) (phiIdx, phiSlot map[string]int) {
	phiIdx = map[string]int{}
	phiSlot = map[string]int{}
	for name, preSlot := range carried {
		slot := fb.b.NewSlot()
		idx := fb.b.Phi(ir.SlotWrite(slot), map[int]ir.Arg{preheader: ir.SlotArg(preSlot)}, fb.fr)
		phiIdx[name] = idx
		phiSlot[name] = slot
		fb.scope.vars[name] = slot
	}
	return phiIdx, phiSlot
}

// finishLoopCarry patches in every block that actually branches back to
// the loop header: the body's own fallthrough edge (if it didn't already
// return/break out) plus one edge per `continue` reached along the way.
// A name a given edge never reassigned falls back to the phi's own slot
// (an identity edge — the optimizer folds it away).
func (fb *funcBuilder) finishLoopCarry(phiIdx, phiSlot map[string]int, bodyLive bool, bodyOverlay map[string]int, bodyEnd int, edges []loopEdge) {
	for name, idx := range phiIdx {
		if bodyLive {
			val := phiSlot[name]
			if v, ok := bodyOverlay[name]; ok {
				val = v
			}
			fb.b.PatchPhi(idx, bodyEnd, ir.SlotArg(val))
		}
		for _, e := range edges {
			val := phiSlot[name]
			if v, ok := e.vals[name]; ok {
				val = v
			}
			fb.b.PatchPhi(idx, e.block, ir.SlotArg(val))
		}
	}
}

// carriedFromScope restricts candidates (names assignedNamesIn found in
// a loop body) to the ones actually bound somewhere in scope already,
// pairing each with its current slot.
func carriedFromScope(scope *scope, candidates map[string]bool) map[string]int {
	carried := map[string]int{}
	for name := range candidates {
		if slot, ok := scope.lookup(name); ok {
			carried[name] = slot
		}
	}
	return carried
}

func (fb *funcBuilder) lowerWhile(st *WhileStmt) {
	carried := carriedFromScope(fb.scope, assignedNamesIn(st.Body))
	ctx := &loopCtx{label: st.Label, carried: carried, parent: fb.loops}
	fb.loops = ctx

	preheader := fb.b.CurrentBlock()
	fb.b.Br(-1, fb.fr)
	fb.b.Patch(fb.lastInstrIdx(), fb.b.Label(), -1)
	header := fb.b.CurrentBlock()

	phiIdx, phiSlot := fb.openLoopCarry(preheader, carried)

	cond := fb.lowerExpr(st.Cond)
	test := fb.b.NewSlot()
	fb.b.Test(ir.SlotWrite(test), cond, fb.fr)
	brIdx := fb.b.TestBr(ir.SlotArg(test), -1, -1, fb.fr)

	bodyStart := fb.b.Label()
	fb.pushScope()
	fb.lowerBlock(st.Body)
	bodyOverlay := fb.scope.vars
	bodyTerminated := fb.blockTerminated()
	bodyEnd := fb.b.CurrentBlock()
	if !bodyTerminated {
		fb.b.Br(header, fb.fr)
	}
	fb.popScope()
	fb.finishLoopCarry(phiIdx, phiSlot, !bodyTerminated, bodyOverlay, bodyEnd, ctx.continueEdges)

	exit := fb.b.Label()
	fb.b.Patch(brIdx, bodyStart, exit)

	fb.loops = ctx.parent
	for _, idx := range ctx.breaks {
		fb.b.Patch(idx, exit, -1)
	}
	for _, idx := range ctx.continues {
		fb.b.Patch(idx, header, -1)
	}
}

// lowerFor lowers a C-style for loop. A `continue` runs Post before
// jumping back to the header (it branches to the shared `post` block,
// same as the body's own fallthrough), so unlike lowerWhile there's a
// single physical back-edge to feed the header PHIs, not one per
// continue: a loop-carried name's value there is whatever Post itself
// last assigned it, falling back to whatever the body assigned it, and
// finally to the PHI's own slot if neither touched it this iteration.
// A name the body's `continue` arm set to something Post's own
// statement-level effect doesn't also cover isn't reconciled against
// the fallthrough arm's value at the `post` merge point — an accepted
// gap, recorded in DESIGN.md, alongside lowerWhile's fully precise
// handling of the same case.
func (fb *funcBuilder) lowerFor(st *ForStmt) {
	fb.pushScope()
	if st.Init != nil {
		fb.lowerStmt(st.Init)
	}
	candidateStmts := append([]Stmt{}, st.Body...)
	if st.Post != nil {
		candidateStmts = append(candidateStmts, st.Post)
	}
	carried := carriedFromScope(fb.scope, assignedNamesIn(candidateStmts))
	ctx := &loopCtx{label: st.Label, carried: carried, parent: fb.loops}
	fb.loops = ctx

	preheader := fb.b.CurrentBlock()
	fb.b.Br(-1, fb.fr)
	fb.b.Patch(fb.lastInstrIdx(), fb.b.Label(), -1)
	header := fb.b.CurrentBlock()

	phiIdx, phiSlot := fb.openLoopCarry(preheader, carried)

	brIdx := -1
	bodyStart := header
	if st.Cond != nil {
		cond := fb.lowerExpr(st.Cond)
		test := fb.b.NewSlot()
		fb.b.Test(ir.SlotWrite(test), cond, fb.fr)
		brIdx = fb.b.TestBr(ir.SlotArg(test), -1, -1, fb.fr)
		bodyStart = fb.b.Label()
	}

	fb.pushScope()
	fb.lowerBlock(st.Body)
	bodyOverlay := fb.scope.vars
	bodyTerminated := fb.blockTerminated()
	fb.popScope()

	bodyBr := -1
	if !bodyTerminated {
		bodyBr = fb.b.Br(-1, fb.fr)
	}
	post := fb.b.Label()
	if bodyBr >= 0 {
		fb.b.Patch(bodyBr, post, -1)
	}
	prePostVal, prePostOK := map[string]int{}, map[string]bool{}
	for name := range carried {
		v, ok := fb.scope.vars[name]
		prePostVal[name], prePostOK[name] = v, ok
	}
	if st.Post != nil {
		fb.lowerStmt(st.Post)
	}
	backEdge := fb.b.CurrentBlock()
	fb.b.Br(header, fb.fr)

	merged := map[string]int{}
	for name := range carried {
		if v, ok := fb.scope.vars[name]; ok && (!prePostOK[name] || v != prePostVal[name]) {
			merged[name] = v
		} else if v, ok := bodyOverlay[name]; ok {
			merged[name] = v
		}
	}
	fb.finishLoopCarry(phiIdx, phiSlot, true, merged, backEdge, nil)

	exit := fb.b.Label()
	if brIdx >= 0 {
		fb.b.Patch(brIdx, bodyStart, exit)
	}

	fb.loops = ctx.parent
	for _, idx := range ctx.breaks {
		fb.b.Patch(idx, exit, -1)
	}
	for _, idx := range ctx.continues {
		fb.b.Patch(idx, post, -1)
	}
	fb.popScope()
}

// lowerForIn desugars `for v in expr { body }` (also written
// `for (v in expr) { body }`) via the keys() builtin:
// quill's only cross-type enumeration primitive (internal/runtime's
// Tbl.Each-backed keys()) yields an array of key strings, so the loop
// variable binds to each enumerated key, not the collection's values —
// scripts that want values index back in with obj[v].
func (fb *funcBuilder) lowerForIn(st *ForInStmt) {
	coll := fb.lowerExpr(st.Collection)
	keysFn := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(keysFn), fb.contextArg(), "keys", fb.fr)
	keysArr := fb.b.NewSlot()
	fb.b.Call(ir.SlotWrite(keysArr), ir.SlotArg(keysFn), coll, true, nil, fb.fr)

	length := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(length), ir.SlotArg(keysArr), "length", fb.fr)

	idx0 := fb.b.NewSlot()
	fb.emitMove(idx0, ir.ValueArg(object.Int(0)))

	// " idx" can never collide with a real identifier (the lexer never
	// produces one containing a space), so the enumeration counter rides
	// the same carried-variable PHI machinery as any user loop variable
	// the body reassigns.
	const idxKey = " idx"
	carried := carriedFromScope(fb.scope, assignedNamesIn(st.Body))
	carried[idxKey] = idx0
	ctx := &loopCtx{label: st.Label, carried: carried, parent: fb.loops}
	fb.loops = ctx

	preheader := fb.b.CurrentBlock()
	fb.b.Br(-1, fb.fr)
	fb.b.Patch(fb.lastInstrIdx(), fb.b.Label(), -1)
	header := fb.b.CurrentBlock()

	phiIdx, phiSlot := fb.openLoopCarry(preheader, carried)
	idx := phiSlot[idxKey]

	lt := fb.b.NewSlot()
	ltFn := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(ltFn), ir.SlotArg(idx), "<", fb.fr)
	fb.b.Call(ir.SlotWrite(lt), ir.SlotArg(ltFn), ir.SlotArg(idx), true, []ir.Arg{ir.SlotArg(length)}, fb.fr)
	test := fb.b.NewSlot()
	fb.b.Test(ir.SlotWrite(test), ir.SlotArg(lt), fb.fr)
	brIdx := fb.b.TestBr(ir.SlotArg(test), -1, -1, fb.fr)

	bodyStart := fb.b.Label()
	fb.pushScope()
	indexFn := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(indexFn), ir.SlotArg(keysArr), "[]", fb.fr)
	key := fb.b.NewSlot()
	fb.b.Call(ir.SlotWrite(key), ir.SlotArg(indexFn), ir.SlotArg(keysArr), true, []ir.Arg{ir.SlotArg(idx)}, fb.fr)
	loopVar := fb.b.NewSlot()
	fb.emitMove(loopVar, ir.SlotArg(key))
	fb.declare(st.Var, loopVar)

	fb.lowerBlock(st.Body)
	bodyOverlay := fb.scope.vars
	bodyTerminated := fb.blockTerminated()
	fb.popScope()

	bodyBr := -1
	if !bodyTerminated {
		bodyBr = fb.b.Br(-1, fb.fr)
	}
	post := fb.b.Label()
	if bodyBr >= 0 {
		fb.b.Patch(bodyBr, post, -1)
	}
	incFn := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(incFn), ir.SlotArg(idx), "+", fb.fr)
	nextIdx := fb.b.NewSlot()
	fb.b.Call(ir.SlotWrite(nextIdx), ir.SlotArg(incFn), ir.SlotArg(idx), true, []ir.Arg{ir.ValueArg(object.Int(1))}, fb.fr)
	backEdge := fb.b.CurrentBlock()
	fb.b.Br(header, fb.fr)

	merged := map[string]int{}
	for name, v := range bodyOverlay {
		if _, isCarried := carried[name]; isCarried {
			merged[name] = v
		}
	}
	merged[idxKey] = nextIdx
	fb.finishLoopCarry(phiIdx, phiSlot, true, merged, backEdge, nil)

	exit := fb.b.Label()
	fb.b.Patch(brIdx, bodyStart, exit)

	fb.loops = ctx.parent
	for _, i := range ctx.breaks {
		fb.b.Patch(i, exit, -1)
	}
	for _, i := range ctx.continues {
		fb.b.Patch(i, post, -1)
	}
}

func (fb *funcBuilder) findLoop(label string) *loopCtx {
	for l := fb.loops; l != nil; l = l.parent {
		if label == "" || l.label == label {
			return l
		}
	}
	return nil
}

func (fb *funcBuilder) lowerBreak(label string) {
	l := fb.findLoop(label)
	if l == nil {
		return
	}
	idx := fb.b.Br(-1, fb.fr)
	l.breaks = append(l.breaks, idx)
}

func (fb *funcBuilder) lowerContinue(label string) {
	l := fb.findLoop(label)
	if l == nil {
		return
	}
	predBlock := fb.b.CurrentBlock()
	vals := map[string]int{}
	for name := range l.carried {
		if slot, ok := fb.scope.lookup(name); ok {
			vals[name] = slot
		}
	}
	idx := fb.b.Br(-1, fb.fr)
	l.continues = append(l.continues, idx)
	l.continueEdges = append(l.continueEdges, loopEdge{block: predBlock, vals: vals})
}

// --- expressions ------------------------------------------------------------

func (fb *funcBuilder) lowerExpr(e Expr) ir.Arg {
	switch ex := e.(type) {
	case *NumberLit:
		return fb.lowerNumber(ex)
	case *StringLit:
		dst := fb.b.NewSlot()
		fb.b.AllocStringObject(ir.SlotWrite(dst), ex.Value, fb.pos(ex.Line, ex.Col))
		return ir.SlotArg(dst)
	case *BoolLit:
		return ir.ValueArg(object.Bool(ex.Value))
	case *NullLit:
		return ir.ValueArg(object.Null)
	case *Ident:
		return fb.lowerIdent(ex)
	case *ArrayLit:
		elems := make([]ir.Arg, len(ex.Elements))
		for i, el := range ex.Elements {
			elems[i] = fb.lowerExpr(el)
		}
		dst := fb.b.NewSlot()
		fb.b.AllocArray(ir.SlotWrite(dst), elems, fb.pos(ex.Line, ex.Col))
		return ir.SlotArg(dst)
	case *ObjectLit:
		return fb.lowerObjectLit(ex)
	case *NewExpr:
		return fb.lowerNew(ex)
	case *FuncExpr:
		return fb.lowerFuncExpr(ex)
	case *CallExpr:
		return fb.lowerCall(ex)
	case *IndexExpr:
		return fb.lowerIndex(ex)
	case *PropExpr:
		return fb.lowerProp(ex)
	case *BinaryExpr:
		return fb.lowerOperator(ex.Op, ex.Left, ex.Right, ex.Line, ex.Col)
	case *LogicalExpr:
		return fb.lowerLogical(ex)
	case *UnaryExpr:
		return fb.lowerUnary(ex)
	case *InExpr:
		obj := fb.lowerExpr(ex.Obj)
		key := fb.lowerExpr(ex.Key)
		dst := fb.b.NewSlot()
		fb.b.KeyInObj(ir.SlotWrite(dst), obj, key, fb.pos(ex.Line, ex.Col))
		return ir.SlotArg(dst)
	case *IsExpr:
		value := fb.lowerExpr(ex.Value)
		proto := fb.lowerExpr(ex.Proto)
		dst := fb.b.NewSlot()
		fb.b.Identical(ir.SlotWrite(dst), value, proto, fb.pos(ex.Line, ex.Col))
		return ir.SlotArg(dst)
	case *InstanceOfExpr:
		value := fb.lowerExpr(ex.Value)
		proto := fb.lowerExpr(ex.Proto)
		dst := fb.b.NewSlot()
		fb.b.InstanceOf(ir.SlotWrite(dst), value, proto, fb.pos(ex.Line, ex.Col))
		return ir.SlotArg(dst)
	}
	return ir.ValueArg(object.Null)
}

func (fb *funcBuilder) pos(line, col int) ir.FileRange { return ir.FileRange{Line: line, Col: col} }

func (fb *funcBuilder) lowerNumber(n *NumberLit) ir.Arg {
	if i, err := strconv.ParseInt(n.Raw, 10, 32); err == nil {
		return ir.ValueArg(object.Int(int32(i)))
	}
	f, _ := strconv.ParseFloat(n.Raw, 32)
	return ir.ValueArg(object.Float(float32(f)))
}

// lowerIdent resolves a bare name: a local in the current or an
// enclosing block scope of this same function resolves to its slot
// directly; anything else is a free variable, read off the context
// chain (captured free variables, then transitively whatever the
// enclosing functions captured, then Root's builtins).
func (fb *funcBuilder) lowerIdent(id *Ident) ir.Arg {
	if slot, ok := fb.scope.lookup(id.Name); ok {
		return ir.SlotArg(slot)
	}
	dst := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(dst), fb.contextArg(), id.Name, fb.pos(id.Line, id.Col))
	return ir.SlotArg(dst)
}

// contextArg is the Arg reads/writes of free identifiers use: this
// function's own ContextSlot, reserving it the first time it's needed.
func (fb *funcBuilder) contextArg() ir.Arg {
	if fb.b.ContextSlotReserved() {
		return ir.SlotArg(fb.b.ExistingContextSlot())
	}
	return ir.SlotArg(fb.b.ReserveContext())
}

func (fb *funcBuilder) lowerObjectLit(ex *ObjectLit) ir.Arg {
	var parent ir.Arg
	if ex.Parent != nil {
		parent = fb.lowerExpr(ex.Parent)
	} else {
		parent = ir.ValueArg(object.Null)
	}
	dst := fb.b.NewSlot()
	fb.b.AllocObject(ir.SlotWrite(dst), parent, fb.pos(ex.Line, ex.Col))
	for _, field := range ex.Fields {
		val := fb.lowerExpr(field.Value)
		fb.b.AssignStringKey(ir.ModePlain, ir.SlotArg(dst), field.Name, val, fb.pos(ex.Line, ex.Col))
		if field.Type != nil {
			constraint := fb.lowerExpr(field.Type)
			keySlot := fb.b.NewSlot()
			fb.b.AllocStringObject(ir.SlotWrite(keySlot), field.Name, fb.pos(ex.Line, ex.Col))
			fb.b.SetConstraint(ir.SlotArg(dst), ir.SlotArg(keySlot), constraint, fb.pos(ex.Line, ex.Col))
		}
	}
	if ex.Frozen {
		fb.b.FreezeObject(ir.SlotArg(dst), fb.pos(ex.Line, ex.Col))
	} else {
		fb.b.CloseObject(ir.SlotArg(dst), fb.pos(ex.Line, ex.Col))
	}
	return ir.SlotArg(dst)
}

func (fb *funcBuilder) lowerNew(ex *NewExpr) ir.Arg {
	proto := fb.lowerExpr(ex.Proto)
	obj := fb.b.NewSlot()
	fb.b.AllocObject(ir.SlotWrite(obj), proto, fb.pos(ex.Line, ex.Col))
	if ex.Body != nil {
		for _, field := range ex.Body.Fields {
			val := fb.lowerExpr(field.Value)
			fb.b.AssignStringKey(ir.ModePlain, ir.SlotArg(obj), field.Name, val, fb.pos(ex.Line, ex.Col))
		}
	}
	fb.b.CloseObject(ir.SlotArg(obj), fb.pos(ex.Line, ex.Col))
	ctor := fb.b.NewSlot()
	found := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(ctor), proto, "init", fb.pos(ex.Line, ex.Col))
	fb.b.Test(ir.SlotWrite(found), ir.SlotArg(ctor), fb.pos(ex.Line, ex.Col))
	brIdx := fb.b.TestBr(ir.SlotArg(found), -1, -1, fb.pos(ex.Line, ex.Col))

	callBlock := fb.b.Label()
	args := make([]ir.Arg, len(ex.Args))
	for i, a := range ex.Args {
		args[i] = fb.lowerExpr(a)
	}
	fb.b.Call(ir.SlotWrite(fb.b.NewSlot()), ir.SlotArg(ctor), ir.SlotArg(obj), true, args, fb.pos(ex.Line, ex.Col))
	fb.b.Br(-1, fb.fr)
	skipIdx := fb.lastInstrIdx()

	skipBlock := fb.b.Label()
	fb.b.Patch(brIdx, callBlock, skipBlock)
	join := fb.b.Label()
	fb.b.Patch(skipIdx, join, -1)
	return ir.SlotArg(obj)
}

func (fb *funcBuilder) lowerCall(ex *CallExpr) ir.Arg {
	args := make([]ir.Arg, len(ex.Args))
	for i, a := range ex.Args {
		args[i] = fb.lowerExpr(a)
	}
	fr := fb.pos(ex.Line, ex.Col)

	if prop, ok := ex.Callee.(*PropExpr); ok {
		recv := fb.lowerExpr(prop.Object)
		fn := fb.b.NewSlot()
		fb.b.AccessStringKey(ir.SlotWrite(fn), recv, prop.Name, fr)
		dst := fb.b.NewSlot()
		fb.b.Call(ir.SlotWrite(dst), ir.SlotArg(fn), recv, true, args, fr)
		return ir.SlotArg(dst)
	}

	callee := fb.lowerExpr(ex.Callee)
	dst := fb.b.NewSlot()
	fb.b.Call(ir.SlotWrite(dst), callee, ir.ValueArg(object.Null), false, args, fr)
	return ir.SlotArg(dst)
}

func (fb *funcBuilder) lowerIndex(ex *IndexExpr) ir.Arg {
	obj := fb.lowerExpr(ex.Object)
	idx := fb.lowerExpr(ex.Index)
	dst := fb.b.NewSlot()
	fb.b.Access(ir.SlotWrite(dst), obj, idx, fb.pos(ex.Line, ex.Col))
	return ir.SlotArg(dst)
}

func (fb *funcBuilder) lowerProp(ex *PropExpr) ir.Arg {
	obj := fb.lowerExpr(ex.Object)
	dst := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(dst), obj, ex.Name, fb.pos(ex.Line, ex.Col))
	return ir.SlotArg(dst)
}

// lowerOperator lowers every arithmetic/comparison/bitwise binary
// operator as an overload call: left[op](right), the pattern
// internal/vm/vm_test.go's buildAdd helper exercises for OpCall +
// AccessStringKey. Primitive fast paths are the optimizer's job
// (inline_primitive_accesses), not the parser's.
func (fb *funcBuilder) lowerOperator(op string, leftExpr, rightExpr Expr, line, col int) ir.Arg {
	left := fb.lowerExpr(leftExpr)
	right := fb.lowerExpr(rightExpr)
	fr := fb.pos(line, col)
	fn := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(fn), left, op, fr)
	dst := fb.b.NewSlot()
	fb.b.Call(ir.SlotWrite(dst), ir.SlotArg(fn), left, true, []ir.Arg{right}, fr)
	return ir.SlotArg(dst)
}

// lowerLogical short-circuits && and || with a branch rather than
// calling through as an overload: both operands must be evaluated
// lazily per spec §6, unlike the other binary operators.
func (fb *funcBuilder) lowerLogical(ex *LogicalExpr) ir.Arg {
	fr := fb.pos(ex.Line, ex.Col)
	left := fb.lowerExpr(ex.Left)
	test := fb.b.NewSlot()
	fb.b.Test(ir.SlotWrite(test), left, fr)
	brIdx := fb.b.TestBr(ir.SlotArg(test), -1, -1, fr)

	var evalRightBlock, shortCircuitBlock int
	if ex.Op == "&&" {
		evalRightBlock = fb.b.Label()
	} else {
		shortCircuitBlock = fb.b.Label()
	}

	if ex.Op == "&&" {
		right := fb.lowerExpr(ex.Right)
		rightSlot := fb.b.NewSlot()
		fb.emitMove(rightSlot, right)
		rightEnd := fb.b.CurrentBlock()
		fb.b.Br(-1, fr)
		brToJoin1 := fb.lastInstrIdx()

		shortBlock := fb.b.Label()
		fb.b.Patch(brIdx, evalRightBlock, shortBlock)
		shortEnd := fb.b.CurrentBlock()
		fb.b.Br(-1, fr)
		brToJoin2 := fb.lastInstrIdx()

		join := fb.b.Label()
		fb.b.Patch(brToJoin1, join, -1)
		fb.b.Patch(brToJoin2, join, -1)
		dst := fb.b.NewSlot()
		fb.b.Phi(ir.SlotWrite(dst), map[int]ir.Arg{rightEnd: ir.SlotArg(rightSlot), shortEnd: left}, fr)
		return ir.SlotArg(dst)
	}

	leftEnd := fb.b.CurrentBlock()
	fb.b.Br(-1, fr)
	brToJoin1 := fb.lastInstrIdx()

	rightBlock := fb.b.Label()
	fb.b.Patch(brIdx, shortCircuitBlock, rightBlock)
	right := fb.lowerExpr(ex.Right)
	rightSlot := fb.b.NewSlot()
	fb.emitMove(rightSlot, right)
	rightEnd := fb.b.CurrentBlock()
	fb.b.Br(-1, fr)
	brToJoin2 := fb.lastInstrIdx()

	join := fb.b.Label()
	fb.b.Patch(brToJoin1, join, -1)
	fb.b.Patch(brToJoin2, join, -1)
	dst := fb.b.NewSlot()
	fb.b.Phi(ir.SlotWrite(dst), map[int]ir.Arg{leftEnd: left, rightEnd: ir.SlotArg(rightSlot)}, fr)
	return ir.SlotArg(dst)
}

func (fb *funcBuilder) lowerUnary(ex *UnaryExpr) ir.Arg {
	operand := fb.lowerExpr(ex.Operand)
	fr := fb.pos(ex.Line, ex.Col)
	fn := fb.b.NewSlot()
	fb.b.AccessStringKey(ir.SlotWrite(fn), operand, ex.Op, fr)
	dst := fb.b.NewSlot()
	fb.b.Call(ir.SlotWrite(dst), ir.SlotArg(fn), operand, true, nil, fr)
	return ir.SlotArg(dst)
}

// lowerFuncExpr lowers a nested function/method literal. Free variables
// referenced in the body (anything not a parameter or local) are
// captured by value into a fresh context object at the point the
// closure is created, parented to the enclosing function's own
// context — so a lookup that misses the immediate capture falls
// through to whatever the enclosing scopes (and, ultimately, Root)
// hold. Mutating a variable after capture doesn't reach back into the
// closure: captures are a snapshot, not a live cell, a simplification
// recorded in DESIGN.md.
func (fb *funcBuilder) lowerFuncExpr(ex *FuncExpr) ir.Arg {
	free := freeVariables(ex)
	names := make([]string, 0, len(free))
	values := make([]ir.Arg, 0, len(free))
	for name := range free {
		if slot, ok := fb.scope.lookup(name); ok {
			names = append(names, name)
			values = append(values, ir.SlotArg(slot))
		}
	}

	var ctxArg ir.Arg
	if len(names) == 0 {
		ctxArg = fb.contextArgForChild()
	} else {
		tmpl := &ir.StaticTemplate{Keys: names, Values: values}
		ctxSlot := fb.b.NewSlot()
		fb.b.AllocStatic(ir.SlotWrite(ctxSlot), fb.contextArgForChild(), tmpl, fb.pos(ex.Line, ex.Col))
		ctxArg = ir.SlotArg(ctxSlot)
	}

	sub := newFuncBuilder(ex.Name)
	if ex.IsMethod {
		thisSlot := sub.b.ReserveThis()
		sub.declare("this", thisSlot)
	}
	for _, p := range ex.Params {
		slot := sub.b.ReserveParam()
		sub.declare(p, slot)
	}
	if ex.Variadic {
		sub.b.SetVariadic(true)
	}
	sub.b.ReserveContext()
	sub.lowerBlock(ex.Body)
	sub.finishImplicitReturn()
	protoFn := sub.b.Finish()
	optimizer.Phase1(protoFn)

	dst := fb.b.NewSlot()
	fb.b.AllocClosure(ir.SlotWrite(dst), protoFn, ctxArg, fb.pos(ex.Line, ex.Col))
	return ir.SlotArg(dst)
}

// contextArgForChild is the Arg passed as a nested closure's parent
// context: always this function's own context slot, which contextArg
// reserves lazily if the function has none yet, so every function that
// contains a nested FuncExpr has a context to chain from. It never
// returns Null.
func (fb *funcBuilder) contextArgForChild() ir.Arg {
	return fb.contextArg()
}
