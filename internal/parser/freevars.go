package parser

// freeVariables returns the set of identifier names ex's body reads or
// assigns that aren't bound by one of its own parameters, its own
// var/const declarations, or a loop variable it introduces — the set
// lowerFuncExpr captures from the enclosing function's locals when
// building the closure's context object. Names free here that the
// enclosing function doesn't bind locally either are left uncaptured
// deliberately: they resolve at runtime by walking up the context
// chain instead (see lowerFuncExpr's doc comment), so computing the
// full transitive closure isn't required for correctness, only for
// correctly handling shadowing of an outer name re-bound partway
// between the two functions.
func freeVariables(ex *FuncExpr) map[string]struct{} {
	free := map[string]struct{}{}
	bound := map[string]bool{}
	for _, p := range ex.Params {
		bound[p] = true
	}
	scanStmts(ex.Body, bound, free)
	return free
}

func cloneBound(bound map[string]bool) map[string]bool {
	c := make(map[string]bool, len(bound))
	for k, v := range bound {
		c[k] = v
	}
	return c
}

func scanStmts(stmts []Stmt, bound map[string]bool, free map[string]struct{}) {
	for _, s := range stmts {
		scanStmt(s, bound, free)
	}
}

func scanStmt(s Stmt, bound map[string]bool, free map[string]struct{}) {
	switch st := s.(type) {
	case *VarStmt:
		scanExpr(st.Value, bound, free)
		if st.Type != nil {
			scanExpr(st.Type, bound, free)
		}
		bound[st.Name] = true

	case *ExprStmt:
		scanExpr(st.Expr, bound, free)

	case *AssignStmt:
		scanExpr(st.Value, bound, free)
		scanAssignTarget(st.Target, bound, free)

	case *ReturnStmt:
		if st.Value != nil {
			scanExpr(st.Value, bound, free)
		}

	case *IfStmt:
		scanExpr(st.Cond, bound, free)
		scanStmts(st.Then, cloneBound(bound), free)
		scanStmts(st.Else, cloneBound(bound), free)

	case *WhileStmt:
		scanExpr(st.Cond, bound, free)
		scanStmts(st.Body, cloneBound(bound), free)

	case *ForStmt:
		inner := cloneBound(bound)
		if st.Init != nil {
			scanStmt(st.Init, inner, free)
		}
		if st.Cond != nil {
			scanExpr(st.Cond, inner, free)
		}
		if st.Post != nil {
			scanStmt(st.Post, inner, free)
		}
		scanStmts(st.Body, cloneBound(inner), free)

	case *ForInStmt:
		scanExpr(st.Collection, bound, free)
		inner := cloneBound(bound)
		inner[st.Var] = true
		scanStmts(st.Body, inner, free)

	case *FuncDeclStmt:
		for name := range freeVariables(st.Fn) {
			if !bound[name] {
				free[name] = struct{}{}
			}
		}
		if st.Fn.Name != "" {
			bound[st.Fn.Name] = true
		}
	}
}

// assignedNamesIn collects every bare-identifier assignment target
// reachable from stmts without crossing into a nested function body: the
// candidate set lowerWhile/lowerFor check against the enclosing scope to
// find which loop-carried variables need a PHI at the loop header.
// Over-approximating (a name assigned only inside an arm that never
// runs, or one declared fresh inside a nested block) is harmless — the
// caller filters against what existed in scope before the loop.
func assignedNamesIn(stmts []Stmt) map[string]bool {
	names := map[string]bool{}
	var walkStmt func(Stmt)
	walkStmts := func(ss []Stmt) {
		for _, s := range ss {
			walkStmt(s)
		}
	}
	walkStmt = func(s Stmt) {
		switch st := s.(type) {
		case *AssignStmt:
			if id, ok := st.Target.(*Ident); ok {
				names[id.Name] = true
			}
		case *IfStmt:
			walkStmts(st.Then)
			walkStmts(st.Else)
		case *WhileStmt:
			walkStmts(st.Body)
		case *ForStmt:
			if st.Init != nil {
				walkStmt(st.Init)
			}
			if st.Post != nil {
				walkStmt(st.Post)
			}
			walkStmts(st.Body)
		case *ForInStmt:
			walkStmts(st.Body)
		}
	}
	walkStmts(stmts)
	return names
}

func scanAssignTarget(e Expr, bound map[string]bool, free map[string]struct{}) {
	switch t := e.(type) {
	case *Ident:
		if !bound[t.Name] {
			free[t.Name] = struct{}{}
		}
	case *PropExpr:
		scanExpr(t.Object, bound, free)
	case *IndexExpr:
		scanExpr(t.Object, bound, free)
		scanExpr(t.Index, bound, free)
	}
}

func scanExpr(e Expr, bound map[string]bool, free map[string]struct{}) {
	switch ex := e.(type) {
	case *Ident:
		if !bound[ex.Name] {
			free[ex.Name] = struct{}{}
		}
	case *ArrayLit:
		for _, el := range ex.Elements {
			scanExpr(el, bound, free)
		}
	case *ObjectLit:
		if ex.Parent != nil {
			scanExpr(ex.Parent, bound, free)
		}
		for _, f := range ex.Fields {
			scanExpr(f.Value, bound, free)
			if f.Type != nil {
				scanExpr(f.Type, bound, free)
			}
		}
	case *NewExpr:
		scanExpr(ex.Proto, bound, free)
		for _, a := range ex.Args {
			scanExpr(a, bound, free)
		}
		if ex.Body != nil {
			for _, f := range ex.Body.Fields {
				scanExpr(f.Value, bound, free)
			}
		}
	case *FuncExpr:
		for name := range freeVariables(ex) {
			if !bound[name] {
				free[name] = struct{}{}
			}
		}
	case *CallExpr:
		scanExpr(ex.Callee, bound, free)
		for _, a := range ex.Args {
			scanExpr(a, bound, free)
		}
	case *IndexExpr:
		scanExpr(ex.Object, bound, free)
		scanExpr(ex.Index, bound, free)
	case *PropExpr:
		scanExpr(ex.Object, bound, free)
	case *BinaryExpr:
		scanExpr(ex.Left, bound, free)
		scanExpr(ex.Right, bound, free)
	case *LogicalExpr:
		scanExpr(ex.Left, bound, free)
		scanExpr(ex.Right, bound, free)
	case *UnaryExpr:
		scanExpr(ex.Operand, bound, free)
	case *InExpr:
		scanExpr(ex.Key, bound, free)
		scanExpr(ex.Obj, bound, free)
	case *IsExpr:
		scanExpr(ex.Value, bound, free)
		scanExpr(ex.Proto, bound, free)
	case *InstanceOfExpr:
		scanExpr(ex.Value, bound, free)
		scanExpr(ex.Proto, bound, free)
	}
}
