// Package repl drives an interactive session: each line read from
// stdin is parsed as its own module and lowered and run independently,
// but all lines share one vm.State and, in particular, one Bases.Root
// (spec §6: "executing it against a persistent root").
//
// internal/parser's lowering always gives a top-level `var` a fresh
// local slot in that line's own ir.UserFunction (see lower.go's VarStmt
// case), so two separately-lowered lines never see the same slot. The
// only thing actually shared across lines is the context argument every
// top-level script runs with — vm.State.Run always invokes against
// Bases.Root — so a REPL binding has to live there instead. Session
// rewrites each line's top-level VarStmt/FuncDeclStmt into an
// AssignStmt targeting the same name, and pre-declares the name on Root
// the first time it's seen; lowerAssign's free-identifier path already
// writes through the context chain for any name not found in the
// line's own (empty) local scope, and lowerIdent already reads free
// identifiers the same way, so no change to internal/parser itself is
// needed.
package repl

import (
	"bufio"
	"fmt"
	"io"

	"quill/internal/errors"
	"quill/internal/lexer"
	"quill/internal/object"
	"quill/internal/parser"
	"quill/internal/vm"
)

// Session is one REPL's worth of persistent state: the VM session the
// lines run against, and the set of top-level names already declared on
// Root this session.
type Session struct {
	State    *vm.State
	declared map[string]bool
}

func NewSession() *Session {
	return &Session{
		State:    vm.New(),
		declared: map[string]bool{},
	}
}

// Result is one line's outcome: at most one of Value or Err is set.
// ParseErrs holds structured *errors.Error values when lexing or
// parsing failed; Err holds a runtime failure from executing the line.
type Result struct {
	Value     object.Value
	Err       error
	ParseErrs []error
}

// Eval parses line as a standalone module and runs it against the
// session's persistent root, returning without mutating Root on a parse
// failure.
func (s *Session) Eval(file, line string) Result {
	scan := lexer.NewScanner(file, line)
	tokens := scan.ScanTokens()
	if len(scan.Errors) > 0 {
		return Result{ParseErrs: scan.Errors}
	}

	p := parser.NewParser(file, line, tokens)
	stmts := p.Parse()
	if len(p.Errors) > 0 {
		return Result{ParseErrs: p.Errors}
	}

	stmts = s.rewriteTopLevel(stmts)
	fn := parser.Lower(stmts)

	v, err := s.State.Run(fn, nil)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

// rewriteTopLevel turns top-level var/function declarations into plain
// assignments against a name pre-declared on Root, so the binding
// outlives this one line's lowering.
func (s *Session) rewriteTopLevel(stmts []parser.Stmt) []parser.Stmt {
	out := make([]parser.Stmt, len(stmts))
	for i, st := range stmts {
		switch st := st.(type) {
		case *parser.VarStmt:
			s.declare(st.Name)
			out[i] = &parser.AssignStmt{
				Target: &parser.Ident{Name: st.Name, Line: st.Line, Col: st.Col},
				Value:  st.Value,
				Line:   st.Line,
				Col:    st.Col,
			}
		case *parser.FuncDeclStmt:
			if st.Fn.Name == "" {
				out[i] = st
				continue
			}
			s.declare(st.Fn.Name)
			out[i] = &parser.AssignStmt{
				Target: &parser.Ident{Name: st.Fn.Name},
				Value:  st.Fn,
			}
		default:
			out[i] = st
		}
	}
	return out
}

// declare makes name resolvable as a ModeExisting assignment target by
// giving it a null placeholder on Root, the first time this session
// sees it.
func (s *Session) declare(name string) {
	if s.declared[name] {
		return
	}
	s.declared[name] = true
	fk := s.State.Keys.Prepare(name)
	if err := object.Set(s.State.Bases.Root, &fk, object.Null); err != nil {
		panic(fmt.Sprintf("repl: declaring %q: %v", name, err))
	}
}

// Run reads lines from in until EOF or a line equal to "exit", printing
// each result (or error) to out.
func Run(in io.Reader, out io.Writer) {
	session := NewSession()
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "quill REPL | type 'exit' to quit")
	for {
		fmt.Fprint(out, ">>> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "exit" {
			break
		}
		if line == "" {
			continue
		}

		result := session.Eval("<repl>", line)
		switch {
		case len(result.ParseErrs) > 0:
			for _, e := range result.ParseErrs {
				if perr, ok := e.(*errors.Error); ok {
					fmt.Fprint(out, perr.Error())
					continue
				}
				fmt.Fprintln(out, e)
			}
		case result.Err != nil:
			if fault, ok := result.Err.(errors.RuntimeFault); ok {
				fmt.Fprint(out, errors.FromRuntime(fault).Error())
			} else {
				fmt.Fprintln(out, result.Err)
			}
		case !object.IsNull(result.Value):
			fmt.Fprintln(out, result.Value.String())
		}
	}
}

