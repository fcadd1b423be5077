// cmd/interp is the script runner: `interp <script> [args...] [-v]
// [-prof FILE]` (spec §6). Positional arguments after the script path
// become an `arguments` array on the root object; -v additionally
// dumps the top-level script function's IR (nested function bodies are
// not dumped) and the VM's cycle count to stderr; -prof
// attaches a sampling profiler and writes a callgrind-format report to
// FILE after the script returns (regardless of whether it errored).
// Exit 0 on success, 1 on a parse or runtime failure.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"quill/internal/errors"
	"quill/internal/ir"
	"quill/internal/lexer"
	"quill/internal/object"
	"quill/internal/parser"
	"quill/internal/profile"
	"quill/internal/runtime"
	"quill/internal/vm"
)

func main() {
	verbose := flag.Bool("v", false, "dump IR and cycle count")
	profPath := flag.String("prof", "", "write a callgrind-format profile to FILE")
	flag.Parse()

	args := flag.Args()
	// flag stops at the first non-flag argument, so -v/-prof given
	// after the script path are picked out here.
	var rest []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-v":
			*verbose = true
		case args[i] == "-prof" && i+1 < len(args):
			*profPath = args[i+1]
			i++
		default:
			rest = append(rest, args[i])
		}
	}
	args = rest
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: interp <script> [args...] [-v] [-prof FILE]")
		os.Exit(1)
	}
	path := args[0]
	scriptArgs := args[1:]

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interp: %v\n", err)
		os.Exit(1)
	}

	if !run(path, string(source), scriptArgs, *verbose, *profPath) {
		os.Exit(1)
	}
}

// run parses, lowers, and executes source, returning false on any
// parse or runtime failure (the condition cmd/interp exits 1 on).
func run(path, source string, scriptArgs []string, verbose bool, profPath string) bool {
	scan := lexer.NewScanner(path, source)
	tokens := scan.ScanTokens()
	if len(scan.Errors) > 0 {
		reportParseErrors(path, scan.Errors)
		return false
	}

	p := parser.NewParser(path, source, tokens)
	stmts := p.Parse()
	if len(p.Errors) > 0 {
		reportParseErrors(path, p.Errors)
		return false
	}

	fn := parser.Lower(stmts)
	if verbose {
		fmt.Fprintln(os.Stderr, ir.Dump(fn))
	}

	state := vm.New()
	bindArguments(state, scriptArgs)
	if profPath != "" {
		state.Profiler = profile.New()
		defer writeProfile(state, profPath)
	}

	result, err := state.Run(fn, nil)
	if verbose {
		fmt.Fprintf(os.Stderr, "cycles: %d\n", state.Cycles)
	}
	if err != nil {
		reportRuntimeError(err)
		return false
	}
	if !object.IsNull(result) {
		fmt.Println(result.String())
	}
	return true
}

// writeProfile renders state's accumulated samples to path in
// callgrind format, reporting any write failure but never causing the
// script's own exit status to change on account of it.
func writeProfile(state *vm.State, path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interp: -prof: %v\n", err)
		return
	}
	defer f.Close()

	heap := uint64(state.GC.Stats().BytesAllocated)
	if err := state.Profiler.Write(f, state.Session.String(), heap); err != nil {
		fmt.Fprintf(os.Stderr, "interp: -prof: %v\n", err)
	}
}

// bindArguments installs the script's positional arguments as an
// `arguments` array directly on the session's root object (spec §6);
// unlike a closure's captured context, the top-level script resolves
// free identifiers straight through Root (see internal/vm.State.Run),
// so this is the one place a CLI-supplied value can reach user code.
func bindArguments(state *vm.State, scriptArgs []string) {
	elems := make([]object.Value, len(scriptArgs))
	for i, a := range scriptArgs {
		elems[i] = object.Obj(runtime.NewString(state.GC, state.Bases.String, state.Keys, a))
	}
	arr := runtime.NewArray(state.GC, state.Bases.Array, state.Keys, elems)
	fk := state.Keys.Prepare("arguments")
	if err := object.Set(state.Bases.Root, &fk, object.Obj(arr)); err != nil {
		panic(fmt.Sprintf("interp: binding arguments: %v", err))
	}
}

func reportParseErrors(path string, errs []error) {
	useColor := isatty.IsTerminal(os.Stdout.Fd())
	for _, e := range errs {
		if perr, ok := e.(*errors.Error); ok {
			printError(perr, useColor)
			continue
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, e)
	}
}

func reportRuntimeError(err error) {
	if fault, ok := err.(errors.RuntimeFault); ok {
		printError(errors.FromRuntime(fault), false)
		return
	}
	fmt.Fprintf(os.Stderr, "%v\n", err)
}

// printError renders e to stderr, wrapping the whole rendered error in
// ANSI red when stdout is a terminal (spec's CLI leaves coloring as a
// host-environment concern, not a scripted-output one).
func printError(e *errors.Error, useColor bool) {
	if !useColor {
		fmt.Fprint(os.Stderr, e.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "\x1b[31m%s\x1b[0m", e.Error())
}
