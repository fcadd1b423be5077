// cmd/interp-repl is the interactive REPL: reads lines from stdin,
// parsing each as a module and executing it against a persistent root
// (spec §6). A thin wrapper over internal/repl, matching cmd/interp's
// own split between flag parsing and the driver logic it wraps.
package main

import (
	"os"

	"quill/internal/repl"
)

func main() {
	repl.Run(os.Stdin, os.Stdout)
}
