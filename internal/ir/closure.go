package ir

import "quill/internal/object"

// Closure is the Go-side payload of an ALLOC_CLOSURE_OBJECT result,
// stashed in Object.Native: the compiled function plus the captured
// context object the closure was built in (spec §3's "ClosureObject").
// It lives here rather than in internal/object because it names
// *UserFunction, and not in internal/vm because internal/runtime (which
// builds function/closure prototypes) must also reference it without
// depending on the VM package.
type Closure struct {
	Proto   *UserFunction
	Context *object.Object
}
