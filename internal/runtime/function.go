package runtime

import (
	"quill/internal/gc"
	"quill/internal/object"
)

// installFunctionOps wires the one property both function and closure
// values need outside the VM's own calling convention: a diagnostic
// toString. Calling them is handled entirely by internal/vm reading
// Object.Native (a NativeFn or *ir.Closure), not through a property.
func (b *Bases) installFunctionOps(gcs *gc.State) {
	toString := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		return object.Obj(NewString(alloc, b.String, b.keys, "<function>")), nil
	}
	b.set(gcs, b.Function, "toString", toString)
	b.set(gcs, b.Closure, "toString", toString)
}
