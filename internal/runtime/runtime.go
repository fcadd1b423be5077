// Package runtime builds the root object graph (spec §4.I): the base
// prototypes for each primitive tag plus the string/array/closure/
// function/pointer heap types, wired with their operator properties and
// the handful of free functions (print, keys) that live on root itself.
//
// Everything here is grounded on how the teacher's vmregister package
// names its Is*/As*-style helpers, but the storage shape is new: this
// spec's Value (internal/object) is a tagged struct, not a NaN-boxed
// uint64, so these bases hold Go closures (object.NativeFn) rather than
// bytecode addresses.
package runtime

import (
	"fmt"

	"quill/internal/gc"
	"quill/internal/key"
	"quill/internal/object"
)

// Bases collects every prototype the VM consults when it cannot find a
// property on an object's own prototype chain (primitives have no chain
// of their own — ACCESS on an int/float/bool/string/array value starts
// its lookup here instead).
type Bases struct {
	Root     *object.Object
	Int      *object.Object
	Float    *object.Object
	Bool     *object.Object
	String   *object.Object
	Array    *object.Object
	Closure  *object.Object
	Function *object.Object
	Pointer  *object.Object

	keys *key.Table
}

// New builds the full base graph under gcs, interning property names
// through keys. Every base is IMMORTAL and parented directly to Root
// (Root's own parent is nil); none of them are CLOSED, so user code can
// still add properties to e.g. int's prototype — the language makes no
// promise against that, and closing them would contradict the open,
// prototype-based object model spec §2 describes.
func New(gcs *gc.State, keys *key.Table) *Bases {
	b := &Bases{keys: keys}
	b.Root = gcs.Alloc(nil, 0)
	b.Root.Flags |= object.FlagImmortal

	b.Int = b.newBase(gcs)
	b.Int.PrimitiveTag = object.TInt
	b.Float = b.newBase(gcs)
	b.Float.PrimitiveTag = object.TFloat
	b.Bool = b.newBase(gcs)
	b.Bool.PrimitiveTag = object.TBool
	b.String = b.newBase(gcs)
	b.Array = b.newBase(gcs)
	b.Closure = b.newBase(gcs)
	b.Function = b.newBase(gcs)
	b.Pointer = b.newBase(gcs)

	b.installArithmetic(gcs)
	b.installComparison(gcs)
	b.installStringOps(gcs)
	b.installArrayOps(gcs)
	b.installFunctionOps(gcs)
	b.installRootBuiltins(gcs)
	installFFI(b, gcs)

	return b
}

func (b *Bases) newBase(gcs *gc.State) *object.Object {
	o := gcs.Alloc(b.Root, 0)
	o.Flags |= object.FlagImmortal
	return o
}

// BaseFor returns the prototype a non-object Value resolves properties
// against. Objects resolve against their own Parent chain instead.
func (b *Bases) BaseFor(v object.Value) *object.Object {
	switch v.Tag {
	case object.TInt:
		return b.Int
	case object.TFloat:
		return b.Float
	case object.TBool:
		return b.Bool
	default:
		return nil
	}
}

// set installs a native function at name on obj, failing only if the
// key table or allocation misbehaves (it never does in practice — set
// panics rather than threading an error back through every call site in
// this file's bootstrap sequence, matching how the teacher's own
// standard-library registration code treats its own setup errors as
// fatal).
func (b *Bases) set(gcs *gc.State, obj *object.Object, name string, fn object.NativeFn) {
	fk := b.keys.Prepare(name)
	nf := object.NewNativeFunction(gcs, b.Root, b.keys, fn)
	if err := object.Set(obj, &fk, object.Obj(nf)); err != nil {
		panic(fmt.Sprintf("runtime: installing %q: %v", name, err))
	}
}
