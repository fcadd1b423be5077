package object

import "quill/internal/key"

// Allocator is the minimal surface a native builtin needs to create new
// heap objects, satisfied structurally by *gc.State without object
// needing to import gc (which itself imports object for Object/Value).
type Allocator interface {
	Alloc(parent *Object, size int) *Object
}

// NativeFn is the Go-backed implementation of a builtin property (an
// operator overload base case, `print`, array/string methods, ...).
// this is the receiver value; args excludes the receiver.
type NativeFn func(alloc Allocator, this Value, args []Value) (Value, error)

// NewNativeFunction builds a callable Object wrapping fn. The object is
// NOINHERIT (it has no business being used as a prototype) and
// IMMORTAL (builtins outlive every collection cycle); callers still
// allocate it through an Allocator so it threads onto the GC's object
// chain like anything else.
func NewNativeFunction(alloc Allocator, parent *Object, keys *key.Table, fn NativeFn) *Object {
	obj := alloc.Alloc(parent, 0)
	obj.Keys = keys
	obj.Flags |= FlagNoInherit | FlagImmortal
	obj.Native = fn
	return obj
}

// AsNative reports whether obj wraps a NativeFn, returning it if so.
func AsNative(obj *Object) (NativeFn, bool) {
	if obj == nil {
		return nil, false
	}
	fn, ok := obj.Native.(NativeFn)
	return fn, ok
}
