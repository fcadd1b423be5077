package runtime

import (
	"fmt"

	"quill/internal/gc"
	"quill/internal/object"
)

// pointerData backs a PointerObject: a raw byte buffer (standing in for
// foreign memory) and the C type name it was typed as, for diagnostics.
type pointerData struct {
	bytes []byte
	ctype string
}

func newPointer(alloc object.Allocator, parent *object.Object, bytes []byte, ctype string) *object.Object {
	o := alloc.Alloc(parent, len(bytes))
	o.Native = &pointerData{bytes: bytes, ctype: ctype}
	return o
}

// installFFI wires the ffi module shape described in SPEC_FULL.md: the
// CType constants (as ints), StructType and open functions that always
// fail as not supported, and on pointer objects a sym method that always
// fails with "symbol not found" and a working toString. No foreign
// symbol is ever bound.
func installFFI(b *Bases, gcs *gc.State) {
	ffiMod := b.newBase(gcs)

	ctypes := ffiMod
	for i, name := range []string{"void", "int8", "uint8", "int32", "uint32", "int64", "uint64", "float", "double", "pointer"} {
		fk := b.keys.Prepare(name)
		if err := object.Set(ctypes, &fk, object.Int(int32(i))); err != nil {
			panic(fmt.Sprintf("runtime: installing ffi.%s: %v", name, err))
		}
	}

	structType := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		return object.Null, fmt.Errorf("ffi: struct type definitions are not supported by this runtime")
	}
	open := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		return object.Null, fmt.Errorf("ffi: dynamic library loading is not supported by this runtime")
	}
	sym := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		return object.Null, fmt.Errorf("ffi: symbol not found")
	}

	b.set(gcs, ffiMod, "StructType", structType)
	b.set(gcs, ffiMod, "open", open)
	b.set(gcs, b.Pointer, "sym", sym)
	b.set(gcs, b.Pointer, "toString", func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		if this.Tag != object.TObject {
			return object.Null, fmt.Errorf("receiver is not a pointer")
		}
		pd, ok := this.Obj.Native.(*pointerData)
		if !ok {
			return object.Null, fmt.Errorf("receiver is not a pointer")
		}
		return object.Obj(NewString(alloc, b.String, b.keys, fmt.Sprintf("<pointer %s, %d bytes>", pd.ctype, len(pd.bytes)))), nil
	})

	fk := b.keys.Prepare("ffi")
	if err := object.Set(b.Root, &fk, object.Obj(ffiMod)); err != nil {
		panic(fmt.Sprintf("runtime: installing ffi module: %v", err))
	}
}
