package runtime

import (
	"fmt"
	"sort"

	"quill/internal/gc"
	"quill/internal/object"
)

// installRootBuiltins wires the handful of free functions the language
// exposes directly on root rather than on a type's base: print, keys,
// and malloc (spec §4.I).
//
// print deliberately does not dispatch a user-defined toString override
// through the VM's call convention — it falls back to Value.String()
// for every argument. A toString-aware print is just user code that
// looks the property up and calls it itself; keeping the builtin dumb
// avoids giving internal/runtime a dependency on internal/vm.
func (b *Bases) installRootBuiltins(gcs *gc.State) {
	print := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		parts := make([]interface{}, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Println(parts...)
		return object.Null, nil
	}
	keysFn := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		if len(args) != 1 || args[0].Tag != object.TObject {
			return object.Null, fmt.Errorf("keys requires exactly 1 object argument")
		}
		var names []string
		args[0].Obj.Tbl.Each(func(e *object.Entry) {
			if s, ok := b.keys.Lookup(e.Hash); ok {
				names = append(names, s)
			} else {
				names = append(names, e.KeyPtr)
			}
		})
		sort.Strings(names)
		elems := make([]object.Value, len(names))
		for i, n := range names {
			elems[i] = object.Obj(NewString(alloc, b.String, b.keys, n))
		}
		return object.Obj(NewArray(alloc, b.Array, b.keys, elems)), nil
	}
	malloc := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		if len(args) != 1 || args[0].Tag != object.TInt {
			return object.Null, fmt.Errorf("malloc requires one int size argument")
		}
		return object.Obj(newPointer(alloc, b.Pointer, make([]byte, args[0].I), "void")), nil
	}

	b.set(gcs, b.Root, "print", print)
	b.set(gcs, b.Root, "keys", keysFn)
	b.set(gcs, b.Root, "malloc", malloc)
}
