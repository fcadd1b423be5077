package runtime

import (
	"fmt"

	"quill/internal/gc"
	"quill/internal/key"
	"quill/internal/object"
)

// NewString allocates a heap string object. The Go string payload rides
// in Native; strings are immutable here (as in spec §3's ALLOC_STRING_OBJECT)
// so there is no need for a FreeFn beyond the table's own teardown.
// length is installed once, as a plain int value property rather than a
// method, matching the array's own length property and the ground-truth
// original's object_set(thisptr, "length", ...).
func NewString(alloc object.Allocator, parent *object.Object, keys *key.Table, s string) *object.Object {
	o := alloc.Alloc(parent, len(s))
	o.Native = s
	fk := keys.Prepare("length")
	if err := object.Set(o, &fk, object.Int(int32(len(s)))); err != nil {
		panic(fmt.Sprintf("runtime: setting string length: %v", err))
	}
	return o
}

func AsString(v object.Value) (string, bool) {
	if v.Tag != object.TObject || v.Obj == nil {
		return "", false
	}
	s, ok := v.Obj.Native.(string)
	return s, ok
}

func stringArg(this object.Value) (string, error) {
	s, ok := AsString(this)
	if !ok {
		return "", fmt.Errorf("receiver is not a string")
	}
	return s, nil
}

func (b *Bases) installStringOps(gcs *gc.State) {
	concat := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		s, err := stringArg(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 1 {
			return object.Null, fmt.Errorf("expected exactly 1 argument, got %d", len(args))
		}
		other, ok := AsString(args[0])
		if !ok {
			return object.Null, fmt.Errorf("expected a string, got %s", args[0])
		}
		return object.Obj(NewString(alloc, b.String, b.keys, s+other)), nil
	}
	eq := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		s, err := stringArg(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 1 {
			return object.Null, fmt.Errorf("expected exactly 1 argument, got %d", len(args))
		}
		other, ok := AsString(args[0])
		return object.Bool(ok && other == s), nil
	}
	index := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		s, err := stringArg(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 1 || args[0].Tag != object.TInt {
			return object.Null, fmt.Errorf("index requires one int argument")
		}
		i := int(args[0].I)
		if i < 0 || i >= len(s) {
			return object.Null, fmt.Errorf("string index %d out of range [0,%d)", i, len(s))
		}
		return object.Obj(NewString(alloc, b.String, b.keys, string(s[i]))), nil
	}
	slice := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		s, err := stringArg(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 2 || args[0].Tag != object.TInt || args[1].Tag != object.TInt {
			return object.Null, fmt.Errorf("slice requires two int arguments")
		}
		start, end := int(args[0].I), int(args[1].I)
		if start < 0 || end > len(s) || start > end {
			return object.Null, fmt.Errorf("string slice [%d,%d) out of range for length %d", start, end, len(s))
		}
		return object.Obj(NewString(alloc, b.String, b.keys, s[start:end])), nil
	}
	toString := func(alloc object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		return this, nil
	}

	b.set(gcs, b.String, "+", concat)
	b.set(gcs, b.String, "==", eq)
	b.set(gcs, b.String, "[]", index)
	b.set(gcs, b.String, "slice", slice)
	b.set(gcs, b.String, "toString", toString)
}
