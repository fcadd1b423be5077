package runtime

import (
	"fmt"

	"quill/internal/gc"
	"quill/internal/key"
	"quill/internal/object"
)

// arrayData is the Native payload of an array object: a pointer to a Go
// slice, so push/pop/resize can grow it in place without reallocating
// the object itself.
type arrayData struct {
	elems []object.Value
}

// NewArray allocates a heap array object from elems (copied, so the
// caller's slice can be reused or discarded). length is installed as a
// plain int value property, not a method — matching the ground-truth
// original's object_set(thisptr, "length", alloc_int(...)) on every
// mutation — so a bare `a.length` read returns the count rather than a
// callable.
func NewArray(alloc object.Allocator, parent *object.Object, keys *key.Table, elems []object.Value) *object.Object {
	o := alloc.Alloc(parent, len(elems)*8)
	cp := make([]object.Value, len(elems))
	copy(cp, elems)
	o.Native = &arrayData{elems: cp}
	o.MarkFn = func(obj *object.Object, visit func(*object.Object)) {
		ad := obj.Native.(*arrayData)
		for _, v := range ad.elems {
			if v.Tag == object.TObject {
				visit(v.Obj)
			}
		}
	}
	setArrayLength(keys, o, len(cp))
	return o
}

// setArrayLength installs o's length property, called once at
// allocation and again after every mutation (push/pop/resize).
func setArrayLength(keys *key.Table, o *object.Object, n int) {
	fk := keys.Prepare("length")
	if err := object.Set(o, &fk, object.Int(int32(n))); err != nil {
		panic(fmt.Sprintf("runtime: setting array length: %v", err))
	}
}

func asArray(v object.Value) (*arrayData, error) {
	if v.Tag != object.TObject || v.Obj == nil {
		return nil, fmt.Errorf("receiver is not an array")
	}
	ad, ok := v.Obj.Native.(*arrayData)
	if !ok {
		return nil, fmt.Errorf("receiver is not an array")
	}
	return ad, nil
}

func (b *Bases) installArrayOps(gcs *gc.State) {
	index := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		ad, err := asArray(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 1 || args[0].Tag != object.TInt {
			return object.Null, fmt.Errorf("index requires one int argument")
		}
		i := int(args[0].I)
		if i < 0 || i >= len(ad.elems) {
			return object.Null, fmt.Errorf("array index %d out of range [0,%d)", i, len(ad.elems))
		}
		return ad.elems[i], nil
	}
	setIndex := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		ad, err := asArray(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 2 || args[0].Tag != object.TInt {
			return object.Null, fmt.Errorf("[]= requires an int index and a value")
		}
		i := int(args[0].I)
		if i < 0 || i >= len(ad.elems) {
			return object.Null, fmt.Errorf("array index %d out of range [0,%d)", i, len(ad.elems))
		}
		ad.elems[i] = args[1]
		return args[1], nil
	}
	push := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		ad, err := asArray(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 1 {
			return object.Null, fmt.Errorf("push requires exactly 1 argument")
		}
		ad.elems = append(ad.elems, args[0])
		setArrayLength(b.keys, this.Obj, len(ad.elems))
		return object.Int(int32(len(ad.elems))), nil
	}
	pop := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		ad, err := asArray(this)
		if err != nil {
			return object.Null, err
		}
		if len(ad.elems) == 0 {
			return object.Null, fmt.Errorf("pop from empty array")
		}
		last := ad.elems[len(ad.elems)-1]
		ad.elems = ad.elems[:len(ad.elems)-1]
		setArrayLength(b.keys, this.Obj, len(ad.elems))
		return last, nil
	}
	resize := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		ad, err := asArray(this)
		if err != nil {
			return object.Null, err
		}
		if len(args) != 1 || args[0].Tag != object.TInt || args[0].I < 0 {
			return object.Null, fmt.Errorf("resize requires one non-negative int argument")
		}
		n := int(args[0].I)
		if n <= len(ad.elems) {
			ad.elems = ad.elems[:n]
		} else {
			grown := make([]object.Value, n)
			copy(grown, ad.elems)
			ad.elems = grown
		}
		setArrayLength(b.keys, this.Obj, len(ad.elems))
		return this, nil
	}

	b.set(gcs, b.Array, "[]", index)
	b.set(gcs, b.Array, "[]=", setIndex)
	b.set(gcs, b.Array, "push", push)
	b.set(gcs, b.Array, "pop", pop)
	b.set(gcs, b.Array, "resize", resize)
}
