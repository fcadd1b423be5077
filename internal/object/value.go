// Package object implements the prototype-chain object model (spec
// component C) and its backing open-addressed hash table (component B).
//
// Value is a tagged union over {null, int32, float32, bool, object
// reference}, per the data model: non-object tags are carried by value,
// object references are non-owning pointers kept alive by the GC root
// graph (internal/gc).
package object

import "strconv"

type TypeTag uint8

// Order matters: closest_obj-style prototype lookups in the VM switch on
// this, and object.Lookup relies on TNull being the zero value so a
// zeroed Value is always "null" without explicit initialization.
const (
	TNull TypeTag = iota
	TInt
	TFloat
	TBool
	TObject
)

// Value is small enough to pass by value everywhere: slots, refslots,
// constant pools, and call argument buffers all hold Value directly.
type Value struct {
	Tag TypeTag
	I   int32
	F   float32
	B   bool
	Obj *Object
}

// Null is the canonical null value.
var Null = Value{Tag: TNull}

func Int(i int32) Value   { return Value{Tag: TInt, I: i} }
func Float(f float32) Value { return Value{Tag: TFloat, F: f} }
func Bool(b bool) Value   { return Value{Tag: TBool, B: b} }
func Obj(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{Tag: TObject, Obj: o}
}

func IsNull(v Value) bool   { return v.Tag == TNull }
func IsInt(v Value) bool    { return v.Tag == TInt }
func IsFloat(v Value) bool  { return v.Tag == TFloat }
func IsBool(v Value) bool   { return v.Tag == TBool }
func IsObject(v Value) bool { return v.Tag == TObject }

// IsTruthy implements §4.C: false for null, false, and 0-valued int;
// true otherwise (including 0.0 floats and all objects).
func IsTruthy(v Value) bool {
	switch v.Tag {
	case TNull:
		return false
	case TBool:
		return v.B
	case TInt:
		return v.I != 0
	default:
		return true
	}
}

// Identical implements the IDENTICAL instruction: same tag and same
// payload bits, with object identity compared by pointer.
func Identical(a, b Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case TNull:
		return true
	case TInt:
		return a.I == b.I
	case TFloat:
		return a.F == b.F
	case TBool:
		return a.B == b.B
	case TObject:
		return a.Obj == b.Obj
	}
	return false
}

func (v Value) String() string {
	switch v.Tag {
	case TNull:
		return "null"
	case TInt:
		return strconv.FormatInt(int64(v.I), 10)
	case TFloat:
		return strconv.FormatFloat(float64(v.F), 'g', -1, 32)
	case TBool:
		if v.B {
			return "true"
		}
		return "false"
	case TObject:
		return v.Obj.String()
	}
	return "?"
}
