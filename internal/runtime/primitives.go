package runtime

import (
	"fmt"

	"quill/internal/gc"
	"quill/internal/object"
)

// numeric widens an int/float Value to a float64 pair for arithmetic
// that must work across either operand being the other tag.
func numeric(v object.Value) (float64, bool) {
	switch v.Tag {
	case object.TInt:
		return float64(v.I), true
	case object.TFloat:
		return float64(v.F), true
	default:
		return 0, false
	}
}

// bothInt reports whether both operands are TInt, in which case
// arithmetic stays in integers instead of promoting to float.
func bothInt(a, b object.Value) bool { return a.Tag == object.TInt && b.Tag == object.TInt }

func arithOperand(args []object.Value) (object.Value, error) {
	if len(args) != 1 {
		return object.Null, fmt.Errorf("expected exactly 1 argument, got %d", len(args))
	}
	rhs := args[0]
	if _, ok := numeric(rhs); !ok {
		return object.Null, fmt.Errorf("expected a number, got %s", rhs)
	}
	return rhs, nil
}

// installArithmetic wires +, -, *, / onto int and float, and unary !
// onto bool and int.
func (b *Bases) installArithmetic(gcs *gc.State) {
	add := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		rhs, err := arithOperand(args)
		if err != nil {
			return object.Null, err
		}
		if bothInt(this, rhs) {
			return object.Int(this.I + rhs.I), nil
		}
		lf, _ := numeric(this)
		rf, _ := numeric(rhs)
		return object.Float(float32(lf + rf)), nil
	}
	sub := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		rhs, err := arithOperand(args)
		if err != nil {
			return object.Null, err
		}
		if bothInt(this, rhs) {
			return object.Int(this.I - rhs.I), nil
		}
		lf, _ := numeric(this)
		rf, _ := numeric(rhs)
		return object.Float(float32(lf - rf)), nil
	}
	mul := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		rhs, err := arithOperand(args)
		if err != nil {
			return object.Null, err
		}
		if bothInt(this, rhs) {
			return object.Int(this.I * rhs.I), nil
		}
		lf, _ := numeric(this)
		rf, _ := numeric(rhs)
		return object.Float(float32(lf * rf)), nil
	}
	div := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		rhs, err := arithOperand(args)
		if err != nil {
			return object.Null, err
		}
		lf, _ := numeric(this)
		rf, _ := numeric(rhs)
		if rf == 0 {
			return object.Null, fmt.Errorf("division by zero")
		}
		return object.Float(float32(lf / rf)), nil
	}
	not := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		if len(args) != 0 {
			return object.Null, fmt.Errorf("expected no arguments, got %d", len(args))
		}
		return object.Bool(!object.IsTruthy(this)), nil
	}

	for _, base := range []*object.Object{b.Int, b.Float} {
		b.set(gcs, base, "+", add)
		b.set(gcs, base, "-", sub)
		b.set(gcs, base, "*", mul)
		b.set(gcs, base, "/", div)
	}
	b.set(gcs, b.Bool, "!", not)
	b.set(gcs, b.Int, "!", not)
}

// installComparison wires ==, <, >, <=, >= onto int and float.
func (b *Bases) installComparison(gcs *gc.State) {
	cmp := func(op func(l, r float64) bool) object.NativeFn {
		return func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
			rhs, err := arithOperand(args)
			if err != nil {
				return object.Null, err
			}
			lf, _ := numeric(this)
			rf, _ := numeric(rhs)
			return object.Bool(op(lf, rf)), nil
		}
	}
	eq := func(_ object.Allocator, this object.Value, args []object.Value) (object.Value, error) {
		if len(args) != 1 {
			return object.Null, fmt.Errorf("expected exactly 1 argument, got %d", len(args))
		}
		return object.Bool(object.Identical(this, args[0])), nil
	}

	for _, base := range []*object.Object{b.Int, b.Float} {
		b.set(gcs, base, "<", cmp(func(l, r float64) bool { return l < r }))
		b.set(gcs, base, ">", cmp(func(l, r float64) bool { return l > r }))
		b.set(gcs, base, "<=", cmp(func(l, r float64) bool { return l <= r }))
		b.set(gcs, base, ">=", cmp(func(l, r float64) bool { return l >= r }))
	}
	b.set(gcs, b.Int, "==", eq)
	b.set(gcs, b.Float, "==", eq)
	b.set(gcs, b.Bool, "==", eq)
}
