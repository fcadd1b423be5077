package vm

import (
	"strings"

	"quill/internal/ir"
	"quill/internal/object"
	"quill/internal/runtime"
)

// access implements generic (computed-key) ACCESS: a string key that
// resolves to a real property wins; anything else — a non-string key,
// or a string key that resolves to nothing — falls back to calling the
// `[]` operator, which is how array/string indexing and user-defined
// subscripting both work (spec §4.H).
func (s *State) access(obj, keyVal object.Value) (object.Value, error) {
	if name, ok := runtime.AsString(keyVal); ok {
		if v, found := s.accessNamed(obj, name); found {
			return v, nil
		}
	}
	return s.invokeOperator(obj, "[]", []object.Value{keyVal})
}

// assign implements generic (computed-key) ASSIGN, with the same `[]=`
// fallback as access's `[]`.
func (s *State) assign(mode ir.AssignMode, obj, keyVal, val object.Value) error {
	if name, ok := runtime.AsString(keyVal); ok && obj.Tag == object.TObject {
		if err := s.setDirect(mode, obj.Obj, name, val); err == nil {
			return nil
		}
	}
	_, err := s.invokeOperator(obj, "[]=", []object.Value{keyVal, val})
	return err
}

// assignStringKey implements ASSIGN_STRING_KEY (a literal `obj.foo = v`):
// no fallback, any failure surfaces directly as a runtime error.
func (s *State) assignStringKey(mode ir.AssignMode, obj object.Value, name string, val object.Value) error {
	if obj.Tag != object.TObject {
		return newError(KindNullAccess, "cannot assign property %q on %s", name, obj)
	}
	if err := s.setDirect(mode, obj.Obj, name, val); err != nil {
		return classify(name, err)
	}
	return nil
}

func (s *State) setDirect(mode ir.AssignMode, obj *object.Object, name string, val object.Value) error {
	fk := s.Keys.Prepare(name)
	switch mode {
	case ir.ModePlain:
		return object.Set(obj, &fk, val)
	case ir.ModeExisting:
		return object.SetExisting(obj, &fk, val)
	case ir.ModeShadowing:
		return object.SetShadowing(obj, &fk, val)
	default:
		return newError(KindBadAssignment, "unknown assignment mode")
	}
}

func (s *State) setConstraint(obj, keyVal, constraint object.Value) error {
	name, ok := runtime.AsString(keyVal)
	if !ok {
		return newError(KindType, "constraint key must be a string")
	}
	return s.setConstraintNamed(obj, name, constraint)
}

func (s *State) setConstraintNamed(obj object.Value, name string, constraint object.Value) error {
	if obj.Tag != object.TObject {
		return newError(KindNullAccess, "cannot constrain property %q on %s", name, obj)
	}
	var constraintObj *object.Object
	if constraint.Tag == object.TObject {
		constraintObj = constraint.Obj
	}
	fk := s.Keys.Prepare(name)
	if err := object.SetConstraint(obj.Obj, &fk, constraintObj); err != nil {
		return newError(KindConstraint, "%v", err)
	}
	return nil
}

// classify turns an object-package assignment error into the right
// runtime Kind for its backtrace, by sniffing the message object.go
// itself produces — crude, but keeps the constraint/no-fallback and
// frozen/closed cases distinguishable without duplicating object's own
// error construction here.
func classify(name string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "constraint") {
		return newError(KindConstraint, "%s", msg)
	}
	return newError(KindBadAssignment, "%s", msg)
}
