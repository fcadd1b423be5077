package vm

import (
	"quill/internal/ir"
	"quill/internal/object"
)

// allocStatic builds a CLOSED object in one step from a StaticTemplate,
// the output of the fuse_static_object_alloc optimizer pass (the
// parser's lowering also emits one for a closure's capture context): every key,
// value, constraint and refslot the object will ever hold is already
// known, so there is no reason to go through the general ASSIGN path
// key by key.
func (s *State) allocStatic(f *CallFrame, instr ir.Instr) (object.Value, error) {
	tmpl := instr.Static
	parent := readArg(f, instr.A)
	var parentObj *object.Object
	if parent.Tag == object.TObject {
		parentObj = parent.Obj
	} else if parent.Tag != object.TNull {
		return object.Null, newError(KindType, "object parent must be an object or null, got %s", parent)
	}

	obj := s.GC.Alloc(parentObj, 0)
	for i, name := range tmpl.Keys {
		fk := s.Keys.Prepare(name)
		entry, _ := obj.Tbl.LookupOrAlloc(&fk)
		entry.Hash = fk.Hash
		entry.KeyPtr = fk.Ptr
		entry.Value = readArg(f, tmpl.Values[i])
		if i < len(tmpl.Constraints) {
			if c := tmpl.Constraints[i]; c.Kind != ir.ArgValue || c.Value.Tag != object.TNull {
				cv := readArg(f, c)
				if cv.Tag == object.TObject {
					entry.Constraint = cv.Obj
				}
			}
		}
		if i < len(tmpl.Refslots) && tmpl.Refslots[i] >= 0 {
			f.Refslots[tmpl.Refslots[i]] = entry
		}
	}
	object.Close(obj)
	if tmpl.Freeze {
		object.Freeze(obj)
	}
	return object.Obj(obj), nil
}
