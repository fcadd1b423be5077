package object

import (
	"fmt"

	"quill/internal/key"
)

// Flags, per spec §3.
type Flags uint16

const (
	FlagNone      Flags = 0
	FlagClosed    Flags = 1 << iota
	FlagFrozen
	FlagNoInherit
	FlagGCMark
	FlagImmortal
	FlagInlineTbl
	FlagStack
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// MarkFn lets a type with extra references (closures, arrays) mark what
// it holds outside the property table. VisitChild must be called for
// every object-valued reference the callback wants to keep alive.
type MarkFn func(obj *Object, visitChild func(*Object))

// FreeFn releases non-GC resources (and, unless INLINE_TBL is set, the
// table's entry buffer) when an object is swept.
type FreeFn func(obj *Object)

// Object is a prototype-chain node: a property table plus a parent
// pointer, flags, and the GC bookkeeping fields from spec §3/§4.D.
type Object struct {
	Parent *Object
	Tbl    *Table
	Flags  Flags
	Size   int

	MarkFn MarkFn
	FreeFn FreeFn

	// Prev links every heap object for sweep (spec §4.D); Native is an
	// escape hatch for payload types (int/float/bool/string/array) that
	// need extra Go-side storage beyond the table.
	Prev   *Object
	Native interface{}

	Keys *key.Table // shared interning table, needed to resolve key names for diagnostics

	// PrimitiveTag marks o as the base a non-object Value of that tag
	// resolves properties against (internal/runtime's Int/Float/Bool
	// bases); TNull (the zero value) means o is an ordinary object, not
	// a primitive's base. checkConstraint consults this so a constraint
	// naming e.g. the int base can be satisfied by a bare int value,
	// which otherwise never carries a *Object to run InstanceOf against.
	PrimitiveTag TypeTag
}

// New allocates a bare object with the given parent and key table. This
// does not register the object with any GC — callers go through
// internal/gc.Alloc, which wraps this and links it onto the sweep
// (Prev) chain. It is exported so gc (and tests) can construct objects without
// an import cycle back into gc.
func New(parent *Object, keys *key.Table) *Object {
	return &Object{Parent: parent, Tbl: NewTable(), Keys: keys}
}

func (o *Object) String() string {
	if o == nil {
		return "null"
	}
	if s, ok := o.Native.(string); ok {
		return s
	}
	return fmt.Sprintf("<object %p>", o)
}

// Lookup walks the prototype chain for key, returning the value and
// whether it was actually found (distinguishing "present and null" from
// "absent"), per §4.C.
func Lookup(obj *Object, fk *key.FastKey) (Value, bool) {
	for o := obj; o != nil; o = o.Parent {
		if e := o.Tbl.Lookup(fk); e != nil {
			return e.Value, true
		}
	}
	return Null, false
}

// owner returns the object in obj's prototype chain that actually holds
// key, or nil if none does.
func owner(obj *Object, fk *key.FastKey) (*Object, *Entry) {
	for o := obj; o != nil; o = o.Parent {
		if e := o.Tbl.Lookup(fk); e != nil {
			return o, e
		}
	}
	return nil, nil
}

func keyName(o *Object, fk *key.FastKey) string {
	if o != nil && o.Keys != nil {
		if s, ok := o.Keys.Lookup(fk.Hash); ok {
			return s
		}
	}
	return fk.Ptr
}

// checkConstraint validates that the constraint (if any) accepts v. A
// constraint is satisfied when v is an object whose prototype chain
// contains the constraint object (instanceof), or when v is a
// primitive (int/float/bool) whose tag matches the base constraint
// marks itself with via PrimitiveTag.
func checkConstraint(constraint *Object, v Value) error {
	if constraint == nil {
		return nil
	}
	if v.Tag != TObject {
		if v.Tag != TNull && constraint.PrimitiveTag == v.Tag {
			return nil
		}
		return fmt.Errorf("constraint violation: value is not an instance of the required type")
	}
	if !InstanceOf(v.Obj, constraint) {
		return fmt.Errorf("constraint violation: value is not an instance of the required type")
	}
	return nil
}

// Set implements PLAIN-mode assignment (§4.C): create the key if !CLOSED
// and it is absent; overwrite if !FROZEN when present. Any inherited
// constraint on the key is enforced.
func Set(obj *Object, fk *key.FastKey, v Value) error {
	if ownerObj, e := owner(obj, fk); ownerObj != nil {
		if ownerObj.Flags.Has(FlagFrozen) {
			return fmt.Errorf("cannot assign to frozen key '%s'", keyName(obj, fk))
		}
		if err := checkConstraint(e.Constraint, v); err != nil {
			return err
		}
		e.Value = v
		return nil
	}
	if obj.Flags.Has(FlagClosed) {
		return fmt.Errorf("key '%s' not found", keyName(obj, fk))
	}
	entry, _ := obj.Tbl.LookupOrAlloc(fk)
	entry.Hash = fk.Hash
	entry.KeyPtr = fk.Ptr
	entry.Value = v
	return nil
}

// SetExisting implements EXISTING-mode assignment: the key must already
// exist somewhere in the chain; the owning object's entry is modified in
// place. Fails if the owner is FROZEN or the constraint rejects v.
func SetExisting(obj *Object, fk *key.FastKey, v Value) error {
	ownerObj, e := owner(obj, fk)
	if ownerObj == nil {
		return fmt.Errorf("key '%s' not found", keyName(obj, fk))
	}
	if ownerObj.Flags.Has(FlagFrozen) {
		return fmt.Errorf("cannot assign to frozen key '%s'", keyName(obj, fk))
	}
	if err := checkConstraint(e.Constraint, v); err != nil {
		return err
	}
	e.Value = v
	return nil
}

// SetShadowing implements SHADOWING-mode assignment: the key must exist
// somewhere in the chain; it is written on obj itself, shadowing the
// ancestor. If the ancestor's entry carries a constraint, it is copied
// onto the new shadow entry (but, per the open question in spec §9,
// existing values further up the chain are not re-validated against it).
func SetShadowing(obj *Object, fk *key.FastKey, v Value) error {
	ownerObj, ancestorEntry := owner(obj, fk)
	if ownerObj == nil {
		return fmt.Errorf("key '%s' not found", keyName(obj, fk))
	}
	constraint := ancestorEntry.Constraint
	if err := checkConstraint(constraint, v); err != nil {
		return err
	}
	if ownerObj == obj {
		if obj.Flags.Has(FlagFrozen) {
			return fmt.Errorf("cannot assign to frozen key '%s'", keyName(obj, fk))
		}
		ancestorEntry.Value = v
		return nil
	}
	entry, existed := obj.Tbl.LookupOrAlloc(fk)
	if !existed {
		entry.Hash = fk.Hash
		entry.KeyPtr = fk.Ptr
		entry.Constraint = constraint
	}
	entry.Value = v
	return nil
}

// SetConstraint records a constraint on an existing key. Fails if no
// constraint is given, the key is absent, a constraint is already set,
// or the current value violates the new constraint.
func SetConstraint(obj *Object, fk *key.FastKey, constraint *Object) error {
	if constraint == nil {
		return fmt.Errorf("set_constraint requires a constraint object")
	}
	ownerObj, e := owner(obj, fk)
	if ownerObj == nil {
		return fmt.Errorf("key '%s' not found", keyName(obj, fk))
	}
	if e.Constraint != nil {
		return fmt.Errorf("key '%s' already has a constraint", keyName(obj, fk))
	}
	if err := checkConstraint(constraint, e.Value); err != nil {
		return err
	}
	e.Constraint = constraint
	return nil
}

// EntryFor resolves key's owning entry in obj's prototype chain, or nil
// if absent. DEFINE_REFSLOT uses this to capture a direct pointer; that
// pointer stays valid only because refslots are only ever taken after
// the owning object has been CLOSE_OBJECT'd, which stops its table from
// growing (and therefore from rehashing and invalidating entry
// addresses).
func EntryFor(obj *Object, fk *key.FastKey) *Entry {
	_, e := owner(obj, fk)
	return e
}

// InstanceOf reports whether proto appears in obj's prototype chain.
func InstanceOf(obj *Object, proto *Object) bool {
	for o := obj; o != nil; o = o.Parent {
		if o == proto {
			return true
		}
	}
	return false
}

// Close sets FlagClosed: no further keys may be added.
func Close(obj *Object) { obj.Flags |= FlagClosed }

// Freeze sets FlagFrozen: existing keys may not be overwritten.
func Freeze(obj *Object) { obj.Flags |= FlagFrozen }
