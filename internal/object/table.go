package object

import "quill/internal/key"

// Entry is the spec's "property entry": an interned key hash, an
// optional constraint object, and the stored value. A zero Hash means
// "empty slot" — keys never intern to hash 0 (internal/key guarantees
// this), so the check is unambiguous.
type Entry struct {
	Hash       uint64
	KeyPtr     string
	Constraint *Object
	Value      Value
}

func (e *Entry) empty() bool { return e.Hash == 0 }

// Table is an open-addressed, power-of-two sized hash table with linear
// probing and a 64-bit bloom filter over every inserted hash, per §4.B.
type Table struct {
	entries []Entry
	stored  int
	bloom   uint64
}

const initialTableSize = 4

// NewTable allocates an empty table with the minimum capacity.
func NewTable() *Table {
	return &Table{entries: make([]Entry, initialTableSize)}
}

// NewTableInline builds a table around a caller-supplied buffer — used
// by ALLOC_STATIC_OBJECT to embed the table in the object's own
// allocation (the INLINE_TBL flag records that this buffer must not be
// freed separately).
func NewTableInline(buf []Entry) *Table {
	return &Table{entries: buf}
}

func (t *Table) Len() int      { return len(t.entries) }
func (t *Table) Stored() int   { return t.stored }
func (t *Table) mask() uint64  { return uint64(len(t.entries) - 1) }

// mayContain tests the bloom filter; a false result means "definitely
// absent" and short-circuits the probe.
func (t *Table) mayContain(h uint64) bool {
	return (t.bloom & h) == h
}

// Lookup finds the entry for a prepared key without mutating the table.
// It returns nil if not found. The fast path consults key.LastIndex —
// scratch space on the FastKey caching the most recent successful
// lookup position for this key — before falling back to probing.
func (t *Table) Lookup(fk *key.FastKey) *Entry {
	if !t.mayContain(fk.Hash) {
		return nil
	}
	n := len(t.entries)
	if fk.LastIndex >= 0 && fk.LastIndex < n {
		e := &t.entries[fk.LastIndex]
		if e.Hash == fk.Hash && e.KeyPtr == fk.Ptr {
			return e
		}
	}
	mask := t.mask()
	start := fk.Hash & mask
	// Unrolled four-wide probe, bailing on the first empty slot.
	for base := start; ; base = (base + 4) & mask {
		for i := uint64(0); i < 4; i++ {
			idx := (base + i) & mask
			e := &t.entries[idx]
			if e.Hash == 0 {
				return nil
			}
			if e.Hash == fk.Hash && e.KeyPtr == fk.Ptr {
				fk.LastIndex = int(idx)
				return e
			}
		}
		if base == start && len(t.entries) <= 4 {
			// table smaller than the unroll width and we've gone full
			// circle without finding an empty slot or the key
			return nil
		}
	}
}

// LookupOrAlloc returns the existing entry for fk, or a pointer to a
// freshly zeroed empty slot whose Hash the caller must set, growing and
// rehashing the table first if the fill factor would exceed 70%.
func (t *Table) LookupOrAlloc(fk *key.FastKey) (entry *Entry, existed bool) {
	if e := t.Lookup(fk); e != nil {
		return e, true
	}
	if (t.stored+1)*10 >= len(t.entries)*7 {
		t.grow()
	}
	mask := t.mask()
	idx := fk.Hash & mask
	for {
		e := &t.entries[idx]
		if e.empty() {
			t.bloom |= fk.Hash
			t.stored++
			fk.LastIndex = int(idx)
			return e, false
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) grow() {
	old := t.entries
	newSize := len(old) * 2
	t.entries = make([]Entry, newSize)
	t.bloom = 0
	t.stored = 0
	mask := uint64(newSize - 1)
	for i := range old {
		e := &old[i]
		if e.empty() {
			continue
		}
		idx := e.Hash & mask
		for !t.entries[idx].empty() {
			idx = (idx + 1) & mask
		}
		t.entries[idx] = *e
		t.bloom |= e.Hash
		t.stored++
	}
}

// Each calls fn for every occupied entry, in slot order. Order is not
// meaningful (iteration over an open-addressed table is never
// insertion-ordered); callers that need a stable key order (e.g. the
// `keys` builtin) should sort the result themselves.
func (t *Table) Each(fn func(e *Entry)) {
	for i := range t.entries {
		if !t.entries[i].empty() {
			fn(&t.entries[i])
		}
	}
}
