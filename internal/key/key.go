// Package key interns short byte-string keys into stable (hash, pointer)
// pairs shared by the object table (internal/object's table.go) and the IR (internal/ir).
package key

import "sync"

// FastKey is the result of interning a key: a non-zero hash, the key's
// canonical byte slice (stable for the process lifetime), and a scratch
// field the hash table uses to cache the position of its last successful
// lookup for this key.
type FastKey struct {
	Hash      uint64
	Ptr       string // canonical interned bytes; safe to compare by identity via the table below
	Len       int
	LastIndex int
}

// node is a trie node over key bytes. Children are indexed by byte value;
// a nil map means "no children yet" and is only allocated on first write.
type node struct {
	hash     uint64
	terminal bool
	children map[byte]*node
}

// Table interns keys. Zero value is ready to use.
type Table struct {
	mu      sync.Mutex
	root    node
	seq     uint64            // Park-Miller LCG state, never 0
	reverse map[uint64]string // hash -> canonical pointer, for diagnostics
}

// NewTable constructs an empty interning table.
func NewTable() *Table {
	return &Table{seq: 1, reverse: make(map[uint64]string)}
}

// Park-Miller minimal standard LCG: x_{n+1} = x_n * 16807 mod (2^31 - 1).
// The modulus is prime and 16807 is a primitive root, so the sequence
// cycles through every value in [1, 2^31-2] before repeating; it never
// produces 0 as long as it is never seeded with 0.
const (
	lcgA = 16807
	lcgM = 2147483647
)

func (t *Table) nextHash() uint64 {
	t.seq = (t.seq * lcgA) % lcgM
	if t.seq == 0 {
		t.seq = 1
	}
	return t.seq
}

// Prepare interns s and returns its FastKey. Identical input always
// yields an identical hash and canonical pointer.
func (t *Table) Prepare(s string) FastKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := &t.root
	for i := 0; i < len(s); i++ {
		b := s[i]
		if n.children == nil {
			n.children = make(map[byte]*node)
		}
		child, ok := n.children[b]
		if !ok {
			child = &node{}
			n.children[b] = child
		}
		n = child
	}
	if !n.terminal {
		n.terminal = true
		n.hash = t.nextHash()
		t.reverse[n.hash] = s
	}
	return FastKey{Hash: n.hash, Ptr: s, Len: len(s)}
}

// Lookup returns the canonical pointer for a previously-assigned hash,
// used for diagnostic rendering (e.g. "key 'b' not found" messages).
func (t *Table) Lookup(hash uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.reverse[hash]
	return s, ok
}

// FixedPointerKey builds a FastKey for an already-interned string without
// touching the trie, hashing it with FNV-1a (never 0). Nothing outside
// this package's tests calls it.
func FixedPointerKey(s string) FastKey {
	h := uint64(14695981039346656037) // FNV offset basis
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	if h == 0 {
		h = 1
	}
	return FastKey{Hash: h, Ptr: s, Len: len(s)}
}
