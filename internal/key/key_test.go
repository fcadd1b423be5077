package key

import "testing"

func TestPrepareIsInjective(t *testing.T) {
	tbl := NewTable()
	seen := make(map[uint64]string)
	inputs := []string{"a", "b", "ab", "ba", "this", "constructor", "", "x", "xx", "xxx"}
	for _, s := range inputs {
		fk := tbl.Prepare(s)
		if fk.Hash == 0 {
			t.Fatalf("Prepare(%q) produced zero hash", s)
		}
		if prev, ok := seen[fk.Hash]; ok && prev != s {
			t.Fatalf("hash collision: %q and %q both hash to %d", prev, s, fk.Hash)
		}
		seen[fk.Hash] = s
	}
}

func TestPrepareIsStable(t *testing.T) {
	tbl := NewTable()
	a := tbl.Prepare("hello")
	b := tbl.Prepare("hello")
	if a.Hash != b.Hash {
		t.Fatalf("hash not stable across calls: %d != %d", a.Hash, b.Hash)
	}
	if a.Ptr != b.Ptr {
		t.Fatalf("pointer not stable: %q != %q", a.Ptr, b.Ptr)
	}
}

func TestLookupReverse(t *testing.T) {
	tbl := NewTable()
	fk := tbl.Prepare("widget")
	s, ok := tbl.Lookup(fk.Hash)
	if !ok || s != "widget" {
		t.Fatalf("Lookup(%d) = %q, %v; want widget, true", fk.Hash, s, ok)
	}
}

func TestFixedPointerKeyNeverZero(t *testing.T) {
	for _, s := range []string{"", "a", "/tmp/x.ql"} {
		if FixedPointerKey(s).Hash == 0 {
			t.Fatalf("FixedPointerKey(%q) hash == 0", s)
		}
	}
}
