// Package gc implements the mark-and-sweep collector over the object
// heap (spec §4.D), plus the bump-allocated frame stack for STACK
// objects. It is the sole owner of every heap Object: objects are
// created through Alloc and freed only by Sweep or process exit.
package gc

import (
	"github.com/dustin/go-humanize"

	"quill/internal/key"
	"quill/internal/object"
)

// RootSet is a node in the sentinel-headed doubly linked root list
// (spec §4.D): a pointer to a value array plus its count. Frames
// self-register their slot arrays on allocation and deregister on
// return; native code can push additional root sets around sections
// that build up unreachable intermediates.
type RootSet struct {
	Values *[]object.Value
	prev, next *RootSet
}

// Logger receives human-formatted collection notices; nil disables
// logging entirely (the zero value of State has no logger).
type Logger interface {
	Printf(format string, args ...interface{})
}

// State owns the heap: the root-set list, the live-object chain, byte
// accounting, and the disable/enable counter that guards GC while
// native code holds unregistered pointers.
type State struct {
	head, tail RootSet // sentinels; never unlinked

	lastAlloc    *object.Object // head of the heap's Prev-chain
	bytesAllocated int
	nextGCBytes    int

	disableDepth int
	missedRun    bool

	Keys *key.Table
	Log  Logger

	Stack *FrameStack
}

const initialGCThreshold = 10 << 20 // ~10MB, per spec §4.D

// New constructs a GC state with an empty root list and the initial
// ~10MB collection threshold.
func New(keys *key.Table) *State {
	s := &State{Keys: keys, nextGCBytes: initialGCThreshold}
	s.head.next = &s.tail
	s.tail.prev = &s.head
	s.Stack = NewFrameStack(s)
	return s
}

// PushRoot links rs between the sentinel head and whatever currently
// follows it. Branch-free: the sentinels guarantee rs.prev/rs.next are
// always valid nodes, never nil.
func (s *State) PushRoot(rs *RootSet) {
	rs.prev = &s.head
	rs.next = s.head.next
	s.head.next.prev = rs
	s.head.next = rs
}

// PopRoot unlinks rs. Safe to call even if rs was never linked (no-op).
func (s *State) PopRoot(rs *RootSet) {
	if rs.prev == nil && rs.next == nil {
		return
	}
	rs.prev.next = rs.next
	rs.next.prev = rs.prev
	rs.prev, rs.next = nil, nil
}

// Alloc creates a heap object with the given parent, threading it onto
// the sweep chain and charging its size against the byte counter. It
// may trigger a collection first if the threshold has been exceeded.
func (s *State) Alloc(parent *object.Object, size int) *object.Object {
	if s.bytesAllocated+size > s.nextGCBytes {
		s.Run()
	}
	obj := object.New(parent, s.Keys)
	obj.Size = size
	obj.Prev = s.lastAlloc
	s.lastAlloc = obj
	s.bytesAllocated += size
	return obj
}

// Disable increments the guard counter; Run becomes a no-op (but
// remembers it was asked to run) until Enable brings the counter back
// to zero, at which point a missed run is caught up immediately.
func (s *State) Disable() { s.disableDepth++ }

func (s *State) Enable() {
	if s.disableDepth == 0 {
		return
	}
	s.disableDepth--
	if s.disableDepth == 0 && s.missedRun {
		s.missedRun = false
		s.Run()
	}
}

// Disabled runs fn with the collector disabled for its duration,
// guaranteeing Enable fires on every exit path (including panics).
func Disabled(s *State, fn func()) {
	s.Disable()
	defer s.Enable()
	fn()
}

// Run performs a full mark/sweep, unless the collector is currently
// disabled, in which case it just records that a run was requested.
func (s *State) Run() {
	if s.disableDepth > 0 {
		s.missedRun = true
		return
	}
	s.mark()
	freed := s.sweep()
	s.nextGCBytes = int(float64(s.bytesAllocated) * 1.5)
	if s.nextGCBytes < initialGCThreshold {
		s.nextGCBytes = initialGCThreshold
	}
	if s.Log != nil {
		s.Log.Printf("gc: swept %d objects, heap now %s, next run at %s",
			freed, humanize.Bytes(uint64(s.bytesAllocated)), humanize.Bytes(uint64(s.nextGCBytes)))
	}
}

// mark walks every root set from tail to head, marking reachable
// objects. Visiting stops at an object that already carries GC_MARK,
// breaking cycles.
func (s *State) mark() {
	for rs := s.tail.prev; rs != &s.head; rs = rs.prev {
		if rs.Values == nil {
			continue
		}
		for _, v := range *rs.Values {
			if v.Tag == object.TObject {
				s.markObject(v.Obj)
			}
		}
	}
}

func (s *State) markObject(obj *object.Object) {
	if obj == nil || obj.Flags.Has(object.FlagGCMark) {
		return
	}
	obj.Flags |= object.FlagGCMark
	if obj.Parent != nil {
		s.markObject(obj.Parent)
	}
	obj.Tbl.Each(func(e *object.Entry) {
		if e.Value.Tag == object.TObject {
			s.markObject(e.Value.Obj)
		}
		if e.Constraint != nil {
			s.markObject(e.Constraint)
		}
	})
	if obj.MarkFn != nil {
		obj.MarkFn(obj, s.markObject)
	}
}

// sweep walks the heap's Prev chain from the most recently allocated
// object. Anything lacking both MARK and IMMORTAL is unlinked, its
// free callback invoked, and its bytes reclaimed; survivors have MARK
// cleared in place.
func (s *State) sweep() int {
	var newHead *object.Object
	var prevLive *object.Object
	freed := 0

	for o := s.lastAlloc; o != nil; {
		next := o.Prev
		if o.Flags.Has(object.FlagGCMark) || o.Flags.Has(object.FlagImmortal) {
			o.Flags &^= object.FlagGCMark
			if prevLive == nil {
				newHead = o
			} else {
				prevLive.Prev = o
			}
			prevLive = o
		} else {
			s.bytesAllocated -= o.Size
			if o.FreeFn != nil {
				o.FreeFn(o)
			}
			freed++
		}
		o = next
	}
	if prevLive != nil {
		prevLive.Prev = nil
	}
	s.lastAlloc = newHead
	return freed
}

// Stats is a snapshot of collector counters, used by diagnostics and
// by the heap-size line of cmd/interp's `-prof` output header.
type Stats struct {
	BytesAllocated int
	NextGCBytes    int
}

func (s *State) Stats() Stats {
	return Stats{BytesAllocated: s.bytesAllocated, NextGCBytes: s.nextGCBytes}
}
