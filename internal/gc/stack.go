package gc

import (
	"fmt"

	"quill/internal/object"
)

// FrameStack is a single large bump-allocated buffer for STACK-flagged
// objects (spec §4.D): allocations must be freed in exactly reverse
// order of allocation, a violation is a fatal invariant check. An
// allocation that would otherwise be freed while a still-live younger
// allocation sits above it is instead marked STACK_FREED and reclaimed
// once the bump offset later crosses it.
type FrameStack struct {
	gc     *State
	slots  []*object.Object // allocation order, bottom to top
	offset int              // number of entries from the bottom not yet reclaimed (STACK_FREED ones below the top included)
}

const defaultFrameStackCapacity = 4096

// NewFrameStack allocates a bump stack with reasonable default capacity.
func NewFrameStack(gc *State) *FrameStack {
	return &FrameStack{gc: gc, slots: make([]*object.Object, 0, defaultFrameStackCapacity)}
}

// Push bump-allocates a new STACK object as a child of parent.
func (fs *FrameStack) Push(parent *object.Object) *object.Object {
	obj := object.New(parent, fs.gc.Keys)
	obj.Flags |= object.FlagStack
	fs.slots = append(fs.slots, obj)
	fs.offset++
	return obj
}

// Pop frees the most recent still-live allocation. If obj is not the
// top live allocation, it must be the case that it's being freed out of
// LIFO order because it is still referenced by a younger stack
// allocation (spec's deferred-free case): it is marked STACK_FREED
// instead of being reclaimed immediately, and the bump offset sweeps
// past it once everything above it is also gone.
func (fs *FrameStack) Pop(obj *object.Object) {
	top := fs.topLiveIndex()
	if top < 0 {
		panic(fmt.Sprintf("gc: frame stack underflow freeing %p", obj))
	}
	if fs.slots[top] == obj {
		fs.offset--
		fs.reclaimFreedTail()
		return
	}
	// Not the top: it must already be below the top, i.e. retained
	// past its lexical lifetime by a younger allocation. Mark it
	// STACK_FREED; it is reclaimed once everything above it goes too.
	found := false
	for i := 0; i <= top; i++ {
		if fs.slots[i] == obj {
			found = true
			break
		}
	}
	if !found {
		panic(fmt.Sprintf("gc: frame stack free-out-of-order: %p not on stack", obj))
	}
	obj.Flags |= stackFreedFlag
}

// stackFreedFlag reuses an unused high bit of object.Flags; it is
// private to gc because only the bump allocator's LIFO discipline gives
// it meaning.
const stackFreedFlag object.Flags = 1 << 15

func (fs *FrameStack) topLiveIndex() int {
	if fs.offset == 0 {
		return -1
	}
	return fs.offset - 1
}

// reclaimFreedTail pops any trailing entries already marked STACK_FREED,
// now that the bump offset has crossed them.
func (fs *FrameStack) reclaimFreedTail() {
	for fs.offset > 0 && fs.slots[fs.offset-1].Flags.Has(stackFreedFlag) {
		fs.offset--
	}
	fs.slots = fs.slots[:fs.offset]
}
