package gsscontext

import "sync/atomic"

// ContextSlot holds the single, atomically-swappable Context a Credential
// currently trusts. Readers (the wrap/unwrap call path) Acquire a
// snapshot and must Release it; a concurrent Store installing a fresh
// Context never blocks a reader already holding the old one, and the old
// Context is destroyed only once its last holder releases it -- a
// best-effort async destroy, not a blocking wait (see the design note in
// DESIGN.md on why hazard pointers/epochs were not used here).
type ContextSlot struct {
	ptr atomic.Pointer[slotEntry]
}

type slotEntry struct {
	ctx       *Context
	refcount  atomic.Int32
	retired   atomic.Bool
	destroyed atomic.Bool
}

func (e *slotEntry) maybeDestroy() {
	if e.destroyed.CompareAndSwap(false, true) {
		e.ctx.destroy()
	}
}

// NewContextSlot returns an empty slot.
func NewContextSlot() *ContextSlot {
	return &ContextSlot{}
}

// Acquire returns the slot's current Context and a release function the
// caller must invoke exactly once when done with it. ok is false if the
// slot has never been populated.
func (s *ContextSlot) Acquire() (ctx *Context, release func(), ok bool) {
	e := s.ptr.Load()
	if e == nil {
		return nil, nil, false
	}
	e.refcount.Add(1)

	var released atomic.Bool
	return e.ctx, func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		if e.refcount.Add(-1) == 0 && e.retired.Load() {
			e.maybeDestroy()
		}
	}, true
}

// Store installs ctx as the slot's current Context, atomically. The
// previously installed Context (if any) is marked retired and destroyed
// once its last Acquire-holder releases it; Store itself never blocks
// waiting for that drain.
func (s *ContextSlot) Store(ctx *Context) {
	next := &slotEntry{ctx: ctx}
	prev := s.ptr.Swap(next)
	if prev == nil {
		return
	}
	prev.retired.Store(true)
	if prev.refcount.Load() == 0 {
		prev.maybeDestroy()
	}
}

// Current returns the slot's Context without taking a reference, or nil
// if the slot is empty. Safe for read-only inspection (e.g. logging) but
// must not be used across a call that might race a Store/destroy.
func (s *ContextSlot) Current() *Context {
	e := s.ptr.Load()
	if e == nil {
		return nil
	}
	return e.ctx
}
