package object

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/sync"
)

// slot holds one live object plus the number of capabilities naming it.
// The object is dropped once refCount reaches zero.
type slot struct {
	object   Object
	refCount int
}

// Registry is the single shared structure guarding every kernel object: a
// reader-writer lock protects the handle table and the per-process
// capability tables.
// Lookups take the read side; Register/Transfer/Revoke take the write
// side. An object's own internal state (Surface's damage list,
// EventStream's queue) has its own lock, defined on the variant itself, so
// two processes sharing one object don't serialize on the registry lock.
type Registry struct {
	mu sync.RWSpinlock

	nextHandle Handle
	objects    map[Handle]*slot
	caps       map[ProcessID]map[Handle]RightsMask
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[Handle]*slot),
		caps:    make(map[ProcessID]map[Handle]RightsMask),
	}
}

// Register inserts object, grants owner a capability with rights, and
// returns the new handle. Handles are issued monotonically and never
// reused.
func (r *Registry) Register(object Object, owner ProcessID, rights RightsMask) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextHandle++
	h := r.nextHandle

	r.objects[h] = &slot{object: object, refCount: 1}
	r.capTableLocked(owner)[h] = rights
	return h
}

// Lookup resolves handle on behalf of process, requiring at least
// required rights, and returns the live object. It fails with a distinct
// error for each of: unknown process, unknown handle (to this process),
// insufficient rights, or a handle whose object has already been dropped.
func (r *Registry) Lookup(handle Handle, process ProcessID, required RightsMask) (Object, *kernel.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table, ok := r.caps[process]
	if !ok {
		return nil, ErrUnknownProcess
	}
	rights, ok := table[handle]
	if !ok {
		return nil, ErrUnknownHandle
	}
	if !rights.Has(required) {
		return nil, ErrInsufficientRights
	}
	s, ok := r.objects[handle]
	if !ok {
		return nil, ErrDanglingHandle
	}
	return s.object, nil
}

// Transfer mints a new capability for to naming the same handle with
// newRights, without disturbing from's own capability. from must hold
// RightShare on handle, and newRights must be a subset of from's rights —
// a transfer can never grant more than the sender itself holds.
func (r *Registry) Transfer(handle Handle, from, to ProcessID, newRights RightsMask) *kernel.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromTable, ok := r.caps[from]
	if !ok {
		return ErrUnknownProcess
	}
	fromRights, ok := fromTable[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if !fromRights.Has(RightShare) {
		return ErrInsufficientRights
	}
	if !fromRights.Has(newRights) {
		return ErrRightAmplification
	}
	s, ok := r.objects[handle]
	if !ok {
		return ErrDanglingHandle
	}

	r.capTableLocked(to)[handle] = newRights
	s.refCount++
	return nil
}

// Revoke removes process's capability for handle. If that was the last
// capability naming the object, the object is dropped and its slot freed.
func (r *Registry) Revoke(handle Handle, process ProcessID) *kernel.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.caps[process]
	if !ok {
		return ErrUnknownProcess
	}
	if _, ok := table[handle]; !ok {
		return ErrUnknownHandle
	}
	delete(table, handle)

	s, ok := r.objects[handle]
	if !ok {
		// Already dropped by an earlier Revoke of the last capability;
		// this process's own entry is gone now too.
		return nil
	}
	s.refCount--
	if s.refCount == 0 {
		delete(r.objects, handle)
	}
	return nil
}

// RevokeAllForProcess drops every capability process holds, exactly as if
// Revoke had been called on each in turn. Used when a process exits: its
// whole capability table goes away at once rather than one handle at a
// time.
func (r *Registry) RevokeAllForProcess(process ProcessID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.caps[process]
	if !ok {
		return
	}
	for handle := range table {
		if s, ok := r.objects[handle]; ok {
			s.refCount--
			if s.refCount == 0 {
				delete(r.objects, handle)
			}
		}
	}
	delete(r.caps, process)
}

// Rights returns the rights process holds on handle, and whether it holds
// a capability for it at all.
func (r *Registry) Rights(handle Handle, process ProcessID) (RightsMask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.caps[process]
	if !ok {
		return 0, false
	}
	rights, ok := table[handle]
	return rights, ok
}

// capTableLocked returns process's capability table, creating it if
// needed. Callers must already hold r.mu for writing.
func (r *Registry) capTableLocked(process ProcessID) map[Handle]RightsMask {
	table, ok := r.caps[process]
	if !ok {
		table = make(map[Handle]RightsMask)
		r.caps[process] = table
	}
	return table
}
