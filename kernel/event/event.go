// Package event implements the input-event dispatcher: a list of
// subscriptions, each naming an event-stream handle, the process that owns
// it, and a filter over which event kinds it wants. A produced event is
// matched against every subscription and a copy is appended to each
// matching stream's FIFO, via the same object registry used for everything
// else capability-addressed.
package event

import (
	"github.com/lumenkernel/lumen/kernel/object"
	"github.com/lumenkernel/lumen/kernel/sync"
)

// Filter is a bitmask over object.InputEventKind. A zero Filter matches
// nothing; AnyFilter matches every kind.
type Filter uint32

// Matches reports whether kind is set in f.
func (f Filter) Matches(kind object.InputEventKind) bool {
	return f&(1<<kind) != 0
}

// FilterFor builds a Filter matching exactly the listed kinds.
func FilterFor(kinds ...object.InputEventKind) Filter {
	var f Filter
	for _, k := range kinds {
		f |= 1 << k
	}
	return f
}

// AnyFilter matches every InputEventKind currently defined.
const AnyFilter = Filter(1<<object.EventKeyPress | 1<<object.EventKeyRelease |
	1<<object.EventMouseMove | 1<<object.EventMousePress | 1<<object.EventMouseRelease)

// subscription is (event-stream-handle, owning-pid, type-filter).
type subscription struct {
	stream object.Handle
	owner  object.ProcessID
	filter Filter
}

// Dispatcher holds the subscription list and the registry subscriptions'
// handles are resolved through. There is exactly one Dispatcher per
// kernel, wired to the input-producing drivers at boot.
type Dispatcher struct {
	mu   sync.Spinlock
	reg  *object.Registry
	subs []subscription
}

// NewDispatcher returns an empty dispatcher resolving handles through reg.
func NewDispatcher(reg *object.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Subscribe registers owner's interest in events matching filter, delivered
// to the EventStream named by stream. owner must hold RightWrite on stream
// (the dispatcher is what writes into it); Subscribe itself does not check
// this — callers (kernel/syscall) are expected to have validated the
// handle before subscribing.
func (d *Dispatcher) Subscribe(stream object.Handle, owner object.ProcessID, filter Filter) {
	d.mu.Acquire()
	defer d.mu.Release()
	d.subs = append(d.subs, subscription{stream: stream, owner: owner, filter: filter})
}

// Unsubscribe removes every subscription owned by owner naming stream.
func (d *Dispatcher) Unsubscribe(stream object.Handle, owner object.ProcessID) {
	d.mu.Acquire()
	defer d.mu.Release()
	kept := d.subs[:0]
	for _, s := range d.subs {
		if s.stream == stream && s.owner == owner {
			continue
		}
		kept = append(kept, s)
	}
	d.subs = kept
}

// UnsubscribeProcess removes every subscription owned by owner, used when a
// process exits and its capabilities are revoked.
func (d *Dispatcher) UnsubscribeProcess(owner object.ProcessID) {
	d.mu.Acquire()
	defer d.mu.Release()
	kept := d.subs[:0]
	for _, s := range d.subs {
		if s.owner == owner {
			continue
		}
		kept = append(kept, s)
	}
	d.subs = kept
}

// Dispatch delivers ev to every subscription whose filter matches ev.Kind.
// Delivery is best-effort within this call: a subscription whose stream has
// been revoked since it subscribed fails its lookup and is silently
// skipped rather than aborting delivery to the remaining subscriptions.
// Within one subscription, events are appended in the order Dispatch is
// called; across subscriptions, no ordering is promised.
func (d *Dispatcher) Dispatch(ev object.InputEvent) {
	d.mu.Acquire()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Release()

	for _, s := range subs {
		if !s.filter.Matches(ev.Kind) {
			continue
		}
		obj, err := d.reg.Lookup(s.stream, s.owner, object.RightWrite)
		if err != nil {
			continue
		}
		stream, ok := obj.(*object.EventStream)
		if !ok {
			continue
		}
		stream.Push(ev)
	}
}
