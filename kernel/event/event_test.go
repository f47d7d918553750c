package event

import (
	"testing"

	"github.com/lumenkernel/lumen/kernel/object"
)

func newStreamCapability(t *testing.T, reg *object.Registry, owner object.ProcessID) object.Handle {
	t.Helper()
	stream := &object.EventStream{}
	return reg.Register(stream, owner, object.RightRead|object.RightWrite)
}

func TestDispatchDeliversToMatchingFilterOnly(t *testing.T) {
	reg := object.NewRegistry()
	const pidA, pidB object.ProcessID = 1, 2
	streamA := newStreamCapability(t, reg, pidA)
	streamB := newStreamCapability(t, reg, pidB)

	d := NewDispatcher(reg)
	d.Subscribe(streamA, pidA, FilterFor(object.EventKeyPress))
	d.Subscribe(streamB, pidB, FilterFor(object.EventMouseMove))

	d.Dispatch(object.InputEvent{Kind: object.EventKeyPress, Key: 65})
	d.Dispatch(object.InputEvent{Kind: object.EventMouseMove, X: 3, Y: 4})

	objA, err := reg.Lookup(streamA, pidA, object.RightRead)
	if err != nil {
		t.Fatalf("lookup streamA: %v", err)
	}
	evA, ok := objA.(*object.EventStream).Poll()
	if !ok || evA.Kind != object.EventKeyPress {
		t.Fatalf("streamA poll = %+v, ok=%v, want one EventKeyPress", evA, ok)
	}
	if _, ok := objA.(*object.EventStream).Poll(); ok {
		t.Fatal("streamA received a second event it should not have matched")
	}

	objB, err := reg.Lookup(streamB, pidB, object.RightRead)
	if err != nil {
		t.Fatalf("lookup streamB: %v", err)
	}
	evB, ok := objB.(*object.EventStream).Poll()
	if !ok || evB.Kind != object.EventMouseMove {
		t.Fatalf("streamB poll = %+v, ok=%v, want one EventMouseMove", evB, ok)
	}
}

func TestDispatchSkipsRevokedStreamWithoutAffectingOthers(t *testing.T) {
	reg := object.NewRegistry()
	const pidA, pidB object.ProcessID = 1, 2
	streamA := newStreamCapability(t, reg, pidA)
	streamB := newStreamCapability(t, reg, pidB)

	d := NewDispatcher(reg)
	d.Subscribe(streamA, pidA, AnyFilter)
	d.Subscribe(streamB, pidB, AnyFilter)

	if err := reg.Revoke(streamA, pidA); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	d.Dispatch(object.InputEvent{Kind: object.EventKeyPress})

	objB, err := reg.Lookup(streamB, pidB, object.RightRead)
	if err != nil {
		t.Fatalf("lookup streamB: %v", err)
	}
	if _, ok := objB.(*object.EventStream).Poll(); !ok {
		t.Fatal("streamB did not receive the event even though streamA's subscription was revoked")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	reg := object.NewRegistry()
	const pid object.ProcessID = 1
	stream := newStreamCapability(t, reg, pid)

	d := NewDispatcher(reg)
	d.Subscribe(stream, pid, AnyFilter)
	d.Unsubscribe(stream, pid)

	d.Dispatch(object.InputEvent{Kind: object.EventKeyPress})

	obj, err := reg.Lookup(stream, pid, object.RightRead)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, ok := obj.(*object.EventStream).Poll(); ok {
		t.Fatal("stream received an event after Unsubscribe")
	}
}

func TestUnsubscribeProcessRemovesAllItsSubscriptions(t *testing.T) {
	reg := object.NewRegistry()
	const pid object.ProcessID = 1
	streamX := newStreamCapability(t, reg, pid)
	streamY := newStreamCapability(t, reg, pid)

	d := NewDispatcher(reg)
	d.Subscribe(streamX, pid, AnyFilter)
	d.Subscribe(streamY, pid, AnyFilter)
	d.UnsubscribeProcess(pid)

	d.Dispatch(object.InputEvent{Kind: object.EventKeyPress})

	for _, h := range []object.Handle{streamX, streamY} {
		obj, err := reg.Lookup(h, pid, object.RightRead)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if _, ok := obj.(*object.EventStream).Poll(); ok {
			t.Fatalf("handle %v received an event after UnsubscribeProcess", h)
		}
	}
}
