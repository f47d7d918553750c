package object

import (
	"github.com/lumenkernel/lumen/kernel/hal/bootproto"
	"github.com/lumenkernel/lumen/kernel/sync"
)

// Rect is a damage rectangle reported against a Surface's attached buffer.
type Rect struct {
	X, Y, Width, Height uint32
}

// Surface is a compositor surface: a size and format, an optional attached
// buffer, and the accumulated damage since the last commit. Method 0
// attaches a buffer, method 1 commits, method 2 adds a damage rect (the
// CallObject method-id convention, fixed by the syscall ABI).
type Surface struct {
	mu sync.Spinlock

	Width, Height uint32
	Format        bootproto.PixelFormat

	buffer    Handle
	hasBuffer bool
	committed bool
	damage    []Rect
}

// Kind implements Object.
func (*Surface) Kind() Kind { return KindSurface }

// Attach records the handle of the buffer this surface now presents.
// Lookups of the attached buffer go back through the registry at commit
// time rather than holding a direct reference, so a buffer outliving its
// surface (or vice versa) never leaves a dangling pointer — only a
// handle that Lookup will report as ErrDanglingHandle if revoked.
func (s *Surface) Attach(buffer Handle) {
	s.mu.Acquire()
	defer s.mu.Release()
	s.buffer = buffer
	s.hasBuffer = true
	s.committed = false
}

// AttachedBuffer reports the surface's attached buffer handle, if any.
func (s *Surface) AttachedBuffer() (Handle, bool) {
	s.mu.Acquire()
	defer s.mu.Release()
	return s.buffer, s.hasBuffer
}

// Commit marks the surface's attached buffer as ready for display,
// draining the accumulated damage into a snapshot it returns to the
// caller (the compositor reads it to know which rects to recomposite)
// and clearing it in place.
func (s *Surface) Commit() []Rect {
	s.mu.Acquire()
	defer s.mu.Release()
	s.committed = true
	drained := s.damage
	s.damage = nil
	return drained
}

// Committed reports whether Commit has run since the last Attach.
func (s *Surface) Committed() bool {
	s.mu.Acquire()
	defer s.mu.Release()
	return s.committed
}

// AddDamage appends a damage rectangle.
func (s *Surface) AddDamage(r Rect) {
	s.mu.Acquire()
	defer s.mu.Release()
	s.damage = append(s.damage, r)
}

// Damage returns a copy of the accumulated damage rects.
func (s *Surface) Damage() []Rect {
	s.mu.Acquire()
	defer s.mu.Release()
	out := make([]Rect, len(s.damage))
	copy(out, s.damage)
	return out
}

// Buffer is pixel storage: either kernel-owned bytes or a shared
// DMA-capable physical region. Per the design note resolving an ambiguity
// in the source, DMA-backed buffers must be created with explicit
// width/height/stride rather than inferred.
type Buffer struct {
	Width, Height, Stride uint32
	Format                bootproto.PixelFormat

	// Storage holds the pixel bytes for a kernel-owned buffer. Empty for
	// a DMA-backed buffer, whose bytes live at PhysAddr instead.
	Storage []byte

	// DMA is true if this buffer is backed by a shared physical region
	// rather than owned storage.
	DMA      bool
	PhysAddr uintptr
}

// Kind implements Object.
func (*Buffer) Kind() Kind { return KindBuffer }

// InputEventKind tags which field of InputEvent is meaningful.
type InputEventKind uint8

const (
	EventKeyPress InputEventKind = iota
	EventKeyRelease
	EventMouseMove
	EventMousePress
	EventMouseRelease
)

// InputEvent is the tagged value the input subsystem produces and
// EventStream queues: a key event carries Key/Modifiers, a mouse event
// carries X/Y and optionally Button.
type InputEvent struct {
	Kind InputEventKind

	Key       uint16
	Modifiers uint8

	X, Y   int32
	Button uint8
}

// EventStream is a single-consumer, many-producer FIFO of input events.
// The owning process is the sole consumer (method 0 of CallObject polls
// one event, per the syscall ABI); the input subsystem is the producer
// side.
type EventStream struct {
	mu    sync.Spinlock
	queue []InputEvent
}

// Kind implements Object.
func (*EventStream) Kind() Kind { return KindEventStream }

// Push appends an event to the stream's FIFO. Called by the input
// subsystem during dispatch; never blocks.
func (e *EventStream) Push(ev InputEvent) {
	e.mu.Acquire()
	defer e.mu.Release()
	e.queue = append(e.queue, ev)
}

// Poll removes and returns the oldest queued event. ok is false if the
// stream is empty, the sentinel CallObject method 0 returns to userspace.
func (e *EventStream) Poll() (ev InputEvent, ok bool) {
	e.mu.Acquire()
	defer e.mu.Release()
	if len(e.queue) == 0 {
		return InputEvent{}, false
	}
	ev, e.queue = e.queue[0], e.queue[1:]
	return ev, true
}

// Display describes an output device: its mode and, if claimed, the
// process with exclusive access to its framebuffer.
type Display struct {
	mu sync.Spinlock

	Width, Height   uint32
	RefreshRate     uint32
	FramebufferAddr uintptr

	exclusiveOwner    ProcessID
	hasExclusiveOwner bool
}

// Kind implements Object.
func (*Display) Kind() Kind { return KindDisplay }

// Claim grants process exclusive ownership of the display, reporting
// false if another process already holds it.
func (d *Display) Claim(process ProcessID) bool {
	d.mu.Acquire()
	defer d.mu.Release()
	if d.hasExclusiveOwner && d.exclusiveOwner != process {
		return false
	}
	d.exclusiveOwner, d.hasExclusiveOwner = process, true
	return true
}

// Release relinquishes process's exclusive claim, if it holds one.
func (d *Display) Release(process ProcessID) {
	d.mu.Acquire()
	defer d.mu.Release()
	if d.hasExclusiveOwner && d.exclusiveOwner == process {
		d.hasExclusiveOwner = false
	}
}
