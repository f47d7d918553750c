package syscall

import (
	"github.com/lumenkernel/lumen/kernel/event"
	"github.com/lumenkernel/lumen/kernel/hal/bootproto"
	"github.com/lumenkernel/lumen/kernel/object"
	"github.com/lumenkernel/lumen/kernel/proc"
)

const fullRights = object.RightRead | object.RightWrite | object.RightExecute | object.RightDelete | object.RightShare

// bootOwner is the capability owner under which boot-time drivers register
// singleton objects (currently just the Display), before any real process
// exists to own them. Pid 0 is never issued by kernel/proc's Scheduler, so
// it names no process a syscall ever traps in on behalf of.
const bootOwner object.ProcessID = 0

// Dispatcher routes a decoded SyscallFrame into kernel/object and
// kernel/proc on behalf of the process that trapped. There is exactly one
// Dispatcher per kernel, wired to entry_amd64.go's fast-syscall stub via
// SetActive.
type Dispatcher struct {
	registry  *object.Registry
	scheduler *proc.Scheduler
	events    *event.Dispatcher

	displayHandle object.Handle
	hasDisplay    bool
}

// NewDispatcher returns a Dispatcher routing into registry, scheduler and
// events.
func NewDispatcher(registry *object.Registry, scheduler *proc.Scheduler, events *event.Dispatcher) *Dispatcher {
	return &Dispatcher{registry: registry, scheduler: scheduler, events: events}
}

// RegisterDisplay records the handle of the Display object a boot-time
// driver (the one owning the framebuffer) registered under bootOwner.
// CreateObject's KindDisplay case mints callers a capability against this
// one object instead of constructing a new one.
func (d *Dispatcher) RegisterDisplay(handle object.Handle) {
	d.displayHandle = handle
	d.hasDisplay = true
}

// Dispatch decodes frame.Op and performs the named operation on behalf of
// caller, writing the result (or retFail on any error) into frame.Ret.
func (d *Dispatcher) Dispatch(caller object.ProcessID, frame *SyscallFrame) {
	switch frame.Op {
	case OpCreateObject:
		frame.Ret = d.createObject(caller, frame)
	case OpGetObject:
		frame.Ret = d.getObject(caller, frame)
	case OpCallObject:
		frame.Ret = d.callObject(caller, frame)
	case OpTransferCapability:
		frame.Ret = d.transferCapability(caller, frame)
	case OpRevokeCapability:
		frame.Ret = d.revokeCapability(caller, frame)
	case OpCreateProcess:
		frame.Ret = d.createProcess()
	case OpLoadElf:
		frame.Ret = d.loadElf(caller, frame)
	case OpStartProcess:
		frame.Ret = d.startProcess(frame)
	case OpExit:
		d.exit(caller, frame)
	default:
		frame.Ret = retFail
	}
}

// createObject implements CreateObject: Arg0 is the object.Kind type-tag,
// Arg1/Arg2/Arg3 are kind-specific constructor arguments. Process is not
// user-creatable through this call — that comes from CreateProcess
// instead. Display is not constructed here either: it is a singleton
// registered at boot by the device driver that owns it (RegisterDisplay);
// KindDisplay instead mints the caller a capability against that existing
// object.
func (d *Dispatcher) createObject(caller object.ProcessID, frame *SyscallFrame) uint64 {
	if object.Kind(frame.Arg0) == object.KindDisplay {
		return d.shareDisplay(caller)
	}

	var obj object.Object
	switch object.Kind(frame.Arg0) {
	case object.KindSurface:
		obj = &object.Surface{
			Width:  uint32(frame.Arg1),
			Height: uint32(frame.Arg2),
			Format: bootproto.PixelFormat(frame.Arg3),
		}
	case object.KindBuffer:
		format := bootproto.PixelFormat(frame.Arg3)
		width := uint32(frame.Arg1)
		buf := &object.Buffer{
			Width:  width,
			Height: uint32(frame.Arg2),
			Stride: width * bytesPerPixel(format),
			Format: format,
		}
		// Arg4, nonzero, names the physical address of a caller-supplied
		// DMA region instead of kernel-owned storage: the explicit
		// width/height/stride above already fully describe its layout, so
		// no separate DMA constructor call is needed.
		if physAddr := frame.Arg4; physAddr != 0 {
			buf.DMA = true
			buf.PhysAddr = uintptr(physAddr)
		}
		obj = buf
	case object.KindEventStream:
		obj = &object.EventStream{}
	default:
		return retFail
	}

	handle := d.registry.Register(obj, caller, fullRights)

	if object.Kind(frame.Arg0) == object.KindEventStream {
		// Arg1, if nonzero, is the caller's own event.Filter bitmask; a
		// caller that leaves it 0 gets every input event kind rather than
		// none, since an EventStream nobody can ever receive anything on
		// is never a useful default.
		filter := event.Filter(frame.Arg1)
		if filter == 0 {
			filter = event.AnyFilter
		}
		d.events.Subscribe(handle, caller, filter)
	}

	return uint64(handle)
}

// shareDisplay mints caller a read/write, shareable capability against the
// boot-registered Display singleton. Fails if no driver ever called
// RegisterDisplay (a headless boot with no framebuffer).
func (d *Dispatcher) shareDisplay(caller object.ProcessID) uint64 {
	if !d.hasDisplay {
		return retFail
	}
	const shareRights = object.RightRead | object.RightWrite | object.RightShare
	if err := d.registry.Transfer(d.displayHandle, bootOwner, caller, shareRights); err != nil {
		return retFail
	}
	return uint64(d.displayHandle)
}

// bytesPerPixel reports the pixel stride CreateObject derives a Buffer's
// Stride from, given only width and a format tag (no separate stride
// argument fits the three-argument CreateObject convention).
func bytesPerPixel(format bootproto.PixelFormat) uint32 {
	switch format {
	case bootproto.Rgb888, bootproto.Bgr888:
		return 3
	default:
		return 4
	}
}

// getObject implements GetObject: confirms caller holds at least
// requiredRights on handle and, if so, returns the same handle back
// unchanged (there is no capability amplification here — only a
// yes/no check expressed as "the handle" vs. retFail, matching the
// ABI table).
func (d *Dispatcher) getObject(caller object.ProcessID, frame *SyscallFrame) uint64 {
	handle := object.Handle(frame.Arg0)
	required := object.RightsMask(frame.Arg1)

	rights, ok := d.registry.Rights(handle, caller)
	if !ok || !rights.Has(required) {
		return retFail
	}
	return uint64(handle)
}

// callObject implements CallObject: Arg0 is the handle, Arg1 the
// method-id, Arg2/Arg3 the method's own arguments. Method-id meaning is
// fixed per object kind by the ABI.
func (d *Dispatcher) callObject(caller object.ProcessID, frame *SyscallFrame) uint64 {
	handle := object.Handle(frame.Arg0)
	method := frame.Arg1

	obj, err := d.registry.Lookup(handle, caller, object.RightWrite)
	if err != nil {
		return retFail
	}

	switch o := obj.(type) {
	case *object.Surface:
		return d.callSurface(o, method, frame)
	case *object.EventStream:
		return d.callEventStream(o, method)
	case *object.Display:
		return d.callDisplay(caller, o, method)
	default:
		return retFail
	}
}

func (d *Dispatcher) callDisplay(caller object.ProcessID, disp *object.Display, method uint64) uint64 {
	switch method {
	case MethodDisplayClaim:
		if !disp.Claim(caller) {
			return retFail
		}
		return 1
	case MethodDisplayRelease:
		disp.Release(caller)
		return 1
	default:
		return retFail
	}
}

func (d *Dispatcher) callSurface(s *object.Surface, method uint64, frame *SyscallFrame) uint64 {
	switch method {
	case MethodSurfaceAttach:
		s.Attach(object.Handle(frame.Arg2))
		return 1
	case MethodSurfaceCommit:
		// The full []Rect snapshot has no room in a single return
		// register; the caller learns how much work the compositor has
		// to do from the count and re-reads current damage, if it needs
		// the rects themselves, via AddDamage's counterpart on the
		// compositor side.
		damage := s.Commit()
		return uint64(len(damage))
	case MethodSurfaceDamage:
		s.AddDamage(object.Rect{
			X: uint32(frame.Arg2), Y: uint32(frame.Arg2 >> 32),
			Width: uint32(frame.Arg3), Height: uint32(frame.Arg3 >> 32),
		})
		return 1
	default:
		return retFail
	}
}

// eventNone is the sentinel CallObject's EventStream poll method returns
// to userspace when the stream's FIFO is empty, distinct from retFail (an
// empty poll is not an error — it is the expected steady state of a
// process that polls faster than events arrive).
const eventNone = ^uint64(0)

func (d *Dispatcher) callEventStream(e *object.EventStream, method uint64) uint64 {
	if method != MethodEventStreamPoll {
		return retFail
	}
	ev, ok := e.Poll()
	if !ok {
		return eventNone
	}
	// The tagged union collapses onto one register: Kind in the low byte,
	// Key/Button in the next, Modifiers after that, X and Y packed into
	// the upper 32 bits as two int16s. A richer event needs a buffer
	// handle instead of a single register; not needed by anything this
	// kernel's userspace does yet.
	return uint64(ev.Kind) |
		uint64(ev.Key|uint16(ev.Button))<<8 |
		uint64(ev.Modifiers)<<24 |
		uint64(uint16(ev.X))<<32 |
		uint64(uint16(ev.Y))<<48
}

func (d *Dispatcher) transferCapability(caller object.ProcessID, frame *SyscallFrame) uint64 {
	handle := object.Handle(frame.Arg0)
	target := object.ProcessID(frame.Arg1)
	newRights := object.RightsMask(frame.Arg2)

	if err := d.registry.Transfer(handle, caller, target, newRights); err != nil {
		return retFail
	}
	return 1
}

func (d *Dispatcher) revokeCapability(caller object.ProcessID, frame *SyscallFrame) uint64 {
	handle := object.Handle(frame.Arg0)
	if err := d.registry.Revoke(handle, caller); err != nil {
		return retFail
	}
	return 1
}

func (d *Dispatcher) createProcess() uint64 {
	pid, err := d.scheduler.Create()
	if err != nil {
		return retFail
	}
	return uint64(pid)
}

// loadElf implements LoadElf: Arg0 is the target pid, Arg1/Arg2 are the
// image pointer/length in the caller's own address space (the image
// belongs to the process loading it, which is ordinarily the caller's
// parent, not the target pid itself). The table's return convention is "0
// or error", not the entry point kernel/proc.Scheduler.LoadElf itself
// returns: a loader already knows its image's entry address from having
// parsed the same ELF header userspace-side.
func (d *Dispatcher) loadElf(caller object.ProcessID, frame *SyscallFrame) uint64 {
	target := object.ProcessID(frame.Arg0)
	imagePtr := uintptr(frame.Arg1)
	imageLen := frame.Arg2

	callerSpace, err := d.scheduler.AddressSpace(caller)
	if err != nil {
		return retFail
	}
	image, err := copyFromUser(callerSpace, imagePtr, imageLen)
	if err != nil {
		return retFail
	}

	if _, err := d.scheduler.LoadElf(target, image); err != nil {
		return retFail
	}
	return 1
}

func (d *Dispatcher) startProcess(frame *SyscallFrame) uint64 {
	pid := object.ProcessID(frame.Arg0)
	entry := uintptr(frame.Arg1)
	if err := d.scheduler.Start(pid, entry); err != nil {
		return retFail
	}
	return 1
}

// exit implements Exit: revokes every capability caller holds (dropping
// objects whose last reference that was), removes caller's event
// subscriptions, and marks it a zombie. Exit never returns to the process
// it terminates, so frame.Ret is left unset rather than written back to a
// register nobody will read.
func (d *Dispatcher) exit(caller object.ProcessID, frame *SyscallFrame) {
	d.registry.RevokeAllForProcess(caller)
	d.events.UnsubscribeProcess(caller)
	d.scheduler.Exit(caller)
}
