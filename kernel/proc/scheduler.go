package proc

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/irq"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
	"github.com/lumenkernel/lumen/kernel/object"
	"github.com/lumenkernel/lumen/kernel/sync"
)

// ErrUnknownProcess is returned by every Scheduler operation given a pid
// that Create never issued (or that has since exited and been reaped).
var ErrUnknownProcess = kernel.New("proc", "unknown process", kernel.KindInvalidArgument)

// userStackPages sets the size of the stack Start maps for a process: 4
// pages (16 KiB), enough for a prototype userspace program without paging
// it in lazily.
const userStackPages = 4

// Scheduler owns every process's lifecycle and the one piece of kernel-wide
// scheduling state: which pid, if any, is currently running. It implements
// a round-robin-over-ready-processes policy, halting the CPU when nothing
// is ready to run.
type Scheduler struct {
	mu sync.Spinlock

	registry    *object.Registry
	kernelSpace vmm.AddressSpace
	allocFn     vmm.FrameAllocatorFn

	nextPID   object.ProcessID
	processes map[object.ProcessID]*Process
	ready     []object.ProcessID
	current   object.ProcessID // 0 means idle; pid 0 is never issued
}

// NewScheduler returns an empty scheduler. registry is where every created
// process also registers itself as a capability-bearing object; allocFn
// supplies frames for each process's address space, page tables and
// mapped segments.
func NewScheduler(registry *object.Registry, kernelSpace vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) *Scheduler {
	return &Scheduler{
		registry:    registry,
		kernelSpace: kernelSpace,
		allocFn:     allocFn,
		processes:   make(map[object.ProcessID]*Process),
	}
}

// Create allocates a pid, a fresh address space copying in the kernel
// half, and registers the process as a capability-bearing object owned by
// itself. No thread of execution exists yet; the process sits at
// StateBlocked until LoadElf and Start.
func (s *Scheduler) Create() (object.ProcessID, *kernel.Error) {
	s.mu.Acquire()
	defer s.mu.Release()

	space, err := newAddressSpaceFn(s.kernelSpace, s.allocFn)
	if err != nil {
		return 0, err
	}

	s.nextPID++
	pid := s.nextPID
	p := &Process{id: pid, space: space, state: StateBlocked}
	s.processes[pid] = p

	const fullRights = object.RightRead | object.RightWrite | object.RightExecute | object.RightDelete | object.RightShare
	s.registry.Register(p, pid, fullRights)

	return pid, nil
}

// LoadElf parses image's program headers and maps every PT_LOAD segment
// into pid's address space, returning the entry instruction pointer
// recorded in the ELF header.
func (s *Scheduler) LoadElf(pid object.ProcessID, image []byte) (uintptr, *kernel.Error) {
	s.mu.Acquire()
	defer s.mu.Release()

	p, ok := s.processes[pid]
	if !ok {
		return 0, ErrUnknownProcess
	}
	return loadELF(image, p.space, s.allocFn)
}

// Start maps a fresh user stack, builds the initial register context
// around entryPoint and that stack, and marks the process Ready. It does
// not itself transfer control; Run dispatches whatever is Ready.
func (s *Scheduler) Start(pid object.ProcessID, entryPoint uintptr) *kernel.Error {
	s.mu.Acquire()
	defer s.mu.Release()

	p, ok := s.processes[pid]
	if !ok {
		return ErrUnknownProcess
	}

	stackTop, err := s.mapUserStack(p.space)
	if err != nil {
		return err
	}

	p.context = newUserContext(entryPoint, stackTop, p.space.Root().Address())
	p.state = StateReady
	s.ready = append(s.ready, pid)
	return nil
}

// mapUserStack maps userStackPages pages immediately below the kernel
// half and returns the address the stack pointer should start at.
func (s *Scheduler) mapUserStack(space vmm.AddressSpace) (uintptr, *kernel.Error) {
	const flags = vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible | vmm.FlagNoExecute
	top := vmm.KernelHalfBase

	for i := 0; i < userStackPages; i++ {
		frame, err := s.allocFn()
		if err != nil {
			return 0, err
		}
		pageAddr := top - uintptr(i+1)*uintptr(mem.PageSize)
		if err := mapPageFn(space, vmm.PageFromAddress(pageAddr), frame, flags); err != nil {
			return 0, err
		}
	}

	return top, nil
}

// Run dispatches the first ready process, if any, and never returns:
// Switch drops into it via IRETQ. With nothing ready, the CPU halts until
// the next interrupt, per the idle-when-nothing-runnable decision.
// Every later scheduling decision happens from HandleTimerTick instead,
// by rewriting the interrupted process's own trap frame.
func (s *Scheduler) Run() {
	s.mu.Acquire()
	pid, ok := s.popReadyLocked()
	if !ok {
		s.mu.Release()
		haltFn()
		return
	}
	p := s.processes[pid]
	p.state = StateRunning
	s.current = pid
	ctx := p.context
	s.mu.Release()

	Switch(&ctx)
}

// HandleTimerTick is kernel/irq's Handler for the timer IRQ: it saves the
// preempted process's context (if one was running), re-enqueues it,
// advances its tick count, picks the next ready process round-robin, and
// rewrites frame/regs in place so the interrupt return resumes that
// process instead. With no other process ready, it leaves frame/regs
// untouched so the return resumes whatever was running (or the idle halt
// loop).
func (s *Scheduler) HandleTimerTick(frame *irq.Frame, regs *irq.Registers) {
	ackIRQFn(irq.Timer)

	s.mu.Acquire()
	defer s.mu.Release()

	if cur := s.current; cur != 0 {
		p := s.processes[cur]
		p.accumulateTick()
		p.context = fromFrame(regs, frame, p.space.Root().Address())
		p.state = StateReady
		s.ready = append(s.ready, cur)
	}

	s.dispatchNextLocked(frame, regs)
}

// AddressSpace returns pid's address space. kernel/syscall uses this to
// validate and translate user pointers passed to operations like LoadElf.
func (s *Scheduler) AddressSpace(pid object.ProcessID) (vmm.AddressSpace, *kernel.Error) {
	s.mu.Acquire()
	defer s.mu.Release()
	p, ok := s.processes[pid]
	if !ok {
		return vmm.AddressSpace{}, ErrUnknownProcess
	}
	return p.space, nil
}

// Current returns the pid the scheduler last dispatched, or 0 if idle.
// kernel/syscall uses this to attribute a syscall trap to its caller.
func (s *Scheduler) Current() object.ProcessID {
	s.mu.Acquire()
	defer s.mu.Release()
	return s.current
}

// Exit tears down pid: every capability it holds is revoked (dropping
// objects whose last reference that was), any event subscriptions it owns
// are removed by the caller (kernel/syscall, which also owns the event
// dispatcher), and the process is marked StateZombie. It stays in the
// process table as a zombie until something reaps it; this kernel has no
// reaper yet, so zombies simply accumulate.
func (s *Scheduler) Exit(pid object.ProcessID) *kernel.Error {
	s.mu.Acquire()
	defer s.mu.Release()
	return s.exitLocked(pid)
}

// exitLocked is Exit's body, callable from places (HandleFault) that
// already hold s.mu.
func (s *Scheduler) exitLocked(pid object.ProcessID) *kernel.Error {
	p, ok := s.processes[pid]
	if !ok {
		return ErrUnknownProcess
	}

	s.registry.RevokeAllForProcess(pid)
	p.state = StateZombie
	if s.current == pid {
		s.current = 0
	}
	for i, rpid := range s.ready {
		if rpid == pid {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			break
		}
	}
	return nil
}

// faultNames gives kernel.PanicTrap's diagnostic a readable cause instead
// of a bare vector number, for the CPU exceptions HandleFault installs a
// handler for.
var faultNames = map[irq.Vector]string{
	irq.Breakpoint:        "breakpoint",
	irq.GeneralProtection: "general protection fault",
	irq.PageFault:         "page fault",
	irq.DoubleFault:       "double fault",
}

func faultError(vector irq.Vector) *kernel.Error {
	name, ok := faultNames[vector]
	if !ok {
		name = "cpu fault"
	}
	return kernel.New("proc", name, kernel.KindBug)
}

// HandleFault is kernel/irq's handler for every CPU exception that can
// originate from either ring: breakpoint, general protection, page fault,
// and double fault. A fault trapped from user mode terminates only the
// faulting process and falls through to the scheduler's next ready
// process, exactly as HandleTimerTick would have; kernel/proc never lets a
// user mistake bring down the whole machine. A fault trapped from kernel
// mode is always a kernel bug and escalates to kernel.PanicTrap, which
// halts. A double fault halts unconditionally regardless of which mode it
// is reported against, since by the time the CPU can't even deliver the
// original fault the kernel state is no longer trustworthy enough to keep
// running other processes.
func (s *Scheduler) HandleFault(vector irq.Vector, errorCode uint64, frame *irq.Frame, regs *irq.Registers) {
	if vector == irq.DoubleFault || !frame.WasUserMode() {
		kernel.PanicTrap(faultError(vector), kernel.FaultInfo{
			Vector:  uint8(vector),
			ErrCode: errorCode,
			RIP:     frame.RIP,
			RSP:     frame.RSP,
			CS:      frame.CS,
			Present: true,
		})
		return
	}

	s.mu.Acquire()
	defer s.mu.Release()

	if cur := s.current; cur != 0 {
		s.exitLocked(cur)
	}
	s.dispatchNextLocked(frame, regs)
}

// dispatchNextLocked picks the next ready process round-robin and
// rewrites frame/regs so the pending IRETQ resumes it instead. With
// nothing ready it leaves current at 0 (idle) and frame/regs untouched,
// resuming whatever was interrupted. Callers must already hold s.mu.
func (s *Scheduler) dispatchNextLocked(frame *irq.Frame, regs *irq.Registers) {
	next, ok := s.popReadyLocked()
	if !ok {
		s.current = 0
		return
	}

	p := s.processes[next]
	p.state = StateRunning
	s.current = next
	p.context.intoFrame(regs, frame)

	// IRETQ restores RIP/CS/RFLAGS/RSP/SS but never touches CR3: the
	// address-space switch has to happen here, in Go, before dispatch
	// returns and the stub's IRETQ takes effect.
	switchPDTFn(uintptr(p.context.CR3))
}

// popReadyLocked removes and returns the head of the ready queue
// (round-robin order). Callers must already hold s.mu.
func (s *Scheduler) popReadyLocked() (object.ProcessID, bool) {
	if len(s.ready) == 0 {
		return 0, false
	}
	pid := s.ready[0]
	s.ready = s.ready[1:]
	return pid, true
}
