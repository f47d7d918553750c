// Package kmain wires every subsystem's Init/New* entrypoint together in
// the order boot requires: terminal, memory, protection rings, interrupts,
// the object registry, the scheduler, syscalls, and finally the drivers
// that need them all present before they can attach. It is the only
// package the rt0 assembly stub calls into.
package kmain

import (
	"unsafe"

	"github.com/lumenkernel/lumen/driver/console"
	"github.com/lumenkernel/lumen/driver/fs"
	"github.com/lumenkernel/lumen/driver/keyboard"
	"github.com/lumenkernel/lumen/driver/pci"
	"github.com/lumenkernel/lumen/driver/uart"
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/cpu"
	"github.com/lumenkernel/lumen/kernel/cpu/gdt"
	"github.com/lumenkernel/lumen/kernel/event"
	"github.com/lumenkernel/lumen/kernel/hal"
	"github.com/lumenkernel/lumen/kernel/hal/bootproto"
	"github.com/lumenkernel/lumen/kernel/irq"
	"github.com/lumenkernel/lumen/kernel/kfmt"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/kheap"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
	"github.com/lumenkernel/lumen/kernel/object"
	"github.com/lumenkernel/lumen/kernel/proc"
	"github.com/lumenkernel/lumen/kernel/syscall"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned", Kind: kernel.KindBug}

// stackSize sizes both the TSS's rsp0 stack and its IST-1 double-fault
// stack. There is exactly one of each: this is a uniprocessor prototype.
const stackSize = 16 * 1024

var (
	kernelStack      [stackSize]byte
	doubleFaultStack [stackSize]byte

	gdtTable gdt.Table
	pmmAlloc pmm.BitmapAllocator
)

// rawBootInfo mirrors the packed record the rt0 stub assembles from the
// bootloader's own response structures before calling Kmain: exactly the
// fields bootproto.Parse and the optional console need, carried as raw
// pointers and lengths the same way multiboot's tag stream would have
// carried them. The PSF console font is handed off as a boot module (the
// file cmd/mkpsf produces), addressed the same way the framebuffer is:
// a pointer and a length, with no filesystem involved this early in boot.
type rawBootInfo struct {
	HHDMOffset uintptr

	MemMapEntries uintptr
	MemMapCount   uint64

	HasFramebuffer  uint8
	FBAddress       uintptr
	FBWidth         uint32
	FBHeight        uint32
	FBPitch         uint32
	FBBytesPerPixel uint8
	FBFormat        uint8

	FontPtr uintptr
	FontLen uintptr

	KernelImageBase uintptr
	KernelImageSize uint64

	CmdLinePtr uintptr
	CmdLineLen uintptr
}

// Kmain is the only Go symbol visible to the rt0 initialization code. It is
// invoked after rt0 has set up a minimal stack and long-mode paging handed
// off from the bootloader. bootInfoPtr addresses a rawBootInfo the stub
// built from the bootloader's response records.
//
// Kmain is not expected to return. If it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(bootInfoPtr uintptr) {
	uart.COM1.Init()
	hal.SetActiveTerminal(uart.COM1)
	hal.ActiveTerminal.Clear()

	raw := (*rawBootInfo)(unsafe.Pointer(bootInfoPtr))
	info := parseBootInfo(raw)

	if err := pmmAlloc.Init(info.Regions, info.HHDMOffset); err != nil {
		kernel.Panic(err)
	}

	kernelRoot := pmm.FrameFromAddress(cpu.ActivePDT())
	vmm.Init(info.HHDMOffset, kernelRoot, pmmAlloc.AllocFrame)

	kheap.SetFrameAllocator(pmmAlloc.AllocFrame)
	if err := kheap.Init(); err != nil {
		kernel.Panic(err)
	}
	kfmt.SetOutputSink(uart.COM1)

	kernelStackTop := stackTop(&kernelStack)
	doubleFaultStackTop := stackTop(&doubleFaultStack)
	gdtTable.Init(kernelStackTop, doubleFaultStackTop)

	irq.Init()

	registry := object.NewRegistry()
	scheduler := proc.NewScheduler(registry, vmm.KernelAddressSpace(), pmmAlloc.AllocFrame)
	irq.Handle(irq.Timer, scheduler.HandleTimerTick)

	irq.Handle(irq.Breakpoint, func(frame *irq.Frame, regs *irq.Registers) {
		scheduler.HandleFault(irq.Breakpoint, 0, frame, regs)
	})
	irq.HandleWithCode(irq.GeneralProtection, func(errorCode uint64, frame *irq.Frame, regs *irq.Registers) {
		scheduler.HandleFault(irq.GeneralProtection, errorCode, frame, regs)
	})
	irq.HandleWithCode(irq.PageFault, func(errorCode uint64, frame *irq.Frame, regs *irq.Registers) {
		scheduler.HandleFault(irq.PageFault, errorCode, frame, regs)
	})
	irq.HandleWithCode(irq.DoubleFault, func(errorCode uint64, frame *irq.Frame, regs *irq.Registers) {
		scheduler.HandleFault(irq.DoubleFault, errorCode, frame, regs)
	})

	events := event.NewDispatcher(registry)
	keyboard.SetDispatcher(events)

	dispatcher := syscall.NewDispatcher(registry, scheduler, events)
	syscall.SetActive(dispatcher)
	syscall.Init(kernelStackTop)

	attachDrivers(raw, info, registry, dispatcher)

	kfmt.Printf("lumen: boot complete, %d free frames\n", pmmAlloc.FreeFrames())

	scheduler.Run()

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

// parseBootInfo turns the raw handoff record into an immutable
// bootproto.Info, decoding the optional framebuffer descriptor and command
// line out of their raw pointer/length pairs.
func parseBootInfo(raw *rawBootInfo) *bootproto.Info {
	var fb *bootproto.FramebufferInfo
	if raw.HasFramebuffer != 0 {
		fb = &bootproto.FramebufferInfo{
			Address:       raw.FBAddress,
			Width:         raw.FBWidth,
			Height:        raw.FBHeight,
			Pitch:         raw.FBPitch,
			BytesPerPixel: raw.FBBytesPerPixel,
			Format:        bootproto.PixelFormat(raw.FBFormat),
		}
	}

	var cmdLine string
	if raw.CmdLineLen > 0 {
		cmdLine = string(unsafe.Slice((*byte)(unsafe.Pointer(raw.CmdLinePtr)), raw.CmdLineLen))
	}

	return bootproto.Parse(
		raw.HHDMOffset,
		bootproto.RawMemoryMap{Entries: raw.MemMapEntries, Count: raw.MemMapCount},
		fb,
		raw.KernelImageBase,
		mem.Size(raw.KernelImageSize),
		cmdLine,
	)
}

// attachDrivers brings up the drivers that depend on boot-time state
// already being fully resolved: the graphical console (if a framebuffer
// and font module were both handed off), the Display object the console's
// framebuffer backs, the keyboard, the PCI bus, and the prototype
// filesystem's boot block (if a disk was formatted).
//
// Any failure here is diagnostic, not fatal: a missing framebuffer, font
// or filesystem leaves the kernel running on the serial console with no
// mounted volume, which is a valid (if minimal) boot.
func attachDrivers(raw *rawBootInfo, info *bootproto.Info, registry *object.Registry, dispatcher *syscall.Dispatcher) {
	if info.Framebuffer != nil && raw.FontLen > 0 {
		fontBytes := unsafe.Slice((*byte)(unsafe.Pointer(raw.FontPtr)), raw.FontLen)
		font, err := console.LoadPSF1(fontBytes)
		if err != nil {
			kfmt.Printf("kmain: PSF font load failed: %s\n", err.Message)
		} else {
			hhdmAddr := info.HHDMOffset + info.Framebuffer.Address
			fbLen := info.Framebuffer.Pitch * info.Framebuffer.Height
			fbSlice := unsafe.Slice((*byte)(unsafe.Pointer(hhdmAddr)), fbLen)
			con := console.New(*info.Framebuffer, fbSlice, font)
			hal.SetActiveTerminal(con)
			hal.ActiveTerminal.Clear()
		}
	}

	if info.Framebuffer != nil {
		const fullDisplayRights = object.RightRead | object.RightWrite | object.RightShare
		display := &object.Display{
			Width:           info.Framebuffer.Width,
			Height:          info.Framebuffer.Height,
			FramebufferAddr: info.HHDMOffset + info.Framebuffer.Address,
		}
		handle := registry.Register(display, bootOwner, fullDisplayRights)
		dispatcher.RegisterDisplay(handle)
	}

	keyboard.Init()
	irq.Handle(irq.Keyboard, keyboard.HandleIRQ)

	devices := pci.Scan()
	pci.Dump(devices)

	if vol, err := fs.ReadBootBlock(); err != nil {
		kfmt.Printf("fs: no volume mounted (%s)\n", err.Message)
	} else {
		kfmt.Printf("fs: mounted volume, %d/%d blocks free\n", vol.FreeBlockCount, vol.TotalBlocks)
	}
}

// bootOwner is the capability owner under which attachDrivers registers
// boot-time singleton objects (the Display), mirroring kernel/syscall's
// own bootOwner: pid 0, which kernel/proc's Scheduler never issues to a
// real process.
const bootOwner object.ProcessID = 0

// stackTop returns the one-past-the-end address of a static stack array,
// the value rsp (or rsp0) must hold since amd64 stacks grow downward.
func stackTop(stack *[stackSize]byte) uintptr {
	return uintptr(unsafe.Pointer(&stack[stackSize-1])) + 1
}
