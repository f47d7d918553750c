package proc

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/cpu"
	"github.com/lumenkernel/lumen/kernel/irq"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
)

// Every place this package touches real paging hardware, the CPU's page
// table root, or raw physical memory goes through one of these seams, so
// tests can swap in fakes instead of mapping real pages, issuing a
// privileged MOV CR3, or writing through HHDM aliases — the same pattern
// kernel/mem/kheap uses for vmm.MapKernel and kernel/mem/vmm uses for
// cpu.SwitchPDT.
var (
	newAddressSpaceFn = vmm.NewAddressSpace

	mapPageFn = func(space vmm.AddressSpace, page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
		return space.Map(page, frame, flags)
	}

	physToVirtFn = vmm.PhysToVirt
	copyBytesFn  = mem.Memcpy
	zeroBytesFn  = mem.Memset
	switchPDTFn  = cpu.SwitchPDT
	haltFn       = cpu.Halt
	ackIRQFn     = irq.AckIRQ
)
