package kernel

import (
	"github.com/lumenkernel/lumen/kernel/cpu"
	"github.com/lumenkernel/lumen/kernel/kfmt/early"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the
	// compiler in non-test builds.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause", Kind: KindBug}
)

// FaultInfo carries the diagnostic payload printed by Panic when the panic
// originates from a CPU trap (as opposed to an explicit kernel.Panic call).
// The zero value means "no trap context available".
type FaultInfo struct {
	Vector   uint8
	ErrCode  uint64
	RIP      uint64
	RSP      uint64
	CS       uint64
	Present  bool
}

// Panic outputs the supplied error (if not nil) and an optional fault
// diagnostic to the console, then halts the CPU. Calls to Panic never
// return. It also serves as the redirection target for calls to the
// builtin panic() (resolved via runtime.gopanic) since recover() is not
// meaningful in a kernel with no process to unwind into.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	panicWith(e, FaultInfo{})
}

// PanicTrap is invoked by the trap dispatcher (irq package) for faults that
// originate in kernel mode. It prints the same header as Panic plus the
// trapped register state so the operator can diagnose which instruction
// faulted.
func PanicTrap(e interface{}, fi FaultInfo) {
	panicWith(e, fi)
}

func panicWith(e interface{}, fi FaultInfo) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	if fi.Present {
		early.Printf("vector=%d errcode=%x rip=%x rsp=%x cs=%x\n", fi.Vector, fi.ErrCode, fi.RIP, fi.RSP, fi.CS)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
