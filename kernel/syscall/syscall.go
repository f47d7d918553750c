// Package syscall implements the kernel's fast-syscall surface: the
// register-file ABI, the operation-number table, and the dispatcher that
// routes a trap into kernel/object and kernel/proc on the calling
// process's behalf. The actual SYSCALL/SYSRET entry point that gets a
// trap into this package's SyscallFrame form lives in entry_amd64.go/.s;
// everything else here is architecture-independent dispatch logic.
package syscall

import "github.com/lumenkernel/lumen/kernel"

// Op is a syscall operation number. Values are part of the stable ABI:
// userspace programs encode them directly, so existing numbers are never
// renumbered, only appended to.
//
//go:generate go run ../../cmd/gensyscalls -pkg github.com/lumenkernel/lumen/kernel/syscall -type Op -out op_string.go
type Op uint64

const (
	OpCreateObject        Op = 0
	OpGetObject            Op = 1
	OpCallObject           Op = 2
	OpTransferCapability   Op = 3
	OpRevokeCapability     Op = 4
	OpCreateProcess        Op = 5
	OpLoadElf              Op = 6
	OpStartProcess         Op = 7
	OpExit                 Op = 99
)

// CallObject method-id conventions, fixed by the ABI per object kind.
const (
	MethodSurfaceAttach   = 0
	MethodSurfaceCommit   = 1
	MethodSurfaceDamage   = 2
	MethodEventStreamPoll = 0
	MethodDisplayClaim    = 0
	MethodDisplayRelease  = 1
)

// SyscallFrame is the decoded register-file snapshot a trap arrives with:
// one register (RAX, conventionally) carries the operation number, up to
// five more carry arguments, and the operation number's register carries
// the return value back out. entry_amd64.s is responsible for the actual
// register-to-field mapping; this struct is architecture-independent.
type SyscallFrame struct {
	Op                         Op
	Arg0, Arg1, Arg2, Arg3, Arg4 uint64
	Ret                          uint64
}

// Error sentinels distinguishing dispatch's own failure modes from the
// errors kernel/object and kernel/proc already define.
var (
	ErrUnknownOperation = kernel.New("syscall", "unknown operation number", kernel.KindInvalidArgument)
	ErrBadPointer       = kernel.New("syscall", "user pointer out of range", kernel.KindInvalidArgument)
	ErrBadObjectKind    = kernel.New("syscall", "CreateObject type-tag names a kind that cannot be user-created", kernel.KindInvalidArgument)
	ErrBadMethod        = kernel.New("syscall", "CallObject method-id not defined for this object kind", kernel.KindInvalidArgument)
)

// Ret value 0 means "failed" on every operation that returns a generated
// identifier (CreateObject's handle, CreateProcess's pid) as well as every
// operation whose table entry reads "0 or error": kernel/object never
// issues handle 0 and kernel/proc never issues pid 0 (0 means idle), so a
// genuine success value is always nonzero and 0 is an unambiguous failure
// sentinel without a separate out-of-band error channel. Diagnostics, not
// the return register, are where a caller learns why a call failed.
const retFail = 0
