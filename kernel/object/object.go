// Package object implements the kernel object registry. Kernel objects
// (surfaces, buffers, event streams, displays, processes) are never reached
// directly; userspace and other kernel subsystems hold an opaque Handle and
// present it, together with a target process, to Lookup. The registry
// checks a capability (handle, rights, owner) before returning the object.
//
// Go has no built-in union type, so the family of object kinds is
// expressed the idiomatic way: an Object interface with a Kind method,
// satisfied by the concrete variant types below. kernel/proc's Process
// type satisfies the same interface without this package ever importing
// kernel/proc.
package object

import "github.com/lumenkernel/lumen/kernel"

// Handle is an opaque, monotonically issued token naming a live object.
// Never reused within the kernel's lifetime.
type Handle uint64

// ProcessID names the owning process of a capability. Defined here rather
// than in kernel/proc so the registry has no dependency on the process
// package; kernel/proc.Process carries a field of this type as its pid.
type ProcessID uint64

// Kind tags which variant an Object is.
//
//go:generate go run ../../cmd/gensyscalls -pkg github.com/lumenkernel/lumen/kernel/object -type Kind -out kind_string.go
type Kind uint8

const (
	KindSurface Kind = iota
	KindBuffer
	KindEventStream
	KindDisplay
	KindProcess
)

// Object is implemented by every kernel object variant.
type Object interface {
	Kind() Kind
}

// RightsMask is a bitmask of operations a capability permits.
type RightsMask uint8

// Rights bits. The absence of a bit denies that operation on the named
// object; SHARE is required to mint a derived capability for another
// process.
const (
	RightRead RightsMask = 1 << iota
	RightWrite
	RightExecute
	RightDelete
	RightShare
)

// Has reports whether mask contains every bit in required.
func (mask RightsMask) Has(required RightsMask) bool {
	return mask&required == required
}

// Capability is (handle, rights, owning process), as named in the data
// model. It is never constructed by userspace directly: the only ways to
// obtain one are Register (creating a new object) or Transfer (receiving
// one from a process holding RightShare).
type Capability struct {
	Handle Handle
	Rights RightsMask
	Owner  ProcessID
}

// Error sentinels distinguishing the registry's failure modes, one kind
// per distinct failure rather than a single generic error.
var (
	ErrUnknownProcess     = kernel.New("object", "unknown process", kernel.KindInvalidArgument)
	ErrUnknownHandle      = kernel.New("object", "unknown handle", kernel.KindInvalidArgument)
	ErrInsufficientRights = kernel.New("object", "insufficient rights", kernel.KindPermissionDenied)
	ErrDanglingHandle     = kernel.New("object", "handle names no live object", kernel.KindInvalidArgument)
	ErrRightAmplification = kernel.New("object", "transfer would grant rights the caller lacks", kernel.KindPermissionDenied)
)
