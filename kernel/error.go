package kernel

// Kind classifies a kernel Error so that callers (syscall dispatch, trap
// handlers) can decide whether to surface it, terminate a process, or halt.
type Kind uint8

const (
	// KindUnspecified is used by errors constructed before the taxonomy
	// below existed; treat as KindBug.
	KindUnspecified Kind = iota

	// KindResourceExhausted covers out-of-frames, out-of-heap and
	// out-of-handle-space conditions. Never causes a panic except during
	// early boot, before a full allocator is available.
	KindResourceExhausted

	// KindInvalidArgument covers malformed pointers, out-of-range
	// indices and unknown handles.
	KindInvalidArgument

	// KindPermissionDenied means a capability lookup found the handle
	// but the held rights do not contain the required rights.
	KindPermissionDenied

	// KindFaultedProcess marks a user fault that terminated the owning
	// process. Never returned to the victim; logged for its siblings.
	KindFaultedProcess

	// KindBug marks a violated kernel invariant. Always panics.
	KindBug
)

// Error describes a kernel error. All kernel errors are defined as package
// scoped variables holding a pointer to this structure: the Go allocator is
// not available during early boot so errors.New cannot be used, and
// constructing one on the fly inside a hot path would force it onto the
// heap once the heap does exist.
type Error struct {
	// Module names the package/subsystem where the error originated.
	Module string

	// Message is a short, human readable description.
	Message string

	// Kind classifies the error per the taxonomy above.
	Kind Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// New constructs an Error. Prefer declaring package-level sentinels over
// calling New in a hot path.
func New(module, message string, kind Kind) *Error {
	return &Error{Module: module, Message: message, Kind: kind}
}
