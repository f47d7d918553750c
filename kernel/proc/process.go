// Package proc implements the process model. A Process owns an address
// space, a saved register context, and a scheduling state; its capability
// table is not duplicated here — it lives in kernel/object's Registry,
// keyed by the same ProcessID. Process satisfies kernel/object's Object
// interface so a process can itself be named by a capability, without this
// package or kernel/object importing each other in both directions.
package proc

import (
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
	"github.com/lumenkernel/lumen/kernel/object"
)

// State is a process's scheduling state.
type State uint8

const (
	// StateBlocked is the state between Create and Start: an address
	// space and a pid exist, but there is no runnable context yet.
	StateBlocked State = iota

	// StateReady marks a process waiting for the scheduler to dispatch
	// it.
	StateReady

	// StateRunning marks the process the scheduler last dispatched.
	// Exactly one process is Running at a time (or none, when idle).
	StateRunning

	// StateZombie marks a process that has exited; its resources are
	// retained until something reaps it.
	StateZombie
)

// Process is one schedulable unit: an address space, a saved register
// context, a scheduling state, and a tick-count used for accounting.
type Process struct {
	id      object.ProcessID
	space   vmm.AddressSpace
	context Context
	state   State
	ticks   uint64
}

// Kind makes Process satisfy kernel/object.Object, so it can be registered
// in the capability registry like any other kernel object variant.
func (p *Process) Kind() object.Kind { return object.KindProcess }

// ID returns the process's pid, the same value kernel/object.ProcessID
// capabilities for it are keyed by.
func (p *Process) ID() object.ProcessID { return p.id }

// State reports the process's current scheduling state.
func (p *Process) State() State { return p.state }

// Ticks reports the number of timer ticks this process has spent running.
func (p *Process) Ticks() uint64 { return p.ticks }
