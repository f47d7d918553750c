package main

import "github.com/lumenkernel/lumen/kernel/kmain"

// bootInfoPtr is a global variable passed as an argument to Kmain to
// prevent the compiler from inlining the actual call and removing Kmain
// from the generated object file.
var bootInfoPtr uintptr

// main is the only Go symbol visible from the rt0 initialization code. It
// works as a trampoline for calling the actual kernel entrypoint
// (kmain.Kmain); it is intentionally defined this way to prevent the Go
// compiler from optimizing away the real kernel code, since it has no
// visibility into the rt0 assembly that calls here.
//
// main is invoked by the rt0 assembly after it has set up the GDT and a
// minimal g0 struct so Go code can run on the bootstrap stack. main is not
// expected to return; if it does, rt0 halts the CPU.
func main() {
	kmain.Kmain(bootInfoPtr)
}
