package irq

// idtTable backs every gate descriptor. Only the vectors installIDT writes a
// gate for (via storeGate) are ever marked present; the rest stay zeroed, which the CPU
// reads as a not-present gate and turns into a #NP fault if anything ever
// reaches them.
var idtTable [vectorCount * 16]byte

// idtPointer is the raw LIDT operand: a 16-bit limit immediately followed
// by the 64-bit base, with no padding between them (the same packing
// concern as gdt.gdtr for LGDT).
var idtPointer [10]byte
