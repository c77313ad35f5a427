package sched

// SwitchContext is the per-task saved register snapshot. Only the
// callee-saved general-purpose registers plus the stack pointer and
// return address are kept; the calling convention already preserves
// caller-saved registers across the switch call.
//
// A task's SwitchContext is exclusively owned by the task; only the
// scheduler reads or writes it, and only during a switch.
type SwitchContext struct {
	RBX uint64
	RBP uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
	RSP uint64
	RIP uint64
}

// CPU models the register file of the single logical core.
type CPU struct {
	RBX uint64
	RBP uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
	RSP uint64
	RIP uint64
}

// Switch atomically saves the core's callee-saved registers into prev
// and installs next, resuming at the restored return address. There is
// no failure outcome: a switch either completes or the kernel is in an
// unrecoverable state handled by the crash subsystem.
//
// Invariant: never called while holding a lock the next task's code
// might also need.
func Switch(cpu *CPU, prev, next *SwitchContext) {
	prev.RBX = cpu.RBX
	prev.RBP = cpu.RBP
	prev.R12 = cpu.R12
	prev.R13 = cpu.R13
	prev.R14 = cpu.R14
	prev.R15 = cpu.R15
	prev.RSP = cpu.RSP
	prev.RIP = cpu.RIP

	cpu.RBX = next.RBX
	cpu.RBP = next.RBP
	cpu.R12 = next.R12
	cpu.R13 = next.R13
	cpu.R14 = next.R14
	cpu.R15 = next.R15
	cpu.RSP = next.RSP
	cpu.RIP = next.RIP
}

// SetupTaskStack primes a brand-new task's context so the first switch
// into it begins execution at entry on a 16-byte aligned stack instead
// of returning into garbage.
func SetupTaskStack(ctx *SwitchContext, entry, stackTop uint64) {
	*ctx = SwitchContext{
		RSP: stackTop &^ 0xF,
		RIP: entry,
	}
}
