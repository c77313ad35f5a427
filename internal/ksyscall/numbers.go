package ksyscall

// Number identifies a system call. The values are part of the external
// ABI and must not change.
type Number uint64

const (
	// SysExit terminates the calling task.
	SysExit Number = 0

	// SysChannelCreate creates a channel pair; returns the packed ids.
	SysChannelCreate Number = 10
	// SysChannelSend sends a buffer over a channel.
	SysChannelSend Number = 11
	// SysChannelRecv receives into a buffer from a channel.
	SysChannelRecv Number = 12
	// SysChannelClose closes a channel endpoint.
	SysChannelClose Number = 13

	// SysYield gives up the CPU voluntarily.
	SysYield Number = 21
	// SysSleep parks the caller for a number of milliseconds.
	SysSleep Number = 22

	// SysThreadCreate creates a thread with entry, stack, arg, flags.
	SysThreadCreate Number = 50
	// SysThreadExit terminates the calling thread with a code.
	SysThreadExit Number = 51
	// SysThreadJoin waits for a thread and returns its exit code.
	SysThreadJoin Number = 52
	// SysFutexWait blocks until the word at the address changes.
	SysFutexWait Number = 53
	// SysFutexWake wakes waiters queued on the address.
	SysFutexWake Number = 54
)

// Context carries the registers captured at syscall entry.
type Context struct {
	Num  Number
	Arg1 uint64
	Arg2 uint64
	Arg3 uint64
	Arg4 uint64
	Arg5 uint64
	Arg6 uint64
}

// PackChannelPair packs a channel pair into the ChannelCreate return
// value: (idA << 32) | idB.
func PackChannelPair(idA, idB uint64) uint64 {
	return idA<<32 | idB&0xFFFFFFFF
}

// UnpackChannelPair splits a packed ChannelCreate return value.
func UnpackChannelPair(packed uint64) (idA, idB uint64) {
	return packed >> 32, packed & 0xFFFFFFFF
}
