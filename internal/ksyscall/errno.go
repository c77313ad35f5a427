package ksyscall

import (
	"errors"

	"github.com/quillos/kernel/internal/futex"
	"github.com/quillos/kernel/internal/ipc"
)

// Kernel error ABI: small negative integers returned from the syscall
// trampoline. The values are fixed for userspace compatibility.
const (
	ErrnoInvalidSyscall    int64 = -1
	ErrnoInvalidArgument   int64 = -2
	ErrnoPermissionDenied  int64 = -3
	ErrnoNotFound          int64 = -4
	ErrnoWouldBlock        int64 = -5
	ErrnoBusy              int64 = -6
	ErrnoOutOfMemory       int64 = -7
	ErrnoIOError           int64 = -8
	ErrnoConnectionRefused int64 = -9
	ErrnoConnectionReset   int64 = -10
	ErrnoNotConnected      int64 = -11
	ErrnoAddressInUse      int64 = -12
	ErrnoInvalidCapability int64 = -13
	ErrnoBufferTooSmall    int64 = -14
)

// EAGAIN is the POSIX-numbered futex failure; FutexWait returns -EAGAIN
// when the word no longer holds the expected value.
const EAGAIN int64 = 11

// errnoFor maps kernel-internal errors onto the negative-integer ABI.
func errnoFor(err error) int64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ipc.ErrChannelNotFound):
		return ErrnoNotFound
	case errors.Is(err, ipc.ErrChannelClosed):
		return ErrnoConnectionReset
	case errors.Is(err, ipc.ErrQueueFull):
		return ErrnoBusy
	case errors.Is(err, ipc.ErrQueueEmpty), errors.Is(err, ipc.ErrWouldBlock):
		return ErrnoWouldBlock
	case errors.Is(err, ipc.ErrMessageTooLarge):
		return ErrnoInvalidArgument
	case errors.Is(err, ipc.ErrInvalidCapability):
		return ErrnoInvalidCapability
	case errors.Is(err, ipc.ErrPermissionDenied):
		return ErrnoPermissionDenied
	case errors.Is(err, ipc.ErrTooManyChannels):
		return ErrnoBusy
	case errors.Is(err, ipc.ErrNotInitialized):
		return ErrnoIOError
	case errors.Is(err, futex.ErrAgain):
		return -EAGAIN
	default:
		return ErrnoIOError
	}
}
