package ipc

import "errors"

// IPC failure modes. All are ordinary error returns; none of the IPC
// paths panic. The syscall layer maps these onto its negative-integer
// ABI.
var (
	// ErrNotInitialized reports use of the IPC subsystem before init.
	ErrNotInitialized = errors.New("ipc: not initialized")
	// ErrChannelNotFound reports an unknown channel id.
	ErrChannelNotFound = errors.New("ipc: channel not found")
	// ErrChannelClosed reports an operation on a closed channel.
	ErrChannelClosed = errors.New("ipc: channel closed")
	// ErrQueueFull reports that the peer queue is at its bound.
	ErrQueueFull = errors.New("ipc: queue full")
	// ErrQueueEmpty reports a receive with no pending message. This is
	// the would-block signal the syscall layer turns into a real block.
	ErrQueueEmpty = errors.New("ipc: queue empty")
	// ErrMessageTooLarge reports a payload above MaxMessageSize.
	ErrMessageTooLarge = errors.New("ipc: message too large")
	// ErrInvalidCapability reports an unknown or revoked capability.
	ErrInvalidCapability = errors.New("ipc: invalid capability")
	// ErrPermissionDenied reports insufficient capability rights.
	ErrPermissionDenied = errors.New("ipc: permission denied")
	// ErrWouldBlock reports a non-blocking operation that would block.
	ErrWouldBlock = errors.New("ipc: would block")
	// ErrTooManyChannels reports the per-process channel limit.
	ErrTooManyChannels = errors.New("ipc: too many channels")
)
