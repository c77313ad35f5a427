// Package ipc implements the kernel's inter-process communication
// mechanism: typed messages carried over bounded, bidirectional channel
// pairs, and the process-wide registry that owns every channel and
// capability.
//
// Channels are created strictly in pairs that reference each other as
// peers. A send lands on the peer's FIFO queue; per-channel delivery
// order is exactly send-completion order. Queue depth is bounded by
// MaxQueueDepth and per-message size by MaxMessageSize; both bounds are
// part of the external contract.
//
// All access to channels and capabilities is mediated by id lookup
// through the Registry; tasks never hold direct references to another
// task's channel. Locks guard individual map operations only and are
// never held across a blocking operation.
package ipc
