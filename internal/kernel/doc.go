// Package kernel assembles the control plane: the IPC registry, the
// scheduler, the futex table, and the syscall dispatcher, wired over a
// shared task-memory model. It is the single construction point; the
// daemon and the introspection API talk to a Kernel, never to the
// subsystems directly.
package kernel
