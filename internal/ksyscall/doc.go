// Package ksyscall implements the numeric system-call surface consumed
// by user processes: channel IPC, futex operations, and the
// scheduling-adjacent calls (yield, sleep, thread lifecycle).
//
// The numeric values of syscall numbers, futex op codes, and error
// returns are preserved exactly for binary compatibility with existing
// userspace callers. Errors surface as small negative integers from the
// trampoline; no partial side effects are visible on error.
//
// This layer is also where would-block conditions become real blocks:
// a receive on an empty queue registers the caller on the channel's
// waiter list and parks it through the scheduler, and a successful send
// wakes the peer's longest-waiting task.
package ksyscall
