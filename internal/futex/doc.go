// Package futex implements address-keyed wait queues, the low-level
// blocking primitive underneath user-space mutexes and other
// synchronization.
//
// The contract is the classic futex race-avoidance protocol: WAIT
// re-reads the word at the address under the table lock and refuses to
// queue the caller when the value no longer matches, so a change between
// the caller's check and the kernel's read makes WAIT a no-op instead of
// a permanent block. WAKE releases waiters in FIFO order.
//
// Table entries are created lazily on first wait and removed once their
// waiter list empties, so one-shot futex addresses cause no unbounded
// growth.
package futex
