// Package sched implements the single-core preemptive task scheduler:
// seven strict priority levels, a round-robin ready queue per level, a
// tick-driven time slice, and the register-level context switch
// primitive.
//
// The scheduling rule is fixed: scan levels from Realtime down to Idle
// and run the first non-empty queue's head. A lower-priority task never
// runs while a higher-priority task is ready. Quantum expiry rotates the
// current level's queue; there is no automatic priority decay.
//
// Blocking is cooperative from the task's point of view (it always
// results from an explicit call) and preemptive from the scheduler's
// (quantum expiry removes CPU ownership at the next tick boundary).
package sched
