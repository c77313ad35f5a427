package ksyscall

import (
	"go.uber.org/zap"

	"github.com/quillos/kernel/internal/sched"
)

// threadCreate spawns a sibling thread in the caller's process. The
// entry point and stack top come from userspace; the argument is staged
// in a callee-saved register so it survives the first switch into the
// new thread.
func (d *Dispatcher) threadCreate(cur sched.TaskID, entry, stackTop, arg, flags uint64) int64 {
	if flags != 0 {
		return ErrnoInvalidArgument
	}
	if entry == 0 || stackTop == 0 {
		return ErrnoInvalidArgument
	}

	pid, ok := d.Owner(cur)
	if !ok {
		return ErrnoPermissionDenied
	}

	priority := sched.PriorityNormal
	if caller, ok := d.sched.Task(cur); ok {
		priority = caller.Priority()
	}

	t := d.SpawnThread(pid, priority)
	ctx := t.Context()
	sched.SetupTaskStack(ctx, entry, stackTop)
	ctx.R12 = arg

	d.log.Debug("thread created",
		zap.Uint64("task", uint64(t.ID())),
		zap.Uint64("pid", pid))

	return int64(t.ID())
}

// threadExit terminates the calling thread and wakes anyone joined on
// it. The task table entry survives until a join collects the code.
func (d *Dispatcher) threadExit(cur sched.TaskID, code int32) int64 {
	if cur == 0 {
		return ErrnoInvalidArgument
	}

	d.sched.Exit(cur, code)
	d.futexes.RemoveTask(cur)
	d.wakeJoiners(cur)

	d.sched.Schedule()
	return 0
}

// threadJoin collects a terminated thread's exit code, purging its
// table entry. A still-running target parks the caller until the
// target's exit wakes it; the trampoline retries the join then.
func (d *Dispatcher) threadJoin(cur, target sched.TaskID) int64 {
	if target == cur {
		return ErrnoInvalidArgument
	}

	t, ok := d.sched.Task(target)
	if !ok {
		return ErrnoNotFound
	}

	if t.State() == sched.StateTerminated {
		code := t.ExitCode()
		d.sched.Remove(target)

		d.mu.Lock()
		delete(d.owners, target)
		delete(d.joiners, target)
		d.mu.Unlock()

		return int64(code)
	}

	d.mu.Lock()
	d.joiners[target] = append(d.joiners[target], cur)
	d.mu.Unlock()

	d.sched.BlockCurrent()
	return ErrnoWouldBlock
}

// wakeJoiners unparks every task joined on id. The join entry itself
// stays until a join collects the exit code.
func (d *Dispatcher) wakeJoiners(id sched.TaskID) {
	d.mu.Lock()
	waiting := d.joiners[id]
	d.joiners[id] = nil
	d.mu.Unlock()

	for _, joiner := range waiting {
		d.sched.Unblock(joiner)
	}
}

// processExit tears down the calling task's whole process.
func (d *Dispatcher) processExit(cur sched.TaskID, code int32) int64 {
	pid, ok := d.Owner(cur)
	if !ok {
		return ErrnoPermissionDenied
	}
	d.terminateProcess(pid, code)
	d.sched.Schedule()
	return 0
}

// TerminateProcess terminates every thread of pid and releases the
// kernel state attributed to it: run-queue and sleep entries, futex
// waits, channel waiter slots, and the channels it owns. Joiners from
// other processes are woken so their joins can fail cleanly.
func (d *Dispatcher) TerminateProcess(pid uint64, code int32) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()
	d.terminateProcess(pid, code)
}

func (d *Dispatcher) terminateProcess(pid uint64, code int32) {
	d.mu.Lock()
	tids := make([]sched.TaskID, 0)
	for id, owner := range d.owners {
		if owner == pid {
			tids = append(tids, id)
		}
	}
	d.mu.Unlock()

	for _, id := range tids {
		d.sched.Exit(id, code)
		d.futexes.RemoveTask(id)
		d.wakeJoiners(id)
	}

	raw := make([]uint64, len(tids))
	for i, id := range tids {
		raw[i] = uint64(id)
	}
	d.reg.PurgeProcess(pid, raw)

	for _, id := range tids {
		d.sched.Remove(id)
	}

	d.mu.Lock()
	for _, id := range tids {
		delete(d.owners, id)
		delete(d.joiners, id)
	}
	d.mu.Unlock()

	d.log.Info("process terminated",
		zap.Uint64("pid", pid),
		zap.Int("threads", len(tids)),
		zap.Int32("code", code))
}
