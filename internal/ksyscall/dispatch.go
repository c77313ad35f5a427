package ksyscall

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/quillos/kernel/internal/futex"
	"github.com/quillos/kernel/internal/ipc"
	"github.com/quillos/kernel/internal/logging"
	"github.com/quillos/kernel/internal/monitoring"
	"github.com/quillos/kernel/internal/sched"
)

// Memory is the task address-space boundary for syscall buffers. The
// futex table shares the same view for its race-check reads.
type Memory interface {
	futex.Memory

	// ReadBytes copies n bytes starting at addr, or reports an unmapped
	// range.
	ReadBytes(addr uintptr, n int) ([]byte, bool)
	// WriteBytes copies data into the range starting at addr, or reports
	// an unmapped range.
	WriteBytes(addr uintptr, data []byte) bool
}

// Dispatcher decodes numeric syscalls and drives the IPC registry, the
// scheduler, and the futex table. It owns the task-to-process mapping
// and the join bookkeeping that none of the lower layers track.
type Dispatcher struct {
	// dispatchMu serializes whole syscalls. The machine model is a
	// single core, but the HTTP debug endpoint can issue concurrent
	// calls; without full serialization a wake landing between waiter
	// registration and the block would be lost.
	dispatchMu sync.Mutex

	mu      sync.Mutex
	reg     *ipc.Registry
	sched   *sched.Scheduler
	futexes *futex.Table
	mem     Memory
	metrics *monitoring.Metrics
	log     *logging.Logger
	owners  map[sched.TaskID]uint64
	joiners map[sched.TaskID][]sched.TaskID
}

// NewDispatcher wires the syscall layer. metrics may be nil; a nil
// logger is replaced with a no-op logger.
func NewDispatcher(reg *ipc.Registry, s *sched.Scheduler, futexes *futex.Table, mem Memory, metrics *monitoring.Metrics, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Dispatcher{
		reg:     reg,
		sched:   s,
		futexes: futexes,
		mem:     mem,
		metrics: metrics,
		log:     log,
		owners:  make(map[sched.TaskID]uint64),
		joiners: make(map[sched.TaskID][]sched.TaskID),
	}
}

// SpawnThread creates a schedulable task owned by pid. The process
// table uses this for initial threads; ThreadCreate uses it for the
// rest.
func (d *Dispatcher) SpawnThread(pid uint64, p sched.Priority) *sched.Task {
	t := d.sched.Spawn(p)

	d.mu.Lock()
	d.owners[t.ID()] = pid
	d.mu.Unlock()

	return t
}

// Owner returns the process owning a task.
func (d *Dispatcher) Owner(id sched.TaskID) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pid, ok := d.owners[id]
	return pid, ok
}

// Dispatch executes one syscall on behalf of the running task and
// returns the value the trampoline places in the return register.
// Negative values are the errno ABI; ErrnoWouldBlock means the caller
// was parked and should retry the call after wake-up.
func (d *Dispatcher) Dispatch(c Context) int64 {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	cur := d.sched.Current()

	switch c.Num {
	case SysExit:
		return d.processExit(cur, int32(c.Arg1))
	case SysChannelCreate:
		return d.channelCreate(cur)
	case SysChannelSend:
		return d.channelSend(cur, ipc.ChannelID(c.Arg1), uintptr(c.Arg2), int(c.Arg3))
	case SysChannelRecv:
		return d.channelRecv(cur, ipc.ChannelID(c.Arg1), uintptr(c.Arg2), int(c.Arg3))
	case SysChannelClose:
		return d.channelClose(ipc.ChannelID(c.Arg1))
	case SysYield:
		d.sched.Yield()
		return 0
	case SysSleep:
		return d.sleep(cur, c.Arg1)
	case SysThreadCreate:
		return d.threadCreate(cur, c.Arg1, c.Arg2, c.Arg3, c.Arg4)
	case SysThreadExit:
		return d.threadExit(cur, int32(c.Arg1))
	case SysThreadJoin:
		return d.threadJoin(cur, sched.TaskID(c.Arg1))
	case SysFutexWait:
		return d.futexOp(cur, uintptr(c.Arg1), futex.OpWait|c.Arg3&^uint64(futex.CmdMask), c.Arg2)
	case SysFutexWake:
		return d.futexOp(cur, uintptr(c.Arg1), futex.OpWake|c.Arg3&^uint64(futex.CmdMask), c.Arg2)
	default:
		d.log.Warn("unknown syscall", zap.Uint64("num", uint64(c.Num)))
		return ErrnoInvalidSyscall
	}
}

// channelCreate builds a fresh pair and packs both ids into the return
// value.
func (d *Dispatcher) channelCreate(cur sched.TaskID) int64 {
	pid, ok := d.Owner(cur)
	if !ok {
		return ErrnoPermissionDenied
	}

	idA, idB, err := d.reg.CreateChannelPair(pid)
	if err != nil {
		return errnoFor(err)
	}
	return int64(PackChannelPair(uint64(idA), uint64(idB)))
}

// channelSend copies the payload out of task memory, delivers it to the
// peer queue, and wakes the peer's longest-waiting receiver.
func (d *Dispatcher) channelSend(cur sched.TaskID, id ipc.ChannelID, buf uintptr, n int) int64 {
	if n < 0 || n > ipc.MaxMessageSize {
		return ErrnoInvalidArgument
	}
	data, ok := d.mem.ReadBytes(buf, n)
	if !ok {
		return ErrnoInvalidArgument
	}

	msg := ipc.NewData(data)
	if pid, ok := d.Owner(cur); ok {
		msg.SetSender(pid)
	}

	if err := d.reg.Send(id, msg); err != nil {
		if d.metrics != nil {
			d.metrics.RecordSendError(sendReason(err))
		}
		return errnoFor(err)
	}
	if d.metrics != nil {
		d.metrics.RecordSend()
	}

	// Arrival wakes one blocked receiver on the peer endpoint.
	if ch, err := d.reg.Channel(id); err == nil {
		if peer, err := d.reg.Channel(ch.Peer()); err == nil {
			if waiter, ok := peer.TakeWaiter(); ok {
				d.sched.Unblock(sched.TaskID(waiter))
			}
		}
	}

	return int64(n)
}

// channelRecv copies the head message into the caller's buffer. An
// empty open queue parks the caller; an empty closed queue reports the
// reset instead, since no sender can ever wake it.
func (d *Dispatcher) channelRecv(cur sched.TaskID, id ipc.ChannelID, buf uintptr, n int) int64 {
	if n < 0 {
		return ErrnoInvalidArgument
	}

	ch, err := d.reg.Channel(id)
	if err != nil {
		return errnoFor(err)
	}

	head, ok := ch.Peek()
	if !ok {
		if ch.IsClosed() {
			return ErrnoConnectionReset
		}
		ch.AddWaiter(uint64(cur))
		d.sched.BlockCurrent()
		return ErrnoWouldBlock
	}

	if len(head.Data()) > n {
		// Too small a buffer leaves the message queued for a retry.
		return ErrnoBufferTooSmall
	}

	msg, _ := ch.Dequeue()
	if !d.mem.WriteBytes(buf, msg.Data()) {
		return ErrnoInvalidArgument
	}
	if d.metrics != nil {
		d.metrics.RecordReceive()
	}
	return int64(len(msg.Data()))
}

// channelClose closes the pair and wakes every receiver parked on
// either endpoint so it can observe the reset.
func (d *Dispatcher) channelClose(id ipc.ChannelID) int64 {
	ch, err := d.reg.Channel(id)
	if err != nil {
		return errnoFor(err)
	}
	peerID := ch.Peer()

	if err := d.reg.CloseChannel(id); err != nil {
		return errnoFor(err)
	}

	d.wakeAllWaiters(ch)
	if peer, err := d.reg.Channel(peerID); err == nil {
		d.wakeAllWaiters(peer)
	}
	return 0
}

func (d *Dispatcher) wakeAllWaiters(ch *ipc.Channel) {
	for {
		waiter, ok := ch.TakeWaiter()
		if !ok {
			return
		}
		d.sched.Unblock(sched.TaskID(waiter))
	}
}

// sleep converts milliseconds to timer ticks and parks the caller.
func (d *Dispatcher) sleep(cur sched.TaskID, ms uint64) int64 {
	if cur == 0 {
		return ErrnoInvalidArgument
	}
	ticks := ms * sched.TimerFrequencyHz / 1000
	if ticks == 0 && ms > 0 {
		ticks = 1
	}
	d.sched.Sleep(cur, ticks)
	d.sched.Schedule()
	return 0
}

// futexOp decodes the command bits and runs the wait or wake protocol.
// The private flag is accepted and ignored; unknown commands succeed as
// a no-op so newer userspace can probe for them.
func (d *Dispatcher) futexOp(cur sched.TaskID, addr uintptr, op uint64, val uint64) int64 {
	switch op & futex.CmdMask {
	case futex.OpWait:
		if err := d.futexes.Wait(addr, uint32(val), cur); err != nil {
			if errors.Is(err, futex.ErrAgain) {
				return -EAGAIN
			}
			return errnoFor(err)
		}
		if d.metrics != nil {
			d.metrics.RecordFutexWait()
		}
		d.sched.BlockCurrent()
		return 0

	case futex.OpWake:
		woken := d.futexes.Wake(addr, int(val))
		for _, id := range woken {
			d.sched.Unblock(id)
		}
		if d.metrics != nil && len(woken) > 0 {
			d.metrics.RecordFutexWake(len(woken))
		}
		return int64(len(woken))

	default:
		return 0
	}
}

// sendReason labels a failed send for the error counter.
func sendReason(err error) string {
	switch {
	case errors.Is(err, ipc.ErrChannelClosed):
		return "closed"
	case errors.Is(err, ipc.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ipc.ErrMessageTooLarge):
		return "too_large"
	case errors.Is(err, ipc.ErrChannelNotFound):
		return "not_found"
	default:
		return "other"
	}
}
