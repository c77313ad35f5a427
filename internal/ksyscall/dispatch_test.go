package ksyscall

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillos/kernel/internal/futex"
	"github.com/quillos/kernel/internal/ipc"
	"github.com/quillos/kernel/internal/sched"
)

// testMem backs one contiguous mapped range.
type testMem struct {
	base uintptr
	buf  []byte
}

func newTestMem(base uintptr, size int) *testMem {
	return &testMem{base: base, buf: make([]byte, size)}
}

func (m *testMem) in(addr uintptr, n int) bool {
	return addr >= m.base && addr+uintptr(n) <= m.base+uintptr(len(m.buf))
}

func (m *testMem) Load32(addr uintptr) (uint32, bool) {
	if !m.in(addr, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.buf[addr-m.base:]), true
}

func (m *testMem) store32(addr uintptr, val uint32) {
	binary.LittleEndian.PutUint32(m.buf[addr-m.base:], val)
}

func (m *testMem) ReadBytes(addr uintptr, n int) ([]byte, bool) {
	if n < 0 || !m.in(addr, n) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, m.buf[addr-m.base:])
	return out, true
}

func (m *testMem) WriteBytes(addr uintptr, data []byte) bool {
	if !m.in(addr, len(data)) {
		return false
	}
	copy(m.buf[addr-m.base:], data)
	return true
}

type fixture struct {
	reg *ipc.Registry
	sch *sched.Scheduler
	tab *futex.Table
	mem *testMem
	d   *Dispatcher
}

const memBase = uintptr(0x10000)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := newTestMem(memBase, 256*1024)
	reg := ipc.NewRegistry(nil)
	sch := sched.New(nil)
	tab := futex.NewTable(mem)

	return &fixture{
		reg: reg,
		sch: sch,
		tab: tab,
		mem: mem,
		d:   NewDispatcher(reg, sch, tab, mem, nil, nil),
	}
}

// spawn creates a thread for pid and returns its id.
func (f *fixture) spawn(pid uint64) sched.TaskID {
	return f.d.SpawnThread(pid, sched.PriorityNormal).ID()
}

func TestPackChannelPair(t *testing.T) {
	packed := PackChannelPair(3, 4)
	a, b := UnpackChannelPair(packed)
	assert.Equal(t, uint64(3), a)
	assert.Equal(t, uint64(4), b)
}

func TestChannelSyscalls(t *testing.T) {
	t.Run("create send recv roundtrip", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{Num: SysChannelCreate})
		require.Positive(t, ret)
		idA, idB := UnpackChannelPair(uint64(ret))

		payload := []byte{1, 2, 3}
		require.True(t, f.mem.WriteBytes(memBase, payload))

		ret = f.d.Dispatch(Context{
			Num:  SysChannelSend,
			Arg1: idA,
			Arg2: uint64(memBase),
			Arg3: uint64(len(payload)),
		})
		assert.Equal(t, int64(3), ret)

		recvBuf := memBase + 0x100
		ret = f.d.Dispatch(Context{
			Num:  SysChannelRecv,
			Arg1: idB,
			Arg2: uint64(recvBuf),
			Arg3: 64,
		})
		require.Equal(t, int64(3), ret)

		got, ok := f.mem.ReadBytes(recvBuf, 3)
		require.True(t, ok)
		assert.Equal(t, payload, got)
	})

	t.Run("send to unknown channel", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{Num: SysChannelSend, Arg1: 999, Arg2: uint64(memBase)})
		assert.Equal(t, ErrnoNotFound, ret)
	})

	t.Run("send after close", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{Num: SysChannelCreate})
		require.Positive(t, ret)
		idA, idB := UnpackChannelPair(uint64(ret))

		assert.Equal(t, int64(0), f.d.Dispatch(Context{Num: SysChannelClose, Arg1: idA}))
		ret = f.d.Dispatch(Context{Num: SysChannelSend, Arg1: idB, Arg2: uint64(memBase)})
		assert.Equal(t, ErrnoConnectionReset, ret)
	})

	t.Run("recv on closed drained channel reports reset", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{Num: SysChannelCreate})
		require.Positive(t, ret)
		_, idB := UnpackChannelPair(uint64(ret))

		require.Equal(t, int64(0), f.d.Dispatch(Context{Num: SysChannelClose, Arg1: idB}))
		ret = f.d.Dispatch(Context{Num: SysChannelRecv, Arg1: idB, Arg2: uint64(memBase), Arg3: 64})
		assert.Equal(t, ErrnoConnectionReset, ret)
	})

	t.Run("small buffer leaves message queued", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{Num: SysChannelCreate})
		require.Positive(t, ret)
		idA, idB := UnpackChannelPair(uint64(ret))

		require.True(t, f.mem.WriteBytes(memBase, []byte("hello")))
		require.Equal(t, int64(5), f.d.Dispatch(Context{
			Num: SysChannelSend, Arg1: idA, Arg2: uint64(memBase), Arg3: 5,
		}))

		ret = f.d.Dispatch(Context{Num: SysChannelRecv, Arg1: idB, Arg2: uint64(memBase), Arg3: 2})
		assert.Equal(t, ErrnoBufferTooSmall, ret)

		// A retry with enough room still gets the message.
		ret = f.d.Dispatch(Context{Num: SysChannelRecv, Arg1: idB, Arg2: uint64(memBase), Arg3: 5})
		assert.Equal(t, int64(5), ret)
	})

	t.Run("unmapped send buffer", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{Num: SysChannelCreate})
		require.Positive(t, ret)
		idA, _ := UnpackChannelPair(uint64(ret))

		ret = f.d.Dispatch(Context{Num: SysChannelSend, Arg1: idA, Arg2: 0x10, Arg3: 8})
		assert.Equal(t, ErrnoInvalidArgument, ret)
	})
}

func TestRecvBlocksUntilSend(t *testing.T) {
	f := newFixture(t)
	receiver := f.spawn(1)
	sender := f.spawn(1)
	require.Equal(t, receiver, f.sch.Schedule())

	ret := f.d.Dispatch(Context{Num: SysChannelCreate})
	require.Positive(t, ret)
	idA, idB := UnpackChannelPair(uint64(ret))

	// Receiver parks on the empty endpoint; the sender task runs next.
	ret = f.d.Dispatch(Context{Num: SysChannelRecv, Arg1: idA, Arg2: uint64(memBase), Arg3: 64})
	assert.Equal(t, ErrnoWouldBlock, ret)
	assert.Equal(t, sender, f.sch.Current())

	rt, ok := f.sch.Task(receiver)
	require.True(t, ok)
	assert.Equal(t, sched.StateBlocked, rt.State())

	// The send wakes the receiver.
	require.True(t, f.mem.WriteBytes(memBase+0x100, []byte{9}))
	ret = f.d.Dispatch(Context{
		Num: SysChannelSend, Arg1: idB, Arg2: uint64(memBase + 0x100), Arg3: 1,
	})
	require.Equal(t, int64(1), ret)
	assert.Equal(t, sched.StateReady, rt.State())

	// Once scheduled again, the retried recv succeeds.
	require.Equal(t, receiver, f.sch.Schedule())
	ret = f.d.Dispatch(Context{Num: SysChannelRecv, Arg1: idA, Arg2: uint64(memBase), Arg3: 64})
	assert.Equal(t, int64(1), ret)
}

func TestCloseWakesWaiters(t *testing.T) {
	f := newFixture(t)
	receiver := f.spawn(1)
	closer := f.spawn(1)
	require.Equal(t, receiver, f.sch.Schedule())

	ret := f.d.Dispatch(Context{Num: SysChannelCreate})
	require.Positive(t, ret)
	idA, idB := UnpackChannelPair(uint64(ret))

	require.Equal(t, ErrnoWouldBlock, f.d.Dispatch(Context{
		Num: SysChannelRecv, Arg1: idA, Arg2: uint64(memBase), Arg3: 64,
	}))
	require.Equal(t, closer, f.sch.Current())

	require.Equal(t, int64(0), f.d.Dispatch(Context{Num: SysChannelClose, Arg1: idB}))

	rt, ok := f.sch.Task(receiver)
	require.True(t, ok)
	assert.Equal(t, sched.StateReady, rt.State())

	// The woken receiver observes the reset on retry.
	require.Equal(t, receiver, f.sch.Schedule())
	ret = f.d.Dispatch(Context{Num: SysChannelRecv, Arg1: idA, Arg2: uint64(memBase), Arg3: 64})
	assert.Equal(t, ErrnoConnectionReset, ret)
}

func TestFutexSyscalls(t *testing.T) {
	t.Run("wait with stale value", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		f.mem.store32(memBase, 8)
		ret := f.d.Dispatch(Context{Num: SysFutexWait, Arg1: uint64(memBase), Arg2: 7})
		assert.Equal(t, -EAGAIN, ret)
	})

	t.Run("wait blocks then wake releases", func(t *testing.T) {
		f := newFixture(t)
		waiter := f.spawn(1)
		waker := f.spawn(1)
		require.Equal(t, waiter, f.sch.Schedule())

		f.mem.store32(memBase, 7)
		ret := f.d.Dispatch(Context{Num: SysFutexWait, Arg1: uint64(memBase), Arg2: 7})
		require.Equal(t, int64(0), ret)
		require.Equal(t, waker, f.sch.Current())

		wt, ok := f.sch.Task(waiter)
		require.True(t, ok)
		assert.Equal(t, sched.StateBlocked, wt.State())

		ret = f.d.Dispatch(Context{Num: SysFutexWake, Arg1: uint64(memBase), Arg2: 10})
		assert.Equal(t, int64(1), ret)
		assert.Equal(t, sched.StateReady, wt.State())

		// A second wake finds nobody.
		ret = f.d.Dispatch(Context{Num: SysFutexWake, Arg1: uint64(memBase), Arg2: 10})
		assert.Equal(t, int64(0), ret)
	})

	t.Run("private flag is accepted", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		f.mem.store32(memBase, 1)
		ret := f.d.Dispatch(Context{
			Num:  SysFutexWait,
			Arg1: uint64(memBase),
			Arg2: 0,
			Arg3: futex.FlagPrivate,
		})
		assert.Equal(t, -EAGAIN, ret)
	})

	t.Run("unknown command is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{
			Num:  SysFutexWake,
			Arg1: uint64(memBase),
			Arg2: 1,
			Arg3: 0x42,
		})
		assert.Equal(t, int64(0), ret)
	})
}

func TestThreadLifecycle(t *testing.T) {
	t.Run("create primes entry stack and argument", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		ret := f.d.Dispatch(Context{
			Num:  SysThreadCreate,
			Arg1: 0x400000,
			Arg2: 0x7FFF0008,
			Arg3: 55,
		})
		require.Positive(t, ret)

		child, ok := f.sch.Task(sched.TaskID(ret))
		require.True(t, ok)
		ctx := child.Context()
		assert.Equal(t, uint64(0x400000), ctx.RIP)
		assert.Equal(t, uint64(0x7FFF0000), ctx.RSP)
		assert.Equal(t, uint64(55), ctx.R12)

		pid, ok := f.d.Owner(child.ID())
		require.True(t, ok)
		assert.Equal(t, uint64(1), pid)
	})

	t.Run("rejects bad arguments", func(t *testing.T) {
		f := newFixture(t)
		f.spawn(1)
		f.sch.Schedule()

		assert.Equal(t, ErrnoInvalidArgument, f.d.Dispatch(Context{
			Num: SysThreadCreate, Arg1: 0x400000, Arg2: 0x7FFF0000, Arg4: 1,
		}))
		assert.Equal(t, ErrnoInvalidArgument, f.d.Dispatch(Context{
			Num: SysThreadCreate, Arg1: 0, Arg2: 0x7FFF0000,
		}))
	})

	t.Run("join waits for exit and collects the code", func(t *testing.T) {
		f := newFixture(t)
		parent := f.spawn(1)
		require.Equal(t, parent, f.sch.Schedule())

		ret := f.d.Dispatch(Context{
			Num: SysThreadCreate, Arg1: 0x400000, Arg2: 0x7FFF0000,
		})
		require.Positive(t, ret)
		child := sched.TaskID(ret)

		// Parent parks on the join; the child runs.
		require.Equal(t, ErrnoWouldBlock, f.d.Dispatch(Context{Num: SysThreadJoin, Arg1: uint64(child)}))
		require.Equal(t, child, f.sch.Current())

		// Child exit wakes the parent.
		require.Equal(t, int64(0), f.d.Dispatch(Context{Num: SysThreadExit, Arg1: 5}))
		require.Equal(t, parent, f.sch.Current())

		ret = f.d.Dispatch(Context{Num: SysThreadJoin, Arg1: uint64(child)})
		assert.Equal(t, int64(5), ret)

		// The collected thread is gone.
		assert.Equal(t, ErrnoNotFound, f.d.Dispatch(Context{Num: SysThreadJoin, Arg1: uint64(child)}))
	})

	t.Run("join on already terminated thread", func(t *testing.T) {
		f := newFixture(t)
		parent := f.spawn(1)
		other := f.spawn(1)
		require.Equal(t, parent, f.sch.Schedule())

		f.sch.Exit(other, 9)
		ret := f.d.Dispatch(Context{Num: SysThreadJoin, Arg1: uint64(other)})
		assert.Equal(t, int64(9), ret)
	})

	t.Run("self join is rejected", func(t *testing.T) {
		f := newFixture(t)
		me := f.spawn(1)
		require.Equal(t, me, f.sch.Schedule())

		assert.Equal(t, ErrnoInvalidArgument, f.d.Dispatch(Context{
			Num: SysThreadJoin, Arg1: uint64(me),
		}))
	})
}

func TestProcessExit(t *testing.T) {
	f := newFixture(t)
	t1 := f.spawn(1)
	f.spawn(1)
	survivor := f.spawn(2)
	require.Equal(t, t1, f.sch.Schedule())

	ret := f.d.Dispatch(Context{Num: SysChannelCreate})
	require.Positive(t, ret)
	idA, _ := UnpackChannelPair(uint64(ret))

	require.Equal(t, int64(0), f.d.Dispatch(Context{Num: SysExit, Arg1: 1}))

	// Every thread of process 1 is gone; process 2 is untouched.
	_, ok := f.sch.Task(t1)
	assert.False(t, ok)
	_, ok = f.d.Owner(t1)
	assert.False(t, ok)
	_, ok = f.sch.Task(survivor)
	assert.True(t, ok)

	// The process's channels were purged.
	_, err := f.reg.Channel(ipc.ChannelID(idA))
	assert.ErrorIs(t, err, ipc.ErrChannelNotFound)

	assert.Equal(t, survivor, f.sch.Current())
}

func TestSleepAndYield(t *testing.T) {
	t.Run("sleep parks for the converted ticks", func(t *testing.T) {
		f := newFixture(t)
		sleeper := f.spawn(1)
		require.Equal(t, sleeper, f.sch.Schedule())

		require.Equal(t, int64(0), f.d.Dispatch(Context{Num: SysSleep, Arg1: 5}))

		st, ok := f.sch.Task(sleeper)
		require.True(t, ok)
		assert.Equal(t, sched.StateSleeping, st.State())

		// 5 ms at 1000 Hz is 5 ticks.
		for i := 0; i < 5; i++ {
			f.sch.Tick()
		}
		assert.Equal(t, sched.StateReady, st.State())
	})

	t.Run("yield keeps the task ready", func(t *testing.T) {
		f := newFixture(t)
		a := f.spawn(1)
		b := f.spawn(1)
		require.Equal(t, a, f.sch.Schedule())

		require.Equal(t, int64(0), f.d.Dispatch(Context{Num: SysYield}))
		assert.Equal(t, b, f.sch.Current())

		at, ok := f.sch.Task(a)
		require.True(t, ok)
		assert.Equal(t, sched.StateReady, at.State())
	})
}

func TestInvalidSyscall(t *testing.T) {
	f := newFixture(t)
	f.spawn(1)
	f.sch.Schedule()

	assert.Equal(t, ErrnoInvalidSyscall, f.d.Dispatch(Context{Num: 255}))
}

// gateMem parks ReadBytes so a test can hold one syscall mid-flight.
type gateMem struct {
	*testMem
	entered chan struct{}
	release chan struct{}
}

func (m *gateMem) ReadBytes(addr uintptr, n int) ([]byte, bool) {
	m.entered <- struct{}{}
	<-m.release
	return m.testMem.ReadBytes(addr, n)
}

// A receive that parks and the send that would wake it must never
// interleave, or the wake lands while the receiver is still running and
// the receiver then blocks with no wake pending. Whole syscalls are
// therefore mutually exclusive, even for concurrent callers.
func TestDispatchSerialized(t *testing.T) {
	mem := &gateMem{
		testMem: newTestMem(memBase, 4096),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	reg := ipc.NewRegistry(nil)
	sch := sched.New(nil)
	d := NewDispatcher(reg, sch, futex.NewTable(mem), mem, nil, nil)
	d.SpawnThread(1, sched.PriorityNormal)
	sch.Schedule()

	ret := d.Dispatch(Context{Num: SysChannelCreate})
	require.Positive(t, ret)
	idA, _ := UnpackChannelPair(uint64(ret))

	sendDone := make(chan int64, 1)
	go func() {
		sendDone <- d.Dispatch(Context{
			Num:  SysChannelSend,
			Arg1: idA,
			Arg2: uint64(memBase),
			Arg3: 1,
		})
	}()
	<-mem.entered

	yieldDone := make(chan int64, 1)
	go func() {
		yieldDone <- d.Dispatch(Context{Num: SysYield})
	}()

	select {
	case <-yieldDone:
		t.Fatal("second syscall completed while the first was mid-flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(mem.release)
	assert.Equal(t, int64(1), <-sendDone)
	assert.Equal(t, int64(0), <-yieldDone)
}
