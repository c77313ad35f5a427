package futex

import (
	"errors"
	"sync"

	"github.com/quillos/kernel/internal/sched"
)

// Futex operation codes and flag bits of the syscall contract.
const (
	// OpWait blocks until the word at the address changes.
	OpWait = 0
	// OpWake releases queued waiters.
	OpWake = 1
	// CmdMask extracts the command from the op argument.
	CmdMask = 0x7F
	// FlagPrivate marks a process-private futex. Accepted and ignored:
	// a single address space makes every futex private.
	FlagPrivate = 128
)

// ErrAgain reports that the word no longer held the expected value at
// wait time. The syscall layer surfaces it as -EAGAIN.
var ErrAgain = errors.New("futex: value changed")

// Memory reads 32-bit words from task address space. The table performs
// its race-check read through this boundary while holding its lock.
type Memory interface {
	// Load32 returns the word at addr, or false when the address is not
	// mapped.
	Load32(addr uintptr) (uint32, bool)
}

// Table maps virtual addresses to ordered lists of waiting tasks.
// Process-wide state, constructed once at kernel start.
type Table struct {
	mu      sync.Mutex
	mem     Memory
	waiters map[uintptr][]sched.TaskID
}

// NewTable creates an empty table reading words through mem.
func NewTable(mem Memory) *Table {
	return &Table{
		mem:     mem,
		waiters: make(map[uintptr][]sched.TaskID),
	}
}

// Wait queues the task on addr when the word there still equals
// expected. ErrAgain is returned without queueing when the value
// differs or the address is unmapped; the caller only parks the task
// through the scheduler on a nil return.
func (t *Table) Wait(addr uintptr, expected uint32, id sched.TaskID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.mem.Load32(addr)
	if !ok || current != expected {
		return ErrAgain
	}

	t.waiters[addr] = append(t.waiters[addr], id)
	return nil
}

// Wake releases up to n waiters from addr in FIFO order and returns
// them; the caller transitions each back to Ready. An emptied entry is
// removed from the table.
func (t *Table) Wake(addr uintptr, n int) []sched.TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.waiters[addr]
	if len(queue) == 0 || n <= 0 {
		return nil
	}

	if n > len(queue) {
		n = len(queue)
	}
	woken := make([]sched.TaskID, n)
	copy(woken, queue[:n])

	rest := queue[n:]
	if len(rest) == 0 {
		delete(t.waiters, addr)
	} else {
		t.waiters[addr] = append([]sched.TaskID(nil), rest...)
	}

	return woken
}

// Remove drops a task from addr's wait list, reporting whether it was
// queued. Used when a waiting task is terminated.
func (t *Table) Remove(addr uintptr, id sched.TaskID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.waiters[addr]
	for i, qid := range queue {
		if qid == id {
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(t.waiters, addr)
			} else {
				t.waiters[addr] = queue
			}
			return true
		}
	}
	return false
}

// RemoveTask purges a task from every wait list. Termination cleanup.
func (t *Table) RemoveTask(id sched.TaskID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for addr, queue := range t.waiters {
		for i, qid := range queue {
			if qid == id {
				queue = append(queue[:i], queue[i+1:]...)
				removed++
				break
			}
		}
		if len(queue) == 0 {
			delete(t.waiters, addr)
		} else {
			t.waiters[addr] = queue
		}
	}
	return removed
}

// Len returns the number of waiters queued on addr.
func (t *Table) Len(addr uintptr) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters[addr])
}

// Size returns the number of live table entries.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
