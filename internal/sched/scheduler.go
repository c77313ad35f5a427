package sched

import (
	"sync"

	"go.uber.org/zap"

	"github.com/quillos/kernel/internal/logging"
)

// Scheduler owns the per-level run queues, the task table, and the
// single core's register file. All methods take the scheduler lock for
// the duration of the specific decision only; the lock is never held
// across anything that blocks.
type Scheduler struct {
	mu       sync.Mutex
	queues   [NumLevels]*RunQueue
	tasks    map[TaskID]*Task
	current  TaskID
	cpu      CPU
	slice    uint64
	resched  bool
	preempt  int
	pending  bool
	ticks    uint64
	switches uint64
	sleepers []sleeper
	nextID   uint64
	log      *logging.Logger
}

type sleeper struct {
	wakeAt uint64
	id     TaskID
}

// New creates a scheduler with every level at the default quantum. A
// nil logger is replaced with a no-op logger.
func New(log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewNop()
	}
	s := &Scheduler{
		tasks:  make(map[TaskID]*Task),
		nextID: 1,
		log:    log,
	}
	for i := range s.queues {
		s.queues[i] = NewRunQueue(TimeSliceTicks)
	}
	return s
}

// SetQuantum tunes one priority level's quantum independently.
func (s *Scheduler) SetQuantum(p Priority, ticks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[p.Index()].SetQuantum(ticks)
}

// SetAllQuanta applies one quantum to every priority level.
func (s *Scheduler) SetAllQuanta(ticks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queues {
		q.SetQuantum(ticks)
	}
}

// Spawn allocates a task id, registers the task at the given priority,
// and queues it ready.
func (s *Scheduler) Spawn(priority Priority) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := TaskID(s.nextID)
	s.nextID++

	t := NewTask(id, priority)
	s.tasks[id] = t
	s.queues[priority.Index()].Enqueue(id)

	s.log.Debug("task spawned",
		zap.Uint64("task", uint64(id)),
		zap.String("priority", priority.String()))

	return t
}

// Task returns the task for id.
func (s *Scheduler) Task(id TaskID) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Current returns the running task's id, or zero when idle.
func (s *Scheduler) Current() TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Schedule performs one scheduling decision: the running task (if still
// runnable) goes to the tail of its level, and the head of the highest
// non-empty level runs next. Returns the chosen task id, or zero when
// nothing changed.
//
// While preemption is disabled the request is recorded and deferred to
// PreemptEnable.
func (s *Scheduler) Schedule() TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preempt > 0 {
		s.pending = true
		return 0
	}
	return s.schedule()
}

// schedule is the locked core of Schedule.
func (s *Scheduler) schedule() TaskID {
	prev := s.tasks[s.current]

	// A still-running task stays eligible at the tail of its level.
	if prev != nil && prev.State() == StateRunning {
		prev.SetState(StateReady)
		s.queues[prev.Priority().Index()].Enqueue(prev.ID())
	}

	// Strict priority: first non-empty queue from Realtime down.
	var next *Task
	for i := NumLevels - 1; i >= 0; i-- {
		if id, ok := s.queues[i].Dequeue(); ok {
			next = s.tasks[id]
			break
		}
	}
	if next == nil {
		s.current = 0
		return 0
	}

	next.SetState(StateRunning)
	s.current = next.ID()
	s.slice = s.queues[next.Priority().Index()].Quantum()
	s.resched = false

	if prev == next {
		return 0
	}

	next.stats.ContextSwitches++
	next.stats.LastScheduled = s.ticks
	s.switches++

	if prev != nil {
		Switch(&s.cpu, prev.Context(), next.Context())
	} else {
		// First switch off the boot context: nothing to save.
		var boot SwitchContext
		Switch(&s.cpu, &boot, next.Context())
	}

	return next.ID()
}

// Yield gives up the CPU voluntarily; the task stays ready.
func (s *Scheduler) Yield() TaskID {
	return s.Schedule()
}

// Block parks a task until an explicit Unblock. A blocked task is
// pulled out of its run queue; when it is the running task the caller
// must follow with Schedule.
func (s *Scheduler) Block(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.State() == StateTerminated {
		return
	}
	s.queues[t.Priority().Index()].Remove(id)
	t.SetState(StateBlocked)
}

// BlockCurrent parks the running task and schedules the next one.
func (s *Scheduler) BlockCurrent() TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[s.current]; ok {
		t.SetState(StateBlocked)
	}
	return s.schedule()
}

// Unblock moves a blocked or sleeping task back to the tail of its
// priority's run queue.
func (s *Scheduler) Unblock(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unblock(id)
}

func (s *Scheduler) unblock(id TaskID) {
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	state := t.State()
	if state != StateBlocked && state != StateSleeping {
		return
	}

	for i, sl := range s.sleepers {
		if sl.id == id {
			s.sleepers = append(s.sleepers[:i], s.sleepers[i+1:]...)
			break
		}
	}

	t.SetState(StateReady)
	s.queues[t.Priority().Index()].Enqueue(id)
}

// Sleep parks a task until the given number of ticks has elapsed.
func (s *Scheduler) Sleep(id TaskID, ticks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.State() == StateTerminated {
		return
	}
	s.queues[t.Priority().Index()].Remove(id)
	t.SetState(StateSleeping)
	s.sleepers = append(s.sleepers, sleeper{wakeAt: s.ticks + ticks, id: id})
}

// Exit terminates a task and records its exit code. The task table
// entry survives for ThreadJoin; Remove purges it.
func (s *Scheduler) Exit(id TaskID, code int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return
	}
	s.queues[t.Priority().Index()].Remove(id)
	t.SetState(StateTerminated)
	t.SetExitCode(code)

	s.log.Debug("task exited",
		zap.Uint64("task", uint64(id)),
		zap.Int32("code", code))
}

// Remove purges a task from the table, its run queue, and the sleep
// queue. Termination cleanup.
func (s *Scheduler) Remove(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return
	}
	s.queues[t.Priority().Index()].Remove(id)
	for i, sl := range s.sleepers {
		if sl.id == id {
			s.sleepers = append(s.sleepers[:i], s.sleepers[i+1:]...)
			break
		}
	}
	if s.current == id {
		s.current = 0
	}
	delete(s.tasks, id)
}

// Tick advances the timer: sleeping tasks whose deadline passed wake to
// their run queues and the running task's slice counts down. Returns
// true when the slice expired and the caller should Schedule.
func (s *Scheduler) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++

	// Wake due sleepers in FIFO order of expiry.
	kept := s.sleepers[:0]
	for _, sl := range s.sleepers {
		if sl.wakeAt <= s.ticks {
			if t, ok := s.tasks[sl.id]; ok && t.State() == StateSleeping {
				t.SetState(StateReady)
				s.queues[t.Priority().Index()].Enqueue(sl.id)
			}
		} else {
			kept = append(kept, sl)
		}
	}
	s.sleepers = kept

	if s.slice > 0 {
		s.slice--
	}
	if s.slice == 0 && s.current != 0 {
		s.resched = true
	}
	return s.resched
}

// PreemptDisable increments the preemption nesting counter. While the
// counter is above zero Schedule records the request without switching.
func (s *Scheduler) PreemptDisable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preempt++
}

// PreemptEnable decrements the nesting counter; a reschedule requested
// in the meantime runs immediately once the counter reaches zero.
func (s *Scheduler) PreemptEnable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preempt > 0 {
		s.preempt--
	}
	if s.preempt == 0 && s.pending {
		s.pending = false
		s.schedule()
	}
}

// IsPreemptionDisabled reports whether preemption is inhibited.
func (s *Scheduler) IsPreemptionDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preempt > 0
}

// Ticks returns the tick count since boot.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// ContextSwitches returns the total completed switches.
func (s *Scheduler) ContextSwitches() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switches
}

// ReadyCount returns the number of queued ready tasks.
func (s *Scheduler) ReadyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, q := range s.queues {
		n += q.Len()
	}
	return n
}

// BlockedCount returns the number of blocked or sleeping tasks.
func (s *Scheduler) BlockedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if st := t.State(); st == StateBlocked || st == StateSleeping {
			n++
		}
	}
	return n
}

// TaskInfo is a point-in-time task summary for introspection.
type TaskInfo struct {
	ID       uint64 `json:"id"`
	Priority string `json:"priority"`
	State    string `json:"state"`
	Switches uint64 `json:"context_switches"`
}

// Snapshot returns a summary of every known task, ordered by id.
func (s *Scheduler) Snapshot() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, 0, len(s.tasks))
	for id := uint64(1); id < s.nextID; id++ {
		t, ok := s.tasks[TaskID(id)]
		if !ok {
			continue
		}
		out = append(out, TaskInfo{
			ID:       id,
			Priority: t.Priority().String(),
			State:    t.State().String(),
			Switches: t.stats.ContextSwitches,
		})
	}
	return out
}
