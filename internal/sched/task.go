package sched

// TaskID identifies a schedulable task.
type TaskID uint64

// TaskState is a task's lifecycle state.
type TaskState uint8

const (
	// StateReady means queued on its priority's run queue.
	StateReady TaskState = iota
	// StateRunning means currently owning the CPU.
	StateRunning
	// StateBlocked means parked awaiting an explicit wake.
	StateBlocked
	// StateSleeping means parked until a wake tick.
	StateSleeping
	// StateTerminated is terminal.
	StateTerminated
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSleeping:
		return "sleeping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TaskStats tracks per-task scheduling counters.
type TaskStats struct {
	ContextSwitches uint64
	LastScheduled   uint64
}

// Task is one schedulable unit of execution.
type Task struct {
	id       TaskID
	priority Priority
	state    TaskState
	ctx      SwitchContext
	exitCode int32
	stats    TaskStats
}

// NewTask creates a ready task at the given priority.
func NewTask(id TaskID, priority Priority) *Task {
	return &Task{
		id:       id,
		priority: priority,
		state:    StateReady,
	}
}

// ID returns the task id.
func (t *Task) ID() TaskID {
	return t.id
}

// Priority returns the task's level.
func (t *Task) Priority() Priority {
	return t.priority
}

// SetPriority reclassifies the task. The scheduler requeues it on the
// new level at the next scheduling decision.
func (t *Task) SetPriority(p Priority) {
	t.priority = p
}

// State returns the lifecycle state.
func (t *Task) State() TaskState {
	return t.state
}

// SetState transitions the lifecycle state.
func (t *Task) SetState(s TaskState) {
	t.state = s
}

// Context returns the task's switch context for the scheduler.
func (t *Task) Context() *SwitchContext {
	return &t.ctx
}

// ExitCode returns the recorded exit code.
func (t *Task) ExitCode() int32 {
	return t.exitCode
}

// SetExitCode records the exit code.
func (t *Task) SetExitCode(code int32) {
	t.exitCode = code
}

// Stats returns a copy of the scheduling counters.
func (t *Task) Stats() TaskStats {
	return t.stats
}
