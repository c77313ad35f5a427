package sched

// Scheduling constants that are part of the external contract.
const (
	// TimeSliceMS is the default quantum in milliseconds.
	TimeSliceMS = 10
	// TimerFrequencyHz is the periodic timer rate.
	TimerFrequencyHz = 1000
	// TimeSliceTicks is the default quantum expressed in timer ticks.
	TimeSliceTicks = TimeSliceMS * TimerFrequencyHz / 1000
)

// RunQueue is the round-robin ready queue for one priority level. It
// exclusively owns the ordered sequence of ready task ids at that level
// plus the level's quantum.
type RunQueue struct {
	tasks   []TaskID
	quantum uint64
}

// NewRunQueue creates an empty queue with the given quantum in ticks.
func NewRunQueue(quantum uint64) *RunQueue {
	if quantum == 0 {
		quantum = TimeSliceTicks
	}
	return &RunQueue{quantum: quantum}
}

// Enqueue appends a task to the tail.
func (q *RunQueue) Enqueue(id TaskID) {
	q.tasks = append(q.tasks, id)
}

// Dequeue pops the head.
func (q *RunQueue) Dequeue() (TaskID, bool) {
	if len(q.tasks) == 0 {
		return 0, false
	}
	id := q.tasks[0]
	q.tasks = q.tasks[1:]
	return id, true
}

// Peek reads the head without removing it.
func (q *RunQueue) Peek() (TaskID, bool) {
	if len(q.tasks) == 0 {
		return 0, false
	}
	return q.tasks[0], true
}

// Rotate moves the current head to the tail. Used on quantum expiry to
// implement fairness among equal-priority tasks.
func (q *RunQueue) Rotate() {
	if len(q.tasks) < 2 {
		return
	}
	head := q.tasks[0]
	copy(q.tasks, q.tasks[1:])
	q.tasks[len(q.tasks)-1] = head
}

// Remove extracts a specific task out of order, reporting whether it
// was queued. Used when a task blocks or terminates while ready.
func (q *RunQueue) Remove(id TaskID) bool {
	for i, t := range q.tasks {
		if t == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of ready tasks.
func (q *RunQueue) Len() int {
	return len(q.tasks)
}

// Quantum returns the level's quantum in ticks.
func (q *RunQueue) Quantum() uint64 {
	return q.quantum
}

// SetQuantum tunes the level's quantum independently.
func (q *RunQueue) SetQuantum(ticks uint64) {
	if ticks == 0 {
		return
	}
	q.quantum = ticks
}

// Tasks returns the queued ids in run order.
func (q *RunQueue) Tasks() []TaskID {
	out := make([]TaskID, len(q.tasks))
	copy(out, q.tasks)
	return out
}
