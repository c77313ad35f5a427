package ipc

import "sync"

// ChannelID identifies one channel endpoint.
type ChannelID uint64

// ChannelState is the lifecycle state of an endpoint.
type ChannelState uint8

const (
	// StateOpen accepts sends and receives.
	StateOpen ChannelState = iota
	// StateClosed is terminal; there is no transition back to Open.
	StateClosed
)

// String returns the state name.
func (s ChannelState) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}

// Channel is one endpoint of a bidirectional, bounded, FIFO message
// pipe. Endpoints are created in pairs that reference each other as
// peers and are never re-paired.
//
// The waiter list records tasks blocked awaiting arrival on this
// endpoint's queue. It is kept in FIFO order so wake-ups pick the
// longest-waiting task.
type Channel struct {
	mu      sync.Mutex
	id      ChannelID
	peer    ChannelID
	state   ChannelState
	queue   []Message
	waiters []uint64
	limit   int
}

// NewChannel creates an open endpoint paired with peer.
func NewChannel(id, peer ChannelID) *Channel {
	return &Channel{
		id:    id,
		peer:  peer,
		limit: MaxQueueDepth,
	}
}

// ID returns this endpoint's id.
func (c *Channel) ID() ChannelID {
	return c.id
}

// Peer returns the paired endpoint's id.
func (c *Channel) Peer() ChannelID {
	return c.peer
}

// State returns the endpoint state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsClosed reports whether the endpoint is closed.
func (c *Channel) IsClosed() bool {
	return c.State() == StateClosed
}

// Close transitions Open to Closed. The transition is irreversible;
// pending messages remain receivable until drained.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// Limit returns the flow-control bound on pending messages.
func (c *Channel) Limit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// SetLimit adjusts the flow-control bound. The bound is clamped to
// [1, MaxQueueDepth]; the compile-time maximum cannot be exceeded per
// the external contract.
func (c *Channel) SetLimit(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxQueueDepth {
		n = MaxQueueDepth
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
}

// Enqueue appends a message to the tail of the queue. It rejects the
// message when the endpoint is closed or the queue is at its
// flow-control limit, so no unchecked enqueue path exists.
func (c *Channel) Enqueue(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrChannelClosed
	}
	if len(c.queue) >= c.limit {
		return ErrQueueFull
	}

	c.queue = append(c.queue, msg)
	return nil
}

// Dequeue pops the head of the queue (FIFO).
func (c *Channel) Dequeue() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return Message{}, false
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, true
}

// Peek reads the head of the queue without removing it.
func (c *Channel) Peek() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return Message{}, false
	}
	return c.queue[0], true
}

// Len returns the number of pending messages.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// AddWaiter records a task blocked awaiting arrival on this endpoint.
func (c *Channel) AddWaiter(taskID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters = append(c.waiters, taskID)
}

// RemoveWaiter drops a task from the waiter list, reporting whether it
// was present.
func (c *Channel) RemoveWaiter(taskID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, id := range c.waiters {
		if id == taskID {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// TakeWaiter pops the longest-waiting task, preserving FIFO wake order.
func (c *Channel) TakeWaiter() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.waiters) == 0 {
		return 0, false
	}
	id := c.waiters[0]
	c.waiters = c.waiters[1:]
	return id, true
}

// Waiters returns the blocked task ids in wait order.
func (c *Channel) Waiters() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]uint64, len(c.waiters))
	copy(out, c.waiters)
	return out
}
