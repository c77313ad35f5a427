package ipc

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quillos/kernel/internal/cap"
	"github.com/quillos/kernel/internal/logging"
)

// Registry is the process-wide owner of all channels and capabilities.
// It is the only component permitted to mutate the underlying maps; all
// task access goes through id lookup here.
//
// The registry lock guards the maps only. Individual channels carry
// their own short-lived locks, so map lookups never serialize behind a
// queue operation on an unrelated channel.
type Registry struct {
	mu          sync.RWMutex
	channels    map[ChannelID]*Channel
	caps        map[cap.ID]*cap.Capability
	chanOwner   map[ChannelID]uint64
	ownerCounts map[uint64]int
	nextChannel uint64
	nextCap     uint64
	queueLimit  int
	clock       func() uint64
	log         *logging.Logger
}

// NewRegistry creates an empty registry. A nil logger is replaced with
// a no-op logger.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		channels:    make(map[ChannelID]*Channel),
		caps:        make(map[cap.ID]*cap.Capability),
		chanOwner:   make(map[ChannelID]uint64),
		ownerCounts: make(map[uint64]int),
		nextChannel: 1,
		nextCap:     1,
		queueLimit:  MaxQueueDepth,
		log:         log,
	}
}

// SetClock installs a tick source used to timestamp capabilities.
func (r *Registry) SetClock(clock func() uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// SetDefaultQueueLimit sets the flow-control limit applied to newly
// created channels. Clamped to [1, MaxQueueDepth].
func (r *Registry) SetDefaultQueueLimit(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxQueueDepth {
		n = MaxQueueDepth
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queueLimit = n
}

// CreateChannelPair issues two fresh ids and builds two endpoints that
// reference each other as peer. The owning process is bounded at
// MaxChannelsPerProcess endpoints.
func (r *Registry) CreateChannelPair(owner uint64) (ChannelID, ChannelID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ownerCounts[owner]+2 > MaxChannelsPerProcess {
		return 0, 0, ErrTooManyChannels
	}

	idA := ChannelID(r.nextChannel)
	idB := ChannelID(r.nextChannel + 1)
	r.nextChannel += 2

	chA := NewChannel(idA, idB)
	chB := NewChannel(idB, idA)
	chA.SetLimit(r.queueLimit)
	chB.SetLimit(r.queueLimit)

	r.channels[idA] = chA
	r.channels[idB] = chB
	r.chanOwner[idA] = owner
	r.chanOwner[idB] = owner
	r.ownerCounts[owner] += 2

	r.log.Debug("channel pair created",
		zap.Uint64("a", uint64(idA)),
		zap.Uint64("b", uint64(idB)),
		zap.Uint64("owner", owner))

	return idA, idB, nil
}

// lookup fetches an endpoint under the read lock.
func (r *Registry) lookup(id ChannelID) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// Channel returns the endpoint for id.
func (r *Registry) Channel(id ChannelID) (*Channel, error) {
	ch, ok := r.lookup(id)
	if !ok {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

// Send delivers a message to the peer of the named endpoint. The
// message lands on the peer's queue only; any waiter wake-up is the
// syscall layer's job. On error no partial effect is visible.
func (r *Registry) Send(id ChannelID, msg Message) error {
	if len(msg.Data()) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	ch, ok := r.lookup(id)
	if !ok {
		return ErrChannelNotFound
	}
	if ch.IsClosed() {
		return ErrChannelClosed
	}

	peer, ok := r.lookup(ch.Peer())
	if !ok {
		return ErrChannelNotFound
	}

	// The peer endpoint enforces its own depth bound and closed state;
	// a closed peer surfaces as ChannelClosed to the sender.
	return peer.Enqueue(msg)
}

// Receive pops the head of the named endpoint's queue. ErrQueueEmpty is
// the would-block signal; a closed endpoint stays receivable until its
// queue drains.
func (r *Registry) Receive(id ChannelID) (Message, error) {
	ch, ok := r.lookup(id)
	if !ok {
		return Message{}, ErrChannelNotFound
	}

	msg, ok := ch.Dequeue()
	if !ok {
		return Message{}, ErrQueueEmpty
	}
	return msg, nil
}

// CloseChannel closes both endpoints of the pair. The peer stays in the
// map in closed-receivable state so its queue can drain.
func (r *Registry) CloseChannel(id ChannelID) error {
	ch, ok := r.lookup(id)
	if !ok {
		return ErrChannelNotFound
	}

	ch.Close()
	if peer, ok := r.lookup(ch.Peer()); ok {
		peer.Close()
	}

	r.log.Debug("channel closed", zap.Uint64("id", uint64(id)))
	return nil
}

// RemoveChannel unmaps a drained endpoint.
func (r *Registry) RemoveChannel(id ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[id]; !ok {
		return ErrChannelNotFound
	}
	delete(r.channels, id)
	if owner, ok := r.chanOwner[id]; ok {
		delete(r.chanOwner, id)
		if r.ownerCounts[owner] > 0 {
			r.ownerCounts[owner]--
		}
	}
	return nil
}

// CreateCapability issues a zero-rights capability of the given kind.
func (r *Registry) CreateCapability(typ cap.Type) cap.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := cap.ID(r.nextCap)
	r.nextCap++

	c := cap.New(id, typ)
	r.stamp(c)
	r.caps[id] = c
	return id
}

// CreateCapabilityFull issues an all-rights capability bound to a
// resource and owner.
func (r *Registry) CreateCapabilityFull(typ cap.Type, resource, owner uint64) cap.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := cap.ID(r.nextCap)
	r.nextCap++

	c := cap.NewFull(id, typ, resource, owner)
	r.stamp(c)
	r.caps[id] = c
	return id
}

// stamp records the creation tick. Callers hold the registry lock.
func (r *Registry) stamp(c *cap.Capability) {
	if r.clock != nil {
		c.SetCreatedAt(r.clock())
	}
}

// ValidateCapability returns the capability for id. Unknown ids and
// revoked capabilities both fail validation.
func (r *Registry) ValidateCapability(id cap.ID) (*cap.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caps[id]
	if !ok || !c.IsValid() {
		return nil, ErrInvalidCapability
	}
	return c, nil
}

// DeriveCapability derives a child from parentID with rights narrowed
// to the intersection of the parent's rights and requested. The child
// is registered and recorded on the parent. ErrPermissionDenied is
// returned when the parent lacks RightDerive.
func (r *Registry) DeriveCapability(parentID cap.ID, requested cap.Rights) (cap.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.caps[parentID]
	if !ok || !parent.IsValid() {
		return 0, ErrInvalidCapability
	}

	childID := cap.ID(r.nextCap)
	child := parent.Derive(childID, requested)
	if child == nil {
		return 0, ErrPermissionDenied
	}
	r.nextCap++

	child.SetOwner(parent.Owner())
	r.stamp(child)
	r.caps[childID] = child
	parent.AddChild(childID)

	r.log.Debug("capability derived",
		zap.Uint64("parent", uint64(parentID)),
		zap.Uint64("child", uint64(childID)))

	return childID, nil
}

// RevokeCapability revokes id and every capability transitively derived
// from it, then unmaps the root. Descendants stay mapped but revoked,
// so later authorization checks on them fail. Returns the number of
// capabilities revoked.
func (r *Registry) RevokeCapability(id cap.ID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root, ok := r.caps[id]
	if !ok {
		return 0, ErrInvalidCapability
	}

	revoked := 0
	stack := []*cap.Capability{root}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		c.Revoke()
		revoked++

		for _, childID := range c.Children() {
			if child, ok := r.caps[childID]; ok && child.IsValid() {
				stack = append(stack, child)
			}
		}
	}

	delete(r.caps, id)

	r.log.Debug("capability revoked",
		zap.Uint64("id", uint64(id)),
		zap.Int("subtree", revoked))

	return revoked, nil
}

// PurgeProcess removes every channel owned by pid and drops pid's
// waiter-list entries everywhere. Termination cleanup; capability space
// cleanup is driven by the process table through RevokeCapability.
func (r *Registry) PurgeProcess(pid uint64, taskIDs []uint64) {
	r.mu.Lock()
	victims := make([]ChannelID, 0)
	for id, owner := range r.chanOwner {
		if owner == pid {
			victims = append(victims, id)
		}
	}
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		for _, tid := range taskIDs {
			ch.RemoveWaiter(tid)
		}
	}

	for _, id := range victims {
		if ch, ok := r.lookup(id); ok {
			ch.Close()
		}
		_ = r.RemoveChannel(id)
	}
}

// ChannelInfo is a point-in-time endpoint summary for introspection.
type ChannelInfo struct {
	ID      uint64 `json:"id"`
	Peer    uint64 `json:"peer"`
	Owner   uint64 `json:"owner"`
	State   string `json:"state"`
	Queued  int    `json:"queued"`
	Waiters int    `json:"waiters"`
}

// Channels returns a summary of every endpoint, ordered by id.
func (r *Registry) Channels() []ChannelInfo {
	r.mu.RLock()
	ids := make([]ChannelID, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	owners := make(map[ChannelID]uint64, len(r.chanOwner))
	for id, owner := range r.chanOwner {
		owners[id] = owner
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]ChannelInfo, 0, len(ids))
	for _, id := range ids {
		ch, ok := r.lookup(id)
		if !ok {
			continue
		}
		out = append(out, ChannelInfo{
			ID:      uint64(id),
			Peer:    uint64(ch.Peer()),
			Owner:   owners[id],
			State:   ch.State().String(),
			Queued:  ch.Len(),
			Waiters: len(ch.Waiters()),
		})
	}
	return out
}

// Stats is a point-in-time registry summary.
type Stats struct {
	Channels     int `json:"channels"`
	OpenChannels int `json:"open_channels"`
	Capabilities int `json:"capabilities"`
	Pending      int `json:"pending_messages"`
}

// GetStats returns registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	capCount := len(r.caps)
	r.mu.RUnlock()

	stats := Stats{
		Channels:     len(channels),
		Capabilities: capCount,
	}
	for _, ch := range channels {
		if !ch.IsClosed() {
			stats.OpenChannels++
		}
		stats.Pending += ch.Len()
	}
	return stats
}
