package cap

import "sort"

// Space is the set of capability ids held by one process. Membership is
// a set: insertion order is irrelevant and duplicates are impossible.
// The Space owns set membership only, never the Capability objects.
type Space struct {
	pid  uint64
	held map[ID]struct{}
}

// NewSpace creates an empty capability space for a process.
func NewSpace(pid uint64) *Space {
	return &Space{
		pid:  pid,
		held: make(map[ID]struct{}),
	}
}

// Process returns the owning process id.
func (s *Space) Process() uint64 {
	return s.pid
}

// Add records a capability id in this space.
func (s *Space) Add(id ID) {
	s.held[id] = struct{}{}
}

// Remove drops a capability id, reporting whether it was held.
func (s *Space) Remove(id ID) bool {
	if _, ok := s.held[id]; !ok {
		return false
	}
	delete(s.held, id)
	return true
}

// Contains reports whether this space holds the id.
func (s *Space) Contains(id ID) bool {
	_, ok := s.held[id]
	return ok
}

// All returns the held ids in ascending order.
func (s *Space) All() []ID {
	ids := make([]ID, 0, len(s.held))
	for id := range s.held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of held capabilities.
func (s *Space) Count() int {
	return len(s.held)
}
