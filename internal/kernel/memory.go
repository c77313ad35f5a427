package kernel

import (
	"encoding/binary"
	"sync"
)

// pageSize is the mapping granularity of the task-memory model.
const pageSize = 4096

// FlatMemory is a page-granular model of task address space. Syscall
// buffer copies and futex word reads go through it; accesses touching
// an unmapped page fail instead of faulting.
type FlatMemory struct {
	mu    sync.RWMutex
	pages map[uintptr][]byte
}

// NewFlatMemory creates an empty address space.
func NewFlatMemory() *FlatMemory {
	return &FlatMemory{pages: make(map[uintptr][]byte)}
}

// Map backs every page covering [addr, addr+size) with zeroed memory.
// Already-mapped pages keep their contents.
func (m *FlatMemory) Map(addr uintptr, size int) {
	if size <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	first := addr &^ (pageSize - 1)
	last := (addr + uintptr(size) - 1) &^ (pageSize - 1)
	for base := first; ; base += pageSize {
		if _, ok := m.pages[base]; !ok {
			m.pages[base] = make([]byte, pageSize)
		}
		if base == last {
			break
		}
	}
}

// Unmap releases every page covering [addr, addr+size).
func (m *FlatMemory) Unmap(addr uintptr, size int) {
	if size <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	first := addr &^ (pageSize - 1)
	last := (addr + uintptr(size) - 1) &^ (pageSize - 1)
	for base := first; ; base += pageSize {
		delete(m.pages, base)
		if base == last {
			break
		}
	}
}

// ReadBytes copies n bytes starting at addr. The whole range must be
// mapped.
func (m *FlatMemory) ReadBytes(addr uintptr, n int) ([]byte, bool) {
	if n < 0 {
		return nil, false
	}
	out := make([]byte, n)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := 0; i < n; {
		base := (addr + uintptr(i)) &^ (pageSize - 1)
		page, ok := m.pages[base]
		if !ok {
			return nil, false
		}
		off := int(addr + uintptr(i) - base)
		i += copy(out[i:], page[off:])
	}
	return out, true
}

// WriteBytes copies data into the range starting at addr. The whole
// range must be mapped; nothing is written on failure.
func (m *FlatMemory) WriteBytes(addr uintptr, data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the full range before touching anything.
	for i := 0; i < len(data); i += pageSize {
		base := (addr + uintptr(i)) &^ (pageSize - 1)
		if _, ok := m.pages[base]; !ok {
			return false
		}
	}
	if len(data) > 0 {
		endBase := (addr + uintptr(len(data)) - 1) &^ (pageSize - 1)
		if _, ok := m.pages[endBase]; !ok {
			return false
		}
	}

	for i := 0; i < len(data); {
		base := (addr + uintptr(i)) &^ (pageSize - 1)
		page := m.pages[base]
		off := int(addr + uintptr(i) - base)
		i += copy(page[off:], data[i:])
	}
	return true
}

// Load32 returns the little-endian word at addr. Implements the futex
// table's memory boundary.
func (m *FlatMemory) Load32(addr uintptr) (uint32, bool) {
	buf, ok := m.ReadBytes(addr, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf), true
}

// Store32 writes the little-endian word at addr.
func (m *FlatMemory) Store32(addr uintptr, val uint32) bool {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	return m.WriteBytes(addr, buf[:])
}
