package cap

// ID is a process-wide unique capability identifier.
type ID uint64

// NullID is the null capability (no permissions).
const NullID ID = 0

// Type identifies the kind of resource a capability grants access to.
// The set of kinds is closed and known at compile time; a capability of
// one kind can never authorize operations on another.
type Type uint8

const (
	// TypeChannel is a channel endpoint capability.
	TypeChannel Type = iota
	// TypeMemory is a memory region capability.
	TypeMemory
	// TypeDevice is a device capability.
	TypeDevice
	// TypeFile is a file or directory capability.
	TypeFile
	// TypeProcess is a process capability.
	TypeProcess
	// TypeNetwork is a network capability.
	TypeNetwork
	// TypeGraphics is a graphics capability.
	TypeGraphics
)

// String returns the capability kind name.
func (t Type) String() string {
	switch t {
	case TypeChannel:
		return "channel"
	case TypeMemory:
		return "memory"
	case TypeDevice:
		return "device"
	case TypeFile:
		return "file"
	case TypeProcess:
		return "process"
	case TypeNetwork:
		return "network"
	case TypeGraphics:
		return "graphics"
	default:
		return "unknown"
	}
}

// Rights is a bit-set of operations a capability permits. The bit values
// are part of the external contract.
type Rights uint32

const (
	// RightRead permits reading the resource.
	RightRead Rights = 1 << iota
	// RightWrite permits writing the resource.
	RightWrite
	// RightExecute permits executing the resource.
	RightExecute
	// RightDerive permits deriving new capabilities.
	RightDerive
	// RightRevoke permits revoking this capability.
	RightRevoke
	// RightTransfer permits transferring to other processes.
	RightTransfer
	// RightExclusive grants exclusive access.
	RightExclusive
	// RightConnect permits connecting to a service.
	RightConnect
)

// RightsAll grants every right.
const RightsAll Rights = 0xFF

// Has reports whether r contains every bit of want.
func (r Rights) Has(want Rights) bool {
	return r&want == want
}

// Capability grants access to one kernel resource.
type Capability struct {
	id        ID
	typ       Type
	rights    Rights
	resource  uint64
	owner     uint64
	children  []ID
	parent    ID
	createdAt uint64
	revoked   bool
}

// New creates a capability with no rights.
func New(id ID, typ Type) *Capability {
	return &Capability{
		id:  id,
		typ: typ,
	}
}

// NewFull creates a capability with full rights over a resource.
func NewFull(id ID, typ Type, resource, owner uint64) *Capability {
	return &Capability{
		id:       id,
		typ:      typ,
		rights:   RightsAll,
		resource: resource,
		owner:    owner,
	}
}

// ID returns the capability id.
func (c *Capability) ID() ID {
	return c.id
}

// Type returns the capability kind.
func (c *Capability) Type() Type {
	return c.typ
}

// Rights returns the granted rights.
func (c *Capability) Rights() Rights {
	return c.rights
}

// SetRights replaces the granted rights. It does not retroactively
// narrow already-derived children.
func (c *Capability) SetRights(rights Rights) {
	c.rights = rights
}

// Resource returns the kind-specific resource handle.
func (c *Capability) Resource() uint64 {
	return c.resource
}

// SetResource sets the kind-specific resource handle.
func (c *Capability) SetResource(id uint64) {
	c.resource = id
}

// Owner returns the owning process id.
func (c *Capability) Owner() uint64 {
	return c.owner
}

// SetOwner sets the owning process id.
func (c *Capability) SetOwner(pid uint64) {
	c.owner = pid
}

// CreatedAt returns the creation timestamp in kernel ticks.
func (c *Capability) CreatedAt() uint64 {
	return c.createdAt
}

// SetCreatedAt sets the creation timestamp.
func (c *Capability) SetCreatedAt(tick uint64) {
	c.createdAt = tick
}

// HasRight reports whether every bit of right is granted. A revoked
// capability grants nothing, whatever its rights bits say.
func (c *Capability) HasRight(right Rights) bool {
	if c.revoked {
		return false
	}
	return c.rights.Has(right)
}

// IsValid reports whether the capability passes authorization checks.
// A revoked capability is invalid regardless of its rights bits.
func (c *Capability) IsValid() bool {
	return !c.revoked
}

// Revoke marks this capability revoked. It does not cascade to
// already-derived children; the registry owns subtree revocation.
func (c *Capability) Revoke() {
	c.revoked = true
}

// Derive creates a child capability whose rights are the intersection of
// the requested rights and this capability's rights. Returns nil unless
// this capability holds RightDerive. The caller registers the child and
// records it via AddChild.
func (c *Capability) Derive(newID ID, requested Rights) *Capability {
	if !c.HasRight(RightDerive) {
		return nil
	}

	child := New(newID, c.typ)
	child.rights = c.rights & requested
	child.resource = c.resource
	child.parent = c.id
	return child
}

// AddChild records a derived child id.
func (c *Capability) AddChild(childID ID) {
	c.children = append(c.children, childID)
}

// Children returns the derived child ids in derivation order.
func (c *Capability) Children() []ID {
	return c.children
}

// Parent returns the parent capability id, or NullID if not derived.
func (c *Capability) Parent() ID {
	return c.parent
}
