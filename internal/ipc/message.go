package ipc

// Compile-time limits that are part of the external contract.
const (
	// MaxMessageSize is the maximum payload size in bytes (64 KiB).
	MaxMessageSize = 64 * 1024
	// MaxQueueDepth is the maximum number of pending messages per
	// channel.
	MaxQueueDepth = 256
	// MaxChannelsPerProcess bounds channel endpoints per owning process.
	MaxChannelsPerProcess = 256
	// HeaderSize is the wire size of a message header in bytes.
	HeaderSize = 32
	// capIDSize is the wire size of one attached capability id.
	capIDSize = 8
)

// MessageType tags the kind of payload a message carries.
type MessageType uint32

const (
	// MsgData is a normal data message.
	MsgData MessageType = iota
	// MsgRequest expects a correlated reply.
	MsgRequest
	// MsgReply answers a request with the same sequence number.
	MsgReply
	// MsgError reports an error; the code rides in the flags field.
	MsgError
	// MsgCapabilityTransfer carries capability ids to the peer.
	MsgCapabilityTransfer
	// MsgClose notifies the peer of endpoint closure.
	MsgClose
	// MsgPing is a keepalive probe.
	MsgPing
	// MsgPong answers a ping.
	MsgPong
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MsgData:
		return "data"
	case MsgRequest:
		return "request"
	case MsgReply:
		return "reply"
	case MsgError:
		return "error"
	case MsgCapabilityTransfer:
		return "capability_transfer"
	case MsgClose:
		return "close"
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Flags is a bit-set of message delivery options.
type Flags uint32

const (
	// FlagAckRequired marks a message that must be acknowledged.
	FlagAckRequired Flags = 1 << iota
	// FlagUrgent marks a high-priority message.
	FlagUrgent
	// FlagHasCaps marks a message carrying inline capabilities.
	FlagHasCaps
	// FlagFragmented marks a message that is part of a larger transfer.
	FlagFragmented
	// FlagLastFragment marks the final fragment.
	FlagLastFragment
)

// Has reports whether every bit of want is set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Header describes a message independent of its payload.
type Header struct {
	Type     MessageType
	Flags    Flags
	Sequence uint64
	Sender   uint64
	DataLen  uint32
	CapCount uint32
}

// Message is the typed envelope carried over channels.
type Message struct {
	header Header
	data   []byte
	caps   []uint64
}

// NewMessage creates an empty message of the given type.
func NewMessage(typ MessageType) Message {
	return Message{header: Header{Type: typ}}
}

// NewData creates a data message with the given payload.
func NewData(data []byte) Message {
	msg := NewMessage(MsgData)
	msg.SetData(data)
	return msg
}

// NewRequest creates a request message with a correlation sequence.
func NewRequest(sequence uint64, data []byte) Message {
	msg := NewMessage(MsgRequest)
	msg.header.Sequence = sequence
	msg.SetData(data)
	return msg
}

// NewReply creates a reply correlated to a request sequence.
func NewReply(sequence uint64, data []byte) Message {
	msg := NewMessage(MsgReply)
	msg.header.Sequence = sequence
	msg.SetData(data)
	return msg
}

// NewError creates an error message; the code is carried in the flags
// field.
func NewError(code uint32) Message {
	msg := NewMessage(MsgError)
	msg.header.Flags = Flags(code)
	return msg
}

// Header returns a copy of the message header.
func (m *Message) Header() Header {
	return m.header
}

// Type returns the message type.
func (m *Message) Type() MessageType {
	return m.header.Type
}

// Flags returns the message flags.
func (m *Message) Flags() Flags {
	return m.header.Flags
}

// SetFlags replaces the message flags.
func (m *Message) SetFlags(flags Flags) {
	m.header.Flags = flags
}

// Sequence returns the request/reply correlation number.
func (m *Message) Sequence() uint64 {
	return m.header.Sequence
}

// SetSequence sets the correlation number.
func (m *Message) SetSequence(seq uint64) {
	m.header.Sequence = seq
}

// Sender returns the sending process id.
func (m *Message) Sender() uint64 {
	return m.header.Sender
}

// SetSender sets the sending process id.
func (m *Message) SetSender(pid uint64) {
	m.header.Sender = pid
}

// Data returns the payload.
func (m *Message) Data() []byte {
	return m.data
}

// SetData replaces the payload.
func (m *Message) SetData(data []byte) {
	m.data = data
	m.header.DataLen = uint32(len(data))
}

// Capabilities returns the attached capability ids in attachment order.
func (m *Message) Capabilities() []uint64 {
	return m.caps
}

// AddCapability attaches a capability id that transfers alongside the
// payload.
func (m *Message) AddCapability(capID uint64) {
	m.caps = append(m.caps, capID)
	m.header.CapCount = uint32(len(m.caps))
	m.header.Flags |= FlagHasCaps
}

// TotalSize returns header size + payload length + 8 bytes per attached
// capability id.
func (m *Message) TotalSize() int {
	return HeaderSize + len(m.data) + len(m.caps)*capIDSize
}
