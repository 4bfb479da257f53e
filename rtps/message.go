package rtps

import (
	"bytes"
	"errors"
	"fmt"
)

var protocolMagic = [4]byte{'R', 'T', 'P', 'S'}

// Header is the 20-byte RTPS message header.
type Header struct {
	Version ProtocolVersion
	Vendor  VendorID
	Prefix  GUIDPrefix
}

// NewHeader returns a header for this implementation with the given
// sender prefix.
func NewHeader(prefix GUIDPrefix) Header {
	return Header{Version: ProtocolVersion24, Vendor: VendorIDThis, Prefix: prefix}
}

const headerSize = 20

// Message is a full RTPS message: header plus submessages.
type Message struct {
	Header      Header
	Submessages []Submessage
}

// Marshal renders the message to wire bytes.
func (m *Message) Marshal() []byte {
	out := make([]byte, 0, 64)
	out = append(out, protocolMagic[:]...)
	out = append(out, m.Header.Version.Major, m.Header.Version.Minor)
	out = append(out, m.Header.Vendor[0], m.Header.Vendor[1])
	out = append(out, m.Header.Prefix[:]...)
	for _, sm := range m.Submessages {
		out = marshalSubmessage(out, sm)
	}
	return out
}

// ParseMessage decodes a datagram. Submessages with unknown kinds are
// skipped by their declared length; a zero length ends the message per the
// RTPS rules.
func ParseMessage(datagram []byte) (*Message, error) {
	if len(datagram) < headerSize {
		return nil, fmt.Errorf("rtps: datagram shorter than header: %d bytes", len(datagram))
	}
	if !bytes.Equal(datagram[0:4], protocolMagic[:]) {
		return nil, fmt.Errorf("rtps: bad protocol magic %q", datagram[0:4])
	}
	m := &Message{}
	m.Header.Version = ProtocolVersion{Major: datagram[4], Minor: datagram[5]}
	m.Header.Vendor = VendorID{datagram[6], datagram[7]}
	copy(m.Header.Prefix[:], datagram[8:20])
	if m.Header.Version.Major != 2 {
		return nil, fmt.Errorf("rtps: unsupported protocol version %d.%d",
			m.Header.Version.Major, m.Header.Version.Minor)
	}

	rest := datagram[headerSize:]
	for len(rest) >= 4 {
		kind := SubmessageKind(rest[0])
		flags := rest[1]
		length := int(submessageOrder(flags).Uint16(rest[2:4]))
		rest = rest[4:]
		if length == 0 {
			// Zero means "extends to the end of the message", only
			// valid for the last submessage.
			length = len(rest)
		}
		if length > len(rest) {
			return nil, ErrTruncated
		}
		body := rest[:length]
		rest = rest[length:]

		sm, err := parseSubmessageBody(kind, flags, body)
		if err != nil {
			// Unhandled kinds are skipped by length; a malformed body
			// of a handled kind is fatal for the rest of the message.
			if errors.Is(err, errUnhandledKind) {
				continue
			}
			return nil, err
		}
		m.Submessages = append(m.Submessages, sm)
	}
	return m, nil
}

// MessageBuilder accumulates submessages for one destination.
type MessageBuilder struct {
	msg Message
}

// NewMessageBuilder starts a message from the given sender prefix.
func NewMessageBuilder(prefix GUIDPrefix) *MessageBuilder {
	return &MessageBuilder{msg: Message{Header: NewHeader(prefix)}}
}

// DestinedTo adds an INFO_DST scoping the rest of the message.
func (b *MessageBuilder) DestinedTo(prefix GUIDPrefix) *MessageBuilder {
	b.msg.Submessages = append(b.msg.Submessages, NewInfoDestination(prefix))
	return b
}

// Timestamped adds an INFO_TS applying to the following submessages.
func (b *MessageBuilder) Timestamped(t Time) *MessageBuilder {
	b.msg.Submessages = append(b.msg.Submessages, NewInfoTimestamp(t))
	return b
}

// Add appends any submessage.
func (b *MessageBuilder) Add(sm Submessage) *MessageBuilder {
	b.msg.Submessages = append(b.msg.Submessages, sm)
	return b
}

// Empty reports whether no submessages have been added.
func (b *MessageBuilder) Empty() bool {
	return len(b.msg.Submessages) == 0
}

// Bytes marshals the accumulated message.
func (b *MessageBuilder) Bytes() []byte {
	return b.msg.Marshal()
}
