// Package rtps implements the RTPS 2.4 wire protocol: the structural types,
// message and submessage codecs, and the stateful Reader and Writer endpoints
// that the DDS layer is built on.
package rtps

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GUIDPrefix identifies a DomainParticipant. All endpoints of one
// participant share the same prefix.
type GUIDPrefix [12]byte

var GUIDPrefixUnknown = GUIDPrefix{}

// NewGUIDPrefix generates a random prefix. The first two bytes carry the
// vendor id so that a wire capture attributes the traffic correctly.
func NewGUIDPrefix() GUIDPrefix {
	var p GUIDPrefix
	u := uuid.New()
	copy(p[:], u[:])
	p[0] = VendorIDThis[0]
	p[1] = VendorIDThis[1]
	return p
}

func (p GUIDPrefix) String() string {
	return hex.EncodeToString(p[:])
}

// EntityKind is the low octet of an EntityID. The high bit distinguishes
// builtin from user-defined entities.
type EntityKind uint8

const (
	EntityKindUnknown           EntityKind = 0x00
	EntityKindParticipant       EntityKind = 0xc1
	EntityKindWriterWithKey     EntityKind = 0x02
	EntityKindWriterNoKey       EntityKind = 0x03
	EntityKindReaderWithKey     EntityKind = 0x07
	EntityKindReaderNoKey       EntityKind = 0x04
	EntityKindBuiltinWriterKey  EntityKind = 0xc2
	EntityKindBuiltinReaderKey  EntityKind = 0xc7
	EntityKindBuiltinWriterNo   EntityKind = 0xc3
	EntityKindBuiltinReaderNo   EntityKind = 0xc4
	EntityKindWriterGroup       EntityKind = 0x08
	EntityKindReaderGroup       EntityKind = 0x09
)

// EntityID identifies an endpoint within a participant.
type EntityID struct {
	Key  [3]byte
	Kind EntityKind
}

// Well-known entity ids from the RTPS and discovery specifications.
var (
	EntityIDUnknown     = EntityID{}
	EntityIDParticipant = EntityID{Key: [3]byte{0x00, 0x00, 0x01}, Kind: EntityKindParticipant}

	EntityIDSPDPParticipantWriter = EntityID{Key: [3]byte{0x00, 0x01, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIDSPDPParticipantReader = EntityID{Key: [3]byte{0x00, 0x01, 0x00}, Kind: EntityKindBuiltinReaderKey}

	EntityIDSEDPPublicationsWriter  = EntityID{Key: [3]byte{0x00, 0x00, 0x03}, Kind: EntityKindBuiltinWriterKey}
	EntityIDSEDPPublicationsReader  = EntityID{Key: [3]byte{0x00, 0x00, 0x03}, Kind: EntityKindBuiltinReaderKey}
	EntityIDSEDPSubscriptionsWriter = EntityID{Key: [3]byte{0x00, 0x00, 0x04}, Kind: EntityKindBuiltinWriterKey}
	EntityIDSEDPSubscriptionsReader = EntityID{Key: [3]byte{0x00, 0x00, 0x04}, Kind: EntityKindBuiltinReaderKey}
	EntityIDSEDPTopicWriter         = EntityID{Key: [3]byte{0x00, 0x00, 0x02}, Kind: EntityKindBuiltinWriterKey}
	EntityIDSEDPTopicReader         = EntityID{Key: [3]byte{0x00, 0x00, 0x02}, Kind: EntityKindBuiltinReaderKey}

	EntityIDParticipantMessageWriter = EntityID{Key: [3]byte{0x00, 0x02, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIDParticipantMessageReader = EntityID{Key: [3]byte{0x00, 0x02, 0x00}, Kind: EntityKindBuiltinReaderKey}

	// Participant stateless message endpoints carry the authentication
	// handshake before peers are admitted.
	EntityIDStatelessMessageWriter = EntityID{Key: [3]byte{0x00, 0x02, 0x01}, Kind: EntityKindBuiltinWriterNo}
	EntityIDStatelessMessageReader = EntityID{Key: [3]byte{0x00, 0x02, 0x01}, Kind: EntityKindBuiltinReaderNo}
)

// NewEntityID builds a user-defined entity id from a 24-bit counter value.
func NewEntityID(key uint32, kind EntityKind) EntityID {
	return EntityID{
		Key:  [3]byte{byte(key >> 16), byte(key >> 8), byte(key)},
		Kind: kind,
	}
}

// IsBuiltin reports whether the entity is one of the builtin endpoints.
func (e EntityID) IsBuiltin() bool {
	return e.Kind&0xc0 == 0xc0
}

// IsWriter reports whether the entity kind is any writer kind.
func (e EntityID) IsWriter() bool {
	switch e.Kind {
	case EntityKindWriterWithKey, EntityKindWriterNoKey,
		EntityKindBuiltinWriterKey, EntityKindBuiltinWriterNo:
		return true
	}
	return false
}

// IsReader reports whether the entity kind is any reader kind.
func (e EntityID) IsReader() bool {
	switch e.Kind {
	case EntityKindReaderWithKey, EntityKindReaderNoKey,
		EntityKindBuiltinReaderKey, EntityKindBuiltinReaderNo:
		return true
	}
	return false
}

func (e EntityID) bytes() [4]byte {
	return [4]byte{e.Key[0], e.Key[1], e.Key[2], byte(e.Kind)}
}

func entityIDFromBytes(b [4]byte) EntityID {
	return EntityID{Key: [3]byte{b[0], b[1], b[2]}, Kind: EntityKind(b[3])}
}

func (e EntityID) String() string {
	return fmt.Sprintf("%02x%02x%02x.%02x", e.Key[0], e.Key[1], e.Key[2], byte(e.Kind))
}

// GUID globally identifies an RTPS entity.
type GUID struct {
	Prefix   GUIDPrefix
	EntityID EntityID
}

var GUIDUnknown = GUID{}

// Bytes returns the 16-byte wire form, prefix then entity id. Builtin
// discovery uses it directly as the key hash.
func (g GUID) Bytes() [16]byte {
	var b [16]byte
	copy(b[:12], g.Prefix[:])
	eb := g.EntityID.bytes()
	copy(b[12:], eb[:])
	return b
}

// GUIDFromBytes is the inverse of Bytes.
func GUIDFromBytes(b [16]byte) GUID {
	var g GUID
	copy(g.Prefix[:], b[:12])
	g.EntityID = entityIDFromBytes([4]byte{b[12], b[13], b[14], b[15]})
	return g
}

func (g GUID) String() string {
	return g.Prefix.String() + "/" + g.EntityID.String()
}

// Participant returns the GUID of the participant this entity belongs to.
func (g GUID) Participant() GUID {
	return GUID{Prefix: g.Prefix, EntityID: EntityIDParticipant}
}

// Less imposes a total order on GUIDs. The security handshake uses it to
// decide which side initiates.
func (g GUID) Less(other GUID) bool {
	for i := range g.Prefix {
		if g.Prefix[i] != other.Prefix[i] {
			return g.Prefix[i] < other.Prefix[i]
		}
	}
	a, b := g.EntityID.bytes(), other.EntityID.bytes()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// ProtocolVersion is the RTPS protocol version on the wire.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

var ProtocolVersion24 = ProtocolVersion{Major: 2, Minor: 4}

// VendorID identifies the protocol implementation vendor.
type VendorID [2]byte

// VendorIDThis is the id stamped on outgoing messages. 0x01,0x20 is in the
// range OMG leaves for implementations without an assigned id.
var (
	VendorIDUnknown = VendorID{0x00, 0x00}
	VendorIDThis    = VendorID{0x01, 0x20}
)
