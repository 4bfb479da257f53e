package rtps

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// errUnhandledKind marks submessage kinds this implementation does not
// interpret; receivers skip them by length.
var errUnhandledKind = errors.New("rtps: unhandled submessage kind")

// SubmessageKind is the submessage id octet.
type SubmessageKind uint8

const (
	SubmessagePad           SubmessageKind = 0x01
	SubmessageAckNack       SubmessageKind = 0x06
	SubmessageHeartbeat     SubmessageKind = 0x07
	SubmessageGap           SubmessageKind = 0x08
	SubmessageInfoTimestamp SubmessageKind = 0x09
	SubmessageInfoSource    SubmessageKind = 0x0c
	SubmessageInfoReplyIP4  SubmessageKind = 0x0d
	SubmessageInfoDest      SubmessageKind = 0x0e
	SubmessageInfoReply     SubmessageKind = 0x0f
	SubmessageNackFrag      SubmessageKind = 0x12
	SubmessageHeartbeatFrag SubmessageKind = 0x13
	SubmessageData          SubmessageKind = 0x15
	SubmessageDataFrag      SubmessageKind = 0x16
)

// Submessage flag bits. Bit 0 of every submessage is the endianness flag;
// the others depend on the submessage kind.
const (
	FlagEndianLittle uint8 = 0x01

	FlagDataInlineQos uint8 = 0x02
	FlagDataPayload   uint8 = 0x04
	FlagDataKey       uint8 = 0x08

	FlagHeartbeatFinal      uint8 = 0x02
	FlagHeartbeatLiveliness uint8 = 0x04

	FlagAckNackFinal uint8 = 0x02

	FlagInfoTsInvalidate uint8 = 0x02
)

// Submessage is one element of an RTPS message.
type Submessage interface {
	Kind() SubmessageKind
	SubmessageFlags() uint8
	marshalBody(e *encoder)
}

func submessageOrder(flags uint8) binary.ByteOrder {
	if flags&FlagEndianLittle != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// marshalSubmessage writes the submessage header and body.
func marshalSubmessage(out []byte, sm Submessage) []byte {
	flags := sm.SubmessageFlags()
	body := newEncoder(submessageOrder(flags))
	sm.marshalBody(body)

	hdr := newEncoder(submessageOrder(flags))
	hdr.u8(uint8(sm.Kind()))
	hdr.u8(flags)
	hdr.u16(uint16(len(body.buf)))

	out = append(out, hdr.buf...)
	return append(out, body.buf...)
}

// parseSubmessageBody decodes a known submessage kind. Unknown kinds are
// handled by the caller (skipped by length).
func parseSubmessageBody(kind SubmessageKind, flags uint8, body []byte) (Submessage, error) {
	d := newDecoder(body, submessageOrder(flags))
	var sm Submessage
	switch kind {
	case SubmessageData:
		sm = parseData(d, flags)
	case SubmessageHeartbeat:
		sm = parseHeartbeat(d, flags)
	case SubmessageAckNack:
		sm = parseAckNack(d, flags)
	case SubmessageGap:
		sm = parseGap(d, flags)
	case SubmessageInfoTimestamp:
		sm = parseInfoTimestamp(d, flags)
	case SubmessageInfoDest:
		sm = parseInfoDestination(d, flags)
	case SubmessagePad:
		sm = &Pad{FlagsValue: flags}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", errUnhandledKind, uint8(kind))
	}
	if d.err != nil {
		return nil, fmt.Errorf("rtps: parse submessage 0x%02x: %w", uint8(kind), d.err)
	}
	return sm, nil
}

// Pad carries no content.
type Pad struct {
	FlagsValue uint8
}

func (p *Pad) Kind() SubmessageKind   { return SubmessagePad }
func (p *Pad) SubmessageFlags() uint8 { return p.FlagsValue }
func (p *Pad) marshalBody(e *encoder) {}
