package rtps

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a submessage body ends before its declared
// content does.
var ErrTruncated = errors.New("rtps: truncated message")

// encoder appends wire-format primitives in a chosen byte order.
// Submessage bodies do not use CDR alignment: the RTPS PSM lays every field
// on a 4-byte grid already.
type encoder struct {
	buf   []byte
	order binary.ByteOrder
}

func newEncoder(order binary.ByteOrder) *encoder {
	return &encoder{order: order}
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u16(v uint16) {
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) i32(v int32) {
	e.u32(uint32(v))
}

func (e *encoder) bytes(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) entityID(id EntityID) {
	b := id.bytes()
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) guidPrefix(p GUIDPrefix) {
	e.buf = append(e.buf, p[:]...)
}

func (e *encoder) seqNum(sn SequenceNumber) {
	e.i32(sn.high())
	e.u32(sn.low())
}

func (e *encoder) seqNumSet(s SequenceNumberSet) {
	e.seqNum(s.Base)
	e.u32(s.NumBits)
	words := int(s.NumBits+31) / 32
	for i := 0; i < words; i++ {
		var w uint32
		if i < len(s.Bitmap) {
			w = s.Bitmap[i]
		}
		e.u32(w)
	}
}

func (e *encoder) timestamp(t Time) {
	e.i32(t.Seconds)
	e.u32(t.Fraction)
}

func (e *encoder) locator(l Locator) {
	e.i32(int32(l.Kind))
	e.u32(l.Port)
	e.bytes(l.Address[:])
}

// decoder reads wire-format primitives. After any read fails, the error
// sticks and subsequent reads return zero values.
type decoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
	err   error
}

func newDecoder(buf []byte, order binary.ByteOrder) *decoder {
	return &decoder{buf: buf, order: order}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = ErrTruncated
	}
}

func (d *decoder) u8() uint8 {
	if d.err != nil || d.remaining() < 1 {
		d.fail()
		return 0
	}
	v := d.buf[d.pos]
	d.pos++
	return v
}

func (d *decoder) u16() uint16 {
	if d.err != nil || d.remaining() < 2 {
		d.fail()
		return 0
	}
	v := d.order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v
}

func (d *decoder) u32() uint32 {
	if d.err != nil || d.remaining() < 4 {
		d.fail()
		return 0
	}
	v := d.order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) i32() int32 {
	return int32(d.u32())
}

func (d *decoder) take(n int) []byte {
	if d.err != nil || n < 0 || d.remaining() < n {
		d.fail()
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) entityID() EntityID {
	b := d.take(4)
	if b == nil {
		return EntityIDUnknown
	}
	return entityIDFromBytes([4]byte{b[0], b[1], b[2], b[3]})
}

func (d *decoder) guidPrefix() GUIDPrefix {
	var p GUIDPrefix
	b := d.take(12)
	if b != nil {
		copy(p[:], b)
	}
	return p
}

func (d *decoder) seqNum() SequenceNumber {
	high := d.i32()
	low := d.u32()
	return sequenceNumberFromParts(high, low)
}

func (d *decoder) seqNumSet() SequenceNumberSet {
	s := SequenceNumberSet{Base: d.seqNum(), NumBits: d.u32()}
	if s.NumBits > maxSetBits {
		if d.err == nil {
			d.err = fmt.Errorf("rtps: sequence number set with %d bits", s.NumBits)
		}
		return s
	}
	words := int(s.NumBits+31) / 32
	for i := 0; i < words; i++ {
		s.Bitmap = append(s.Bitmap, d.u32())
	}
	return s
}

func (d *decoder) timestamp() Time {
	return Time{Seconds: d.i32(), Fraction: d.u32()}
}

func (d *decoder) locator() Locator {
	l := Locator{Kind: LocatorKind(d.i32()), Port: d.u32()}
	if b := d.take(16); b != nil {
		copy(l.Address[:], b)
	}
	return l
}
