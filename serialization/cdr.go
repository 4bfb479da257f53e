// Package serialization implements OMG CDR marshalling for Go values, plus
// the RTPS payload encapsulation that prefixes every serialized sample.
package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// UnsupportedTypeError is returned when a value cannot be represented in
// CDR. Platform-width int/uint are rejected on purpose: wire types must be
// fixed width.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("serialization: unsupported type %s", e.Type)
}

// A DecodeError reports malformed input.
type DecodeError struct {
	msg string
}

func (e *DecodeError) Error() string {
	return "serialization: " + e.msg
}

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{msg: fmt.Sprintf(format, args...)}
}

// MarshalBody encodes v as a CDR body in the given byte order, with
// alignment counted from the body start.
func MarshalBody(v any, order binary.ByteOrder) ([]byte, error) {
	e := &cdrEncoder{order: order}
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// UnmarshalBody decodes a CDR body into v, which must be a non-nil pointer.
func UnmarshalBody(data []byte, order binary.ByteOrder, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &UnsupportedTypeError{Type: reflect.TypeOf(v)}
	}
	d := &cdrDecoder{buf: data, order: order}
	return d.decode(rv.Elem())
}

type cdrEncoder struct {
	buf   []byte
	order binary.ByteOrder
}

func (e *cdrEncoder) align(n int) {
	for len(e.buf)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *cdrEncoder) u16(v uint16) {
	e.align(2)
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *cdrEncoder) u32(v uint32) {
	e.align(4)
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *cdrEncoder) u64(v uint64) {
	e.align(8)
	var b [8]byte
	e.order.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *cdrEncoder) encode(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		b := byte(0)
		if v.Bool() {
			b = 1
		}
		e.buf = append(e.buf, b)
	case reflect.Int8:
		e.buf = append(e.buf, byte(v.Int()))
	case reflect.Uint8:
		e.buf = append(e.buf, byte(v.Uint()))
	case reflect.Int16:
		e.u16(uint16(v.Int()))
	case reflect.Uint16:
		e.u16(uint16(v.Uint()))
	case reflect.Int32:
		e.u32(uint32(v.Int()))
	case reflect.Uint32:
		e.u32(uint32(v.Uint()))
	case reflect.Int64:
		e.u64(uint64(v.Int()))
	case reflect.Uint64:
		e.u64(v.Uint())
	case reflect.Float32:
		e.u32(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		e.u64(math.Float64bits(v.Float()))
	case reflect.String:
		s := v.String()
		e.u32(uint32(len(s) + 1))
		e.buf = append(e.buf, s...)
		e.buf = append(e.buf, 0)
	case reflect.Slice:
		e.u32(uint32(v.Len()))
		if v.Type().Elem().Kind() == reflect.Uint8 {
			e.buf = append(e.buf, v.Bytes()...)
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := e.encode(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := e.encode(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := e.encode(v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Pointer:
		if v.IsNil() {
			return &UnsupportedTypeError{Type: v.Type()}
		}
		return e.encode(v.Elem())
	default:
		return &UnsupportedTypeError{Type: v.Type()}
	}
	return nil
}

type cdrDecoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func (d *cdrDecoder) align(n int) {
	for d.pos%n != 0 {
		d.pos++
	}
}

func (d *cdrDecoder) need(n int) error {
	if d.pos+n > len(d.buf) {
		return decodeErrorf("truncated input at offset %d, need %d bytes", d.pos, n)
	}
	return nil
}

func (d *cdrDecoder) u16() (uint16, error) {
	d.align(2)
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := d.order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *cdrDecoder) u32() (uint32, error) {
	d.align(4)
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := d.order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *cdrDecoder) u64() (uint64, error) {
	d.align(8)
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := d.order.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *cdrDecoder) decode(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if err := d.need(1); err != nil {
			return err
		}
		v.SetBool(d.buf[d.pos] != 0)
		d.pos++
	case reflect.Int8:
		if err := d.need(1); err != nil {
			return err
		}
		v.SetInt(int64(int8(d.buf[d.pos])))
		d.pos++
	case reflect.Uint8:
		if err := d.need(1); err != nil {
			return err
		}
		v.SetUint(uint64(d.buf[d.pos]))
		d.pos++
	case reflect.Int16:
		u, err := d.u16()
		if err != nil {
			return err
		}
		v.SetInt(int64(int16(u)))
	case reflect.Uint16:
		u, err := d.u16()
		if err != nil {
			return err
		}
		v.SetUint(uint64(u))
	case reflect.Int32:
		u, err := d.u32()
		if err != nil {
			return err
		}
		v.SetInt(int64(int32(u)))
	case reflect.Uint32:
		u, err := d.u32()
		if err != nil {
			return err
		}
		v.SetUint(uint64(u))
	case reflect.Int64:
		u, err := d.u64()
		if err != nil {
			return err
		}
		v.SetInt(int64(u))
	case reflect.Uint64:
		u, err := d.u64()
		if err != nil {
			return err
		}
		v.SetUint(u)
	case reflect.Float32:
		u, err := d.u32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(math.Float32frombits(u)))
	case reflect.Float64:
		u, err := d.u64()
		if err != nil {
			return err
		}
		v.SetFloat(math.Float64frombits(u))
	case reflect.String:
		n, err := d.u32()
		if err != nil {
			return err
		}
		if n == 0 {
			return decodeErrorf("string with zero length at offset %d", d.pos)
		}
		if err := d.need(int(n)); err != nil {
			return err
		}
		// The declared length includes the NUL terminator.
		v.SetString(string(d.buf[d.pos : d.pos+int(n)-1]))
		d.pos += int(n)
	case reflect.Slice:
		n, err := d.u32()
		if err != nil {
			return err
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if err := d.need(int(n)); err != nil {
				return err
			}
			b := make([]byte, n)
			copy(b, d.buf[d.pos:])
			v.SetBytes(b)
			d.pos += int(n)
			return nil
		}
		// Every element occupies at least one byte, so a declared count
		// beyond the remaining input is bogus. Checking first keeps a
		// hostile length field from forcing a huge allocation.
		if uint64(n) > uint64(len(d.buf)-d.pos) {
			return decodeErrorf("sequence length %d exceeds %d remaining bytes at offset %d", n, len(d.buf)-d.pos, d.pos)
		}
		s := reflect.MakeSlice(v.Type(), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := d.decode(s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := d.decode(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := d.decode(v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Pointer:
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return d.decode(v.Elem())
	default:
		return &UnsupportedTypeError{Type: v.Type()}
	}
	return nil
}
