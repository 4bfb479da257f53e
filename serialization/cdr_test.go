package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

type shape struct {
	Color     string
	X         int32
	Y         int32
	ShapeSize int32
}

func TestMarshalShapeGolden(t *testing.T) {
	payload, err := Marshal(shape{Color: "RED", X: 10, Y: 20, ShapeSize: 30})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{
		0x00, 0x01, 0x00, 0x00, // CDR_LE encapsulation
		0x04, 0x00, 0x00, 0x00, // string length incl. NUL
		'R', 'E', 'D', 0x00,
		0x0a, 0x00, 0x00, 0x00,
		0x14, 0x00, 0x00, 0x00,
		0x1e, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(payload, want) {
		t.Fatalf("payload mismatch\n got %x\nwant %x", payload, want)
	}

	var got shape
	if err := Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != (shape{Color: "RED", X: 10, Y: 20, ShapeSize: 30}) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestAlignmentPadding(t *testing.T) {
	type padded struct {
		A uint8
		B uint32
		C uint8
		D uint64
	}
	body, err := MarshalBody(padded{A: 1, B: 2, C: 3, D: 4}, binary.LittleEndian)
	if err != nil {
		t.Fatalf("MarshalBody: %v", err)
	}
	want := []byte{
		1, 0, 0, 0,
		2, 0, 0, 0,
		3, 0, 0, 0, 0, 0, 0, 0,
		4, 0, 0, 0, 0, 0, 0, 0,
	}
	if !bytes.Equal(body, want) {
		t.Fatalf("body mismatch\n got %x\nwant %x", body, want)
	}
	var got padded
	if err := UnmarshalBody(body, binary.LittleEndian, &got); err != nil {
		t.Fatalf("UnmarshalBody: %v", err)
	}
	if got != (padded{A: 1, B: 2, C: 3, D: 4}) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCompositeRoundTrip(t *testing.T) {
	type inner struct {
		Name string
		IDs  []uint16
	}
	type outer struct {
		Flag    bool
		Inner   inner
		Fixed   [3]int32
		Blob    []byte
		Ratio   float64
		Samples []inner
	}
	in := outer{
		Flag:    true,
		Inner:   inner{Name: "temperature", IDs: []uint16{7, 11}},
		Fixed:   [3]int32{-1, 0, 1},
		Blob:    []byte{0xde, 0xad, 0xbe, 0xef},
		Ratio:   3.5,
		Samples: []inner{{Name: "a"}, {Name: "bb", IDs: []uint16{1}}},
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		body, err := MarshalBody(in, order)
		if err != nil {
			t.Fatalf("MarshalBody (%v): %v", order, err)
		}
		var out outer
		if err := UnmarshalBody(body, order, &out); err != nil {
			t.Fatalf("UnmarshalBody (%v): %v", order, err)
		}
		if out.Inner.Name != in.Inner.Name || out.Ratio != in.Ratio ||
			!bytes.Equal(out.Blob, in.Blob) || len(out.Samples) != 2 ||
			out.Samples[1].Name != "bb" || out.Fixed != in.Fixed {
			t.Fatalf("round trip mismatch (%v): %+v", order, out)
		}
	}
}

func TestBigEndianEncapsulation(t *testing.T) {
	payload := []byte{
		0x00, 0x00, 0x00, 0x00, // CDR_BE
		0x00, 0x00, 0x00, 0x2a,
	}
	var v struct{ N uint32 }
	if err := Unmarshal(payload, &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.N != 42 {
		t.Fatalf("N = %d, want 42", v.N)
	}
}

func TestMarshalBodyBigEndian(t *testing.T) {
	type mixed struct {
		A uint16
		B uint32
		C uint64
	}
	body, err := MarshalBody(mixed{A: 0x0102, B: 0x03040506, C: 0x0708090a0b0c0d0e}, binary.BigEndian)
	if err != nil {
		t.Fatalf("MarshalBody: %v", err)
	}
	want := []byte{
		0x01, 0x02, 0x00, 0x00,
		0x03, 0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e,
	}
	if !bytes.Equal(body, want) {
		t.Fatalf("body mismatch\n got %x\nwant %x", body, want)
	}
}

func TestOversizedSequenceRejected(t *testing.T) {
	// A four-byte body claiming a fifty-million element sequence must be
	// rejected up front rather than allocated.
	var v struct{ Values []uint64 }
	body := []byte{0x80, 0xf0, 0xfa, 0x02} // 50,000,000 little-endian
	if err := UnmarshalBody(body, binary.LittleEndian, &v); err == nil {
		t.Fatal("want error for sequence length beyond remaining input")
	}
	if v.Values != nil {
		t.Fatalf("Values = %v, want nil", v.Values)
	}
}

func TestRejectsPlatformWidthInt(t *testing.T) {
	_, err := Marshal(struct{ N int }{N: 1})
	var ute *UnsupportedTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("err = %v, want UnsupportedTypeError", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	var v struct{ S string }
	if err := Unmarshal([]byte{0x00, 0x01, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 'x'}, &v); err == nil {
		t.Fatal("want error for truncated string body")
	}
	if err := Unmarshal([]byte{0x12, 0x34, 0x00, 0x00}, &v); err == nil {
		t.Fatal("want error for unknown representation identifier")
	}
	if err := Unmarshal([]byte{0x00}, &v); err == nil {
		t.Fatal("want error for short payload")
	}
}
