package serialization

import "encoding/binary"

// Representation identifiers from the RTPS PSM. The first two bytes of every
// serialized payload name the encoding of what follows.
const (
	CDRBigEndian      uint16 = 0x0000
	CDRLittleEndian   uint16 = 0x0001
	PLCDRBigEndian    uint16 = 0x0002
	PLCDRLittleEndian uint16 = 0x0003
)

const encapsulationHeaderSize = 4

// Marshal serializes v as a little-endian CDR payload with the four-byte
// encapsulation header (representation identifier plus options).
func Marshal(v any) ([]byte, error) {
	body, err := MarshalBody(v, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	out := make([]byte, encapsulationHeaderSize, encapsulationHeaderSize+len(body))
	binary.BigEndian.PutUint16(out[0:2], CDRLittleEndian)
	return append(out, body...), nil
}

// Unmarshal decodes an encapsulated payload into v, honoring the byte order
// declared by the representation identifier.
func Unmarshal(payload []byte, v any) error {
	order, body, err := SplitEncapsulation(payload)
	if err != nil {
		return err
	}
	return UnmarshalBody(body, order, v)
}

// SplitEncapsulation strips the encapsulation header and reports the byte
// order the body was written in. Parameter-list representations share the
// byte orders of their plain counterparts.
func SplitEncapsulation(payload []byte) (binary.ByteOrder, []byte, error) {
	if len(payload) < encapsulationHeaderSize {
		return nil, nil, decodeErrorf("payload shorter than encapsulation header: %d bytes", len(payload))
	}
	switch rep := binary.BigEndian.Uint16(payload[0:2]); rep {
	case CDRBigEndian, PLCDRBigEndian:
		return binary.BigEndian, payload[encapsulationHeaderSize:], nil
	case CDRLittleEndian, PLCDRLittleEndian:
		return binary.LittleEndian, payload[encapsulationHeaderSize:], nil
	default:
		return nil, nil, decodeErrorf("unknown representation identifier 0x%04x", rep)
	}
}
