package rtps

import "fmt"

// SequenceNumber is a 64-bit sequence number, transmitted as separate
// high and low 32-bit halves.
type SequenceNumber int64

const (
	SequenceNumberUnknown SequenceNumber = -1 << 32 // high = -1, low = 0
	sequenceNumberMin     SequenceNumber = 1
)

func (sn SequenceNumber) high() int32 { return int32(sn >> 32) }
func (sn SequenceNumber) low() uint32 { return uint32(sn) }

func sequenceNumberFromParts(high int32, low uint32) SequenceNumber {
	return SequenceNumber(int64(high)<<32 | int64(low))
}

// SequenceNumberSet is a compact set of sequence numbers: a base plus a
// bitmap covering at most 256 numbers starting at the base.
type SequenceNumberSet struct {
	Base    SequenceNumber
	NumBits uint32
	Bitmap  []uint32
}

const maxSetBits = 256

// NewSequenceNumberSet returns an empty set anchored at base.
func NewSequenceNumberSet(base SequenceNumber) SequenceNumberSet {
	return SequenceNumberSet{Base: base}
}

// Insert adds sn to the set. Numbers below the base or beyond the 256-bit
// window are ignored and reported with a false return.
func (s *SequenceNumberSet) Insert(sn SequenceNumber) bool {
	if sn < s.Base {
		return false
	}
	offset := uint32(sn - s.Base)
	if offset >= maxSetBits {
		return false
	}
	if offset >= s.NumBits {
		s.NumBits = offset + 1
	}
	words := int(s.NumBits+31) / 32
	for len(s.Bitmap) < words {
		s.Bitmap = append(s.Bitmap, 0)
	}
	// Bit 0 of the set is the most significant bit of word 0, per the PSM.
	s.Bitmap[offset/32] |= 1 << (31 - offset%32)
	return true
}

// Contains reports whether sn is in the set.
func (s SequenceNumberSet) Contains(sn SequenceNumber) bool {
	if sn < s.Base {
		return false
	}
	offset := uint32(sn - s.Base)
	if offset >= s.NumBits || int(offset/32) >= len(s.Bitmap) {
		return false
	}
	return s.Bitmap[offset/32]&(1<<(31-offset%32)) != 0
}

// IsEmpty reports whether no bits are set.
func (s SequenceNumberSet) IsEmpty() bool {
	for _, w := range s.Bitmap {
		if w != 0 {
			return false
		}
	}
	return true
}

// Each calls fn for every sequence number in the set, in increasing order.
func (s SequenceNumberSet) Each(fn func(SequenceNumber)) {
	for off := uint32(0); off < s.NumBits; off++ {
		if int(off/32) < len(s.Bitmap) && s.Bitmap[off/32]&(1<<(31-off%32)) != 0 {
			fn(s.Base + SequenceNumber(off))
		}
	}
}

func (s SequenceNumberSet) String() string {
	return fmt.Sprintf("SnSet{base=%d bits=%d}", s.Base, s.NumBits)
}

func (s SequenceNumberSet) wireSize() int {
	return 12 + 4*int((s.NumBits+31)/32)
}
