package rtps

import (
	"encoding/binary"
	"testing"
)

func TestSequenceNumberParts(t *testing.T) {
	cases := []struct {
		sn   SequenceNumber
		high int32
		low  uint32
	}{
		{0, 0, 0},
		{1, 0, 1},
		{42, 0, 42},
		{1 << 32, 1, 0},
		{(5 << 32) | 7, 5, 7},
		{SequenceNumberUnknown, -1, 0},
	}
	for _, c := range cases {
		if c.sn.high() != c.high || c.sn.low() != c.low {
			t.Errorf("%d: parts = (%d,%d), want (%d,%d)", c.sn, c.sn.high(), c.sn.low(), c.high, c.low)
		}
		if got := sequenceNumberFromParts(c.high, c.low); got != c.sn {
			t.Errorf("fromParts(%d,%d) = %d, want %d", c.high, c.low, got, c.sn)
		}
	}
}

func TestSequenceNumberSet(t *testing.T) {
	s := NewSequenceNumberSet(10)

	t.Run("insert and contains", func(t *testing.T) {
		for _, sn := range []SequenceNumber{10, 12, 41, 265} {
			if !s.Insert(sn) {
				t.Errorf("Insert(%d) rejected", sn)
			}
		}
		for _, sn := range []SequenceNumber{10, 12, 41, 265} {
			if !s.Contains(sn) {
				t.Errorf("Contains(%d) = false", sn)
			}
		}
		for _, sn := range []SequenceNumber{9, 11, 13, 40, 42, 264} {
			if s.Contains(sn) {
				t.Errorf("Contains(%d) = true", sn)
			}
		}
	})

	t.Run("rejects out of window", func(t *testing.T) {
		if s.Insert(9) {
			t.Error("accepted below base")
		}
		if s.Insert(10 + maxSetBits) {
			t.Error("accepted beyond window")
		}
	})

	t.Run("each in order", func(t *testing.T) {
		var got []SequenceNumber
		s.Each(func(sn SequenceNumber) { got = append(got, sn) })
		want := []SequenceNumber{10, 12, 41, 265}
		if len(got) != len(want) {
			t.Fatalf("Each yielded %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Each yielded %v, want %v", got, want)
			}
		}
	})

	t.Run("wire round trip", func(t *testing.T) {
		e := newEncoder(binary.LittleEndian)
		e.seqNumSet(s)
		d := newDecoder(e.buf, binary.LittleEndian)
		back := d.seqNumSet()
		if d.err != nil {
			t.Fatalf("decode: %v", d.err)
		}
		if back.Base != s.Base || back.NumBits != s.NumBits {
			t.Errorf("round trip = %+v, want %+v", back, s)
		}
		for sn := s.Base; sn < s.Base+maxSetBits; sn++ {
			if back.Contains(sn) != s.Contains(sn) {
				t.Errorf("membership of %d changed", sn)
			}
		}
	})

	t.Run("empty set", func(t *testing.T) {
		empty := NewSequenceNumberSet(7)
		if !empty.IsEmpty() {
			t.Error("IsEmpty = false")
		}
		e := newEncoder(binary.LittleEndian)
		e.seqNumSet(empty)
		if len(e.buf) != 12 {
			t.Errorf("empty set wire size = %d, want 12", len(e.buf))
		}
	})
}

func TestHistoryCacheKeepLast(t *testing.T) {
	hc := NewHistoryCache(3)
	for sn := SequenceNumber(1); sn <= 5; sn++ {
		hc.Add(&CacheChange{SequenceNumber: sn})
	}
	if hc.Len() != 3 {
		t.Fatalf("Len = %d, want 3", hc.Len())
	}
	if hc.MinSeq() != 3 || hc.MaxSeq() != 5 {
		t.Errorf("range = [%d,%d], want [3,5]", hc.MinSeq(), hc.MaxSeq())
	}
	if hc.Get(2) != nil {
		t.Error("evicted change still present")
	}
	var order []SequenceNumber
	hc.Each(func(c *CacheChange) { order = append(order, c.SequenceNumber) })
	if len(order) != 3 || order[0] != 3 || order[2] != 5 {
		t.Errorf("Each order = %v", order)
	}
}

func TestHistoryCacheKeepAll(t *testing.T) {
	hc := NewHistoryCache(0)
	for sn := SequenceNumber(1); sn <= 100; sn++ {
		hc.Add(&CacheChange{SequenceNumber: sn})
	}
	if hc.Len() != 100 {
		t.Fatalf("Len = %d, want 100", hc.Len())
	}
	hc.RemoveBefore(51)
	if hc.Len() != 50 || hc.MinSeq() != 51 {
		t.Errorf("after RemoveBefore: len=%d min=%d", hc.Len(), hc.MinSeq())
	}
}
