package rtps

import "time"

// ReaderProxy is a Writer's view of one matched remote Reader.
type ReaderProxy struct {
	GUID              GUID
	Reliable          bool
	ExpectsInlineQos  bool
	UnicastLocators   []Locator
	MulticastLocators []Locator

	// highestAcked is the highest sequence number the reader has
	// acknowledged (everything at or below is received).
	highestAcked SequenceNumber
	// requested holds explicitly nacked sequence numbers not yet resent.
	requested map[SequenceNumber]bool
	// lastAckNackCount rejects reordered ACKNACKs.
	lastAckNackCount int32
}

// NewReaderProxy builds a proxy for a discovered reader.
func NewReaderProxy(guid GUID, reliable bool, unicast, multicast []Locator) *ReaderProxy {
	return &ReaderProxy{
		GUID:              guid,
		Reliable:          reliable,
		UnicastLocators:   unicast,
		MulticastLocators: multicast,
		requested:         make(map[SequenceNumber]bool),
		lastAckNackCount:  -1,
	}
}

// Locators returns the preferred destination locators: unicast when known,
// multicast otherwise.
func (rp *ReaderProxy) Locators() []Locator {
	if len(rp.UnicastLocators) > 0 {
		return rp.UnicastLocators
	}
	return rp.MulticastLocators
}

// WriterProxy is a Reader's view of one matched remote Writer.
type WriterProxy struct {
	GUID              GUID
	Reliable          bool
	UnicastLocators   []Locator
	MulticastLocators []Locator

	// lastDelivered is the highest sequence number delivered to the DDS
	// layer (or skipped as irrelevant), contiguous from the start.
	lastDelivered SequenceNumber
	// pending buffers out-of-order reliable arrivals.
	pending map[SequenceNumber]*CacheChange
	// irrelevant marks gap-covered numbers not yet reached.
	irrelevant map[SequenceNumber]bool
	// Heartbeat bookkeeping.
	firstAvailable     SequenceNumber
	lastAvailable      SequenceNumber
	lastHeartbeatCount int32
	// lastSeen is the last time any traffic arrived from this writer.
	lastSeen time.Time
}

// NewWriterProxy builds a proxy for a discovered writer.
func NewWriterProxy(guid GUID, reliable bool, unicast, multicast []Locator) *WriterProxy {
	return &WriterProxy{
		GUID:               guid,
		Reliable:           reliable,
		UnicastLocators:    unicast,
		MulticastLocators:  multicast,
		pending:            make(map[SequenceNumber]*CacheChange),
		irrelevant:         make(map[SequenceNumber]bool),
		lastHeartbeatCount: -1,
	}
}

// Locators returns the destination locators for responses to this writer.
func (wp *WriterProxy) Locators() []Locator {
	if len(wp.UnicastLocators) > 0 {
		return wp.UnicastLocators
	}
	return wp.MulticastLocators
}

// missing builds the ACKNACK reader state: base is the first not-received
// number, bits request everything known available but not received.
func (wp *WriterProxy) missing() SequenceNumberSet {
	base := wp.lastDelivered + 1
	set := NewSequenceNumberSet(base)
	for sn := base; sn <= wp.lastAvailable && sn < base+maxSetBits; sn++ {
		if _, ok := wp.pending[sn]; ok {
			continue
		}
		if wp.irrelevant[sn] {
			continue
		}
		set.Insert(sn)
	}
	return set
}
