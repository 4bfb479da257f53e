package rtps

// Heartbeat announces the range of sequence numbers a Writer has available
// and solicits ACKNACKs from reliable Readers.
type Heartbeat struct {
	FlagsValue uint8
	ReaderID   EntityID
	WriterID   EntityID
	FirstSN    SequenceNumber
	LastSN     SequenceNumber
	Count      int32
}

// NewHeartbeat builds a little-endian HEARTBEAT.
func NewHeartbeat(readerID, writerID EntityID, first, last SequenceNumber, count int32, final bool) *Heartbeat {
	flags := FlagEndianLittle
	if final {
		flags |= FlagHeartbeatFinal
	}
	return &Heartbeat{
		FlagsValue: flags,
		ReaderID:   readerID,
		WriterID:   writerID,
		FirstSN:    first,
		LastSN:     last,
		Count:      count,
	}
}

func (h *Heartbeat) Kind() SubmessageKind   { return SubmessageHeartbeat }
func (h *Heartbeat) SubmessageFlags() uint8 { return h.FlagsValue }

// Final reports whether the writer does not require a response.
func (h *Heartbeat) Final() bool { return h.FlagsValue&FlagHeartbeatFinal != 0 }

// Liveliness reports whether the heartbeat asserts writer liveliness only.
func (h *Heartbeat) Liveliness() bool { return h.FlagsValue&FlagHeartbeatLiveliness != 0 }

func (h *Heartbeat) marshalBody(e *encoder) {
	e.entityID(h.ReaderID)
	e.entityID(h.WriterID)
	e.seqNum(h.FirstSN)
	e.seqNum(h.LastSN)
	e.i32(h.Count)
}

func parseHeartbeat(d *decoder, flags uint8) *Heartbeat {
	return &Heartbeat{
		FlagsValue: flags,
		ReaderID:   d.entityID(),
		WriterID:   d.entityID(),
		FirstSN:    d.seqNum(),
		LastSN:     d.seqNum(),
		Count:      d.i32(),
	}
}

// AckNack is the reliable Reader's response to a HEARTBEAT: the base of the
// reader state set acknowledges everything below it, the set bits request
// retransmission.
type AckNack struct {
	FlagsValue  uint8
	ReaderID    EntityID
	WriterID    EntityID
	ReaderSNSet SequenceNumberSet
	Count       int32
}

// NewAckNack builds a little-endian ACKNACK.
func NewAckNack(readerID, writerID EntityID, state SequenceNumberSet, count int32, final bool) *AckNack {
	flags := FlagEndianLittle
	if final {
		flags |= FlagAckNackFinal
	}
	return &AckNack{
		FlagsValue:  flags,
		ReaderID:    readerID,
		WriterID:    writerID,
		ReaderSNSet: state,
		Count:       count,
	}
}

func (a *AckNack) Kind() SubmessageKind   { return SubmessageAckNack }
func (a *AckNack) SubmessageFlags() uint8 { return a.FlagsValue }

// Final reports whether the reader expects no immediate heartbeat response.
func (a *AckNack) Final() bool { return a.FlagsValue&FlagAckNackFinal != 0 }

func (a *AckNack) marshalBody(e *encoder) {
	e.entityID(a.ReaderID)
	e.entityID(a.WriterID)
	e.seqNumSet(a.ReaderSNSet)
	e.i32(a.Count)
}

func parseAckNack(d *decoder, flags uint8) *AckNack {
	return &AckNack{
		FlagsValue:  flags,
		ReaderID:    d.entityID(),
		WriterID:    d.entityID(),
		ReaderSNSet: d.seqNumSet(),
		Count:       d.i32(),
	}
}
