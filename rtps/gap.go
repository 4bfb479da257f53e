package rtps

// Gap tells a Reader that a set of sequence numbers is no longer relevant.
// The irrelevant numbers are the contiguous range GapStart <= sn <
// GapList.Base plus any numbers set in GapList itself.
type Gap struct {
	FlagsValue uint8
	ReaderID   EntityID
	WriterID   EntityID
	GapStart   SequenceNumber
	GapList    SequenceNumberSet
}

// NewGap builds a little-endian GAP.
func NewGap(readerID, writerID EntityID, start SequenceNumber, list SequenceNumberSet) *Gap {
	return &Gap{
		FlagsValue: FlagEndianLittle,
		ReaderID:   readerID,
		WriterID:   writerID,
		GapStart:   start,
		GapList:    list,
	}
}

func (g *Gap) Kind() SubmessageKind   { return SubmessageGap }
func (g *Gap) SubmessageFlags() uint8 { return g.FlagsValue }

// Irrelevant calls fn for each sequence number the gap covers, in order.
func (g *Gap) Irrelevant(fn func(SequenceNumber)) {
	for sn := g.GapStart; sn < g.GapList.Base; sn++ {
		fn(sn)
	}
	g.GapList.Each(fn)
}

func (g *Gap) marshalBody(e *encoder) {
	e.entityID(g.ReaderID)
	e.entityID(g.WriterID)
	e.seqNum(g.GapStart)
	e.seqNumSet(g.GapList)
}

func parseGap(d *decoder, flags uint8) *Gap {
	return &Gap{
		FlagsValue: flags,
		ReaderID:   d.entityID(),
		WriterID:   d.entityID(),
		GapStart:   d.seqNum(),
		GapList:    d.seqNumSet(),
	}
}

// InfoTimestamp sets the source timestamp for the submessages that follow.
type InfoTimestamp struct {
	FlagsValue uint8
	Timestamp  Time
}

// NewInfoTimestamp builds a little-endian INFO_TS.
func NewInfoTimestamp(t Time) *InfoTimestamp {
	return &InfoTimestamp{FlagsValue: FlagEndianLittle, Timestamp: t}
}

func (it *InfoTimestamp) Kind() SubmessageKind   { return SubmessageInfoTimestamp }
func (it *InfoTimestamp) SubmessageFlags() uint8 { return it.FlagsValue }

// Invalidate reports whether the timestamp is withdrawn rather than set.
func (it *InfoTimestamp) Invalidate() bool { return it.FlagsValue&FlagInfoTsInvalidate != 0 }

func (it *InfoTimestamp) marshalBody(e *encoder) {
	if !it.Invalidate() {
		e.timestamp(it.Timestamp)
	}
}

func parseInfoTimestamp(d *decoder, flags uint8) *InfoTimestamp {
	it := &InfoTimestamp{FlagsValue: flags}
	if flags&FlagInfoTsInvalidate == 0 {
		it.Timestamp = d.timestamp()
	}
	return it
}

// InfoDestination redirects the submessages that follow to the participant
// with the given prefix.
type InfoDestination struct {
	FlagsValue uint8
	Prefix     GUIDPrefix
}

// NewInfoDestination builds a little-endian INFO_DST.
func NewInfoDestination(prefix GUIDPrefix) *InfoDestination {
	return &InfoDestination{FlagsValue: FlagEndianLittle, Prefix: prefix}
}

func (id *InfoDestination) Kind() SubmessageKind   { return SubmessageInfoDest }
func (id *InfoDestination) SubmessageFlags() uint8 { return id.FlagsValue }

func (id *InfoDestination) marshalBody(e *encoder) {
	e.guidPrefix(id.Prefix)
}

func parseInfoDestination(d *decoder, flags uint8) *InfoDestination {
	return &InfoDestination{FlagsValue: flags, Prefix: d.guidPrefix()}
}
