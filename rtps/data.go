package rtps

// Data carries one serialized sample (or key) from a Writer to a Reader.
type Data struct {
	FlagsValue uint8
	ReaderID   EntityID
	WriterID   EntityID
	WriterSN   SequenceNumber
	InlineQos  ParameterList
	// Payload is the serialized payload including its encapsulation
	// header. Empty when the submessage carries neither data nor key.
	Payload []byte
}

// NewData builds a little-endian DATA submessage with a data payload.
func NewData(readerID, writerID EntityID, sn SequenceNumber, payload []byte) *Data {
	flags := FlagEndianLittle
	if len(payload) > 0 {
		flags |= FlagDataPayload
	}
	return &Data{
		FlagsValue: flags,
		ReaderID:   readerID,
		WriterID:   writerID,
		WriterSN:   sn,
		Payload:    payload,
	}
}

// WithInlineQos attaches an inline QoS parameter list.
func (dt *Data) WithInlineQos(pl ParameterList) *Data {
	dt.InlineQos = pl
	dt.FlagsValue |= FlagDataInlineQos
	return dt
}

// MarkKeyOnly flags the payload as a serialized key instead of data.
func (dt *Data) MarkKeyOnly() *Data {
	dt.FlagsValue &^= FlagDataPayload
	dt.FlagsValue |= FlagDataKey
	return dt
}

func (dt *Data) Kind() SubmessageKind   { return SubmessageData }
func (dt *Data) SubmessageFlags() uint8 { return dt.FlagsValue }

// HasPayload reports whether the submessage carries a data payload.
func (dt *Data) HasPayload() bool { return dt.FlagsValue&FlagDataPayload != 0 }

// HasKey reports whether the payload is a serialized key.
func (dt *Data) HasKey() bool { return dt.FlagsValue&FlagDataKey != 0 }

// octetsToInlineQos counts from its own field end to the inline QoS
// position: readerID + writerID + writerSN.
const dataPreludeOctets = 16

func (dt *Data) marshalBody(e *encoder) {
	e.u16(0) // extra flags
	e.u16(dataPreludeOctets)
	e.entityID(dt.ReaderID)
	e.entityID(dt.WriterID)
	e.seqNum(dt.WriterSN)
	if dt.FlagsValue&FlagDataInlineQos != 0 {
		dt.InlineQos.marshal(e)
	}
	if dt.FlagsValue&(FlagDataPayload|FlagDataKey) != 0 {
		e.bytes(dt.Payload)
	}
}

func parseData(d *decoder, flags uint8) *Data {
	dt := &Data{FlagsValue: flags}
	_ = d.u16() // extra flags
	toInlineQos := int(d.u16())
	// Skip any extension octets between the prelude and inline QoS.
	prefixStart := d.pos
	dt.ReaderID = d.entityID()
	dt.WriterID = d.entityID()
	dt.WriterSN = d.seqNum()
	if skip := toInlineQos - (d.pos - prefixStart); skip > 0 {
		d.take(skip)
	}
	if flags&FlagDataInlineQos != 0 {
		dt.InlineQos = parseParameterList(d)
	}
	if flags&(FlagDataPayload|FlagDataKey) != 0 {
		payload := d.take(d.remaining())
		dt.Payload = make([]byte, len(payload))
		copy(dt.Payload, payload)
	}
	return dt
}
