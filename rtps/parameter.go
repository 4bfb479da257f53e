package rtps

import (
	"encoding/binary"
	"fmt"
)

// ParameterID identifies an entry in a parameter list (inline QoS or
// discovery data).
type ParameterID uint16

const (
	PIDPad                         ParameterID = 0x0000
	PIDSentinel                    ParameterID = 0x0001
	PIDParticipantLeaseDuration    ParameterID = 0x0002
	PIDTimeBasedFilter             ParameterID = 0x0004
	PIDTopicName                   ParameterID = 0x0005
	PIDOwnershipStrength           ParameterID = 0x0006
	PIDTypeName                    ParameterID = 0x0007
	PIDDomainID                    ParameterID = 0x000f
	PIDProtocolVersion             ParameterID = 0x0015
	PIDVendorID                    ParameterID = 0x0016
	PIDReliability                 ParameterID = 0x001a
	PIDLiveliness                  ParameterID = 0x001b
	PIDDurability                  ParameterID = 0x001d
	PIDOwnership                   ParameterID = 0x001f
	PIDPresentation                ParameterID = 0x0021
	PIDDeadline                    ParameterID = 0x0023
	PIDDestinationOrder            ParameterID = 0x0025
	PIDLatencyBudget               ParameterID = 0x0027
	PIDPartition                   ParameterID = 0x0029
	PIDLifespan                    ParameterID = 0x002b
	PIDUnicastLocator              ParameterID = 0x002f
	PIDMulticastLocator            ParameterID = 0x0030
	PIDDefaultUnicastLocator       ParameterID = 0x0031
	PIDMetatrafficUnicastLocator   ParameterID = 0x0032
	PIDMetatrafficMulticastLocator ParameterID = 0x0033
	PIDHistory                     ParameterID = 0x0040
	PIDExpectsInlineQos            ParameterID = 0x0043
	PIDParticipantGUID             ParameterID = 0x0050
	PIDGroupGUID                   ParameterID = 0x0052
	PIDBuiltinEndpointSet          ParameterID = 0x0058
	PIDPropertyList                ParameterID = 0x0059
	PIDEndpointGUID                ParameterID = 0x005a
	PIDEntityName                  ParameterID = 0x0062
	PIDKeyHash                     ParameterID = 0x0070
	PIDStatusInfo                  ParameterID = 0x0071
	PIDIdentityToken               ParameterID = 0x1001
	PIDPermissionsToken            ParameterID = 0x1002
)

// Parameter is one pid/value entry. Values are stored unpadded; the codec
// pads to the 4-byte grid on the wire.
type Parameter struct {
	ID    ParameterID
	Value []byte
}

// ParameterList is the ordered list of parameters ending with PID_SENTINEL
// on the wire.
type ParameterList struct {
	Params []Parameter
}

// Add appends a parameter.
func (pl *ParameterList) Add(id ParameterID, value []byte) {
	pl.Params = append(pl.Params, Parameter{ID: id, Value: value})
}

// Get returns the first parameter with the given id.
func (pl *ParameterList) Get(id ParameterID) ([]byte, bool) {
	for _, p := range pl.Params {
		if p.ID == id {
			return p.Value, true
		}
	}
	return nil, false
}

// GetAll returns every value recorded under id, in order.
func (pl *ParameterList) GetAll(id ParameterID) [][]byte {
	var out [][]byte
	for _, p := range pl.Params {
		if p.ID == id {
			out = append(out, p.Value)
		}
	}
	return out
}

func (pl *ParameterList) marshal(e *encoder) {
	for _, p := range pl.Params {
		padded := (len(p.Value) + 3) &^ 3
		e.u16(uint16(p.ID))
		e.u16(uint16(padded))
		e.bytes(p.Value)
		for i := len(p.Value); i < padded; i++ {
			e.u8(0)
		}
	}
	e.u16(uint16(PIDSentinel))
	e.u16(0)
}

func parseParameterList(d *decoder) ParameterList {
	var pl ParameterList
	for {
		id := ParameterID(d.u16())
		length := int(d.u16())
		if d.err != nil || id == PIDSentinel {
			return pl
		}
		val := d.take(length)
		if d.err != nil {
			return pl
		}
		if id != PIDPad {
			v := make([]byte, length)
			copy(v, val)
			pl.Add(id, v)
		}
	}
}

// MarshalPLCDR encodes the list as a PL_CDR body in the given byte order,
// without an encapsulation header.
func (pl ParameterList) MarshalPLCDR(order binary.ByteOrder) []byte {
	e := newEncoder(order)
	pl.marshal(e)
	return e.buf
}

// ParsePLCDR decodes a PL_CDR body. Unknown parameter ids are kept so
// callers can still inspect them.
func ParsePLCDR(data []byte, order binary.ByteOrder) (ParameterList, error) {
	d := newDecoder(data, order)
	pl := parseParameterList(d)
	return pl, d.err
}

func (pl ParameterList) String() string {
	return fmt.Sprintf("ParameterList(%d params)", len(pl.Params))
}
