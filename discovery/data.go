// Package discovery implements the RTPS builtin discovery protocols: SPDP
// participant announcements and SEDP endpoint exchange, plus the lease
// bookkeeping that detects departed participants.
package discovery

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/serialization"
)

// Builtin endpoint availability bits advertised in SPDP.
const (
	EndpointParticipantAnnouncer     uint32 = 1 << 0
	EndpointParticipantDetector      uint32 = 1 << 1
	EndpointPublicationsAnnouncer    uint32 = 1 << 2
	EndpointPublicationsDetector     uint32 = 1 << 3
	EndpointSubscriptionsAnnouncer   uint32 = 1 << 4
	EndpointSubscriptionsDetector    uint32 = 1 << 5
	EndpointParticipantMessageWriter uint32 = 1 << 10
	EndpointParticipantMessageReader uint32 = 1 << 11
)

// DefaultBuiltinEndpoints is what a full participant advertises.
const DefaultBuiltinEndpoints = EndpointParticipantAnnouncer |
	EndpointParticipantDetector |
	EndpointPublicationsAnnouncer |
	EndpointPublicationsDetector |
	EndpointSubscriptionsAnnouncer |
	EndpointSubscriptionsDetector |
	EndpointParticipantMessageWriter |
	EndpointParticipantMessageReader

// Token is an opaque credential carried through discovery by the security
// plugins.
type Token struct {
	ClassID string
}

// ParticipantData is the payload of one SPDP announcement.
type ParticipantData struct {
	GUID                 rtps.GUID
	DomainID             uint16
	ProtocolVersion      rtps.ProtocolVersion
	VendorID             rtps.VendorID
	ExpectsInlineQos     bool
	MetatrafficUnicast   []rtps.Locator
	MetatrafficMulticast []rtps.Locator
	DefaultUnicast       []rtps.Locator
	DefaultMulticast     []rtps.Locator
	LeaseDuration        rtps.Duration
	BuiltinEndpoints     uint32
	EntityName           string
	IdentityToken        *Token
	PermissionsToken     *Token
}

// EndpointData is the payload of one SEDP publication or subscription
// announcement.
type EndpointData struct {
	GUID             rtps.GUID
	TopicName        string
	TypeName         string
	QoS              qos.Policies
	UnicastLocators  []rtps.Locator
	MulticastLocator *rtps.Locator
}

const plCDRLittleEndian = 0x0003

func encapsulate(pl rtps.ParameterList) []byte {
	body := pl.MarshalPLCDR(binary.LittleEndian)
	out := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint16(out[0:2], plCDRLittleEndian)
	return append(out, body...)
}

func splitPayload(payload []byte) (rtps.ParameterList, binary.ByteOrder, error) {
	order, body, err := serialization.SplitEncapsulation(payload)
	if err != nil {
		return rtps.ParameterList{}, nil, err
	}
	pl, err := rtps.ParsePLCDR(body, order)
	return pl, order, err
}

func cdr(v any) []byte {
	b, err := serialization.MarshalBody(v, binary.LittleEndian)
	if err != nil {
		// Discovery payload fields are fixed shapes; a marshal failure is
		// a programming error.
		panic(fmt.Sprintf("discovery: marshal %T: %v", v, err))
	}
	return b
}

// Marshal serializes the announcement as an encapsulated PL_CDR payload.
func (p ParticipantData) Marshal() []byte {
	var pl rtps.ParameterList
	pl.Add(rtps.PIDProtocolVersion, cdr(p.ProtocolVersion))
	pl.Add(rtps.PIDVendorID, cdr(p.VendorID))
	pl.Add(rtps.PIDParticipantGUID, cdr(p.GUID))
	pl.Add(rtps.PIDDomainID, cdr(uint32(p.DomainID)))
	pl.Add(rtps.PIDExpectsInlineQos, cdr(p.ExpectsInlineQos))
	for _, l := range p.MetatrafficUnicast {
		pl.Add(rtps.PIDMetatrafficUnicastLocator, cdr(l))
	}
	for _, l := range p.MetatrafficMulticast {
		pl.Add(rtps.PIDMetatrafficMulticastLocator, cdr(l))
	}
	for _, l := range p.DefaultUnicast {
		pl.Add(rtps.PIDDefaultUnicastLocator, cdr(l))
	}
	for _, l := range p.DefaultMulticast {
		pl.Add(rtps.PIDMulticastLocator, cdr(l))
	}
	pl.Add(rtps.PIDParticipantLeaseDuration, cdr(p.LeaseDuration))
	pl.Add(rtps.PIDBuiltinEndpointSet, cdr(p.BuiltinEndpoints))
	if p.EntityName != "" {
		pl.Add(rtps.PIDEntityName, cdr(p.EntityName))
	}
	if p.IdentityToken != nil {
		pl.Add(rtps.PIDIdentityToken, cdr(*p.IdentityToken))
	}
	if p.PermissionsToken != nil {
		pl.Add(rtps.PIDPermissionsToken, cdr(*p.PermissionsToken))
	}
	return encapsulate(pl)
}

// ParseParticipantData decodes one SPDP payload. The participant GUID is
// mandatory; everything else falls back to protocol defaults.
func ParseParticipantData(payload []byte) (ParticipantData, error) {
	pl, order, err := splitPayload(payload)
	if err != nil {
		return ParticipantData{}, err
	}

	p := ParticipantData{
		ProtocolVersion: rtps.ProtocolVersion24,
		LeaseDuration:   rtps.DurationFromStd(100 * time.Second),
	}
	val, ok := pl.Get(rtps.PIDParticipantGUID)
	if !ok {
		return ParticipantData{}, fmt.Errorf("discovery: SPDP payload without participant GUID")
	}
	if err := serialization.UnmarshalBody(val, order, &p.GUID); err != nil {
		return ParticipantData{}, fmt.Errorf("discovery: participant GUID: %w", err)
	}

	decode := func(id rtps.ParameterID, dst any) {
		if v, ok := pl.Get(id); ok {
			serialization.UnmarshalBody(v, order, dst)
		}
	}
	decode(rtps.PIDProtocolVersion, &p.ProtocolVersion)
	decode(rtps.PIDVendorID, &p.VendorID)
	var domain uint32
	decode(rtps.PIDDomainID, &domain)
	p.DomainID = uint16(domain)
	decode(rtps.PIDExpectsInlineQos, &p.ExpectsInlineQos)
	decode(rtps.PIDParticipantLeaseDuration, &p.LeaseDuration)
	decode(rtps.PIDBuiltinEndpointSet, &p.BuiltinEndpoints)
	decode(rtps.PIDEntityName, &p.EntityName)

	locators := func(id rtps.ParameterID) []rtps.Locator {
		var out []rtps.Locator
		for _, v := range pl.GetAll(id) {
			var l rtps.Locator
			if serialization.UnmarshalBody(v, order, &l) == nil {
				out = append(out, l)
			}
		}
		return out
	}
	p.MetatrafficUnicast = locators(rtps.PIDMetatrafficUnicastLocator)
	p.MetatrafficMulticast = locators(rtps.PIDMetatrafficMulticastLocator)
	p.DefaultUnicast = locators(rtps.PIDDefaultUnicastLocator)
	p.DefaultMulticast = locators(rtps.PIDMulticastLocator)

	if v, ok := pl.Get(rtps.PIDIdentityToken); ok {
		var tok Token
		if serialization.UnmarshalBody(v, order, &tok) == nil {
			p.IdentityToken = &tok
		}
	}
	if v, ok := pl.Get(rtps.PIDPermissionsToken); ok {
		var tok Token
		if serialization.UnmarshalBody(v, order, &tok) == nil {
			p.PermissionsToken = &tok
		}
	}
	return p, nil
}

// Marshal serializes the endpoint announcement as an encapsulated PL_CDR
// payload.
func (e EndpointData) Marshal() []byte {
	var pl rtps.ParameterList
	pl.Add(rtps.PIDEndpointGUID, cdr(e.GUID))
	pl.Add(rtps.PIDTopicName, cdr(e.TopicName))
	pl.Add(rtps.PIDTypeName, cdr(e.TypeName))
	for _, l := range e.UnicastLocators {
		pl.Add(rtps.PIDUnicastLocator, cdr(l))
	}
	if e.MulticastLocator != nil {
		pl.Add(rtps.PIDMulticastLocator, cdr(*e.MulticastLocator))
	}
	addQosParams(&pl, e.QoS)
	return encapsulate(pl)
}

// ParseEndpointData decodes one SEDP payload.
func ParseEndpointData(payload []byte) (EndpointData, error) {
	pl, order, err := splitPayload(payload)
	if err != nil {
		return EndpointData{}, err
	}

	var e EndpointData
	val, ok := pl.Get(rtps.PIDEndpointGUID)
	if !ok {
		return EndpointData{}, fmt.Errorf("discovery: SEDP payload without endpoint GUID")
	}
	if err := serialization.UnmarshalBody(val, order, &e.GUID); err != nil {
		return EndpointData{}, fmt.Errorf("discovery: endpoint GUID: %w", err)
	}
	if v, ok := pl.Get(rtps.PIDTopicName); ok {
		serialization.UnmarshalBody(v, order, &e.TopicName)
	}
	if v, ok := pl.Get(rtps.PIDTypeName); ok {
		serialization.UnmarshalBody(v, order, &e.TypeName)
	}
	for _, v := range pl.GetAll(rtps.PIDUnicastLocator) {
		var l rtps.Locator
		if serialization.UnmarshalBody(v, order, &l) == nil {
			e.UnicastLocators = append(e.UnicastLocators, l)
		}
	}
	if v, ok := pl.Get(rtps.PIDMulticastLocator); ok {
		var l rtps.Locator
		if serialization.UnmarshalBody(v, order, &l) == nil {
			e.MulticastLocator = &l
		}
	}
	e.QoS = qosFromParams(pl, order)
	return e, nil
}
