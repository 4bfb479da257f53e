package access

// Attribute mask bits exchanged through secured discovery. The high bit
// flags the mask itself as meaningful; a peer that does not set it sent no
// attributes at all.
const (
	MaskValid uint32 = 0x8000_0000

	ParticipantRTPSProtected       uint32 = 1 << 0
	ParticipantDiscoveryProtected  uint32 = 1 << 1
	ParticipantLivelinessProtected uint32 = 1 << 2

	EndpointReadProtected       uint32 = 1 << 0
	EndpointWriteProtected      uint32 = 1 << 1
	EndpointDiscoveryProtected  uint32 = 1 << 2
	EndpointSubmessageProtected uint32 = 1 << 3
	EndpointPayloadProtected    uint32 = 1 << 4
	EndpointKeyProtected        uint32 = 1 << 5
	EndpointLivelinessProtected uint32 = 1 << 6
)

// PermissionsTokenClassID names the builtin access control plugin in
// discovery tokens.
const PermissionsTokenClassID = "DDS:Access:Permissions:1.0"

// ParticipantSecurityAttributes is what governance dictates for one
// participant in one domain.
type ParticipantSecurityAttributes struct {
	AllowUnauthenticated  bool
	IsRTPSProtected       bool
	IsDiscoveryProtected  bool
	IsLivelinessProtected bool
}

// Mask folds the attributes into the wire mask.
func (a ParticipantSecurityAttributes) Mask() uint32 {
	m := MaskValid
	if a.IsRTPSProtected {
		m |= ParticipantRTPSProtected
	}
	if a.IsDiscoveryProtected {
		m |= ParticipantDiscoveryProtected
	}
	if a.IsLivelinessProtected {
		m |= ParticipantLivelinessProtected
	}
	return m
}

// ParticipantAttributesForDomain derives attributes from the governance
// rule covering the domain. A nil return means the domain is not covered.
func (g *Governance) ParticipantAttributesForDomain(domainID uint16) *ParticipantSecurityAttributes {
	rule := g.RuleForDomain(domainID)
	if rule == nil {
		return nil
	}
	return &ParticipantSecurityAttributes{
		AllowUnauthenticated:  rule.AllowUnauthenticatedParticipants,
		IsRTPSProtected:       rule.RTPSProtectionKind != ProtectionNone,
		IsDiscoveryProtected:  rule.DiscoveryProtectionKind != ProtectionNone,
		IsLivelinessProtected: rule.LivelinessProtectionKind != ProtectionNone,
	}
}

// EndpointSecurityAttributes is what governance dictates for one topic's
// endpoints.
type EndpointSecurityAttributes struct {
	IsReadProtected       bool
	IsWriteProtected      bool
	IsDiscoveryProtected  bool
	IsSubmessageProtected bool
	IsPayloadProtected    bool
	IsLivelinessProtected bool
}

// Mask folds the attributes into the wire mask.
func (a EndpointSecurityAttributes) Mask() uint32 {
	m := MaskValid
	if a.IsReadProtected {
		m |= EndpointReadProtected
	}
	if a.IsWriteProtected {
		m |= EndpointWriteProtected
	}
	if a.IsDiscoveryProtected {
		m |= EndpointDiscoveryProtected
	}
	if a.IsSubmessageProtected {
		m |= EndpointSubmessageProtected
	}
	if a.IsPayloadProtected {
		m |= EndpointPayloadProtected
	}
	if a.IsLivelinessProtected {
		m |= EndpointLivelinessProtected
	}
	return m
}

// EndpointAttributesForTopic derives attributes from the topic rule of the
// domain's governance rule. Topics without a rule get unprotected
// defaults.
func (g *Governance) EndpointAttributesForTopic(domainID uint16, topicName string) EndpointSecurityAttributes {
	rule := g.RuleForDomain(domainID)
	if rule == nil {
		return EndpointSecurityAttributes{}
	}
	tr := rule.TopicRule(topicName)
	if tr == nil {
		return EndpointSecurityAttributes{}
	}
	return EndpointSecurityAttributes{
		IsReadProtected:       tr.EnableReadAccessControl,
		IsWriteProtected:      tr.EnableWriteAccessControl,
		IsDiscoveryProtected:  tr.EnableDiscoveryProtection,
		IsSubmessageProtected: tr.MetadataProtectionKind != ProtectionNone,
		IsPayloadProtected:    tr.DataProtectionKind != ProtectionNone,
		IsLivelinessProtected: tr.EnableLivelinessProtection,
	}
}
