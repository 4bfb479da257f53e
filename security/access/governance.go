// Package access implements the builtin DDS access control plugin: it
// parses governance and permissions documents and answers whether a
// participant may join a domain and whether endpoints may publish or
// subscribe to a topic.
package access

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ProtectionKind is a governance protection level.
type ProtectionKind int

const (
	ProtectionNone ProtectionKind = iota
	ProtectionSign
	ProtectionEncrypt
	ProtectionSignWithOriginAuth
	ProtectionEncryptWithOriginAuth
)

func (k ProtectionKind) String() string {
	switch k {
	case ProtectionNone:
		return "NONE"
	case ProtectionSign:
		return "SIGN"
	case ProtectionEncrypt:
		return "ENCRYPT"
	case ProtectionSignWithOriginAuth:
		return "SIGN_WITH_ORIGIN_AUTHENTICATION"
	case ProtectionEncryptWithOriginAuth:
		return "ENCRYPT_WITH_ORIGIN_AUTHENTICATION"
	default:
		return fmt.Sprintf("ProtectionKind(%d)", int(k))
	}
}

func parseProtectionKind(s string) (ProtectionKind, error) {
	switch strings.TrimSpace(s) {
	case "", "NONE":
		return ProtectionNone, nil
	case "SIGN":
		return ProtectionSign, nil
	case "ENCRYPT":
		return ProtectionEncrypt, nil
	case "SIGN_WITH_ORIGIN_AUTHENTICATION":
		return ProtectionSignWithOriginAuth, nil
	case "ENCRYPT_WITH_ORIGIN_AUTHENTICATION":
		return ProtectionEncryptWithOriginAuth, nil
	default:
		return ProtectionNone, &DocumentError{Doc: "governance",
			Err: fmt.Errorf("unknown protection kind %q", s)}
	}
}

// DomainIDSet selects domains by explicit ids and inclusive ranges.
type DomainIDSet struct {
	IDs    []uint16
	Ranges []DomainIDRange
}

// DomainIDRange is an inclusive range of domain ids. Max 0 with Min set
// means open-ended.
type DomainIDRange struct {
	Min    uint16
	Max    uint16
	HasMax bool
}

// Contains reports whether the set selects the domain.
func (s DomainIDSet) Contains(domainID uint16) bool {
	for _, id := range s.IDs {
		if id == domainID {
			return true
		}
	}
	for _, r := range s.Ranges {
		if domainID >= r.Min && (!r.HasMax || domainID <= r.Max) {
			return true
		}
	}
	return false
}

// TopicRule is one governance rule for a set of topic name expressions.
type TopicRule struct {
	TopicExpression            string
	EnableDiscoveryProtection  bool
	EnableLivelinessProtection bool
	EnableReadAccessControl    bool
	EnableWriteAccessControl   bool
	MetadataProtectionKind     ProtectionKind
	DataProtectionKind         ProtectionKind
}

// DomainRule is one governance rule for a set of domains.
type DomainRule struct {
	Domains                          DomainIDSet
	AllowUnauthenticatedParticipants bool
	EnableJoinAccessControl          bool
	DiscoveryProtectionKind          ProtectionKind
	LivelinessProtectionKind         ProtectionKind
	RTPSProtectionKind               ProtectionKind
	TopicRules                       []TopicRule
}

// TopicRule returns the first rule whose expression matches the topic
// name, or nil.
func (r *DomainRule) TopicRule(topicName string) *TopicRule {
	for i := range r.TopicRules {
		if matchExpression(r.TopicRules[i].TopicExpression, topicName) {
			return &r.TopicRules[i]
		}
	}
	return nil
}

// Governance is a parsed domain governance document.
type Governance struct {
	Rules []DomainRule
}

// RuleForDomain returns the first rule covering the domain, or nil.
func (g *Governance) RuleForDomain(domainID uint16) *DomainRule {
	for i := range g.Rules {
		if g.Rules[i].Domains.Contains(domainID) {
			return &g.Rules[i]
		}
	}
	return nil
}

// DocumentError reports a malformed governance or permissions document.
type DocumentError struct {
	Doc string
	Err error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("access control: %s document: %v", e.Doc, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// matchExpression matches a POSIX-fnmatch-style expression against a name.
func matchExpression(expr, name string) bool {
	ok, err := doublestar.Match(expr, name)
	return err == nil && ok
}

// ExtractDocument returns the XML body of a possibly S/MIME wrapped
// document. Signature verification against the permissions CA is not
// performed here; callers that need it verify before calling.
func ExtractDocument(data []byte) ([]byte, error) {
	start := bytes.Index(data, []byte("<?xml"))
	if start < 0 {
		start = bytes.Index(data, []byte("<dds"))
	}
	if start < 0 {
		return nil, &DocumentError{Doc: "signed",
			Err: fmt.Errorf("no XML body found")}
	}
	end := bytes.LastIndex(data, []byte("</dds>"))
	if end < 0 {
		return nil, &DocumentError{Doc: "signed",
			Err: fmt.Errorf("unterminated XML body")}
	}
	return data[start : end+len("</dds>")], nil
}

// XML shapes of the governance document.

type xmlGovernance struct {
	XMLName xml.Name  `xml:"dds"`
	Rules   []xmlRule `xml:"domain_access_rules>domain_rule"`
}

type xmlRule struct {
	Domains                          xmlDomains     `xml:"domains"`
	AllowUnauthenticatedParticipants bool           `xml:"allow_unauthenticated_participants"`
	EnableJoinAccessControl          bool           `xml:"enable_join_access_control"`
	DiscoveryProtectionKind          string         `xml:"discovery_protection_kind"`
	LivelinessProtectionKind         string         `xml:"liveliness_protection_kind"`
	RTPSProtectionKind               string         `xml:"rtps_protection_kind"`
	TopicRules                       []xmlTopicRule `xml:"topic_access_rules>topic_rule"`
}

type xmlDomains struct {
	IDs    []uint16     `xml:"id"`
	Ranges []xmlIDRange `xml:"id_range"`
}

type xmlIDRange struct {
	Min uint16  `xml:"min"`
	Max *uint16 `xml:"max"`
}

type xmlTopicRule struct {
	TopicExpression            string `xml:"topic_expression"`
	EnableDiscoveryProtection  bool   `xml:"enable_discovery_protection"`
	EnableLivelinessProtection bool   `xml:"enable_liveliness_protection"`
	EnableReadAccessControl    bool   `xml:"enable_read_access_control"`
	EnableWriteAccessControl   bool   `xml:"enable_write_access_control"`
	MetadataProtectionKind     string `xml:"metadata_protection_kind"`
	DataProtectionKind         string `xml:"data_protection_kind"`
}

// ParseGovernance parses a governance document, unwrapping a signed
// envelope if present.
func ParseGovernance(data []byte) (*Governance, error) {
	body, err := ExtractDocument(data)
	if err != nil {
		return nil, err
	}
	var doc xmlGovernance
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &DocumentError{Doc: "governance", Err: err}
	}
	g := &Governance{}
	for _, xr := range doc.Rules {
		rule := DomainRule{
			Domains:                          domainSetFromXML(xr.Domains),
			AllowUnauthenticatedParticipants: xr.AllowUnauthenticatedParticipants,
			EnableJoinAccessControl:          xr.EnableJoinAccessControl,
		}
		if rule.DiscoveryProtectionKind, err = parseProtectionKind(xr.DiscoveryProtectionKind); err != nil {
			return nil, err
		}
		if rule.LivelinessProtectionKind, err = parseProtectionKind(xr.LivelinessProtectionKind); err != nil {
			return nil, err
		}
		if rule.RTPSProtectionKind, err = parseProtectionKind(xr.RTPSProtectionKind); err != nil {
			return nil, err
		}
		for _, xt := range xr.TopicRules {
			tr := TopicRule{
				TopicExpression:            xt.TopicExpression,
				EnableDiscoveryProtection:  xt.EnableDiscoveryProtection,
				EnableLivelinessProtection: xt.EnableLivelinessProtection,
				EnableReadAccessControl:    xt.EnableReadAccessControl,
				EnableWriteAccessControl:   xt.EnableWriteAccessControl,
			}
			if tr.MetadataProtectionKind, err = parseProtectionKind(xt.MetadataProtectionKind); err != nil {
				return nil, err
			}
			if tr.DataProtectionKind, err = parseProtectionKind(xt.DataProtectionKind); err != nil {
				return nil, err
			}
			rule.TopicRules = append(rule.TopicRules, tr)
		}
		g.Rules = append(g.Rules, rule)
	}
	if len(g.Rules) == 0 {
		return nil, &DocumentError{Doc: "governance",
			Err: fmt.Errorf("no domain rules")}
	}
	return g, nil
}

func domainSetFromXML(x xmlDomains) DomainIDSet {
	s := DomainIDSet{IDs: x.IDs}
	for _, r := range x.Ranges {
		dr := DomainIDRange{Min: r.Min}
		if r.Max != nil {
			dr.Max = *r.Max
			dr.HasMax = true
		}
		s.Ranges = append(s.Ranges, dr)
	}
	return s
}
