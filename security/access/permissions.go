package access

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Action is what an endpoint wants to do with a topic.
type Action int

const (
	ActionPublish Action = iota + 1
	ActionSubscribe
	ActionRelay
)

func (a Action) String() string {
	switch a {
	case ActionPublish:
		return "publish"
	case ActionSubscribe:
		return "subscribe"
	case ActionRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// Criteria is one publish/subscribe/relay clause of a grant rule.
type Criteria struct {
	Topics     []string
	Partitions []string
}

func (c Criteria) matches(topic string, partitions []string) bool {
	topicOK := false
	for _, expr := range c.Topics {
		if matchExpression(expr, topic) {
			topicOK = true
			break
		}
	}
	if !topicOK {
		return false
	}
	// No partition clause covers only the default partition.
	if len(c.Partitions) == 0 {
		return len(partitions) == 0
	}
	if len(partitions) == 0 {
		partitions = []string{""}
	}
	for _, p := range partitions {
		ok := false
		for _, expr := range c.Partitions {
			if matchExpression(expr, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Rule is one allow or deny rule of a grant.
type Rule struct {
	Allow     bool
	Domains   DomainIDSet
	Publish   []Criteria
	Subscribe []Criteria
	Relay     []Criteria
}

func (r Rule) criteriaFor(action Action) []Criteria {
	switch action {
	case ActionPublish:
		return r.Publish
	case ActionSubscribe:
		return r.Subscribe
	case ActionRelay:
		return r.Relay
	}
	return nil
}

// Grant holds the permissions of one subject.
type Grant struct {
	Name         string
	SubjectName  string
	NotBefore    time.Time
	NotAfter     time.Time
	Rules        []Rule
	DefaultAllow bool
}

// ValidAt reports whether the grant is inside its validity window.
func (g *Grant) ValidAt(t time.Time) bool {
	return !t.Before(g.NotBefore) && !t.After(g.NotAfter)
}

// Check evaluates the grant for one action. Rules apply in document order;
// the first rule whose domain and criteria match decides. Without a match
// the grant default applies.
func (g *Grant) Check(action Action, domainID uint16, topic string, partitions []string) bool {
	for _, rule := range g.Rules {
		if !rule.Domains.Contains(domainID) {
			continue
		}
		for _, c := range rule.criteriaFor(action) {
			if c.matches(topic, partitions) {
				return rule.Allow
			}
		}
	}
	return g.DefaultAllow
}

// Permissions is a parsed permissions document.
type Permissions struct {
	Grants []Grant
}

// GrantFor returns the grant whose subject name matches, comparing
// normalized distinguished names.
func (p *Permissions) GrantFor(subjectName string) *Grant {
	want := normalizeDN(subjectName)
	for i := range p.Grants {
		if normalizeDN(p.Grants[i].SubjectName) == want {
			return &p.Grants[i]
		}
	}
	return nil
}

// normalizeDN strips whitespace around DN components so that cosmetic
// differences in comma spacing do not defeat the lookup.
func normalizeDN(dn string) string {
	parts := strings.Split(dn, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ",")
}

// permissionsTimeLayout is the dateTime form the documents use.
const permissionsTimeLayout = "2006-01-02T15:04:05"

func parsePermissionsTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(permissionsTimeLayout, s)
}

// XML shapes of the permissions document.

type xmlPermissions struct {
	XMLName xml.Name   `xml:"dds"`
	Grants  []xmlGrant `xml:"permissions>grant"`
}

type xmlGrant struct {
	Name        string        `xml:"name,attr"`
	SubjectName string        `xml:"subject_name"`
	Validity    xmlValidity   `xml:"validity"`
	AllowRules  []xmlPermRule `xml:"allow_rule"`
	DenyRules   []xmlPermRule `xml:"deny_rule"`
	Default     string        `xml:"default"`
}

type xmlValidity struct {
	NotBefore string `xml:"not_before"`
	NotAfter  string `xml:"not_after"`
}

type xmlPermRule struct {
	Domains   xmlDomains    `xml:"domains"`
	Publish   []xmlCriteria `xml:"publish"`
	Subscribe []xmlCriteria `xml:"subscribe"`
	Relay     []xmlCriteria `xml:"relay"`
}

type xmlCriteria struct {
	Topics     []string `xml:"topics>topic"`
	Partitions []string `xml:"partitions>partition"`
}

// ParsePermissions parses a permissions document, unwrapping a signed
// envelope if present.
func ParsePermissions(data []byte) (*Permissions, error) {
	body, err := ExtractDocument(data)
	if err != nil {
		return nil, err
	}
	var doc xmlPermissions
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &DocumentError{Doc: "permissions", Err: err}
	}
	p := &Permissions{}
	for _, xg := range doc.Grants {
		g := Grant{
			Name:        xg.Name,
			SubjectName: strings.TrimSpace(xg.SubjectName),
		}
		if g.NotBefore, err = parsePermissionsTime(xg.Validity.NotBefore); err != nil {
			return nil, &DocumentError{Doc: "permissions",
				Err: fmt.Errorf("grant %q not_before: %w", xg.Name, err)}
		}
		if g.NotAfter, err = parsePermissionsTime(xg.Validity.NotAfter); err != nil {
			return nil, &DocumentError{Doc: "permissions",
				Err: fmt.Errorf("grant %q not_after: %w", xg.Name, err)}
		}
		switch strings.TrimSpace(xg.Default) {
		case "ALLOW":
			g.DefaultAllow = true
		case "", "DENY":
			g.DefaultAllow = false
		default:
			return nil, &DocumentError{Doc: "permissions",
				Err: fmt.Errorf("grant %q default %q", xg.Name, xg.Default)}
		}
		// Document order of allow vs deny rules is not preserved by this
		// decoding; deny rules are evaluated first, which is the stricter
		// reading.
		for _, xr := range xg.DenyRules {
			g.Rules = append(g.Rules, ruleFromXML(xr, false))
		}
		for _, xr := range xg.AllowRules {
			g.Rules = append(g.Rules, ruleFromXML(xr, true))
		}
		p.Grants = append(p.Grants, g)
	}
	if len(p.Grants) == 0 {
		return nil, &DocumentError{Doc: "permissions",
			Err: fmt.Errorf("no grants")}
	}
	return p, nil
}

func ruleFromXML(xr xmlPermRule, allow bool) Rule {
	r := Rule{Allow: allow, Domains: domainSetFromXML(xr.Domains)}
	for _, c := range xr.Publish {
		r.Publish = append(r.Publish, Criteria{Topics: c.Topics, Partitions: c.Partitions})
	}
	for _, c := range xr.Subscribe {
		r.Subscribe = append(r.Subscribe, Criteria{Topics: c.Topics, Partitions: c.Partitions})
	}
	for _, c := range xr.Relay {
		r.Relay = append(r.Relay, Criteria{Topics: c.Topics, Partitions: c.Partitions})
	}
	return r
}
