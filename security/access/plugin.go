package access

import (
	"fmt"
	"sync"
	"time"
)

// DeniedError reports a refused access control check.
type DeniedError struct {
	Subject string
	Action  string
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s for %q: %s", e.Action, e.Subject, e.Reason)
}

// Control evaluates governance and permissions for one domain. Reload may
// run concurrently with checks, so the documents sit behind a lock.
type Control struct {
	domainID uint16

	mu          sync.RWMutex
	governance  *Governance
	permissions *Permissions
}

// NewControl parses both documents and binds them to a domain. The
// governance must cover the domain.
func NewControl(domainID uint16, governanceDoc, permissionsDoc []byte) (*Control, error) {
	g, err := ParseGovernance(governanceDoc)
	if err != nil {
		return nil, err
	}
	if g.RuleForDomain(domainID) == nil {
		return nil, &DocumentError{Doc: "governance",
			Err: fmt.Errorf("no rule covers domain %d", domainID)}
	}
	p, err := ParsePermissions(permissionsDoc)
	if err != nil {
		return nil, err
	}
	return &Control{domainID: domainID, governance: g, permissions: p}, nil
}

// Reload replaces both documents, keeping the old ones on error. This
// backs live permissions renewal.
func (c *Control) Reload(governanceDoc, permissionsDoc []byte) error {
	next, err := NewControl(c.domainID, governanceDoc, permissionsDoc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.governance = next.governance
	c.permissions = next.permissions
	c.mu.Unlock()
	return nil
}

// docs snapshots both documents so a check sees one consistent pair even
// when Reload swaps them mid-flight.
func (c *Control) docs() (*Governance, *Permissions) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.governance, c.permissions
}

// Governance exposes the parsed governance document.
func (c *Control) Governance() *Governance {
	g, _ := c.docs()
	return g
}

func (c *Control) grantFor(perms *Permissions, subject string, action string, now time.Time) (*Grant, error) {
	g := perms.GrantFor(subject)
	if g == nil {
		return nil, &DeniedError{Subject: subject, Action: action,
			Reason: "no grant for subject"}
	}
	if !g.ValidAt(now) {
		return nil, &DeniedError{Subject: subject, Action: action,
			Reason: "grant outside validity window"}
	}
	return g, nil
}

// CheckJoin vets a participant joining the domain.
func (c *Control) CheckJoin(subject string, now time.Time) error {
	gov, perms := c.docs()
	rule := gov.RuleForDomain(c.domainID)
	if !rule.EnableJoinAccessControl {
		return nil
	}
	_, err := c.grantFor(perms, subject, "join", now)
	return err
}

// CheckPublish vets creating or matching a writer on a topic.
func (c *Control) CheckPublish(subject, topic string, partitions []string, now time.Time) error {
	return c.check(ActionPublish, subject, topic, partitions, now)
}

// CheckSubscribe vets creating or matching a reader on a topic.
func (c *Control) CheckSubscribe(subject, topic string, partitions []string, now time.Time) error {
	return c.check(ActionSubscribe, subject, topic, partitions, now)
}

func (c *Control) check(action Action, subject, topic string, partitions []string, now time.Time) error {
	gov, perms := c.docs()
	rule := gov.RuleForDomain(c.domainID)
	tr := rule.TopicRule(topic)
	if tr != nil {
		enforced := tr.EnableWriteAccessControl
		if action == ActionSubscribe {
			enforced = tr.EnableReadAccessControl
		}
		if !enforced {
			return nil
		}
	}
	g, err := c.grantFor(perms, subject, action.String(), now)
	if err != nil {
		return err
	}
	if !g.Check(action, c.domainID, topic, partitions) {
		return &DeniedError{Subject: subject, Action: action.String(),
			Reason: fmt.Sprintf("topic %q refused by permissions", topic)}
	}
	return nil
}
