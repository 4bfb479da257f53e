package access

import (
	"errors"
	"sync"
	"testing"
	"time"
)

const governanceXML = `<?xml version="1.0" encoding="utf-8"?>
<dds>
  <domain_access_rules>
    <domain_rule>
      <domains>
        <id>0</id>
        <id_range><min>10</min><max>20</max></id_range>
      </domains>
      <allow_unauthenticated_participants>false</allow_unauthenticated_participants>
      <enable_join_access_control>true</enable_join_access_control>
      <discovery_protection_kind>SIGN</discovery_protection_kind>
      <liveliness_protection_kind>NONE</liveliness_protection_kind>
      <rtps_protection_kind>ENCRYPT</rtps_protection_kind>
      <topic_access_rules>
        <topic_rule>
          <topic_expression>Telemetry*</topic_expression>
          <enable_discovery_protection>true</enable_discovery_protection>
          <enable_liveliness_protection>false</enable_liveliness_protection>
          <enable_read_access_control>true</enable_read_access_control>
          <enable_write_access_control>true</enable_write_access_control>
          <metadata_protection_kind>SIGN</metadata_protection_kind>
          <data_protection_kind>ENCRYPT</data_protection_kind>
        </topic_rule>
        <topic_rule>
          <topic_expression>*</topic_expression>
          <enable_read_access_control>false</enable_read_access_control>
          <enable_write_access_control>false</enable_write_access_control>
          <metadata_protection_kind>NONE</metadata_protection_kind>
          <data_protection_kind>NONE</data_protection_kind>
        </topic_rule>
      </topic_access_rules>
    </domain_rule>
  </domain_access_rules>
</dds>`

const permissionsXML = `<?xml version="1.0" encoding="utf-8"?>
<dds>
  <permissions>
    <grant name="TelemetryNode">
      <subject_name>CN=sensor01, O=DataFlume, C=FI</subject_name>
      <validity>
        <not_before>2020-01-01T00:00:00</not_before>
        <not_after>2030-01-01T00:00:00</not_after>
      </validity>
      <deny_rule>
        <domains><id>0</id></domains>
        <publish>
          <topics><topic>TelemetrySecret</topic></topics>
        </publish>
      </deny_rule>
      <allow_rule>
        <domains><id>0</id></domains>
        <publish>
          <topics><topic>Telemetry*</topic></topics>
        </publish>
        <subscribe>
          <topics><topic>Command*</topic></topics>
          <partitions><partition>ops*</partition></partitions>
        </subscribe>
      </allow_rule>
      <default>DENY</default>
    </grant>
  </permissions>
</dds>`

const subject = "CN=sensor01,O=DataFlume,C=FI"

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestGovernanceDomainSelection(t *testing.T) {
	g, err := ParseGovernance([]byte(governanceXML))
	if err != nil {
		t.Fatalf("ParseGovernance: %v", err)
	}
	if g.RuleForDomain(0) == nil {
		t.Error("domain 0 should be covered by explicit id")
	}
	if g.RuleForDomain(15) == nil {
		t.Error("domain 15 should be covered by range")
	}
	if g.RuleForDomain(5) != nil {
		t.Error("domain 5 should not be covered")
	}
}

func TestGovernanceTopicRules(t *testing.T) {
	g, err := ParseGovernance([]byte(governanceXML))
	if err != nil {
		t.Fatalf("ParseGovernance: %v", err)
	}
	rule := g.RuleForDomain(0)
	tr := rule.TopicRule("TelemetryEngine")
	if tr == nil || tr.DataProtectionKind != ProtectionEncrypt {
		t.Fatalf("TelemetryEngine rule: %+v", tr)
	}
	if wild := rule.TopicRule("Anything"); wild == nil || wild.DataProtectionKind != ProtectionNone {
		t.Fatalf("wildcard rule: %+v", wild)
	}

	attrs := g.EndpointAttributesForTopic(0, "TelemetryEngine")
	want := MaskValid | EndpointReadProtected | EndpointWriteProtected |
		EndpointDiscoveryProtected | EndpointSubmessageProtected | EndpointPayloadProtected
	if attrs.Mask() != want {
		t.Fatalf("endpoint mask = %#x, want %#x", attrs.Mask(), want)
	}

	pa := g.ParticipantAttributesForDomain(0)
	if pa == nil || !pa.IsRTPSProtected || !pa.IsDiscoveryProtected || pa.IsLivelinessProtected {
		t.Fatalf("participant attributes: %+v", pa)
	}
	if pa.Mask()&MaskValid == 0 {
		t.Error("participant mask must set the valid bit")
	}
}

func TestPermissionsEvaluation(t *testing.T) {
	c, err := NewControl(0, []byte(governanceXML), []byte(permissionsXML))
	if err != nil {
		t.Fatalf("NewControl: %v", err)
	}

	if err := c.CheckPublish(subject, "TelemetryEngine", nil, testNow); err != nil {
		t.Errorf("publish TelemetryEngine: %v", err)
	}
	// Deny rule runs before the Telemetry* allow.
	if err := c.CheckPublish(subject, "TelemetrySecret", nil, testNow); err == nil {
		t.Error("publish TelemetrySecret should be denied")
	}
	// Read access control applies to subscription checks.
	if err := c.CheckSubscribe(subject, "TelemetryEngine", nil, testNow); err == nil {
		t.Error("subscribe TelemetryEngine should be denied, grant only allows Command*")
	}
	// Topics under the wildcard rule have access control disabled.
	if err := c.CheckPublish(subject, "Chatter", nil, testNow); err != nil {
		t.Errorf("publish Chatter should bypass access control: %v", err)
	}
}

func TestPermissionsPartitions(t *testing.T) {
	p, err := ParsePermissions([]byte(permissionsXML))
	if err != nil {
		t.Fatalf("ParsePermissions: %v", err)
	}
	g := p.GrantFor(subject)
	if g == nil {
		t.Fatal("grant not found by normalized subject name")
	}
	if !g.Check(ActionSubscribe, 0, "CommandDrive", []string{"ops-east"}) {
		t.Error("ops-east partition should match ops*")
	}
	if g.Check(ActionSubscribe, 0, "CommandDrive", []string{"lab"}) {
		t.Error("lab partition should not match ops*")
	}
	if g.Check(ActionSubscribe, 0, "CommandDrive", nil) {
		t.Error("default partition should not match a partition-scoped clause")
	}
}

func TestGrantValidityWindow(t *testing.T) {
	c, err := NewControl(0, []byte(governanceXML), []byte(permissionsXML))
	if err != nil {
		t.Fatalf("NewControl: %v", err)
	}
	expired := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	err = c.CheckPublish(subject, "TelemetryEngine", nil, expired)
	var de *DeniedError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeniedError", err)
	}
}

func TestCheckJoin(t *testing.T) {
	c, err := NewControl(0, []byte(governanceXML), []byte(permissionsXML))
	if err != nil {
		t.Fatalf("NewControl: %v", err)
	}
	if err := c.CheckJoin(subject, testNow); err != nil {
		t.Errorf("join with valid grant: %v", err)
	}
	if err := c.CheckJoin("CN=stranger", testNow); err == nil {
		t.Error("join without grant should fail when join access control is on")
	}
}

func TestExtractDocumentFromSignedEnvelope(t *testing.T) {
	signed := "MIME-Version: 1.0\r\nContent-Type: multipart/signed\r\n\r\n" +
		governanceXML + "\r\n-----BEGIN SIGNATURE-----\r\nabc\r\n"
	g, err := ParseGovernance([]byte(signed))
	if err != nil {
		t.Fatalf("ParseGovernance(signed): %v", err)
	}
	if g.RuleForDomain(0) == nil {
		t.Error("rule lost in signed envelope")
	}
}

func TestReloadKeepsOldOnError(t *testing.T) {
	c, err := NewControl(0, []byte(governanceXML), []byte(permissionsXML))
	if err != nil {
		t.Fatalf("NewControl: %v", err)
	}
	if err := c.Reload([]byte("garbage"), []byte(permissionsXML)); err == nil {
		t.Fatal("reload of garbage should fail")
	}
	if err := c.CheckPublish(subject, "TelemetryEngine", nil, testNow); err != nil {
		t.Errorf("old documents should stay effective: %v", err)
	}
}

func TestReloadConcurrentWithChecks(t *testing.T) {
	c, err := NewControl(0, []byte(governanceXML), []byte(permissionsXML))
	if err != nil {
		t.Fatalf("NewControl: %v", err)
	}
	// Checks and reloads from separate goroutines, for the race detector.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if err := c.CheckPublish(subject, "TelemetryEngine", nil, testNow); err != nil {
					t.Errorf("CheckPublish: %v", err)
					return
				}
				_ = c.CheckJoin(subject, testNow)
				_ = c.Governance()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			if err := c.Reload([]byte(governanceXML), []byte(permissionsXML)); err != nil {
				t.Errorf("Reload: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}
