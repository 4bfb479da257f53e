package qos

import (
	"errors"
	"testing"
	"time"

	"github.com/dataflume/flumedds/rtps"
)

func TestBuilder(t *testing.T) {
	p := NewBuilder().
		Reliable(rtps.DurationFromStd(100 * time.Millisecond)).
		Durability(DurabilityTransientLocal).
		KeepLast(8).
		Partitions("sensors", "ops").
		Property("dds.sec.auth.plugin", "builtin.PKI-DH", true).
		Build()

	if !p.IsReliable() {
		t.Error("expected reliable")
	}
	if p.HistoryDepth() != 8 {
		t.Errorf("HistoryDepth = %d, want 8", p.HistoryDepth())
	}
	if p.Durability == nil || *p.Durability != DurabilityTransientLocal {
		t.Error("durability not set")
	}
	if len(p.Partitions) != 2 || len(p.Properties) != 1 {
		t.Errorf("partitions/properties missing: %+v", p)
	}
}

func TestDefaults(t *testing.T) {
	var p Policies
	if p.IsReliable() {
		t.Error("default reliability should be best effort")
	}
	if p.HistoryDepth() != 1 {
		t.Errorf("default HistoryDepth = %d, want 1", p.HistoryDepth())
	}
	if p.deadline() != rtps.DurationInfinite {
		t.Error("default deadline should be infinite")
	}
}

func TestMerge(t *testing.T) {
	defaults := NewBuilder().Reliable(rtps.DurationZero).KeepLast(4).Build()
	p := NewBuilder().BestEffort().Build().Merge(defaults)

	if p.IsReliable() {
		t.Error("explicit best effort must survive merge")
	}
	if p.HistoryDepth() != 4 {
		t.Errorf("HistoryDepth = %d, want 4 from defaults", p.HistoryDepth())
	}
}

func TestCompatibility(t *testing.T) {
	reliable := NewBuilder().Reliable(rtps.DurationZero).Build()
	bestEffort := NewBuilder().BestEffort().Build()

	tests := []struct {
		name      string
		offered   Policies
		requested Policies
		wantFail  PolicyID
	}{
		{"equal reliable", reliable, reliable, 0},
		{"offered exceeds requested", reliable, bestEffort, 0},
		{"requested exceeds offered", bestEffort, reliable, PolicyReliability},
		{
			"durability downgrade",
			NewBuilder().Durability(DurabilityVolatile).Build(),
			NewBuilder().Durability(DurabilityTransientLocal).Build(),
			PolicyDurability,
		},
		{
			"deadline too loose",
			NewBuilder().Deadline(rtps.DurationFromStd(2 * time.Second)).Build(),
			NewBuilder().Deadline(rtps.DurationFromStd(time.Second)).Build(),
			PolicyDeadline,
		},
		{
			"ownership mismatch",
			NewBuilder().SharedOwnership().Build(),
			NewBuilder().ExclusiveOwnership(10).Build(),
			PolicyOwnership,
		},
		{
			"liveliness lease too long",
			NewBuilder().Liveliness(LivelinessAutomatic, rtps.DurationInfinite).Build(),
			NewBuilder().Liveliness(LivelinessAutomatic, rtps.DurationFromStd(time.Second)).Build(),
			PolicyLiveliness,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCompatibility(tt.offered, tt.requested)
			if tt.wantFail == 0 {
				if err != nil {
					t.Fatalf("unexpected incompatibility: %v", err)
				}
				return
			}
			var ie *IncompatibleError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %v, want IncompatibleError", err)
			}
			if ie.Policy != tt.wantFail {
				t.Fatalf("failing policy = %v, want %v", ie.Policy, tt.wantFail)
			}
		})
	}
}

func TestPartitionsMatch(t *testing.T) {
	if !PartitionsMatch(nil, nil) {
		t.Error("default partitions must match each other")
	}
	if PartitionsMatch([]string{"a"}, nil) {
		t.Error("named partition must not match the default partition")
	}
	if !PartitionsMatch([]string{"a", "b"}, []string{"b", "c"}) {
		t.Error("shared partition must match")
	}
}
