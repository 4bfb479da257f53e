package discovery

import (
	"encoding/binary"

	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/serialization"
)

// Wire shapes for the QoS parameters. Kinds travel as int32 and the
// durability, ownership, liveliness, destination-order and history kinds
// are zero-based on the wire while the API enums start at one.

type reliabilityWire struct {
	Kind            int32
	MaxBlockingTime rtps.Duration
}

type historyWire struct {
	Kind  int32
	Depth int32
}

type livelinessWire struct {
	Kind  int32
	Lease rtps.Duration
}

type presentationWire struct {
	AccessScope    int32
	CoherentAccess bool
	OrderedAccess  bool
}

func addQosParams(pl *rtps.ParameterList, p qos.Policies) {
	if p.Reliability != nil {
		pl.Add(rtps.PIDReliability, cdr(reliabilityWire{
			Kind:            int32(p.Reliability.Kind),
			MaxBlockingTime: p.Reliability.MaxBlockingTime,
		}))
	}
	if p.Durability != nil {
		pl.Add(rtps.PIDDurability, cdr(int32(*p.Durability)-1))
	}
	if p.History != nil {
		pl.Add(rtps.PIDHistory, cdr(historyWire{
			Kind:  int32(p.History.Kind) - 1,
			Depth: p.History.Depth,
		}))
	}
	if p.Deadline != nil {
		pl.Add(rtps.PIDDeadline, cdr(*p.Deadline))
	}
	if p.LatencyBudget != nil {
		pl.Add(rtps.PIDLatencyBudget, cdr(*p.LatencyBudget))
	}
	if p.Ownership != nil {
		pl.Add(rtps.PIDOwnership, cdr(int32(p.Ownership.Kind)-1))
		if p.Ownership.Kind == qos.OwnershipExclusive {
			pl.Add(rtps.PIDOwnershipStrength, cdr(p.Ownership.Strength))
		}
	}
	if p.Liveliness != nil {
		pl.Add(rtps.PIDLiveliness, cdr(livelinessWire{
			Kind:  int32(p.Liveliness.Kind) - 1,
			Lease: p.Liveliness.LeaseDuration,
		}))
	}
	if p.TimeBasedFilter != nil {
		pl.Add(rtps.PIDTimeBasedFilter, cdr(*p.TimeBasedFilter))
	}
	if p.DestinationOrder != nil {
		pl.Add(rtps.PIDDestinationOrder, cdr(int32(*p.DestinationOrder)-1))
	}
	if p.Presentation != nil {
		pl.Add(rtps.PIDPresentation, cdr(presentationWire{
			AccessScope:    int32(p.Presentation.AccessScope) - 1,
			CoherentAccess: p.Presentation.CoherentAccess,
			OrderedAccess:  p.Presentation.OrderedAccess,
		}))
	}
	if p.Lifespan != nil {
		pl.Add(rtps.PIDLifespan, cdr(*p.Lifespan))
	}
	if len(p.Partitions) > 0 {
		pl.Add(rtps.PIDPartition, cdr(p.Partitions))
	}
}

func qosFromParams(pl rtps.ParameterList, order binary.ByteOrder) qos.Policies {
	var p qos.Policies
	if v, ok := pl.Get(rtps.PIDReliability); ok {
		var w reliabilityWire
		if serialization.UnmarshalBody(v, order, &w) == nil {
			p.Reliability = &qos.Reliability{
				Kind:            qos.ReliabilityKind(w.Kind),
				MaxBlockingTime: w.MaxBlockingTime,
			}
		}
	}
	if v, ok := pl.Get(rtps.PIDDurability); ok {
		var k int32
		if serialization.UnmarshalBody(v, order, &k) == nil {
			d := qos.DurabilityKind(k + 1)
			p.Durability = &d
		}
	}
	if v, ok := pl.Get(rtps.PIDHistory); ok {
		var w historyWire
		if serialization.UnmarshalBody(v, order, &w) == nil {
			p.History = &qos.History{Kind: qos.HistoryKind(w.Kind + 1), Depth: w.Depth}
		}
	}
	if v, ok := pl.Get(rtps.PIDDeadline); ok {
		var d rtps.Duration
		if serialization.UnmarshalBody(v, order, &d) == nil {
			p.Deadline = &d
		}
	}
	if v, ok := pl.Get(rtps.PIDLatencyBudget); ok {
		var d rtps.Duration
		if serialization.UnmarshalBody(v, order, &d) == nil {
			p.LatencyBudget = &d
		}
	}
	if v, ok := pl.Get(rtps.PIDOwnership); ok {
		var k int32
		if serialization.UnmarshalBody(v, order, &k) == nil {
			o := &qos.Ownership{Kind: qos.OwnershipKind(k + 1)}
			if sv, ok := pl.Get(rtps.PIDOwnershipStrength); ok {
				serialization.UnmarshalBody(sv, order, &o.Strength)
			}
			p.Ownership = o
		}
	}
	if v, ok := pl.Get(rtps.PIDLiveliness); ok {
		var w livelinessWire
		if serialization.UnmarshalBody(v, order, &w) == nil {
			p.Liveliness = &qos.Liveliness{
				Kind:          qos.LivelinessKind(w.Kind + 1),
				LeaseDuration: w.Lease,
			}
		}
	}
	if v, ok := pl.Get(rtps.PIDTimeBasedFilter); ok {
		var d rtps.Duration
		if serialization.UnmarshalBody(v, order, &d) == nil {
			p.TimeBasedFilter = &d
		}
	}
	if v, ok := pl.Get(rtps.PIDDestinationOrder); ok {
		var k int32
		if serialization.UnmarshalBody(v, order, &k) == nil {
			d := qos.DestinationOrderKind(k + 1)
			p.DestinationOrder = &d
		}
	}
	if v, ok := pl.Get(rtps.PIDPresentation); ok {
		var w presentationWire
		if serialization.UnmarshalBody(v, order, &w) == nil {
			p.Presentation = &qos.Presentation{
				AccessScope:    qos.PresentationAccessScope(w.AccessScope + 1),
				CoherentAccess: w.CoherentAccess,
				OrderedAccess:  w.OrderedAccess,
			}
		}
	}
	if v, ok := pl.Get(rtps.PIDLifespan); ok {
		var d rtps.Duration
		if serialization.UnmarshalBody(v, order, &d) == nil {
			p.Lifespan = &d
		}
	}
	if v, ok := pl.Get(rtps.PIDPartition); ok {
		var names []string
		if serialization.UnmarshalBody(v, order, &names) == nil {
			p.Partitions = names
		}
	}
	return p
}
