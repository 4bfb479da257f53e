// Package qos models the DDS quality-of-service policies that govern how
// writers and readers exchange and retain samples.
package qos

import (
	"fmt"

	"github.com/dataflume/flumedds/rtps"
)

// PolicyID identifies a single policy, mainly for incompatibility reports.
type PolicyID int

const (
	PolicyReliability PolicyID = iota + 1
	PolicyDurability
	PolicyHistory
	PolicyDeadline
	PolicyLatencyBudget
	PolicyOwnership
	PolicyLiveliness
	PolicyTimeBasedFilter
	PolicyDestinationOrder
	PolicyPresentation
	PolicyLifespan
	PolicyPartition
	PolicyResourceLimits
	PolicyProperty
)

func (id PolicyID) String() string {
	switch id {
	case PolicyReliability:
		return "RELIABILITY"
	case PolicyDurability:
		return "DURABILITY"
	case PolicyHistory:
		return "HISTORY"
	case PolicyDeadline:
		return "DEADLINE"
	case PolicyLatencyBudget:
		return "LATENCY_BUDGET"
	case PolicyOwnership:
		return "OWNERSHIP"
	case PolicyLiveliness:
		return "LIVELINESS"
	case PolicyTimeBasedFilter:
		return "TIME_BASED_FILTER"
	case PolicyDestinationOrder:
		return "DESTINATION_ORDER"
	case PolicyPresentation:
		return "PRESENTATION"
	case PolicyLifespan:
		return "LIFESPAN"
	case PolicyPartition:
		return "PARTITION"
	case PolicyResourceLimits:
		return "RESOURCE_LIMITS"
	case PolicyProperty:
		return "PROPERTY"
	default:
		return fmt.Sprintf("POLICY(%d)", int(id))
	}
}

// ReliabilityKind selects the delivery contract between a writer and a
// reader.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota + 1
	Reliable
)

func (k ReliabilityKind) String() string {
	if k == Reliable {
		return "Reliable"
	}
	return "BestEffort"
}

// Reliability carries the kind and, for reliable endpoints, how long a
// blocked write may wait for history space.
type Reliability struct {
	Kind            ReliabilityKind
	MaxBlockingTime rtps.Duration
}

// DurabilityKind controls whether samples written before a reader matched
// are delivered to it.
type DurabilityKind int

const (
	DurabilityVolatile DurabilityKind = iota + 1
	DurabilityTransientLocal
	DurabilityTransient
	DurabilityPersistent
)

// HistoryKind selects between a bounded and an unbounded sample cache.
type HistoryKind int

const (
	KeepLast HistoryKind = iota + 1
	KeepAll
)

// History bounds the per-instance sample cache. Depth is ignored for
// KeepAll.
type History struct {
	Kind  HistoryKind
	Depth int32
}

// OwnershipKind controls whether several writers may update one instance.
type OwnershipKind int

const (
	OwnershipShared OwnershipKind = iota + 1
	OwnershipExclusive
)

// Ownership carries the kind and, for exclusive ownership, the writer
// strength used to arbitrate.
type Ownership struct {
	Kind     OwnershipKind
	Strength int32
}

// LivelinessKind selects how a writer asserts it is still alive.
type LivelinessKind int

const (
	LivelinessAutomatic LivelinessKind = iota + 1
	LivelinessManualByParticipant
	LivelinessManualByTopic
)

// Liveliness carries the assertion kind and the lease a writer must renew.
type Liveliness struct {
	Kind          LivelinessKind
	LeaseDuration rtps.Duration
}

// DestinationOrderKind selects which timestamp orders samples of one
// instance.
type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota + 1
	BySourceTimestamp
)

// PresentationAccessScope bounds the granularity of coherent access.
type PresentationAccessScope int

const (
	AccessScopeInstance PresentationAccessScope = iota + 1
	AccessScopeTopic
	AccessScopeGroup
)

// Presentation controls coherent and ordered access across samples.
type Presentation struct {
	AccessScope    PresentationAccessScope
	CoherentAccess bool
	OrderedAccess  bool
}

// Property is one name/value pair propagated through discovery. Pairs not
// marked Propagate stay local.
type Property struct {
	Name      string
	Value     string
	Propagate bool
}

// Policies is the full policy set of an endpoint or topic. A nil field
// means the policy was not set and the DDS default applies.
type Policies struct {
	Reliability      *Reliability
	Durability       *DurabilityKind
	History          *History
	Deadline         *rtps.Duration
	LatencyBudget    *rtps.Duration
	Ownership        *Ownership
	Liveliness       *Liveliness
	TimeBasedFilter  *rtps.Duration
	DestinationOrder *DestinationOrderKind
	Presentation     *Presentation
	Lifespan         *rtps.Duration
	Partitions       []string
	Properties       []Property
}

// IsReliable reports whether the effective reliability is Reliable. The
// DDS default for unset reliability is best effort.
func (p Policies) IsReliable() bool {
	return p.Reliability != nil && p.Reliability.Kind == Reliable
}

// HistoryDepth returns the cache bound implied by the history policy.
// Zero means keep everything.
func (p Policies) HistoryDepth() int {
	if p.History == nil {
		// DDS default is KeepLast with depth 1.
		return 1
	}
	if p.History.Kind == KeepAll {
		return 0
	}
	return int(p.History.Depth)
}

func (p Policies) durability() DurabilityKind {
	if p.Durability == nil {
		return DurabilityVolatile
	}
	return *p.Durability
}

func (p Policies) deadline() rtps.Duration {
	if p.Deadline == nil {
		return rtps.DurationInfinite
	}
	return *p.Deadline
}

func (p Policies) latencyBudget() rtps.Duration {
	if p.LatencyBudget == nil {
		return rtps.DurationZero
	}
	return *p.LatencyBudget
}

func (p Policies) ownership() OwnershipKind {
	if p.Ownership == nil {
		return OwnershipShared
	}
	return p.Ownership.Kind
}

func (p Policies) liveliness() Liveliness {
	if p.Liveliness == nil {
		return Liveliness{Kind: LivelinessAutomatic, LeaseDuration: rtps.DurationInfinite}
	}
	return *p.Liveliness
}

func (p Policies) destinationOrder() DestinationOrderKind {
	if p.DestinationOrder == nil {
		return ByReceptionTimestamp
	}
	return *p.DestinationOrder
}

// Merge returns p with every unset policy filled in from defaults.
// Policies set in p win.
func (p Policies) Merge(defaults Policies) Policies {
	out := p
	if out.Reliability == nil {
		out.Reliability = defaults.Reliability
	}
	if out.Durability == nil {
		out.Durability = defaults.Durability
	}
	if out.History == nil {
		out.History = defaults.History
	}
	if out.Deadline == nil {
		out.Deadline = defaults.Deadline
	}
	if out.LatencyBudget == nil {
		out.LatencyBudget = defaults.LatencyBudget
	}
	if out.Ownership == nil {
		out.Ownership = defaults.Ownership
	}
	if out.Liveliness == nil {
		out.Liveliness = defaults.Liveliness
	}
	if out.TimeBasedFilter == nil {
		out.TimeBasedFilter = defaults.TimeBasedFilter
	}
	if out.DestinationOrder == nil {
		out.DestinationOrder = defaults.DestinationOrder
	}
	if out.Presentation == nil {
		out.Presentation = defaults.Presentation
	}
	if out.Lifespan == nil {
		out.Lifespan = defaults.Lifespan
	}
	if out.Partitions == nil {
		out.Partitions = defaults.Partitions
	}
	if out.Properties == nil {
		out.Properties = defaults.Properties
	}
	return out
}

// IncompatibleError reports the first policy that prevents a writer and a
// reader from matching under the requested-versus-offered rules.
type IncompatibleError struct {
	Policy    PolicyID
	Requested string
	Offered   string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("qos: requested %s %s exceeds offered %s",
		e.Policy, e.Requested, e.Offered)
}

// CheckCompatibility applies the requested-versus-offered rules: the
// offered (writer) side must meet or exceed what the reader requests.
// It returns nil when the endpoints may match.
func CheckCompatibility(offered, requested Policies) error {
	if requested.IsReliable() && !offered.IsReliable() {
		return &IncompatibleError{
			Policy:    PolicyReliability,
			Requested: "Reliable",
			Offered:   "BestEffort",
		}
	}
	if requested.durability() > offered.durability() {
		return &IncompatibleError{
			Policy:    PolicyDurability,
			Requested: fmt.Sprintf("%d", requested.durability()),
			Offered:   fmt.Sprintf("%d", offered.durability()),
		}
	}
	if requested.deadline().Less(offered.deadline()) {
		return &IncompatibleError{
			Policy:    PolicyDeadline,
			Requested: requested.deadline().String(),
			Offered:   offered.deadline().String(),
		}
	}
	if requested.LatencyBudget != nil && requested.latencyBudget().Less(offered.latencyBudget()) {
		return &IncompatibleError{
			Policy:    PolicyLatencyBudget,
			Requested: requested.latencyBudget().String(),
			Offered:   offered.latencyBudget().String(),
		}
	}
	if requested.ownership() != offered.ownership() {
		return &IncompatibleError{
			Policy:    PolicyOwnership,
			Requested: fmt.Sprintf("%d", requested.ownership()),
			Offered:   fmt.Sprintf("%d", offered.ownership()),
		}
	}
	off, req := offered.liveliness(), requested.liveliness()
	if off.Kind < req.Kind {
		return &IncompatibleError{
			Policy:    PolicyLiveliness,
			Requested: fmt.Sprintf("kind %d", req.Kind),
			Offered:   fmt.Sprintf("kind %d", off.Kind),
		}
	}
	if req.LeaseDuration.Less(off.LeaseDuration) {
		return &IncompatibleError{
			Policy:    PolicyLiveliness,
			Requested: req.LeaseDuration.String(),
			Offered:   off.LeaseDuration.String(),
		}
	}
	if requested.destinationOrder() > offered.destinationOrder() {
		return &IncompatibleError{
			Policy:    PolicyDestinationOrder,
			Requested: "BySourceTimestamp",
			Offered:   "ByReceptionTimestamp",
		}
	}
	return nil
}

// PartitionsMatch reports whether a writer and a reader share at least one
// partition. Endpoints with no partitions belong to the default partition,
// which only matches itself.
func PartitionsMatch(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	for _, pa := range a {
		for _, pb := range b {
			if pa == pb {
				return true
			}
		}
	}
	return false
}
