package qos

import "github.com/dataflume/flumedds/rtps"

// Builder assembles a policy set one policy at a time. The zero value is
// ready to use and leaves every policy unset.
type Builder struct {
	p Policies
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// BestEffort sets best-effort reliability.
func (b *Builder) BestEffort() *Builder {
	b.p.Reliability = &Reliability{Kind: BestEffort}
	return b
}

// Reliable sets reliable delivery with the given blocking bound for writes.
func (b *Builder) Reliable(maxBlocking rtps.Duration) *Builder {
	b.p.Reliability = &Reliability{Kind: Reliable, MaxBlockingTime: maxBlocking}
	return b
}

// Durability sets the durability kind.
func (b *Builder) Durability(kind DurabilityKind) *Builder {
	b.p.Durability = &kind
	return b
}

// KeepLast sets a bounded history of the given depth.
func (b *Builder) KeepLast(depth int32) *Builder {
	b.p.History = &History{Kind: KeepLast, Depth: depth}
	return b
}

// KeepAll sets unbounded history.
func (b *Builder) KeepAll() *Builder {
	b.p.History = &History{Kind: KeepAll}
	return b
}

// Deadline sets the maximum expected interval between samples per instance.
func (b *Builder) Deadline(d rtps.Duration) *Builder {
	b.p.Deadline = &d
	return b
}

// LatencyBudget sets the acceptable delivery delay hint.
func (b *Builder) LatencyBudget(d rtps.Duration) *Builder {
	b.p.LatencyBudget = &d
	return b
}

// SharedOwnership lets any writer update any instance.
func (b *Builder) SharedOwnership() *Builder {
	b.p.Ownership = &Ownership{Kind: OwnershipShared}
	return b
}

// ExclusiveOwnership arbitrates instance updates by writer strength.
func (b *Builder) ExclusiveOwnership(strength int32) *Builder {
	b.p.Ownership = &Ownership{Kind: OwnershipExclusive, Strength: strength}
	return b
}

// Liveliness sets the liveliness contract.
func (b *Builder) Liveliness(kind LivelinessKind, lease rtps.Duration) *Builder {
	b.p.Liveliness = &Liveliness{Kind: kind, LeaseDuration: lease}
	return b
}

// TimeBasedFilter sets the minimum separation between delivered samples.
func (b *Builder) TimeBasedFilter(minSeparation rtps.Duration) *Builder {
	b.p.TimeBasedFilter = &minSeparation
	return b
}

// DestinationOrder sets which timestamp orders samples of an instance.
func (b *Builder) DestinationOrder(kind DestinationOrderKind) *Builder {
	b.p.DestinationOrder = &kind
	return b
}

// Presentation sets the coherent-access policy.
func (b *Builder) Presentation(scope PresentationAccessScope, coherent, ordered bool) *Builder {
	b.p.Presentation = &Presentation{
		AccessScope:    scope,
		CoherentAccess: coherent,
		OrderedAccess:  ordered,
	}
	return b
}

// Lifespan sets how long a sample stays valid after being written.
func (b *Builder) Lifespan(d rtps.Duration) *Builder {
	b.p.Lifespan = &d
	return b
}

// Partitions sets the logical partition names of the endpoint.
func (b *Builder) Partitions(names ...string) *Builder {
	b.p.Partitions = names
	return b
}

// Property appends one name/value pair.
func (b *Builder) Property(name, value string, propagate bool) *Builder {
	b.p.Properties = append(b.p.Properties, Property{
		Name:      name,
		Value:     value,
		Propagate: propagate,
	})
	return b
}

// Build returns the assembled policy set.
func (b *Builder) Build() Policies {
	return b.p
}
