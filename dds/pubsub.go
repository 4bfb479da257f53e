package dds

import (
	"github.com/dataflume/flumedds/qos"
)

// Publisher groups data writers and supplies their default QoS, notably
// the partition set.
type Publisher struct {
	dp  *DomainParticipant
	qos qos.Policies
}

// CreatePublisher returns a publisher with the given group policies.
func (dp *DomainParticipant) CreatePublisher(policies qos.Policies) (*Publisher, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.closed {
		return nil, ErrClosed
	}
	return &Publisher{dp: dp, qos: policies}, nil
}

// Participant returns the owning participant.
func (p *Publisher) Participant() *DomainParticipant { return p.dp }

// Subscriber groups data readers and supplies their default QoS.
type Subscriber struct {
	dp  *DomainParticipant
	qos qos.Policies
}

// CreateSubscriber returns a subscriber with the given group policies.
func (dp *DomainParticipant) CreateSubscriber(policies qos.Policies) (*Subscriber, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.closed {
		return nil, ErrClosed
	}
	return &Subscriber{dp: dp, qos: policies}, nil
}

// Participant returns the owning participant.
func (s *Subscriber) Participant() *DomainParticipant { return s.dp }

// effectiveQoS layers entity policies over the group and topic defaults.
func effectiveQoS(entity, group, topic qos.Policies) qos.Policies {
	return entity.Merge(group.Merge(topic))
}
