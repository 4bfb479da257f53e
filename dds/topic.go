package dds

import (
	"fmt"
	"sync"

	"github.com/dataflume/flumedds/qos"
)

// Topic binds a name to a type and default QoS within one participant.
type Topic struct {
	name     string
	typeName string
	qos      qos.Policies

	mu sync.Mutex
	dp *DomainParticipant
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

// TypeName returns the registered type name.
func (t *Topic) TypeName() string { return t.typeName }

// QoS returns the topic's default policies.
func (t *Topic) QoS() qos.Policies { return t.qos }

// CreateTopic registers a topic. Creating the same name twice with a
// different type is an error; with the same type it returns the existing
// topic.
func (dp *DomainParticipant) CreateTopic(name, typeName string, policies qos.Policies) (*Topic, error) {
	if name == "" {
		return nil, fmt.Errorf("dds: topic name must not be empty")
	}
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.closed {
		return nil, ErrClosed
	}
	if existing, ok := dp.topics[name]; ok {
		if existing.typeName != typeName {
			return nil, fmt.Errorf("dds: topic %q already registered with type %q",
				name, existing.typeName)
		}
		return existing, nil
	}
	t := &Topic{name: name, typeName: typeName, qos: policies, dp: dp}
	dp.topics[name] = t
	return t, nil
}
