// Package statusevents carries asynchronous status notifications from the
// middleware to the application: discovery results, sample loss, QoS
// incompatibilities, and liveliness changes. Events are delivered over
// buffered channels and dropped when the application does not keep up, so
// a slow or absent listener never stalls the protocol.
package statusevents

import (
	"sync"

	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
)

// CountWithChange is a running total plus the delta since the event was
// last reported.
type CountWithChange struct {
	Count       int32
	CountChange int32
}

func (c *CountWithChange) bump(delta int32) CountWithChange {
	c.Count += delta
	c.CountChange = delta
	return *c
}

// LostReason says why a reader gave up on samples.
type LostReason int

const (
	// LostBySkipAhead covers samples a best-effort reader jumped over or a
	// reliable reader abandoned because the writer no longer holds them.
	LostBySkipAhead LostReason = iota + 1
	// LostByWriterGone covers samples pending from a writer whose lease
	// expired before they arrived.
	LostByWriterGone
)

func (r LostReason) String() string {
	switch r {
	case LostBySkipAhead:
		return "skip-ahead"
	case LostByWriterGone:
		return "writer-gone"
	default:
		return "unknown"
	}
}

// ParticipantDescription summarizes a discovered remote participant.
type ParticipantDescription struct {
	GUID          rtps.GUID
	LeaseDuration rtps.Duration
	EntityName    string
}

// EndpointDescription summarizes a discovered remote reader or writer.
type EndpointDescription struct {
	GUID      rtps.GUID
	TopicName string
	TypeName  string
	QoS       qos.Policies
}

// ParticipantEventKind discriminates ParticipantEvent.
type ParticipantEventKind int

const (
	ParticipantDiscovered ParticipantEventKind = iota + 1
	ParticipantLost
	WriterDiscovered
	WriterLost
	ReaderDiscovered
	ReaderLost
	TopicDetected
)

// ParticipantLostReason says why a participant was dropped.
type ParticipantLostReason int

const (
	// LostByDispose covers participants that announced their own departure.
	LostByDispose ParticipantLostReason = iota + 1
	// LostByLeaseTimeout covers participants that went silent past their
	// advertised lease duration.
	LostByLeaseTimeout
)

func (r ParticipantLostReason) String() string {
	switch r {
	case LostByDispose:
		return "disposed"
	case LostByLeaseTimeout:
		return "lease expired"
	default:
		return "unknown"
	}
}

// ParticipantEvent is one domain-level discovery notification. Exactly one
// of the description fields is set, matching Kind. LostReason is set only
// for ParticipantLost.
type ParticipantEvent struct {
	Kind        ParticipantEventKind
	Participant *ParticipantDescription
	Endpoint    *EndpointDescription
	TopicName   string
	LostReason  ParticipantLostReason
}

// DataReaderStatus is one reader-level notification.
type DataReaderStatus struct {
	SampleLost          *SampleLost
	RequestedIncompat   *RequestedIncompatibleQos
	SubscriptionMatched *SubscriptionMatched
	LivelinessChanged   *LivelinessChanged
}

// SampleLost reports samples that will never be delivered.
type SampleLost struct {
	CountWithChange
	Reason LostReason
	Writer rtps.GUID
}

// RequestedIncompatibleQos reports a remote writer refused for QoS reasons.
type RequestedIncompatibleQos struct {
	CountWithChange
	LastPolicy qos.PolicyID
	Writer     rtps.GUID
}

// SubscriptionMatched reports a writer match or unmatch.
type SubscriptionMatched struct {
	Total   CountWithChange
	Current CountWithChange
	Writer  rtps.GUID
}

// LivelinessChanged reports matched writers becoming alive or not alive.
type LivelinessChanged struct {
	Alive    CountWithChange
	NotAlive CountWithChange
	Writer   rtps.GUID
}

// DataWriterStatus is one writer-level notification.
type DataWriterStatus struct {
	OfferedIncompat    *OfferedIncompatibleQos
	PublicationMatched *PublicationMatched
}

// OfferedIncompatibleQos reports a remote reader refused for QoS reasons.
type OfferedIncompatibleQos struct {
	CountWithChange
	LastPolicy qos.PolicyID
	Reader     rtps.GUID
}

// PublicationMatched reports a reader match or unmatch.
type PublicationMatched struct {
	Total   CountWithChange
	Current CountWithChange
	Reader  rtps.GUID
}

const channelDepth = 16

// Channel fans a single event type out to one consumer with bounded
// buffering. Send never blocks.
type Channel[E any] struct {
	mu      sync.Mutex
	ch      chan E
	dropped uint64
	closed  bool
}

// NewChannel returns a channel with the default buffer depth.
func NewChannel[E any]() *Channel[E] {
	return &Channel[E]{ch: make(chan E, channelDepth)}
}

// C is the receive side for the application.
func (c *Channel[E]) C() <-chan E {
	return c.ch
}

// Send queues ev if there is room, and otherwise drops it. It reports
// whether the event was queued.
func (c *Channel[E]) Send(ev E) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- ev:
		return true
	default:
		c.dropped++
		return false
	}
}

// Dropped returns how many events were discarded for lack of buffer space.
func (c *Channel[E]) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close releases the channel. Further Sends report false.
func (c *Channel[E]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
