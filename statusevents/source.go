package statusevents

import (
	"sync"

	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
)

// ReaderStatusSource owns a reader's status counters and publishes
// DataReaderStatus events as they change.
type ReaderStatusSource struct {
	mu       sync.Mutex
	ch       *Channel[DataReaderStatus]
	lost     CountWithChange
	incompat CountWithChange
	matchTot CountWithChange
	matchCur CountWithChange
	alive    CountWithChange
	notAlive CountWithChange
}

func NewReaderStatusSource() *ReaderStatusSource {
	return &ReaderStatusSource{ch: NewChannel[DataReaderStatus]()}
}

// Events is the application-facing receive channel.
func (s *ReaderStatusSource) Events() <-chan DataReaderStatus {
	return s.ch.C()
}

// SampleLost records count newly lost samples from writer.
func (s *ReaderStatusSource) SampleLost(writer rtps.GUID, count int32, reason LostReason) {
	s.mu.Lock()
	st := s.lost.bump(count)
	s.mu.Unlock()
	s.ch.Send(DataReaderStatus{SampleLost: &SampleLost{
		CountWithChange: st,
		Reason:          reason,
		Writer:          writer,
	}})
}

// RequestedIncompatible records a writer refused for QoS reasons.
func (s *ReaderStatusSource) RequestedIncompatible(writer rtps.GUID, policy qos.PolicyID) {
	s.mu.Lock()
	st := s.incompat.bump(1)
	s.mu.Unlock()
	s.ch.Send(DataReaderStatus{RequestedIncompat: &RequestedIncompatibleQos{
		CountWithChange: st,
		LastPolicy:      policy,
		Writer:          writer,
	}})
}

// Matched records a writer match (matched true) or unmatch.
func (s *ReaderStatusSource) Matched(writer rtps.GUID, matched bool) {
	s.mu.Lock()
	var ev SubscriptionMatched
	if matched {
		ev = SubscriptionMatched{Total: s.matchTot.bump(1), Current: s.matchCur.bump(1), Writer: writer}
	} else {
		s.matchTot.CountChange = 0
		ev = SubscriptionMatched{Total: s.matchTot, Current: s.matchCur.bump(-1), Writer: writer}
	}
	s.mu.Unlock()
	s.ch.Send(DataReaderStatus{SubscriptionMatched: &ev})
}

// LivelinessChanged records a matched writer becoming alive or not alive.
func (s *ReaderStatusSource) LivelinessChanged(writer rtps.GUID, nowAlive bool) {
	s.mu.Lock()
	var ev LivelinessChanged
	if nowAlive {
		// A writer asserting liveliness for the first time was never in
		// the not-alive count, so there is nothing to take back from it.
		notAlive := s.notAlive
		notAlive.CountChange = 0
		if s.notAlive.Count > 0 {
			notAlive = s.notAlive.bump(-1)
		}
		ev = LivelinessChanged{Alive: s.alive.bump(1), NotAlive: notAlive, Writer: writer}
	} else {
		ev = LivelinessChanged{Alive: s.alive.bump(-1), NotAlive: s.notAlive.bump(1), Writer: writer}
	}
	s.mu.Unlock()
	s.ch.Send(DataReaderStatus{LivelinessChanged: &ev})
}

// Close releases the event channel.
func (s *ReaderStatusSource) Close() {
	s.ch.Close()
}

// WriterStatusSource owns a writer's status counters and publishes
// DataWriterStatus events as they change.
type WriterStatusSource struct {
	mu       sync.Mutex
	ch       *Channel[DataWriterStatus]
	incompat CountWithChange
	matchTot CountWithChange
	matchCur CountWithChange
}

func NewWriterStatusSource() *WriterStatusSource {
	return &WriterStatusSource{ch: NewChannel[DataWriterStatus]()}
}

// Events is the application-facing receive channel.
func (s *WriterStatusSource) Events() <-chan DataWriterStatus {
	return s.ch.C()
}

// OfferedIncompatible records a reader refused for QoS reasons.
func (s *WriterStatusSource) OfferedIncompatible(reader rtps.GUID, policy qos.PolicyID) {
	s.mu.Lock()
	st := s.incompat.bump(1)
	s.mu.Unlock()
	s.ch.Send(DataWriterStatus{OfferedIncompat: &OfferedIncompatibleQos{
		CountWithChange: st,
		LastPolicy:      policy,
		Reader:          reader,
	}})
}

// Matched records a reader match (matched true) or unmatch.
func (s *WriterStatusSource) Matched(reader rtps.GUID, matched bool) {
	s.mu.Lock()
	var ev PublicationMatched
	if matched {
		ev = PublicationMatched{Total: s.matchTot.bump(1), Current: s.matchCur.bump(1), Reader: reader}
	} else {
		s.matchTot.CountChange = 0
		ev = PublicationMatched{Total: s.matchTot, Current: s.matchCur.bump(-1), Reader: reader}
	}
	s.mu.Unlock()
	s.ch.Send(DataWriterStatus{PublicationMatched: &ev})
}

// Close releases the event channel.
func (s *WriterStatusSource) Close() {
	s.ch.Close()
}
