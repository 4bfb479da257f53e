// Package dds is the application-facing layer: domain participants,
// topics, publishers and subscribers, and typed data writers and readers.
// It glues the RTPS engine, discovery, transport and QoS packages into the
// usual DDS programming model.
package dds

import "errors"

// ErrClosed is returned by operations on a closed entity.
var ErrClosed = errors.New("dds: entity is closed")

// Observer receives counters from the participant's hot paths. The metrics
// package provides a Prometheus-backed implementation; the zero default is
// a no-op.
type Observer interface {
	ParticipantDiscovered()
	ParticipantLost()
	SampleWritten(topic string)
	SampleReceived(topic string)
	SamplesLost(topic string, count int)
	MalformedDatagram()
}

type nopObserver struct{}

func (nopObserver) ParticipantDiscovered()  {}
func (nopObserver) ParticipantLost()        {}
func (nopObserver) SampleWritten(string)    {}
func (nopObserver) SampleReceived(string)   {}
func (nopObserver) SamplesLost(string, int) {}
func (nopObserver) MalformedDatagram()      {}
