package dds

import (
	"github.com/dataflume/flumedds/rtps"
)

// SampleState says whether the application has already read a sample.
type SampleState int

const (
	NotRead SampleState = iota
	Read
)

// InstanceState mirrors the change kind that produced a sample.
type InstanceState int

const (
	Alive InstanceState = iota + 1
	NotAliveDisposed
	NotAliveUnregistered
)

// SampleInfo accompanies every sample a reader hands out.
type SampleInfo struct {
	SampleState   SampleState
	InstanceState InstanceState
	Writer        rtps.GUID
	// InstanceHandle is the key hash of the sample's instance. It is the
	// zero value for samples of keyless topics.
	InstanceHandle  [16]byte
	SequenceNumber  rtps.SequenceNumber
	SourceTimestamp rtps.Time
	// ValidData is false for dispose and unregister notifications, whose
	// Value carries only the key.
	ValidData bool
}

// Sample pairs a decoded value with its metadata.
type Sample[D any] struct {
	Value D
	Info  SampleInfo
}

// ReadCondition filters which samples Read and Take return.
type ReadCondition func(SampleInfo) bool

// AnySample accepts everything.
func AnySample() ReadCondition {
	return func(SampleInfo) bool { return true }
}

// NotReadSample accepts only samples not yet read.
func NotReadSample() ReadCondition {
	return func(si SampleInfo) bool { return si.SampleState == NotRead }
}

// AliveSample accepts only samples of alive instances.
func AliveSample() ReadCondition {
	return func(si SampleInfo) bool { return si.InstanceState == Alive }
}
