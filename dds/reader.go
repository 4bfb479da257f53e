package dds

import (
	"sync"

	"github.com/dataflume/flumedds/discovery"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/serialization"
	"github.com/dataflume/flumedds/statusevents"
)

// streamDepth is the buffer of the Samples channel. The reader cache keeps
// everything regardless; a full channel only means the application reads
// through Read or Take instead.
const streamDepth = 64

// DataReader receives typed samples from one topic.
type DataReader[D any] struct {
	dp    *DomainParticipant
	topic *Topic
	rr    *rtps.Reader
	qos   qos.Policies
	depth int

	status *statusevents.ReaderStatusSource
	stream chan Sample[D]

	mu        sync.Mutex
	closed    bool
	samples   []Sample[D]
	instances map[[16]byte]InstanceState
}

// CreateDataReader creates a reader for type D on the topic. The entity
// policies layer over the subscriber and topic defaults.
func CreateDataReader[D any](s *Subscriber, t *Topic, policies qos.Policies) (*DataReader[D], error) {
	dp := s.dp
	merged := effectiveQoS(policies, s.qos, t.qos)
	if err := dp.checkSubscribeAllowed(t.name, merged.Partitions); err != nil {
		return nil, err
	}

	var zero D
	_, keyed := any(zero).(Keyed)
	kind := rtps.EntityKindReaderNoKey
	if keyed {
		kind = rtps.EntityKindReaderWithKey
	}
	guid := rtps.GUID{Prefix: dp.guid.Prefix, EntityID: dp.nextEntityID(kind)}

	r := &DataReader[D]{
		dp:        dp,
		topic:     t,
		qos:       merged,
		depth:     merged.HistoryDepth(),
		status:    statusevents.NewReaderStatusSource(),
		stream:    make(chan Sample[D], streamDepth),
		instances: make(map[[16]byte]InstanceState),
	}
	r.rr = rtps.NewReader(rtps.ReaderConfig{
		GUID:     guid,
		Reliable: merged.IsReliable(),
	}, r.deliver, func(data []byte, locators []rtps.Locator) {
		if err := dp.tr.Send(data, locators); err != nil {
			dp.logger.Warn("send failed", "topic", t.name, "error", err)
		}
	}, dp.logger)
	r.rr.SetSampleLostFunc(func(count int) {
		r.status.SampleLost(rtps.GUID{}, int32(count), statusevents.LostBySkipAhead)
		dp.metrics.SamplesLost(t.name, count)
	})

	dp.mu.Lock()
	if dp.closed {
		dp.mu.Unlock()
		return nil, ErrClosed
	}
	dp.readers[guid] = &localReader{
		rr:       r.rr,
		topic:    t.name,
		typeName: t.typeName,
		qos:      merged,
		status:   r.status,
	}
	dp.mu.Unlock()

	dp.userReceiver.AttachReader(r.rr)
	dp.matchExistingWriters(dp.lookupReader(guid))

	mc := dp.tr.UserMulticastLocator()
	if err := dp.disc.AdvertiseReader(discovery.EndpointData{
		GUID:             guid,
		TopicName:        t.name,
		TypeName:         t.typeName,
		QoS:              merged,
		UnicastLocators:  dp.tr.UserUnicastLocators(),
		MulticastLocator: &mc,
	}); err != nil {
		dp.logger.Warn("advertise reader failed", "topic", t.name, "error", err)
	}
	return r, nil
}

func (dp *DomainParticipant) lookupReader(guid rtps.GUID) *localReader {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.readers[guid]
}

// GUID returns the reader's GUID.
func (r *DataReader[D]) GUID() rtps.GUID { return r.rr.GUID() }

// Topic returns the topic read from.
func (r *DataReader[D]) Topic() *Topic { return r.topic }

// QoS returns the effective policies.
func (r *DataReader[D]) QoS() qos.Policies { return r.qos }

// Status delivers reader status changes: matches, losses, liveliness.
func (r *DataReader[D]) Status() <-chan statusevents.DataReaderStatus {
	return r.status.Events()
}

// Samples streams arriving samples. Every sample also lands in the reader
// cache for Read and Take; the channel is a convenience for select loops.
func (r *DataReader[D]) Samples() <-chan Sample[D] {
	return r.stream
}

// deliver runs on receiver goroutines and must not block.
func (r *DataReader[D]) deliver(c *rtps.CacheChange) {
	info := SampleInfo{
		SampleState:     NotRead,
		InstanceState:   Alive,
		Writer:          c.Writer,
		SequenceNumber:  c.SequenceNumber,
		SourceTimestamp: c.SourceTimestamp,
		ValidData:       c.Kind == rtps.ChangeAlive,
	}
	if c.HasKeyHash {
		info.InstanceHandle = c.KeyHash
	}

	var sample Sample[D]
	switch c.Kind {
	case rtps.ChangeAlive:
		// []byte readers get the encapsulated payload as-is, matching
		// the []byte writer passthrough.
		if raw, ok := any(&sample.Value).(*[]byte); ok {
			*raw = append([]byte(nil), c.Data...)
		} else if err := serialization.Unmarshal(c.Data, &sample.Value); err != nil {
			r.dp.logger.Warn("sample decode failed",
				"topic", r.topic.name, "error", err)
			return
		}
	case rtps.ChangeNotAliveDisposed:
		info.InstanceState = NotAliveDisposed
	case rtps.ChangeNotAliveUnregistered:
		info.InstanceState = NotAliveUnregistered
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if c.HasKeyHash {
		r.instances[c.KeyHash] = info.InstanceState
	}
	sample.Info = info
	r.samples = append(r.samples, sample)
	r.enforceDepthLocked(c)
	select {
	case r.stream <- sample:
	default:
	}
	r.mu.Unlock()

	if info.ValidData {
		r.dp.metrics.SampleReceived(r.topic.name)
	}
}

// enforceDepthLocked drops the oldest cached samples of the arriving
// instance beyond the history depth. Depth zero keeps everything.
func (r *DataReader[D]) enforceDepthLocked(c *rtps.CacheChange) {
	if r.depth <= 0 {
		return
	}
	count := 0
	for i := len(r.samples) - 1; i >= 0; i-- {
		s := &r.samples[i]
		if c.HasKeyHash && s.Info.InstanceHandle != c.KeyHash {
			continue
		}
		count++
		if count > r.depth {
			r.samples = append(r.samples[:i], r.samples[i+1:]...)
			return
		}
	}
}

// Read returns up to max samples matching the condition, leaving them in
// the cache marked as read. max <= 0 means no limit.
func (r *DataReader[D]) Read(max int, cond ReadCondition) []Sample[D] {
	if cond == nil {
		cond = AnySample()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sample[D]
	for i := range r.samples {
		if max > 0 && len(out) >= max {
			break
		}
		if !cond(r.samples[i].Info) {
			continue
		}
		out = append(out, r.samples[i])
		r.samples[i].Info.SampleState = Read
	}
	return out
}

// Take returns up to max samples matching the condition and removes them
// from the cache. max <= 0 means no limit.
func (r *DataReader[D]) Take(max int, cond ReadCondition) []Sample[D] {
	if cond == nil {
		cond = AnySample()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sample[D]
	kept := r.samples[:0]
	for i := range r.samples {
		if (max <= 0 || len(out) < max) && cond(r.samples[i].Info) {
			out = append(out, r.samples[i])
			continue
		}
		kept = append(kept, r.samples[i])
	}
	r.samples = kept
	return out
}

// ReadNext returns the oldest not-read sample, marking it read. The second
// return is false when nothing new is cached.
func (r *DataReader[D]) ReadNext() (Sample[D], bool) {
	out := r.Read(1, NotReadSample())
	if len(out) == 0 {
		var zero Sample[D]
		return zero, false
	}
	return out[0], true
}

// TakeNext removes and returns the oldest not-read sample.
func (r *DataReader[D]) TakeNext() (Sample[D], bool) {
	out := r.Take(1, NotReadSample())
	if len(out) == 0 {
		var zero Sample[D]
		return zero, false
	}
	return out[0], true
}

// Close withdraws the reader from discovery and stops it.
func (r *DataReader[D]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	guid := r.rr.GUID()
	dp := r.dp
	dp.mu.Lock()
	delete(dp.readers, guid)
	dp.mu.Unlock()

	dp.disc.WithdrawReader(guid)
	dp.userReceiver.DetachReader(guid.EntityID)
	r.status.Close()
	close(r.stream)
	return nil
}
