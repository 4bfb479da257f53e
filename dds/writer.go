package dds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dataflume/flumedds/discovery"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/serialization"
	"github.com/dataflume/flumedds/statusevents"
)

// DataWriter publishes typed samples on one topic.
type DataWriter[D any] struct {
	dp    *DomainParticipant
	topic *Topic
	rw    *rtps.Writer
	qos   qos.Policies
	keyed bool

	status *statusevents.WriterStatusSource

	mu     sync.Mutex
	closed bool
}

// CreateDataWriter creates a writer for type D on the topic. The entity
// policies layer over the publisher and topic defaults.
func CreateDataWriter[D any](p *Publisher, t *Topic, policies qos.Policies) (*DataWriter[D], error) {
	dp := p.dp
	merged := effectiveQoS(policies, p.qos, t.qos)
	if err := dp.checkPublishAllowed(t.name, merged.Partitions); err != nil {
		return nil, err
	}

	var zero D
	_, keyed := any(zero).(Keyed)
	kind := rtps.EntityKindWriterNoKey
	if keyed {
		kind = rtps.EntityKindWriterWithKey
	}
	guid := rtps.GUID{Prefix: dp.guid.Prefix, EntityID: dp.nextEntityID(kind)}

	rw := rtps.NewWriter(rtps.WriterConfig{
		GUID:            guid,
		Reliable:        merged.IsReliable(),
		HistoryDepth:    merged.HistoryDepth(),
		HeartbeatPeriod: dp.cfg.HeartbeatPeriod,
	}, func(data []byte, locators []rtps.Locator) {
		if err := dp.tr.Send(data, locators); err != nil {
			dp.logger.Warn("send failed", "topic", t.name, "error", err)
		}
	}, dp.logger)

	w := &DataWriter[D]{
		dp:     dp,
		topic:  t,
		rw:     rw,
		qos:    merged,
		keyed:  keyed,
		status: statusevents.NewWriterStatusSource(),
	}

	dp.mu.Lock()
	if dp.closed {
		dp.mu.Unlock()
		return nil, ErrClosed
	}
	dp.writers[guid] = &localWriter{
		rw:       rw,
		topic:    t.name,
		typeName: t.typeName,
		qos:      merged,
		status:   w.status,
	}
	dp.mu.Unlock()

	dp.userReceiver.AttachWriter(rw)
	dp.matchExistingReaders(dp.lookupWriter(guid))

	mc := dp.tr.UserMulticastLocator()
	if err := dp.disc.AdvertiseWriter(discovery.EndpointData{
		GUID:             guid,
		TopicName:        t.name,
		TypeName:         t.typeName,
		QoS:              merged,
		UnicastLocators:  dp.tr.UserUnicastLocators(),
		MulticastLocator: &mc,
	}); err != nil {
		dp.logger.Warn("advertise writer failed", "topic", t.name, "error", err)
	}
	return w, nil
}

func (dp *DomainParticipant) lookupWriter(guid rtps.GUID) *localWriter {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.writers[guid]
}

// GUID returns the writer's GUID.
func (w *DataWriter[D]) GUID() rtps.GUID { return w.rw.GUID() }

// Topic returns the topic written to.
func (w *DataWriter[D]) Topic() *Topic { return w.topic }

// QoS returns the effective policies.
func (w *DataWriter[D]) QoS() qos.Policies { return w.qos }

// Status delivers writer status changes: matches and QoS rejections.
func (w *DataWriter[D]) Status() <-chan statusevents.DataWriterStatus {
	return w.status.Events()
}

// Write publishes one sample stamped with the current time.
func (w *DataWriter[D]) Write(sample D) error {
	return w.WriteWithTimestamp(sample, time.Now())
}

// WriteWithTimestamp publishes one sample with an explicit source
// timestamp.
func (w *DataWriter[D]) WriteWithTimestamp(sample D, ts time.Time) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	// A []byte writer forwards pre-encapsulated payloads untouched. The
	// NATS bridge relies on this to gateway foreign types.
	payload, ok := any(sample).([]byte)
	if !ok {
		var err error
		payload, err = serialization.Marshal(sample)
		if err != nil {
			return fmt.Errorf("dds: marshal sample: %w", err)
		}
	}
	when := rtps.TimeFromStd(ts)
	if k, ok := any(sample).(Keyed); ok {
		hash, err := KeyHash(k.Key())
		if err != nil {
			return fmt.Errorf("dds: key hash: %w", err)
		}
		w.rw.NewKeyedChange(rtps.ChangeAlive, payload, hash, when)
	} else {
		w.rw.NewChange(rtps.ChangeAlive, payload, when)
	}
	w.dp.metrics.SampleWritten(w.topic.name)
	return nil
}

// AssertLiveliness manually asserts that this writer's participant is
// alive, for readers requesting manual-by-participant liveliness.
func (w *DataWriter[D]) AssertLiveliness() {
	w.dp.AssertLiveliness()
}

// Dispose marks the sample's instance as deleted. The type must be keyed.
func (w *DataWriter[D]) Dispose(sample D) error {
	return w.endInstance(sample, rtps.ChangeNotAliveDisposed)
}

// Unregister tells readers this writer stops updating the instance.
func (w *DataWriter[D]) Unregister(sample D) error {
	return w.endInstance(sample, rtps.ChangeNotAliveUnregistered)
}

func (w *DataWriter[D]) endInstance(sample D, kind rtps.ChangeKind) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	k, ok := any(sample).(Keyed)
	if !ok {
		return fmt.Errorf("dds: %s requires a keyed type", kind)
	}
	hash, err := KeyHash(k.Key())
	if err != nil {
		return fmt.Errorf("dds: key hash: %w", err)
	}
	w.rw.NewKeyedChange(kind, nil, hash, rtps.Now())
	return nil
}

// WaitForAcknowledgments blocks until every matched reliable reader has
// acknowledged everything written so far, or the context ends.
func (w *DataWriter[D]) WaitForAcknowledgments(ctx context.Context) error {
	progress := make(chan struct{}, 1)
	w.rw.SetProgressFunc(func() {
		select {
		case progress <- struct{}{}:
		default:
		}
	})
	defer w.rw.SetProgressFunc(nil)

	// Poll as a backstop. ACKNACKs can race the progress hook install.
	poll := time.NewTicker(w.dp.cfg.HeartbeatPeriod)
	defer poll.Stop()
	for {
		if w.rw.AllAcked() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-progress:
		case <-poll.C:
		}
	}
}

// Close withdraws the writer from discovery and stops it.
func (w *DataWriter[D]) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	guid := w.rw.GUID()
	dp := w.dp
	dp.mu.Lock()
	delete(dp.writers, guid)
	dp.mu.Unlock()

	dp.disc.WithdrawWriter(guid)
	dp.userReceiver.DetachWriter(guid.EntityID)
	w.status.Close()
	return nil
}
