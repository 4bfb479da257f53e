package rtps

import (
	"log/slog"
	"sync"
	"time"
)

// DeliverFunc hands an in-order change up to the DDS layer.
type DeliverFunc func(*CacheChange)

// ReaderConfig carries the engine-level reader settings derived from QoS.
type ReaderConfig struct {
	GUID     GUID
	Reliable bool
	// Promiscuous accepts data from writers that were never matched,
	// creating a best-effort proxy on first contact. The SPDP builtin
	// reader needs this: participant announcements arrive before any
	// discovery state exists.
	Promiscuous bool
}

// Reader is the RTPS stateful reader. It tracks matched writer proxies,
// orders reliable traffic and answers heartbeats with ACKNACKs.
type Reader struct {
	mu           sync.Mutex
	cfg          ReaderConfig
	writers      map[GUID]*WriterProxy
	deliver      DeliverFunc
	send         SendFunc
	acknackCount int32
	logger       *slog.Logger

	// onSampleLost reports skipped sequence numbers (best-effort jumps,
	// gap-covered reliable samples).
	onSampleLost func(count int)
}

// NewReader creates a reader. deliver and send must not be nil.
func NewReader(cfg ReaderConfig, deliver DeliverFunc, send SendFunc, logger *slog.Logger) *Reader {
	return &Reader{
		cfg:     cfg,
		writers: make(map[GUID]*WriterProxy),
		deliver: deliver,
		send:    send,
		logger:  logger.With("reader", cfg.GUID.String()),
	}
}

// GUID returns the reader's GUID.
func (r *Reader) GUID() GUID { return r.cfg.GUID }

// Reliable reports the reader's reliability level.
func (r *Reader) Reliable() bool { return r.cfg.Reliable }

// SetSampleLostFunc installs the sample-lost callback.
func (r *Reader) SetSampleLostFunc(fn func(count int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSampleLost = fn
}

// MatchWriter adds (or replaces) a matched writer proxy.
func (r *Reader) MatchWriter(wp *WriterProxy) {
	r.mu.Lock()
	wp.lastSeen = time.Now()
	r.writers[wp.GUID] = wp
	r.mu.Unlock()
	r.logger.Debug("matched writer", "writer", wp.GUID.String())
}

// UnmatchWriter removes a matched writer.
func (r *Reader) UnmatchWriter(guid GUID) {
	r.mu.Lock()
	delete(r.writers, guid)
	r.mu.Unlock()
	r.logger.Debug("unmatched writer", "writer", guid.String())
}

// MatchedWriters returns the GUIDs of all matched writers.
func (r *Reader) MatchedWriters() []GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GUID, 0, len(r.writers))
	for g := range r.writers {
		out = append(out, g)
	}
	return out
}

// HandleData processes a DATA submessage from srcPrefix. ts is the source
// timestamp scoped by a preceding INFO_TS, or invalid.
func (r *Reader) HandleData(dt *Data, srcPrefix GUIDPrefix, ts Time) {
	writerGUID := GUID{Prefix: srcPrefix, EntityID: dt.WriterID}

	c := &CacheChange{
		Kind:            ChangeAlive,
		Writer:          writerGUID,
		SequenceNumber:  dt.WriterSN,
		SourceTimestamp: ts,
		Data:            dt.Payload,
	}
	if si, ok := dt.InlineQos.Get(PIDStatusInfo); ok && len(si) == 4 {
		switch {
		case si[3]&0x01 != 0:
			c.Kind = ChangeNotAliveDisposed
		case si[3]&0x02 != 0:
			c.Kind = ChangeNotAliveUnregistered
		}
	}
	if kh, ok := dt.InlineQos.Get(PIDKeyHash); ok && len(kh) == 16 {
		copy(c.KeyHash[:], kh)
		c.HasKeyHash = true
	}

	r.mu.Lock()
	wp, ok := r.writers[writerGUID]
	if !ok {
		if !r.cfg.Promiscuous {
			r.mu.Unlock()
			r.logger.Debug("data from unmatched writer", "writer", writerGUID.String())
			return
		}
		wp = NewWriterProxy(writerGUID, false, nil, nil)
		wp.lastSeen = time.Now()
		r.writers[writerGUID] = wp
	}
	wp.lastSeen = time.Now()
	if c.SequenceNumber > wp.lastAvailable {
		wp.lastAvailable = c.SequenceNumber
	}

	var deliveries []*CacheChange
	var lost int
	if r.cfg.Reliable && wp.Reliable {
		deliveries = r.acceptReliableLocked(wp, c)
	} else {
		deliveries, lost = r.acceptBestEffortLocked(wp, c)
	}
	onLost := r.onSampleLost
	r.mu.Unlock()

	for _, d := range deliveries {
		r.deliver(d)
	}
	if lost > 0 && onLost != nil {
		onLost(lost)
	}
}

// acceptReliableLocked buffers out-of-order changes and returns the run of
// changes that became deliverable in order.
func (r *Reader) acceptReliableLocked(wp *WriterProxy, c *CacheChange) []*CacheChange {
	if c.SequenceNumber <= wp.lastDelivered {
		return nil // duplicate
	}
	if _, ok := wp.pending[c.SequenceNumber]; ok {
		return nil
	}
	wp.pending[c.SequenceNumber] = c

	var out []*CacheChange
	for {
		next := wp.lastDelivered + 1
		if wp.irrelevant[next] {
			delete(wp.irrelevant, next)
			wp.lastDelivered = next
			continue
		}
		pc, ok := wp.pending[next]
		if !ok {
			break
		}
		delete(wp.pending, next)
		wp.lastDelivered = next
		out = append(out, pc)
	}
	return out
}

// acceptBestEffortLocked accepts any forward jump, reporting skipped
// numbers as lost.
func (r *Reader) acceptBestEffortLocked(wp *WriterProxy, c *CacheChange) ([]*CacheChange, int) {
	if c.SequenceNumber <= wp.lastDelivered {
		return nil, 0 // old or duplicate
	}
	lost := int(c.SequenceNumber - wp.lastDelivered - 1)
	if wp.lastDelivered == 0 {
		lost = 0 // first contact, nothing was promised before
	}
	wp.lastDelivered = c.SequenceNumber
	return []*CacheChange{c}, lost
}

// HandleHeartbeat processes a HEARTBEAT and responds with an ACKNACK when
// the writer requires one or data is missing.
func (r *Reader) HandleHeartbeat(hb *Heartbeat, srcPrefix GUIDPrefix) {
	writerGUID := GUID{Prefix: srcPrefix, EntityID: hb.WriterID}

	r.mu.Lock()
	wp, ok := r.writers[writerGUID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if hb.Count <= wp.lastHeartbeatCount {
		r.mu.Unlock()
		return // stale
	}
	wp.lastHeartbeatCount = hb.Count
	wp.lastSeen = time.Now()
	wp.firstAvailable = hb.FirstSN
	if hb.LastSN > wp.lastAvailable {
		wp.lastAvailable = hb.LastSN
	}

	// Everything below FirstSN is unrecoverable; skip ahead.
	var lost int
	if wp.lastDelivered+1 < hb.FirstSN {
		lost = int(hb.FirstSN - wp.lastDelivered - 1)
		wp.lastDelivered = hb.FirstSN - 1
	}

	missing := wp.missing()
	respond := !missing.IsEmpty() || !hb.Final()
	var an *AckNack
	if respond && r.cfg.Reliable {
		r.acknackCount++
		an = NewAckNack(r.cfg.GUID.EntityID, hb.WriterID, missing, r.acknackCount, missing.IsEmpty())
	}
	locators := wp.Locators()
	onLost := r.onSampleLost
	r.mu.Unlock()

	if lost > 0 && onLost != nil {
		onLost(lost)
	}
	if an != nil {
		msg := NewMessageBuilder(r.cfg.GUID.Prefix).DestinedTo(srcPrefix).Add(an).Bytes()
		r.send(msg, locators)
	}
}

// HandleGap marks the covered sequence numbers irrelevant and advances
// delivery past them.
func (r *Reader) HandleGap(gap *Gap, srcPrefix GUIDPrefix) {
	writerGUID := GUID{Prefix: srcPrefix, EntityID: gap.WriterID}

	r.mu.Lock()
	wp, ok := r.writers[writerGUID]
	if !ok {
		r.mu.Unlock()
		return
	}
	wp.lastSeen = time.Now()
	gap.Irrelevant(func(sn SequenceNumber) {
		if sn > wp.lastDelivered {
			wp.irrelevant[sn] = true
			// A change buffered out of order is superseded by the gap.
			delete(wp.pending, sn)
		}
	})

	// Flush any pending run that the gap unblocked.
	var out []*CacheChange
	for {
		next := wp.lastDelivered + 1
		if wp.irrelevant[next] {
			delete(wp.irrelevant, next)
			wp.lastDelivered = next
			continue
		}
		pc, ok := wp.pending[next]
		if !ok {
			break
		}
		delete(wp.pending, next)
		wp.lastDelivered = next
		out = append(out, pc)
	}
	r.mu.Unlock()

	for _, c := range out {
		r.deliver(c)
	}
}

// StaleWriters returns writers with no traffic for longer than lease.
func (r *Reader) StaleWriters(lease time.Duration) []GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []GUID
	now := time.Now()
	for g, wp := range r.writers {
		if now.Sub(wp.lastSeen) > lease {
			out = append(out, g)
		}
	}
	return out
}
