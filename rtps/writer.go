package rtps

import (
	"log/slog"
	"sync"
	"time"
)

// SendFunc transmits one marshalled RTPS message to a set of locators.
type SendFunc func(data []byte, locators []Locator)

// WriterConfig carries the engine-level writer settings derived from QoS.
type WriterConfig struct {
	GUID            GUID
	Reliable        bool
	HistoryDepth    int // 0 = keep all
	HeartbeatPeriod time.Duration
}

// Writer is the RTPS stateful writer. It owns the outgoing history cache,
// tracks matched reader proxies and answers their ACKNACKs.
type Writer struct {
	mu      sync.Mutex
	cfg     WriterConfig
	cache   *HistoryCache
	lastSN  SequenceNumber
	hbCount int32
	readers map[GUID]*ReaderProxy
	send    SendFunc
	logger  *slog.Logger

	// onReaderProgress fires after acknowledgment state advances, so the
	// DDS layer can wake blocked WaitForAcknowledgments callers.
	onReaderProgress func()
}

// NewWriter creates a writer. send must not be nil.
func NewWriter(cfg WriterConfig, send SendFunc, logger *slog.Logger) *Writer {
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = time.Second
	}
	return &Writer{
		cfg:     cfg,
		cache:   NewHistoryCache(cfg.HistoryDepth),
		readers: make(map[GUID]*ReaderProxy),
		send:    send,
		logger:  logger.With("writer", cfg.GUID.String()),
	}
}

// GUID returns the writer's GUID.
func (w *Writer) GUID() GUID { return w.cfg.GUID }

// Reliable reports the writer's reliability level.
func (w *Writer) Reliable() bool { return w.cfg.Reliable }

// SetProgressFunc installs the acknowledgment progress callback.
func (w *Writer) SetProgressFunc(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReaderProgress = fn
}

// NewChange appends a change to the history cache, assigning the next
// sequence number, and sends it to every matched reader.
func (w *Writer) NewChange(kind ChangeKind, payload []byte, ts Time) *CacheChange {
	w.mu.Lock()
	w.lastSN++
	c := &CacheChange{
		Kind:            kind,
		Writer:          w.cfg.GUID,
		SequenceNumber:  w.lastSN,
		SourceTimestamp: ts,
		Data:            payload,
	}
	w.cache.Add(c)
	w.mu.Unlock()

	w.sendChange(c)
	return c
}

// NewKeyedChange is NewChange with an instance key hash attached, used for
// keyed topics and the builtin discovery writers.
func (w *Writer) NewKeyedChange(kind ChangeKind, payload []byte, keyHash [16]byte, ts Time) *CacheChange {
	w.mu.Lock()
	w.lastSN++
	c := &CacheChange{
		Kind:            kind,
		Writer:          w.cfg.GUID,
		SequenceNumber:  w.lastSN,
		SourceTimestamp: ts,
		KeyHash:         keyHash,
		HasKeyHash:      true,
		Data:            payload,
	}
	w.cache.Add(c)
	w.mu.Unlock()

	w.sendChange(c)
	return c
}

// sendChange builds and transmits a DATA submessage for the change.
func (w *Writer) sendChange(c *CacheChange) {
	w.mu.Lock()
	targets := make([]*ReaderProxy, 0, len(w.readers))
	for _, rp := range w.readers {
		targets = append(targets, rp)
	}
	w.mu.Unlock()

	for _, rp := range targets {
		w.sendChangeTo(rp, c)
	}
}

func (w *Writer) sendChangeTo(rp *ReaderProxy, c *CacheChange) {
	data := NewData(rp.GUID.EntityID, w.cfg.GUID.EntityID, c.SequenceNumber, c.Data)
	switch c.Kind {
	case ChangeNotAliveDisposed:
		var qos ParameterList
		qos.Add(PIDStatusInfo, []byte{0, 0, 0, 0x01})
		if c.HasKeyHash {
			qos.Add(PIDKeyHash, c.KeyHash[:])
		}
		data.WithInlineQos(qos).MarkKeyOnly()
	case ChangeNotAliveUnregistered:
		var qos ParameterList
		qos.Add(PIDStatusInfo, []byte{0, 0, 0, 0x02})
		if c.HasKeyHash {
			qos.Add(PIDKeyHash, c.KeyHash[:])
		}
		data.WithInlineQos(qos).MarkKeyOnly()
	}

	b := NewMessageBuilder(w.cfg.GUID.Prefix).DestinedTo(rp.GUID.Prefix)
	if c.SourceTimestamp.IsValid() && c.SourceTimestamp != TimeZero {
		b.Timestamped(c.SourceTimestamp)
	}
	b.Add(data)
	w.send(b.Bytes(), rp.Locators())
}

// MatchReader adds (or replaces) a matched reader proxy. Existing history
// is pushed to the new reader so late joiners catch up when the cache still
// holds the changes.
func (w *Writer) MatchReader(rp *ReaderProxy) {
	w.mu.Lock()
	w.readers[rp.GUID] = rp
	w.mu.Unlock()
	w.logger.Debug("matched reader", "reader", rp.GUID.String())

	w.cache.Each(func(c *CacheChange) {
		w.sendChangeTo(rp, c)
	})
}

// UnmatchReader removes a matched reader.
func (w *Writer) UnmatchReader(guid GUID) {
	w.mu.Lock()
	delete(w.readers, guid)
	w.mu.Unlock()
	w.logger.Debug("unmatched reader", "reader", guid.String())
}

// MatchedReaders returns the GUIDs of all matched readers.
func (w *Writer) MatchedReaders() []GUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]GUID, 0, len(w.readers))
	for g := range w.readers {
		out = append(out, g)
	}
	return out
}

// HandleAckNack processes a reader's ACKNACK: acked changes may be dropped
// for keep-all writers, nacked changes are resent, and numbers no longer in
// the cache are gapped away.
func (w *Writer) HandleAckNack(an *AckNack, srcPrefix GUIDPrefix) {
	readerGUID := GUID{Prefix: srcPrefix, EntityID: an.ReaderID}

	w.mu.Lock()
	rp, ok := w.readers[readerGUID]
	if !ok {
		w.mu.Unlock()
		return
	}
	if an.Count <= rp.lastAckNackCount {
		w.mu.Unlock()
		return // stale or duplicate
	}
	rp.lastAckNackCount = an.Count
	if an.ReaderSNSet.Base-1 > rp.highestAcked {
		rp.highestAcked = an.ReaderSNSet.Base - 1
	}

	var resend []*CacheChange
	var gapped []SequenceNumber
	an.ReaderSNSet.Each(func(sn SequenceNumber) {
		if c := w.cache.Get(sn); c != nil {
			resend = append(resend, c)
		} else {
			gapped = append(gapped, sn)
		}
	})
	// Numbers below the cache minimum were dropped by history depth and
	// can never be resent.
	if min := w.cache.MinSeq(); min > an.ReaderSNSet.Base {
		for sn := an.ReaderSNSet.Base; sn < min; sn++ {
			gapped = append(gapped, sn)
		}
	}
	progress := w.onReaderProgress
	w.mu.Unlock()

	for _, c := range resend {
		w.sendChangeTo(rp, c)
	}
	if len(gapped) > 0 {
		w.sendGap(rp, gapped)
	}
	if progress != nil {
		progress()
	}
}

func (w *Writer) sendGap(rp *ReaderProxy, sns []SequenceNumber) {
	start := sns[0]
	end := start
	for _, sn := range sns[1:] {
		if sn == end+1 {
			end = sn
			continue
		}
		break
	}
	list := NewSequenceNumberSet(end + 1)
	for _, sn := range sns {
		if sn > end {
			list.Insert(sn)
		}
	}
	gap := NewGap(rp.GUID.EntityID, w.cfg.GUID.EntityID, start, list)
	msg := NewMessageBuilder(w.cfg.GUID.Prefix).DestinedTo(rp.GUID.Prefix).Add(gap).Bytes()
	w.send(msg, rp.Locators())
}

// TickHeartbeat sends a periodic HEARTBEAT to every matched reliable
// reader. Called by the participant event loop.
func (w *Writer) TickHeartbeat() {
	if !w.cfg.Reliable {
		return
	}
	w.mu.Lock()
	first := w.cache.MinSeq()
	last := w.cache.MaxSeq()
	if last == 0 {
		w.mu.Unlock()
		return
	}
	if first == 0 {
		first = 1
	}
	w.hbCount++
	count := w.hbCount
	targets := make([]*ReaderProxy, 0, len(w.readers))
	for _, rp := range w.readers {
		if rp.Reliable {
			targets = append(targets, rp)
		}
	}
	w.mu.Unlock()

	for _, rp := range targets {
		hb := NewHeartbeat(rp.GUID.EntityID, w.cfg.GUID.EntityID, first, last, count, false)
		msg := NewMessageBuilder(w.cfg.GUID.Prefix).DestinedTo(rp.GUID.Prefix).Add(hb).Bytes()
		w.send(msg, rp.Locators())
	}
}

// AllAcked reports whether every matched reliable reader has acknowledged
// every change in the cache.
func (w *Writer) AllAcked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last := w.cache.MaxSeq()
	for _, rp := range w.readers {
		if rp.Reliable && rp.highestAcked < last {
			return false
		}
	}
	return true
}

// LastSequenceNumber returns the most recently assigned sequence number.
func (w *Writer) LastSequenceNumber() SequenceNumber {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSN
}
