package rtps

import (
	"log/slog"
	"sync"
)

// MessageReceiver parses incoming datagrams and dispatches submessages to
// the local endpoints they address, maintaining the per-message receiver
// state (source prefix, destination scoping, timestamps).
type MessageReceiver struct {
	mu        sync.RWMutex
	ownPrefix GUIDPrefix
	readers   map[EntityID]*Reader
	writers   map[EntityID]*Writer
	logger    *slog.Logger

	// onMalformed counts undecodable datagrams.
	onMalformed func()
}

// NewMessageReceiver creates a receiver for the participant with the given
// prefix.
func NewMessageReceiver(ownPrefix GUIDPrefix, logger *slog.Logger) *MessageReceiver {
	return &MessageReceiver{
		ownPrefix: ownPrefix,
		readers:   make(map[EntityID]*Reader),
		writers:   make(map[EntityID]*Writer),
		logger:    logger,
	}
}

// SetMalformedFunc installs the malformed-datagram callback.
func (mr *MessageReceiver) SetMalformedFunc(fn func()) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.onMalformed = fn
}

// AttachReader registers a local reader for dispatch.
func (mr *MessageReceiver) AttachReader(r *Reader) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.readers[r.GUID().EntityID] = r
}

// DetachReader removes a local reader.
func (mr *MessageReceiver) DetachReader(id EntityID) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	delete(mr.readers, id)
}

// AttachWriter registers a local writer for dispatch.
func (mr *MessageReceiver) AttachWriter(w *Writer) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.writers[w.GUID().EntityID] = w
}

// DetachWriter removes a local writer.
func (mr *MessageReceiver) DetachWriter(id EntityID) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	delete(mr.writers, id)
}

// HandleDatagram parses and dispatches one received datagram.
func (mr *MessageReceiver) HandleDatagram(datagram []byte) {
	msg, err := ParseMessage(datagram)
	if err != nil {
		mr.mu.RLock()
		onMalformed := mr.onMalformed
		mr.mu.RUnlock()
		if onMalformed != nil {
			onMalformed()
		}
		mr.logger.Debug("dropping malformed datagram", "error", err)
		return
	}
	if msg.Header.Prefix == mr.ownPrefix {
		return // our own multicast loopback
	}

	srcPrefix := msg.Header.Prefix
	timestamp := TimeInvalid
	destined := true

	for _, sm := range msg.Submessages {
		switch s := sm.(type) {
		case *InfoTimestamp:
			if s.Invalidate() {
				timestamp = TimeInvalid
			} else {
				timestamp = s.Timestamp
			}
		case *InfoDestination:
			destined = s.Prefix == GUIDPrefixUnknown || s.Prefix == mr.ownPrefix
		case *Data:
			if destined {
				mr.dispatchData(s, srcPrefix, timestamp)
			}
		case *Heartbeat:
			if destined {
				mr.dispatchHeartbeat(s, srcPrefix)
			}
		case *AckNack:
			if destined {
				mr.dispatchAckNack(s, srcPrefix)
			}
		case *Gap:
			if destined {
				mr.dispatchGap(s, srcPrefix)
			}
		}
	}
}

func (mr *MessageReceiver) dispatchData(dt *Data, src GUIDPrefix, ts Time) {
	for _, r := range mr.readersFor(dt.ReaderID, GUID{Prefix: src, EntityID: dt.WriterID}) {
		r.HandleData(dt, src, ts)
	}
}

func (mr *MessageReceiver) dispatchHeartbeat(hb *Heartbeat, src GUIDPrefix) {
	for _, r := range mr.readersFor(hb.ReaderID, GUID{Prefix: src, EntityID: hb.WriterID}) {
		r.HandleHeartbeat(hb, src)
	}
}

func (mr *MessageReceiver) dispatchGap(gap *Gap, src GUIDPrefix) {
	for _, r := range mr.readersFor(gap.ReaderID, GUID{Prefix: src, EntityID: gap.WriterID}) {
		r.HandleGap(gap, src)
	}
}

func (mr *MessageReceiver) dispatchAckNack(an *AckNack, src GUIDPrefix) {
	mr.mu.RLock()
	w := mr.writers[an.WriterID]
	mr.mu.RUnlock()
	if w != nil {
		w.HandleAckNack(an, src)
	}
}

// readersFor resolves the target readers. When the reader id is unknown,
// as in multicast traffic, every local reader matched to the sending
// writer is addressed.
func (mr *MessageReceiver) readersFor(readerID EntityID, writer GUID) []*Reader {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	if readerID != EntityIDUnknown {
		if r, ok := mr.readers[readerID]; ok {
			return []*Reader{r}
		}
		return nil
	}
	var out []*Reader
	for _, r := range mr.readers {
		for _, g := range r.MatchedWriters() {
			if g == writer {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
