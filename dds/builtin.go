package dds

import (
	"fmt"

	"github.com/dataflume/flumedds/discovery"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/serialization"
)

// ParticipantMessageData kinds for liveliness assertions.
var (
	livelinessAutomatic           = [4]byte{0x00, 0x00, 0x00, 0x01}
	livelinessManualByParticipant = [4]byte{0x00, 0x00, 0x00, 0x02}
)

// participantMessage is the payload of the builtin participant message
// topic, used for liveliness.
type participantMessage struct {
	Prefix [12]byte
	Kind   [4]byte
	Data   []byte
}

func (m participantMessage) keyHash() [16]byte {
	var h [16]byte
	copy(h[:12], m.Prefix[:])
	copy(h[12:], m.Kind[:])
	return h
}

// builtinEndpoints bundles the SPDP, SEDP and participant message
// endpoints of one participant. They all live on the discovery receiver
// and the metatraffic sockets.
type builtinEndpoints struct {
	dp *DomainParticipant

	spdpWriter    *rtps.Writer
	spdpReader    *rtps.Reader
	sedpPubWriter *rtps.Writer
	sedpPubReader *rtps.Reader
	sedpSubWriter *rtps.Writer
	sedpSubReader *rtps.Reader
	pmWriter      *rtps.Writer
	pmReader      *rtps.Reader

	// Stateless message endpoints carry the authentication handshake.
	// They exist only on secured participants.
	hsWriter *rtps.Writer
	hsReader *rtps.Reader
}

func newBuiltinEndpoints(dp *DomainParticipant) *builtinEndpoints {
	b := &builtinEndpoints{dp: dp}
	send := func(data []byte, locators []rtps.Locator) {
		if err := dp.tr.Send(data, locators); err != nil {
			dp.logger.Warn("builtin send failed", "error", err)
		}
	}
	prefix := dp.guid.Prefix
	writer := func(id rtps.EntityID, reliable bool, depth int) *rtps.Writer {
		w := rtps.NewWriter(rtps.WriterConfig{
			GUID:            rtps.GUID{Prefix: prefix, EntityID: id},
			Reliable:        reliable,
			HistoryDepth:    depth,
			HeartbeatPeriod: dp.cfg.HeartbeatPeriod,
		}, send, dp.logger)
		dp.discReceiver.AttachWriter(w)
		return w
	}
	reader := func(id rtps.EntityID, reliable, promiscuous bool, deliver rtps.DeliverFunc) *rtps.Reader {
		r := rtps.NewReader(rtps.ReaderConfig{
			GUID:        rtps.GUID{Prefix: prefix, EntityID: id},
			Reliable:    reliable,
			Promiscuous: promiscuous,
		}, deliver, send, dp.logger)
		dp.discReceiver.AttachReader(r)
		return r
	}

	b.spdpWriter = writer(rtps.EntityIDSPDPParticipantWriter, false, 1)
	b.sedpPubWriter = writer(rtps.EntityIDSEDPPublicationsWriter, true, 0)
	b.sedpSubWriter = writer(rtps.EntityIDSEDPSubscriptionsWriter, true, 0)
	b.pmWriter = writer(rtps.EntityIDParticipantMessageWriter, true, 1)

	b.spdpReader = reader(rtps.EntityIDSPDPParticipantReader, false, true,
		func(c *rtps.CacheChange) {
			dp.disc.HandleSPDP(c.Kind, c.KeyHash, c.Data)
		})
	b.sedpPubReader = reader(rtps.EntityIDSEDPPublicationsReader, true, false,
		func(c *rtps.CacheChange) {
			dp.disc.HandlePublication(c.Kind, c.KeyHash, c.Data)
		})
	b.sedpSubReader = reader(rtps.EntityIDSEDPSubscriptionsReader, true, false,
		func(c *rtps.CacheChange) {
			dp.disc.HandleSubscription(c.Kind, c.KeyHash, c.Data)
		})
	b.pmReader = reader(rtps.EntityIDParticipantMessageReader, true, false,
		func(c *rtps.CacheChange) {
			dp.disc.RefreshLease(c.Writer.Prefix)
		})

	if dp.identity != nil {
		// Best effort both ways: handshake tokens are retried off the
		// periodic discovery announcements, not by RTPS reliability.
		// The reader is promiscuous because tokens arrive from peers
		// that are, by definition, not admitted yet.
		b.hsWriter = writer(rtps.EntityIDStatelessMessageWriter, false, 1)
		b.hsReader = reader(rtps.EntityIDStatelessMessageReader, false, true,
			dp.handleHandshakeChange)
	}

	// SPDP goes to the well-known multicast group before anyone is
	// discovered.
	b.spdpWriter.MatchReader(rtps.NewReaderProxy(
		rtps.GUID{Prefix: rtps.GUIDPrefixUnknown, EntityID: rtps.EntityIDSPDPParticipantReader},
		false, nil, []rtps.Locator{dp.tr.DiscoveryMulticastLocator()}))
	return b
}

// matchParticipant pairs the local builtin endpoints with the remote
// participant's, honoring its advertised builtin endpoint set.
func (b *builtinEndpoints) matchParticipant(pd discovery.ParticipantData) {
	prefix := pd.GUID.Prefix
	unicast := pd.MetatrafficUnicast
	multicast := pd.MetatrafficMulticast
	has := func(bit uint32) bool { return pd.BuiltinEndpoints&bit != 0 }

	if has(discovery.EndpointParticipantDetector) {
		b.spdpWriter.MatchReader(rtps.NewReaderProxy(
			rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSPDPParticipantReader},
			false, unicast, multicast))
	}
	if has(discovery.EndpointPublicationsDetector) {
		b.sedpPubWriter.MatchReader(rtps.NewReaderProxy(
			rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPPublicationsReader},
			true, unicast, multicast))
	}
	if has(discovery.EndpointPublicationsAnnouncer) {
		b.sedpPubReader.MatchWriter(rtps.NewWriterProxy(
			rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPPublicationsWriter},
			true, unicast, multicast))
	}
	if has(discovery.EndpointSubscriptionsDetector) {
		b.sedpSubWriter.MatchReader(rtps.NewReaderProxy(
			rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPSubscriptionsReader},
			true, unicast, multicast))
	}
	if has(discovery.EndpointSubscriptionsAnnouncer) {
		b.sedpSubReader.MatchWriter(rtps.NewWriterProxy(
			rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPSubscriptionsWriter},
			true, unicast, multicast))
	}
	if has(discovery.EndpointParticipantMessageReader) {
		b.pmWriter.MatchReader(rtps.NewReaderProxy(
			rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDParticipantMessageReader},
			true, unicast, multicast))
	}
	if has(discovery.EndpointParticipantMessageWriter) {
		b.pmReader.MatchWriter(rtps.NewWriterProxy(
			rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDParticipantMessageWriter},
			true, unicast, multicast))
	}
}

// matchHandshakePeer points the stateless message writer at a peer that is
// still being authenticated. It runs before admission, so it only uses the
// locators from the peer's own announcement.
func (b *builtinEndpoints) matchHandshakePeer(pd discovery.ParticipantData) {
	if b.hsWriter == nil {
		return
	}
	b.hsWriter.MatchReader(rtps.NewReaderProxy(
		rtps.GUID{Prefix: pd.GUID.Prefix, EntityID: rtps.EntityIDStatelessMessageReader},
		false, pd.MetatrafficUnicast, pd.MetatrafficMulticast))
}

func (b *builtinEndpoints) unmatchParticipant(prefix rtps.GUIDPrefix) {
	b.spdpWriter.UnmatchReader(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSPDPParticipantReader})
	b.sedpPubWriter.UnmatchReader(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPPublicationsReader})
	b.sedpPubReader.UnmatchWriter(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPPublicationsWriter})
	b.sedpSubWriter.UnmatchReader(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPSubscriptionsReader})
	b.sedpSubReader.UnmatchWriter(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDSEDPSubscriptionsWriter})
	b.pmWriter.UnmatchReader(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDParticipantMessageReader})
	b.pmReader.UnmatchWriter(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDParticipantMessageWriter})
	if b.hsWriter != nil {
		b.hsWriter.UnmatchReader(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDStatelessMessageReader})
		b.hsReader.UnmatchWriter(rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDStatelessMessageWriter})
	}
}

func (b *builtinEndpoints) tickHeartbeats() {
	b.sedpPubWriter.TickHeartbeat()
	b.sedpSubWriter.TickHeartbeat()
	b.pmWriter.TickHeartbeat()
}

// assertLiveliness publishes one liveliness sample of the given kind on
// the participant message topic.
func (b *builtinEndpoints) assertLiveliness(kind [4]byte) {
	msg := participantMessage{Prefix: b.dp.guid.Prefix, Kind: kind}
	payload, err := serialization.Marshal(msg)
	if err != nil {
		b.dp.logger.Warn("liveliness marshal failed", "error", err)
		return
	}
	b.pmWriter.NewKeyedChange(rtps.ChangeAlive, payload, msg.keyHash(), rtps.Now())
}

func (b *builtinEndpoints) writerFor(id rtps.EntityID) *rtps.Writer {
	switch id {
	case rtps.EntityIDSPDPParticipantWriter:
		return b.spdpWriter
	case rtps.EntityIDSEDPPublicationsWriter:
		return b.sedpPubWriter
	case rtps.EntityIDSEDPSubscriptionsWriter:
		return b.sedpSubWriter
	case rtps.EntityIDParticipantMessageWriter:
		return b.pmWriter
	}
	return nil
}

// PublishBuiltin implements discovery.BuiltinBus.
func (dp *DomainParticipant) PublishBuiltin(writer rtps.EntityID, key rtps.GUID, payload []byte) error {
	w := dp.builtin.writerFor(writer)
	if w == nil {
		return fmt.Errorf("dds: no builtin writer %s", writer)
	}
	w.NewKeyedChange(rtps.ChangeAlive, payload, key.Bytes(), rtps.Now())
	return nil
}

// DisposeBuiltin implements discovery.BuiltinBus.
func (dp *DomainParticipant) DisposeBuiltin(writer rtps.EntityID, key rtps.GUID) error {
	w := dp.builtin.writerFor(writer)
	if w == nil {
		return fmt.Errorf("dds: no builtin writer %s", writer)
	}
	w.NewKeyedChange(rtps.ChangeNotAliveDisposed, nil, key.Bytes(), rtps.Now())
	return nil
}
