package discovery

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/statusevents"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func locator(ip string, port int) rtps.Locator {
	return rtps.LocatorFromUDPAddr(&net.UDPAddr{IP: net.ParseIP(ip), Port: port})
}

func participant(name string, seed byte) ParticipantData {
	var prefix rtps.GUIDPrefix
	prefix[0], prefix[1] = 0x01, 0x20
	prefix[11] = seed
	return ParticipantData{
		GUID:               rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDParticipant},
		DomainID:           0,
		ProtocolVersion:    rtps.ProtocolVersion24,
		VendorID:           rtps.VendorIDThis,
		MetatrafficUnicast: []rtps.Locator{locator("192.168.1.10", 7410)},
		DefaultUnicast:     []rtps.Locator{locator("192.168.1.10", 7411)},
		LeaseDuration:      rtps.DurationFromStd(100 * time.Second),
		BuiltinEndpoints:   DefaultBuiltinEndpoints,
		EntityName:         name,
	}
}

func TestParticipantDataRoundTrip(t *testing.T) {
	in := participant("sensor-node", 7)
	in.IdentityToken = &Token{ClassID: "DDS:Auth:PKI-DH:1.0"}

	out, err := ParseParticipantData(in.Marshal())
	if err != nil {
		t.Fatalf("ParseParticipantData: %v", err)
	}
	if out.GUID != in.GUID {
		t.Errorf("GUID = %v, want %v", out.GUID, in.GUID)
	}
	if out.EntityName != "sensor-node" {
		t.Errorf("EntityName = %q", out.EntityName)
	}
	if out.LeaseDuration != in.LeaseDuration {
		t.Errorf("LeaseDuration = %v, want %v", out.LeaseDuration, in.LeaseDuration)
	}
	if out.BuiltinEndpoints != DefaultBuiltinEndpoints {
		t.Errorf("BuiltinEndpoints = %#x", out.BuiltinEndpoints)
	}
	if len(out.MetatrafficUnicast) != 1 || out.MetatrafficUnicast[0] != in.MetatrafficUnicast[0] {
		t.Errorf("MetatrafficUnicast = %v", out.MetatrafficUnicast)
	}
	if out.IdentityToken == nil || out.IdentityToken.ClassID != "DDS:Auth:PKI-DH:1.0" {
		t.Errorf("IdentityToken = %v", out.IdentityToken)
	}
}

func TestEndpointDataRoundTrip(t *testing.T) {
	writerGUID := participant("x", 3).GUID
	writerGUID.EntityID = rtps.NewEntityID(1, rtps.EntityKindWriterWithKey)
	in := EndpointData{
		GUID:      writerGUID,
		TopicName: "Square",
		TypeName:  "ShapeType",
		QoS: qos.NewBuilder().
			Reliable(rtps.DurationFromStd(100 * time.Millisecond)).
			Durability(qos.DurabilityTransientLocal).
			KeepLast(5).
			Partitions("left", "right").
			Build(),
		UnicastLocators: []rtps.Locator{locator("10.0.0.2", 7411)},
	}

	out, err := ParseEndpointData(in.Marshal())
	if err != nil {
		t.Fatalf("ParseEndpointData: %v", err)
	}
	if out.GUID != in.GUID || out.TopicName != "Square" || out.TypeName != "ShapeType" {
		t.Fatalf("identity fields: %+v", out)
	}
	if !out.QoS.IsReliable() {
		t.Error("reliability lost in transit")
	}
	if out.QoS.Durability == nil || *out.QoS.Durability != qos.DurabilityTransientLocal {
		t.Error("durability lost in transit")
	}
	if out.QoS.HistoryDepth() != 5 {
		t.Errorf("HistoryDepth = %d, want 5", out.QoS.HistoryDepth())
	}
	if len(out.QoS.Partitions) != 2 || out.QoS.Partitions[0] != "left" {
		t.Errorf("Partitions = %v", out.QoS.Partitions)
	}
	if len(out.UnicastLocators) != 1 || out.UnicastLocators[0] != in.UnicastLocators[0] {
		t.Errorf("UnicastLocators = %v", out.UnicastLocators)
	}
}

// recordingBus captures builtin publications instead of sending them.
type recordingBus struct {
	mu        sync.Mutex
	published []rtps.EntityID
	disposed  []rtps.GUID
}

func (b *recordingBus) PublishBuiltin(w rtps.EntityID, key rtps.GUID, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, w)
	return nil
}

func (b *recordingBus) DisposeBuiltin(w rtps.EntityID, key rtps.GUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = append(b.disposed, key)
	return nil
}

func newTestDiscovery(t *testing.T, cb Callbacks) (*Discovery, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	d := New(DefaultConfig(), participant("local", 1), bus, cb, testLogger())
	return d, bus
}

func TestDiscoverAndExpireParticipant(t *testing.T) {
	var found, lost int
	d, _ := newTestDiscovery(t, Callbacks{
		ParticipantFound: func(ParticipantData) { found++ },
		ParticipantLost:  func(rtps.GUIDPrefix) { lost++ },
	})

	remote := participant("remote", 2)
	remote.LeaseDuration = rtps.DurationFromStd(time.Millisecond)
	d.HandleSPDP(rtps.ChangeAlive, remote.GUID.Bytes(), remote.Marshal())
	if found != 1 {
		t.Fatalf("found = %d, want 1", found)
	}
	if len(d.Participants()) != 1 {
		t.Fatalf("Participants = %d, want 1", len(d.Participants()))
	}

	// Re-announcement of a known participant is not a new discovery.
	d.HandleSPDP(rtps.ChangeAlive, remote.GUID.Bytes(), remote.Marshal())
	if found != 1 {
		t.Fatalf("found = %d after re-announce, want 1", found)
	}

	d.expireLeases(time.Now().Add(time.Second))
	if lost != 1 {
		t.Fatalf("lost = %d, want 1", lost)
	}
	if len(d.Participants()) != 0 {
		t.Fatal("participant should be gone after lease expiry")
	}

	ev := <-d.Events()
	if ev.Kind != statusevents.ParticipantDiscovered {
		t.Fatalf("first event kind = %v", ev.Kind)
	}
}

func TestEndpointLifecycle(t *testing.T) {
	var writersFound, writersLost int
	d, _ := newTestDiscovery(t, Callbacks{
		WriterFound: func(EndpointData, ParticipantData) { writersFound++ },
		WriterLost:  func(rtps.GUID) { writersLost++ },
	})

	remote := participant("remote", 2)
	writerGUID := remote.GUID
	writerGUID.EntityID = rtps.NewEntityID(1, rtps.EntityKindWriterWithKey)
	ep := EndpointData{GUID: writerGUID, TopicName: "Square", TypeName: "ShapeType"}

	// SEDP before SPDP is parked until the participant is known.
	d.HandlePublication(rtps.ChangeAlive, writerGUID.Bytes(), ep.Marshal())
	if writersFound != 0 {
		t.Fatal("writer from unknown participant must not match")
	}

	d.HandleSPDP(rtps.ChangeAlive, remote.GUID.Bytes(), remote.Marshal())
	d.HandlePublication(rtps.ChangeAlive, writerGUID.Bytes(), ep.Marshal())
	if writersFound != 1 {
		t.Fatalf("writersFound = %d, want 1", writersFound)
	}

	d.HandlePublication(rtps.ChangeNotAliveDisposed, writerGUID.Bytes(), nil)
	if writersLost != 1 {
		t.Fatalf("writersLost = %d, want 1", writersLost)
	}
}

func TestParticipantDisposeDropsEndpoints(t *testing.T) {
	var writersLost []rtps.GUID
	d, _ := newTestDiscovery(t, Callbacks{
		WriterLost: func(g rtps.GUID) { writersLost = append(writersLost, g) },
	})

	remote := participant("remote", 2)
	writerGUID := remote.GUID
	writerGUID.EntityID = rtps.NewEntityID(1, rtps.EntityKindWriterWithKey)
	d.HandleSPDP(rtps.ChangeAlive, remote.GUID.Bytes(), remote.Marshal())
	d.HandlePublication(rtps.ChangeAlive, writerGUID.Bytes(),
		EndpointData{GUID: writerGUID, TopicName: "T", TypeName: "U"}.Marshal())

	d.HandleSPDP(rtps.ChangeNotAliveDisposed, remote.GUID.Bytes(), nil)
	if len(writersLost) != 1 || writersLost[0] != writerGUID {
		t.Fatalf("writersLost = %v", writersLost)
	}
}

func TestParticipantLostReason(t *testing.T) {
	lastLost := func(t *testing.T, d *Discovery) statusevents.ParticipantEvent {
		t.Helper()
		var lost *statusevents.ParticipantEvent
		for {
			select {
			case ev := <-d.Events():
				if ev.Kind == statusevents.ParticipantLost {
					lost = &ev
				}
			default:
				if lost == nil {
					t.Fatal("no ParticipantLost event")
				}
				return *lost
			}
		}
	}

	t.Run("disposed", func(t *testing.T) {
		d, _ := newTestDiscovery(t, Callbacks{})
		remote := participant("remote", 2)
		d.HandleSPDP(rtps.ChangeAlive, remote.GUID.Bytes(), remote.Marshal())
		d.HandleSPDP(rtps.ChangeNotAliveDisposed, remote.GUID.Bytes(), nil)
		if got := lastLost(t, d).LostReason; got != statusevents.LostByDispose {
			t.Errorf("LostReason = %v, want LostByDispose", got)
		}
	})

	t.Run("lease expired", func(t *testing.T) {
		d, _ := newTestDiscovery(t, Callbacks{})
		remote := participant("remote", 3)
		remote.LeaseDuration = rtps.DurationFromStd(time.Millisecond)
		d.HandleSPDP(rtps.ChangeAlive, remote.GUID.Bytes(), remote.Marshal())
		d.expireLeases(time.Now().Add(time.Second))
		if got := lastLost(t, d).LostReason; got != statusevents.LostByLeaseTimeout {
			t.Errorf("LostReason = %v, want LostByLeaseTimeout", got)
		}
	})
}

func TestAuthorizeRejectsParticipant(t *testing.T) {
	d, _ := newTestDiscovery(t, Callbacks{
		Authorize: func(pd ParticipantData) bool { return pd.EntityName != "intruder" },
	})

	banned := participant("intruder", 9)
	d.HandleSPDP(rtps.ChangeAlive, banned.GUID.Bytes(), banned.Marshal())
	if len(d.Participants()) != 0 {
		t.Fatal("rejected participant must not be tracked")
	}

	ok := participant("friend", 4)
	d.HandleSPDP(rtps.ChangeAlive, ok.GUID.Bytes(), ok.Marshal())
	if len(d.Participants()) != 1 {
		t.Fatal("authorized participant should be tracked")
	}
}

func TestAdvertiseWriterPublishesSEDP(t *testing.T) {
	d, bus := newTestDiscovery(t, Callbacks{})
	g := participant("local", 1).GUID
	g.EntityID = rtps.NewEntityID(1, rtps.EntityKindWriterWithKey)

	if err := d.AdvertiseWriter(EndpointData{GUID: g, TopicName: "T", TypeName: "U"}); err != nil {
		t.Fatalf("AdvertiseWriter: %v", err)
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.published) != 1 || bus.published[0] != rtps.EntityIDSEDPPublicationsWriter {
		t.Fatalf("published = %v", bus.published)
	}
}
