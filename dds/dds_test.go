package dds

import (
	"bytes"
	"crypto/md5"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dataflume/flumedds/discovery"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/security/auth"
	"github.com/dataflume/flumedds/serialization"
	"github.com/dataflume/flumedds/statusevents"
)

type shapeSample struct {
	Color string
	X     int32
	Y     int32
}

type keyedShape struct {
	Color string
	X     int32
	Y     int32
}

func (s keyedShape) Key() any { return s.Color }

func TestParticipantConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ParticipantConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*ParticipantConfig) {}},
		{name: "zero lease", mutate: func(c *ParticipantConfig) {
			c.LeaseDuration = 0
		}, wantErr: true},
		{name: "zero heartbeat", mutate: func(c *ParticipantConfig) {
			c.HeartbeatPeriod = 0
		}, wantErr: true},
		{name: "announce above lease", mutate: func(c *ParticipantConfig) {
			c.LeaseDuration = 5 * time.Second
		}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultParticipantConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEffectiveQoSLayers(t *testing.T) {
	topic := qos.NewBuilder().Reliable(rtps.DurationFromStd(time.Second)).KeepLast(8).Build()
	group := qos.NewBuilder().Partitions("ops").Build()
	entity := qos.NewBuilder().KeepLast(2).Build()

	merged := effectiveQoS(entity, group, topic)
	if !merged.IsReliable() {
		t.Error("topic reliability should survive the merge")
	}
	if got := merged.HistoryDepth(); got != 2 {
		t.Errorf("entity history should win, got depth %d", got)
	}
	if len(merged.Partitions) != 1 || merged.Partitions[0] != "ops" {
		t.Errorf("group partitions should survive, got %v", merged.Partitions)
	}
}

func TestIncompatibility(t *testing.T) {
	reliable := qos.NewBuilder().Reliable(rtps.DurationFromStd(time.Second)).Build()
	bestEffort := qos.NewBuilder().BestEffort().Build()

	if policy, ok := incompatibility(bestEffort, reliable, "Shape", "Shape"); ok || policy != qos.PolicyReliability {
		t.Errorf("reliable reader against best-effort writer: got ok=%v policy=%v", ok, policy)
	}
	if _, ok := incompatibility(reliable, bestEffort, "Shape", "Shape"); !ok {
		t.Error("best-effort reader should accept a reliable writer")
	}
	if _, ok := incompatibility(reliable, reliable, "Shape", "Square"); ok {
		t.Error("type name mismatch must block the pairing")
	}

	partitioned := qos.NewBuilder().Partitions("ops").Build()
	if policy, ok := incompatibility(partitioned, qos.Policies{}, "Shape", "Shape"); ok || policy != qos.PolicyPartition {
		t.Errorf("partition mismatch: got ok=%v policy=%v", ok, policy)
	}
}

func TestKeyedDetection(t *testing.T) {
	if _, ok := any(keyedShape{}).(Keyed); !ok {
		t.Error("keyedShape must be detected as keyed")
	}
	if _, ok := any(shapeSample{}).(Keyed); ok {
		t.Error("shapeSample must not be detected as keyed")
	}
}

func TestKeyHashShortKeyPadded(t *testing.T) {
	hash, err := KeyHash("RED")
	if err != nil {
		t.Fatalf("KeyHash: %v", err)
	}
	want := [16]byte{0x00, 0x00, 0x00, 0x04, 'R', 'E', 'D', 0x00}
	if hash != want {
		t.Errorf("hash = % x, want % x", hash, want)
	}
}

func TestKeyHashLongKeyDigested(t *testing.T) {
	key := "a-rather-long-instance-key"
	hash, err := KeyHash(key)
	if err != nil {
		t.Fatalf("KeyHash: %v", err)
	}
	body := []byte{0x00, 0x00, 0x00, 0x1b}
	body = append(body, key...)
	body = append(body, 0x00)
	if want := md5.Sum(body); hash != want {
		t.Errorf("hash = % x, want % x", hash, want)
	}
}

func TestParticipantMessageKeyHash(t *testing.T) {
	msg := participantMessage{
		Prefix: rtps.GUIDPrefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Kind:   livelinessAutomatic,
	}
	hash := msg.keyHash()
	if !bytes.Equal(hash[:12], msg.Prefix[:]) {
		t.Error("key hash must start with the guid prefix")
	}
	if !bytes.Equal(hash[12:], livelinessAutomatic[:]) {
		t.Error("key hash must end with the message kind")
	}
}

// testReader builds a disconnected reader around the sample cache, enough
// to exercise deliver, Read and Take without sockets.
func testReader(depth int) *DataReader[shapeSample] {
	return &DataReader[shapeSample]{
		dp: &DomainParticipant{
			logger:  slog.Default(),
			metrics: nopObserver{},
		},
		topic:     &Topic{name: "Shapes", typeName: "Shape"},
		depth:     depth,
		status:    statusevents.NewReaderStatusSource(),
		stream:    make(chan Sample[shapeSample], streamDepth),
		instances: make(map[[16]byte]InstanceState),
	}
}

func aliveChange(t *testing.T, sn int64, v shapeSample) *rtps.CacheChange {
	t.Helper()
	payload, err := serialization.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &rtps.CacheChange{
		Kind:           rtps.ChangeAlive,
		Writer:         rtps.GUID{Prefix: rtps.GUIDPrefix{1}},
		SequenceNumber: rtps.SequenceNumber(sn),
		Data:           payload,
	}
}

func TestReaderReadAndTake(t *testing.T) {
	r := testReader(0)
	r.deliver(aliveChange(t, 1, shapeSample{Color: "RED", X: 1, Y: 2}))
	r.deliver(aliveChange(t, 2, shapeSample{Color: "BLUE", X: 3, Y: 4}))

	got := r.Read(0, NotReadSample())
	if len(got) != 2 {
		t.Fatalf("Read returned %d samples, want 2", len(got))
	}
	if got[0].Value.Color != "RED" || got[1].Value.Color != "BLUE" {
		t.Errorf("unexpected order: %q then %q", got[0].Value.Color, got[1].Value.Color)
	}
	if again := r.Read(0, NotReadSample()); len(again) != 0 {
		t.Errorf("second not-read Read returned %d samples, want 0", len(again))
	}

	taken := r.Take(1, AnySample())
	if len(taken) != 1 || taken[0].Value.Color != "RED" {
		t.Fatalf("Take(1) = %v", taken)
	}
	if rest := r.Take(0, AnySample()); len(rest) != 1 || rest[0].Value.Color != "BLUE" {
		t.Fatalf("remaining Take = %v", rest)
	}
	if empty := r.Take(0, AnySample()); len(empty) != 0 {
		t.Errorf("cache should be empty, got %d samples", len(empty))
	}
}

func TestReaderStreamMirrorsCache(t *testing.T) {
	r := testReader(0)
	r.deliver(aliveChange(t, 1, shapeSample{Color: "RED"}))
	select {
	case s := <-r.Samples():
		if s.Value.Color != "RED" {
			t.Errorf("streamed %q, want RED", s.Value.Color)
		}
	default:
		t.Fatal("stream should carry the delivered sample")
	}
	if got := r.Take(0, AnySample()); len(got) != 1 {
		t.Errorf("cache should still hold the sample, got %d", len(got))
	}
}

func TestReaderDisposeSample(t *testing.T) {
	r := testReader(0)
	var key [16]byte
	copy(key[:], "instance-1")
	r.deliver(&rtps.CacheChange{
		Kind:           rtps.ChangeNotAliveDisposed,
		Writer:         rtps.GUID{Prefix: rtps.GUIDPrefix{2}},
		SequenceNumber: 1,
		KeyHash:        key,
		HasKeyHash:     true,
	})

	got := r.Take(0, AnySample())
	if len(got) != 1 {
		t.Fatalf("Take returned %d samples, want 1", len(got))
	}
	if got[0].Info.ValidData {
		t.Error("dispose notification must not claim valid data")
	}
	if got[0].Info.InstanceState != NotAliveDisposed {
		t.Errorf("instance state = %v, want NotAliveDisposed", got[0].Info.InstanceState)
	}
	if r.instances[key] != NotAliveDisposed {
		t.Error("instance map should record the disposal")
	}
}

func TestReaderHistoryDepth(t *testing.T) {
	r := testReader(2)
	for i := int64(1); i <= 5; i++ {
		r.deliver(aliveChange(t, i, shapeSample{X: int32(i)}))
	}
	got := r.Take(0, AnySample())
	if len(got) != 2 {
		t.Fatalf("depth 2 cache held %d samples", len(got))
	}
	if got[0].Value.X != 4 || got[1].Value.X != 5 {
		t.Errorf("kept X=%d,%d, want the two newest (4,5)", got[0].Value.X, got[1].Value.X)
	}
}

func TestHandshakeMessageRoundTrip(t *testing.T) {
	in := handshakeMessage{
		Source:      rtps.GUIDPrefix{1, 2, 3},
		Destination: rtps.GUIDPrefix{4, 5, 6},
		Token: auth.HandshakeToken{
			ClassID:     auth.RequestTokenClassID,
			Certificate: []byte{0x30, 0x82},
			Challenge:   bytes.Repeat([]byte{0xAB}, 32),
			DHPublicKey: []byte{0x04, 0x01},
		},
	}
	payload, err := serialization.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out handshakeMessage
	if err := serialization.Unmarshal(payload, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Source != in.Source || out.Destination != in.Destination {
		t.Errorf("addressing mismatch: %+v", out)
	}
	if out.Token.ClassID != in.Token.ClassID ||
		!bytes.Equal(out.Token.Challenge, in.Token.Challenge) ||
		!bytes.Equal(out.Token.DHPublicKey, in.Token.DHPublicKey) {
		t.Errorf("token mismatch: %+v", out.Token)
	}
}

func TestReaderHistoryDepthPerInstance(t *testing.T) {
	r := testReader(1)
	keyed := func(sn int64, color string, x int32) *rtps.CacheChange {
		c := aliveChange(t, sn, shapeSample{Color: color, X: x})
		copy(c.KeyHash[:], color)
		c.HasKeyHash = true
		return c
	}
	// Two instances from the same writer. Depth applies per instance,
	// so the newest RED and the newest BLUE both survive.
	r.deliver(keyed(1, "RED", 1))
	r.deliver(keyed(2, "BLUE", 2))
	r.deliver(keyed(3, "RED", 3))
	r.deliver(keyed(4, "BLUE", 4))

	got := r.Take(0, AnySample())
	if len(got) != 2 {
		t.Fatalf("depth 1 with two instances held %d samples, want 2", len(got))
	}
	if got[0].Value.Color != "RED" || got[0].Value.X != 3 {
		t.Errorf("kept %s X=%d, want RED X=3", got[0].Value.Color, got[0].Value.X)
	}
	if got[1].Value.Color != "BLUE" || got[1].Value.X != 4 {
		t.Errorf("kept %s X=%d, want BLUE X=4", got[1].Value.Color, got[1].Value.X)
	}
	var red [16]byte
	copy(red[:], "RED")
	if got[0].Info.InstanceHandle != red {
		t.Error("sample info should carry the instance key hash")
	}
}

func TestEndpointLocators(t *testing.T) {
	udp := func(ip string, port int) rtps.Locator {
		return rtps.LocatorFromUDPAddr(&net.UDPAddr{IP: net.ParseIP(ip), Port: port})
	}
	pd := discovery.ParticipantData{
		DefaultUnicast:   []rtps.Locator{udp("10.0.0.1", 7411)},
		DefaultMulticast: []rtps.Locator{udp("239.255.0.1", 7401)},
	}
	ep := discovery.EndpointData{}

	unicast, multicast := endpointLocators(ep, pd)
	if len(unicast) != 1 || len(multicast) != 1 {
		t.Fatalf("fallback locators: unicast=%d multicast=%d", len(unicast), len(multicast))
	}

	own := udp("10.0.0.2", 7500)
	ep.UnicastLocators = []rtps.Locator{own}
	unicast, _ = endpointLocators(ep, pd)
	if len(unicast) != 1 || unicast[0] != own {
		t.Error("advertised endpoint locators must win over participant defaults")
	}
}

func TestReaderNextVariants(t *testing.T) {
	r := testReader(0)
	r.deliver(aliveChange(t, 1, shapeSample{Color: "RED"}))
	r.deliver(aliveChange(t, 2, shapeSample{Color: "BLUE"}))

	s, ok := r.ReadNext()
	if !ok || s.Value.Color != "RED" {
		t.Fatalf("ReadNext = %v, %v", s.Value, ok)
	}
	// RED is now marked read, so the next not-read sample is BLUE.
	s, ok = r.TakeNext()
	if !ok || s.Value.Color != "BLUE" {
		t.Fatalf("TakeNext = %v, %v", s.Value, ok)
	}
	if _, ok := r.TakeNext(); ok {
		t.Error("TakeNext should report no not-read samples left")
	}
	// The read RED sample is still in the cache.
	if got := r.Take(0, AnySample()); len(got) != 1 || got[0].Value.Color != "RED" {
		t.Errorf("remaining cache = %v", got)
	}
}

func TestParticipantBuilderConfig(t *testing.T) {
	b := NewParticipantBuilder(42).
		Name("builder-test").
		LeaseDuration(30 * time.Second)
	if b.cfg.DomainID != 42 || b.cfg.EntityName != "builder-test" {
		t.Errorf("builder config = %+v", b.cfg)
	}
	if b.cfg.LeaseDuration != 30*time.Second {
		t.Errorf("lease = %v", b.cfg.LeaseDuration)
	}
	if err := b.cfg.Validate(); err != nil {
		t.Errorf("built config should validate: %v", err)
	}
}
