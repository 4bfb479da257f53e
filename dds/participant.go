package dds

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dataflume/flumedds/discovery"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/security"
	"github.com/dataflume/flumedds/security/access"
	"github.com/dataflume/flumedds/security/auth"
	"github.com/dataflume/flumedds/statusevents"
	"github.com/dataflume/flumedds/transport"
)

// ParticipantConfig configures one domain participant.
type ParticipantConfig struct {
	// DomainID selects the DDS domain. Participants only see peers in
	// the same domain.
	DomainID uint16
	// EntityName is a human-readable name carried in discovery.
	EntityName string
	// LeaseDuration is how long peers keep this participant alive
	// without hearing from it.
	LeaseDuration time.Duration
	// HeartbeatPeriod is how often reliable writers emit heartbeats.
	HeartbeatPeriod time.Duration
	// LivelinessPeriod is how often automatic liveliness is asserted.
	LivelinessPeriod time.Duration

	Transport transport.Config
	Discovery discovery.Config

	// Security enables the builtin PKI-DH authentication and
	// governance/permissions access control when non-nil.
	Security *security.Files

	Logger  *slog.Logger
	Metrics Observer
}

// DefaultParticipantConfig returns a working configuration for domain 0.
func DefaultParticipantConfig() ParticipantConfig {
	return ParticipantConfig{
		DomainID:         0,
		LeaseDuration:    100 * time.Second,
		HeartbeatPeriod:  time.Second,
		LivelinessPeriod: 3 * time.Second,
		Transport:        transport.DefaultConfig(),
		Discovery:        discovery.DefaultConfig(),
	}
}

// Validate rejects configurations that cannot work.
func (c ParticipantConfig) Validate() error {
	if c.LeaseDuration <= 0 {
		return fmt.Errorf("dds: lease duration must be positive")
	}
	if c.HeartbeatPeriod <= 0 {
		return fmt.Errorf("dds: heartbeat period must be positive")
	}
	if c.LivelinessPeriod <= 0 {
		return fmt.Errorf("dds: liveliness period must be positive")
	}
	if c.Discovery.AnnouncePeriod >= c.LeaseDuration {
		return fmt.Errorf("dds: announce period %v must be below the lease %v",
			c.Discovery.AnnouncePeriod, c.LeaseDuration)
	}
	if c.Security != nil {
		if err := c.Security.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// remoteEndpoint remembers a discovered remote endpoint so endpoints
// created after the discovery event can still match it.
type remoteEndpoint struct {
	data        discovery.EndpointData
	participant discovery.ParticipantData
}

type localWriter struct {
	rw       *rtps.Writer
	topic    string
	typeName string
	qos      qos.Policies
	status   *statusevents.WriterStatusSource
}

type localReader struct {
	rr       *rtps.Reader
	topic    string
	typeName string
	qos      qos.Policies
	status   *statusevents.ReaderStatusSource
}

// DomainParticipant owns the sockets, the RTPS engine state and the
// discovery component for one domain membership.
type DomainParticipant struct {
	cfg     ParticipantConfig
	logger  *slog.Logger
	metrics Observer

	guid rtps.GUID
	tr   *transport.Transport
	disc *discovery.Discovery

	discReceiver *rtps.MessageReceiver
	userReceiver *rtps.MessageReceiver
	builtin      *builtinEndpoints

	identity  *auth.Identity
	accessCtl *access.Control
	sessions  *auth.Sessions
	docWatch  *security.DocumentWatcher

	mu            sync.Mutex
	closed        bool
	entityCounter uint32
	topics        map[string]*Topic
	writers       map[rtps.GUID]*localWriter
	readers       map[rtps.GUID]*localReader
	remoteWriters map[rtps.GUID]remoteEndpoint
	remoteReaders map[rtps.GUID]remoteEndpoint

	done chan struct{}
	wg   sync.WaitGroup
}

// NewParticipant opens the domain sockets, starts discovery and returns a
// live participant. Close releases everything.
func NewParticipant(cfg ParticipantConfig) (*DomainParticipant, error) {
	def := DefaultParticipantConfig()
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = def.LeaseDuration
	}
	if cfg.HeartbeatPeriod == 0 {
		cfg.HeartbeatPeriod = def.HeartbeatPeriod
	}
	if cfg.LivelinessPeriod == 0 {
		cfg.LivelinessPeriod = def.LivelinessPeriod
	}
	if cfg.Discovery.AnnouncePeriod == 0 {
		cfg.Discovery = def.Discovery
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopObserver{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Transport.DomainID = cfg.DomainID

	dp := &DomainParticipant{
		cfg:           cfg,
		metrics:       cfg.Metrics,
		topics:        make(map[string]*Topic),
		writers:       make(map[rtps.GUID]*localWriter),
		readers:       make(map[rtps.GUID]*localReader),
		remoteWriters: make(map[rtps.GUID]remoteEndpoint),
		remoteReaders: make(map[rtps.GUID]remoteEndpoint),
		done:          make(chan struct{}),
	}

	prefix := rtps.NewGUIDPrefix()
	if cfg.Security != nil {
		if err := dp.setUpSecurity(); err != nil {
			return nil, err
		}
		prefix = dp.identity.AdjustedGUIDPrefix()
	}
	dp.guid = rtps.GUID{Prefix: prefix, EntityID: rtps.EntityIDParticipant}
	if dp.identity != nil {
		dp.sessions = auth.NewSessions(dp.identity, dp.guid)
	}
	dp.logger = cfg.Logger.With("participant", dp.guid.Prefix.String(),
		"domain", cfg.DomainID)

	tr, err := transport.Open(cfg.Transport, dp.logger)
	if err != nil {
		dp.tearDownSecurity()
		return nil, fmt.Errorf("dds: open transport: %w", err)
	}
	dp.tr = tr

	dp.discReceiver = rtps.NewMessageReceiver(prefix, dp.logger)
	dp.userReceiver = rtps.NewMessageReceiver(prefix, dp.logger)
	dp.discReceiver.SetMalformedFunc(dp.metrics.MalformedDatagram)
	dp.userReceiver.SetMalformedFunc(dp.metrics.MalformedDatagram)

	dp.disc = discovery.New(cfg.Discovery, dp.localParticipantData(), dp,
		dp.discoveryCallbacks(), dp.logger)
	dp.builtin = newBuiltinEndpoints(dp)

	if err := tr.Start(dp.handleDiscoveryDatagram, dp.handleUserDatagram); err != nil {
		tr.Close()
		dp.tearDownSecurity()
		return nil, fmt.Errorf("dds: start transport: %w", err)
	}
	if err := dp.disc.Start(); err != nil {
		tr.Close()
		dp.tearDownSecurity()
		return nil, fmt.Errorf("dds: start discovery: %w", err)
	}

	dp.wg.Add(1)
	go dp.run()

	dp.logger.Info("participant started",
		"participantID", tr.ParticipantID(),
		"secure", dp.identity != nil)
	return dp, nil
}

// GUID returns the participant GUID.
func (dp *DomainParticipant) GUID() rtps.GUID { return dp.guid }

// DomainID returns the domain this participant joined.
func (dp *DomainParticipant) DomainID() uint16 { return dp.cfg.DomainID }

// DiscoveryEvents exposes domain-level discovery notifications.
func (dp *DomainParticipant) DiscoveryEvents() <-chan statusevents.ParticipantEvent {
	return dp.disc.Events()
}

// DiscoveredParticipants lists the currently known remote participants.
func (dp *DomainParticipant) DiscoveredParticipants() []discovery.ParticipantData {
	return dp.disc.Participants()
}

func (dp *DomainParticipant) localParticipantData() discovery.ParticipantData {
	pd := discovery.ParticipantData{
		GUID:                 dp.guid,
		DomainID:             dp.cfg.DomainID,
		ProtocolVersion:      rtps.ProtocolVersion24,
		VendorID:             rtps.VendorIDThis,
		MetatrafficUnicast:   dp.tr.DiscoveryUnicastLocators(),
		MetatrafficMulticast: []rtps.Locator{dp.tr.DiscoveryMulticastLocator()},
		DefaultUnicast:       dp.tr.UserUnicastLocators(),
		DefaultMulticast:     []rtps.Locator{dp.tr.UserMulticastLocator()},
		LeaseDuration:        rtps.DurationFromStd(dp.cfg.LeaseDuration),
		BuiltinEndpoints:     discovery.DefaultBuiltinEndpoints,
		EntityName:           dp.cfg.EntityName,
	}
	if dp.identity != nil {
		pd.IdentityToken = &discovery.Token{ClassID: auth.IdentityTokenClassID}
		pd.PermissionsToken = &discovery.Token{ClassID: access.PermissionsTokenClassID}
	}
	return pd
}

func (dp *DomainParticipant) handleDiscoveryDatagram(data []byte, _ *net.UDPAddr) {
	dp.discReceiver.HandleDatagram(data)
}

func (dp *DomainParticipant) handleUserDatagram(data []byte, _ *net.UDPAddr) {
	dp.userReceiver.HandleDatagram(data)
}

// run drives the periodic engine work: reliable heartbeats and automatic
// liveliness assertions.
func (dp *DomainParticipant) run() {
	defer dp.wg.Done()
	heartbeat := time.NewTicker(dp.cfg.HeartbeatPeriod)
	defer heartbeat.Stop()
	liveliness := time.NewTicker(dp.cfg.LivelinessPeriod)
	defer liveliness.Stop()
	for {
		select {
		case <-dp.done:
			return
		case <-heartbeat.C:
			dp.tickHeartbeats()
		case <-liveliness.C:
			dp.builtin.assertLiveliness(livelinessAutomatic)
		}
	}
}

// AssertLiveliness publishes a manual-by-participant liveliness assertion
// on the builtin participant message topic.
func (dp *DomainParticipant) AssertLiveliness() {
	dp.builtin.assertLiveliness(livelinessManualByParticipant)
}

func (dp *DomainParticipant) tickHeartbeats() {
	dp.builtin.tickHeartbeats()
	dp.mu.Lock()
	writers := make([]*rtps.Writer, 0, len(dp.writers))
	for _, lw := range dp.writers {
		if lw.rw.Reliable() {
			writers = append(writers, lw.rw)
		}
	}
	dp.mu.Unlock()
	for _, w := range writers {
		w.TickHeartbeat()
	}
}

// nextEntityID hands out user entity ids. The counter never repeats within
// one participant.
func (dp *DomainParticipant) nextEntityID(kind rtps.EntityKind) rtps.EntityID {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.entityCounter++
	return rtps.NewEntityID(dp.entityCounter, kind)
}

// Close withdraws the participant from the domain and releases the
// sockets. It is safe to call more than once.
func (dp *DomainParticipant) Close() error {
	dp.mu.Lock()
	if dp.closed {
		dp.mu.Unlock()
		return nil
	}
	dp.closed = true
	writers := dp.writers
	readers := dp.readers
	dp.writers = make(map[rtps.GUID]*localWriter)
	dp.readers = make(map[rtps.GUID]*localReader)
	dp.mu.Unlock()

	for guid, lw := range writers {
		dp.disc.WithdrawWriter(guid)
		dp.userReceiver.DetachWriter(guid.EntityID)
		lw.status.Close()
	}
	for guid, lr := range readers {
		dp.disc.WithdrawReader(guid)
		dp.userReceiver.DetachReader(guid.EntityID)
		lr.status.Close()
	}

	close(dp.done)
	dp.wg.Wait()
	dp.disc.Stop()
	err := dp.tr.Close()
	dp.tearDownSecurity()
	dp.logger.Info("participant closed")
	return err
}
