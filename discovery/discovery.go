package discovery

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/statusevents"
)

// Config tunes the discovery component.
type Config struct {
	// AnnouncePeriod is how often the local participant re-announces
	// itself over SPDP. It must be comfortably below the advertised lease.
	AnnouncePeriod time.Duration
	// LeaseCheckPeriod is how often remote leases are examined.
	LeaseCheckPeriod time.Duration
}

// DefaultConfig announces every 10 seconds against the usual 100 second
// lease.
func DefaultConfig() Config {
	return Config{
		AnnouncePeriod:   10 * time.Second,
		LeaseCheckPeriod: 5 * time.Second,
	}
}

// BuiltinBus is how discovery reaches the builtin RTPS endpoints. The
// participant implements it on top of its builtin writers.
type BuiltinBus interface {
	// PublishBuiltin writes one discovery sample through the named builtin
	// writer, keyed by the subject GUID.
	PublishBuiltin(writer rtps.EntityID, key rtps.GUID, payload []byte) error
	// DisposeBuiltin retracts the subject from the named builtin writer.
	DisposeBuiltin(writer rtps.EntityID, key rtps.GUID) error
}

// Callbacks is how discovery informs the participant about remote peers.
// All callbacks run on discovery goroutines; they must not block.
type Callbacks struct {
	// Authorize vets a newly discovered participant. A false return drops
	// the announcement without tracking the peer. Nil allows everyone.
	Authorize func(ParticipantData) bool

	ParticipantFound func(ParticipantData)
	ParticipantLost  func(rtps.GUIDPrefix)
	WriterFound      func(EndpointData, ParticipantData)
	WriterLost       func(rtps.GUID)
	ReaderFound      func(EndpointData, ParticipantData)
	ReaderLost       func(rtps.GUID)
}

type remoteParticipant struct {
	data     ParticipantData
	lastSeen time.Time
}

// Discovery runs SPDP and SEDP for one participant: it announces the local
// participant and endpoints, tracks remote ones, and enforces leases.
type Discovery struct {
	cfg    Config
	bus    BuiltinBus
	logger *slog.Logger
	events *statusevents.Channel[statusevents.ParticipantEvent]
	cb     Callbacks

	mu            sync.Mutex
	local         ParticipantData
	participants  map[rtps.GUIDPrefix]*remoteParticipant
	remoteWriters map[rtps.GUID]EndpointData
	remoteReaders map[rtps.GUID]EndpointData
	localWriters  map[rtps.GUID]EndpointData
	localReaders  map[rtps.GUID]EndpointData
	knownTopics   map[string]struct{}

	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a discovery component for the given local participant.
func New(cfg Config, local ParticipantData, bus BuiltinBus, cb Callbacks, logger *slog.Logger) *Discovery {
	return &Discovery{
		cfg:           cfg,
		bus:           bus,
		logger:        logger,
		events:        statusevents.NewChannel[statusevents.ParticipantEvent](),
		cb:            cb,
		local:         local,
		participants:  make(map[rtps.GUIDPrefix]*remoteParticipant),
		remoteWriters: make(map[rtps.GUID]EndpointData),
		remoteReaders: make(map[rtps.GUID]EndpointData),
		localWriters:  make(map[rtps.GUID]EndpointData),
		localReaders:  make(map[rtps.GUID]EndpointData),
		knownTopics:   make(map[string]struct{}),
		done:          make(chan struct{}),
	}
}

// Events delivers domain-level discovery notifications to the application.
func (d *Discovery) Events() <-chan statusevents.ParticipantEvent {
	return d.events.C()
}

// Start announces the participant and launches the periodic loops.
func (d *Discovery) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	if err := d.announceParticipant(); err != nil {
		return err
	}
	d.wg.Add(1)
	go d.run()
	return nil
}

// Stop retracts the local participant and stops the loops.
func (d *Discovery) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
	if err := d.bus.DisposeBuiltin(rtps.EntityIDSPDPParticipantWriter, d.local.GUID); err != nil {
		d.logger.Debug("participant dispose failed", "error", err)
	}
	d.events.Close()
}

func (d *Discovery) run() {
	defer d.wg.Done()
	announce := time.NewTicker(d.cfg.AnnouncePeriod)
	lease := time.NewTicker(d.cfg.LeaseCheckPeriod)
	defer announce.Stop()
	defer lease.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-announce.C:
			if err := d.announceParticipant(); err != nil {
				d.logger.Warn("participant announcement failed", "error", err)
			}
		case <-lease.C:
			d.expireLeases(time.Now())
		}
	}
}

func (d *Discovery) announceParticipant() error {
	d.mu.Lock()
	payload := d.local.Marshal()
	guid := d.local.GUID
	d.mu.Unlock()
	return d.bus.PublishBuiltin(rtps.EntityIDSPDPParticipantWriter, guid, payload)
}

// AdvertiseWriter announces a local writer over SEDP.
func (d *Discovery) AdvertiseWriter(ep EndpointData) error {
	d.mu.Lock()
	d.localWriters[ep.GUID] = ep
	d.mu.Unlock()
	return d.bus.PublishBuiltin(rtps.EntityIDSEDPPublicationsWriter, ep.GUID, ep.Marshal())
}

// WithdrawWriter retracts a local writer.
func (d *Discovery) WithdrawWriter(guid rtps.GUID) error {
	d.mu.Lock()
	delete(d.localWriters, guid)
	d.mu.Unlock()
	return d.bus.DisposeBuiltin(rtps.EntityIDSEDPPublicationsWriter, guid)
}

// AdvertiseReader announces a local reader over SEDP.
func (d *Discovery) AdvertiseReader(ep EndpointData) error {
	d.mu.Lock()
	d.localReaders[ep.GUID] = ep
	d.mu.Unlock()
	return d.bus.PublishBuiltin(rtps.EntityIDSEDPSubscriptionsWriter, ep.GUID, ep.Marshal())
}

// WithdrawReader retracts a local reader.
func (d *Discovery) WithdrawReader(guid rtps.GUID) error {
	d.mu.Lock()
	delete(d.localReaders, guid)
	d.mu.Unlock()
	return d.bus.DisposeBuiltin(rtps.EntityIDSEDPSubscriptionsWriter, guid)
}

// Participants snapshots the currently known remote participants.
func (d *Discovery) Participants() []ParticipantData {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ParticipantData, 0, len(d.participants))
	for _, rp := range d.participants {
		out = append(out, rp.data)
	}
	return out
}

// HandleSPDP processes one sample from the builtin participant reader.
func (d *Discovery) HandleSPDP(kind rtps.ChangeKind, keyHash [16]byte, payload []byte) {
	if kind != rtps.ChangeAlive {
		d.dropParticipant(rtps.GUIDFromBytes(keyHash).Prefix, statusevents.LostByDispose)
		return
	}
	pd, err := ParseParticipantData(payload)
	if err != nil {
		d.logger.Debug("malformed SPDP payload", "error", err)
		return
	}
	if pd.GUID.Prefix == d.local.GUID.Prefix {
		return
	}
	if d.cb.Authorize != nil && !d.cb.Authorize(pd) {
		d.logger.Warn("participant rejected",
			"guid", pd.GUID.String(),
			"name", pd.EntityName)
		return
	}

	d.mu.Lock()
	rp, known := d.participants[pd.GUID.Prefix]
	if known {
		rp.data = pd
		rp.lastSeen = time.Now()
	} else {
		d.participants[pd.GUID.Prefix] = &remoteParticipant{data: pd, lastSeen: time.Now()}
	}
	d.mu.Unlock()

	if known {
		return
	}
	d.logger.Info("participant discovered",
		"guid", pd.GUID.String(),
		"name", pd.EntityName,
		"lease", pd.LeaseDuration.String())
	if d.cb.ParticipantFound != nil {
		d.cb.ParticipantFound(pd)
	}
	d.events.Send(statusevents.ParticipantEvent{
		Kind: statusevents.ParticipantDiscovered,
		Participant: &statusevents.ParticipantDescription{
			GUID:          pd.GUID,
			LeaseDuration: pd.LeaseDuration,
			EntityName:    pd.EntityName,
		},
	})
}

// HandlePublication processes one sample from the builtin publications
// reader.
func (d *Discovery) HandlePublication(kind rtps.ChangeKind, keyHash [16]byte, payload []byte) {
	d.handleEndpoint(kind, keyHash, payload, true)
}

// HandleSubscription processes one sample from the builtin subscriptions
// reader.
func (d *Discovery) HandleSubscription(kind rtps.ChangeKind, keyHash [16]byte, payload []byte) {
	d.handleEndpoint(kind, keyHash, payload, false)
}

func (d *Discovery) handleEndpoint(kind rtps.ChangeKind, keyHash [16]byte, payload []byte, isWriter bool) {
	if kind != rtps.ChangeAlive {
		d.dropEndpoint(rtps.GUIDFromBytes(keyHash), isWriter)
		return
	}
	ep, err := ParseEndpointData(payload)
	if err != nil {
		d.logger.Debug("malformed SEDP payload", "error", err)
		return
	}
	if ep.GUID.Prefix == d.local.GUID.Prefix {
		return
	}

	d.mu.Lock()
	rp, ok := d.participants[ep.GUID.Prefix]
	if !ok {
		// SEDP before SPDP: without locators there is nothing to match
		// against yet. The writer will retransmit after SPDP completes.
		d.mu.Unlock()
		d.logger.Debug("endpoint from unknown participant", "guid", ep.GUID.String())
		return
	}
	pd := rp.data
	rp.lastSeen = time.Now()
	var known bool
	if isWriter {
		_, known = d.remoteWriters[ep.GUID]
		d.remoteWriters[ep.GUID] = ep
	} else {
		_, known = d.remoteReaders[ep.GUID]
		d.remoteReaders[ep.GUID] = ep
	}
	_, topicKnown := d.knownTopics[ep.TopicName]
	d.knownTopics[ep.TopicName] = struct{}{}
	d.mu.Unlock()

	if !topicKnown {
		d.events.Send(statusevents.ParticipantEvent{
			Kind:      statusevents.TopicDetected,
			TopicName: ep.TopicName,
		})
	}
	if known {
		return
	}
	desc := &statusevents.EndpointDescription{
		GUID:      ep.GUID,
		TopicName: ep.TopicName,
		TypeName:  ep.TypeName,
		QoS:       ep.QoS,
	}
	if isWriter {
		d.logger.Info("writer discovered", "guid", ep.GUID.String(), "topic", ep.TopicName)
		if d.cb.WriterFound != nil {
			d.cb.WriterFound(ep, pd)
		}
		d.events.Send(statusevents.ParticipantEvent{Kind: statusevents.WriterDiscovered, Endpoint: desc})
	} else {
		d.logger.Info("reader discovered", "guid", ep.GUID.String(), "topic", ep.TopicName)
		if d.cb.ReaderFound != nil {
			d.cb.ReaderFound(ep, pd)
		}
		d.events.Send(statusevents.ParticipantEvent{Kind: statusevents.ReaderDiscovered, Endpoint: desc})
	}
}

// RefreshLease marks a participant alive, typically on receipt of a
// liveliness assertion.
func (d *Discovery) RefreshLease(prefix rtps.GUIDPrefix) {
	d.mu.Lock()
	if rp, ok := d.participants[prefix]; ok {
		rp.lastSeen = time.Now()
	}
	d.mu.Unlock()
}

func (d *Discovery) expireLeases(now time.Time) {
	d.mu.Lock()
	var expired []rtps.GUIDPrefix
	for prefix, rp := range d.participants {
		lease := rp.data.LeaseDuration.ToStd()
		if now.Sub(rp.lastSeen) > lease {
			expired = append(expired, prefix)
		}
	}
	d.mu.Unlock()
	for _, prefix := range expired {
		d.dropParticipant(prefix, statusevents.LostByLeaseTimeout)
	}
}

func (d *Discovery) dropParticipant(prefix rtps.GUIDPrefix, reason statusevents.ParticipantLostReason) {
	d.mu.Lock()
	rp, ok := d.participants[prefix]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.participants, prefix)
	var writers, readers []rtps.GUID
	for guid := range d.remoteWriters {
		if guid.Prefix == prefix {
			writers = append(writers, guid)
			delete(d.remoteWriters, guid)
		}
	}
	for guid := range d.remoteReaders {
		if guid.Prefix == prefix {
			readers = append(readers, guid)
			delete(d.remoteReaders, guid)
		}
	}
	d.mu.Unlock()

	d.logger.Info("participant lost",
		"guid", rp.data.GUID.String(),
		"reason", reason.String(),
		"writers", len(writers),
		"readers", len(readers))
	for _, guid := range writers {
		if d.cb.WriterLost != nil {
			d.cb.WriterLost(guid)
		}
		d.events.Send(statusevents.ParticipantEvent{
			Kind:     statusevents.WriterLost,
			Endpoint: &statusevents.EndpointDescription{GUID: guid},
		})
	}
	for _, guid := range readers {
		if d.cb.ReaderLost != nil {
			d.cb.ReaderLost(guid)
		}
		d.events.Send(statusevents.ParticipantEvent{
			Kind:     statusevents.ReaderLost,
			Endpoint: &statusevents.EndpointDescription{GUID: guid},
		})
	}
	if d.cb.ParticipantLost != nil {
		d.cb.ParticipantLost(prefix)
	}
	d.events.Send(statusevents.ParticipantEvent{
		Kind: statusevents.ParticipantLost,
		Participant: &statusevents.ParticipantDescription{
			GUID:          rp.data.GUID,
			LeaseDuration: rp.data.LeaseDuration,
			EntityName:    rp.data.EntityName,
		},
		LostReason: reason,
	})
}

func (d *Discovery) dropEndpoint(guid rtps.GUID, isWriter bool) {
	d.mu.Lock()
	var known bool
	if isWriter {
		_, known = d.remoteWriters[guid]
		delete(d.remoteWriters, guid)
	} else {
		_, known = d.remoteReaders[guid]
		delete(d.remoteReaders, guid)
	}
	d.mu.Unlock()
	if !known {
		return
	}
	if isWriter {
		if d.cb.WriterLost != nil {
			d.cb.WriterLost(guid)
		}
		d.events.Send(statusevents.ParticipantEvent{
			Kind:     statusevents.WriterLost,
			Endpoint: &statusevents.EndpointDescription{GUID: guid},
		})
	} else {
		if d.cb.ReaderLost != nil {
			d.cb.ReaderLost(guid)
		}
		d.events.Send(statusevents.ParticipantEvent{
			Kind:     statusevents.ReaderLost,
			Endpoint: &statusevents.EndpointDescription{GUID: guid},
		})
	}
}
