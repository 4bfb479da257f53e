package dds

import (
	"errors"
	"time"

	"github.com/dataflume/flumedds/discovery"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/security/access"
	"github.com/dataflume/flumedds/security/auth"
)

func (dp *DomainParticipant) discoveryCallbacks() discovery.Callbacks {
	return discovery.Callbacks{
		Authorize:        dp.authorizeParticipant,
		ParticipantFound: dp.onParticipantFound,
		ParticipantLost:  dp.onParticipantLost,
		WriterFound:      dp.onRemoteWriter,
		WriterLost:       dp.onRemoteWriterLost,
		ReaderFound:      dp.onRemoteReader,
		ReaderLost:       dp.onRemoteReaderLost,
	}
}

// authorizeParticipant vets a new peer. With security enabled a peer must
// present the builtin plugin tokens, complete the pairwise handshake and
// pass the domain join rules. Until the handshake finishes the peer stays
// unadmitted; each periodic announcement retries the check, so admission
// lands on the first announcement after authentication completes.
func (dp *DomainParticipant) authorizeParticipant(pd discovery.ParticipantData) bool {
	if dp.identity == nil {
		return true
	}
	if pd.IdentityToken == nil || pd.IdentityToken.ClassID != auth.IdentityTokenClassID {
		dp.logger.Warn("rejecting unauthenticated participant",
			"remote", pd.GUID.Prefix.String())
		return false
	}
	if pd.PermissionsToken == nil || pd.PermissionsToken.ClassID != access.PermissionsTokenClassID {
		dp.logger.Warn("rejecting participant without permissions token",
			"remote", pd.GUID.Prefix.String())
		return false
	}

	if subject, ok := dp.sessions.Authenticated(pd.GUID.Prefix); ok {
		if err := dp.accessCtl.CheckJoin(subject, time.Now()); err != nil {
			dp.logger.Warn("authenticated participant not permitted to join",
				"remote", pd.GUID.Prefix.String(), "subject", subject, "error", err)
			return false
		}
		return true
	}

	// Not authenticated yet. Aim the stateless message writer at the
	// peer and, on the initiating side, (re)send the opening token.
	dp.builtin.matchHandshakePeer(pd)
	req, start, err := dp.sessions.Begin(pd.GUID)
	if err != nil {
		dp.logger.Warn("handshake start failed",
			"remote", pd.GUID.Prefix.String(), "error", err)
		return false
	}
	if start {
		dp.sendHandshakeToken(pd.GUID.Prefix, req)
	}
	return false
}

func (dp *DomainParticipant) onParticipantFound(pd discovery.ParticipantData) {
	dp.builtin.matchParticipant(pd)
	dp.metrics.ParticipantDiscovered()
}

func (dp *DomainParticipant) onParticipantLost(prefix rtps.GUIDPrefix) {
	dp.builtin.unmatchParticipant(prefix)
	if dp.sessions != nil {
		dp.sessions.Drop(prefix)
	}
	dp.metrics.ParticipantLost()
}

// endpointLocators picks the destination locators for a remote endpoint:
// its own when advertised, the participant defaults otherwise.
func endpointLocators(ep discovery.EndpointData, pd discovery.ParticipantData) (unicast, multicast []rtps.Locator) {
	unicast = ep.UnicastLocators
	if len(unicast) == 0 {
		unicast = pd.DefaultUnicast
	}
	if ep.MulticastLocator != nil {
		multicast = []rtps.Locator{*ep.MulticastLocator}
	} else {
		multicast = pd.DefaultMulticast
	}
	return unicast, multicast
}

// incompatibility returns the first policy that blocks pairing a local and
// a remote endpoint, or PolicyInvalid when they match.
func incompatibility(offered, requested qos.Policies, localType, remoteType string) (qos.PolicyID, bool) {
	if localType != remoteType {
		// Type mismatch is not a QoS problem, but readers report it on
		// the same status channel for lack of a better one.
		return qos.PolicyID(0), false
	}
	if err := qos.CheckCompatibility(offered, requested); err != nil {
		var inc *qos.IncompatibleError
		if errors.As(err, &inc) {
			return inc.Policy, false
		}
		return qos.PolicyID(0), false
	}
	if !qos.PartitionsMatch(offered.Partitions, requested.Partitions) {
		return qos.PolicyPartition, false
	}
	return qos.PolicyID(0), true
}

// onRemoteWriter pairs a discovered remote writer with every compatible
// local reader on the same topic.
func (dp *DomainParticipant) onRemoteWriter(ep discovery.EndpointData, pd discovery.ParticipantData) {
	dp.mu.Lock()
	dp.remoteWriters[ep.GUID] = remoteEndpoint{data: ep, participant: pd}
	readers := make([]*localReader, 0, 2)
	for _, lr := range dp.readers {
		if lr.topic == ep.TopicName {
			readers = append(readers, lr)
		}
	}
	dp.mu.Unlock()
	for _, lr := range readers {
		dp.pairReader(lr, ep, pd)
	}
}

func (dp *DomainParticipant) pairReader(lr *localReader, ep discovery.EndpointData, pd discovery.ParticipantData) {
	policy, ok := incompatibility(ep.QoS, lr.qos, lr.typeName, ep.TypeName)
	if !ok {
		if lr.typeName == ep.TypeName {
			lr.status.RequestedIncompatible(ep.GUID, policy)
		}
		dp.logger.Debug("remote writer not compatible",
			"topic", ep.TopicName, "writer", ep.GUID.String())
		return
	}
	unicast, multicast := endpointLocators(ep, pd)
	lr.rr.MatchWriter(rtps.NewWriterProxy(ep.GUID, ep.QoS.IsReliable(), unicast, multicast))
	lr.status.Matched(ep.GUID, true)
	lr.status.LivelinessChanged(ep.GUID, true)
	dp.logger.Info("matched remote writer",
		"topic", ep.TopicName, "writer", ep.GUID.String())
}

func (dp *DomainParticipant) onRemoteWriterLost(guid rtps.GUID) {
	dp.mu.Lock()
	ep, ok := dp.remoteWriters[guid]
	delete(dp.remoteWriters, guid)
	readers := make([]*localReader, 0, 2)
	if ok {
		for _, lr := range dp.readers {
			if lr.topic == ep.data.TopicName {
				readers = append(readers, lr)
			}
		}
	}
	dp.mu.Unlock()
	for _, lr := range readers {
		lr.rr.UnmatchWriter(guid)
		lr.status.LivelinessChanged(guid, false)
		lr.status.Matched(guid, false)
	}
}

// onRemoteReader pairs a discovered remote reader with every compatible
// local writer on the same topic.
func (dp *DomainParticipant) onRemoteReader(ep discovery.EndpointData, pd discovery.ParticipantData) {
	dp.mu.Lock()
	dp.remoteReaders[ep.GUID] = remoteEndpoint{data: ep, participant: pd}
	writers := make([]*localWriter, 0, 2)
	for _, lw := range dp.writers {
		if lw.topic == ep.TopicName {
			writers = append(writers, lw)
		}
	}
	dp.mu.Unlock()
	for _, lw := range writers {
		dp.pairWriter(lw, ep, pd)
	}
}

func (dp *DomainParticipant) pairWriter(lw *localWriter, ep discovery.EndpointData, pd discovery.ParticipantData) {
	policy, ok := incompatibility(lw.qos, ep.QoS, lw.typeName, ep.TypeName)
	if !ok {
		if lw.typeName == ep.TypeName {
			lw.status.OfferedIncompatible(ep.GUID, policy)
		}
		dp.logger.Debug("remote reader not compatible",
			"topic", ep.TopicName, "reader", ep.GUID.String())
		return
	}
	unicast, multicast := endpointLocators(ep, pd)
	lw.rw.MatchReader(rtps.NewReaderProxy(ep.GUID, ep.QoS.IsReliable(), unicast, multicast))
	lw.status.Matched(ep.GUID, true)
	dp.logger.Info("matched remote reader",
		"topic", ep.TopicName, "reader", ep.GUID.String())
}

func (dp *DomainParticipant) onRemoteReaderLost(guid rtps.GUID) {
	dp.mu.Lock()
	ep, ok := dp.remoteReaders[guid]
	delete(dp.remoteReaders, guid)
	writers := make([]*localWriter, 0, 2)
	if ok {
		for _, lw := range dp.writers {
			if lw.topic == ep.data.TopicName {
				writers = append(writers, lw)
			}
		}
	}
	dp.mu.Unlock()
	for _, lw := range writers {
		lw.rw.UnmatchReader(guid)
		lw.status.Matched(guid, false)
	}
}

// matchExistingReaders pairs a freshly created local writer with every
// remote reader already discovered on its topic.
func (dp *DomainParticipant) matchExistingReaders(lw *localWriter) {
	dp.mu.Lock()
	remotes := make([]remoteEndpoint, 0, 2)
	for _, re := range dp.remoteReaders {
		if re.data.TopicName == lw.topic {
			remotes = append(remotes, re)
		}
	}
	dp.mu.Unlock()
	for _, re := range remotes {
		dp.pairWriter(lw, re.data, re.participant)
	}
}

// matchExistingWriters pairs a freshly created local reader with every
// remote writer already discovered on its topic.
func (dp *DomainParticipant) matchExistingWriters(lr *localReader) {
	dp.mu.Lock()
	remotes := make([]remoteEndpoint, 0, 2)
	for _, re := range dp.remoteWriters {
		if re.data.TopicName == lr.topic {
			remotes = append(remotes, re)
		}
	}
	dp.mu.Unlock()
	for _, re := range remotes {
		dp.pairReader(lr, re.data, re.participant)
	}
}

// checkPublishAllowed enforces local permissions at writer creation.
func (dp *DomainParticipant) checkPublishAllowed(topic string, partitions []string) error {
	if dp.accessCtl == nil {
		return nil
	}
	return dp.accessCtl.CheckPublish(dp.identity.SubjectName(), topic, partitions, time.Now())
}

// checkSubscribeAllowed enforces local permissions at reader creation.
func (dp *DomainParticipant) checkSubscribeAllowed(topic string, partitions []string) error {
	if dp.accessCtl == nil {
		return nil
	}
	return dp.accessCtl.CheckSubscribe(dp.identity.SubjectName(), topic, partitions, time.Now())
}
