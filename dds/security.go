package dds

import (
	"fmt"
	"time"

	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/security"
	"github.com/dataflume/flumedds/security/access"
	"github.com/dataflume/flumedds/security/auth"
	"github.com/dataflume/flumedds/serialization"
)

// handshakeMessage wraps one handshake token on the stateless message
// topic. The writer fans out to every peer being authenticated, so each
// message names its addressee and readers drop the rest.
type handshakeMessage struct {
	Source      rtps.GUIDPrefix
	Destination rtps.GUIDPrefix
	Token       auth.HandshakeToken
}

// sendHandshakeToken publishes a token addressed to one peer.
func (dp *DomainParticipant) sendHandshakeToken(dst rtps.GUIDPrefix, tok auth.HandshakeToken) {
	msg := handshakeMessage{Source: dp.guid.Prefix, Destination: dst, Token: tok}
	payload, err := serialization.Marshal(msg)
	if err != nil {
		dp.logger.Warn("handshake marshal failed", "error", err)
		return
	}
	dp.builtin.hsWriter.NewChange(rtps.ChangeAlive, payload, rtps.Now())
}

// handleHandshakeChange runs on the discovery receiver for every stateless
// message sample and advances the peer's handshake.
func (dp *DomainParticipant) handleHandshakeChange(c *rtps.CacheChange) {
	if dp.sessions == nil || c.Kind != rtps.ChangeAlive {
		return
	}
	var msg handshakeMessage
	if err := serialization.Unmarshal(c.Data, &msg); err != nil {
		dp.logger.Warn("handshake decode failed", "error", err)
		return
	}
	if msg.Destination != dp.guid.Prefix || msg.Source != c.Writer.Prefix {
		return
	}
	peer := c.Writer.Prefix
	reply, err := dp.sessions.Consume(peer, msg.Token)
	if err != nil {
		dp.logger.Warn("handshake rejected",
			"remote", peer.String(), "error", err)
		return
	}
	if reply != nil {
		dp.sendHandshakeToken(peer, *reply)
	}
	if subject, ok := dp.sessions.Authenticated(peer); ok {
		dp.logger.Info("participant authenticated",
			"remote", peer.String(), "subject", subject)
	}
}

// setUpSecurity loads the identity keystore and the access control
// documents, and starts watching the documents for live renewal.
func (dp *DomainParticipant) setUpSecurity() error {
	files := *dp.cfg.Security
	id, err := auth.LoadIdentity(files)
	if err != nil {
		return fmt.Errorf("dds: load identity: %w", err)
	}
	ctl, err := dp.loadAccessControl(files)
	if err != nil {
		return err
	}
	if err := ctl.CheckJoin(id.SubjectName(), time.Now()); err != nil {
		return fmt.Errorf("dds: not permitted to join domain %d: %w",
			dp.cfg.DomainID, err)
	}
	dp.identity = id
	dp.accessCtl = ctl

	logger := dp.cfg.Logger
	if logger == nil {
		logger = dp.logger
	}
	watch, err := security.WatchDocuments(files, func(path string) {
		if err := dp.reloadAccessControl(files); err != nil {
			logger.Warn("security document reload failed",
				"path", path, "error", err)
			return
		}
		logger.Info("security documents reloaded", "path", path)
	}, logger)
	if err != nil {
		// The watcher is an enhancement; a participant without live
		// renewal is still secure.
		logger.Warn("security document watch unavailable", "error", err)
	} else {
		dp.docWatch = watch
	}
	return nil
}

func (dp *DomainParticipant) loadAccessControl(files security.Files) (*access.Control, error) {
	governanceDoc, err := security.ReadURI(files.Governance)
	if err != nil {
		return nil, fmt.Errorf("dds: read governance: %w", err)
	}
	permissionsDoc, err := security.ReadURI(files.Permissions)
	if err != nil {
		return nil, fmt.Errorf("dds: read permissions: %w", err)
	}
	ctl, err := access.NewControl(dp.cfg.DomainID, governanceDoc, permissionsDoc)
	if err != nil {
		return nil, fmt.Errorf("dds: access control: %w", err)
	}
	return ctl, nil
}

func (dp *DomainParticipant) reloadAccessControl(files security.Files) error {
	governanceDoc, err := security.ReadURI(files.Governance)
	if err != nil {
		return err
	}
	permissionsDoc, err := security.ReadURI(files.Permissions)
	if err != nil {
		return err
	}
	return dp.accessCtl.Reload(governanceDoc, permissionsDoc)
}

func (dp *DomainParticipant) tearDownSecurity() {
	if dp.docWatch != nil {
		dp.docWatch.Close()
		dp.docWatch = nil
	}
}
