package auth

import (
	"fmt"
	"sync"

	"github.com/dataflume/flumedds/rtps"
)

// Sessions drives one pairwise handshake per remote participant and
// remembers which peers finished authenticating. It is safe for
// concurrent use from discovery and receive goroutines.
type Sessions struct {
	identity *Identity
	local    rtps.GUID

	mu    sync.Mutex
	peers map[rtps.GUIDPrefix]*session
}

type session struct {
	hs      *Handshake
	request HandshakeToken
	subject string
	secret  []byte
	done    bool
}

// NewSessions creates the session table for one local participant.
func NewSessions(identity *Identity, local rtps.GUID) *Sessions {
	return &Sessions{
		identity: identity,
		local:    local,
		peers:    make(map[rtps.GUIDPrefix]*session),
	}
}

// Begin ensures a session with the peer exists. On the initiating side it
// returns the request token to transmit, on every later call too until the
// reply arrives, so periodic discovery announcements double as handshake
// retries. The responding side gets ok false and waits for the request.
func (s *Sessions) Begin(remote rtps.GUID) (HandshakeToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.peers[remote.Prefix]
	if exists {
		if !sess.done && sess.hs.State() == StateRequestSent {
			return sess.request, true, nil
		}
		return HandshakeToken{}, false, nil
	}

	hs, err := NewHandshake(s.identity)
	if err != nil {
		return HandshakeToken{}, false, err
	}
	sess = &session{hs: hs}
	s.peers[remote.Prefix] = sess

	if !IsInitiator(s.local, remote) {
		return HandshakeToken{}, false, nil
	}
	req, err := hs.BeginRequest()
	if err != nil {
		delete(s.peers, remote.Prefix)
		return HandshakeToken{}, false, err
	}
	sess.request = req
	return req, true, nil
}

// Consume feeds one received token into the peer's handshake. A non-nil
// reply must be transmitted back. Completion is visible via Authenticated.
func (s *Sessions) Consume(remote rtps.GUIDPrefix, tok HandshakeToken) (*HandshakeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.peers[remote]
	if !ok {
		// Request from a peer we have not seen announce yet.
		if tok.ClassID != RequestTokenClassID {
			return nil, &AuthError{Stage: "consume token",
				Err: fmt.Errorf("%s token for unknown peer %s", tok.ClassID, remote)}
		}
		hs, err := NewHandshake(s.identity)
		if err != nil {
			return nil, err
		}
		sess = &session{hs: hs}
		s.peers[remote] = sess
	}
	if sess.done {
		return nil, nil
	}

	switch tok.ClassID {
	case RequestTokenClassID:
		if sess.hs.State() != StateIdle {
			// Retransmitted request; the reply was lost or is in flight.
			return nil, nil
		}
		reply, err := sess.hs.HandleRequest(tok)
		if err != nil {
			delete(s.peers, remote)
			return nil, err
		}
		return &reply, nil
	case ReplyTokenClassID:
		if sess.hs.State() != StateRequestSent {
			return nil, nil
		}
		final, err := sess.hs.HandleReply(tok)
		if err != nil {
			delete(s.peers, remote)
			return nil, err
		}
		if err := s.complete(sess); err != nil {
			delete(s.peers, remote)
			return nil, err
		}
		return &final, nil
	case FinalTokenClassID:
		if sess.hs.State() != StateReplySent {
			return nil, nil
		}
		if err := sess.hs.HandleFinal(tok); err != nil {
			delete(s.peers, remote)
			return nil, err
		}
		if err := s.complete(sess); err != nil {
			delete(s.peers, remote)
			return nil, err
		}
		return nil, nil
	default:
		return nil, &AuthError{Stage: "consume token",
			Err: fmt.Errorf("unknown token class %q", tok.ClassID)}
	}
}

func (s *Sessions) complete(sess *session) error {
	subject, err := sess.hs.RemoteSubjectName()
	if err != nil {
		return err
	}
	secret, err := sess.hs.SharedSecret()
	if err != nil {
		return err
	}
	sess.subject = subject
	sess.secret = secret
	sess.done = true
	return nil
}

// Authenticated reports whether the peer finished the handshake, and its
// certificate subject when it did.
func (s *Sessions) Authenticated(remote rtps.GUIDPrefix) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.peers[remote]
	if !ok || !sess.done {
		return "", false
	}
	return sess.subject, true
}

// SharedSecret returns the pairwise secret derived with an authenticated
// peer.
func (s *Sessions) SharedSecret(remote rtps.GUIDPrefix) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.peers[remote]
	if !ok || !sess.done {
		return nil, false
	}
	return sess.secret, true
}

// Drop forgets the peer's session, forcing a fresh handshake if it comes
// back.
func (s *Sessions) Drop(remote rtps.GUIDPrefix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, remote)
}
