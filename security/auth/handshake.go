package auth

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/serialization"
)

// Handshake token class ids.
const (
	RequestTokenClassID = IdentityTokenClassID + "+Req"
	ReplyTokenClassID   = IdentityTokenClassID + "+Reply"
	FinalTokenClassID   = IdentityTokenClassID + "+Final"
)

// HandshakeToken is one message of the three-way handshake, serialized as
// CDR inside a DATA submessage on the secure builtin channel.
type HandshakeToken struct {
	ClassID     string
	Certificate []byte
	Challenge   []byte
	DHPublicKey []byte
	Signature   []byte
}

// Marshal serializes the token with an encapsulation header.
func (t HandshakeToken) Marshal() ([]byte, error) {
	return serialization.Marshal(t)
}

// ParseHandshakeToken decodes a received token.
func ParseHandshakeToken(payload []byte) (HandshakeToken, error) {
	var t HandshakeToken
	if err := serialization.Unmarshal(payload, &t); err != nil {
		return HandshakeToken{}, &AuthError{Stage: "parse token", Err: err}
	}
	return t, nil
}

// HandshakeState tracks progress of one pairwise handshake.
type HandshakeState int

const (
	StateIdle HandshakeState = iota
	StateRequestSent
	StateReplySent
	StateCompleted
	StateFailed
)

func (s HandshakeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestSent:
		return "request-sent"
	case StateReplySent:
		return "reply-sent"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsInitiator decides which side opens the handshake: the participant with
// the lower GUID initiates.
func IsInitiator(local, remote rtps.GUID) bool {
	return local.Less(remote)
}

// Handshake authenticates one remote participant and derives the pairwise
// shared secret. Not safe for concurrent use; the participant serializes
// handshake traffic per peer.
type Handshake struct {
	identity *Identity
	state    HandshakeState

	dhPrivate           *ecdh.PrivateKey
	localChallenge      []byte
	remoteCert          *x509.Certificate
	remoteChallengeSeen []byte
	sharedSecret        []byte
}

// NewHandshake prepares a handshake for one peer.
func NewHandshake(identity *Identity) (*Handshake, error) {
	dh, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, &AuthError{Stage: "generate DH key", Err: err}
	}
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, &AuthError{Stage: "generate challenge", Err: err}
	}
	return &Handshake{
		identity:       identity,
		state:          StateIdle,
		dhPrivate:      dh,
		localChallenge: challenge,
	}, nil
}

// State reports handshake progress.
func (h *Handshake) State() HandshakeState {
	return h.state
}

// SharedSecret returns the derived secret after completion.
func (h *Handshake) SharedSecret() ([]byte, error) {
	if h.state != StateCompleted {
		return nil, &AuthError{Stage: "shared secret",
			Err: fmt.Errorf("handshake in state %s", h.state)}
	}
	return h.sharedSecret, nil
}

// RemoteSubjectName returns the authenticated peer's certificate subject,
// valid once the peer certificate has been verified.
func (h *Handshake) RemoteSubjectName() (string, error) {
	if h.remoteCert == nil {
		return "", &AuthError{Stage: "remote subject",
			Err: fmt.Errorf("peer not yet authenticated")}
	}
	return h.remoteCert.Subject.String(), nil
}

// BeginRequest produces the opening token. Only the initiating side calls
// it.
func (h *Handshake) BeginRequest() (HandshakeToken, error) {
	if h.state != StateIdle {
		return HandshakeToken{}, h.fail("begin request",
			fmt.Errorf("handshake already in state %s", h.state))
	}
	h.state = StateRequestSent
	return HandshakeToken{
		ClassID:     RequestTokenClassID,
		Certificate: h.identity.CertificateDER,
		Challenge:   h.localChallenge,
		DHPublicKey: h.dhPrivate.PublicKey().Bytes(),
	}, nil
}

// HandleRequest verifies an opening token and produces the reply. Only the
// responding side calls it.
func (h *Handshake) HandleRequest(req HandshakeToken) (HandshakeToken, error) {
	if h.state != StateIdle {
		return HandshakeToken{}, h.fail("handle request",
			fmt.Errorf("handshake already in state %s", h.state))
	}
	if req.ClassID != RequestTokenClassID {
		return HandshakeToken{}, h.fail("handle request",
			fmt.Errorf("unexpected token class %q", req.ClassID))
	}
	if err := h.acceptPeer(req); err != nil {
		return HandshakeToken{}, err
	}

	// The reply signs both challenges so the initiator knows this side
	// holds the certified key.
	sig, err := h.sign(req.Challenge, h.localChallenge, req.DHPublicKey)
	if err != nil {
		return HandshakeToken{}, err
	}
	if err := h.deriveSecret(req.DHPublicKey, req.Challenge, h.localChallenge); err != nil {
		return HandshakeToken{}, err
	}
	h.state = StateReplySent
	return HandshakeToken{
		ClassID:     ReplyTokenClassID,
		Certificate: h.identity.CertificateDER,
		Challenge:   h.localChallenge,
		DHPublicKey: h.dhPrivate.PublicKey().Bytes(),
		Signature:   sig,
	}, nil
}

// HandleReply verifies the reply and produces the final token, completing
// the initiating side.
func (h *Handshake) HandleReply(reply HandshakeToken) (HandshakeToken, error) {
	if h.state != StateRequestSent {
		return HandshakeToken{}, h.fail("handle reply",
			fmt.Errorf("handshake in state %s", h.state))
	}
	if reply.ClassID != ReplyTokenClassID {
		return HandshakeToken{}, h.fail("handle reply",
			fmt.Errorf("unexpected token class %q", reply.ClassID))
	}
	if err := h.acceptPeer(reply); err != nil {
		return HandshakeToken{}, err
	}
	if err := h.verify(reply.Certificate, reply.Signature,
		h.localChallenge, reply.Challenge, h.dhPrivate.PublicKey().Bytes()); err != nil {
		return HandshakeToken{}, err
	}

	sig, err := h.sign(reply.Challenge, h.localChallenge, reply.DHPublicKey)
	if err != nil {
		return HandshakeToken{}, err
	}
	if err := h.deriveSecret(reply.DHPublicKey, h.localChallenge, reply.Challenge); err != nil {
		return HandshakeToken{}, err
	}
	h.state = StateCompleted
	return HandshakeToken{
		ClassID:   FinalTokenClassID,
		Challenge: h.localChallenge,
		Signature: sig,
	}, nil
}

// HandleFinal verifies the final token, completing the responding side.
func (h *Handshake) HandleFinal(final HandshakeToken) error {
	if h.state != StateReplySent {
		return h.fail("handle final",
			fmt.Errorf("handshake in state %s", h.state))
	}
	if final.ClassID != FinalTokenClassID {
		return h.fail("handle final",
			fmt.Errorf("unexpected token class %q", final.ClassID))
	}
	if err := h.verify(h.remoteCert.Raw, final.Signature,
		h.localChallenge, final.Challenge, h.dhPrivate.PublicKey().Bytes()); err != nil {
		return err
	}
	if !bytes.Equal(final.Challenge, h.remoteChallengeSeen) {
		return h.fail("handle final", fmt.Errorf("challenge mismatch"))
	}
	h.state = StateCompleted
	return nil
}

func (h *Handshake) acceptPeer(t HandshakeToken) error {
	cert, err := x509.ParseCertificate(t.Certificate)
	if err != nil {
		return h.fail("parse peer certificate", err)
	}
	if err := h.identity.verifyCertificate(cert); err != nil {
		h.state = StateFailed
		return err
	}
	if len(t.Challenge) != 32 {
		return h.fail("accept peer", fmt.Errorf("challenge of %d bytes", len(t.Challenge)))
	}
	h.remoteCert = cert
	h.remoteChallengeSeen = t.Challenge
	return nil
}

// sign covers the concatenation of both challenges and the DH public key.
func (h *Handshake) sign(parts ...[]byte) ([]byte, error) {
	digest := digestOf(parts...)
	sig, err := ecdsa.SignASN1(rand.Reader, h.identity.PrivateKey, digest)
	if err != nil {
		return nil, &AuthError{Stage: "sign", Err: err}
	}
	return sig, nil
}

func (h *Handshake) verify(certDER, sig []byte, parts ...[]byte) error {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return h.fail("verify", err)
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return h.fail("verify", fmt.Errorf("peer key is %T, want ECDSA", cert.PublicKey))
	}
	if !ecdsa.VerifyASN1(pub, digestOf(parts...), sig) {
		return h.fail("verify", fmt.Errorf("signature check failed"))
	}
	return nil
}

func (h *Handshake) deriveSecret(peerDHPublic []byte, challengeA, challengeB []byte) error {
	peer, err := ecdh.P256().NewPublicKey(peerDHPublic)
	if err != nil {
		return h.fail("derive secret", err)
	}
	shared, err := h.dhPrivate.ECDH(peer)
	if err != nil {
		return h.fail("derive secret", err)
	}
	sum := sha256.New()
	sum.Write(shared)
	sum.Write(challengeA)
	sum.Write(challengeB)
	h.sharedSecret = sum.Sum(nil)
	return nil
}

func (h *Handshake) fail(stage string, err error) *AuthError {
	h.state = StateFailed
	return &AuthError{Stage: stage, Err: err}
}

func digestOf(parts ...[]byte) []byte {
	sum := sha256.New()
	for _, p := range parts {
		sum.Write(p)
	}
	return sum.Sum(nil)
}
