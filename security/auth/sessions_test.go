package auth

import (
	"bytes"
	"testing"

	"github.com/dataflume/flumedds/rtps"
)

func participantGUID(b byte) rtps.GUID {
	return rtps.GUID{Prefix: rtps.GUIDPrefix{b}, EntityID: rtps.EntityIDParticipant}
}

func TestSessionsAuthenticatePair(t *testing.T) {
	ca := newTestCA(t, "DataFlume Identity CA")
	aliceGUID, bobGUID := participantGUID(1), participantGUID(2)
	aliceID := loadTestIdentity(t, ca, "alice")
	bobID := loadTestIdentity(t, ca, "bob")
	alice := NewSessions(aliceID, aliceGUID)
	bob := NewSessions(bobID, bobGUID)

	// The lower GUID opens; the other side waits for the request.
	req, start, err := alice.Begin(bobGUID)
	if err != nil || !start {
		t.Fatalf("alice.Begin = (start=%v, err=%v), want initiator", start, err)
	}
	if _, start, err := bob.Begin(aliceGUID); err != nil || start {
		t.Fatalf("bob.Begin = (start=%v, err=%v), want responder", start, err)
	}

	// A repeat announcement before the reply resends the same request.
	again, start, err := alice.Begin(bobGUID)
	if err != nil || !start {
		t.Fatalf("retry Begin = (start=%v, err=%v)", start, err)
	}
	if !bytes.Equal(again.Challenge, req.Challenge) {
		t.Fatal("retry must reuse the original request token")
	}

	reply, err := bob.Consume(aliceGUID.Prefix, req)
	if err != nil || reply == nil {
		t.Fatalf("bob.Consume(request) = (%v, %v), want reply", reply, err)
	}
	final, err := alice.Consume(bobGUID.Prefix, *reply)
	if err != nil || final == nil {
		t.Fatalf("alice.Consume(reply) = (%v, %v), want final", final, err)
	}
	if out, err := bob.Consume(aliceGUID.Prefix, *final); err != nil || out != nil {
		t.Fatalf("bob.Consume(final) = (%v, %v), want nothing to send", out, err)
	}

	subject, ok := alice.Authenticated(bobGUID.Prefix)
	if !ok || subject != bobID.SubjectName() {
		t.Fatalf("alice sees %q (ok=%v), want bob's subject", subject, ok)
	}
	if subject, ok := bob.Authenticated(aliceGUID.Prefix); !ok || subject != aliceID.SubjectName() {
		t.Fatalf("bob sees %q (ok=%v), want alice's subject", subject, ok)
	}

	sa, okA := alice.SharedSecret(bobGUID.Prefix)
	sb, okB := bob.SharedSecret(aliceGUID.Prefix)
	if !okA || !okB || !bytes.Equal(sa, sb) {
		t.Fatal("both sides must derive the same shared secret")
	}

	// A retransmitted request after completion sends nothing new.
	if out, err := bob.Consume(aliceGUID.Prefix, req); err != nil || out != nil {
		t.Fatalf("replayed request = (%v, %v), want silence", out, err)
	}

	bob.Drop(aliceGUID.Prefix)
	if _, ok := bob.Authenticated(aliceGUID.Prefix); ok {
		t.Fatal("dropped peer must not stay authenticated")
	}
}

func TestSessionsRejectForeignPeer(t *testing.T) {
	ca := newTestCA(t, "Real CA")
	rogue := newTestCA(t, "Rogue CA")
	bobGUID, eveGUID := participantGUID(2), participantGUID(1)
	bob := NewSessions(loadTestIdentity(t, ca, "bob"), bobGUID)
	eve := NewSessions(loadTestIdentity(t, rogue, "eve"), eveGUID)

	req, start, err := eve.Begin(bobGUID)
	if err != nil || !start {
		t.Fatalf("eve.Begin = (start=%v, err=%v)", start, err)
	}
	if _, err := bob.Consume(eveGUID.Prefix, req); err == nil {
		t.Fatal("request signed by a foreign CA must be rejected")
	}
	if _, ok := bob.Authenticated(eveGUID.Prefix); ok {
		t.Fatal("rejected peer must not authenticate")
	}
}
