package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/security"
)

type testCA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

func newTestCA(t *testing.T, name string) *testCA {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name, Organization: []string{"DataFlume"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return &testCA{cert: cert, key: key}
}

// issueIdentity writes an identity keystore under a temp dir and returns
// the file set for it.
func (ca *testCA) issueIdentity(t *testing.T, cn string) security.Files {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"DataFlume"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	write := func(name, blockType string, body []byte) string {
		path := filepath.Join(dir, name)
		data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: body})
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		return "file:" + path
	}
	return security.Files{
		IdentityCACertificate: write("identity_ca.cert.pem", "CERTIFICATE", ca.cert.Raw),
		IdentityCertificate:   write("cert.pem", "CERTIFICATE", der),
		IdentityPrivateKey:    write("key.pem", "EC PRIVATE KEY", keyDER),
	}
}

func loadTestIdentity(t *testing.T, ca *testCA, cn string) *Identity {
	t.Helper()
	id, err := LoadIdentity(ca.issueIdentity(t, cn))
	if err != nil {
		t.Fatalf("LoadIdentity(%s): %v", cn, err)
	}
	return id
}

func TestLoadIdentity(t *testing.T) {
	ca := newTestCA(t, "DataFlume Identity CA")
	id := loadTestIdentity(t, ca, "node01")
	if id.SubjectName() == "" {
		t.Error("empty subject name")
	}

	prefix := id.AdjustedGUIDPrefix()
	if prefix[0]&0x80 == 0 {
		t.Error("adjusted prefix must set the high bit")
	}
	other := id.AdjustedGUIDPrefix()
	if prefix == other {
		t.Error("two prefixes from one identity must differ in the random part")
	}
	if prefix[1] != other[1] || prefix[5] != other[5] {
		t.Error("hash-derived part must be stable across calls")
	}
}

func TestLoadIdentityRejectsForeignCA(t *testing.T) {
	ca := newTestCA(t, "Real CA")
	rogue := newTestCA(t, "Rogue CA")
	files := rogue.issueIdentity(t, "intruder")
	// Swap in the real CA: the rogue-signed certificate must not verify.
	files.IdentityCACertificate = ca.issueIdentity(t, "x").IdentityCACertificate
	if _, err := LoadIdentity(files); err == nil {
		t.Fatal("identity from a foreign CA must not load")
	}
}

func TestHandshakeCompletes(t *testing.T) {
	ca := newTestCA(t, "DataFlume Identity CA")
	alice := loadTestIdentity(t, ca, "alice")
	bob := loadTestIdentity(t, ca, "bob")

	initiator, err := NewHandshake(alice)
	if err != nil {
		t.Fatal(err)
	}
	responder, err := NewHandshake(bob)
	if err != nil {
		t.Fatal(err)
	}

	req, err := initiator.BeginRequest()
	if err != nil {
		t.Fatalf("BeginRequest: %v", err)
	}

	// Tokens cross the wire as CDR payloads.
	wire, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	reqIn, err := ParseHandshakeToken(wire)
	if err != nil {
		t.Fatalf("ParseHandshakeToken: %v", err)
	}

	reply, err := responder.HandleRequest(reqIn)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	final, err := initiator.HandleReply(reply)
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if err := responder.HandleFinal(final); err != nil {
		t.Fatalf("HandleFinal: %v", err)
	}

	if initiator.State() != StateCompleted || responder.State() != StateCompleted {
		t.Fatalf("states: %s / %s", initiator.State(), responder.State())
	}
	s1, err := initiator.SharedSecret()
	if err != nil {
		t.Fatal(err)
	}
	s2, err := responder.SharedSecret()
	if err != nil {
		t.Fatal(err)
	}
	if string(s1) != string(s2) {
		t.Fatal("shared secrets differ")
	}
	subject, err := responder.RemoteSubjectName()
	if err != nil || subject != alice.SubjectName() {
		t.Fatalf("RemoteSubjectName = %q, %v", subject, err)
	}
}

func TestHandshakeRejectsForeignPeer(t *testing.T) {
	ca := newTestCA(t, "Real CA")
	rogueCA := newTestCA(t, "Rogue CA")
	alice := loadTestIdentity(t, ca, "alice")
	mallory := loadTestIdentity(t, rogueCA, "mallory")

	initiator, err := NewHandshake(mallory)
	if err != nil {
		t.Fatal(err)
	}
	responder, err := NewHandshake(alice)
	if err != nil {
		t.Fatal(err)
	}
	req, err := initiator.BeginRequest()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := responder.HandleRequest(req); err == nil {
		t.Fatal("request from a foreign CA must be rejected")
	}
	if responder.State() != StateFailed {
		t.Fatalf("responder state = %s, want failed", responder.State())
	}
}

func TestHandshakeRejectsTamperedReply(t *testing.T) {
	ca := newTestCA(t, "DataFlume Identity CA")
	alice := loadTestIdentity(t, ca, "alice")
	bob := loadTestIdentity(t, ca, "bob")

	initiator, _ := NewHandshake(alice)
	responder, _ := NewHandshake(bob)
	req, err := initiator.BeginRequest()
	if err != nil {
		t.Fatal(err)
	}
	reply, err := responder.HandleRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	reply.Challenge[0] ^= 0xff
	if _, err := initiator.HandleReply(reply); err == nil {
		t.Fatal("tampered reply must fail signature verification")
	}
}

func TestIsInitiator(t *testing.T) {
	var low, high rtps.GUID
	high.Prefix[0] = 1
	if !IsInitiator(low, high) {
		t.Error("lower GUID initiates")
	}
	if IsInitiator(high, low) {
		t.Error("higher GUID must wait")
	}
}
