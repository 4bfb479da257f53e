// Package auth implements the builtin PKI-DH authentication plugin:
// certificate-backed identities, the adjusted participant GUID prefix, and
// the three-way handshake that yields a pairwise shared secret.
package auth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/google/uuid"

	"github.com/dataflume/flumedds/rtps"
	"github.com/dataflume/flumedds/security"
)

// IdentityTokenClassID names the builtin authentication plugin in
// discovery tokens.
const IdentityTokenClassID = "DDS:Auth:PKI-DH:1.0"

// AuthError reports an authentication failure.
type AuthError struct {
	Stage string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication: %s: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Identity is a loaded and CA-verified participant identity.
type Identity struct {
	Certificate    *x509.Certificate
	CertificateDER []byte
	PrivateKey     *ecdsa.PrivateKey
	CA             *x509.Certificate
}

// LoadIdentity reads the identity documents, checks the certificate chains
// to the identity CA, and checks the private key belongs to the
// certificate.
func LoadIdentity(files security.Files) (*Identity, error) {
	caPEM, err := security.ReadURI(files.IdentityCACertificate)
	if err != nil {
		return nil, err
	}
	ca, err := parseCertificatePEM(caPEM)
	if err != nil {
		return nil, &AuthError{Stage: "load identity CA", Err: err}
	}
	certPEM, err := security.ReadURI(files.IdentityCertificate)
	if err != nil {
		return nil, err
	}
	cert, err := parseCertificatePEM(certPEM)
	if err != nil {
		return nil, &AuthError{Stage: "load identity certificate", Err: err}
	}
	keyPEM, err := security.ReadURI(files.IdentityPrivateKey)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKeyPEM(keyPEM, files.PrivateKeyPassword)
	if err != nil {
		return nil, &AuthError{Stage: "load private key", Err: err}
	}

	id := &Identity{
		Certificate:    cert,
		CertificateDER: cert.Raw,
		PrivateKey:     key,
		CA:             ca,
	}
	if err := id.verifyCertificate(cert); err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return nil, &AuthError{Stage: "load private key",
			Err: fmt.Errorf("key does not match certificate")}
	}
	return id, nil
}

// SubjectName is the certificate subject as a distinguished name, the form
// permissions grants are keyed by.
func (id *Identity) SubjectName() string {
	return id.Certificate.Subject.String()
}

// verifyCertificate checks that cert chains to the identity CA.
func (id *Identity) verifyCertificate(cert *x509.Certificate) error {
	roots := x509.NewCertPool()
	roots.AddCert(id.CA)
	if _, err := cert.Verify(x509.VerifyOptions{Roots: roots}); err != nil {
		return &AuthError{Stage: "verify certificate", Err: err}
	}
	return nil
}

// AdjustedGUIDPrefix derives the secured participant prefix: the high bit
// set, the next 47 bits taken from a hash of the certificate subject, and
// the remainder random so two participants with one certificate still get
// distinct GUIDs.
func (id *Identity) AdjustedGUIDPrefix() rtps.GUIDPrefix {
	sum := sha256.Sum256(id.Certificate.RawSubject)
	var prefix rtps.GUIDPrefix
	prefix[0] = 0x80 | (sum[0] >> 1)
	for i := 1; i < 6; i++ {
		prefix[i] = sum[i-1]<<7 | sum[i]>>1
	}
	u := uuid.New()
	copy(prefix[6:], u[:6])
	return prefix
}

func parseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE block in PEM data")
	}
	return x509.ParseCertificate(block.Bytes)
}

func parsePrivateKeyPEM(data []byte, password string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in key data")
	}
	if password != "" {
		// Encrypted keys in the legacy PEM form are not supported; the
		// keystore should carry PKCS#8 keys.
		return nil, fmt.Errorf("password-protected keys are not supported")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return ec, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
