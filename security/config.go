// Package security carries the configuration surface of the DDS Security
// plugins: where the certificates and signed documents live, how URIs in
// property lists are resolved, and change watching for the signed
// documents. The plugin implementations live in the access and auth
// subpackages.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dataflume/flumedds/qos"
)

// Files names the documents a secured participant needs. Every field is a
// URI as used in DDS Security property lists ("file:", "data:,").
type Files struct {
	IdentityCACertificate    string
	IdentityCertificate      string
	IdentityPrivateKey       string
	PrivateKeyPassword       string
	PermissionsCACertificate string
	Governance               string
	Permissions              string
}

// WithROSDefaultNames builds the file set the ROS 2 keystore layout uses
// inside one enclave directory.
func WithROSDefaultNames(dir string, privateKeyPassword string) Files {
	uri := func(name string) string {
		return "file:" + filepath.Join(dir, name)
	}
	return Files{
		IdentityCACertificate:    uri("identity_ca.cert.pem"),
		IdentityCertificate:      uri("cert.pem"),
		IdentityPrivateKey:       uri("key.pem"),
		PrivateKeyPassword:       privateKeyPassword,
		PermissionsCACertificate: uri("permissions_ca.cert.pem"),
		Governance:               uri("governance.p7s"),
		Permissions:              uri("permissions.p7s"),
	}
}

// Validate checks that every mandatory document is present and readable.
func (f Files) Validate() error {
	fields := []struct {
		name string
		uri  string
	}{
		{"identity CA certificate", f.IdentityCACertificate},
		{"identity certificate", f.IdentityCertificate},
		{"identity private key", f.IdentityPrivateKey},
		{"permissions CA certificate", f.PermissionsCACertificate},
		{"governance document", f.Governance},
		{"permissions document", f.Permissions},
	}
	for _, fl := range fields {
		if fl.uri == "" {
			return &ConfigError{Op: "validate", URI: fl.name,
				Err: fmt.Errorf("missing %s", fl.name)}
		}
		if _, err := ReadURI(fl.uri); err != nil {
			return err
		}
	}
	return nil
}

// ToProperties renders the file set as the DDS Security participant
// properties other vendors read. The private key password stays local.
func (f Files) ToProperties() []qos.Property {
	prop := func(name, value string, propagate bool) qos.Property {
		return qos.Property{Name: name, Value: value, Propagate: propagate}
	}
	return []qos.Property{
		prop("dds.sec.auth.plugin", "builtin.PKI-DH", true),
		prop("dds.sec.auth.builtin.PKI-DH.identity_ca", f.IdentityCACertificate, true),
		prop("dds.sec.auth.builtin.PKI-DH.identity_certificate", f.IdentityCertificate, true),
		prop("dds.sec.auth.builtin.PKI-DH.private_key", f.IdentityPrivateKey, true),
		prop("dds.sec.auth.builtin.PKI-DH.password", f.PrivateKeyPassword, false),
		prop("dds.sec.access.plugin", "builtin.Access-Permissions", true),
		prop("dds.sec.access.builtin.Access-Permissions.permissions_ca", f.PermissionsCACertificate, true),
		prop("dds.sec.access.builtin.Access-Permissions.governance", f.Governance, true),
		prop("dds.sec.access.builtin.Access-Permissions.permissions", f.Permissions, true),
	}
}

// ReadURI resolves one property-list URI to its bytes. Supported schemes
// are "file:" (with or without slashes) and "data:," with inline content.
// "pkcs11:" is recognized but not supported.
func ReadURI(uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "data:,"):
		return []byte(strings.TrimPrefix(uri, "data:,")), nil
	case strings.HasPrefix(uri, "pkcs11:"):
		return nil, &ConfigError{Op: "read", URI: uri,
			Err: &UnsupportedSchemeError{Scheme: "pkcs11"}}
	case strings.HasPrefix(uri, "file:"):
		path := strings.TrimPrefix(uri, "file:")
		path = strings.TrimPrefix(path, "//")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Op: "read", URI: uri, Err: err}
		}
		return data, nil
	default:
		scheme, _, found := strings.Cut(uri, ":")
		if !found {
			// A bare path is treated as a file for convenience.
			data, err := os.ReadFile(uri)
			if err != nil {
				return nil, &ConfigError{Op: "read", URI: uri, Err: err}
			}
			return data, nil
		}
		return nil, &ConfigError{Op: "read", URI: uri,
			Err: &UnsupportedSchemeError{Scheme: scheme}}
	}
}

// FilePath returns the local path behind a "file:" URI, or empty when the
// URI does not name a watchable file.
func FilePath(uri string) string {
	if !strings.HasPrefix(uri, "file:") {
		return ""
	}
	path := strings.TrimPrefix(uri, "file:")
	return strings.TrimPrefix(path, "//")
}
