package security

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadURI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cert.pem")
	if err := os.WriteFile(path, []byte("PEM"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{"file scheme", "file:" + path, "PEM", false},
		{"file scheme with slashes", "file://" + path, "PEM", false},
		{"bare path", path, "PEM", false},
		{"data scheme", "data:,inline-content", "inline-content", false},
		{"pkcs11 unsupported", "pkcs11:token=foo", "", true},
		{"unknown scheme", "ftp://host/doc", "", true},
		{"missing file", "file:" + filepath.Join(dir, "nope.pem"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadURI: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnsupportedSchemeTyped(t *testing.T) {
	_, err := ReadURI("pkcs11:token=hsm")
	var use *UnsupportedSchemeError
	if !errors.As(err, &use) || use.Scheme != "pkcs11" {
		t.Fatalf("err = %v, want UnsupportedSchemeError for pkcs11", err)
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError wrapper", err)
	}
}

func TestROSDefaultNamesValidated(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"identity_ca.cert.pem", "cert.pem", "key.pem",
		"permissions_ca.cert.pem", "governance.p7s", "permissions.p7s",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	files := WithROSDefaultNames(dir, "")
	if err := files.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	files.Governance = ""
	if err := files.Validate(); err == nil {
		t.Fatal("want error for missing governance document")
	}
}

func TestDocumentWatcher(t *testing.T) {
	dir := t.TempDir()
	gov := filepath.Join(dir, "governance.p7s")
	if err := os.WriteFile(gov, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 4)
	files := Files{Governance: "file:" + gov}
	w, err := WatchDocuments(files, func(path string) {
		select {
		case changed <- path:
		default:
		}
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(gov, []byte("v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case path := <-changed:
		if path != gov {
			t.Fatalf("changed path = %q, want %q", path, gov)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestToProperties(t *testing.T) {
	f := WithROSDefaultNames("/enclave", "hunter2")
	props := f.ToProperties()

	byName := make(map[string]string, len(props))
	for _, p := range props {
		byName[p.Name] = p.Value
		if p.Name == "dds.sec.auth.builtin.PKI-DH.password" && p.Propagate {
			t.Error("private key password must not propagate")
		}
	}
	if byName["dds.sec.auth.plugin"] != "builtin.PKI-DH" {
		t.Errorf("auth plugin = %q", byName["dds.sec.auth.plugin"])
	}
	if byName["dds.sec.access.builtin.Access-Permissions.governance"] != "file:/enclave/governance.p7s" {
		t.Errorf("governance = %q",
			byName["dds.sec.access.builtin.Access-Permissions.governance"])
	}
}
