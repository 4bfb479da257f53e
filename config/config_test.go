package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Participant.Domain != 0 {
		t.Errorf("expected default domain 0, got %d", cfg.Participant.Domain)
	}
	if cfg.Participant.Lease != 100*time.Second {
		t.Errorf("expected default lease 100s, got %v", cfg.Participant.Lease)
	}
	if cfg.Network.MulticastGroup != "239.255.0.1" {
		t.Errorf("expected default multicast group 239.255.0.1, got %s", cfg.Network.MulticastGroup)
	}
	if cfg.Bridge.SubjectPrefix != "dds" {
		t.Errorf("expected default subject prefix dds, got %s", cfg.Bridge.SubjectPrefix)
	}
	if cfg.SecurityFiles() != nil {
		t.Error("security should be disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero lease",
			modify:  func(c *Config) { c.Participant.Lease = 0 },
			wantErr: true,
		},
		{
			name:    "announce period above lease",
			modify:  func(c *Config) { c.Participant.AnnouncePeriod = 2 * c.Participant.Lease },
			wantErr: true,
		},
		{
			name:    "bad multicast group",
			modify:  func(c *Config) { c.Network.MulticastGroup = "not-an-ip" },
			wantErr: true,
		},
		{
			name:    "bridge topic without name",
			modify:  func(c *Config) { c.Bridge.Topics = []BridgeTopic{{Type: "Shape"}} },
			wantErr: true,
		},
		{
			name:    "keystore dir without documents",
			modify:  func(c *Config) { c.Security.KeystoreDir = "/nonexistent/keystore" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
participant:
  domain: 42
  name: "sensor-gateway"
  lease: 30s
  announce_period: 3s
network:
  multicast_group: "239.255.0.2"
  multicast_ttl: 4
bridge:
  url: "nats://test:4222"
  topics:
    - name: Telemetry
      type: SensorReading
      reliable: true
metrics:
  listen: ":9102"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Participant.Domain != 42 {
		t.Errorf("expected domain 42, got %d", cfg.Participant.Domain)
	}
	if cfg.Participant.Name != "sensor-gateway" {
		t.Errorf("expected name sensor-gateway, got %s", cfg.Participant.Name)
	}
	if cfg.Participant.Lease != 30*time.Second {
		t.Errorf("expected lease 30s, got %v", cfg.Participant.Lease)
	}
	if cfg.Network.MulticastGroup != "239.255.0.2" {
		t.Errorf("expected multicast group 239.255.0.2, got %s", cfg.Network.MulticastGroup)
	}
	// Defaults survive for fields the file does not set
	if cfg.Network.MaxParticipants != 120 {
		t.Errorf("expected max participants default 120, got %d", cfg.Network.MaxParticipants)
	}
	if cfg.Bridge.URL != "nats://test:4222" {
		t.Errorf("expected bridge URL nats://test:4222, got %s", cfg.Bridge.URL)
	}
	if len(cfg.Bridge.Topics) != 1 || !cfg.Bridge.Topics[0].Reliable {
		t.Errorf("expected one reliable bridge topic, got %+v", cfg.Bridge.Topics)
	}
	if cfg.Metrics.Listen != ":9102" {
		t.Errorf("expected metrics listen :9102, got %s", cfg.Metrics.Listen)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Participant: ParticipantConfig{
			Domain: 7,
			Name:   "override",
		},
		Bridge: BridgeConfig{
			URL: "nats://other:4222",
		},
	}

	base.Merge(override)

	if base.Participant.Domain != 7 {
		t.Errorf("expected domain 7, got %d", base.Participant.Domain)
	}
	if base.Participant.Name != "override" {
		t.Errorf("expected name override, got %s", base.Participant.Name)
	}
	// Lease should remain from base since override didn't set it
	if base.Participant.Lease != 100*time.Second {
		t.Errorf("expected lease to remain default, got %v", base.Participant.Lease)
	}
	if base.Bridge.URL != "nats://other:4222" {
		t.Errorf("expected bridge URL nats://other:4222, got %s", base.Bridge.URL)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Participant.Name = "saved"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Participant.Name != "saved" {
		t.Errorf("expected name saved, got %s", loaded.Participant.Name)
	}
}

func TestSecurityFilesFromKeystore(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"identity_ca.cert.pem", "cert.pem", "key.pem",
		"permissions_ca.cert.pem", "governance.p7s", "permissions.p7s",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	cfg := DefaultConfig()
	cfg.Security.KeystoreDir = dir
	if err := cfg.Validate(); err != nil {
		t.Fatalf("keystore config should validate: %v", err)
	}
	files := cfg.SecurityFiles()
	if files == nil {
		t.Fatal("keystore dir must enable security")
	}
	if got := files.Governance; got != "file:"+filepath.Join(dir, "governance.p7s") {
		t.Errorf("governance uri = %q", got)
	}
}

func TestToParticipantConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Participant.Domain = 3
	cfg.Participant.Name = "gw"
	cfg.Network.MulticastTTL = 2

	pc := cfg.ToParticipantConfig()
	if pc.DomainID != 3 {
		t.Errorf("expected domain 3, got %d", pc.DomainID)
	}
	if pc.EntityName != "gw" {
		t.Errorf("expected entity name gw, got %s", pc.EntityName)
	}
	if pc.Transport.MulticastTTL != 2 {
		t.Errorf("expected TTL 2, got %d", pc.Transport.MulticastTTL)
	}
	if pc.Security != nil {
		t.Error("security must stay disabled without documents")
	}
	if err := pc.Validate(); err != nil {
		t.Errorf("translated config should validate: %v", err)
	}
}
