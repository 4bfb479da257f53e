// Package config provides configuration loading and management for flumedds
// deployments: participant settings, networking, security file locations
// and the optional NATS bridge.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dataflume/flumedds/dds"
	"github.com/dataflume/flumedds/discovery"
	"github.com/dataflume/flumedds/security"
	"github.com/dataflume/flumedds/transport"
)

// Config represents the complete flumedds configuration
type Config struct {
	Participant ParticipantConfig `yaml:"participant"`
	Network     NetworkConfig     `yaml:"network"`
	Security    SecurityConfig    `yaml:"security"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ParticipantConfig configures the domain participant
type ParticipantConfig struct {
	// Domain is the DDS domain id (default: 0)
	Domain uint16 `yaml:"domain"`
	// Name is a human-readable participant name carried in discovery
	Name string `yaml:"name"`
	// Lease is how long peers keep this participant alive without
	// hearing from it (default: 100s)
	Lease time.Duration `yaml:"lease"`
	// AnnouncePeriod is the SPDP re-announcement interval (default: 10s)
	AnnouncePeriod time.Duration `yaml:"announce_period"`
	// HeartbeatPeriod is the reliable writer heartbeat interval
	// (default: 1s)
	HeartbeatPeriod time.Duration `yaml:"heartbeat_period"`
}

// NetworkConfig configures the UDP transport
type NetworkConfig struct {
	// MulticastGroup is the discovery multicast address
	// (default: 239.255.0.1)
	MulticastGroup string `yaml:"multicast_group"`
	// MulticastTTL limits multicast scope (default: 1)
	MulticastTTL int `yaml:"multicast_ttl"`
	// MaxParticipants bounds the participant slots probed on one host
	// (default: 120)
	MaxParticipants int `yaml:"max_participants"`
}

// SecurityConfig configures DDS Security. Security is enabled when
// KeystoreDir or all explicit URIs are set.
type SecurityConfig struct {
	// KeystoreDir holds a keystore laid out with the conventional file
	// names (identity_ca.cert.pem, cert.pem, key.pem, ...)
	KeystoreDir string `yaml:"keystore_dir"`
	// PrivateKeyPassword decrypts the identity private key if needed
	PrivateKeyPassword string `yaml:"private_key_password"`

	// Explicit document URIs override KeystoreDir when all are set
	IdentityCA    string `yaml:"identity_ca"`
	Identity      string `yaml:"identity"`
	PrivateKey    string `yaml:"private_key"`
	PermissionsCA string `yaml:"permissions_ca"`
	Governance    string `yaml:"governance"`
	Permissions   string `yaml:"permissions"`
}

// BridgeConfig configures the DDS to NATS gateway
type BridgeConfig struct {
	// URL is the NATS server URL (empty = bridge disabled)
	URL string `yaml:"url"`
	// SubjectPrefix prefixes every NATS subject (default: "dds")
	SubjectPrefix string `yaml:"subject_prefix"`
	// Topics lists the DDS topics to forward
	Topics []BridgeTopic `yaml:"topics"`
}

// BridgeTopic maps one DDS topic onto the NATS subject space
type BridgeTopic struct {
	// Name is the DDS topic name
	Name string `yaml:"name"`
	// Type is the DDS type name advertised for the topic
	Type string `yaml:"type"`
	// Reliable selects reliable DDS endpoints for the topic
	Reliable bool `yaml:"reliable"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Listen is the metrics HTTP listen address (empty = disabled)
	Listen string `yaml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Participant: ParticipantConfig{
			Domain:          0,
			Lease:           100 * time.Second,
			AnnouncePeriod:  10 * time.Second,
			HeartbeatPeriod: time.Second,
		},
		Network: NetworkConfig{
			MulticastGroup:  transport.DefaultMulticastGroup.String(),
			MulticastTTL:    1,
			MaxParticipants: 120,
		},
		Bridge: BridgeConfig{
			SubjectPrefix: "dds",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Participant.Lease <= 0 {
		return fmt.Errorf("participant.lease must be positive")
	}
	if c.Participant.AnnouncePeriod >= c.Participant.Lease {
		return fmt.Errorf("participant.announce_period must be below participant.lease")
	}
	if net.ParseIP(c.Network.MulticastGroup) == nil {
		return fmt.Errorf("network.multicast_group %q is not an IP address", c.Network.MulticastGroup)
	}
	if c.Network.MaxParticipants <= 0 {
		return fmt.Errorf("network.max_participants must be positive")
	}
	for i, t := range c.Bridge.Topics {
		if t.Name == "" {
			return fmt.Errorf("bridge.topics[%d].name is required", i)
		}
	}
	if files := c.SecurityFiles(); files != nil {
		if err := files.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SecurityFiles resolves the security document locations, or nil when
// security is disabled.
func (c *Config) SecurityFiles() *security.Files {
	s := c.Security
	if s.IdentityCA != "" && s.Identity != "" && s.PrivateKey != "" &&
		s.PermissionsCA != "" && s.Governance != "" && s.Permissions != "" {
		return &security.Files{
			IdentityCACertificate:    s.IdentityCA,
			IdentityCertificate:      s.Identity,
			IdentityPrivateKey:       s.PrivateKey,
			PrivateKeyPassword:       s.PrivateKeyPassword,
			PermissionsCACertificate: s.PermissionsCA,
			Governance:               s.Governance,
			Permissions:              s.Permissions,
		}
	}
	if s.KeystoreDir != "" {
		files := security.WithROSDefaultNames(s.KeystoreDir, s.PrivateKeyPassword)
		return &files
	}
	return nil
}

// ToParticipantConfig translates the file configuration into the runtime
// participant configuration.
func (c *Config) ToParticipantConfig() dds.ParticipantConfig {
	pc := dds.DefaultParticipantConfig()
	pc.DomainID = c.Participant.Domain
	pc.EntityName = c.Participant.Name
	pc.LeaseDuration = c.Participant.Lease
	pc.HeartbeatPeriod = c.Participant.HeartbeatPeriod
	pc.Transport = transport.Config{
		DomainID:        c.Participant.Domain,
		MulticastGroup:  net.ParseIP(c.Network.MulticastGroup),
		MulticastTTL:    c.Network.MulticastTTL,
		MaxParticipants: c.Network.MaxParticipants,
	}
	pc.Discovery = discovery.Config{
		AnnouncePeriod:   c.Participant.AnnouncePeriod,
		LeaseCheckPeriod: c.Participant.AnnouncePeriod / 2,
	}
	pc.Security = c.SecurityFiles()
	return pc
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Participant
	if other.Participant.Domain != 0 {
		c.Participant.Domain = other.Participant.Domain
	}
	if other.Participant.Name != "" {
		c.Participant.Name = other.Participant.Name
	}
	if other.Participant.Lease != 0 {
		c.Participant.Lease = other.Participant.Lease
	}
	if other.Participant.AnnouncePeriod != 0 {
		c.Participant.AnnouncePeriod = other.Participant.AnnouncePeriod
	}
	if other.Participant.HeartbeatPeriod != 0 {
		c.Participant.HeartbeatPeriod = other.Participant.HeartbeatPeriod
	}

	// Network
	if other.Network.MulticastGroup != "" {
		c.Network.MulticastGroup = other.Network.MulticastGroup
	}
	if other.Network.MulticastTTL != 0 {
		c.Network.MulticastTTL = other.Network.MulticastTTL
	}
	if other.Network.MaxParticipants != 0 {
		c.Network.MaxParticipants = other.Network.MaxParticipants
	}

	// Security
	if other.Security.KeystoreDir != "" {
		c.Security.KeystoreDir = other.Security.KeystoreDir
	}
	if other.Security.PrivateKeyPassword != "" {
		c.Security.PrivateKeyPassword = other.Security.PrivateKeyPassword
	}
	if other.Security.IdentityCA != "" {
		c.Security.IdentityCA = other.Security.IdentityCA
	}
	if other.Security.Identity != "" {
		c.Security.Identity = other.Security.Identity
	}
	if other.Security.PrivateKey != "" {
		c.Security.PrivateKey = other.Security.PrivateKey
	}
	if other.Security.PermissionsCA != "" {
		c.Security.PermissionsCA = other.Security.PermissionsCA
	}
	if other.Security.Governance != "" {
		c.Security.Governance = other.Security.Governance
	}
	if other.Security.Permissions != "" {
		c.Security.Permissions = other.Security.Permissions
	}

	// Bridge
	if other.Bridge.URL != "" {
		c.Bridge.URL = other.Bridge.URL
	}
	if other.Bridge.SubjectPrefix != "" {
		c.Bridge.SubjectPrefix = other.Bridge.SubjectPrefix
	}
	if len(other.Bridge.Topics) > 0 {
		c.Bridge.Topics = other.Bridge.Topics
	}

	// Metrics
	if other.Metrics.Listen != "" {
		c.Metrics.Listen = other.Metrics.Listen
	}
}
