package dds

import (
	"log/slog"
	"time"

	"github.com/dataflume/flumedds/security"
)

// ParticipantBuilder assembles a participant configuration fluently.
// Unset fields keep the defaults from DefaultParticipantConfig.
type ParticipantBuilder struct {
	cfg ParticipantConfig
}

// NewParticipantBuilder starts a builder for the given domain.
func NewParticipantBuilder(domainID uint16) *ParticipantBuilder {
	cfg := DefaultParticipantConfig()
	cfg.DomainID = domainID
	return &ParticipantBuilder{cfg: cfg}
}

func (b *ParticipantBuilder) Name(name string) *ParticipantBuilder {
	b.cfg.EntityName = name
	return b
}

func (b *ParticipantBuilder) LeaseDuration(d time.Duration) *ParticipantBuilder {
	b.cfg.LeaseDuration = d
	return b
}

func (b *ParticipantBuilder) Security(files *security.Files) *ParticipantBuilder {
	b.cfg.Security = files
	return b
}

func (b *ParticipantBuilder) Logger(logger *slog.Logger) *ParticipantBuilder {
	b.cfg.Logger = logger
	return b
}

func (b *ParticipantBuilder) Metrics(obs Observer) *ParticipantBuilder {
	b.cfg.Metrics = obs
	return b
}

// Build validates the configuration and starts the participant.
func (b *ParticipantBuilder) Build() (*DomainParticipant, error) {
	return NewParticipant(b.cfg)
}
