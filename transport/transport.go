package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/dataflume/flumedds/rtps"
)

// Config selects the domain and tuning knobs for a participant's sockets.
type Config struct {
	DomainID        uint16
	MulticastGroup  net.IP
	MulticastTTL    int
	MaxParticipants int
}

// DefaultConfig returns the standard RTPS transport settings for domain 0.
func DefaultConfig() Config {
	return Config{
		DomainID:        0,
		MulticastGroup:  DefaultMulticastGroup,
		MulticastTTL:    1,
		MaxParticipants: 120,
	}
}

// Transport bundles the four sockets of one participant: discovery and
// user-traffic unicast listeners on ports derived from the probed
// participant slot, the two shared multicast listeners, and the outbound
// socket.
type Transport struct {
	cfg           Config
	participantID int
	logger        *slog.Logger

	discoveryUnicast   *Listener
	userUnicast        *Listener
	discoveryMulticast *Listener
	userMulticast      *Listener
	sender             *Sender
}

// Open binds the sockets for the first free participant slot in the
// domain. Slots are probed in order; a host already running participants
// in this domain yields the next slot.
func Open(cfg Config, logger *slog.Logger) (*Transport, error) {
	if cfg.MulticastGroup == nil {
		cfg.MulticastGroup = DefaultMulticastGroup
	}
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = 120
	}

	t := &Transport{cfg: cfg, participantID: -1, logger: logger}
	for id := 0; id < cfg.MaxParticipants; id++ {
		du, err := NewUnicastListener(DiscoveryUnicastPort(cfg.DomainID, id), logger)
		if err != nil {
			continue
		}
		uu, err := NewUnicastListener(UserUnicastPort(cfg.DomainID, id), logger)
		if err != nil {
			du.Close()
			continue
		}
		t.discoveryUnicast, t.userUnicast = du, uu
		t.participantID = id
		break
	}
	if t.participantID < 0 {
		return nil, fmt.Errorf("domain %d: no free participant slot in %d tries",
			cfg.DomainID, cfg.MaxParticipants)
	}

	var err error
	t.discoveryMulticast, err = NewMulticastListener(cfg.MulticastGroup, DiscoveryMulticastPort(cfg.DomainID), logger)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.userMulticast, err = NewMulticastListener(cfg.MulticastGroup, UserMulticastPort(cfg.DomainID), logger)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.sender, err = NewSender(cfg.MulticastTTL, logger)
	if err != nil {
		t.Close()
		return nil, err
	}

	logger.Info("transport ready",
		"domain", cfg.DomainID,
		"participant_id", t.participantID,
		"discovery_port", t.discoveryUnicast.Port(),
		"user_port", t.userUnicast.Port())
	return t, nil
}

// ParticipantID returns the probed slot within the domain.
func (t *Transport) ParticipantID() int {
	return t.participantID
}

// Start launches the read loops. Discovery and user traffic go to their
// respective handlers.
func (t *Transport) Start(discovery, user Handler) error {
	for _, l := range []*Listener{t.discoveryUnicast, t.discoveryMulticast} {
		if err := l.Start(discovery); err != nil {
			return err
		}
	}
	for _, l := range []*Listener{t.userUnicast, t.userMulticast} {
		if err := l.Start(user); err != nil {
			return err
		}
	}
	return nil
}

// Send transmits one datagram to the given locators.
func (t *Transport) Send(data []byte, locators []rtps.Locator) error {
	return t.sender.Send(data, locators)
}

// DiscoveryUnicastLocators returns the advertised metatraffic unicast
// locators, one per usable local IPv4 address.
func (t *Transport) DiscoveryUnicastLocators() []rtps.Locator {
	return locatorsFor(localIPv4Addresses(), t.discoveryUnicast.Port())
}

// UserUnicastLocators returns the advertised user-traffic unicast locators.
func (t *Transport) UserUnicastLocators() []rtps.Locator {
	return locatorsFor(localIPv4Addresses(), t.userUnicast.Port())
}

// DiscoveryMulticastLocator returns the metatraffic multicast locator.
func (t *Transport) DiscoveryMulticastLocator() rtps.Locator {
	return rtps.LocatorFromUDPAddr(&net.UDPAddr{
		IP:   t.cfg.MulticastGroup,
		Port: int(DiscoveryMulticastPort(t.cfg.DomainID)),
	})
}

// UserMulticastLocator returns the user-traffic multicast locator.
func (t *Transport) UserMulticastLocator() rtps.Locator {
	return rtps.LocatorFromUDPAddr(&net.UDPAddr{
		IP:   t.cfg.MulticastGroup,
		Port: int(UserMulticastPort(t.cfg.DomainID)),
	})
}

// Close shuts every socket. Safe to call on a partially opened transport.
func (t *Transport) Close() error {
	var errs []error
	for _, l := range []*Listener{t.discoveryUnicast, t.userUnicast, t.discoveryMulticast, t.userMulticast} {
		if l != nil {
			errs = append(errs, l.Close())
		}
	}
	if t.sender != nil {
		errs = append(errs, t.sender.Close())
	}
	return errors.Join(errs...)
}

func locatorsFor(ips []net.IP, port uint16) []rtps.Locator {
	locs := make([]rtps.Locator, 0, len(ips))
	for _, ip := range ips {
		locs = append(locs, rtps.LocatorFromUDPAddr(&net.UDPAddr{IP: ip, Port: int(port)}))
	}
	return locs
}

// localIPv4Addresses lists the host's usable IPv4 addresses, preferring
// routable ones. Loopback is the fallback so a host with no network still
// talks to itself.
func localIPv4Addresses() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return []net.IP{net.IPv4(127, 0, 0, 1)}
	}
	var ips []net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
			continue
		}
		ips = append(ips, ip4)
	}
	if len(ips) == 0 {
		ips = []net.IP{net.IPv4(127, 0, 0, 1)}
	}
	return ips
}
