// Package transport provides the UDP plumbing under the RTPS engine:
// well-known port mapping, unicast listeners, multicast group membership,
// and a shared send socket.
package transport

import "net"

// Port mapping parameters from the RTPS well-known port scheme.
const (
	portBase            = 7400
	domainIDGain        = 250
	participantIDGain   = 2
	offsetSPDPMulticast = 0
	offsetSPDPUnicast   = 10
	offsetUserMulticast = 1
	offsetUserUnicast   = 11
)

// DefaultMulticastGroup is the RTPS discovery multicast address.
var DefaultMulticastGroup = net.IPv4(239, 255, 0, 1)

// DiscoveryMulticastPort returns the SPDP multicast port for a domain.
func DiscoveryMulticastPort(domainID uint16) uint16 {
	return uint16(portBase + domainIDGain*int(domainID) + offsetSPDPMulticast)
}

// DiscoveryUnicastPort returns the SPDP/SEDP unicast port for one
// participant in a domain.
func DiscoveryUnicastPort(domainID uint16, participantID int) uint16 {
	return uint16(portBase + domainIDGain*int(domainID) + offsetSPDPUnicast + participantIDGain*participantID)
}

// UserMulticastPort returns the user-traffic multicast port for a domain.
func UserMulticastPort(domainID uint16) uint16 {
	return uint16(portBase + domainIDGain*int(domainID) + offsetUserMulticast)
}

// UserUnicastPort returns the user-traffic unicast port for one
// participant in a domain.
func UserUnicastPort(domainID uint16, participantID int) uint16 {
	return uint16(portBase + domainIDGain*int(domainID) + offsetUserUnicast + participantIDGain*participantID)
}
