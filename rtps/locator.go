package rtps

import (
	"fmt"
	"net"
)

// LocatorKind discriminates locator address families.
type LocatorKind int32

const (
	LocatorKindInvalid  LocatorKind = -1
	LocatorKindReserved LocatorKind = 0
	LocatorKindUDPv4    LocatorKind = 1
	LocatorKindUDPv6    LocatorKind = 2
)

// Locator is an RTPS transport address: kind, port and a 16-byte address.
// UDPv4 addresses occupy the last four bytes.
type Locator struct {
	Kind    LocatorKind
	Port    uint32
	Address [16]byte
}

var LocatorInvalid = Locator{Kind: LocatorKindInvalid}

// LocatorFromUDPAddr converts a net.UDPAddr.
func LocatorFromUDPAddr(a *net.UDPAddr) Locator {
	var loc Locator
	loc.Port = uint32(a.Port)
	if ip4 := a.IP.To4(); ip4 != nil {
		loc.Kind = LocatorKindUDPv4
		copy(loc.Address[12:], ip4)
		return loc
	}
	loc.Kind = LocatorKindUDPv6
	copy(loc.Address[:], a.IP.To16())
	return loc
}

// UDPAddr converts back to a net.UDPAddr, or nil for non-UDP locators.
func (l Locator) UDPAddr() *net.UDPAddr {
	switch l.Kind {
	case LocatorKindUDPv4:
		return &net.UDPAddr{IP: net.IP(l.Address[12:16]), Port: int(l.Port)}
	case LocatorKindUDPv6:
		ip := make(net.IP, 16)
		copy(ip, l.Address[:])
		return &net.UDPAddr{IP: ip, Port: int(l.Port)}
	}
	return nil
}

// IsMulticast reports whether the locator addresses a multicast group.
func (l Locator) IsMulticast() bool {
	a := l.UDPAddr()
	return a != nil && a.IP.IsMulticast()
}

func (l Locator) String() string {
	if a := l.UDPAddr(); a != nil {
		return a.String()
	}
	return fmt.Sprintf("locator(kind=%d)", l.Kind)
}
