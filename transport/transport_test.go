package transport

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dataflume/flumedds/rtps"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWellKnownPorts(t *testing.T) {
	tests := []struct {
		name string
		got  uint16
		want uint16
	}{
		{"spdp multicast domain 0", DiscoveryMulticastPort(0), 7400},
		{"spdp unicast domain 0 participant 0", DiscoveryUnicastPort(0, 0), 7410},
		{"user multicast domain 0", UserMulticastPort(0), 7401},
		{"user unicast domain 0 participant 0", UserUnicastPort(0, 0), 7411},
		{"spdp unicast domain 1 participant 2", DiscoveryUnicastPort(1, 2), 7664},
		{"user unicast domain 2 participant 1", UserUnicastPort(2, 1), 7913},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestUnicastRoundTrip(t *testing.T) {
	l, err := NewUnicastListener(0, testLogger())
	if err != nil {
		t.Skipf("cannot bind UDP socket: %v", err)
	}
	defer l.Close()

	localPort := uint16(l.conn.LocalAddr().(*net.UDPAddr).Port)
	got := make(chan []byte, 1)
	if err := l.Start(func(data []byte, src *net.UDPAddr) {
		b := make([]byte, len(data))
		copy(b, data)
		select {
		case got <- b:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s, err := NewSender(1, testLogger())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer s.Close()

	payload := []byte("RTPS\x02\x04\x01\x20")
	dest := rtps.LocatorFromUDPAddr(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(localPort)})
	if err := s.Send(payload, []rtps.Locator{dest}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-got:
		if !bytes.Equal(data, payload) {
			t.Fatalf("received %x, want %x", data, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not received")
	}
}

func TestSenderRejectsOversized(t *testing.T) {
	s, err := NewSender(1, testLogger())
	if err != nil {
		t.Skipf("cannot open send socket: %v", err)
	}
	defer s.Close()
	if err := s.Send(make([]byte, maxDatagram+1), nil); err == nil {
		t.Fatal("want error for oversized datagram")
	}
}

func TestParticipantSlotProbing(t *testing.T) {
	first, err := NewUnicastListener(DiscoveryUnicastPort(200, 0), testLogger())
	if err != nil {
		t.Skipf("cannot bind probe port: %v", err)
	}
	defer first.Close()

	// Slot 0 of this domain is now occupied, so the next bind must fail
	// and a prober would move to slot 1.
	if _, err := NewUnicastListener(DiscoveryUnicastPort(200, 0), testLogger()); err == nil {
		t.Fatal("second bind of the same port should fail")
	}
	second, err := NewUnicastListener(DiscoveryUnicastPort(200, 1), testLogger())
	if err != nil {
		t.Fatalf("slot 1 should be free: %v", err)
	}
	second.Close()
}
