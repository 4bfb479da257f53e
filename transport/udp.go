package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/dataflume/flumedds/rtps"
)

// maxDatagram bounds a single RTPS message. UDP cannot carry more.
const maxDatagram = 65507

// Handler consumes one received datagram. The slice is only valid for the
// duration of the call.
type Handler func(data []byte, src *net.UDPAddr)

// Listener reads datagrams from one UDP socket and hands them to a Handler
// on a dedicated goroutine.
type Listener struct {
	conn      *net.UDPConn
	packet    *ipv4.PacketConn
	logger    *slog.Logger
	port      uint16
	multicast bool

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewUnicastListener binds a unicast UDP socket on the given port. A port
// already in use is reported as an error so the caller can probe for a
// free participant slot.
func NewUnicastListener(port uint16, logger *slog.Logger) (*Listener, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("binding unicast port %d: %w", port, err)
	}
	return &Listener{conn: conn, logger: logger, port: port}, nil
}

// NewMulticastListener binds a shared-port socket and joins the group on
// every multicast-capable interface. Interfaces that refuse the join are
// logged and skipped.
func NewMulticastListener(group net.IP, port uint16, logger *slog.Logger) (*Listener, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("binding multicast port %d: %w", port, err)
	}
	pc := ipv4.NewPacketConn(conn)
	ifaces, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	joined := 0
	for i := range ifaces {
		ifc := &ifaces[i]
		if ifc.Flags&net.FlagMulticast == 0 || ifc.Flags&net.FlagUp == 0 {
			continue
		}
		if err := pc.JoinGroup(ifc, &net.UDPAddr{IP: group}); err != nil {
			logger.Debug("multicast join failed",
				"interface", ifc.Name,
				"group", group.String(),
				"error", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		conn.Close()
		return nil, fmt.Errorf("joining group %s: no usable multicast interface", group)
	}
	logger.Debug("joined multicast group",
		"group", group.String(),
		"port", port,
		"interfaces", joined)
	return &Listener{conn: conn, packet: pc, logger: logger, port: port, multicast: true}, nil
}

// Port returns the bound local port.
func (l *Listener) Port() uint16 {
	return l.port
}

// Start launches the read loop. It may be called once.
func (l *Listener) Start(h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.New("listener already started")
	}
	if l.closed {
		return errors.New("listener closed")
	}
	l.started = true
	l.wg.Add(1)
	go l.readLoop(h)
	return nil
}

func (l *Listener) readLoop(h Handler) {
	defer l.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Warn("udp read failed", "port", l.port, "error", err)
			}
			return
		}
		h(buf[:n], src)
	}
}

// Close shuts the socket and waits for the read loop to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	err := l.conn.Close()
	l.wg.Wait()
	return err
}

// Sender owns one outbound UDP socket shared by all writers of a
// participant.
type Sender struct {
	conn   *net.UDPConn
	packet *ipv4.PacketConn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSender opens the outbound socket. Multicast sends use a TTL of ttl
// and have local loopback enabled so same-host participants hear them.
func NewSender(ttl int, logger *slog.Logger) (*Sender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("opening send socket: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(ttl); err != nil {
		logger.Debug("setting multicast ttl failed", "error", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		logger.Debug("enabling multicast loopback failed", "error", err)
	}
	return &Sender{conn: conn, packet: pc, logger: logger}, nil
}

// Send transmits one datagram to every locator. Oversized datagrams are
// rejected; per-locator send failures are logged and do not stop the rest.
func (s *Sender) Send(data []byte, locators []rtps.Locator) error {
	if len(data) > maxDatagram {
		return fmt.Errorf("datagram of %d bytes exceeds the UDP limit", len(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	for _, loc := range locators {
		addr := loc.UDPAddr()
		if addr == nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(data, addr); err != nil {
			s.logger.Warn("udp send failed", "dest", addr.String(), "error", err)
		}
	}
	return nil
}

// Close shuts the send socket.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
