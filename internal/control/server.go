package control

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/rjboer/godemod/internal/logging"
)

// Server is the control-plane reader: one goroutine blocking on the
// status/multicast socket's recvfrom, handing every CMD datagram to a
// Dispatcher. Grounded on a ka9q-radio-derived client's own socket setup
// (its setupControlSocket): SO_REUSEADDR/SO_REUSEPORT so multiple daemon
// instances or a daemon-plus-sniffer can share the multicast group, and an
// explicit ipv4.PacketConn.JoinGroup rather than relying on the OS default.
type Server struct {
	conn       *net.UDPConn
	packetConn *ipv4.PacketConn
	dispatcher *Dispatcher
	log        logging.Logger
}

// ListenConfig controls how the status/control socket is bound.
type ListenConfig struct {
	// Addr is the multicast group and port to bind, e.g. "239.1.2.3:5006".
	Addr string
	// Iface, if non-empty, restricts multicast group membership to a
	// specific interface. Empty means "let the OS choose".
	Iface string
}

func controlFn(fd uintptr) {
	// SO_REUSEADDR/SO_REUSEPORT let a second process (or a restarted
	// daemon before the old socket's TIME_WAIT expires) bind the same
	// multicast group and port, matching ka9q-radio's own listener
	// socket options.
	_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// NewServer resolves cfg.Addr, joins its multicast group, and returns a
// Server ready to Run.
func NewServer(cfg ListenConfig, dispatcher *Dispatcher, log logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.Default()
	}
	log = logging.Subsystem(log, "control.server")

	udpAddr, err := net.ResolveUDPAddr("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("control: resolve %q: %w", cfg.Addr, err)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(controlFn)
		},
	}

	packetConn, err := lc.ListenPacket(context.Background(), "udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("control: listen %q: %w", cfg.Addr, err)
	}
	udpConn, ok := packetConn.(*net.UDPConn)
	if !ok {
		packetConn.Close()
		return nil, fmt.Errorf("control: unexpected packet conn type %T", packetConn)
	}

	p := ipv4.NewPacketConn(udpConn)
	if udpAddr.IP.IsMulticast() {
		var iface *net.Interface
		if cfg.Iface != "" {
			iface, err = net.InterfaceByName(cfg.Iface)
			if err != nil {
				udpConn.Close()
				return nil, fmt.Errorf("control: interface %q: %w", cfg.Iface, err)
			}
		}
		if err := p.JoinGroup(iface, udpAddr); err != nil {
			udpConn.Close()
			return nil, fmt.Errorf("control: join multicast group %s: %w", udpAddr, err)
		}
	}

	return &Server{conn: udpConn, packetConn: p, dispatcher: dispatcher, log: log}, nil
}

// Run blocks reading CMD datagrams and dispatching them until ctx is
// cancelled or a read fails permanently.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("control: read: %w", err)
			}
		}
		if n < 1 {
			continue
		}
		if buf[0] != PacketCMD {
			continue
		}
		if err := s.dispatcher.Handle(buf[1:n]); err != nil {
			s.log.Warn("dispatch failed", logging.Field{Key: "error", Value: err})
		}
	}
}

// SendTo writes a raw packet (built by Builder.Bytes) to addr on this
// socket — used for the immediate STATUS reply requires.
func (s *Server) SendTo(packet []byte, addr *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(packet, addr)
	return err
}

// WriteToGroup broadcasts a STATUS packet to the socket's own multicast
// group, the normal case for staggered/periodic status.
func (s *Server) WriteToGroup(packet []byte, group *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(packet, group)
	return err
}

// Close releases the socket.
func (s *Server) Close() error {
	return s.conn.Close()
}
