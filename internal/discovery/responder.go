// Package discovery answers SSDP-style search queries so a caller can locate
// the command channel of the right host instance among several running ones.
//
// The responder joins a fixed multicast group on a well-known port. Because
// that group is shared with unrelated discovery traffic, only queries whose
// request line, MAN directive, and search target match exactly are answered;
// everything else is logged and dropped without a reply.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/zapletal-martin/fusion-idea-addin/internal/constants"
)

// Config controls where the responder listens.
type Config struct {
	// Group is the multicast group to join. Empty skips the join, leaving a
	// plain UDP socket (used by tests).
	Group string

	// Port is the UDP port to bind. 0 lets the OS choose (used by tests);
	// production uses the well-known discovery port.
	Port int

	// Interface names the network interface for the multicast join. Empty
	// picks the loopback interface.
	Interface string

	// SearchTarget is the ST value this responder answers for.
	SearchTarget string
}

// DefaultConfig returns the production discovery configuration.
func DefaultConfig() Config {
	return Config{
		Group:        constants.MulticastGroup,
		Port:         constants.DiscoveryPort,
		SearchTarget: constants.SearchTarget,
	}
}

// Responder listens for discovery queries and answers with this process's id
// and the command channel's port. Two states: listening after Start, stopped
// after Stop; a malformed datagram never terminates it.
type Responder struct {
	cfg         Config
	commandPort int
	logger      zerolog.Logger

	conn net.PacketConn
}

// NewResponder creates a responder advertising the given command-channel port.
func NewResponder(cfg Config, commandPort int, logger zerolog.Logger) *Responder {
	if cfg.SearchTarget == "" {
		cfg.SearchTarget = constants.SearchTarget
	}
	return &Responder{
		cfg:         cfg,
		commandPort: commandPort,
		logger:      logger.With().Str("component", "discovery").Logger(),
	}
}

// Start binds the socket, joins the multicast group, and begins answering in
// a background goroutine.
func (r *Responder) Start() error {
	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", r.cfg.Port))
	if err != nil {
		return fmt.Errorf("bind discovery socket: %w", err)
	}
	r.conn = conn

	if r.cfg.Group != "" {
		group := net.ParseIP(r.cfg.Group)
		if group == nil {
			_ = conn.Close()
			return fmt.Errorf("invalid multicast group %q", r.cfg.Group)
		}
		ifi, err := joinInterface(r.cfg.Interface)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("find join interface: %w", err)
		}
		pc := ipv4.NewPacketConn(conn)
		if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("join multicast group %s: %w", r.cfg.Group, err)
		}
	}

	r.logger.Debug().
		Str("group", r.cfg.Group).
		Int("port", r.Port()).
		Int("command_port", r.commandPort).
		Msg("Starting discovery responder")

	go r.serve()
	return nil
}

// Port returns the bound UDP port.
func (r *Responder) Port() int {
	if r.conn == nil {
		return 0
	}
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Stop closes the socket, moving the responder to its terminal state.
func (r *Responder) Stop() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *Responder) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				r.logger.Debug().Msg("Discovery responder stopped")
				return
			}
			r.logger.Error().Err(err).Msg("Error reading discovery datagram")
			continue
		}
		r.handle(bytes.TrimSpace(buf[:n]), addr)
	}
}

// handle answers one datagram. Anything that is not an exact-match query for
// our search target gets no reply, so this responder stays invisible to
// unrelated SSDP traffic on the shared group.
func (r *Responder) handle(data []byte, addr net.Addr) {
	r.logger.Debug().Str("from", addr.String()).Msg("Got a discovery datagram")

	line, headers, err := parseQuery(data)
	if err != nil {
		r.logger.Error().Err(err).Bytes("datagram", data).Msg("An error occurred while parsing a discovery query")
		return
	}

	if line != constants.DiscoveryRequestLine ||
		headers.Get("MAN") != constants.DiscoveryDirective ||
		headers.Get("ST") != r.cfg.SearchTarget {
		r.logger.Warn().Bytes("datagram", data).Msg("Got an unexpected discovery query")
		return
	}

	response := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nST: %s\r\nUSN: pid:%d\r\nLocation: 127.0.0.1:%d\r\n\r\n",
		r.cfg.SearchTarget, os.Getpid(), r.commandPort,
	)

	r.logger.Debug().Str("to", addr.String()).Msg("Responding to discovery query")
	if _, err := r.conn.WriteTo([]byte(response), addr); err != nil {
		r.logger.Error().Err(err).Str("to", addr.String()).Msg("Error sending discovery response")
	}
}

// parseQuery splits a datagram into its request line and MIME-style headers.
func parseQuery(data []byte) (string, textproto.MIMEHeader, error) {
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))

	line, err := reader.ReadLine()
	if err != nil {
		return "", nil, fmt.Errorf("request line: %w", err)
	}

	headers, err := reader.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("headers: %w", err)
	}
	return line, headers, nil
}

// reuseAddr lets several instances share the well-known discovery port, the
// whole point of multicast discovery.
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// joinInterface resolves the interface for the multicast join. The default is
// the loopback interface; queries and replies never leave the machine.
func joinInterface(name string) (*net.Interface, error) {
	if name != "" {
		return net.InterfaceByName(name)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback != 0 {
			return &ifaces[i], nil
		}
	}
	return nil, errors.New("no loopback interface found")
}
