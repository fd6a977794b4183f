package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/ipv4"

	"github.com/sous-kitchen/edge-core/internal/infrastructure/config"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
)

// mDNS group address per RFC 6762.
var mdnsGroup = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

const readBufferSize = 1500

// Responder answers mDNS queries for the edge box's reserved names.
type Responder struct {
	logger   *logging.Logger
	hostname string // FQDN form, trailing dot
	service  string // FQDN form, trailing dot
	port     int    // port advertised in the SRV record
	ttl      uint32
	addr     net.IP // advertised IPv4 address

	conn  *net.UDPConn
	pconn *ipv4.PacketConn
}

// NewResponder builds a responder from configuration. srvPort is the port
// advertised in SRV answers, normally the API port.
func NewResponder(cfg config.DiscoveryConfig, srvPort int, logger *logging.Logger) (*Responder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	addr, err := advertisedIPv4()
	if err != nil {
		return nil, err
	}

	ttl := cfg.RecordTTL
	if ttl <= 0 {
		ttl = 300
	}

	return &Responder{
		logger:   logger.With("component", "discovery"),
		hostname: dns.Fqdn(cfg.Hostname),
		service:  dns.Fqdn(cfg.Service),
		port:     srvPort,
		ttl:      uint32(ttl),
		addr:     addr,
	}, nil
}

// Start binds the multicast socket and serves queries until the context is
// cancelled. The bind is attempted once; if another responder already owns
// the port the error is returned to the caller rather than retried.
func (r *Responder) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: mdnsGroup.Port})
	if err != nil {
		return fmt.Errorf("discovery: binding mDNS socket: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	joined := 0
	for _, iface := range multicastInterfaces() {
		if err := pconn.JoinGroup(&iface, mdnsGroup); err != nil {
			r.logger.Debug("mDNS group join failed", "interface", iface.Name, "error", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		conn.Close()
		return fmt.Errorf("discovery: no interface joined the mDNS group")
	}
	//nolint:errcheck // Loopback suppression is best effort
	pconn.SetMulticastLoopback(false)

	r.conn = conn
	r.pconn = pconn

	r.logger.Info("mDNS responder started",
		"hostname", strings.TrimSuffix(r.hostname, "."),
		"service", strings.TrimSuffix(r.service, "."),
		"address", r.addr.String(),
		"port", r.port,
		"interfaces", joined,
	)

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	r.serve(ctx)
	return nil
}

// Close releases the multicast socket. Safe to call more than once.
func (r *Responder) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}

// serve reads queries off the socket until it is closed.
func (r *Responder) serve(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	for {
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Debug("mDNS read error", "error", err)
			continue
		}

		var query dns.Msg
		if err := query.Unpack(buf[:n]); err != nil {
			// Malformed packets are common on busy networks; drop quietly.
			continue
		}

		reply := r.handleQuery(&query)
		if reply == nil {
			continue
		}

		packed, err := reply.Pack()
		if err != nil {
			r.logger.Debug("mDNS reply pack failed", "error", err)
			continue
		}

		// Queries from port 5353 get a multicast answer; one-shot resolvers
		// on an ephemeral port are answered directly.
		dst := src
		if src.Port == mdnsGroup.Port {
			dst = mdnsGroup
		}
		if _, err := r.conn.WriteToUDP(packed, dst); err != nil {
			r.logger.Debug("mDNS reply write failed", "error", err)
		}
	}
}

// handleQuery classifies a DNS message and builds a reply, or nil when the
// message should be ignored. Only the two reserved names are ever answered;
// both queries get the same A + SRV pair so one lookup suffices.
func (r *Responder) handleQuery(query *dns.Msg) *dns.Msg {
	if query.Response || query.Opcode != dns.OpcodeQuery {
		return nil
	}

	matched := false
	for _, q := range query.Question {
		if strings.EqualFold(q.Name, r.hostname) || strings.EqualFold(q.Name, r.service) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}

	reply := new(dns.Msg)
	reply.SetReply(query)
	reply.Authoritative = true
	reply.Compress = true
	reply.Answer = []dns.RR{
		&dns.A{
			Hdr: dns.RR_Header{
				Name:   r.hostname,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    r.ttl,
			},
			A: r.addr,
		},
		&dns.SRV{
			Hdr: dns.RR_Header{
				Name:   r.service,
				Rrtype: dns.TypeSRV,
				Class:  dns.ClassINET,
				Ttl:    r.ttl,
			},
			Port:   uint16(r.port),
			Target: r.hostname,
		},
	}
	return reply
}

// advertisedIPv4 returns the first non-loopback, non-link-local IPv4
// address on an up interface.
func advertisedIPv4() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("discovery: listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			return ip, nil
		}
	}
	return nil, ErrNoAddress
}

// multicastInterfaces returns the up, multicast-capable interfaces.
func multicastInterfaces() []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	eligible := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		eligible = append(eligible, iface)
	}
	return eligible
}
