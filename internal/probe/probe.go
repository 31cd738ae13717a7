// Package probe measures peer reachability with single-shot ICMP echo
// probes and a TCP connect fallback.
package probe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"net"
	"net/netip"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// TCPFallbackTimeout bounds the fallback connect attempt. The fallback is
// a reachability check, not a latency measurement, so the timeout is fixed
// and independent of any configured latency ceiling.
const TCPFallbackTimeout = time.Second

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58

	// payload carries an 8-byte send timestamp plus an 8-byte nonce used
	// to match replies; with datagram sockets the kernel rewrites echo
	// identifiers, so the ID field cannot be trusted for matching.
	payloadLen  = 16
	recvBufSize = 1500
)

var (
	ipv4Proto = map[string]string{"ip": "ip4:icmp", "udp": "udp4"}
	ipv6Proto = map[string]string{"ip": "ip6:ipv6-icmp", "udp": "udp6"}
)

// Method records how a peer's reachability was established.
type Method string

const (
	MethodICMP        Method = "icmp"
	MethodTCPFallback Method = "tcp_fallback"
)

// Pinger issues probes over one socket mode. "udp" uses unprivileged
// datagram ICMP (on Linux net.ipv4.ping_group_range must cover the
// process group), "ip" uses raw sockets and needs elevated privileges.
type Pinger struct {
	network string
	log     *zap.Logger
}

// NewPinger validates the socket mode and returns a ready Pinger.
func NewPinger(network string, log *zap.Logger) (*Pinger, error) {
	if network != "udp" && network != "ip" {
		return nil, fmt.Errorf("probe network must be \"udp\" or \"ip\", got %q", network)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pinger{network: network, log: log}, nil
}

// Latency sends one echo request to host and reports the round-trip time.
// ok is false when no reply arrived inside timeout; peers behind
// ICMP-filtering middleboxes land here and it is not an error. err is
// reserved for probes that could not target the host at all (non-literal
// host, bad timeout), which callers treat as a separate drop class.
func (p *Pinger) Latency(ctx context.Context, host string, timeout time.Duration) (time.Duration, bool, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return 0, false, fmt.Errorf("host %q is not an IP literal", host)
	}
	if timeout <= 0 {
		return 0, false, fmt.Errorf("probe timeout must be positive, got %s", timeout)
	}
	addr = addr.Unmap()

	proto := ipv4Proto[p.network]
	listen := "0.0.0.0"
	replyProto := protocolICMP
	var echoType icmp.Type = ipv4.ICMPTypeEcho
	if addr.Is6() {
		proto = ipv6Proto[p.network]
		listen = "::"
		replyProto = protocolIPv6ICMP
		echoType = ipv6.ICMPTypeEchoRequest
	}

	conn, err := icmp.ListenPacket(proto, listen)
	if err != nil {
		// No socket means no ICMP signal from this environment (usually
		// missing privileges); the caller falls back to TCP.
		p.log.Debug("icmp socket unavailable", zap.String("proto", proto), zap.Error(err))
		return 0, false, nil
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	ip := net.IP(addr.AsSlice())
	var dst net.Addr = &net.IPAddr{IP: ip, Zone: addr.Zone()}
	if p.network == "udp" {
		dst = &net.UDPAddr{IP: ip, Zone: addr.Zone()}
	}

	payload := make([]byte, payloadLen)
	binary.BigEndian.PutUint64(payload[:8], uint64(time.Now().UnixNano()))
	if _, err := rand.Read(payload[8:]); err != nil {
		return 0, false, fmt.Errorf("probe nonce: %w", err)
	}

	msg := icmp.Message{
		Type: echoType,
		Body: &icmp.Echo{ID: mrand.Intn(0xffff), Seq: 1, Data: payload},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, false, fmt.Errorf("marshal echo request: %w", err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		p.log.Debug("icmp send failed", zap.String("host", host), zap.Error(err))
		return 0, false, nil
	}

	deadline := start.Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, recvBufSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			p.log.Debug("icmp: no reply", zap.String("host", host), zap.Error(err))
			return 0, false, nil
		}
		rtt, matched := p.matchReply(buf[:n], replyProto, payload)
		if !matched {
			continue
		}
		return rtt, true, nil
	}
}

// matchReply decodes one inbound packet and, when it is our echo reply,
// derives the RTT from the embedded send timestamp.
func (p *Pinger) matchReply(b []byte, replyProto int, payload []byte) (time.Duration, bool) {
	if p.network == "ip" && replyProto == protocolICMP {
		b = ipv4Payload(b)
	}
	m, err := icmp.ParseMessage(replyProto, b)
	if err != nil {
		return 0, false
	}
	if m.Type != ipv4.ICMPTypeEchoReply && m.Type != ipv6.ICMPTypeEchoReply {
		return 0, false
	}
	echo, ok := m.Body.(*icmp.Echo)
	if !ok || len(echo.Data) < payloadLen {
		return 0, false
	}
	if !bytes.Equal(echo.Data[8:payloadLen], payload[8:]) {
		return 0, false
	}
	sent := time.Unix(0, int64(binary.BigEndian.Uint64(echo.Data[:8])))
	return time.Since(sent), true
}

// TCPReachable reports whether a plain TCP connect to host:port completes
// within TCPFallbackTimeout. It confirms reachability only; no usable
// latency comes out of it. Connect failures mean "unreachable", never an
// error.
func (p *Pinger) TCPReachable(ctx context.Context, host string, port uint16) bool {
	d := net.Dialer{Timeout: TCPFallbackTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		p.log.Debug("tcp fallback: connect failed",
			zap.String("host", host), zap.Uint16("port", port), zap.Error(err))
		return false
	}
	_ = conn.Close()
	return true
}

// ipv4Payload strips the IPv4 header raw sockets prepend to inbound
// packets. Echo replies start with type byte 0, so an already-stripped
// packet passes through untouched.
func ipv4Payload(b []byte) []byte {
	if len(b) < ipv4.HeaderLen {
		return b
	}
	hdrlen := int(b[0]&0x0f) << 2
	if hdrlen > len(b) {
		return b
	}
	return b[hdrlen:]
}
