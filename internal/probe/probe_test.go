package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPingerNetwork(t *testing.T) {
	t.Parallel()
	for _, network := range []string{"udp", "ip"} {
		p, err := NewPinger(network, zap.NewNop())
		require.NoError(t, err, "network=%q", network)
		require.NotNil(t, p)
	}
	for _, network := range []string{"", "tcp", "icmp", "raw"} {
		_, err := NewPinger(network, nil)
		assert.Error(t, err, "network=%q", network)
	}
}

func TestLatencyRejectsBadHost(t *testing.T) {
	t.Parallel()
	p, err := NewPinger("udp", zap.NewNop())
	require.NoError(t, err)
	for _, host := range []string{"", "localhost", "node.example.com", "1.2.3"} {
		_, ok, err := p.Latency(context.Background(), host, time.Second)
		assert.Error(t, err, "host=%q", host)
		assert.False(t, ok, "host=%q", host)
	}
}

func TestLatencyRejectsBadTimeout(t *testing.T) {
	t.Parallel()
	p, err := NewPinger("udp", zap.NewNop())
	require.NoError(t, err)
	_, ok, err := p.Latency(context.Background(), "127.0.0.1", 0)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestTCPReachableOpenPort(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	p, err := NewPinger("udp", zap.NewNop())
	require.NoError(t, err)
	assert.True(t, p.TCPReachable(context.Background(), "127.0.0.1", port))
}

func TestTCPReachableClosedPort(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	p, err := NewPinger("udp", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.TCPReachable(context.Background(), "127.0.0.1", port))
}

func TestTCPReachableCancelledContext(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := NewPinger("udp", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.TCPReachable(ctx, "127.0.0.1", port))
}

func TestIPv4PayloadStripsHeader(t *testing.T) {
	t.Parallel()
	// 20-byte header (version 4, IHL 5) followed by an echo reply.
	packet := make([]byte, 24)
	packet[0] = 0x45
	packet[20] = 0 // ICMP type: echo reply
	assert.Equal(t, packet[20:], ipv4Payload(packet))

	// already-stripped echo reply passes through
	reply := []byte{0, 0, 0xaa, 0xbb}
	assert.Equal(t, reply, ipv4Payload(reply))
}
