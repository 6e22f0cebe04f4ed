package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoOnce answers the first datagram it receives.
func echoOnce(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 64)
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		conn.WriteToUDP(buf[:n], from)
	}()
	return conn
}

// freePort returns a loopback port with nothing listening on it.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func TestProbeFindsListener(t *testing.T) {
	srv := echoOnce(t)
	port := srv.LocalAddr().(*net.UDPAddr).Port

	start := time.Now()
	assert.True(t, Probe(context.Background(), "127.0.0.1", port, DefaultTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeWithoutListener(t *testing.T) {
	port := freePort(t)

	start := time.Now()
	assert.False(t, Probe(context.Background(), "127.0.0.1", port, 300*time.Millisecond))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestProbeSilentListenerTimesOut(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	ok := Probe(context.Background(), "127.0.0.1", conn.LocalAddr().(*net.UDPAddr).Port, 200*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestProbeInvalidAddress(t *testing.T) {
	assert.False(t, Probe(context.Background(), "not an ip", 1, 100*time.Millisecond))
}

func TestProbeCancelled(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	assert.False(t, Probe(ctx, "127.0.0.1", conn.LocalAddr().(*net.UDPAddr).Port, 5*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
}
