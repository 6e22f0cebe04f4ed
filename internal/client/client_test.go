package client

import (
	"context"
	"errors"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/EnzoRigon/udp-client-server/internal/metrics"
	"github.com/EnzoRigon/udp-client-server/internal/relay"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServices() *services.Services {
	conf := &config.Config{}
	conf.SetDefaults()
	conf.Relay.IP = "127.0.0.1"
	conf.Relay.Port = 0
	conf.Client.BindAddr = "127.0.0.1:0"
	return services.NewServices(conf)
}

func fixedProvider() metrics.Provider {
	return metrics.ProviderFunc(func(ctx context.Context) (metrics.Snapshot, error) {
		return metrics.Snapshot{CPUUsage: 12.5, Processes: 3, ContextSwitches: 77}, nil
	})
}

type shown struct {
	mux   sync.Mutex
	texts []string
}

func (s *shown) Show(from, text string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.texts = append(s.texts, text)
}

func (s *shown) all() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]string(nil), s.texts...)
}

type timerRequest struct {
	wait time.Duration
	fire chan time.Time
}

func fakeTimer(requests chan timerRequest) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		req := timerRequest{wait: d, fire: make(chan time.Time, 1)}
		requests <- req
		return req.fire
	}
}

// runClient starts c and stops it when the test ends.
func runClient(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-c.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("client exited early: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("client did not bind")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("client did not stop")
		}
	})
}

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		text string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{" 7\n", 7, true},
		{"+3", 3, true},
		{"0", 0, false},
		{"-5", 0, false},
		{"1.5", 0, false},
		{"hello", 0, false},
		{strconv.Itoa(MaxIntervalSeconds), MaxIntervalSeconds, true},
		{strconv.Itoa(MaxIntervalSeconds + 1), 0, false},
		{"10000000000", 0, false},
		{"99999999999999999999", 0, false},
		{"", 0, false},
		{"('127.0.0.1', 5000) Sent: \n 3", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseInterval(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterval(t *testing.T) {
	i := NewInterval(0)
	assert.Equal(t, 5, i.Seconds())

	assert.True(t, i.Set(9))
	assert.False(t, i.Set(9))
	assert.False(t, i.Set(0))
	assert.False(t, i.Set(-1))
	assert.Equal(t, 9, i.Seconds())

	assert.False(t, i.Set(MaxIntervalSeconds+1))
	assert.Equal(t, 9, i.Seconds())
	assert.Equal(t, 9*time.Second, i.Duration(time.Second))
}

func TestIntervalDurationNeverGoesNegative(t *testing.T) {
	i := NewInterval(MaxIntervalSeconds + 10)
	assert.Equal(t, MaxIntervalSeconds, i.Seconds())
	assert.Greater(t, i.Duration(time.Second), time.Duration(0))

	// a larger unit saturates rather than wrapping
	assert.Equal(t, time.Duration(math.MaxInt64), i.Duration(time.Hour))
}

func TestOversizedIntervalIsDisplayed(t *testing.T) {
	disp := &shown{}
	c := NewClient(testServices(), &net.UDPAddr{}, NewInterval(5), fixedProvider(), WithDisplay(disp))

	c.handleInbound(context.Background(), "10000000000", "peer")

	assert.Equal(t, 5, c.Interval().Seconds())
	assert.Equal(t, []string{metrics.UnknownMetric}, disp.all())
}

func TestControlAndDisplayRouting(t *testing.T) {
	disp := &shown{}
	c := NewClient(testServices(), &net.UDPAddr{}, NewInterval(5), fixedProvider(), WithDisplay(disp))

	c.handleInbound(context.Background(), "42", "peer")
	assert.Equal(t, 42, c.Interval().Seconds())

	c.handleInbound(context.Background(), "hello", "peer")
	assert.Equal(t, 42, c.Interval().Seconds())

	c.handleInbound(context.Background(), "CPU Usage: 1.00%, Processes: 1, Context Switches: 1", "peer")

	texts := disp.all()
	require.Len(t, texts, 3)
	assert.Equal(t, "Interval set to 42 seconds", texts[0])
	assert.Equal(t, metrics.UnknownMetric, texts[1])
	assert.True(t, strings.HasPrefix(texts[2], "Metric received: CPU Usage"))
}

func TestIntervalChangeAppliesNextCycle(t *testing.T) {
	server := listen(t)
	requests := make(chan timerRequest, 4)

	c := NewClient(testServices(), server.LocalAddr().(*net.UDPAddr), NewInterval(5), fixedProvider(),
		WithTimer(fakeTimer(requests)),
		WithDisplay(&shown{}),
	)
	runClient(t, c)

	first := <-requests
	assert.Equal(t, 5*time.Second, first.wait)

	// the control message arrives while the first cycle is sleeping
	_, err := server.WriteToUDP([]byte("1"), c.LocalAddr())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return c.Interval().Seconds() == 1 }, 2*time.Second, 10*time.Millisecond)

	select {
	case req := <-requests:
		t.Fatalf("current cycle was rescheduled to %s", req.wait)
	default:
	}

	first.fire <- time.Now()
	assert.Equal(t, "CPU Usage: 12.50%, Processes: 3, Context Switches: 77", read(t, server))

	select {
	case second := <-requests:
		assert.Equal(t, 1*time.Second, second.wait)
	case <-time.After(2 * time.Second):
		t.Fatal("no second cycle")
	}
}

func TestSampleErrorSkipsOneReport(t *testing.T) {
	server := listen(t)

	var calls atomic.Int32
	provider := metrics.ProviderFunc(func(ctx context.Context) (metrics.Snapshot, error) {
		if calls.Add(1) == 1 {
			return metrics.Snapshot{}, errors.New("sampling failed")
		}
		return metrics.Snapshot{CPUUsage: 1, Processes: 2, ContextSwitches: 3}, nil
	})

	c := NewClient(testServices(), server.LocalAddr().(*net.UDPAddr), NewInterval(1), provider,
		WithIntervalUnit(5*time.Millisecond),
		WithDisplay(&shown{}),
	)
	runClient(t, c)

	assert.Equal(t, "CPU Usage: 1.00%, Processes: 2, Context Switches: 3", read(t, server))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestClientThroughRelay(t *testing.T) {
	svc := testServices()
	srv := relay.NewServer(svc, svc.Registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relayDone := make(chan error, 1)
	go func() { relayDone <- srv.Run(ctx) }()
	<-srv.Ready()

	disp := &shown{}
	c := NewClient(testServices(), srv.Addr(), NewInterval(2), fixedProvider(),
		WithIntervalUnit(10*time.Millisecond),
		WithDisplay(disp),
	)
	runClient(t, c)

	assert.Eventually(t, func() bool {
		for _, text := range disp.all() {
			if strings.Contains(text, "Sent: \n CPU Usage: 12.50%") {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return svc.History.Len() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, svc.Registry.Len())

	// an interval sent straight to the client socket reconfigures it
	peer := listen(t)
	_, err := peer.WriteToUDP([]byte("3"), c.LocalAddr())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return c.Interval().Seconds() == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-relayDone)
}
