package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/domain"
	"github.com/EnzoRigon/udp-client-server/internal/metrics"
	"github.com/EnzoRigon/udp-client-server/internal/registry"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/n0needt0/go-goodies/log"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/metric"
)

const readTimeout = 1 * time.Second

// Server receives datagrams on one UDP endpoint and rebroadcasts each of them,
// annotated with its sender, to every peer it has heard from.
type Server struct {
	services   *services.Services
	addr       *net.UDPAddr
	registry   *registry.Registry
	conn       *net.UDPConn
	bufferPool sync.Pool
	pool       *ants.Pool
	ready      chan struct{}

	// send delivers one outbound datagram; replaced in tests
	send func(payload []byte, to domain.PeerAddress) error

	received metric.Int64Counter
	sent     metric.Int64Counter
	failed   metric.Int64Counter
	peers    metric.Int64Counter
}

// NewServer creates a relay for the configured endpoint. The registry is owned by the
// caller so several relays in one process never share peers by accident.
func NewServer(svc *services.Services, reg *registry.Registry) *Server {
	cfg := svc.Config
	size := cfg.Relay.DatagramSizeBytes
	if size <= 0 {
		size = domain.MaxDatagramSize
	}

	s := &Server{
		services: svc,
		addr: &net.UDPAddr{
			IP:   net.ParseIP(cfg.Relay.IP),
			Port: cfg.Relay.Port,
		},
		registry: reg,
		ready:    make(chan struct{}),
		bufferPool: sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		},
	}
	s.send = s.writeTo

	s.received = counter(svc, "relay.datagrams.received", "datagrams received by the relay")
	s.sent = counter(svc, "relay.fanout.sent", "datagrams delivered during fan-out")
	s.failed = counter(svc, "relay.fanout.errors", "fan-out sends that failed")
	s.peers = counter(svc, "relay.peers.registered", "peers added to the registry")

	return s
}

func counter(svc *services.Services, name, description string) metric.Int64Counter {
	if svc.OtelMeter == nil {
		return nil
	}
	c, err := svc.OtelMeter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Errorf("failed to init metric %s: %v", name, err)
		return nil
	}
	return c
}

// Ready is closed once the endpoint is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Valid after Ready is closed.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Run binds the endpoint and relays until ctx is cancelled.
// A bind failure is returned as domain.BindError.
func (s *Server) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", s.addr)
	if err != nil {
		bindErr := domain.BindError{Addr: s.addr.String(), Err: err}
		if alertErr := s.services.Alerts.RelayBindFailed(ctx, s.addr.String(), err); alertErr != nil {
			log.Warnf("failed to send bind alert: %v", alertErr)
		}
		return bindErr
	}
	defer conn.Close()

	if rb := s.services.Config.Relay.ReadBufferSizeBytes; rb > 0 {
		if err := conn.SetReadBuffer(rb); err != nil {
			return fmt.Errorf("failed to set read buffer for %s: %w", s.addr.String(), err)
		}
	}

	if workers := s.services.Config.Relay.FanoutWorkers; workers > 0 {
		pool, err := ants.NewPool(workers)
		if err != nil {
			return fmt.Errorf("failed to create fan-out pool: %w", err)
		}
		s.pool = pool
		defer pool.Release()
	}

	s.conn = conn
	close(s.ready)

	log.Infof("udp relay listening on %s", conn.LocalAddr().String())

	s.serve(ctx)

	log.Info("udp relay shut down")
	return nil
}

func (s *Server) serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		buf := s.allocateBuffer()
		readLen, remoteAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.deallocateBuffer(buf)

			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			if isClosedConnError(err) {
				return
			}

			log.Errorf("udp relay read error: %v", err)
			s.services.RelayStats.ReceiveErrors.Add(1)
			continue
		}

		payload := make([]byte, readLen)
		copy(payload, buf[:readLen])
		s.deallocateBuffer(buf)

		s.handleDatagram(ctx, payload, domain.PeerFromUDPAddr(remoteAddr))
	}
}

// handleDatagram registers the sender and fans the annotated message out to every peer.
func (s *Server) handleDatagram(ctx context.Context, payload []byte, from domain.PeerAddress) {
	stats := s.services.RelayStats
	stats.DatagramsReceived.Add(1)
	stats.BytesReceived.Add(int64(len(payload)))
	stats.Touch(time.Now())
	if s.received != nil {
		s.received.Add(ctx, 1)
	}

	log.Infof("message from %s: %s", from, payload)

	if s.registry.Add(from) {
		log.Infof("registered peer %s (%d known)", from, s.registry.Len())
		if s.peers != nil {
			s.peers.Add(ctx, 1)
		}
	}

	if snap, ok := metrics.ParseReport(string(payload)); ok {
		s.services.History.Append(snap.CPUUsage)
	}

	s.fanOut(ctx, Annotate(from, payload))
}

// fanOut sends msg once to every registered peer, sender included.
// A failed send is logged and counted; it never stops delivery to the others.
func (s *Server) fanOut(ctx context.Context, msg []byte) (sent, failed int) {
	peers := s.registry.Snapshot()

	var (
		mux sync.Mutex
		wg  sync.WaitGroup
	)

	deliver := func(peer domain.PeerAddress) {
		err := s.send(msg, peer)

		mux.Lock()
		defer mux.Unlock()
		if err != nil {
			failed++
			return
		}
		sent++
	}

	for _, peer := range peers {
		if s.pool == nil {
			deliver(peer)
			continue
		}

		peer := peer
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			deliver(peer)
		}); err != nil {
			wg.Done()
			deliver(peer)
		}
	}
	wg.Wait()

	s.services.RelayStats.FanoutSent.Add(int64(sent))
	s.services.RelayStats.FanoutErrors.Add(int64(failed))
	if s.sent != nil {
		s.sent.Add(ctx, int64(sent))
	}
	if s.failed != nil && failed > 0 {
		s.failed.Add(ctx, int64(failed))
	}

	return sent, failed
}

func (s *Server) writeTo(payload []byte, to domain.PeerAddress) error {
	if _, err := s.conn.WriteToUDPAddrPort(payload, to.AddrPort()); err != nil {
		log.Warnf("failed to relay to %s: %v", to, err)
		return err
	}
	return nil
}

// Annotate prefixes payload with the address it came from.
func Annotate(from domain.PeerAddress, payload []byte) []byte {
	return []byte(fmt.Sprintf("%s Sent: \n %s", from, payload))
}

func (s *Server) allocateBuffer() []byte {
	return s.bufferPool.Get().([]byte)
}

func (s *Server) deallocateBuffer(buf []byte) {
	//lint:ignore SA6002 sync.Pool requires putting back the same type that New() returns
	s.bufferPool.Put(buf)
}

// isClosedConnError checks if the error is due to closed connection
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return strings.Contains(opErr.Err.Error(), "use of closed network connection")
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
