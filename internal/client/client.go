package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/domain"
	"github.com/EnzoRigon/udp-client-server/internal/metrics"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/n0needt0/go-goodies/log"
	"go.opentelemetry.io/otel/metric"
)

// Client periodically reports host metrics to a relay and listens on the same socket
// for interval changes and relayed messages.
type Client struct {
	services *services.Services
	server   *net.UDPAddr
	interval *Interval
	provider metrics.Provider
	display  Display

	unit  time.Duration
	after func(time.Duration) <-chan time.Time

	conn  *net.UDPConn
	ready chan struct{}

	reports metric.Int64Counter
	changes metric.Int64Counter
}

type Option func(c *Client)

// WithDisplay routes inbound messages somewhere other than the log.
func WithDisplay(d Display) Option {
	return func(c *Client) { c.display = d }
}

// WithIntervalUnit scales the report interval; seconds unless overridden.
func WithIntervalUnit(unit time.Duration) Option {
	return func(c *Client) { c.unit = unit }
}

// WithTimer replaces time.After for the report loop.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) { c.after = after }
}

func NewClient(svc *services.Services, server *net.UDPAddr, interval *Interval, provider metrics.Provider, opts ...Option) *Client {
	c := &Client{
		services: svc,
		server:   server,
		interval: interval,
		provider: provider,
		display:  LogDisplay{},
		unit:     time.Second,
		after:    time.After,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if svc.OtelMeter != nil {
		var err error
		if c.reports, err = svc.OtelMeter.Int64Counter("client.reports.sent", metric.WithDescription("metric reports sent")); err != nil {
			log.Errorf("failed to init metric: %v", err)
		}
		if c.changes, err = svc.OtelMeter.Int64Counter("client.interval.changes", metric.WithDescription("report interval updates")); err != nil {
			log.Errorf("failed to init metric: %v", err)
		}
	}
	return c
}

func (c *Client) Interval() *Interval {
	return c.interval
}

// Ready is closed once the client socket is bound.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// LocalAddr is valid after Ready is closed.
func (c *Client) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Run binds the client socket and runs the receive and report loops until ctx is done.
// A failing receive loop does not stop reporting.
func (c *Client) Run(ctx context.Context) error {
	var laddr *net.UDPAddr
	if bind := c.services.Config.Client.BindAddr; bind != "" {
		var err error
		laddr, err = net.ResolveUDPAddr("udp", bind)
		if err != nil {
			return fmt.Errorf("invalid client bind address %s: %w", bind, err)
		}
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("failed to open client socket: %w", err)
	}
	c.conn = conn
	close(c.ready)

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	log.Infof("client %s reporting to %s every %d seconds", conn.LocalAddr(), c.server, c.interval.Seconds())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := c.receiveLoop(ctx); err != nil {
			log.Errorf("receive loop stopped: %v", err)
			if alertErr := c.services.Alerts.ClientReceiveFailed(ctx, conn.LocalAddr().String(), err); alertErr != nil {
				log.Warnf("failed to send alert: %v", alertErr)
			}
		}
	}()
	go func() {
		defer wg.Done()
		c.reportLoop(ctx)
	}()
	wg.Wait()

	return nil
}

// Send writes text to the relay from the client socket.
func (c *Client) Send(text string) error {
	if _, err := c.conn.WriteToUDP([]byte(text), c.server); err != nil {
		return fmt.Errorf("failed to send to %s: %w", c.server, err)
	}
	return nil
}

func (c *Client) receiveLoop(ctx context.Context) error {
	buf := make([]byte, domain.MaxDatagramSize)
	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		c.handleInbound(ctx, string(buf[:n]), from.String())
	}
}

// handleInbound applies a positive integer payload as the new interval; anything else is displayed.
func (c *Client) handleInbound(ctx context.Context, text, from string) {
	if seconds, ok := ParseInterval(text); ok {
		c.interval.Set(seconds)
		if c.changes != nil {
			c.changes.Add(ctx, 1)
		}
		log.Infof("report interval changed to %d seconds by %s", seconds, from)
		c.display.Show(from, fmt.Sprintf("Interval set to %d seconds", seconds))
		return
	}

	c.display.Show(from, metrics.Describe(text))
}

// reportLoop reads the interval at the start of each cycle, so a change made while
// sleeping takes effect from the following cycle.
func (c *Client) reportLoop(ctx context.Context) {
	for {
		wait := c.interval.Duration(c.unit)

		select {
		case <-ctx.Done():
			return
		case <-c.after(wait):
		}

		snap, err := c.provider.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("failed to sample metrics: %v", err)
			continue
		}

		if err := c.Send(metrics.FormatReport(snap)); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("failed to send report: %v", err)
			continue
		}
		if c.reports != nil {
			c.reports.Add(ctx, 1)
		}
		log.Debugf("report sent to %s", c.server)
	}
}

// ParseInterval accepts the decimal text of a positive integer no larger than MaxIntervalSeconds.
func ParseInterval(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 || n > MaxIntervalSeconds {
		return 0, false
	}
	return n, true
}
