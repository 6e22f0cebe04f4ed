package domain

import (
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"
)

// MaxDatagramSize is the receive buffer size for relay and client sockets.
// Longer datagrams are truncated by the read.
const MaxDatagramSize = 1024

// PeerAddress identifies a UDP endpoint. Comparable, so it can key maps.
type PeerAddress struct {
	IP   netip.Addr
	Port uint16
}

// PeerFromUDPAddr converts a socket address, unmapping IPv4-in-IPv6 forms
// so the same peer always yields the same value.
func PeerFromUDPAddr(addr *net.UDPAddr) PeerAddress {
	ap := addr.AddrPort()
	return PeerAddress{IP: ap.Addr().Unmap(), Port: ap.Port()}
}

func (p PeerAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(p.IP, p.Port)
}

func (p PeerAddress) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(p.AddrPort())
}

// String renders the address as ('ip', port), the form carried in relay annotations.
func (p PeerAddress) String() string {
	return fmt.Sprintf("('%s', %d)", p.IP, p.Port)
}

// MetricSample is one point of the cpu history kept by the relay.
type MetricSample struct {
	Elapsed  float64   `json:"elapsed"`
	CPUUsage float64   `json:"cpu"`
	At       time.Time `json:"at"`
}

// RelayStats represents relay processing statistics
type RelayStats struct {
	DatagramsReceived atomic.Int64
	ReceiveErrors     atomic.Int64
	FanoutSent        atomic.Int64
	FanoutErrors      atomic.Int64
	BytesReceived     atomic.Int64
	LastActivity      atomic.Int64 // unix nanos
	StartedAt         time.Time
}

// Touch records activity at t.
func (s *RelayStats) Touch(t time.Time) {
	s.LastActivity.Store(t.UnixNano())
}

// LastActivityTime returns the zero time when nothing was received yet.
func (s *RelayStats) LastActivityTime() time.Time {
	n := s.LastActivity.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
