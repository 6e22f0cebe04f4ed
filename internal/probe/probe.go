// Package probe checks whether a relay already answers on an endpoint.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/n0needt0/go-goodies/log"
)

const (
	Payload        = "ping"
	DefaultTimeout = 2 * time.Second
)

// Probe sends a ping from an ephemeral local endpoint and waits up to timeout for any reply.
// It reports true only when a reply arrives; timeouts and socket errors both mean false.
func Probe(ctx context.Context, serverIP string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	target := net.JoinHostPort(serverIP, strconv.Itoa(port))
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		log.Warnf("probe: invalid address %s: %v", target, err)
		return false
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		log.Warnf("probe: failed to open socket: %v", err)
		return false
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if _, err := conn.WriteToUDP([]byte(Payload), addr); err != nil {
		log.Debugf("probe: send to %s failed: %v", target, err)
		return false
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	buf := make([]byte, 1024)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		log.Infof("no relay found at %s: %v", target, err)
		return false
	}

	log.Infof("relay already running at %s (reply from %s, %d bytes)", target, from, n)
	return true
}
