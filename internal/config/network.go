package config

import (
	"net"

	"github.com/n0needt0/go-goodies/log"
)

const fallbackIP = "127.0.0.1"

// OutboundIP returns the local address the host would route public traffic from.
// Connecting a UDP socket sends nothing; it only selects the source endpoint.
func OutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		log.Warnf("could not determine local ip, using %s: %v", fallbackIP, err)
		return fallbackIP
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return fallbackIP
	}
	return addr.IP.String()
}
